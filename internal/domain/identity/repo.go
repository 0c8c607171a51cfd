package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdatePushToken(ctx context.Context, id uuid.UUID, token string) error
	// PushTokensByRole returns the non-empty push tokens of all users with
	// the given role.
	PushTokensByRole(ctx context.Context, role string) ([]string, error)
}
