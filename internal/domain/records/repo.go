package records

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrRecordNotFound = errors.New("record not found")

// Repository persists medical records.
type Repository interface {
	Create(ctx context.Context, r *Record) error
	// GetByID returns the record including its payload.
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	// GetMany returns the records for the given ids, payloads included.
	GetMany(ctx context.Context, ids []uuid.UUID) ([]*Record, error)
	// ListByOwner returns metadata-only records for one owner, newest first.
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Record, int, error)
	// CountOwned returns how many of the given ids belong to ownerID.
	CountOwned(ctx context.Context, ids []uuid.UUID, ownerID uuid.UUID) (int, error)
	// SetStatus updates the status of all given records; submittedAt is
	// written when non-nil.
	SetStatus(ctx context.Context, ids []uuid.UUID, status Status, submittedAt *time.Time) error
	// StatsByOwner returns per-status counts for one owner.
	StatsByOwner(ctx context.Context, ownerID uuid.UUID) (*Stats, error)
}
