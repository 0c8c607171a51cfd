package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/secondopinion/secondopinion/internal/platform/auth"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrValidation         = errors.New("validation failed")
)

// RegisterInput carries a signup request.
type RegisterInput struct {
	Name           string
	Email          string
	Mobile         string
	Password       string
	Role           string
	Specialization string
	MCINumber      string
}

// Service implements account registration, login, and profile operations.
type Service struct {
	repo   Repository
	jwtCfg auth.JWTConfig
	logger zerolog.Logger
}

func NewService(repo Repository, jwtCfg auth.JWTConfig, logger zerolog.Logger) *Service {
	return &Service{repo: repo, jwtCfg: jwtCfg, logger: logger}
}

// Register creates a patient or doctor account. Admin accounts are only
// created through the seed command.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Role = strings.TrimSpace(in.Role)

	if in.Name == "" || in.Email == "" || len(in.Password) < 8 {
		return nil, fmt.Errorf("%w: name, email and a password of at least 8 characters are required", ErrValidation)
	}
	if !validRoles[in.Role] || in.Role == auth.RoleAdmin {
		return nil, fmt.Errorf("%w: role must be patient or doctor", ErrValidation)
	}
	if in.Role == auth.RoleDoctor && (in.Specialization == "" || in.MCINumber == "") {
		return nil, fmt.Errorf("%w: doctors must provide specialization and MCI number", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	u := &User{
		ID:           uuid.New(),
		Name:         in.Name,
		Email:        in.Email,
		Mobile:       in.Mobile,
		PasswordHash: string(hash),
		Role:         in.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.Role == auth.RoleDoctor {
		u.Specialization = &in.Specialization
		u.MCINumber = &in.MCINumber
	}

	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", u.ID.String()).Str("role", u.Role).Msg("user registered")
	return u, nil
}

// Login verifies credentials and returns the user plus a signed token.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, error) {
	u, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := auth.IssueToken(s.jwtCfg, u.ID, u.Role, u.Name)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return u, token, nil
}

// SavePushToken stores the caller's Expo push token.
func (s *Service) SavePushToken(ctx context.Context, userID uuid.UUID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: push token is required", ErrValidation)
	}
	return s.repo.UpdatePushToken(ctx, userID, token)
}

// Profile returns the user for the given id.
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, userID)
}

// DisplayName resolves a user's name for notifications. Falls back to a
// generic label so a lookup failure never blocks a notification.
func (s *Service) DisplayName(ctx context.Context, userID uuid.UUID) string {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return "A patient"
	}
	return u.Name
}

// SeedAdmin creates an admin account if the email is not taken.
func (s *Service) SeedAdmin(ctx context.Context, name, email, password string) (*User, error) {
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: admin password must be at least 8 characters", ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	u := &User{
		ID:           uuid.New(),
		Name:         name,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: string(hash),
		Role:         auth.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
