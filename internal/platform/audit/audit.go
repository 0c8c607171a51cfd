// Package audit records security-relevant actions. Writes are best-effort:
// an audit failure is logged and never surfaces to the caller.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Entry is a single audit log row.
type Entry struct {
	ID        uuid.UUID  `json:"id"`
	UserID    *uuid.UUID `json:"userId,omitempty"`
	Action    string     `json:"action"`
	IPAddress string     `json:"ipAddress"`
	UserAgent string     `json:"userAgent"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Repository persists audit entries.
type Repository interface {
	Insert(ctx context.Context, e *Entry) error
}

// Recorder wraps a Repository with best-effort semantics.
type Recorder struct {
	repo   Repository
	logger zerolog.Logger
}

func NewRecorder(repo Repository, logger zerolog.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// Record writes an audit entry, swallowing any error.
func (r *Recorder) Record(ctx context.Context, userID *uuid.UUID, action, ip, userAgent string) {
	e := &Entry{
		ID:        uuid.New(),
		UserID:    userID,
		Action:    action,
		IPAddress: ip,
		UserAgent: userAgent,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.repo.Insert(ctx, e); err != nil {
		r.logger.Error().Err(err).Str("action", action).Msg("audit: insert failed")
	}
}

// MockRepo records entries in memory for tests.
type MockRepo struct {
	Entries []*Entry
	Err     error
}

func (m *MockRepo) Insert(_ context.Context, e *Entry) error {
	if m.Err != nil {
		return m.Err
	}
	m.Entries = append(m.Entries, e)
	return nil
}
