package cases

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrCaseNotFound = errors.New("case not found")
	// ErrCaseClosed covers both a missing case and one already finalized;
	// the conditional update cannot tell them apart and callers treat both
	// as a conflict.
	ErrCaseClosed = errors.New("case not found or already finalized")
	ErrNotOwner   = errors.New("case does not belong to caller")
	ErrValidation = errors.New("validation failed")
)

// Repository persists review cases.
type Repository interface {
	Create(ctx context.Context, c *Case) error
	GetByID(ctx context.Context, id uuid.UUID) (*Case, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Case, int, error)
	// ListPending returns all PENDING_DOCTOR cases, High priority first,
	// oldest first within a priority.
	ListPending(ctx context.Context) ([]*Case, error)
	// SetAnalysis writes the analysis result and advances the case to
	// PENDING_DOCTOR, but only while it is still AI_PROCESSING. Returns
	// false when the guard did not match.
	SetAnalysis(ctx context.Context, id uuid.UUID, a AIAnalysis, priority Priority) (bool, error)
	// Finalize conditionally completes a case that is not yet COMPLETED,
	// attaching the doctor and opinion. Returns ErrCaseClosed when no row
	// matched.
	Finalize(ctx context.Context, id, doctorID uuid.UUID, op DoctorOpinion) (*Case, error)
	// Cancel marks a non-completed case CANCELLED.
	Cancel(ctx context.Context, id uuid.UUID) error
	// RecordVisibleToDoctor reports whether the record belongs to a case
	// that is pending or assigned to the given doctor.
	RecordVisibleToDoctor(ctx context.Context, recordID, doctorID uuid.UUID) (bool, error)
}
