package cases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/secondopinion/secondopinion/internal/domain/records"
	"github.com/secondopinion/secondopinion/internal/platform/auth"
	"github.com/secondopinion/secondopinion/internal/platform/db"
)

// RecordStore is the slice of the records repository the case workflow needs.
type RecordStore interface {
	CountOwned(ctx context.Context, ids []uuid.UUID, ownerID uuid.UUID) (int, error)
	SetStatus(ctx context.Context, ids []uuid.UUID, status records.Status, submittedAt *time.Time) error
	GetMany(ctx context.Context, ids []uuid.UUID) ([]*records.Record, error)
}

// Enqueuer hands a committed case to the analysis worker.
type Enqueuer interface {
	Enqueue(caseID uuid.UUID)
}

// Service implements the case workflow: submission, queries, finalization.
type Service struct {
	repo    Repository
	records RecordStore
	tx      db.TxRunner
	queue   Enqueuer
	logger  zerolog.Logger
}

func NewService(repo Repository, recs RecordStore, tx db.TxRunner, queue Enqueuer, logger zerolog.Logger) *Service {
	return &Service{repo: repo, records: recs, tx: tx, queue: queue, logger: logger}
}

// Submit atomically creates a review case over the given records and marks
// them UNDER_REVIEW. The analysis job is enqueued only after the transaction
// commits, so the worker can never observe a case that later rolls back.
func (s *Service) Submit(ctx context.Context, patientID uuid.UUID, recordIDs []uuid.UUID) (*Case, error) {
	if len(recordIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one record is required", ErrValidation)
	}

	recordIDs = dedupe(recordIDs)

	now := time.Now().UTC()
	c := &Case{
		ID:        uuid.New(),
		PatientID: patientID,
		RecordIDs: recordIDs,
		Status:    StatusAIProcessing,
		Priority:  PriorityNormal,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		owned, err := s.records.CountOwned(txCtx, recordIDs, patientID)
		if err != nil {
			return err
		}
		if owned != len(recordIDs) {
			return ErrNotOwner
		}

		if err := s.repo.Create(txCtx, c); err != nil {
			return err
		}

		submitted := now
		return s.records.SetStatus(txCtx, recordIDs, records.StatusUnderReview, &submitted)
	})
	if err != nil {
		return nil, err
	}

	s.queue.Enqueue(c.ID)
	s.logger.Info().
		Str("case_id", c.ID.String()).
		Str("patient_id", patientID.String()).
		Int("records", len(recordIDs)).
		Msg("case submitted")
	return c, nil
}

// Finalize closes a case with the doctor's verdict. The conditional update
// guarantees at most one finalization ever succeeds; the records are closed
// in the same transaction.
func (s *Service) Finalize(ctx context.Context, caseID, doctorID uuid.UUID, verdict, recommendations string) (*Case, error) {
	verdict = strings.TrimSpace(verdict)
	recommendations = strings.TrimSpace(recommendations)
	if verdict == "" || recommendations == "" {
		return nil, fmt.Errorf("%w: final verdict and recommendations are required", ErrValidation)
	}

	var finalized *Case
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		c, err := s.repo.Finalize(txCtx, caseID, doctorID, DoctorOpinion{
			FinalVerdict:    verdict,
			Recommendations: recommendations,
			ReviewedAt:      time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		finalized = c

		return s.records.SetStatus(txCtx, c.RecordIDs, records.StatusCompleted, nil)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("case_id", caseID.String()).
		Str("doctor_id", doctorID.String()).
		Msg("case finalized")
	return finalized, nil
}

// Get returns a case, enforcing visibility: patients see their own cases,
// doctors see pending cases and cases assigned to them, admins see all.
func (s *Service) Get(ctx context.Context, caseID, callerID uuid.UUID, role string) (*Case, error) {
	c, err := s.repo.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}

	switch role {
	case auth.RoleAdmin:
		return c, nil
	case auth.RoleDoctor:
		if c.Status == StatusPendingDoctor {
			return c, nil
		}
		if c.DoctorID != nil && *c.DoctorID == callerID {
			return c, nil
		}
		return nil, ErrNotOwner
	default:
		if c.PatientID == callerID {
			return c, nil
		}
		return nil, ErrNotOwner
	}
}

// History returns the patient's cases, newest first.
func (s *Service) History(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Case, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// Pending returns the doctor work queue, High priority first.
func (s *Service) Pending(ctx context.Context) ([]*Case, error) {
	return s.repo.ListPending(ctx)
}

// Cancel marks a non-completed case CANCELLED.
func (s *Service) Cancel(ctx context.Context, caseID uuid.UUID) error {
	return s.repo.Cancel(ctx, caseID)
}

// DoctorMayViewRecord implements records.AccessChecker.
func (s *Service) DoctorMayViewRecord(ctx context.Context, recordID, doctorID uuid.UUID) (bool, error) {
	return s.repo.RecordVisibleToDoctor(ctx, recordID, doctorID)
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
