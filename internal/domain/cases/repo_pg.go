package cases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/secondopinion/secondopinion/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

const caseColumns = `id, patient_id, doctor_id, record_ids, status, priority,
	ai_summary, ai_risk_level, ai_markers, ai_processed_at,
	verdict, recommendations, reviewed_at, created_at, updated_at`

// RepoPG is the Postgres review case repository.
type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func scanCase(row pgx.Row) (*Case, error) {
	c := &Case{}
	var (
		aiSummary, aiRisk *string
		aiMarkers         []string
		aiProcessedAt     *time.Time
		verdict, recomm   *string
		reviewedAt        *time.Time
	)
	err := row.Scan(
		&c.ID, &c.PatientID, &c.DoctorID, &c.RecordIDs, &c.Status, &c.Priority,
		&aiSummary, &aiRisk, &aiMarkers, &aiProcessedAt,
		&verdict, &recomm, &reviewedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if aiSummary != nil && aiRisk != nil && aiProcessedAt != nil {
		c.AIAnalysis = &AIAnalysis{
			Summary:          *aiSummary,
			RiskLevel:        RiskLevel(*aiRisk),
			ExtractedMarkers: aiMarkers,
			ProcessedAt:      *aiProcessedAt,
		}
	}
	if verdict != nil && recomm != nil && reviewedAt != nil {
		c.DoctorOpinion = &DoctorOpinion{
			FinalVerdict:    *verdict,
			Recommendations: *recomm,
			ReviewedAt:      *reviewedAt,
		}
	}
	return c, nil
}

func (r *RepoPG) Create(ctx context.Context, c *Case) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO review_case (id, patient_id, record_ids, status, priority,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.PatientID, c.RecordIDs, c.Status, c.Priority,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert review case: %w", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Case, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+caseColumns+` FROM review_case WHERE id = $1`, id)
	c, err := scanCase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("get case by id: %w", err)
	}
	return c, nil
}

func (r *RepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Case, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM review_case WHERE patient_id = $1`, patientID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count cases: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+caseColumns+` FROM review_case
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, patientID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query cases by patient: %w", err)
	}
	defer rows.Close()

	cases, err := collectCases(rows)
	if err != nil {
		return nil, 0, err
	}
	return cases, total, nil
}

func (r *RepoPG) ListPending(ctx context.Context) ([]*Case, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+caseColumns+` FROM review_case
		WHERE status = $1
		ORDER BY (priority = 'High') DESC, created_at ASC`,
		StatusPendingDoctor,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending cases: %w", err)
	}
	defer rows.Close()

	return collectCases(rows)
}

func collectCases(rows pgx.Rows) ([]*Case, error) {
	var cases []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return cases, nil
}

func (r *RepoPG) SetAnalysis(ctx context.Context, id uuid.UUID, a AIAnalysis, priority Priority) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE review_case
		SET status = $2, priority = $3, ai_summary = $4, ai_risk_level = $5,
			ai_markers = $6, ai_processed_at = $7, updated_at = NOW()
		WHERE id = $1 AND status = $8`,
		id, StatusPendingDoctor, priority,
		a.Summary, a.RiskLevel, a.ExtractedMarkers, a.ProcessedAt,
		StatusAIProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("update case analysis: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *RepoPG) Finalize(ctx context.Context, id, doctorID uuid.UUID, op DoctorOpinion) (*Case, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE review_case
		SET status = $2, doctor_id = $3, verdict = $4, recommendations = $5,
			reviewed_at = $6, updated_at = NOW()
		WHERE id = $1 AND status <> $7
		RETURNING `+caseColumns,
		id, StatusCompleted, doctorID,
		op.FinalVerdict, op.Recommendations, op.ReviewedAt,
		StatusCompleted,
	)
	c, err := scanCase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCaseClosed
		}
		return nil, fmt.Errorf("finalize case: %w", err)
	}
	return c, nil
}

func (r *RepoPG) Cancel(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE review_case
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($3, $4)`,
		id, StatusCancelled, StatusCompleted, StatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("cancel case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCaseClosed
	}
	return nil
}

func (r *RepoPG) RecordVisibleToDoctor(ctx context.Context, recordID, doctorID uuid.UUID) (bool, error) {
	var visible bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM review_case
			WHERE $1 = ANY(record_ids)
			  AND (status = $2 OR doctor_id = $3)
		)`, recordID, StatusPendingDoctor, doctorID,
	).Scan(&visible)
	if err != nil {
		return false, fmt.Errorf("check record visibility: %w", err)
	}
	return visible, nil
}
