package records

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

const recordMetaColumns = `id, owner_id, title, category, report_date,
	file_name, content_type, file_size, status, submitted_at, created_at, updated_at`

// RepoPG is the Postgres medical record repository.
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

func scanRecordMeta(row pgx.Row) (*Record, error) {
	rec := &Record{}
	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.Title, &rec.Category, &rec.ReportDate,
		&rec.FileName, &rec.ContentType, &rec.FileSize, &rec.Status,
		&rec.SubmittedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *RepoPG) Create(ctx context.Context, rec *Record) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medical_record (id, owner_id, title, category, report_date,
			file_name, content_type, file_size, file_data, status,
			submitted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.OwnerID, rec.Title, rec.Category, rec.ReportDate,
		rec.FileName, rec.ContentType, rec.FileSize, rec.FileData, rec.Status,
		rec.SubmittedAt, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert medical record: %w", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec := &Record{}
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT `+recordMetaColumns+`, file_data
		FROM medical_record WHERE id = $1`, id,
	).Scan(
		&rec.ID, &rec.OwnerID, &rec.Title, &rec.Category, &rec.ReportDate,
		&rec.FileName, &rec.ContentType, &rec.FileSize, &rec.Status,
		&rec.SubmittedAt, &rec.CreatedAt, &rec.UpdatedAt, &rec.FileData,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("get record by id: %w", err)
	}
	return rec, nil
}

func (r *RepoPG) GetMany(ctx context.Context, ids []uuid.UUID) ([]*Record, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+recordMetaColumns+`, file_data
		FROM medical_record WHERE id = ANY($1)
		ORDER BY created_at ASC`, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var recs []*Record
	for rows.Next() {
		rec := &Record{}
		if err := rows.Scan(
			&rec.ID, &rec.OwnerID, &rec.Title, &rec.Category, &rec.ReportDate,
			&rec.FileName, &rec.ContentType, &rec.FileSize, &rec.Status,
			&rec.SubmittedAt, &rec.CreatedAt, &rec.UpdatedAt, &rec.FileData,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return recs, nil
}

func (r *RepoPG) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM medical_record WHERE owner_id = $1`, ownerID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+recordMetaColumns+`
		FROM medical_record WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, ownerID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query records by owner: %w", err)
	}
	defer rows.Close()

	var recs []*Record
	for rows.Next() {
		rec, err := scanRecordMeta(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate records: %w", err)
	}
	return recs, total, nil
}

func (r *RepoPG) CountOwned(ctx context.Context, ids []uuid.UUID, ownerID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM medical_record
		WHERE id = ANY($1) AND owner_id = $2`, ids, ownerID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count owned records: %w", err)
	}
	return n, nil
}

func (r *RepoPG) SetStatus(ctx context.Context, ids []uuid.UUID, status Status, submittedAt *time.Time) error {
	var err error
	if submittedAt != nil {
		_, err = r.conn(ctx).Exec(ctx, `
			UPDATE medical_record
			SET status = $2, submitted_at = $3, updated_at = NOW()
			WHERE id = ANY($1)`, ids, status, *submittedAt)
	} else {
		_, err = r.conn(ctx).Exec(ctx, `
			UPDATE medical_record
			SET status = $2, updated_at = NOW()
			WHERE id = ANY($1)`, ids, status)
	}
	if err != nil {
		return fmt.Errorf("update record status: %w", err)
	}
	return nil
}

func (r *RepoPG) StatsByOwner(ctx context.Context, ownerID uuid.UUID) (*Stats, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT status, COUNT(*) FROM medical_record
		WHERE owner_id = $1 GROUP BY status`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query record stats: %w", err)
	}
	defer rows.Close()

	stats := &Stats{}
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan record stats: %w", err)
		}
		stats.Total += count
		switch status {
		case StatusUploaded:
			stats.Uploaded = count
		case StatusUnderReview:
			stats.UnderReview = count
		case StatusCompleted:
			stats.Completed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record stats: %w", err)
	}
	return stats, nil
}
