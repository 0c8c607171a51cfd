package identity

import (
	"context"
	"errors"
	"fmt"

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

const userColumns = `id, name, email, mobile, password_hash, role, push_token,
	specialization, mci_number, experience_years, is_profile_approved,
	created_at, updated_at`

// RepoPG is the Postgres user repository.
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

func scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.Mobile, &u.PasswordHash, &u.Role,
		&u.PushToken, &u.Specialization, &u.MCINumber, &u.ExperienceYears,
		&u.IsProfileApproved, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *RepoPG) Create(ctx context.Context, u *User) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO users (id, name, email, mobile, password_hash, role,
			push_token, specialization, mci_number, experience_years,
			is_profile_approved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		u.ID, u.Name, u.Email, u.Mobile, u.PasswordHash, u.Role,
		u.PushToken, u.Specialization, u.MCINumber, u.ExperienceYears,
		u.IsProfileApproved, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

func (r *RepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (r *RepoPG) UpdatePushToken(ctx context.Context, id uuid.UUID, token string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET push_token = $2, updated_at = NOW() WHERE id = $1`,
		id, token,
	)
	if err != nil {
		return fmt.Errorf("update push token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *RepoPG) PushTokensByRole(ctx context.Context, role string) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT push_token FROM users
		WHERE role = $1 AND push_token IS NOT NULL AND push_token <> ''`,
		role,
	)
	if err != nil {
		return nil, fmt.Errorf("query push tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan push token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate push tokens: %w", err)
	}
	return tokens, nil
}
