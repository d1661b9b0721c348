// AngelaMos | 2026
// repository.go

package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/assocly/memberaccess/internal/core"
)

type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	IncrementTokenVersion(ctx context.Context, id string) error
	CountByKind(ctx context.Context) (map[string]int, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, email, password_hash, name, kind)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at, token_version`

	err := r.db.QueryRowxContext(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Name,
		user.Kind,
	).Scan(&user.CreatedAt, &user.UpdatedAt, &user.TokenVersion)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("create user: %w", core.ErrDuplicateKey)
		}
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

const userColumns = `id, email, password_hash, name, kind, token_version,
		       created_at, updated_at, deleted_at`

func (r *repository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getOne(ctx, "get user", "id = $1", id)
}

// GetByEmail expects email already lowercased; the unique index is on
// lower(email).
func (r *repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getOne(ctx, "get user by email", "lower(email) = $1", email)
}

func (r *repository) getOne(
	ctx context.Context,
	op, predicate string,
	arg any,
) (*User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE ` + predicate + ` AND deleted_at IS NULL`

	var u User
	err := r.db.GetContext(ctx, &u, query, arg)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%s: %w", op, core.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &u, nil
}

func (r *repository) UpdatePassword(
	ctx context.Context,
	id, passwordHash string,
) error {
	query := `
		UPDATE users
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	return r.execOne(ctx, "update password", query, id, passwordHash)
}

func (r *repository) IncrementTokenVersion(
	ctx context.Context,
	id string,
) error {
	query := `
		UPDATE users
		SET token_version = token_version + 1, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	return r.execOne(ctx, "increment token version", query, id)
}

func (r *repository) CountByKind(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT kind, COUNT(*) AS total
		FROM users
		WHERE deleted_at IS NULL
		GROUP BY kind`

	var rows []struct {
		Kind  string `db:"kind"`
		Total int    `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Kind] = row.Total
	}
	return counts, nil
}

// execOne runs a statement that must touch exactly one live user.
func (r *repository) execOne(
	ctx context.Context,
	op, query string,
	args ...any,
) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if rows == 0 {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}

	return nil
}

const uniqueViolation = "23505"

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
