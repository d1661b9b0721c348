// AngelaMos | 2026
// repository.go

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/assocly/memberaccess/internal/core"
)

type Repository interface {
	Create(ctx context.Context, token *RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	// Claim rotates the live token with the given hash in one statement.
	// It returns core.ErrNotFound when no live token matches, so two
	// concurrent refreshes of one token never both succeed.
	Claim(
		ctx context.Context,
		tokenHash, replacedByID string,
		now time.Time,
	) (*RefreshToken, error)
	Revoke(ctx context.Context, scope RevokeScope, id string) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

const tokenColumns = `id, user_id, token_hash, family_id, expires_at, created_at,
		is_used, used_at, revoked_at, replaced_by_id, user_agent, ip_address`

func (r *repository) Create(ctx context.Context, token *RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (
			id, user_id, token_hash, family_id, expires_at,
			user_agent, ip_address
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.GetContext(ctx, &token.CreatedAt, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.FamilyID,
		token.ExpiresAt,
		token.UserAgent,
		token.IPAddress,
	)
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}

	return nil
}

func (r *repository) FindByHash(
	ctx context.Context,
	tokenHash string,
) (*RefreshToken, error) {
	query := `SELECT ` + tokenColumns + `
		FROM refresh_tokens
		WHERE token_hash = $1`

	var token RefreshToken
	err := r.db.GetContext(ctx, &token, query, tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find refresh token: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}

	return &token, nil
}

func (r *repository) Claim(
	ctx context.Context,
	tokenHash, replacedByID string,
	now time.Time,
) (*RefreshToken, error) {
	query := `
		UPDATE refresh_tokens
		SET is_used = true, used_at = $3, replaced_by_id = $2
		WHERE token_hash = $1
			AND is_used = false
			AND revoked_at IS NULL
			AND expires_at > $3
		RETURNING ` + tokenColumns

	var token RefreshToken
	err := r.db.GetContext(ctx, &token, query, tokenHash, replacedByID, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("claim refresh token: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("claim refresh token: %w", err)
	}

	return &token, nil
}

// Revoke stamps every unrevoked token in scope and reports how many it
// touched.
func (r *repository) Revoke(
	ctx context.Context,
	scope RevokeScope,
	id string,
) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE ` + scope.column() + ` = $1 AND revoked_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}

	return rows, nil
}

// DeleteExpired removes refresh tokens that expired before the cutoff,
// whatever their revocation state.
func (r *repository) DeleteExpired(
	ctx context.Context,
	before time.Time,
) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}

	return rows, nil
}
