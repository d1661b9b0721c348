// AngelaMos | 2026
// challenge.go

package otp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/assocly/memberaccess/internal/core"
)

// Challenge is one issued code. Only its HMAC is stored.
type Challenge struct {
	ID         string     `db:"id"`
	MemberID   string     `db:"member_id"`
	CodeHash   string     `db:"code_hash"`
	CreatedAt  time.Time  `db:"created_at"`
	ExpiresAt  time.Time  `db:"expires_at"`
	Consumed   bool       `db:"consumed"`
	ConsumedAt *time.Time `db:"consumed_at"`
}

type ChallengeRepository interface {
	Create(ctx context.Context, c *Challenge) error
	Supersede(ctx context.Context, memberID, keepID string, now time.Time) (int64, error)
	Discard(ctx context.Context, id string) error
	Consume(
		ctx context.Context,
		memberID, codeHash string,
		now time.Time,
	) (string, error)
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
	CountUsable(ctx context.Context, now time.Time) (int, error)
}

type challengeRepository struct {
	db core.DBTX
}

func NewChallengeRepository(db core.DBTX) ChallengeRepository {
	return &challengeRepository{db: db}
}

// Create stores c. Earlier challenges for the member stay usable until
// Supersede retires them, so an undelivered code never costs the member the
// one already on their phone.
func (r *challengeRepository) Create(ctx context.Context, c *Challenge) error {
	query := `
		INSERT INTO otp_challenges (id, member_id, code_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query,
		c.ID,
		c.MemberID,
		c.CodeHash,
		c.CreatedAt,
		c.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("create challenge: %w", err)
	}

	return nil
}

// Supersede consumes every usable challenge of the member except keepID.
func (r *challengeRepository) Supersede(
	ctx context.Context,
	memberID, keepID string,
	now time.Time,
) (int64, error) {
	query := `
		UPDATE otp_challenges
		SET consumed = true, consumed_at = $3
		WHERE member_id = $1 AND id <> $2 AND consumed = false`

	result, err := r.db.ExecContext(ctx, query, memberID, keepID, now)
	if err != nil {
		return 0, fmt.Errorf("supersede challenges: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("supersede challenges: %w", err)
	}

	return rows, nil
}

// Discard deletes a challenge whose code never reached the member.
func (r *challengeRepository) Discard(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM otp_challenges WHERE id = $1`, id); err != nil {
		return fmt.Errorf("discard challenge: %w", err)
	}
	return nil
}

// Consume flips the matching usable challenge to consumed and returns its
// id. The WHERE clause is the single-use guard: of two concurrent callers
// only one can see consumed = false.
func (r *challengeRepository) Consume(
	ctx context.Context,
	memberID, codeHash string,
	now time.Time,
) (string, error) {
	query := `
		UPDATE otp_challenges
		SET consumed = true, consumed_at = $3
		WHERE member_id = $1
			AND code_hash = $2
			AND consumed = false
			AND expires_at > $3
		RETURNING id`

	var id string
	err := r.db.GetContext(ctx, &id, query, memberID, codeHash, now)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("consume challenge: %w", core.ErrInvalidOrExpired)
	}
	if err != nil {
		return "", fmt.Errorf("consume challenge: %w", err)
	}

	return id, nil
}

// DeleteStale removes challenges that can no longer be used and were
// created before the cutoff.
func (r *challengeRepository) DeleteStale(
	ctx context.Context,
	before time.Time,
) (int64, error) {
	query := `
		DELETE FROM otp_challenges
		WHERE created_at < $1
			AND (consumed = true OR expires_at < $1)`

	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("delete stale challenges: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete stale challenges: %w", err)
	}

	return rows, nil
}

func (r *challengeRepository) CountUsable(
	ctx context.Context,
	now time.Time,
) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM otp_challenges
		WHERE consumed = false AND expires_at > $1`

	var n int
	if err := r.db.GetContext(ctx, &n, query, now); err != nil {
		return 0, fmt.Errorf("count usable challenges: %w", err)
	}

	return n, nil
}
