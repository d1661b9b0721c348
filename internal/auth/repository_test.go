// AngelaMos | 2026
// repository_test.go

package auth

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assocly/memberaccess/internal/core"
)

var tokenCols = []string{
	"id", "user_id", "token_hash", "family_id", "expires_at", "created_at",
	"is_used", "used_at", "revoked_at", "replaced_by_id", "user_agent", "ip_address",
}

func newMockRepo(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewRepository(sqlx.NewDb(db, "pgx")), mock
}

func TestRepository_ClaimRotatesLiveToken(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SET is_used = true, used_at = $3, replaced_by_id = $2")).
		WithArgs("hash-1", "next-1", now).
		WillReturnRows(sqlmock.NewRows(tokenCols).AddRow(
			"tok-1", "p-1", "hash-1", "fam-1", now.Add(time.Hour), now,
			true, now, nil, "next-1", "cli", "127.0.0.1",
		))

	tok, err := repo.Claim(context.Background(), "hash-1", "next-1", now)
	require.NoError(t, err)
	assert.Equal(t, "fam-1", tok.FamilyID)
	assert.Equal(t, TokenRotated, tok.State(now))
}

func TestRepository_ClaimSpentToken(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE refresh_tokens")).
		WithArgs("hash-1", "next-2", now).
		WillReturnRows(sqlmock.NewRows(tokenCols))

	_, err := repo.Claim(context.Background(), "hash-1", "next-2", now)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRepository_RevokeScopes(t *testing.T) {
	tests := []struct {
		scope  RevokeScope
		clause string
	}{
		{RevokeToken, "WHERE id = $1"},
		{RevokeFamily, "WHERE family_id = $1"},
		{RevokePrincipal, "WHERE user_id = $1"},
	}

	for _, tt := range tests {
		t.Run(tt.clause, func(t *testing.T) {
			repo, mock := newMockRepo(t)

			mock.ExpectExec(regexp.QuoteMeta(tt.clause + " AND revoked_at IS NULL")).
				WithArgs("x").
				WillReturnResult(sqlmock.NewResult(0, 2))

			n, err := repo.Revoke(context.Background(), tt.scope, "x")
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)
		})
	}
}

func TestRefreshToken_State(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)

	assert.Equal(t, TokenActive, (&RefreshToken{ExpiresAt: now.Add(time.Hour)}).State(now))
	assert.Equal(t, TokenExpired, (&RefreshToken{ExpiresAt: now}).State(now))
	assert.Equal(t, TokenRotated, (&RefreshToken{ExpiresAt: now.Add(time.Hour), IsUsed: true}).State(now))
	assert.Equal(t, TokenRevoked, (&RefreshToken{
		ExpiresAt: past,
		IsUsed:    true,
		RevokedAt: &past,
	}).State(now))
}
