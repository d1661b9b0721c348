// AngelaMos | 2026
// service_test.go

package auth

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assocly/memberaccess/internal/config"
	"github.com/assocly/memberaccess/internal/core"
)

type memTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*RefreshToken
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{tokens: make(map[string]*RefreshToken)}
}

func (m *memTokenRepo) Create(_ context.Context, t *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.CreatedAt = time.Now()
	cp := *t
	m.tokens[t.ID] = &cp
	return nil
}

func (m *memTokenRepo) FindByHash(_ context.Context, hash string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.TokenHash == hash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("find refresh token: %w", core.ErrNotFound)
}

func (m *memTokenRepo) Claim(
	_ context.Context,
	hash, replacedBy string,
	now time.Time,
) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.TokenHash == hash && t.State(now) == TokenActive {
			t.IsUsed, t.UsedAt, t.ReplacedByID = true, &now, &replacedBy
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("claim refresh token: %w", core.ErrNotFound)
}

func (m *memTokenRepo) Revoke(_ context.Context, scope RevokeScope, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var n int64
	for _, t := range m.tokens {
		var key string
		switch scope {
		case RevokeToken:
			key = t.ID
		case RevokeFamily:
			key = t.FamilyID
		case RevokePrincipal:
			key = t.UserID
		}
		if key == id && t.RevokedAt == nil {
			t.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

func (m *memTokenRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tokens {
		if t.ExpiresAt.Before(before) {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]*UserInfo
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*UserInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("get user by email: %w", core.ErrNotFound)
}

func (m *memUsers) GetByID(_ context.Context, id string) (*UserInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
}

func (m *memUsers) IncrementTokenVersion(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id].TokenVersion++
	return nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id].PasswordHash = hash
	return nil
}

func newTestJWT(t *testing.T) *JWTManager {
	t.Helper()
	dir := t.TempDir()
	priv := filepath.Join(dir, "private.pem")
	pub := filepath.Join(dir, "public.pem")
	require.NoError(t, GenerateKeyPair(priv, pub))

	m, err := NewJWTManager(config.JWTConfig{
		PrivateKeyPath:     priv,
		PublicKeyPath:      pub,
		AccessTokenExpire:  15 * time.Minute,
		RefreshTokenExpire: 24 * time.Hour,
		Issuer:             "memberaccess",
		Audience:           "memberaccess",
	})
	require.NoError(t, err)
	return m
}

type fixture struct {
	svc    *Service
	tokens *memTokenRepo
	users  *memUsers
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hash, err := core.HashPassword("correct horse battery")
	require.NoError(t, err)

	users := &memUsers{users: map[string]*UserInfo{
		"p-1": {
			ID:           "p-1",
			Email:        "manager@example.com",
			Name:         "Karim",
			PasswordHash: hash,
			Roles:        []string{"manager", "member"},
		},
	}}
	tokens := newMemTokenRepo()

	return fixture{
		svc:    NewService(tokens, newTestJWT(t), users, rdb, "test:blacklist:"),
		tokens: tokens,
		users:  users,
	}
}

func TestService_LoginIssuesRoleClaims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Login(ctx, "manager@example.com", "correct horse battery", ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.Tokens.TokenType)
	assert.Equal(t, []string{"manager", "member"}, resp.User.Roles)

	claims, err := f.svc.VerifyAccessToken(ctx, resp.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "p-1", claims.UserID)
	assert.Equal(t, []string{"manager", "member"}, claims.Roles)
	assert.NotEmpty(t, claims.ID)
}

func TestService_LoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "manager@example.com", "wrong password!", ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "nobody@example.com", "whatever123", ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_RefreshRotatesAndDetectsReuse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Login(ctx, "manager@example.com", "correct horse battery", ClientMeta{})
	require.NoError(t, err)

	second, err := f.svc.Refresh(ctx, first.Tokens.RefreshToken, ClientMeta{})
	require.NoError(t, err)
	assert.NotEqual(t, first.Tokens.RefreshToken, second.Tokens.RefreshToken)

	_, err = f.svc.Refresh(ctx, first.Tokens.RefreshToken, ClientMeta{})
	assert.ErrorIs(t, err, ErrTokenReuse)

	_, err = f.svc.Refresh(ctx, second.Tokens.RefreshToken, ClientMeta{})
	assert.ErrorIs(t, err, core.ErrTokenRevoked)
}

func TestService_RefreshUnknownToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Refresh(context.Background(), "nope", ClientMeta{})
	assert.ErrorIs(t, err, core.ErrTokenInvalid)
}

func TestService_LogoutBlacklistsAccessToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Login(ctx, "manager@example.com", "correct horse battery", ClientMeta{})
	require.NoError(t, err)

	claims, err := f.svc.VerifyAccessToken(ctx, resp.Tokens.AccessToken)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, resp.Tokens.RefreshToken, claims))

	_, err = f.svc.VerifyAccessToken(ctx, resp.Tokens.AccessToken)
	assert.ErrorIs(t, err, core.ErrTokenRevoked)

	_, err = f.svc.Refresh(ctx, resp.Tokens.RefreshToken, ClientMeta{})
	assert.ErrorIs(t, err, core.ErrTokenRevoked)
}

func TestService_LogoutAllInvalidatesIssuedTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Login(ctx, "manager@example.com", "correct horse battery", ClientMeta{})
	require.NoError(t, err)

	require.NoError(t, f.svc.LogoutAll(ctx, "p-1"))

	_, err = f.svc.VerifyAccessToken(ctx, resp.Tokens.AccessToken)
	assert.ErrorIs(t, err, core.ErrTokenRevoked)
}

func TestService_PurgeExpiredTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.tokens.Create(ctx, &RefreshToken{
		ID:        "old",
		UserID:    "p-1",
		ExpiresAt: time.Now().Add(-48 * time.Hour),
	}))

	n, err := f.svc.PurgeExpiredTokens(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestJWTManager_RejectsForeignKey(t *testing.T) {
	issuer := newTestJWT(t)
	other := newTestJWT(t)

	token, _, err := issuer.CreateAccessToken(AccessTokenClaims{UserID: "p-1"})
	require.NoError(t, err)

	_, err = other.ParseAccessToken(token)
	assert.ErrorIs(t, err, core.ErrTokenInvalid)

	claims, err := issuer.ParseAccessToken(token)
	require.NoError(t, err)
	assert.Empty(t, claims.Roles)
}

func TestService_ConcurrentRefreshRotatesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.Login(ctx, "manager@example.com", "correct horse battery", ClientMeta{})
	require.NoError(t, err)

	const callers = 8
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Refresh(ctx, resp.Tokens.RefreshToken, ClientMeta{}); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won)
}
