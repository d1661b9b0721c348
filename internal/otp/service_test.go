// AngelaMos | 2026
// service_test.go

package otp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assocly/memberaccess/internal/access"
	"github.com/assocly/memberaccess/internal/auth"
	"github.com/assocly/memberaccess/internal/config"
	"github.com/assocly/memberaccess/internal/core"
	"github.com/assocly/memberaccess/internal/ephemeral"
	"github.com/assocly/memberaccess/internal/member"
	"github.com/assocly/memberaccess/internal/ratelimit"
	"github.com/assocly/memberaccess/internal/tenant"
	"github.com/assocly/memberaccess/internal/vault"
)

type memMembers struct {
	mu      sync.Mutex
	members map[string]*member.Member
}

func (f *memMembers) GetByID(_ context.Context, id string) (*member.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[id]
	if !ok {
		return nil, fmt.Errorf("get member: %w", core.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (f *memMembers) FindByPhones(
	_ context.Context,
	phones []string,
) ([]member.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []member.Member
	for _, m := range f.members {
		for _, p := range phones {
			if m.Phone == p {
				out = append(out, *m)
				break
			}
		}
	}
	return out, nil
}

func (f *memMembers) GetByPrincipal(
	_ context.Context,
	principalID string,
) (*member.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.PrincipalID != nil && *m.PrincipalID == principalID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("get member by principal: %w", core.ErrNotFound)
}

func (f *memMembers) BindPrincipal(
	_ context.Context,
	memberID, principalID string,
	sealed []byte,
) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[memberID]
	if !ok || m.PrincipalID != nil {
		return false, nil
	}
	m.PrincipalID = &principalID
	m.SealedSecret = sealed
	return true, nil
}

type grant struct {
	principalID string
	role        access.Role
	tenantID    string
}

type memTenants struct {
	mu      sync.Mutex
	tenants map[string]*tenant.Tenant
	grants  []grant
}

func (f *memTenants) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok {
		return nil, fmt.Errorf("get tenant: %w", core.ErrNotFound)
	}
	return t, nil
}

func (f *memTenants) GrantRole(
	_ context.Context,
	principalID string,
	role access.Role,
	tenantID string,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := grant{principalID, role, tenantID}
	for _, existing := range f.grants {
		if existing == g {
			return nil
		}
	}
	f.grants = append(f.grants, g)
	return nil
}

// memPrincipals doubles as the native sign-in path.
type memPrincipals struct {
	mu      sync.Mutex
	byID    map[string]*auth.UserInfo
	creates atomic.Int32
}

func (f *memPrincipals) GetByID(_ context.Context, id string) (*auth.UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	return u, nil
}

func (f *memPrincipals) CreatePrincipal(
	_ context.Context,
	id, email, hash, name, _ string,
) (*auth.UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; ok {
		return nil, fmt.Errorf("create user: %w", core.ErrDuplicateKey)
	}
	f.creates.Add(1)
	u := &auth.UserInfo{ID: id, Email: email, Name: name, PasswordHash: hash}
	f.byID[id] = u
	return u, nil
}

func (f *memPrincipals) Login(
	_ context.Context,
	email, password string,
	_ auth.ClientMeta,
) (*auth.AuthResponse, error) {
	f.mu.Lock()
	var found *auth.UserInfo
	for _, u := range f.byID {
		if u.Email == email {
			found = u
		}
	}
	f.mu.Unlock()

	if found == nil {
		return nil, auth.ErrInvalidCredentials
	}
	ok, err := core.VerifyPassword(password, found.PasswordHash)
	if err != nil || !ok {
		return nil, auth.ErrInvalidCredentials
	}

	return &auth.AuthResponse{
		User: auth.UserResponse{ID: found.ID, Email: found.Email, Name: found.Name},
		Tokens: auth.TokenResponse{
			AccessToken:  "access-" + found.ID,
			RefreshToken: "refresh-" + found.ID,
			TokenType:    "Bearer",
		},
	}, nil
}

type memChallenges struct {
	mu    sync.Mutex
	items []*Challenge
}

func (f *memChallenges) Create(_ context.Context, c *Challenge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.items = append(f.items, &cp)
	return nil
}

func (f *memChallenges) Supersede(
	_ context.Context,
	memberID, keepID string,
	now time.Time,
) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, c := range f.items {
		if c.MemberID == memberID && c.ID != keepID && !c.Consumed {
			c.Consumed = true
			c.ConsumedAt = &now
			n++
		}
	}
	return n, nil
}

func (f *memChallenges) Discard(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.items {
		if c.ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *memChallenges) Consume(
	_ context.Context,
	memberID, codeHash string,
	now time.Time,
) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.items {
		if c.MemberID == memberID && c.CodeHash == codeHash &&
			!c.Consumed && now.Before(c.ExpiresAt) {
			c.Consumed = true
			c.ConsumedAt = &now
			return c.ID, nil
		}
	}
	return "", fmt.Errorf("consume challenge: %w", core.ErrInvalidOrExpired)
}

func (f *memChallenges) DeleteStale(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*Challenge
	var n int64
	for _, c := range f.items {
		if c.CreatedAt.Before(before) && (c.Consumed || c.ExpiresAt.Before(before)) {
			n++
			continue
		}
		kept = append(kept, c)
	}
	f.items = kept
	return n, nil
}

func (f *memChallenges) CountUsable(_ context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.items {
		if !c.Consumed && now.Before(c.ExpiresAt) {
			n++
		}
	}
	return n, nil
}

type captureSender struct {
	mu       sync.Mutex
	messages []string
	fail     error
}

func (s *captureSender) Send(_ context.Context, _, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.messages = append(s.messages, message)
	return nil
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

func (s *captureSender) lastCode(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.messages)
	code := codePattern.FindString(s.messages[len(s.messages)-1])
	require.NotEmpty(t, code)
	return code
}

const (
	memberPhone = "01712345678"
	memberID    = "mem-1"
	tenantID    = "tenant-1"
)

type harness struct {
	svc        *Service
	members    *memMembers
	tenants    *memTenants
	principals *memPrincipals
	challenges *memChallenges
	sender     *captureSender
	metrics    *Metrics
	now        time.Time
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func testOTPConfig() config.OTPConfig {
	return config.OTPConfig{
		CodeLength:      6,
		CodeTTL:         5 * time.Minute,
		BridgeTokenTTL:  5 * time.Minute,
		MaxRequests:     3,
		Window:          time.Minute,
		VerifyAttempts:  10,
		VerifyWindow:    5 * time.Minute,
		MessageTemplate: "Your sign-in code is %s. It expires in %d minutes.",
		DeliveryTimeout: time.Second,
		StoreTimeout:    time.Second,
		PrincipalDomain: "members.test",
	}
}

func newHarness(t *testing.T, cfg config.OTPConfig) *harness {
	t.Helper()

	identity, err := vault.GenerateIdentity()
	require.NoError(t, err)
	sealer, err := vault.NewSealer(identity)
	require.NoError(t, err)

	h := &harness{
		members: &memMembers{members: map[string]*member.Member{
			memberID: {
				ID:       memberID,
				TenantID: tenantID,
				FullName: "Rahim Uddin",
				Phone:    memberPhone,
				Status:   member.StatusActive,
			},
		}},
		tenants: &memTenants{tenants: map[string]*tenant.Tenant{
			tenantID: {ID: tenantID, Name: "Dhaka Traders", Status: tenant.StatusActive},
		}},
		principals: &memPrincipals{byID: map[string]*auth.UserInfo{}},
		challenges: &memChallenges{},
		sender:     &captureSender{},
		metrics:    NewMetrics(prometheus.NewRegistry()),
		now:        time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }

	h.svc = NewService(Deps{
		Members:    h.members,
		Tenants:    h.tenants,
		Principals: h.principals,
		SignIn:     h.principals,
		Challenges: h.challenges,
		Limiter: ratelimit.NewMemoryLimiter(
			ratelimit.Policy{Limit: cfg.MaxRequests, Window: cfg.Window},
			ratelimit.WithClock(clock),
		),
		VerifyLimiter: ratelimit.NewMemoryLimiter(
			ratelimit.Policy{Limit: cfg.VerifyAttempts, Window: cfg.VerifyWindow},
			ratelimit.WithClock(clock),
		),
		Bridge:  ephemeral.NewMemoryStore(100, time.Hour),
		Sender:  h.sender,
		Sealer:  sealer,
		Metrics: h.metrics,
	}, cfg, config.PhoneConfig{CountryCode: "880", TrunkPrefix: "0"})
	h.svc.now = clock

	return h
}

func TestOTP_EndToEnd(t *testing.T) {
	h := newHarness(t, testOTPConfig())
	ctx := context.Background()

	req, err := h.svc.RequestCode(ctx, memberPhone)
	require.NoError(t, err)
	assert.Equal(t, "Rahim Uddin", req.DisplayName)
	assert.Equal(t, tenantID, req.TenantID)
	assert.Equal(t, "Dhaka Traders", req.TenantName)
	assert.Empty(t, req.Code)
	assert.Len(t, h.challenges.items, 1)

	h.advance(2 * time.Minute)
	verified, err := h.svc.VerifyCode(ctx, memberPhone, h.sender.lastCode(t))
	require.NoError(t, err)
	assert.NotEmpty(t, verified.BridgeToken)
	assert.NotEmpty(t, verified.PrincipalID)

	h.advance(time.Minute)
	session, err := h.svc.ExchangeBridgeToken(
		ctx, verified.BridgeToken, verified.PrincipalID, auth.ClientMeta{},
	)
	require.NoError(t, err)
	assert.Equal(t, "access-"+verified.PrincipalID, session.Tokens.AccessToken)
	assert.Equal(t, "member-mem-1@members.test", session.User.Email)

	_, err = h.svc.ExchangeBridgeToken(
		ctx, verified.BridgeToken, verified.PrincipalID, auth.ClientMeta{},
	)
	assert.ErrorIs(t, err, core.ErrInvalidOrExpired)

	assert.Equal(t, 1.0, counterValue(t, h.metrics.requests.WithLabelValues("sent")))
	assert.Equal(t, 1.0, counterValue(t, h.metrics.exchanges.WithLabelValues("exchanged")))
	assert.Equal(t, 1.0, counterValue(t, h.metrics.exchanges.WithLabelValues("invalid")))
}

func TestOTP_AcceptsEveryPhoneSpelling(t *testing.T) {
	h := newHarness(t, testOTPConfig())

	for _, phone := range []string{"+8801712345678", "8801712345678", "1712345678", "017-1234-5678"} {
		_, err := h.svc.RequestCode(context.Background(), phone)
		require.NoError(t, err, phone)
		h.advance(time.Minute)
	}
}

func TestOTP_RequestCodeRateLimited(t *testing.T) {
	h := newHarness(t, testOTPConfig())
	ctx := context.Background()

	for i := range 3 {
		_, err := h.svc.RequestCode(ctx, memberPhone)
		require.NoError(t, err, "request %d", i+1)
		h.advance(10 * time.Second)
	}

	_, err := h.svc.RequestCode(ctx, memberPhone)
	var rl *RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 60, rl.RetryAfterSeconds())
	assert.ErrorIs(t, err, core.ErrRateLimited)
	assert.Len(t, h.challenges.items, 3)

	appErr, ok := core.AsAppError(toAppError(err))
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, appErr.StatusCode)
	assert.Equal(t, 60, appErr.Details["retry_after"])

	h.advance(time.Minute)
	_, err = h.svc.RequestCode(ctx, memberPhone)
	assert.NoError(t, err)
}

func TestOTP_CodeIsSingleUse(t *testing.T) {
	h := newHarness(t, testOTPConfig())
	ctx := context.Background()

	_, err := h.svc.RequestCode(ctx, memberPhone)
	require.NoError(t, err)
	code := h.sender.lastCode(t)

	_, err = h.svc.VerifyCode(ctx, memberPhone, code)
	require.NoError(t, err)

	_, err = h.svc.VerifyCode(ctx, memberPhone, code)
	assert.ErrorIs(t, err, core.ErrInvalidOrExpired)
}

func TestOTP_ConcurrentVerifyWinsOnce(t *testing.T) {
	h := newHarness(t, testOTPConfig())
	ctx := context.Background()

	_, err := h.svc.RequestCode(ctx, memberPhone)
	require.NoError(t, err)
	code := h.sender.lastCode(t)

	var (
		wg      sync.WaitGroup
		wins    atomic.Int32
		invalid atomic.Int32
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.VerifyCode(ctx, memberPhone, code)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, core.ErrInvalidOrExpired):
				invalid.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(7), invalid.Load())
}

func TestOTP_VerifyRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(h *harness, code string) string
	}{
		{
			name:   "wrong code",
			mutate: func(_ *harness, code string) string { return flipDigit(code) },
		},
		{
			name:   "malformed code",
			mutate: func(_ *harness, _ string) string { return "12ab56" },
		},
		{
			name:   "short code",
			mutate: func(_ *harness, code string) string { return code[:5] },
		},
		{
			name: "expired code",
			mutate: func(h *harness, code string) string {
				h.advance(5*time.Minute + time.Second)
				return code
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testOTPConfig())
			ctx := context.Background()

			_, err := h.svc.RequestCode(ctx, memberPhone)
			require.NoError(t, err)

			code := tt.mutate(h, h.sender.lastCode(t))
			_, err = h.svc.VerifyCode(ctx, memberPhone, code)
			assert.ErrorIs(t, err, core.ErrInvalidOrExpired)
		})
	}
}

func TestOTP_NewCodeSupersedesOld(t *testing.T) {
	h := newHarness(t, testOTPConfig())
	ctx := context.Background()

	_, err := h.svc.RequestCode(ctx, memberPhone)
	require.NoError(t, err)
	first := h.sender.lastCode(t)

	_, err = h.svc.RequestCode(ctx, memberPhone)
	require.NoError(t, err)
	second := h.sender.lastCode(t)

	if first != second {
		_, err = h.svc.VerifyCode(ctx, memberPhone, first)
		assert.ErrorIs(t, err, core.ErrInvalidOrExpired)
	}

	_, err = h.svc.VerifyCode(ctx, memberPhone, second)
	assert.NoError(t, err)
}

func TestOTP_FailedResendKeepsPreviousCode(t *testing.T) {
	h := newHarness(t, testOTPConfig())
	ctx := context.Background()

	_, err := h.svc.RequestCode(ctx, memberPhone)
	require.NoError(t, err)
	delivered := h.sender.lastCode(t)

	h.advance(10 * time.Second)
	h.sender.fail = errors.New("temporarily unavailable")
	_, err = h.svc.RequestCode(ctx, memberPhone)
	require.ErrorIs(t, err, core.ErrTransient)
	assert.Len(t, h.challenges.items, 1, "undelivered challenge is discarded")

	usable, err := h.svc.UsableChallenges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, usable)

	h.sender.fail = nil
	_, err = h.svc.VerifyCode(ctx, memberPhone, delivered)
	assert.NoError(t, err)
}

func TestOTP_VerifyAttemptsLimitedPerMember(t *testing.T) {
	cfg := testOTPConfig()
	cfg.VerifyAttempts = 3
	h := newHarness(t, cfg)
	ctx := context.Background()

	_, err := h.svc.RequestCode(ctx, memberPhone)
	require.NoError(t, err)
	code := h.sender.lastCode(t)

	for i := range 3 {
		_, err = h.svc.VerifyCode(ctx, memberPhone, flipDigit(code))
		require.ErrorIs(t, err, core.ErrInvalidOrExpired, "guess %d", i+1)
	}

	_, err = h.svc.VerifyCode(ctx, memberPhone, code)
	var rl *RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 300, rl.RetryAfterSeconds())

	usable, err := h.svc.UsableChallenges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, usable, "a throttled guess never reaches the challenge")

	h.advance(cfg.VerifyWindow)
	_, err = h.svc.VerifyCode(ctx, memberPhone, code)
	assert.ErrorIs(t, err, core.ErrInvalidOrExpired, "the code expired with the window")
}

func TestOTP_RequestCodeLookupFailures(t *testing.T) {
	tests := []struct {
		name   string
		phone  string
		mutate func(h *harness)
		want   error
	}{
		{
			name:  "unknown phone",
			phone: "01899999999",
			want:  core.ErrNotFound,
		},
		{
			name:  "garbage phone",
			phone: "call me",
			want:  ErrInvalidPhone,
		},
		{
			name:  "inactive member",
			phone: memberPhone,
			mutate: func(h *harness) {
				h.members.members[memberID].Status = member.StatusSuspended
			},
			want: core.ErrForbidden,
		},
		{
			name:  "suspended tenant",
			phone: memberPhone,
			mutate: func(h *harness) {
				h.tenants.tenants[tenantID].Status = tenant.StatusSuspended
			},
			want: core.ErrForbidden,
		},
		{
			name:  "deleted tenant",
			phone: memberPhone,
			mutate: func(h *harness) {
				h.tenants.tenants[tenantID].Status = tenant.StatusDeleted
			},
			want: core.ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testOTPConfig())
			if tt.mutate != nil {
				tt.mutate(h)
			}

			_, err := h.svc.RequestCode(context.Background(), tt.phone)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, h.challenges.items)
			assert.Empty(t, h.sender.messages)
		})
	}
}

func TestOTP_DeliveryFailureIsTransient(t *testing.T) {
	h := newHarness(t, testOTPConfig())
	h.sender.fail = errors.New("gateway down")

	_, err := h.svc.RequestCode(context.Background(), memberPhone)
	assert.ErrorIs(t, err, core.ErrTransient)

	appErr, ok := core.AsAppError(toAppError(err))
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.StatusCode)
}

func TestOTP_ExposeCode(t *testing.T) {
	cfg := testOTPConfig()
	cfg.ExposeCode = true
	h := newHarness(t, cfg)

	res, err := h.svc.RequestCode(context.Background(), memberPhone)
	require.NoError(t, err)
	assert.Equal(t, h.sender.lastCode(t), res.Code)
}

func TestOTP_BridgeTokenBinding(t *testing.T) {
	tests := []struct {
		name        string
		token       func(real string) string
		principalID func(real string) string
	}{
		{
			name:        "wrong principal",
			token:       func(real string) string { return real },
			principalID: func(string) string { return "00000000-0000-0000-0000-000000000000" },
		},
		{
			name:        "wrong token",
			token:       func(string) string { return "not-a-bridge-token" },
			principalID: func(real string) string { return real },
		},
		{
			name:        "empty principal",
			token:       func(real string) string { return real },
			principalID: func(string) string { return "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testOTPConfig())
			ctx := context.Background()

			_, err := h.svc.RequestCode(ctx, memberPhone)
			require.NoError(t, err)
			verified, err := h.svc.VerifyCode(ctx, memberPhone, h.sender.lastCode(t))
			require.NoError(t, err)

			_, err = h.svc.ExchangeBridgeToken(
				ctx,
				tt.token(verified.BridgeToken),
				tt.principalID(verified.PrincipalID),
				auth.ClientMeta{},
			)
			require.ErrorIs(t, err, core.ErrInvalidOrExpired)

			appErr, ok := core.AsAppError(toAppError(err))
			require.True(t, ok)
			assert.Equal(t, "INVALID_OR_EXPIRED", appErr.Code)
		})
	}
}

func TestOTP_MismatchBurnsBridgeToken(t *testing.T) {
	h := newHarness(t, testOTPConfig())
	ctx := context.Background()

	_, err := h.svc.RequestCode(ctx, memberPhone)
	require.NoError(t, err)
	verified, err := h.svc.VerifyCode(ctx, memberPhone, h.sender.lastCode(t))
	require.NoError(t, err)

	_, err = h.svc.ExchangeBridgeToken(ctx, verified.BridgeToken, "someone-else", auth.ClientMeta{})
	require.ErrorIs(t, err, core.ErrInvalidOrExpired)

	_, err = h.svc.ExchangeBridgeToken(ctx, verified.BridgeToken, verified.PrincipalID, auth.ClientMeta{})
	assert.ErrorIs(t, err, core.ErrInvalidOrExpired)
}

func TestOTP_PrincipalProvisionedOnce(t *testing.T) {
	h := newHarness(t, testOTPConfig())
	ctx := context.Background()

	var principals []string
	for range 2 {
		_, err := h.svc.RequestCode(ctx, memberPhone)
		require.NoError(t, err)
		verified, err := h.svc.VerifyCode(ctx, memberPhone, h.sender.lastCode(t))
		require.NoError(t, err)
		principals = append(principals, verified.PrincipalID)
		h.advance(time.Minute)
	}

	assert.Equal(t, principals[0], principals[1])
	assert.Equal(t, int32(1), h.principals.creates.Load())
	assert.Equal(t, []grant{{principals[0], access.RoleMember, tenantID}}, h.tenants.grants)

	bound := h.members.members[memberID]
	require.NotNil(t, bound.PrincipalID)
	assert.Equal(t, principals[0], *bound.PrincipalID)
}

func TestOTP_ProvisioningResumesAfterPartialRun(t *testing.T) {
	h := newHarness(t, testOTPConfig())
	ctx := context.Background()

	m := h.members.members[memberID]
	require.NoError(t, h.svc.bindNewPrincipal(ctx, m))
	assert.Zero(t, h.principals.creates.Load())

	_, err := h.svc.RequestCode(ctx, memberPhone)
	require.NoError(t, err)
	verified, err := h.svc.VerifyCode(ctx, memberPhone, h.sender.lastCode(t))
	require.NoError(t, err)

	assert.Equal(t, *h.members.members[memberID].PrincipalID, verified.PrincipalID)
	assert.Equal(t, int32(1), h.principals.creates.Load())

	_, err = h.svc.ExchangeBridgeToken(ctx, verified.BridgeToken, verified.PrincipalID, auth.ClientMeta{})
	assert.NoError(t, err)
}

func TestOTP_PurgeStale(t *testing.T) {
	h := newHarness(t, testOTPConfig())
	ctx := context.Background()

	_, err := h.svc.RequestCode(ctx, memberPhone)
	require.NoError(t, err)
	_, err = h.svc.RequestCode(ctx, memberPhone)
	require.NoError(t, err)

	usable, err := h.svc.UsableChallenges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, usable)

	h.advance(10 * time.Minute)
	n, err := h.svc.PurgeStale(ctx, h.now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func flipDigit(code string) string {
	b := []byte(code)
	if b[0] == '9' {
		b[0] = '0'
	} else {
		b[0]++
	}
	return string(b)
}
