// AngelaMos | 2026
// service.go

package otp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/assocly/memberaccess/internal/access"
	"github.com/assocly/memberaccess/internal/auth"
	"github.com/assocly/memberaccess/internal/config"
	"github.com/assocly/memberaccess/internal/core"
	"github.com/assocly/memberaccess/internal/ephemeral"
	"github.com/assocly/memberaccess/internal/member"
	"github.com/assocly/memberaccess/internal/ratelimit"
	"github.com/assocly/memberaccess/internal/tenant"
	"github.com/assocly/memberaccess/internal/user"
)

const principalSecretBytes = 32

type TenantDirectory interface {
	GetTenant(ctx context.Context, id string) (*tenant.Tenant, error)
	GrantRole(
		ctx context.Context,
		principalID string,
		role access.Role,
		tenantID string,
	) error
}

type PrincipalStore interface {
	GetByID(ctx context.Context, id string) (*auth.UserInfo, error)
	CreatePrincipal(
		ctx context.Context,
		id, email, passwordHash, name, kind string,
	) (*auth.UserInfo, error)
}

// SignIn is the identity provider's native password sign-in.
type SignIn interface {
	Login(
		ctx context.Context,
		email, password string,
		meta auth.ClientMeta,
	) (*auth.AuthResponse, error)
}

type SecretSealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// Deps are the service's collaborators. Limiter throttles code requests per
// phone; VerifyLimiter caps code guesses per member.
type Deps struct {
	Members       member.Repository
	Tenants       TenantDirectory
	Principals    PrincipalStore
	SignIn        SignIn
	Challenges    ChallengeRepository
	Limiter       ratelimit.Limiter
	VerifyLimiter ratelimit.Limiter
	Bridge        ephemeral.Store
	Sender        Sender
	Sealer        SecretSealer
	Metrics       *Metrics
}

type Service struct {
	Deps
	cfg   config.OTPConfig
	phone PhoneNormalizer
	now   func() time.Time
}

func NewService(
	deps Deps,
	cfg config.OTPConfig,
	phone config.PhoneConfig,
) *Service {
	return &Service{
		Deps: deps,
		cfg:  cfg,
		phone: PhoneNormalizer{
			CountryCode: phone.CountryCode,
			TrunkPrefix: phone.TrunkPrefix,
		},
		now: time.Now,
	}
}

type RequestResult struct {
	MemberID    string
	DisplayName string
	TenantID    string
	TenantName  string
	ExpiresAt   time.Time
	// Code is only set when otp.expose_code is enabled.
	Code string
}

type VerifyResult struct {
	BridgeToken string
	PrincipalID string
	ExpiresAt   time.Time
}

type bridgeClaim struct {
	PrincipalID string    `json:"principal_id"`
	MemberID    string    `json:"member_id"`
	IssuedAt    time.Time `json:"issued_at"`
}

// RequestCode issues a fresh code to the member owning phone.
func (s *Service) RequestCode(
	ctx context.Context,
	phone string,
) (res *RequestResult, err error) {
	ctx, span := core.StartSpan(ctx, "otp.RequestCode")
	defer func() {
		s.Metrics.requests.WithLabelValues(outcome(err, "sent")).Inc()
		if err != nil {
			core.SetSpanError(ctx, err)
		}
		span.End()
	}()

	number, err := s.phone.Normalize(phone)
	if err != nil {
		return nil, err
	}

	m, t, err := s.resolveMember(ctx, number)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("member.id", m.ID))

	decision, err := s.Limiter.Hit(ctx, ratelimit.Key{
		Subject: number.Canonical,
		Purpose: ratelimit.PurposeOTP,
	})
	if err != nil {
		return nil, s.storeError("rate limit", err)
	}
	if !decision.Allowed {
		return nil, &RateLimitError{RetryAfter: decision.RetryAfter}
	}

	code, err := core.GenerateNumericCode(s.cfg.CodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	now := s.now()
	challenge := &Challenge{
		ID:        ulid.Make().String(),
		MemberID:  m.ID,
		CodeHash:  core.HashCode(m.ID, code),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.CodeTTL),
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	err = s.Challenges.Create(storeCtx, challenge)
	cancel()
	if err != nil {
		return nil, s.storeError("create challenge", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.DeliveryTimeout)
	err = s.Sender.Send(sendCtx, number.Canonical, s.message(code))
	cancel()
	if err != nil {
		slog.ErrorContext(ctx, "otp delivery failed",
			"member_id", m.ID,
			"error", err,
		)
		s.discard(ctx, challenge.ID)
		return nil, fmt.Errorf("deliver code: %w", core.ErrTransient)
	}

	storeCtx, cancel = context.WithTimeout(ctx, s.cfg.StoreTimeout)
	retired, err := s.Challenges.Supersede(storeCtx, m.ID, challenge.ID, now)
	cancel()
	if err != nil {
		// The new code is delivered and usable; older ones simply live out
		// their TTL.
		slog.WarnContext(ctx, "retire older otp challenges",
			"member_id", m.ID,
			"error", err,
		)
	}

	slog.InfoContext(ctx, "otp code issued",
		"member_id", m.ID,
		"challenge_id", challenge.ID,
		"superseded", retired,
		"remaining", decision.Remaining,
	)

	res = &RequestResult{
		MemberID:    m.ID,
		DisplayName: m.FullName,
		TenantID:    t.ID,
		TenantName:  t.Name,
		ExpiresAt:   challenge.ExpiresAt,
	}
	if s.cfg.ExposeCode {
		res.Code = code
	}
	return res, nil
}

// VerifyCode consumes a matching code and hands back a single-use bridge
// token for the member's backing principal, provisioning that principal on
// first sign-in.
func (s *Service) VerifyCode(
	ctx context.Context,
	phone, code string,
) (res *VerifyResult, err error) {
	ctx, span := core.StartSpan(ctx, "otp.VerifyCode")
	defer func() {
		s.Metrics.verifications.WithLabelValues(outcome(err, "verified")).Inc()
		if err != nil {
			core.SetSpanError(ctx, err)
		}
		span.End()
	}()

	number, err := s.phone.Normalize(phone)
	if err != nil {
		return nil, err
	}

	if !s.wellFormedCode(code) {
		return nil, fmt.Errorf("verify code: %w", core.ErrInvalidOrExpired)
	}

	m, _, err := s.resolveMember(ctx, number)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("member.id", m.ID))

	attempt, err := s.VerifyLimiter.Hit(ctx, ratelimit.Key{
		Subject: m.ID,
		Purpose: ratelimit.PurposeOTPVerify,
	})
	if err != nil {
		return nil, s.storeError("verify rate limit", err)
	}
	if !attempt.Allowed {
		slog.WarnContext(ctx, "otp verify attempts exhausted", "member_id", m.ID)
		return nil, &RateLimitError{RetryAfter: attempt.RetryAfter}
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	challengeID, err := s.Challenges.Consume(
		storeCtx,
		m.ID,
		core.HashCode(m.ID, code),
		s.now(),
	)
	cancel()
	if err != nil {
		if errors.Is(err, core.ErrInvalidOrExpired) {
			return nil, err
		}
		return nil, s.storeError("consume challenge", err)
	}

	principalID, err := s.ensurePrincipal(ctx, m)
	if err != nil {
		return nil, err
	}

	token, err := core.GenerateBridgeToken()
	if err != nil {
		return nil, fmt.Errorf("generate bridge token: %w", err)
	}

	now := s.now()
	payload, err := json.Marshal(bridgeClaim{
		PrincipalID: principalID,
		MemberID:    m.ID,
		IssuedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("encode bridge claim: %w", err)
	}

	storeCtx, cancel = context.WithTimeout(ctx, s.cfg.StoreTimeout)
	err = s.Bridge.Put(storeCtx, core.HashToken(token), payload, s.cfg.BridgeTokenTTL)
	cancel()
	if err != nil {
		return nil, s.storeError("store bridge token", err)
	}

	slog.InfoContext(ctx, "otp code verified",
		"member_id", m.ID,
		"challenge_id", challengeID,
		"principal_id", principalID,
	)

	return &VerifyResult{
		BridgeToken: token,
		PrincipalID: principalID,
		ExpiresAt:   now.Add(s.cfg.BridgeTokenTTL),
	}, nil
}

// ExchangeBridgeToken trades a bridge token for a real session. The token
// is consumed before anything else is checked, so it is single use whatever
// the outcome, and every failure looks the same to the caller.
func (s *Service) ExchangeBridgeToken(
	ctx context.Context,
	token, principalID string,
	meta auth.ClientMeta,
) (res *auth.AuthResponse, err error) {
	ctx, span := core.StartSpan(ctx, "otp.ExchangeBridgeToken")
	defer func() {
		s.Metrics.exchanges.WithLabelValues(outcome(err, "exchanged")).Inc()
		if err != nil {
			core.SetSpanError(ctx, err)
		}
		span.End()
	}()

	invalid := fmt.Errorf("exchange bridge token: %w", core.ErrInvalidOrExpired)
	if token == "" || principalID == "" {
		return nil, invalid
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	payload, err := s.Bridge.Consume(storeCtx, core.HashToken(token))
	cancel()
	if err != nil {
		if errors.Is(err, ephemeral.ErrNotFound) {
			return nil, invalid
		}
		return nil, s.storeError("consume bridge token", err)
	}

	var claim bridgeClaim
	if err := json.Unmarshal(payload, &claim); err != nil {
		slog.ErrorContext(ctx, "malformed bridge claim", "error", err)
		return nil, invalid
	}

	if subtle.ConstantTimeCompare([]byte(claim.PrincipalID), []byte(principalID)) != 1 {
		slog.WarnContext(ctx, "bridge token principal mismatch",
			"member_id", claim.MemberID,
		)
		return nil, invalid
	}

	m, err := s.Members.GetByPrincipal(ctx, principalID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, invalid
		}
		return nil, s.storeError("load member", err)
	}

	secret, err := s.Sealer.Open(m.SealedSecret)
	if err != nil {
		return nil, fmt.Errorf("open member secret: %w", err)
	}

	resp, err := s.SignIn.Login(ctx, s.principalEmail(m.ID), string(secret), meta)
	if err != nil {
		return nil, fmt.Errorf("sign in member principal: %w", err)
	}

	slog.InfoContext(ctx, "bridge token exchanged",
		"member_id", m.ID,
		"principal_id", principalID,
	)
	return resp, nil
}

// resolveMember finds the member for number and checks that both the member
// and its tenant are active.
func (s *Service) resolveMember(
	ctx context.Context,
	number PhoneNumber,
) (*member.Member, *tenant.Tenant, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	members, err := s.Members.FindByPhones(ctx, number.Variants)
	if err != nil {
		return nil, nil, s.storeError("find member", err)
	}
	if len(members) == 0 {
		return nil, nil, fmt.Errorf("resolve member: %w", core.ErrNotFound)
	}

	m := &members[0]
	if !m.IsActive() {
		return nil, nil, fmt.Errorf("member %s is %s: %w", m.ID, m.Status, core.ErrForbidden)
	}

	t, err := s.Tenants.GetTenant(ctx, m.TenantID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil, fmt.Errorf("tenant %s: %w", m.TenantID, core.ErrForbidden)
		}
		return nil, nil, s.storeError("load tenant", err)
	}
	if !t.IsActive() {
		return nil, nil, fmt.Errorf("tenant %s is %s: %w", t.ID, t.Status, core.ErrForbidden)
	}

	return m, t, nil
}

// ensurePrincipal makes sure m is bound to a principal that exists and holds
// the member role in m's tenant. The binding is written before the principal
// row, so a run interrupted at any step is completed by the next one.
func (s *Service) ensurePrincipal(
	ctx context.Context,
	m *member.Member,
) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if !m.HasPrincipal() {
		if err := s.bindNewPrincipal(ctx, m); err != nil {
			return "", err
		}
	}
	principalID := *m.PrincipalID

	_, err := s.Principals.GetByID(ctx, principalID)
	if errors.Is(err, core.ErrNotFound) {
		err = s.createPrincipal(ctx, m)
	}
	if err != nil {
		return "", s.storeError("load principal", err)
	}

	err = s.Tenants.GrantRole(ctx, principalID, access.RoleMember, m.TenantID)
	if err != nil {
		return "", s.storeError("grant member role", err)
	}

	return principalID, nil
}

func (s *Service) bindNewPrincipal(ctx context.Context, m *member.Member) error {
	secret, err := core.GenerateSecureToken(principalSecretBytes)
	if err != nil {
		return fmt.Errorf("generate principal secret: %w", err)
	}

	sealed, err := s.Sealer.Seal([]byte(secret))
	if err != nil {
		return fmt.Errorf("seal principal secret: %w", err)
	}

	principalID := uuid.New().String()
	bound, err := s.Members.BindPrincipal(ctx, m.ID, principalID, sealed)
	if err != nil {
		return s.storeError("bind principal", err)
	}

	if !bound {
		current, err := s.Members.GetByID(ctx, m.ID)
		if err != nil {
			return s.storeError("reload member", err)
		}
		if !current.HasPrincipal() {
			return fmt.Errorf("member %s lost principal binding: %w", m.ID, core.ErrTransient)
		}
		*m = *current
		return nil
	}

	m.PrincipalID = &principalID
	m.SealedSecret = sealed
	core.AddSpanEvent(ctx, "principal.bound",
		attribute.String("principal.id", principalID),
	)
	slog.InfoContext(ctx, "member principal bound",
		"member_id", m.ID,
		"principal_id", principalID,
	)
	return nil
}

func (s *Service) createPrincipal(ctx context.Context, m *member.Member) error {
	secret, err := s.Sealer.Open(m.SealedSecret)
	if err != nil {
		return fmt.Errorf("open principal secret: %w", err)
	}

	hash, err := core.HashPassword(string(secret))
	if err != nil {
		return fmt.Errorf("hash principal secret: %w", err)
	}

	_, err = s.Principals.CreatePrincipal(
		ctx,
		*m.PrincipalID,
		s.principalEmail(m.ID),
		hash,
		m.FullName,
		user.KindMember,
	)
	if errors.Is(err, core.ErrDuplicateKey) {
		return nil
	}
	if err == nil {
		core.AddSpanEvent(ctx, "principal.created")
	}
	return err
}

func (s *Service) principalEmail(memberID string) string {
	return "member-" + strings.ToLower(memberID) + "@" + s.cfg.PrincipalDomain
}

func (s *Service) message(code string) string {
	return fmt.Sprintf(
		s.cfg.MessageTemplate,
		code,
		int(s.cfg.CodeTTL.Minutes()),
	)
}

func (s *Service) wellFormedCode(code string) bool {
	if len(code) != s.cfg.CodeLength {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// storeError logs a collaborator failure and classifies it. Timeouts and
// connection faults become ErrTransient; the rest stay internal.
func (s *Service) storeError(op string, err error) error {
	if core.IsTransient(err) {
		slog.Warn("otp dependency unavailable", "op", op, "error", err)
		return fmt.Errorf("%s: %w: %w", op, core.ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// discard drops an undelivered challenge. Failure only leaves a code nobody
// received to expire on its own.
func (s *Service) discard(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StoreTimeout)
	defer cancel()
	if err := s.Challenges.Discard(ctx, id); err != nil {
		slog.WarnContext(ctx, "discard undelivered otp challenge",
			"challenge_id", id,
			"error", err,
		)
	}
}

// PurgeStale deletes challenges that can no longer be used and were created
// before the cutoff.
func (s *Service) PurgeStale(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.Challenges.DeleteStale(ctx, before)
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "purged stale otp challenges", "deleted", n)
	return n, nil
}

func (s *Service) UsableChallenges(ctx context.Context) (int, error) {
	return s.Challenges.CountUsable(ctx, s.now())
}
