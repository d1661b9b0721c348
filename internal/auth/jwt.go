// AngelaMos | 2026
// jwt.go

package auth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/assocly/memberaccess/internal/config"
	"github.com/assocly/memberaccess/internal/core"
	"github.com/assocly/memberaccess/internal/middleware"
)

const (
	claimRoles        = "roles"
	claimTokenVersion = "token_version"
	claimType         = "type"
	tokenTypeAccess   = "access"

	clockSkew = 30 * time.Second
)

// JWTManager signs access tokens with a single ES256 key and publishes its
// public half as a JWK set.
type JWTManager struct {
	signer jwk.Key
	verify jwk.Key
	jwks   jwk.Set
	cfg    config.JWTConfig
	now    func() time.Time
}

func NewJWTManager(cfg config.JWTConfig) (*JWTManager, error) {
	raw, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}

	signer, err := jwk.ParseKey(raw, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	if err := stampKey(signer); err != nil {
		return nil, err
	}

	verify, err := signer.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("public half of signing key: %w", err)
	}
	if err := verify.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, fmt.Errorf("mark key usage: %w", err)
	}

	set := jwk.NewSet()
	if err := set.AddKey(verify); err != nil {
		return nil, fmt.Errorf("build jwks: %w", err)
	}

	return &JWTManager{
		signer: signer,
		verify: verify,
		jwks:   set,
		cfg:    cfg,
		now:    time.Now,
	}, nil
}

// stampKey pins the algorithm and derives the key id from the RFC 7638
// thumbprint, so restarts with the same key publish the same kid.
func stampKey(key jwk.Key) error {
	if err := key.Set(jwk.AlgorithmKey, jwa.ES256()); err != nil {
		return fmt.Errorf("pin algorithm: %w", err)
	}
	thumb, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return fmt.Errorf("key thumbprint: %w", err)
	}
	kid := base64.RawURLEncoding.EncodeToString(thumb)[:16]
	if err := key.Set(jwk.KeyIDKey, kid); err != nil {
		return fmt.Errorf("set key id: %w", err)
	}
	return nil
}

// GenerateKeyPair writes a fresh P-256 key pair as PEM.
func GenerateKeyPair(privateKeyPath, publicKeyPath string) error {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate signing key: %w", err)
	}

	key, err := jwk.Import(ecKey)
	if err != nil {
		return fmt.Errorf("import signing key: %w", err)
	}
	if err := stampKey(key); err != nil {
		return err
	}
	pub, err := key.PublicKey()
	if err != nil {
		return fmt.Errorf("public half of signing key: %w", err)
	}

	for _, out := range []struct {
		path string
		key  jwk.Key
		mode os.FileMode
	}{
		{privateKeyPath, key, 0o600},
		{publicKeyPath, pub, 0o644},
	} {
		encoded, err := jwk.Pem(out.key)
		if err != nil {
			return fmt.Errorf("encode %s: %w", out.path, err)
		}
		if err := os.WriteFile(out.path, encoded, out.mode); err != nil {
			return fmt.Errorf("write %s: %w", out.path, err)
		}
	}
	return nil
}

// AccessTokenClaims is what the identity provider signs into every access
// token. Roles travel as one space separated "roles" claim.
type AccessTokenClaims struct {
	UserID       string
	Roles        []string
	TokenVersion int
}

func (m *JWTManager) CreateAccessToken(
	claims AccessTokenClaims,
) (string, time.Time, error) {
	issuedAt := m.now()
	expiresAt := issuedAt.Add(m.cfg.AccessTokenExpire)

	token, err := jwt.NewBuilder().
		JwtID(uuid.NewString()).
		Issuer(m.cfg.Issuer).
		Audience([]string{m.cfg.Audience}).
		Subject(claims.UserID).
		IssuedAt(issuedAt).
		NotBefore(issuedAt).
		Expiration(expiresAt).
		Claim(claimRoles, strings.Join(claims.Roles, " ")).
		Claim(claimTokenVersion, claims.TokenVersion).
		Claim(claimType, tokenTypeAccess).
		Build()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("assemble access token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.ES256(), m.signer))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return string(signed), expiresAt, nil
}

// ParseAccessToken checks signature, issuer, audience and lifetime. It does
// not consult revocation state; Service.VerifyAccessToken does.
func (m *JWTManager) ParseAccessToken(
	raw string,
) (*middleware.AccessTokenClaims, error) {
	token, err := jwt.Parse(
		[]byte(raw),
		jwt.WithKey(jwa.ES256(), m.verify),
		jwt.WithValidate(false),
	)
	if err != nil {
		return nil, fmt.Errorf("access token signature: %w", core.ErrTokenInvalid)
	}

	exp, ok := token.Expiration()
	if !ok {
		return nil, fmt.Errorf("access token without exp: %w", core.ErrTokenInvalid)
	}
	if !m.now().Before(exp.Add(clockSkew)) {
		return nil, fmt.Errorf("access token: %w", core.ErrTokenExpired)
	}

	err = jwt.Validate(token,
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithAudience(m.cfg.Audience),
		jwt.WithAcceptableSkew(clockSkew),
		jwt.WithClock(jwt.ClockFunc(m.now)),
	)
	if err != nil {
		return nil, fmt.Errorf("access token claims: %w: %w", core.ErrTokenInvalid, err)
	}

	return readClaims(token, exp)
}

func readClaims(token jwt.Token, exp time.Time) (*middleware.AccessTokenClaims, error) {
	var kind string
	if err := token.Get(claimType, &kind); err != nil || kind != tokenTypeAccess {
		return nil, fmt.Errorf("access token type %q: %w", kind, core.ErrTokenInvalid)
	}

	sub, ok := token.Subject()
	if !ok || sub == "" {
		return nil, fmt.Errorf("access token without subject: %w", core.ErrTokenInvalid)
	}

	var roles string
	if err := token.Get(claimRoles, &roles); err != nil {
		return nil, fmt.Errorf("access token without roles: %w", core.ErrTokenInvalid)
	}

	// JSON numbers decode as float64.
	var version float64
	if err := token.Get(claimTokenVersion, &version); err != nil {
		return nil, fmt.Errorf("access token without version: %w", core.ErrTokenInvalid)
	}

	jti, _ := token.JwtID()
	return &middleware.AccessTokenClaims{
		ID:           jti,
		UserID:       sub,
		Roles:        strings.Fields(roles),
		TokenVersion: int(version),
		ExpiresAt:    exp,
	}, nil
}

// JWKSHandler serves the public signing key so the client and other
// services can verify access tokens offline.
func (m *JWTManager) JWKSHandler() http.HandlerFunc {
	body, err := json.Marshal(m.jwks)
	return func(w http.ResponseWriter, r *http.Request) {
		if err != nil {
			slog.ErrorContext(r.Context(), "encode jwks", "error", err)
			core.InternalServerError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/jwk-set+json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_, _ = w.Write(body)
	}
}

type RefreshTokenData struct {
	Token     string
	Hash      string
	ExpiresAt time.Time
	FamilyID  string
}

// CreateRefreshToken mints an opaque refresh token. An empty familyID starts
// a new rotation family.
func (m *JWTManager) CreateRefreshToken(familyID string) (*RefreshTokenData, error) {
	token, err := core.GenerateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}
	if familyID == "" {
		familyID = uuid.NewString()
	}
	return &RefreshTokenData{
		Token:     token,
		Hash:      core.HashToken(token),
		ExpiresAt: m.now().Add(m.cfg.RefreshTokenExpire),
		FamilyID:  familyID,
	}, nil
}
