// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/assocly/memberaccess/internal/core"
	"github.com/assocly/memberaccess/internal/middleware"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenReuse         = errors.New("token reuse detected")
)

type UserInfo struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Roles        []string
	TokenVersion int
}

type UserProvider interface {
	GetByEmail(ctx context.Context, email string) (*UserInfo, error)
	GetByID(ctx context.Context, id string) (*UserInfo, error)
	IncrementTokenVersion(ctx context.Context, userID string) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// Service is the in-process identity provider: password sign-in, rotating
// refresh tokens and access token revocation.
type Service struct {
	repo            Repository
	jwt             *JWTManager
	userProvider    UserProvider
	redis           redis.Cmdable
	blacklistPrefix string
}

func NewService(
	repo Repository,
	jwt *JWTManager,
	userProvider UserProvider,
	redisClient redis.Cmdable,
	blacklistPrefix string,
) *Service {
	return &Service{
		repo:            repo,
		jwt:             jwt,
		userProvider:    userProvider,
		redis:           redisClient,
		blacklistPrefix: blacklistPrefix,
	}
}

func (s *Service) Login(
	ctx context.Context,
	email, password string,
	meta ClientMeta,
) (*AuthResponse, error) {
	user, err := s.userProvider.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			//nolint:errcheck // timing attack prevention - always verify to prevent enumeration
			_, _, _ = core.VerifyPasswordTimingSafe(password, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	valid, newHash, err := core.VerifyPasswordTimingSafe(
		password,
		&user.PasswordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}

	if !valid {
		return nil, ErrInvalidCredentials
	}

	if newHash != "" {
		if err := s.userProvider.UpdatePassword(ctx, user.ID, newHash); err != nil {
			slog.Warn("password rehash failed", "user_id", user.ID, "error", err)
		}
	}

	return s.issue(ctx, user, meta, "", uuid.New().String())
}

// Refresh rotates a refresh token. Presenting a token that was already
// rotated revokes its whole family.
func (s *Service) Refresh(
	ctx context.Context,
	refreshToken string,
	meta ClientMeta,
) (*AuthResponse, error) {
	hash := core.HashToken(refreshToken)
	nextID := uuid.New().String()

	claimed, err := s.repo.Claim(ctx, hash, nextID, time.Now())
	if errors.Is(err, core.ErrNotFound) {
		return nil, s.rejectRefresh(ctx, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("rotate token: %w", err)
	}

	user, err := s.userProvider.GetByID(ctx, claimed.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	return s.issue(ctx, user, meta, claimed.FamilyID, nextID)
}

// rejectRefresh explains why a token could not be claimed.
func (s *Service) rejectRefresh(ctx context.Context, hash string) error {
	stored, err := s.repo.FindByHash(ctx, hash)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("refresh: %w", core.ErrTokenInvalid)
	}
	if err != nil {
		return fmt.Errorf("find token: %w", err)
	}

	switch stored.State(time.Now()) {
	case TokenRevoked:
		return fmt.Errorf("refresh: %w", core.ErrTokenRevoked)
	case TokenExpired:
		return fmt.Errorf("refresh: %w", core.ErrTokenExpired)
	case TokenRotated:
		n, revErr := s.repo.Revoke(ctx, RevokeFamily, stored.FamilyID)
		if revErr != nil {
			slog.Error("revoke token family failed",
				"family_id", stored.FamilyID,
				"error", revErr,
			)
		}
		slog.Warn("refresh token reuse",
			"user_id", stored.UserID,
			"family_id", stored.FamilyID,
			"revoked", n,
		)
		return ErrTokenReuse
	}

	return fmt.Errorf("refresh: %w", core.ErrTokenInvalid)
}

// Logout revokes one refresh token and, when claims are given, blacklists
// the access token presented with the request.
func (s *Service) Logout(
	ctx context.Context,
	refreshToken string,
	claims *middleware.AccessTokenClaims,
) error {
	if claims != nil {
		if err := s.RevokeAccessToken(ctx, claims.ID, claims.ExpiresAt); err != nil {
			return err
		}
	}

	if refreshToken == "" {
		return nil
	}

	stored, err := s.repo.FindByHash(ctx, core.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("find token: %w", err)
	}

	if claims != nil && stored.UserID != claims.UserID {
		return fmt.Errorf("logout: %w", core.ErrForbidden)
	}

	if _, err := s.repo.Revoke(ctx, RevokeToken, stored.ID); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}

	return nil
}

// LogoutAll revokes every refresh token and, by bumping the token version,
// every access token already issued to the user.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	if _, err := s.repo.Revoke(ctx, RevokePrincipal, userID); err != nil {
		return fmt.Errorf("revoke all tokens: %w", err)
	}

	if err := s.userProvider.IncrementTokenVersion(ctx, userID); err != nil {
		return fmt.Errorf("increment token version: %w", err)
	}

	return nil
}

func (s *Service) RevokeAccessToken(
	ctx context.Context,
	jti string,
	expiresAt time.Time,
) error {
	ttl := time.Until(expiresAt)
	if jti == "" || ttl <= 0 {
		return nil
	}

	if err := s.redis.Set(ctx, s.blacklistPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}

	return nil
}

// VerifyAccessToken implements middleware.TokenVerifier. Beyond the
// signature it rejects blacklisted tokens and tokens minted before the last
// LogoutAll.
func (s *Service) VerifyAccessToken(
	ctx context.Context,
	token string,
) (*middleware.AccessTokenClaims, error) {
	claims, err := s.jwt.ParseAccessToken(token)
	if err != nil {
		return nil, err
	}

	if claims.ID != "" {
		n, err := s.redis.Exists(ctx, s.blacklistPrefix+claims.ID).Result()
		if err != nil {
			return nil, fmt.Errorf("check blacklist: %w", err)
		}
		if n > 0 {
			return nil, fmt.Errorf("verify token: %w", core.ErrTokenRevoked)
		}
	}

	user, err := s.userProvider.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("verify token: %w", core.ErrTokenInvalid)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if claims.TokenVersion < user.TokenVersion {
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenRevoked)
	}

	return claims, nil
}

func (s *Service) GetCurrentUser(
	ctx context.Context,
	userID string,
) (*UserResponse, error) {
	user, err := s.userProvider.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := toUserResponse(user)
	return &resp, nil
}

// PurgeExpiredTokens deletes refresh tokens that expired before cutoff.
func (s *Service) PurgeExpiredTokens(
	ctx context.Context,
	cutoff time.Time,
) (int64, error) {
	return s.repo.DeleteExpired(ctx, cutoff)
}

func (s *Service) issue(
	ctx context.Context,
	user *UserInfo,
	meta ClientMeta,
	familyID, tokenID string,
) (*AuthResponse, error) {
	accessToken, expiresAt, err := s.jwt.CreateAccessToken(AccessTokenClaims{
		UserID:       user.ID,
		Roles:        user.Roles,
		TokenVersion: user.TokenVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}

	refreshData, err := s.jwt.CreateRefreshToken(familyID)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}

	err = s.repo.Create(ctx, &RefreshToken{
		ID:        tokenID,
		UserID:    user.ID,
		TokenHash: refreshData.Hash,
		FamilyID:  refreshData.FamilyID,
		ExpiresAt: refreshData.ExpiresAt,
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &AuthResponse{
		User: toUserResponse(user),
		Tokens: TokenResponse{
			AccessToken:  accessToken,
			RefreshToken: refreshData.Token,
			TokenType:    "Bearer",
			ExpiresIn:    int(time.Until(expiresAt).Seconds()),
			ExpiresAt:    expiresAt,
		},
	}, nil
}

func toUserResponse(user *UserInfo) UserResponse {
	roles := user.Roles
	if roles == nil {
		roles = []string{}
	}
	return UserResponse{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Roles: roles,
	}
}
