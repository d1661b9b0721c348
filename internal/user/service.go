// AngelaMos | 2026
// service.go

package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/assocly/memberaccess/internal/auth"
)

// RoleLister supplies the role names carried in a principal's access token.
type RoleLister interface {
	RoleNames(ctx context.Context, principalID string) ([]string, error)
}

type Service struct {
	repo  Repository
	roles RoleLister
}

func NewService(repo Repository, roles RoleLister) *Service {
	return &Service{repo: repo, roles: roles}
}

func (s *Service) GetByID(
	ctx context.Context,
	id string,
) (*auth.UserInfo, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.toUserInfo(ctx, user)
}

func (s *Service) GetByEmail(
	ctx context.Context,
	email string,
) (*auth.UserInfo, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(email))
	if err != nil {
		return nil, err
	}

	return s.toUserInfo(ctx, user)
}

// CreatePrincipal stores a principal under a caller chosen id. Roles are
// granted separately, so the returned info carries none.
func (s *Service) CreatePrincipal(
	ctx context.Context,
	id, email, passwordHash, name, kind string,
) (*auth.UserInfo, error) {
	user := &User{
		ID:           id,
		Email:        strings.ToLower(email),
		PasswordHash: passwordHash,
		Name:         name,
		Kind:         kind,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	return &auth.UserInfo{
		ID:           user.ID,
		Email:        user.Email,
		Name:         user.Name,
		PasswordHash: user.PasswordHash,
		TokenVersion: user.TokenVersion,
	}, nil
}

func (s *Service) IncrementTokenVersion(
	ctx context.Context,
	userID string,
) error {
	return s.repo.IncrementTokenVersion(ctx, userID)
}

func (s *Service) UpdatePassword(
	ctx context.Context,
	userID, passwordHash string,
) error {
	return s.repo.UpdatePassword(ctx, userID, passwordHash)
}

func (s *Service) CountByKind(ctx context.Context) (map[string]int, error) {
	return s.repo.CountByKind(ctx)
}

func (s *Service) toUserInfo(ctx context.Context, u *User) (*auth.UserInfo, error) {
	roles, err := s.roles.RoleNames(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}

	return &auth.UserInfo{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Roles:        roles,
		TokenVersion: u.TokenVersion,
	}, nil
}

var _ auth.UserProvider = (*Service)(nil)
