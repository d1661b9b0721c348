// AngelaMos | 2026
// service.go

package tenant

import (
	"context"
	"fmt"

	"github.com/assocly/memberaccess/internal/access"
	"github.com/assocly/memberaccess/internal/core"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	return s.repo.GetTenant(ctx, id)
}

func (s *Service) GetSubscription(
	ctx context.Context,
	tenantID string,
) (*Subscription, error) {
	return s.repo.GetSubscription(ctx, tenantID)
}

func (s *Service) RoleAssignments(
	ctx context.Context,
	principalID string,
) ([]RoleAssignment, error) {
	return s.repo.ListRoleAssignments(ctx, principalID)
}

// RoleNames satisfies user.RoleLister so issued tokens carry the principal's
// current roles.
func (s *Service) RoleNames(
	ctx context.Context,
	principalID string,
) ([]string, error) {
	return s.repo.ListRoleNames(ctx, principalID)
}

func (s *Service) GrantRole(
	ctx context.Context,
	principalID string,
	role access.Role,
	tenantID string,
) error {
	var scope *string
	if tenantID != "" {
		scope = &tenantID
	}
	return s.repo.GrantRole(ctx, principalID, role, scope)
}

// Authorize allows super admins everywhere and everyone else only inside
// tenants they hold an assignment for.
func (s *Service) Authorize(
	ctx context.Context,
	principalID string,
	tenantID string,
) error {
	rows, err := s.repo.ListRoleAssignments(ctx, principalID)
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}

	assignments := Assignments(rows)
	if access.Resolve(assignments, nil).IsSuperAdmin {
		return nil
	}

	for _, a := range assignments {
		if a.TenantID == tenantID {
			return nil
		}
	}

	return fmt.Errorf("authorize tenant %s: %w", tenantID, core.ErrForbidden)
}
