// AngelaMos | 2026
// repository.go

package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/assocly/memberaccess/internal/access"
	"github.com/assocly/memberaccess/internal/core"
)

type Repository interface {
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	GetSubscription(ctx context.Context, tenantID string) (*Subscription, error)
	ListRoleAssignments(
		ctx context.Context,
		principalID string,
	) ([]RoleAssignment, error)
	ListRoleNames(ctx context.Context, principalID string) ([]string, error)
	GrantRole(
		ctx context.Context,
		principalID string,
		role access.Role,
		tenantID *string,
	) error
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	query := `
		SELECT id, name, name_local, status, created_at, updated_at
		FROM tenants
		WHERE id = $1`

	var t Tenant
	err := r.db.GetContext(ctx, &t, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get tenant: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}

	return &t, nil
}

// GetSubscription returns the tenant's subscription with the latest end
// date.
func (r *repository) GetSubscription(
	ctx context.Context,
	tenantID string,
) (*Subscription, error) {
	query := `
		SELECT id, tenant_id, status, start_date, end_date
		FROM subscriptions
		WHERE tenant_id = $1
		ORDER BY end_date DESC
		LIMIT 1`

	var s Subscription
	err := r.db.GetContext(ctx, &s, query, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get subscription: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}

	return &s, nil
}

func (r *repository) ListRoleAssignments(
	ctx context.Context,
	principalID string,
) ([]RoleAssignment, error) {
	query := `
		SELECT id, principal_id, role, tenant_id, created_at
		FROM role_assignments
		WHERE principal_id = $1
		ORDER BY created_at ASC`

	var rows []RoleAssignment
	if err := r.db.SelectContext(ctx, &rows, query, principalID); err != nil {
		return nil, fmt.Errorf("list role assignments: %w", err)
	}

	return rows, nil
}

func (r *repository) ListRoleNames(
	ctx context.Context,
	principalID string,
) ([]string, error) {
	query := `
		SELECT DISTINCT role
		FROM role_assignments
		WHERE principal_id = $1
		ORDER BY role`

	var names []string
	if err := r.db.SelectContext(ctx, &names, query, principalID); err != nil {
		return nil, fmt.Errorf("list role names: %w", err)
	}

	return names, nil
}

// GrantRole is idempotent: granting an existing (principal, role, tenant)
// triple is a no-op.
func (r *repository) GrantRole(
	ctx context.Context,
	principalID string,
	role access.Role,
	tenantID *string,
) error {
	if !role.Valid() {
		return fmt.Errorf("grant role %q: %w", role, core.ErrInvalidInput)
	}

	query := `
		INSERT INTO role_assignments (id, principal_id, role, tenant_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (principal_id, role, tenant_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		uuid.New().String(),
		principalID,
		string(role),
		tenantID,
	)
	if err != nil {
		return fmt.Errorf("grant role: %w", err)
	}

	return nil
}
