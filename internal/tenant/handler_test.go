// AngelaMos | 2026
// handler_test.go

package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assocly/memberaccess/internal/access"
	"github.com/assocly/memberaccess/internal/core"
	"github.com/assocly/memberaccess/internal/middleware"
)

type fakeRepo struct {
	tenants       map[string]*Tenant
	subscriptions map[string]*Subscription
	assignments   map[string][]RoleAssignment
}

func (f *fakeRepo) GetTenant(_ context.Context, id string) (*Tenant, error) {
	if t, ok := f.tenants[id]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("get tenant: %w", core.ErrNotFound)
}

func (f *fakeRepo) GetSubscription(
	_ context.Context,
	tenantID string,
) (*Subscription, error) {
	if s, ok := f.subscriptions[tenantID]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("get subscription: %w", core.ErrNotFound)
}

func (f *fakeRepo) ListRoleAssignments(
	_ context.Context,
	principalID string,
) ([]RoleAssignment, error) {
	return f.assignments[principalID], nil
}

func (f *fakeRepo) ListRoleNames(
	_ context.Context,
	principalID string,
) ([]string, error) {
	var names []string
	for _, ra := range f.assignments[principalID] {
		names = append(names, string(ra.Role))
	}
	return names, nil
}

func (f *fakeRepo) GrantRole(
	_ context.Context,
	principalID string,
	role access.Role,
	tenantID *string,
) error {
	f.assignments[principalID] = append(f.assignments[principalID], RoleAssignment{
		PrincipalID: principalID,
		Role:        role,
		TenantID:    tenantID,
	})
	return nil
}

func ptr(s string) *string { return &s }

func newFixture() *fakeRepo {
	now := time.Now()
	return &fakeRepo{
		tenants: map[string]*Tenant{
			"t-1": {ID: "t-1", Name: "Dhaka Traders", Status: StatusActive},
			"t-2": {ID: "t-2", Name: "Chittagong Guild", Status: StatusActive},
		},
		subscriptions: map[string]*Subscription{
			"t-1": {
				ID:        "s-1",
				TenantID:  "t-1",
				Status:    access.SubscriptionActive,
				StartDate: now.AddDate(0, -1, 0),
				EndDate:   now.AddDate(0, 1, 0),
			},
		},
		assignments: map[string][]RoleAssignment{
			"p-admin": {{ID: "ra-1", Role: access.RoleAdmin, TenantID: ptr("t-1")}},
			"p-root":  {{ID: "ra-2", Role: access.RoleSuperAdmin}},
		},
	}
}

func newRouter(repo Repository) http.Handler {
	r := chi.NewRouter()
	NewHandler(NewService(repo)).RegisterRoutes(r, func(next http.Handler) http.Handler {
		return next
	})
	return r
}

func do(t *testing.T, h http.Handler, path, principalID string, roles ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req = req.WithContext(middleware.WithClaims(req.Context(), &middleware.AccessTokenClaims{
		UserID: principalID,
		Roles:  roles,
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_GetTenant(t *testing.T) {
	h := newRouter(newFixture())

	rec := do(t, h, "/tenants/t-1", "p-admin", "admin")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data TenantResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Dhaka Traders", body.Data.Name)
	assert.Equal(t, "active", body.Data.Status)

	assert.Equal(t, http.StatusForbidden, do(t, h, "/tenants/t-2", "p-admin", "admin").Code)
	assert.Equal(t, http.StatusOK, do(t, h, "/tenants/t-2", "p-root", "super_admin").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "/tenants/t-9", "p-root", "super_admin").Code)
}

func TestHandler_GetSubscription(t *testing.T) {
	h := newRouter(newFixture())

	assert.Equal(t, http.StatusOK, do(t, h, "/tenants/t-1/subscription", "p-admin", "admin").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "/tenants/t-2/subscription", "p-root", "super_admin").Code)
}

func TestHandler_GetRoles(t *testing.T) {
	h := newRouter(newFixture())

	rec := do(t, h, "/principals/p-admin/roles", "p-admin", "admin")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data RolesResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Data.Roles, 1)
	assert.Equal(t, "admin", body.Data.Roles[0].Role)
	assert.Equal(t, "t-1", *body.Data.Roles[0].TenantID)

	assert.Equal(t, http.StatusForbidden, do(t, h, "/principals/p-root/roles", "p-admin", "admin").Code)
	assert.Equal(t, http.StatusOK, do(t, h, "/principals/p-admin/roles", "p-root", "super_admin").Code)
}

func TestService_GrantRoleScopesToTenant(t *testing.T) {
	repo := newFixture()
	svc := NewService(repo)
	ctx := context.Background()

	require.NoError(t, svc.GrantRole(ctx, "p-new", access.RoleMember, "t-2"))
	require.NoError(t, svc.Authorize(ctx, "p-new", "t-2"))
	assert.ErrorIs(t, svc.Authorize(ctx, "p-new", "t-1"), core.ErrForbidden)
}
