// AngelaMos | 2026
// loader.go

package apiclient

import (
	"context"
	"net/url"

	"github.com/assocly/memberaccess/internal/access"
	"github.com/assocly/memberaccess/internal/session"
	"github.com/assocly/memberaccess/internal/tenant"
)

var _ session.Loader = (*Client)(nil)

func (c *Client) RoleAssignments(
	ctx context.Context,
	principalID string,
) ([]access.Assignment, error) {
	var resp tenant.RolesResponse
	if err := c.get(ctx, "/v1/principals/"+url.PathEscape(principalID)+"/roles", &resp); err != nil {
		return nil, err
	}

	assignments := make([]access.Assignment, 0, len(resp.Roles))
	for _, r := range resp.Roles {
		a := access.Assignment{Role: access.Role(r.Role)}
		if r.TenantID != nil {
			a.TenantID = *r.TenantID
		}
		assignments = append(assignments, a)
	}
	return assignments, nil
}

func (c *Client) Tenant(ctx context.Context, tenantID string) (*session.Tenant, error) {
	var resp tenant.TenantResponse
	if err := c.get(ctx, "/v1/tenants/"+url.PathEscape(tenantID), &resp); err != nil {
		return nil, err
	}

	t := &session.Tenant{
		ID:     resp.ID,
		Name:   resp.Name,
		Status: session.TenantStatus(resp.Status),
	}
	if resp.NameLocal != nil {
		t.NameLocal = *resp.NameLocal
	}
	return t, nil
}

func (c *Client) Subscription(
	ctx context.Context,
	tenantID string,
) (*session.Subscription, error) {
	var resp tenant.SubscriptionResponse
	path := "/v1/tenants/" + url.PathEscape(tenantID) + "/subscription"
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	return &session.Subscription{
		ID:        resp.ID,
		TenantID:  resp.TenantID,
		Status:    access.SubscriptionStatus(resp.Status),
		StartDate: resp.StartDate,
		EndDate:   resp.EndDate,
	}, nil
}
