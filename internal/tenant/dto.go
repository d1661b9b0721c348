// AngelaMos | 2026
// dto.go

package tenant

import (
	"time"
)

type RoleAssignmentResponse struct {
	ID       string  `json:"id"`
	Role     string  `json:"role"`
	TenantID *string `json:"tenant_id"`
}

type RolesResponse struct {
	PrincipalID string                   `json:"principal_id"`
	Roles       []RoleAssignmentResponse `json:"roles"`
}

type TenantResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	NameLocal *string `json:"name_local,omitempty"`
	Status    string  `json:"status"`
}

type SubscriptionResponse struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Status    string    `json:"status"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

func ToRolesResponse(principalID string, rows []RoleAssignment) RolesResponse {
	roles := make([]RoleAssignmentResponse, 0, len(rows))
	for _, ra := range rows {
		roles = append(roles, RoleAssignmentResponse{
			ID:       ra.ID,
			Role:     string(ra.Role),
			TenantID: ra.TenantID,
		})
	}
	return RolesResponse{PrincipalID: principalID, Roles: roles}
}

func ToTenantResponse(t *Tenant) TenantResponse {
	return TenantResponse{
		ID:        t.ID,
		Name:      t.Name,
		NameLocal: t.NameLocal,
		Status:    string(t.Status),
	}
}

func ToSubscriptionResponse(s *Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:        s.ID,
		TenantID:  s.TenantID,
		Status:    string(s.Status),
		StartDate: s.StartDate,
		EndDate:   s.EndDate,
	}
}
