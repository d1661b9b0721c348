// AngelaMos | 2026
// entity.go

package tenant

import (
	"time"

	"github.com/assocly/memberaccess/internal/access"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

type Tenant struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	NameLocal *string   `db:"name_local"`
	Status    Status    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

type Subscription struct {
	ID        string                    `db:"id"`
	TenantID  string                    `db:"tenant_id"`
	Status    access.SubscriptionStatus `db:"status"`
	StartDate time.Time                 `db:"start_date"`
	EndDate   time.Time                 `db:"end_date"`
}

type RoleAssignment struct {
	ID          string      `db:"id"`
	PrincipalID string      `db:"principal_id"`
	Role        access.Role `db:"role"`
	TenantID    *string     `db:"tenant_id"`
	CreatedAt   time.Time   `db:"created_at"`
}

func (ra RoleAssignment) Assignment() access.Assignment {
	a := access.Assignment{Role: ra.Role}
	if ra.TenantID != nil {
		a.TenantID = *ra.TenantID
	}
	return a
}

func Assignments(rows []RoleAssignment) []access.Assignment {
	out := make([]access.Assignment, 0, len(rows))
	for _, ra := range rows {
		out = append(out, ra.Assignment())
	}
	return out
}
