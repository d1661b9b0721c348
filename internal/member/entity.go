// AngelaMos | 2026
// entity.go

package member

import (
	"time"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

// Member is a tenant-scoped person who signs in by phone. PrincipalID links
// the backing credential principal once the first OTP sign-in provisions it;
// SealedSecret is that principal's password, sealed by the vault.
type Member struct {
	ID           string    `db:"id"`
	TenantID     string    `db:"tenant_id"`
	FullName     string    `db:"full_name"`
	Phone        string    `db:"phone"`
	Status       Status    `db:"status"`
	PrincipalID  *string   `db:"principal_id"`
	SealedSecret []byte    `db:"sealed_secret"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (m *Member) IsActive() bool {
	return m.Status == StatusActive
}

func (m *Member) HasPrincipal() bool {
	return m.PrincipalID != nil && *m.PrincipalID != ""
}
