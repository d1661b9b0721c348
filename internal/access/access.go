// AngelaMos | 2026
// access.go

// Package access derives authorization facts from role assignments. Every
// function here is pure: callers supply assignments, overlays and clocks.
package access

import (
	"slices"
)

type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleMember     Role = "member"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleManager, RoleMember:
		return true
	}
	return false
}

// Assignment is a single role grant. TenantID is empty for global grants,
// which only super_admin uses.
type Assignment struct {
	Role     Role
	TenantID string
}

// Impersonation substitutes a tenant (and optionally a member) for the
// identity's own scope during data loads. Only super admins may hold one.
type Impersonation struct {
	TenantID string
	MemberID string
}

func (i *Impersonation) Active() bool {
	return i != nil && i.TenantID != ""
}

// Access is the resolved authorization view of one identity.
//
// The convenience flags are cumulative top-down: a super admin is also an
// admin, manager and member. CheckPermission deliberately does not follow
// that hierarchy; see CheckPermission.
type Access struct {
	IsSuperAdmin bool
	IsAdmin      bool
	IsManager    bool
	IsMember     bool

	// Impersonation is the honoured overlay, nil unless IsSuperAdmin.
	Impersonation *Impersonation

	roles []Role
}

// Resolve builds the Access for the given assignments. An overlay held by a
// non super admin is ignored.
func Resolve(assignments []Assignment, overlay *Impersonation) Access {
	roles := make([]Role, 0, len(assignments))
	for _, a := range assignments {
		if !slices.Contains(roles, a.Role) {
			roles = append(roles, a.Role)
		}
	}

	a := Access{roles: roles}
	a.IsSuperAdmin = slices.Contains(roles, RoleSuperAdmin)
	a.IsAdmin = a.IsSuperAdmin || slices.Contains(roles, RoleAdmin)
	a.IsManager = a.IsAdmin || slices.Contains(roles, RoleManager)
	a.IsMember = a.IsManager || slices.Contains(roles, RoleMember)

	if a.IsSuperAdmin && overlay.Active() {
		cp := *overlay
		a.Impersonation = &cp
	}

	return a
}

// ResolveNames is Resolve for callers that only know role names, such as
// token claims. Unknown names are kept so CheckPermission can still match
// them literally.
func ResolveNames(names []string) Access {
	assignments := make([]Assignment, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		assignments = append(assignments, Assignment{Role: Role(n)})
	}
	return Resolve(assignments, nil)
}

// CheckPermission reports whether the identity may perform an action
// restricted to required. Super admins always pass. Everyone else passes
// only when one of their literal roles is listed: an admin does not satisfy
// a check that lists only manager.
func (a Access) CheckPermission(required ...Role) bool {
	if a.IsSuperAdmin {
		return true
	}
	for _, r := range a.roles {
		if slices.Contains(required, r) {
			return true
		}
	}
	return false
}

func (a Access) Roles() []Role {
	return slices.Clone(a.roles)
}

// HomeTenantID returns the tenant scope of the first tenant-scoped
// assignment, or "" when there is none.
func HomeTenantID(assignments []Assignment) string {
	for _, a := range assignments {
		if a.TenantID != "" {
			return a.TenantID
		}
	}
	return ""
}
