// AngelaMos | 2026
// session.go

// Package session keeps one authorization snapshot per process in step with
// the identity provider's lifecycle events.
package session

import (
	"context"
	"slices"
	"time"

	"github.com/assocly/memberaccess/internal/access"
)

type Phase int

const (
	PhaseLoading Phase = iota
	PhaseReady
	PhaseError
	PhaseUnauthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseError:
		return "error"
	case PhaseUnauthenticated:
		return "unauthenticated"
	}
	return "unknown"
}

type EventType int

const (
	EventSessionStart EventType = iota
	EventSignedIn
	EventTokenRefreshed
	EventSignedOut
)

func (t EventType) String() string {
	switch t {
	case EventSessionStart:
		return "session_start"
	case EventSignedIn:
		return "signed_in"
	case EventTokenRefreshed:
		return "token_refreshed"
	case EventSignedOut:
		return "signed_out"
	}
	return "unknown"
}

// Event is one identity lifecycle notification. PrincipalID is empty for
// SignedOut and for a SessionStart without a session.
type Event struct {
	Type        EventType
	PrincipalID string
}

type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantDeleted   TenantStatus = "deleted"
)

type Tenant struct {
	ID        string
	Name      string
	NameLocal string
	Status    TenantStatus
}

type Subscription struct {
	ID        string
	TenantID  string
	Status    access.SubscriptionStatus
	StartDate time.Time
	EndDate   time.Time
}

// Loader fetches the records a load needs. Implementations should honour
// ctx; the synchronizer gives up on them when it expires either way.
type Loader interface {
	RoleAssignments(ctx context.Context, principalID string) ([]access.Assignment, error)
	Tenant(ctx context.Context, tenantID string) (*Tenant, error)
	Subscription(ctx context.Context, tenantID string) (*Subscription, error)
}

// Snapshot is the state consumers gate on. Tenant may be set in PhaseError
// when the tenant is suspended, so the reason can be shown.
type Snapshot struct {
	Phase        Phase
	PrincipalID  string
	Error        string
	Generation   uint64
	Assignments  []access.Assignment
	Access       access.Access
	Tenant       *Tenant
	Subscription *Subscription
	Validity     access.SubscriptionState
	// ExpiryNotice is true on the first snapshot that shows a given
	// subscription as expiring soon.
	ExpiryNotice bool
}

func (s Snapshot) clone() Snapshot {
	s.Assignments = slices.Clone(s.Assignments)
	if s.Tenant != nil {
		t := *s.Tenant
		s.Tenant = &t
	}
	if s.Subscription != nil {
		sub := *s.Subscription
		s.Subscription = &sub
	}
	return s
}
