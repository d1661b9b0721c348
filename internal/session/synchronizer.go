// AngelaMos | 2026
// synchronizer.go

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/assocly/memberaccess/internal/access"
)

const DefaultLoadTimeout = 15 * time.Second

const (
	msgRolesFailed    = "could not load your roles"
	msgNoTenant       = "your account is not linked to an organization"
	msgTenantFailed   = "could not load your organization"
	msgTenantDeleted  = "this organization no longer exists"
	msgTenantInactive = "this organization is suspended"
	msgTimedOut       = "loading your account timed out"
)

type Option func(*Synchronizer)

func WithLoadTimeout(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		s.now = now
	}
}

// Synchronizer is a generation-stamped state machine. Every entry into
// PhaseLoading bumps the generation; a finished load commits only if the
// generation it captured is still current.
type Synchronizer struct {
	loader   Loader
	timeout  time.Duration
	now      func() time.Time
	notifier *access.ExpiryNotifier

	mu         sync.Mutex
	snap       Snapshot
	generation uint64
	trackedID  string
	loadedID   string
	overlay    *access.Impersonation

	// superAdminID is the principal a Ready load last confirmed as super
	// admin. It survives failed loads so overlay changes still reload.
	superAdminID string

	subscribers map[int]chan Snapshot
	nextSubID   int

	inflight sync.WaitGroup
}

func New(loader Loader, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		loader:      loader,
		timeout:     DefaultLoadTimeout,
		now:         time.Now,
		notifier:    access.NewExpiryNotifier(),
		snap:        Snapshot{Phase: PhaseLoading},
		subscribers: make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run handles events in order until the channel closes or ctx is done.
func (s *Synchronizer) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.Handle(ctx, ev)
		}
	}
}

// Handle applies one event. Loads it starts run in the background; Handle
// itself never blocks on I/O.
func (s *Synchronizer) Handle(ctx context.Context, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slog.Debug("identity event", "type", ev.Type.String(), "principal_id", ev.PrincipalID)

	switch ev.Type {
	case EventSessionStart:
		if ev.PrincipalID == "" {
			s.signOutLocked()
			return
		}
		s.startLoadLocked(ctx, ev.PrincipalID)

	case EventSignedIn:
		if ev.PrincipalID == "" {
			return
		}
		if ev.PrincipalID == s.loadedID && ev.PrincipalID == s.trackedID {
			return
		}
		s.startLoadLocked(ctx, ev.PrincipalID)

	case EventTokenRefreshed:
		if ev.PrincipalID != "" {
			s.trackedID = ev.PrincipalID
		}

	case EventSignedOut:
		s.signOutLocked()
	}
}

// SetImpersonation installs overlay. A super admin whose data is already
// loaded is reloaded against the overlay's tenant.
func (s *Synchronizer) SetImpersonation(ctx context.Context, overlay access.Impersonation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := overlay
	s.overlay = &cp
	s.reloadForOverlayLocked(ctx)
}

func (s *Synchronizer) ClearImpersonation(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.overlay == nil {
		return
	}
	s.overlay = nil
	s.reloadForOverlayLocked(ctx)
}

func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.clone()
}

// Subscribe returns a channel that always holds the latest snapshot after
// each change. Slow readers skip intermediate states.
func (s *Synchronizer) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Snapshot, 1)
	s.subscribers[id] = ch
	ch <- s.snap.clone()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(c)
		}
	}
}

// Wait blocks until every started load has finished or been discarded.
func (s *Synchronizer) Wait() {
	s.inflight.Wait()
}

// reloadForOverlayLocked restarts an in-flight load so it sees the new
// overlay, and reloads settled super admin state. Resolve drops overlays
// held by anyone else.
func (s *Synchronizer) reloadForOverlayLocked(ctx context.Context) {
	if s.trackedID == "" {
		return
	}
	switch s.snap.Phase {
	case PhaseLoading:
	case PhaseReady, PhaseError:
		if !s.snap.Access.IsSuperAdmin && s.superAdminID != s.trackedID {
			return
		}
	default:
		return
	}
	s.startLoadLocked(ctx, s.trackedID)
}

func (s *Synchronizer) signOutLocked() {
	s.generation++
	s.trackedID = ""
	s.loadedID = ""
	s.superAdminID = ""
	s.overlay = nil
	s.setLocked(Snapshot{
		Phase:      PhaseUnauthenticated,
		Generation: s.generation,
	})
}

func (s *Synchronizer) startLoadLocked(ctx context.Context, principalID string) {
	s.generation++
	gen := s.generation
	s.trackedID = principalID

	var overlay *access.Impersonation
	if s.overlay != nil {
		cp := *s.overlay
		overlay = &cp
	}

	s.setLocked(Snapshot{
		Phase:       PhaseLoading,
		PrincipalID: principalID,
		Generation:  gen,
	})

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		snap := s.loadWithDeadline(ctx, principalID, overlay)
		snap.Generation = gen
		s.commit(snap)
	}()
}

func (s *Synchronizer) loadWithDeadline(
	ctx context.Context,
	principalID string,
	overlay *access.Impersonation,
) Snapshot {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan Snapshot, 1)
	go func() {
		done <- s.load(ctx, principalID, overlay)
	}()

	select {
	case snap := <-done:
		return snap
	case <-ctx.Done():
		slog.Warn("session load abandoned",
			"principal_id", principalID,
			"error", ctx.Err(),
		)
		return failed(principalID, msgTimedOut)
	}
}

func (s *Synchronizer) load(
	ctx context.Context,
	principalID string,
	overlay *access.Impersonation,
) Snapshot {
	assignments, err := s.loader.RoleAssignments(ctx, principalID)
	if err != nil {
		slog.Warn("role assignment load failed",
			"principal_id", principalID,
			"error", err,
		)
		return failed(principalID, msgRolesFailed)
	}

	acc := access.Resolve(assignments, overlay)
	snap := Snapshot{
		Phase:       PhaseReady,
		PrincipalID: principalID,
		Assignments: assignments,
		Access:      acc,
	}

	var tenantID string
	switch {
	case acc.Impersonation != nil:
		tenantID = acc.Impersonation.TenantID
	case acc.IsSuperAdmin:
		return snap
	default:
		tenantID = access.HomeTenantID(assignments)
	}
	if tenantID == "" {
		return withError(snap, msgNoTenant)
	}

	t, sub, err := s.fetchTenant(ctx, tenantID)
	if err != nil {
		slog.Warn("tenant load failed",
			"principal_id", principalID,
			"tenant_id", tenantID,
			"error", err,
		)
		return withError(snap, msgTenantFailed)
	}

	switch t.Status {
	case TenantDeleted:
		return withError(snap, msgTenantDeleted)
	case TenantSuspended:
		if acc.Impersonation == nil {
			snap.Tenant = t
			return withError(snap, msgTenantInactive)
		}
	}

	snap.Tenant = t
	snap.Subscription = sub
	if sub != nil {
		snap.Validity = access.EvaluateSubscription(sub.Status, sub.EndDate, s.now())
	}
	return snap
}

// fetchTenant loads the tenant and its subscription concurrently. A
// subscription failure is logged and read as "no subscription".
func (s *Synchronizer) fetchTenant(
	ctx context.Context,
	tenantID string,
) (*Tenant, *Subscription, error) {
	var (
		g   errgroup.Group
		t   *Tenant
		sub *Subscription
	)

	g.Go(func() error {
		var err error
		t, err = s.loader.Tenant(ctx, tenantID)
		if err == nil && t == nil {
			err = errors.New("empty tenant record")
		}
		if err != nil {
			return fmt.Errorf("load tenant %s: %w", tenantID, err)
		}
		return nil
	})

	g.Go(func() error {
		var err error
		sub, err = s.loader.Subscription(ctx, tenantID)
		if err != nil {
			slog.Info("no subscription loaded", "tenant_id", tenantID, "error", err)
			sub = nil
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return t, sub, nil
}

// commit installs snap if no newer load or sign-out has happened since it
// started.
func (s *Synchronizer) commit(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Generation != s.generation {
		slog.Debug("discarding stale session load",
			"principal_id", snap.PrincipalID,
			"generation", snap.Generation,
			"current", s.generation,
		)
		return
	}

	switch snap.Phase {
	case PhaseReady:
		s.loadedID = snap.PrincipalID
		s.superAdminID = ""
		if snap.Access.IsSuperAdmin {
			s.superAdminID = snap.PrincipalID
		}
		if snap.Subscription != nil {
			snap.ExpiryNotice = s.notifier.ShouldNotify(snap.Subscription.ID, snap.Validity)
		}
	case PhaseError:
		// A later SignedIn for the same principal must retry.
		if s.loadedID == snap.PrincipalID {
			s.loadedID = ""
		}
	}

	s.setLocked(snap)
}

func (s *Synchronizer) setLocked(snap Snapshot) {
	s.snap = snap
	for _, ch := range s.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- snap.clone()
	}
}

func failed(principalID, msg string) Snapshot {
	return Snapshot{
		Phase:       PhaseError,
		PrincipalID: principalID,
		Error:       msg,
	}
}

func withError(snap Snapshot, msg string) Snapshot {
	snap.Phase = PhaseError
	snap.Error = msg
	return snap
}
