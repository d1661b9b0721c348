// AngelaMos | 2026
// provider.go

package apiclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/assocly/memberaccess/internal/core"
	"github.com/assocly/memberaccess/internal/otp"
	"github.com/assocly/memberaccess/internal/session"
)

// Provider is the client-side identity provider. Every successful lifecycle
// change is published, in order, on Events.
type Provider struct {
	client *Client

	mu     sync.Mutex
	events chan session.Event
	closed bool
}

func NewProvider(client *Client, buffer int) *Provider {
	return &Provider{
		client: client,
		events: make(chan session.Event, buffer),
	}
}

func (p *Provider) Events() <-chan session.Event {
	return p.events
}

// Start announces whatever session the client already holds.
func (p *Provider) Start(ctx context.Context) error {
	return p.emit(ctx, session.Event{
		Type:        session.EventSessionStart,
		PrincipalID: p.client.PrincipalID(),
	})
}

// SignInWithCode completes an OTP sign-in: the code is verified, the bridge
// token exchanged, and SignedIn published for the member's principal.
func (p *Provider) SignInWithCode(
	ctx context.Context,
	phone, code string,
) (*otp.ExchangeResponse, error) {
	verified, err := p.client.VerifyCode(ctx, phone, code)
	if err != nil {
		return nil, fmt.Errorf("verify code: %w", err)
	}

	resp, err := p.client.ExchangeBridgeToken(ctx, verified.BridgeToken, verified.PrincipalID)
	if err != nil {
		return nil, fmt.Errorf("exchange bridge token: %w", err)
	}

	if err := p.emit(ctx, session.Event{
		Type:        session.EventSignedIn,
		PrincipalID: resp.User.ID,
	}); err != nil {
		return nil, err
	}
	return resp, nil
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) error {
	resp, err := p.client.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	return p.emit(ctx, session.Event{
		Type:        session.EventSignedIn,
		PrincipalID: resp.User.ID,
	})
}

// Refresh rotates the tokens. A rejected refresh token ends the session.
func (p *Provider) Refresh(ctx context.Context) error {
	resp, err := p.client.Refresh(ctx)
	if err != nil {
		if errors.Is(err, core.ErrUnauthorized) {
			slog.InfoContext(ctx, "refresh rejected, signing out", "error", err)
			p.client.clearSession()
			if emitErr := p.emit(ctx, session.Event{Type: session.EventSignedOut}); emitErr != nil {
				return emitErr
			}
		}
		return fmt.Errorf("refresh: %w", err)
	}

	return p.emit(ctx, session.Event{
		Type:        session.EventTokenRefreshed,
		PrincipalID: resp.User.ID,
	})
}

// SignOut always publishes SignedOut; a failed server revoke is only logged.
func (p *Provider) SignOut(ctx context.Context) error {
	if err := p.client.Logout(ctx); err != nil {
		slog.WarnContext(ctx, "server logout failed", "error", err)
	}
	return p.emit(ctx, session.Event{Type: session.EventSignedOut})
}

func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
}

// emit holds the lock while sending so events keep the order in which the
// changes happened.
func (p *Provider) emit(ctx context.Context, ev session.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("provider closed")
	}

	select {
	case p.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
