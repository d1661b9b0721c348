// AngelaMos | 2026
// main.go

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/assocly/memberaccess/internal/access"
	"github.com/assocly/memberaccess/internal/apiclient"
	"github.com/assocly/memberaccess/internal/session"
)

func main() {
	baseURL := flag.String("api", "http://localhost:8080", "member access API base URL")
	phone := flag.String("phone", "", "member phone number")
	impersonate := flag.String("impersonate", "", "tenant id to impersonate after a password sign-in")
	email := flag.String("email", "", "sign in with a password instead of a code")
	timeout := flag.Duration("timeout", session.DefaultLoadTimeout, "session load timeout")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, options{
		baseURL:     *baseURL,
		phone:       *phone,
		email:       *email,
		impersonate: *impersonate,
		timeout:     *timeout,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "memberctl:", err)
		os.Exit(1)
	}
}

type options struct {
	baseURL     string
	phone       string
	email       string
	impersonate string
	timeout     time.Duration
}

func run(ctx context.Context, opts options) error {
	if opts.phone == "" && opts.email == "" {
		return errors.New("one of -phone or -email is required")
	}

	client := apiclient.New(opts.baseURL)
	provider := apiclient.NewProvider(client, 8)
	syncer := session.New(client, session.WithLoadTimeout(opts.timeout))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- syncer.Run(runCtx, provider.Events()) }()

	if err := provider.Start(ctx); err != nil {
		return err
	}

	in := bufio.NewReader(os.Stdin)

	var err error
	if opts.email != "" {
		err = signInWithPassword(ctx, in, provider, opts.email)
	} else {
		err = signInWithCode(ctx, in, client, provider, opts.phone)
	}
	if err != nil {
		return err
	}

	if opts.impersonate != "" {
		syncer.SetImpersonation(ctx, access.Impersonation{TenantID: opts.impersonate})
	}

	snap, err := settle(ctx, syncer)
	if err != nil {
		return err
	}

	provider.Close()
	<-done
	syncer.Wait()

	return printSnapshot(snap)
}

func signInWithCode(
	ctx context.Context,
	in *bufio.Reader,
	client *apiclient.Client,
	provider *apiclient.Provider,
	phone string,
) error {
	requested, err := client.RequestCode(ctx, phone)
	if err != nil {
		return fmt.Errorf("request code: %w", err)
	}

	fmt.Fprintf(os.Stderr, "code sent to %s (%s)\n", requested.DisplayName, requested.Tenant.Name)
	if requested.Code != "" {
		fmt.Fprintf(os.Stderr, "development code: %s\n", requested.Code)
	}

	code, err := prompt(in, "code: ")
	if err != nil {
		return err
	}

	if _, err := provider.SignInWithCode(ctx, phone, code); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	return nil
}

func signInWithPassword(
	ctx context.Context,
	in *bufio.Reader,
	provider *apiclient.Provider,
	email string,
) error {
	password, err := prompt(in, "password: ")
	if err != nil {
		return err
	}
	if err := provider.SignInWithPassword(ctx, email, password); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	return nil
}

func prompt(in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// settle waits for the synchronizer to leave PhaseLoading.
func settle(ctx context.Context, syncer *session.Synchronizer) (session.Snapshot, error) {
	updates, cancel := syncer.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return session.Snapshot{}, ctx.Err()
		case snap, ok := <-updates:
			if !ok {
				return session.Snapshot{}, errors.New("synchronizer stopped")
			}
			if snap.Phase != session.PhaseLoading && snap.PrincipalID != "" {
				return snap, nil
			}
		}
	}
}

type accessView struct {
	Roles         []access.Role `json:"roles"`
	IsSuperAdmin  bool          `json:"is_super_admin"`
	IsAdmin       bool          `json:"is_admin"`
	IsManager     bool          `json:"is_manager"`
	IsMember      bool          `json:"is_member"`
	Impersonating string        `json:"impersonating,omitempty"`
}

type snapshotView struct {
	Phase        string                   `json:"phase"`
	PrincipalID  string                   `json:"principal_id"`
	Error        string                   `json:"error,omitempty"`
	Access       accessView               `json:"access"`
	Tenant       *session.Tenant          `json:"tenant,omitempty"`
	Subscription *session.Subscription    `json:"subscription,omitempty"`
	Validity     access.SubscriptionState `json:"validity"`
	ExpiryNotice bool                     `json:"expiry_notice"`
}

func printSnapshot(snap session.Snapshot) error {
	view := snapshotView{
		Phase:       snap.Phase.String(),
		PrincipalID: snap.PrincipalID,
		Error:       snap.Error,
		Access: accessView{
			Roles:        snap.Access.Roles(),
			IsSuperAdmin: snap.Access.IsSuperAdmin,
			IsAdmin:      snap.Access.IsAdmin,
			IsManager:    snap.Access.IsManager,
			IsMember:     snap.Access.IsMember,
		},
		Tenant:       snap.Tenant,
		Subscription: snap.Subscription,
		Validity:     snap.Validity,
		ExpiryNotice: snap.ExpiryNotice,
	}
	if snap.Access.Impersonation.Active() {
		view.Access.Impersonating = snap.Access.Impersonation.TenantID
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}
