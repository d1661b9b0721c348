// AngelaMos | 2026
// connect.go

package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	pingTimeout      = 5 * time.Second
	dialMaxElapsed   = 30 * time.Second
	dialFirstBackoff = 250 * time.Millisecond
)

// dialWithRetry pings a backing service until it answers, a non-transient
// error comes back, or dialMaxElapsed passes.
func dialWithRetry(
	ctx context.Context,
	name string,
	ping func(context.Context) error,
) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = dialFirstBackoff
	policy.MaxElapsedTime = dialMaxElapsed

	attempt := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()

		err := ping(pingCtx)
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.RetryNotify(
		attempt,
		backoff.WithContext(policy, ctx),
		func(err error, wait time.Duration) {
			slog.WarnContext(ctx, "backing service not ready",
				"service", name,
				"retry_in", wait,
				"error", err,
			)
		},
	)
	if err != nil {
		return fmt.Errorf("ping %s: %w", name, err)
	}
	return nil
}
