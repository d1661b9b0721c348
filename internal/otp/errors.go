// AngelaMos | 2026
// errors.go

package otp

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/assocly/memberaccess/internal/core"
)

var ErrInvalidPhone = errors.New("invalid phone number")

// RateLimitError reports a throttled code request and when to try again.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("otp rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return core.ErrRateLimited
}

// RetryAfterSeconds rounds up so callers never retry early.
func (e *RateLimitError) RetryAfterSeconds() int {
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

// toAppError maps service errors onto the HTTP taxonomy. Anything it does
// not recognise becomes a generic internal error.
func toAppError(err error) error {
	var rl *RateLimitError
	switch {
	case errors.As(err, &rl):
		return core.RateLimitedError(rl.RetryAfterSeconds())
	case errors.Is(err, ErrInvalidPhone):
		return core.BadRequestError("invalid phone number")
	case errors.Is(err, core.ErrNotFound):
		return core.NotFoundError("member")
	case errors.Is(err, core.ErrForbidden):
		return core.ForbiddenError("member or organization is not active")
	case errors.Is(err, core.ErrInvalidOrExpired):
		return core.InvalidOrExpiredError("code or token is invalid or has expired")
	case errors.Is(err, core.ErrTransient):
		return core.TransientError()
	}
	return err
}

// outcome is the metrics label for a finished operation.
func outcome(err error, success string) string {
	switch {
	case err == nil:
		return success
	case errors.Is(err, ErrInvalidPhone):
		return "invalid_phone"
	case errors.Is(err, core.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, core.ErrNotFound):
		return "not_found"
	case errors.Is(err, core.ErrForbidden):
		return "forbidden"
	case errors.Is(err, core.ErrInvalidOrExpired):
		return "invalid"
	case errors.Is(err, core.ErrTransient):
		return "transient"
	}
	return "error"
}
