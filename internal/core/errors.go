// AngelaMos | 2026
// errors.go

package core

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateKey     = errors.New("duplicate key")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenRevoked     = errors.New("token revoked")
	ErrTokenInvalid     = errors.New("token invalid")
	ErrRateLimited      = errors.New("rate limited")
	ErrInvalidOrExpired = errors.New("invalid or expired")
	ErrTransient        = errors.New("temporarily unavailable")
)

// AppError is an error that already knows how it should be rendered to
// an API caller.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
	Code       string
	Details    map[string]any
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(err error, message string, status int, code string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		StatusCode: status,
		Code:       code,
	}
}

// WithDetail returns a copy of e carrying an extra field in the error body.
func (e *AppError) WithDetail(key string, value any) *AppError {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value

	cp := *e
	cp.Details = details
	return &cp
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func NotFoundError(resource string) *AppError {
	return NewAppError(
		ErrNotFound,
		fmt.Sprintf("%s not found", resource),
		http.StatusNotFound,
		"NOT_FOUND",
	)
}

func UnauthorizedError(message string) *AppError {
	if message == "" {
		message = "authentication required"
	}
	return NewAppError(ErrUnauthorized, message, http.StatusUnauthorized, "UNAUTHORIZED")
}

func ForbiddenError(message string) *AppError {
	if message == "" {
		message = "access denied"
	}
	return NewAppError(ErrForbidden, message, http.StatusForbidden, "FORBIDDEN")
}

func BadRequestError(message string) *AppError {
	return NewAppError(ErrInvalidInput, message, http.StatusBadRequest, "BAD_REQUEST")
}

func TokenExpiredError() *AppError {
	return NewAppError(ErrTokenExpired, "token has expired", http.StatusUnauthorized, "TOKEN_EXPIRED")
}

func TokenRevokedError() *AppError {
	return NewAppError(ErrTokenRevoked, "token has been revoked", http.StatusUnauthorized, "TOKEN_REVOKED")
}

func TokenInvalidError() *AppError {
	return NewAppError(ErrTokenInvalid, "token is invalid", http.StatusUnauthorized, "TOKEN_INVALID")
}

func RateLimitedError(retryAfterSeconds int) *AppError {
	return NewAppError(
		ErrRateLimited,
		fmt.Sprintf("too many requests, retry after %d seconds", retryAfterSeconds),
		http.StatusTooManyRequests,
		"RATE_LIMITED",
	).WithDetail("retry_after", retryAfterSeconds)
}

func InvalidOrExpiredError(message string) *AppError {
	return NewAppError(ErrInvalidOrExpired, message, http.StatusBadRequest, "INVALID_OR_EXPIRED")
}

func TransientError() *AppError {
	return NewAppError(
		ErrTransient,
		"service temporarily unavailable, please retry",
		http.StatusServiceUnavailable,
		"TRANSIENT",
	)
}

func InternalError() *AppError {
	return NewAppError(nil, "internal server error", http.StatusInternalServerError, "INTERNAL_ERROR")
}
