package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types for the coworking session client
var (
	// Session errors
	ErrSessionExpired = errors.New("session expired")

	// Token errors, carried by SessionExpiredError
	ErrNoAccessToken  = errors.New("no access token")
	ErrNoRefreshToken = errors.New("no refresh token")
	ErrNoTenant       = errors.New("no tenant key")

	// API errors
	ErrValidation    = errors.New("validation failed")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrRequestFailed = errors.New("request failed")
)

// SessionExpiredError is returned whenever the session can no longer be used:
// no access token at call time, missing refresh preconditions, or a refresh
// exchange that failed. Callers should prompt for re-authentication; session
// state is cleared independently through the invalidation channel.
type SessionExpiredError struct {
	Reason string
	// Err is what made the session unusable, e.g. ErrNoAccessToken
	Err error
}

func NewSessionExpired(reason string) *SessionExpiredError {
	return &SessionExpiredError{Reason: reason}
}

// SessionExpiredBy returns a SessionExpiredError caused by err. err may be nil.
func SessionExpiredBy(err error, reason string) *SessionExpiredError {
	return &SessionExpiredError{Reason: reason, Err: err}
}

func (e *SessionExpiredError) Error() string {
	if e.Reason == "" {
		return ErrSessionExpired.Error()
	}
	return fmt.Sprintf("%s: %s", ErrSessionExpired, e.Reason)
}

// Is makes errors.Is(err, ErrSessionExpired) match any SessionExpiredError.
func (e *SessionExpiredError) Is(target error) bool {
	return target == ErrSessionExpired
}

func (e *SessionExpiredError) Unwrap() error {
	return e.Err
}

// IsSessionExpired reports whether err signals an unusable session
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

// Kind classifies a failed API call
type Kind int

const (
	KindGeneric Kind = iota
	KindValidation
	KindForbidden
	KindNotFound
	KindRateLimited
)

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindForbidden:
		return ErrForbidden
	case KindNotFound:
		return ErrNotFound
	case KindRateLimited:
		return ErrRateLimited
	default:
		return ErrRequestFailed
	}
}

// KindFromStatus maps an HTTP status code onto an error kind.
// 401 is not mapped here: the executor owns it.
func KindFromStatus(status int) Kind {
	switch status {
	case http.StatusBadRequest:
		return KindValidation
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindGeneric
	}
}

// APIError is a non-auth failure reported by the coworking API. Message is
// safe to show to the member. None of these errors affect session state.
type APIError struct {
	Op      string
	// Status is zero when a 2xx response was unusable
	Status  int
	Kind    Kind
	Message string
}

func (e *APIError) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap lets errors.Is match the kind sentinel (ErrNotFound, ErrRateLimited, ...)
func (e *APIError) Unwrap() error {
	return e.Kind.sentinel()
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
