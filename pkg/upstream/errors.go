package upstream

import (
	"errors"
	"fmt"
	"time"

	"zaigate/zaigate/pkg/account"
)

// AuthError represents an authentication failure: the upstream rejected the
// account's bearer token (HTTP 401 or an invalid-session signature).
type AuthError struct {
	// AccountID is the account whose token was rejected
	AccountID string

	// Message is the error message from the upstream
	Message string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("account %q authentication failed: %s", e.AccountID, e.Message)
}

// RateLimitError represents a rate limit exceeded error (HTTP 429).
// It includes the retry-after duration if provided by the upstream.
type RateLimitError struct {
	// AccountID is the account that was rate limited
	AccountID string

	// RetryAfter is the duration to wait before retrying (if provided)
	RetryAfter time.Duration

	// Message is the error message from the upstream
	Message string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("account %q rate limited (retry after %s): %s",
			e.AccountID, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("account %q rate limited: %s", e.AccountID, e.Message)
}

// UnavailableError represents a transient upstream failure: a 5xx response,
// a network error, or a timeout. Retriable on another account.
type UnavailableError struct {
	// StatusCode is the HTTP status code (0 for network errors)
	StatusCode int

	// Message is the error message
	Message string

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream unavailable (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream unavailable: %s", e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

// BannedError represents an account-level block by the upstream. The
// account must be disabled; no retry on this account will ever succeed.
type BannedError struct {
	// AccountID is the banned account
	AccountID string

	// Message is the error message from the upstream
	Message string
}

// Error implements the error interface.
func (e *BannedError) Error() string {
	return fmt.Sprintf("account %q banned by upstream: %s", e.AccountID, e.Message)
}

// UnrecoverableError represents a request the upstream rejects regardless
// of account: malformed payload, unsupported parameters. Never retried.
type UnrecoverableError struct {
	// StatusCode is the HTTP status code
	StatusCode int

	// Message is the error message from the upstream
	Message string
}

// Error implements the error interface.
func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("upstream rejected request (status %d): %s", e.StatusCode, e.Message)
}

// ParseError represents a response parsing failure.
type ParseError struct {
	// RawResponse is the raw response body that failed to parse
	RawResponse string

	// Cause is the underlying parse error
	Cause error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("upstream response parse error: %v", e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// StreamError represents an error that occurred mid-stream. It is delivered
// through the chunk channel so consumers observe it in order.
type StreamError struct {
	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("upstream stream error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("upstream stream error: %s", e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *StreamError) Unwrap() error {
	return e.Cause
}

// Classify maps an upstream error to the account failure taxonomy the pool
// acts on. Errors that do not implicate the account (parse errors, stream
// breaks) classify as upstream unavailability.
func Classify(err error) account.FailureKind {
	var (
		authErr   *AuthError
		rateErr   *RateLimitError
		banErr    *BannedError
		unrecErr  *UnrecoverableError
		streamErr *StreamError
	)

	switch {
	case errors.As(err, &authErr):
		return account.FailureAuthExpired
	case errors.As(err, &rateErr):
		return account.FailureRateLimited
	case errors.As(err, &banErr):
		return account.FailurePermanentlyBanned
	case errors.As(err, &unrecErr):
		return account.FailureUnrecoverable
	case errors.As(err, &streamErr):
		return account.FailureUpstreamUnavailable
	default:
		return account.FailureUpstreamUnavailable
	}
}

// Retriable reports whether a failure of this classification may be retried
// on a different account within the same request.
func Retriable(kind account.FailureKind) bool {
	switch kind {
	case account.FailureAuthExpired, account.FailureRateLimited, account.FailureUpstreamUnavailable:
		return true
	default:
		return false
	}
}
