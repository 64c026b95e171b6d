package account

import "time"

// Health is the operational state of an account.
type Health string

const (
	// HealthHealthy accounts are eligible for selection.
	HealthHealthy Health = "healthy"

	// HealthDegraded accounts have exceeded the consecutive failure
	// threshold and are skipped by selection until a refresh succeeds.
	HealthDegraded Health = "degraded"

	// HealthDisabled accounts are never selected and never refreshed.
	// Set on permanent bans, repeated refresh failure, or by an operator.
	HealthDisabled Health = "disabled"
)

// FailureKind classifies a request failure attributed to an account.
type FailureKind string

const (
	// FailureAuthExpired means the upstream rejected the bearer token.
	// The token is cleared and an immediate refresh is requested.
	FailureAuthExpired FailureKind = "auth_expired"

	// FailureRateLimited means the upstream throttled the account.
	FailureRateLimited FailureKind = "rate_limited"

	// FailureUpstreamUnavailable means a transient network or service error.
	FailureUpstreamUnavailable FailureKind = "upstream_unavailable"

	// FailurePermanentlyBanned means the upstream blocked the account
	// outright. The account is disabled immediately.
	FailurePermanentlyBanned FailureKind = "permanently_banned"

	// FailureUnrecoverable means the request itself was malformed in a way
	// no other account could serve.
	FailureUnrecoverable FailureKind = "unrecoverable"
)

// Account represents one upstream identity.
type Account struct {
	// ID is the stable unique identifier.
	ID string

	// Email identifies the upstream account to operators.
	Email string

	// CredentialRef is an opaque reference to durable credential material
	// (session cookies or long-lived login material held by the store).
	// It is never used directly by the request path.
	CredentialRef string

	// AccessToken is the current bearer token. Empty when absent.
	AccessToken string

	// TokenExpiry is when the token expires. Zero when unknown; an
	// unknown expiry is treated as valid until the upstream says otherwise.
	TokenExpiry time.Time

	// Health is the operational state.
	Health Health

	// ConsecutiveFailures counts request failures since the last success.
	ConsecutiveFailures int

	// RefreshFailures counts consecutive token refresh failures.
	RefreshFailures int

	// LastUsedAt is when the account last served a successful request.
	LastUsedAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TokenValid reports whether the account holds a token usable at the given
// instant. A zero expiry means the expiry is unknown and the token is
// assumed valid.
func (a *Account) TokenValid(now time.Time) bool {
	if a.AccessToken == "" {
		return false
	}
	if a.TokenExpiry.IsZero() {
		return true
	}
	return a.TokenExpiry.After(now)
}

// Selectable reports whether the account may be handed out by the pool.
func (a *Account) Selectable(now time.Time) bool {
	return a.Health == HealthHealthy && a.TokenValid(now)
}

// Status is a read-only snapshot of one account for observability and
// administration.
type Status struct {
	ID                  string    `json:"id"`
	Email               string    `json:"email"`
	Health              Health    `json:"health"`
	TokenValid          bool      `json:"token_valid"`
	TokenExpiry         time.Time `json:"token_expiry,omitzero"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	RefreshFailures     int       `json:"refresh_failures"`
	LastUsedAt          time.Time `json:"last_used_at,omitzero"`
}
