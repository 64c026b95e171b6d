// Package requestlog records the outcome of every proxied request in a
// local SQLite database and prunes old records on a schedule.
package requestlog

import (
	"context"
	"time"
)

// Record is one proxied request outcome.
type Record struct {
	// ID is assigned by the store.
	ID int64 `json:"id"`

	// RequestID is the per-request correlation ID.
	RequestID string `json:"request_id"`

	// Model is the upstream model that served the request.
	Model string `json:"model"`

	// AccountID is the account that ultimately served (or last failed)
	// the request.
	AccountID string `json:"account_id"`

	// Status is the HTTP status returned to the client.
	Status int `json:"status"`

	// Retries is how many accounts were tried beyond the first.
	Retries int `json:"retries"`

	// Chunks is the number of stream chunks delivered.
	Chunks int `json:"chunks"`

	// Latency is the total request duration.
	Latency time.Duration `json:"latency"`

	// ErrorKind classifies the failure, empty on success.
	ErrorKind string `json:"error_kind,omitempty"`

	// CreatedAt is when the request completed.
	CreatedAt time.Time `json:"created_at"`
}

// Recorder accepts request outcome records.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// NopRecorder discards all records. Used when request logging is disabled.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(ctx context.Context, rec Record) error { return nil }
