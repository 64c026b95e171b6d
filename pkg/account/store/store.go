// Package store provides durable persistence for account records.
//
// The pool is authoritative at runtime; the store exists so accounts and
// their tokens survive a restart. SQLiteStore is the production backend;
// MemoryStore backs tests.
package store

import (
	"context"
	"errors"

	"zaigate/zaigate/pkg/account"
)

// ErrNotFound is returned when no record exists for an account ID.
var ErrNotFound = errors.New("account record not found")

// Store is the credential store boundary. Implementations are assumed
// durable: a successful Save must survive process restart.
type Store interface {
	// Load returns all persisted accounts.
	Load(ctx context.Context) ([]*account.Account, error)

	// Save inserts or updates one account record.
	Save(ctx context.Context, acct *account.Account) error

	// Delete removes one account record.
	Delete(ctx context.Context, id string) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
