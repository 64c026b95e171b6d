package store

import (
	"context"
	"sort"
	"sync"

	"zaigate/zaigate/pkg/account"
)

// MemoryStore is an in-memory Store implementation for tests and
// ephemeral deployments. Records do not survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]account.Account
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]account.Account),
	}
}

// Save stores a copy of the account record.
func (m *MemoryStore) Save(ctx context.Context, acct *account.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[acct.ID] = *acct
	return nil
}

// Load returns all stored accounts sorted by ID.
func (m *MemoryStore) Load(ctx context.Context) ([]*account.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accounts := make([]*account.Account, 0, len(m.accounts))
	for _, acct := range m.accounts {
		a := acct
		accounts = append(accounts, &a)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

// Delete removes one account record.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[id]; !ok {
		return ErrNotFound
	}
	delete(m.accounts, id)
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
