package account

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrNotAvailable is returned by Select when no healthy account with a
// valid token remains outside the exclusion set.
var ErrNotAvailable = errors.New("no eligible account available")

// ErrNotFound is returned when an account ID is unknown to the pool.
var ErrNotFound = errors.New("account not found")

// entry pairs an account with its own mutex so that mutations on different
// accounts never contend.
type entry struct {
	mu   sync.Mutex
	acct *Account
}

// Pool is the in-memory registry of accounts plus a rotation cursor.
//
// The registry lock guards membership and the cursor; each account's state
// is guarded by its entry lock. Lock ordering is registry before entry.
type Pool struct {
	mu       sync.RWMutex
	accounts map[string]*entry
	order    []string
	cursor   int

	failureThreshold int
	refreshCh        chan string
	logger           *slog.Logger
}

// NewPool creates an empty pool. failureThreshold is the consecutive
// request failure count after which an account is marked Degraded.
func NewPool(failureThreshold int, logger *slog.Logger) *Pool {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		accounts:         make(map[string]*entry),
		failureThreshold: failureThreshold,
		// Buffered so reportFailure never blocks on a slow refresh loop.
		refreshCh: make(chan string, 64),
		logger:    logger,
	}
}

// RefreshRequests returns the channel on which the pool signals account IDs
// that need an immediate out-of-cycle token refresh.
func (p *Pool) RefreshRequests() <-chan string {
	return p.refreshCh
}

// Add registers an account. An account with a duplicate ID replaces the
// existing record but keeps its rotation position.
func (p *Pool) Add(acct *Account) {
	if acct.Health == "" {
		acct.Health = HealthHealthy
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.accounts[acct.ID]; ok {
		e.mu.Lock()
		e.acct = acct
		e.mu.Unlock()
		return
	}

	p.accounts[acct.ID] = &entry{acct: acct}
	p.order = append(p.order, acct.ID)
}

// Remove retires an account from the pool.
func (p *Pool) Remove(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.accounts[id]; !ok {
		return ErrNotFound
	}
	delete(p.accounts, id)

	for i, oid := range p.order {
		if oid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			if p.cursor > i {
				p.cursor--
			}
			break
		}
	}
	if len(p.order) > 0 {
		p.cursor %= len(p.order)
	} else {
		p.cursor = 0
	}

	return nil
}

// Get returns a copy of the account with the given ID.
func (p *Pool) Get(id string) (Account, error) {
	p.mu.RLock()
	e, ok := p.accounts[id]
	p.mu.RUnlock()
	if !ok {
		return Account{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.acct, nil
}

// Len returns the number of registered accounts.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.accounts)
}

// CheckReady reports whether the pool can serve a request right now. It
// has the shape of a readiness probe: an empty pool fails, and so does a
// pool whose accounts are all disabled or hold expired tokens, since
// every dispatch against such a pool returns ErrNotAvailable.
func (p *Pool) CheckReady(context.Context) error {
	now := time.Now()

	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.accounts) == 0 {
		return errors.New("no accounts registered")
	}
	for _, e := range p.accounts {
		e.mu.Lock()
		ok := e.acct.Selectable(now)
		e.mu.Unlock()
		if ok {
			return nil
		}
	}
	return errors.New("no account is selectable")
}

// Select returns a copy of the next eligible account in rotation order,
// skipping accounts whose ID is in excluding. Eligibility is re-checked at
// selection time: an account whose token has expired since the last refresh
// tick is never handed out.
//
// Returns ErrNotAvailable when no eligible account exists.
func (p *Pool) Select(excluding map[string]struct{}) (Account, error) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.order)
	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		id := p.order[idx]

		if _, skip := excluding[id]; skip {
			continue
		}

		e := p.accounts[id]
		e.mu.Lock()
		ok := e.acct.Selectable(now)
		var acct Account
		if ok {
			acct = *e.acct
		}
		e.mu.Unlock()

		if ok {
			p.cursor = (idx + 1) % n
			return acct, nil
		}
	}

	return Account{}, ErrNotAvailable
}

// ReportSuccess resets the failure counter and stamps last use.
func (p *Pool) ReportSuccess(id string) {
	p.withEntry(id, func(a *Account) {
		a.ConsecutiveFailures = 0
		a.LastUsedAt = time.Now()
		a.UpdatedAt = time.Now()
	})
}

// ReportFailure records a classified failure against an account and adjusts
// its state:
//
//   - AuthExpired clears the token and signals an immediate refresh.
//   - PermanentlyBanned disables the account outright.
//   - Crossing the consecutive failure threshold marks the account Degraded.
func (p *Pool) ReportFailure(id string, kind FailureKind) {
	var requestRefresh bool

	p.withEntry(id, func(a *Account) {
		a.ConsecutiveFailures++
		a.UpdatedAt = time.Now()

		switch kind {
		case FailurePermanentlyBanned:
			a.Health = HealthDisabled
			p.logger.Warn("account disabled by upstream ban", "account_id", id)
			return
		case FailureAuthExpired:
			a.AccessToken = ""
			a.TokenExpiry = time.Time{}
			requestRefresh = true
		}

		if a.Health == HealthHealthy && a.ConsecutiveFailures >= p.failureThreshold {
			a.Health = HealthDegraded
			p.logger.Warn("account degraded",
				"account_id", id,
				"consecutive_failures", a.ConsecutiveFailures,
				"kind", string(kind),
			)
		}
	})

	if requestRefresh {
		select {
		case p.refreshCh <- id:
		default:
			// The refresh loop is behind; the next scheduled tick will
			// pick the account up anyway since its token is now absent.
		}
	}
}

// SetToken installs a freshly obtained token. A Degraded account recovers to
// Healthy, and refresh failure bookkeeping is reset.
func (p *Pool) SetToken(id, token string, expiry time.Time) error {
	return p.withEntryErr(id, func(a *Account) {
		a.AccessToken = token
		a.TokenExpiry = expiry
		a.RefreshFailures = 0
		a.ConsecutiveFailures = 0
		if a.Health == HealthDegraded {
			a.Health = HealthHealthy
		}
		a.UpdatedAt = time.Now()
	})
}

// RecordRefreshFailure increments the refresh failure counter and returns
// the new count.
func (p *Pool) RecordRefreshFailure(id string) int {
	var count int
	p.withEntry(id, func(a *Account) {
		a.RefreshFailures++
		a.UpdatedAt = time.Now()
		count = a.RefreshFailures
	})
	return count
}

// SetHealth sets an account's health directly. Used by the lifecycle
// manager (disable after repeated refresh failure) and by operators.
func (p *Pool) SetHealth(id string, h Health) error {
	return p.withEntryErr(id, func(a *Account) {
		a.Health = h
		a.UpdatedAt = time.Now()
	})
}

// ListStatus returns a read-only snapshot of every account in rotation
// order. It never mutates state.
func (p *Pool) ListStatus() []Status {
	now := time.Now()

	p.mu.RLock()
	defer p.mu.RUnlock()

	statuses := make([]Status, 0, len(p.order))
	for _, id := range p.order {
		e := p.accounts[id]
		e.mu.Lock()
		a := e.acct
		statuses = append(statuses, Status{
			ID:                  a.ID,
			Email:               a.Email,
			Health:              a.Health,
			TokenValid:          a.TokenValid(now),
			TokenExpiry:         a.TokenExpiry,
			ConsecutiveFailures: a.ConsecutiveFailures,
			RefreshFailures:     a.RefreshFailures,
			LastUsedAt:          a.LastUsedAt,
		})
		e.mu.Unlock()
	}

	return statuses
}

// Accounts returns copies of all registered accounts in rotation order.
// Used by the lifecycle manager to scan for tokens nearing expiry.
func (p *Pool) Accounts() []Account {
	p.mu.RLock()
	defer p.mu.RUnlock()

	accounts := make([]Account, 0, len(p.order))
	for _, id := range p.order {
		e := p.accounts[id]
		e.mu.Lock()
		accounts = append(accounts, *e.acct)
		e.mu.Unlock()
	}

	return accounts
}

// withEntry runs fn with the account's entry lock held. Unknown IDs are
// ignored; failure reports can race with explicit removal.
func (p *Pool) withEntry(id string, fn func(*Account)) {
	_ = p.withEntryErr(id, fn)
}

func (p *Pool) withEntryErr(id string, fn func(*Account)) error {
	p.mu.RLock()
	e, ok := p.accounts[id]
	p.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.acct)
	return nil
}
