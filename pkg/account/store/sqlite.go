package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"zaigate/zaigate/pkg/account"
)

// SQLiteStore implements Store using SQLite for persistence.
//
// The store uses a write-ahead log (WAL) for better concurrent performance
// and checkpoints it on close. Token material is stored verbatim; the
// database file is the credential boundary and must be protected by file
// permissions.
type SQLiteStore struct {
	db        *sql.DB
	dbPath    string
	mu        sync.RWMutex
	closeOnce sync.Once

	saveStmt   *sql.Stmt
	loadStmt   *sql.Stmt
	deleteStmt *sql.Stmt
}

// SQLiteStoreConfig configures the SQLite store.
type SQLiteStoreConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteStore creates a new SQLite store with default settings.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(SQLiteStoreConfig{
		DBPath:      dbPath,
		BusyTimeout: 5 * time.Second,
	})
}

// NewSQLiteStoreWithConfig creates a new SQLite store with custom configuration.
func NewSQLiteStoreWithConfig(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{
		db:     db,
		dbPath: cfg.DBPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return s, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		credential_ref TEXT,
		access_token TEXT,
		token_expiry INTEGER,
		health TEXT NOT NULL,
		consecutive_failures INTEGER NOT NULL DEFAULT 0,
		refresh_failures INTEGER NOT NULL DEFAULT 0,
		last_used_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_health ON accounts(health);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.saveStmt, err = s.db.Prepare(`
		INSERT INTO accounts (id, email, credential_ref, access_token, token_expiry, health,
			consecutive_failures, refresh_failures, last_used_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			credential_ref = excluded.credential_ref,
			access_token = excluded.access_token,
			token_expiry = excluded.token_expiry,
			health = excluded.health,
			consecutive_failures = excluded.consecutive_failures,
			refresh_failures = excluded.refresh_failures,
			last_used_at = excluded.last_used_at,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}

	s.loadStmt, err = s.db.Prepare(`
		SELECT id, email, credential_ref, access_token, token_expiry, health,
			consecutive_failures, refresh_failures, last_used_at, created_at, updated_at
		FROM accounts
		ORDER BY created_at, id
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare load statement: %w", err)
	}

	s.deleteStmt, err = s.db.Prepare(`DELETE FROM accounts WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	return nil
}

// Save persists one account record.
func (s *SQLiteStore) Save(ctx context.Context, acct *account.Account) error {
	if acct == nil {
		return fmt.Errorf("account cannot be nil")
	}
	if acct.ID == "" {
		return fmt.Errorf("account id cannot be empty")
	}

	now := time.Now()
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = now
	}
	if acct.UpdatedAt.IsZero() {
		acct.UpdatedAt = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.saveStmt.ExecContext(ctx,
		acct.ID,
		acct.Email,
		acct.CredentialRef,
		acct.AccessToken,
		unixOrZero(acct.TokenExpiry),
		string(acct.Health),
		acct.ConsecutiveFailures,
		acct.RefreshFailures,
		unixOrZero(acct.LastUsedAt),
		acct.CreatedAt.Unix(),
		acct.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	return nil
}

// Load returns all persisted accounts in creation order.
func (s *SQLiteStore) Load(ctx context.Context) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.loadStmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account
	for rows.Next() {
		var (
			acct        account.Account
			health      string
			tokenExpiry int64
			lastUsedAt  int64
			createdAt   int64
			updatedAt   int64
		)

		if err := rows.Scan(
			&acct.ID,
			&acct.Email,
			&acct.CredentialRef,
			&acct.AccessToken,
			&tokenExpiry,
			&health,
			&acct.ConsecutiveFailures,
			&acct.RefreshFailures,
			&lastUsedAt,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		acct.Health = account.Health(health)
		acct.TokenExpiry = timeOrZero(tokenExpiry)
		acct.LastUsedAt = timeOrZero(lastUsedAt)
		acct.CreatedAt = time.Unix(createdAt, 0)
		acct.UpdatedAt = time.Unix(updatedAt, 0)

		accounts = append(accounts, &acct)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return accounts, nil
}

// Delete removes one account record.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("account id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.deleteStmt.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases database resources. Close is idempotent.
func (s *SQLiteStore) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		if s.saveStmt != nil {
			s.saveStmt.Close()
		}
		if s.loadStmt != nil {
			s.loadStmt.Close()
		}
		if s.deleteStmt != nil {
			s.deleteStmt.Close()
		}

		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(unix int64) time.Time {
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}
