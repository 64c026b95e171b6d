package requestlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS request_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	model TEXT NOT NULL,
	account_id TEXT NOT NULL,
	status INTEGER NOT NULL,
	retries INTEGER NOT NULL,
	chunks INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL,
	error_kind TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_request_log_created ON request_log(created_at);
CREATE INDEX IF NOT EXISTS idx_request_log_account ON request_log(account_id);
`

// SQLiteLog is a Recorder backed by a local SQLite database.
type SQLiteLog struct {
	db        *sql.DB
	logger    *slog.Logger
	closeOnce sync.Once

	insertStmt *sql.Stmt
	recentStmt *sql.Stmt
	pruneStmt  *sql.Stmt
}

// OpenSQLiteLog opens (creating if needed) the request log database.
func OpenSQLiteLog(path string, busyTimeout time.Duration, logger *slog.Logger) (*SQLiteLog, error) {
	if path == "" {
		return nil, fmt.Errorf("request log path cannot be empty")
	}
	if busyTimeout == 0 {
		busyTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open request log: %w", err)
	}

	// Single writer; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	l := &SQLiteLog{
		db:     db,
		logger: logger.With("component", "requestlog"),
	}

	if err := l.initialize(busyTimeout); err != nil {
		db.Close()
		return nil, err
	}
	if err := l.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	return l, nil
}

func (l *SQLiteLog) initialize(busyTimeout time.Duration) error {
	if _, err := l.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := l.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create request log schema: %w", err)
	}
	return nil
}

func (l *SQLiteLog) prepareStatements() error {
	var err error

	l.insertStmt, err = l.db.Prepare(`
		INSERT INTO request_log
			(request_id, model, account_id, status, retries, chunks, latency_ms, error_kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}

	l.recentStmt, err = l.db.Prepare(`
		SELECT id, request_id, model, account_id, status, retries, chunks, latency_ms, error_kind, created_at
		FROM request_log
		ORDER BY id DESC
		LIMIT ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare recent query: %w", err)
	}

	l.pruneStmt, err = l.db.Prepare(`DELETE FROM request_log WHERE created_at < ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare prune: %w", err)
	}

	return nil
}

// Record implements Recorder.
func (l *SQLiteLog) Record(ctx context.Context, rec Record) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := l.insertStmt.ExecContext(ctx,
		rec.RequestID,
		rec.Model,
		rec.AccountID,
		rec.Status,
		rec.Retries,
		rec.Chunks,
		rec.Latency.Milliseconds(),
		rec.ErrorKind,
		createdAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}
	return nil
}

// Recent returns the newest records, most recent first.
func (l *SQLiteLog) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.recentStmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query request log: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var latencyMs, createdAt int64
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.Model, &rec.AccountID,
			&rec.Status, &rec.Retries, &rec.Chunks, &latencyMs, &rec.ErrorKind, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan request record: %w", err)
		}
		rec.Latency = time.Duration(latencyMs) * time.Millisecond
		rec.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Prune deletes records created before the cutoff and returns the count.
func (l *SQLiteLog) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.pruneStmt.ExecContext(ctx, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune request log: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		l.logger.Info("pruned request log", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

// Stats summarizes the logged request outcomes.
type Stats struct {
	Total     int64 `json:"total"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

// Aggregate computes summary counters over all records.
func (l *SQLiteLog) Aggregate(ctx context.Context) (Stats, error) {
	var s Stats
	row := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status < 400 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status >= 400 THEN 1 ELSE 0 END), 0)
		FROM request_log`)
	if err := row.Scan(&s.Total, &s.Succeeded, &s.Failed); err != nil {
		return Stats{}, fmt.Errorf("failed to aggregate request log: %w", err)
	}
	return s, nil
}

// Clear deletes all records.
func (l *SQLiteLog) Clear(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM request_log`); err != nil {
		return fmt.Errorf("failed to clear request log: %w", err)
	}
	return nil
}

// Close releases prepared statements and the database handle.
func (l *SQLiteLog) Close() error {
	var closeErr error
	l.closeOnce.Do(func() {
		for _, stmt := range []*sql.Stmt{l.insertStmt, l.recentStmt, l.pruneStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}
		_, _ = l.db.Exec("PRAGMA wal_checkpoint(TRUNCATE);")
		closeErr = l.db.Close()
	})
	return closeErr
}
