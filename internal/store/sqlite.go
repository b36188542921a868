package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no cgo dependency
)

// SQLiteStore is the durable Store implementation backed by a single
// SQLite database file hosting the approval_leases, rate_budget_events,
// and repetition_buckets tables. Every mutating operation runs inside one
// transaction per call.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the database at path and
// ensures its schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1) // WAL-mode single-writer discipline

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStoreWithDB wraps an already-open *sql.DB (used by tests with
// go-sqlmock).
func NewSQLiteStoreWithDB(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	return s, nil
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA busy_timeout=5000`,
		`CREATE TABLE IF NOT EXISTS approval_leases (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			agent_name TEXT NOT NULL DEFAULT '',
			tool TEXT NOT NULL,
			expires_at_ms INTEGER NOT NULL,
			reason TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leases_lookup
			ON approval_leases(session_id, agent_name, tool, expires_at_ms)`,
		`CREATE TABLE IF NOT EXISTS rate_budget_events (
			key TEXT NOT NULL,
			ts_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rate_events_key ON rate_budget_events(key, ts_ms)`,
		`CREATE TABLE IF NOT EXISTS repetition_buckets (
			bucket TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			last_seen_ms INTEGER NOT NULL,
			streak_count INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init sqlite store: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) InsertLease(ctx context.Context, lease Lease) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// sweep expired entries sharing this id before inserting.
	if _, err := tx.ExecContext(ctx, `DELETE FROM approval_leases WHERE id = ?`, lease.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO approval_leases (id, session_id, agent_name, tool, expires_at_ms, reason)
		VALUES (?, ?, ?, ?, ?, ?)`,
		lease.ID, lease.SessionID, lease.AgentName, lease.Tool, lease.ExpiresAtMs, lease.Reason,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) FindActiveLease(ctx context.Context, sessionID, agentName, tool string, nowMs int64) (Lease, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Lease{}, false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM approval_leases WHERE expires_at_ms <= ?`, nowMs); err != nil {
		return Lease{}, false, err
	}

	row := tx.QueryRowContext(ctx, `
		SELECT id, session_id, agent_name, tool, expires_at_ms, reason
		FROM approval_leases
		WHERE session_id = ?
		  AND (agent_name = '' OR agent_name = ?)
		  AND (tool = '*' OR tool = ?)
		  AND expires_at_ms > ?
		ORDER BY expires_at_ms DESC
		LIMIT 1`,
		sessionID, agentName, tool, nowMs,
	)

	var l Lease
	if err := row.Scan(&l.ID, &l.SessionID, &l.AgentName, &l.Tool, &l.ExpiresAtMs, &l.Reason); err != nil {
		if err == sql.ErrNoRows {
			return Lease{}, false, tx.Commit()
		}
		return Lease{}, false, err
	}
	return l, true, tx.Commit()
}

func (s *SQLiteStore) ConsumeRateBudget(ctx context.Context, key string, windowSec, max int, nowMs int64) (RateResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return RateResult{}, err
	}
	defer tx.Rollback()

	windowStart := nowMs - int64(windowSec)*1000

	if _, err := tx.ExecContext(ctx, `DELETE FROM rate_budget_events WHERE key = ? AND ts_ms < ?`, key, windowStart); err != nil {
		return RateResult{}, err
	}
	// retention prune across all keys so abandoned sessions don't
	// accumulate rows forever.
	if _, err := tx.ExecContext(ctx, `DELETE FROM rate_budget_events WHERE ts_ms < ?`, nowMs-24*60*60*1000); err != nil {
		return RateResult{}, err
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM rate_budget_events WHERE key = ?`, key).Scan(&count); err != nil {
		return RateResult{}, err
	}

	if count >= max {
		return RateResult{Allowed: false, Count: count, Max: max}, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO rate_budget_events (key, ts_ms) VALUES (?, ?)`, key, nowMs); err != nil {
		return RateResult{}, err
	}
	return RateResult{Allowed: true, Count: count + 1, Max: max}, tx.Commit()
}

func (s *SQLiteStore) ConsumeRepetition(ctx context.Context, bucket, fingerprint string, cooldownSec int, nowMs int64) (RepetitionResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return RepetitionResult{}, err
	}
	defer tx.Rollback()

	var prevFingerprint string
	var prevLastSeen int64
	var prevCount int
	err = tx.QueryRowContext(ctx, `
		SELECT fingerprint, last_seen_ms, streak_count FROM repetition_buckets WHERE bucket = ?`,
		bucket,
	).Scan(&prevFingerprint, &prevLastSeen, &prevCount)

	cooldownMs := int64(cooldownSec) * 1000
	repeated := err == nil && prevFingerprint == fingerprint && nowMs-prevLastSeen <= cooldownMs

	count := 1
	if repeated {
		count = prevCount + 1
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO repetition_buckets (bucket, fingerprint, last_seen_ms, streak_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(bucket) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			last_seen_ms = excluded.last_seen_ms,
			streak_count = excluded.streak_count`,
		bucket, fingerprint, nowMs, count,
	); err != nil {
		return RepetitionResult{}, err
	}

	return RepetitionResult{Count: count, Repeated: repeated}, tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
