// Package agentstore persists per-agent key/value state and an append-only
// audit log of dispatched messages in a local SQLite database, so a restart
// doesn't lose an adapter's cursor state or the record of what was routed
// where.
package agentstore

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps a single-writer SQLite connection holding the kv and
// audit_log tables.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and ensures its schema exists.
// SQLite is single-writer by design, so the connection pool is capped at
// one connection and callers are serialized by database/sql instead of
// contending for the file lock directly.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("agentstore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("agentstore: pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			agent_id TEXT NOT NULL,
			key      TEXT NOT NULL,
			value    TEXT NOT NULL,
			PRIMARY KEY (agent_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id  TEXT NOT NULL,
			action    TEXT NOT NULL,
			detail    TEXT NOT NULL,
			at        TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_agent_at ON audit_log(agent_id, at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("agentstore: migrate: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// SetKV upserts key's value for agentID.
func (s *Store) SetKV(agentID, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (agent_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(agent_id, key) DO UPDATE SET value = excluded.value`,
		agentID, key, value,
	)
	if err != nil {
		return fmt.Errorf("agentstore: set %s/%s: %w", agentID, key, err)
	}
	return nil
}

// GetKV returns key's value for agentID, and whether it was set.
func (s *Store) GetKV(agentID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE agent_id = ? AND key = ?`, agentID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("agentstore: get %s/%s: %w", agentID, key, err)
	}
	return value, true, nil
}

// AuditEntry is one recorded audit_log row.
type AuditEntry struct {
	AgentID string
	Action  string
	Detail  string
	At      time.Time
}

// RecordAudit appends an audit entry for agentID.
func (s *Store) RecordAudit(agentID, action, detail string) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_log (agent_id, action, detail, at) VALUES (?, ?, ?, ?)`,
		agentID, action, detail, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("agentstore: record audit for %s: %w", agentID, err)
	}
	return nil
}

// ListAudit returns agentID's most recent audit entries, newest first,
// capped at limit (a non-positive limit defaults to 100).
func (s *Store) ListAudit(agentID string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT agent_id, action, detail, at FROM audit_log
		 WHERE agent_id = ? ORDER BY id DESC LIMIT ?`,
		agentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("agentstore: list audit for %s: %w", agentID, err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var at string
		if err := rows.Scan(&e.AgentID, &e.Action, &e.Detail, &at); err != nil {
			return nil, fmt.Errorf("agentstore: scan audit row: %w", err)
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	return out, rows.Err()
}
