package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sessionsSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	record     TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`

// SQLiteStore persists session records as JSON documents in a sqlite table.
// Per-id atomicity for the read-merge-write comes from running each Upsert
// inside one transaction.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the database and ensures the
// sessions table exists
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// sqlite serializes writers; a single connection avoids busy errors
	// between concurrent finalize calls
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sessionsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Upsert merges fields over the stored record inside a transaction
func (s *SQLiteStore) Upsert(ctx context.Context, sessionID string, fields Record) (Record, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := s.readRecordTx(ctx, tx, sessionID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	merged := merge(existing, fields)

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record for session %s: %w", sessionID, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, record, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`,
		sessionID, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to write record for session %s: %w", sessionID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit record for session %s: %w", sessionID, err)
	}

	s.logger.Debug("Session record written",
		slog.String("session_id", sessionID),
		slog.Int("fields", len(merged)),
	)

	return merged, nil
}

// Get returns the stored record, ErrNotFound for unknown ids, or a wrapped
// decode error for corrupt data
func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (Record, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM sessions WHERE id = ?`, sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record for session %s: %w", sessionID, err)
	}

	var record Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("corrupt record for session %s: %w", sessionID, err)
	}

	return record, nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) readRecordTx(ctx context.Context, tx *sql.Tx, sessionID string) (Record, error) {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT record FROM sessions WHERE id = ?`, sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record for session %s: %w", sessionID, err)
	}

	var record Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("corrupt record for session %s: %w", sessionID, err)
	}

	return record, nil
}
