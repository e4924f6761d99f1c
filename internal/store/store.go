package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Record is one persisted session document: a mapping of field names to
// JSON-scalar values. Core-derived aggregates and caller-supplied metadata
// share the same namespace.
type Record map[string]any

// ErrNotFound reports a session id with no stored record. A missing record
// is a normal condition; corrupt stored data is surfaced as a distinct error.
var ErrNotFound = errors.New("session record not found")

// Store is a merge-safe persisted record store keyed by session id.
// Implementations must make Upsert atomic per session id so near-simultaneous
// merges cannot lose fields.
type Store interface {
	// Upsert performs a field-wise merge of fields over the stored record:
	// every key in fields overwrites its counterpart, all other stored keys
	// are preserved. It returns the merged record as written.
	Upsert(ctx context.Context, sessionID string, fields Record) (Record, error)

	// Get returns the stored record for the session id, or ErrNotFound.
	Get(ctx context.Context, sessionID string) (Record, error)

	// Close releases store resources.
	Close() error
}

// merge overlays fields onto existing without mutating either argument
func merge(existing, fields Record) Record {
	merged := make(Record, len(existing)+len(fields))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return merged
}

// validateSessionID rejects ids that cannot safely address a record.
// Ids are opaque caller-supplied strings, so path-like components are
// refused rather than escaped.
func validateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if strings.ContainsAny(sessionID, "/\\") || strings.Contains(sessionID, "..") {
		return fmt.Errorf("session id %q contains path elements", sessionID)
	}
	return nil
}
