package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// lockStripes bounds the number of per-id mutexes for file merges
const lockStripes = 16

// FileStore persists one pretty-printed JSON document per session id under a
// single directory. Read-merge-write runs under a striped per-id lock and
// lands on disk through a temp-file rename so concurrent finalize calls for
// the same session cannot interleave partial writes.
type FileStore struct {
	dir    string
	logger *slog.Logger
	locks  [lockStripes]sync.Mutex
}

// NewFileStore creates the store directory if needed
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("store directory cannot be empty")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
	}

	return &FileStore{dir: dir, logger: logger}, nil
}

func (s *FileStore) lockFor(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return &s.locks[h.Sum32()%lockStripes]
}

func (s *FileStore) recordPath(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

// Upsert merges fields over the stored record and writes the result back.
// An unreadable existing record aborts the merge rather than clobbering it.
func (s *FileStore) Upsert(ctx context.Context, sessionID string, fields Record) (Record, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	existing, err := s.readRecord(sessionID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	merged := merge(existing, fields)

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode record for session %s: %w", sessionID, err)
	}

	if err := s.writeAtomic(sessionID, data); err != nil {
		return nil, err
	}

	s.logger.Debug("Session record written",
		slog.String("session_id", sessionID),
		slog.Int("fields", len(merged)),
	)

	return merged, nil
}

// Get returns the stored record, ErrNotFound for unknown ids, or a wrapped
// decode error for corrupt data.
func (s *FileStore) Get(ctx context.Context, sessionID string) (Record, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return s.readRecord(sessionID)
}

// Close is a no-op; the file store holds no open resources
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) readRecord(sessionID string) (Record, error) {
	data, err := os.ReadFile(s.recordPath(sessionID))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record for session %s: %w", sessionID, err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("corrupt record for session %s: %w", sessionID, err)
	}

	return record, nil
}

// writeAtomic writes through a temp file in the same directory and renames
// it over the final path
func (s *FileStore) writeAtomic(sessionID string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".record-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp record: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write record for session %s: %w", sessionID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp record: %w", err)
	}

	if err := os.Rename(tmpPath, s.recordPath(sessionID)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize record for session %s: %w", sessionID, err)
	}

	return nil
}
