// Package state persists the per-account sets of already-answered message ids.
// The state lives in a single human-inspectable JSON document mapping account
// id to a sorted list of processed message ids.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ErrPersistence indicates the state file could not be read or written.
var ErrPersistence = errors.New("state persistence failure")

// Store tracks which message ids have already been answered for each
// account. Every account's monitor loop is the only writer of its own
// entries; the store serializes whole-document writes to disk behind a
// single lock since writes are infrequent and small.
//
// When writing keeps failing after a retry, the store degrades to
// in-memory-only operation for the rest of the process lifetime rather
// than stopping message processing.
type Store struct {
	path   string
	logger *slog.Logger

	mu         sync.Mutex
	processed  map[string]map[string]struct{}
	memoryOnly bool
}

// Load reads the state file at path and returns a Store backed by it.
// An absent file is not an error and yields an empty store.
func Load(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Store{
		path:      path,
		logger:    logger.With("component", "state_store"),
		processed: make(map[string]map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("State file not found, starting with empty state", "path", path)
			return s, nil
		}
		return nil, fmt.Errorf("%w: failed to read state file %s: %v", ErrPersistence, path, err)
	}

	var doc map[string][]string
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse state file %s: %v", ErrPersistence, path, err)
	}

	total := 0
	for accountID, ids := range doc {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		s.processed[accountID] = set
		total += len(set)
	}

	s.logger.Info("Loaded message state", "path", path, "accounts", len(s.processed), "messages", total)
	return s, nil
}

// IsProcessed reports whether the message id has already been answered for
// the account.
func (s *Store) IsProcessed(accountID, messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.processed[accountID]
	if !ok {
		return false
	}
	_, ok = set[messageID]
	return ok
}

// MarkProcessed records the message id as answered for the account and
// immediately persists the updated mapping. The call is idempotent. A
// persistence failure is returned for logging but never undoes the
// in-memory record: durability degrades, processing continues.
func (s *Store) MarkProcessed(accountID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.processed[accountID]
	if !ok {
		set = make(map[string]struct{})
		s.processed[accountID] = set
	}
	if _, ok := set[messageID]; ok {
		return nil
	}
	set[messageID] = struct{}{}

	return s.persistLocked()
}

// Flush persists the current mapping to durable storage. It is also called
// on graceful shutdown.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// Snapshot returns a copy of the mapping with sorted message id lists.
func (s *Store) Snapshot() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() map[string][]string {
	doc := make(map[string][]string, len(s.processed))
	for accountID, set := range s.processed {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		doc[accountID] = ids
	}
	return doc
}

// persistLocked writes the mapping to disk atomically via a temp file and
// rename. Write failures are retried once; a second failure flips the store
// into memory-only mode. Callers must hold s.mu.
func (s *Store) persistLocked() error {
	if s.memoryOnly {
		return nil
	}

	data, err := json.MarshalIndent(s.snapshotLocked(), "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to encode state: %v", ErrPersistence, err)
	}

	writeErr := s.writeFile(data)
	if writeErr != nil {
		s.logger.Warn("State write failed, retrying once", "path", s.path, "error", writeErr)
		writeErr = s.writeFile(data)
	}
	if writeErr != nil {
		s.memoryOnly = true
		s.logger.Error("State write failed again, degrading to in-memory-only state",
			"path", s.path, "error", writeErr)
		return fmt.Errorf("%w: %v", ErrPersistence, writeErr)
	}

	return nil
}

func (s *Store) writeFile(data []byte) error {
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		// Best effort: don't leave the temp file behind.
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Path returns the location of the backing state file.
func (s *Store) Path() string {
	return filepath.Clean(s.path)
}
