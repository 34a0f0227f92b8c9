// Package reporters persists the tracked-account list with its resolved
// DIDs as a small JSON file. The file is refreshed offline by cmd/resolve;
// the server only reads it at startup.
package reporters

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hoophead/bsky-stream/internal/domain"
)

// Store reads and writes the reporters file.
type Store struct {
	path string
}

// NewStore creates a store backed by the JSON file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the reporter list. A missing file yields an empty list rather
// than an error so a fresh deployment can rely on live resolution.
func (s *Store) Load() ([]domain.Reporter, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read reporters file: %w", err)
	}

	var list []domain.Reporter
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("unmarshal reporters file: %w", err)
	}
	return list, nil
}

// Save writes the reporter list atomically via a temp file rename.
func (s *Store) Save(list []domain.Reporter) error {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal reporters: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create reporters directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp reporters file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp reporters file: %w", err)
	}
	return nil
}

// DIDIndex returns a handle → DID lookup for the entries that already carry
// a resolved DID.
func DIDIndex(list []domain.Reporter) map[string]string {
	idx := make(map[string]string, len(list))
	for _, r := range list {
		if r.DID != "" {
			idx[r.Handle] = r.DID
		}
	}
	return idx
}

// Handles returns the handle of every entry, in file order.
func Handles(list []domain.Reporter) []string {
	out := make([]string, len(list))
	for i, r := range list {
		out[i] = r.Handle
	}
	return out
}
