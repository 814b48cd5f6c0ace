// Package state persists index state documents as JSON files.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/augmentcode/augment-indexer/internal/domain"
)

// DefaultRoot is the directory used for per-branch state documents when no
// explicit path override is configured.
const DefaultRoot = ".augment-index-state"

const stateFileName = "state.json"

// FileStore implements domain.StateStore on the local filesystem.
type FileStore struct {
	root string

	// fixedPath, when set, pins every key to one file. Used for the
	// explicit state-path override.
	fixedPath string
}

// NewFileStore creates a store that keeps one state file per key under root.
func NewFileStore(root string) *FileStore {
	if root == "" {
		root = DefaultRoot
	}
	return &FileStore{root: root}
}

// NewFileStoreAt creates a store pinned to a single file, ignoring keys.
func NewFileStoreAt(path string) *FileStore {
	return &FileStore{fixedPath: path}
}

// Get returns the state for key, or (nil, nil) when no document exists.
// A document that exists but cannot be decoded returns ErrStateCorrupt.
func (s *FileStore) Get(ctx context.Context, key string) (*domain.IndexState, error) {
	path := s.pathFor(key)

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", path, err)
	}

	var state domain.IndexState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrStateCorrupt, path, err)
	}
	return &state, nil
}

// Put replaces the state for key. The document is written to a temporary
// file in the target directory and renamed into place, so a failed write
// never clobbers the previous document.
func (s *FileStore) Put(ctx context.Context, key string, state *domain.IndexState) error {
	path := s.pathFor(key)
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}

	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, stateFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close state file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file %s: %w", path, err)
	}
	return nil
}

func (s *FileStore) pathFor(key string) string {
	if s.fixedPath != "" {
		return s.fixedPath
	}
	return filepath.Join(s.root, key, stateFileName)
}
