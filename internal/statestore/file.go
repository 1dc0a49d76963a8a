package statestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists the state document as a single JSON file. Writes go
// through a temp file and rename so a crash mid-write never leaves a
// truncated document behind.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed store at path. The parent directory is
// created if missing.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("state file path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Load reads the state document from disk.
func (s *FileStore) Load(_ context.Context) ([]byte, bool, error) {
	doc, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read state file: %w", err)
	}
	return doc, true, nil
}

// Save atomically replaces the state document on disk.
func (s *FileStore) Save(_ context.Context, doc []byte) error {
	if doc == nil {
		return fmt.Errorf("state document is required")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}
