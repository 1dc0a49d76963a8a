// Package statestore persists the serialized game state document. Backends
// treat the document as an opaque blob; encoding and schema belong to the
// game package.
package statestore

import (
	"context"
	"fmt"
	"sync"
)

// Store reads and writes one opaque state document.
type Store interface {
	// Load returns the stored document. The boolean reports whether a
	// document exists; a fresh store returns (nil, false, nil).
	Load(ctx context.Context) ([]byte, bool, error)
	// Save replaces the stored document.
	Save(ctx context.Context, doc []byte) error
	// Close releases backend resources.
	Close() error
}

// MemoryStore keeps the document in process memory. It is the backend for
// tests and for running without persistence.
type MemoryStore struct {
	mu     sync.RWMutex
	doc    []byte
	loaded bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the stored document.
func (s *MemoryStore) Load(_ context.Context) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return nil, false, nil
	}
	doc := make([]byte, len(s.doc))
	copy(doc, s.doc)
	return doc, true, nil
}

// Save replaces the stored document.
func (s *MemoryStore) Save(_ context.Context, doc []byte) error {
	if doc == nil {
		return fmt.Errorf("state document is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = make([]byte, len(doc))
	copy(s.doc, doc)
	s.loaded = true
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
