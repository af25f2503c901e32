// Package memory implements an in-memory artifact store for tests.
package memory

import (
	"context"
	"sync"
)

// Store keeps artifacts in a map.
type Store struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// New creates an empty Store.
func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

// Put stores a copy of data under path and returns a mem:// URI.
func (s *Store) Put(_ context.Context, path string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = append([]byte(nil), data...)
	return "mem://" + path, nil
}

// Get returns the stored bytes for path.
func (s *Store) Get(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[path]
	return data, ok
}

// Len reports how many artifacts are stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
