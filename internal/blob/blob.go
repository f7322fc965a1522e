// Package blob stores generated image artifacts and hands back their
// public URLs.
package blob

import (
	"context"
	"sync"
)

// Store writes a publicly readable object and returns its URL.
type Store interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
}

// Memory keeps objects in a map, for tests and dry runs.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemory creates an empty in-memory blob store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Put implements Store. URLs use the mem:// scheme.
func (m *Memory) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.objects[path] = buf
	return "mem://" + path, nil
}

// Get returns a stored object.
func (m *Memory) Get(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[path]
	return data, ok
}

// Len reports the number of stored objects.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
