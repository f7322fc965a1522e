package memstore

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/oklog/ulid/v2"

	"github.com/promptdeck/promptdeck/pkg/bulk/store"
)

// Store is an in-memory implementation of store.Store for tests and
// dry runs.
type Store struct {
	mu      sync.RWMutex
	entropy *ulid.MonotonicEntropy
	prompts map[string]store.Prompt
	order   []string
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		entropy: ulid.Monotonic(rand.Reader, 0),
		prompts: make(map[string]store.Prompt),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// Create implements store.Store.
func (s *Store) Create(ctx context.Context, p store.Prompt) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := ulid.MustNew(ulid.Now(), s.entropy).String()
	p.ID = id
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.prompts[id] = p
	s.order = append(s.order, id)
	return id, nil
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, id string, patch store.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.prompts[id]
	if !ok {
		return errors.Newf("memstore: no prompt %s", id)
	}
	if patch.ThumbnailURL != nil {
		p.ThumbnailURL = *patch.ThumbnailURL
	}
	if patch.Invisible != nil {
		p.Invisible = *patch.Invisible
	}
	s.prompts[id] = p
	return nil
}

// Get returns a stored prompt by id.
func (s *Store) Get(id string) (store.Prompt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prompts[id]
	return p, ok
}

// All returns stored prompts in creation order.
func (s *Store) All() []store.Prompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Prompt, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.prompts[id])
	}
	return out
}
