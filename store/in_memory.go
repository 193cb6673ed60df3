package store

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// InMemoryStore is a volatile TranscriptStore backed by a process local map.
// It is safe for concurrent access. Stored and returned transcripts are
// cloned to prevent external mutation of internal state.
//
// MaxEntries bounds memory: once reached, the oldest transcript is evicted.
type InMemoryStore struct {
	mu          sync.RWMutex
	transcripts map[string]*Transcript
	order       []string
	maxEntries  int
	closed      bool
}

// InMemoryOptions configures an InMemoryStore.
type InMemoryOptions struct {
	// MaxEntries caps the number of archived runs. Zero means unbounded.
	MaxEntries int
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore(optFns ...func(o *InMemoryOptions)) *InMemoryStore {
	opts := InMemoryOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryStore{
		transcripts: make(map[string]*Transcript),
		maxEntries:  opts.MaxEntries,
	}
}

// Save stores a clone of t.
func (s *InMemoryStore) Save(_ context.Context, t *Transcript) error {
	if err := validate(t); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if _, ok := s.transcripts[t.ID]; !ok {
		s.order = append(s.order, t.ID)
	}
	s.transcripts[t.ID] = t.Clone()

	for s.maxEntries > 0 && len(s.order) > s.maxEntries {
		delete(s.transcripts, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

// Get returns a clone of the stored transcript.
func (s *InMemoryStore) Get(_ context.Context, id string) (*Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	t, ok := s.transcripts[id]
	if !ok {
		return nil, NotFound(id)
	}
	return t.Clone(), nil
}

// List returns clones ordered by finish time, newest first.
func (s *InMemoryStore) List(_ context.Context, limit int) ([]*Transcript, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	out := make([]*Transcript, 0, len(s.transcripts))
	for _, t := range s.transcripts {
		out = append(out, t.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Transcript) int {
		if c := b.FinishedAt.Compare(a.FinishedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len reports the number of stored transcripts.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transcripts)
}

// Close releases the stored transcripts.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.transcripts = map[string]*Transcript{}
	s.order = nil
	return nil
}
