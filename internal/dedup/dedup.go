// Package dedup provides a bounded insertion-ordered set of transaction keys.
package dedup

import "sync"

// Store suppresses reprocessing of already-seen transaction keys. It keeps
// at most capacity keys; on overflow the oldest keys are evicted. Eviction
// means a sufficiently old transaction could reappear as new if the feed
// re-delivers it after more than capacity newer transactions — an accepted
// bounded-staleness tradeoff.
//
// Safe for concurrent use: the poll cycle, checkpoint timer, and status
// server all touch the store.
type Store struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]struct{}
	order    []string
}

// New creates a store bounded at capacity keys.
func New(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
	}
}

// Has reports whether key has been recorded.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[key]
	return ok
}

// Add records key, evicting the oldest entries if the store exceeds capacity.
// Adding a key that is already present is a no-op.
func (s *Store) Add(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	s.order = append(s.order, key)
	s.evictLocked()
}

func (s *Store) evictLocked() {
	excess := len(s.order) - s.capacity
	if excess <= 0 {
		return
	}
	for _, key := range s.order[:excess] {
		delete(s.seen, key)
	}
	remaining := make([]string, len(s.order)-excess)
	copy(remaining, s.order[excess:])
	s.order = remaining
}

// Len returns the number of recorded keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Keys returns a snapshot of the recorded keys in insertion order,
// oldest first.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Warm bulk-loads keys in order, applying the usual capacity bound. Used to
// restore the store from the journal at startup.
func (s *Store) Warm(keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		s.order = append(s.order, key)
	}
	s.evictLocked()
}
