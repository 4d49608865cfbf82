// Package state holds the values a session saves between turns and the
// persisters that keep them across process restarts.
package state

import (
	"sync"

	"github.com/itsmostafa/replbridge/internal/sandbox"
)

// Store is an ordered name to value mapping. Insertion order is preserved
// and overwriting a name keeps its original position.
type Store struct {
	mu     sync.RWMutex
	values sandbox.Bindings
}

// NewStore creates a store seeded with initial.
func NewStore(initial sandbox.Bindings) *Store {
	s := &Store{}
	for _, kv := range initial {
		s.values = s.values.Set(kv.Name, kv.Value)
	}
	return s
}

// Set binds name to value.
func (s *Store) Set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = s.values.Set(name, value)
}

// Update binds every entry of kv in order.
func (s *Store) Update(kv sandbox.Bindings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range kv {
		s.values = s.values.Set(b.Name, b.Value)
	}
}

// Delete removes name. Missing names are ignored. It reports whether name
// was present.
func (s *Store) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, kv := range s.values {
		if kv.Name == name {
			s.values = append(s.values[:i:i], s.values[i+1:]...)
			return true
		}
	}
	return false
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = nil
}

// Reset replaces the contents with values.
func (s *Store) Reset(values sandbox.Bindings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = nil
	for _, kv := range values {
		s.values = s.values.Set(kv.Name, kv.Value)
	}
}

func (s *Store) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.Get(name)
}

func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values.Names()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Bindings returns a snapshot of the store in insertion order.
func (s *Store) Bindings() sandbox.Bindings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.values.Clone()
	if out == nil {
		out = sandbox.Bindings{}
	}
	return out
}
