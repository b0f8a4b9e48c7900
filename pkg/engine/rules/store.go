package rules

import (
	"fmt"
	"slices"
	"sync"
)

// Store keeps every published rule set by version. A scan pins the set it
// resolves at start, so publishing a new version never affects it.
type Store struct {
	mu      sync.RWMutex
	sets    map[string]*Set
	order   []string
	current string
}

func NewStore() *Store {
	return &Store{sets: make(map[string]*Set)}
}

// Publish adds set and makes it current. Versions are immutable.
func (s *Store) Publish(set *Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sets[set.Version]; ok {
		return fmt.Errorf("rule set version %q already published", set.Version)
	}
	s.sets[set.Version] = set
	s.order = append(s.order, set.Version)
	s.current = set.Version
	return nil
}

// Get returns the named version, or the current one when version is empty.
func (s *Store) Get(version string) (*Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if version == "" {
		version = s.current
	}
	set, ok := s.sets[version]
	if !ok {
		return nil, fmt.Errorf("rule set version %q not found", version)
	}
	return set, nil
}

// Current returns the most recently published set, or nil.
func (s *Store) Current() *Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sets[s.current]
}

// Versions lists published versions in publish order.
func (s *Store) Versions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}
