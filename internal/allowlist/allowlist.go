// Package allowlist holds the mutable set of asset identifiers vault
// creation is checked against. Removing an asset never retroactively
// invalidates vaults created while it was listed.
package allowlist

import (
	"sync"

	"github.com/custodia/escrowd/internal/model"
)

type Set struct {
	mu     sync.RWMutex
	assets map[string]struct{}
}

// New builds a set pre-seeded with the given assets.
func New(seed ...model.Asset) *Set {
	s := &Set{assets: make(map[string]struct{})}
	for _, a := range seed {
		s.assets[a.String()] = struct{}{}
	}
	return s
}

// Add inserts the asset. Adding an already-present asset is a no-op.
func (s *Set) Add(a model.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[a.String()] = struct{}{}
}

// Remove deletes the asset. Removing an absent asset is a no-op.
func (s *Set) Remove(a model.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assets, a.String())
}

func (s *Set) Contains(a model.Asset) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.assets[a.String()]
	return ok
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.assets)
}
