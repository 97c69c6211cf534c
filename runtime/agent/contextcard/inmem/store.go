// Package inmem provides an in-memory contextcard.Store for tests and local
// development.
package inmem

import (
	"sync"

	"github.com/cascadekit/cascade/runtime/agent/contextcard"
)

type key struct {
	sessionID   string
	contentHash string
}

// Store implements contextcard.Store in memory.
type Store struct {
	mu    sync.Mutex
	cards map[key]contextcard.Card
}

// New returns a new in-memory context-card store.
func New() *Store {
	return &Store{cards: make(map[key]contextcard.Card)}
}

// Put implements contextcard.Store.
func (s *Store) Put(card contextcard.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[key{card.SessionID, card.ContentHash}] = card
	return nil
}

// Get implements contextcard.Store.
func (s *Store) Get(sessionID, contentHash string) (contextcard.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[key{sessionID, contentHash}]
	return c, ok
}
