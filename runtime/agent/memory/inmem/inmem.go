// Package inmem provides an in-process memory.Store backed by a mutex-guarded
// map, useful for tests and local development where a durable backend isn't
// warranted.
package inmem

import (
	"context"
	"sync"

	"github.com/cascadekit/cascade/runtime/agent/memory"
)

// Store is an in-memory memory.Store. The zero value is not usable; use New.
type Store struct {
	mu   sync.Mutex
	runs map[string][]memory.Event
}

// New returns an empty Store.
func New() *Store {
	return &Store{runs: make(map[string][]memory.Event)}
}

func key(agentID, runID string) string { return agentID + "/" + runID }

// LoadRun implements memory.Store.
func (s *Store) LoadRun(_ context.Context, agentID, runID string) (memory.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.runs[key(agentID, runID)]
	out := make([]memory.Event, len(events))
	copy(out, events)
	return memory.Snapshot{AgentID: agentID, RunID: runID, Events: out}, nil
}

// AppendEvents implements memory.Store.
func (s *Store) AppendEvents(_ context.Context, agentID, runID string, events ...memory.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(agentID, runID)
	s.runs[k] = append(s.runs[k], events...)
	return nil
}
