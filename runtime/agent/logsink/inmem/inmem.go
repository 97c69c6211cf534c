// Package inmem provides an in-memory implementation of logsink.Store.
//
// The in-memory store is intended for tests and local development. It is not
// durable and should not be used in production.
package inmem

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/cascadekit/cascade/runtime/agent/logsink"
)

type (
	// Store implements logsink.Store in memory.
	Store struct {
		mu sync.Mutex
		// per-run monotonically increasing sequence.
		nextSeq map[string]int64
		// per-run ordered events.
		events map[string][]*logsink.Event
	}
)

// New returns a new in-memory run log store.
func New() *Store {
	return &Store{
		nextSeq: make(map[string]int64),
		events:  make(map[string][]*logsink.Event),
	}
}

// Append implements logsink.Store.
func (s *Store) Append(_ context.Context, e *logsink.Event) error {
	if e == nil {
		return fmt.Errorf("event is required")
	}
	if e.RunID == "" {
		return fmt.Errorf("run_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.nextSeq[e.RunID] + 1
	s.nextSeq[e.RunID] = seq

	e.ID = strconv.FormatInt(seq, 10)
	ev := *e
	s.events[e.RunID] = append(s.events[e.RunID], &ev)
	return nil
}

// List implements logsink.Store.
func (s *Store) List(_ context.Context, runID string, cursor string, limit int) (logsink.Page, error) {
	if runID == "" {
		return logsink.Page{}, fmt.Errorf("run_id is required")
	}
	if limit <= 0 {
		return logsink.Page{}, fmt.Errorf("limit must be > 0")
	}

	var after int64
	if cursor != "" {
		id, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return logsink.Page{}, fmt.Errorf("invalid cursor %q: %w", cursor, err)
		}
		after = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.events[runID]
	if len(all) == 0 {
		return logsink.Page{}, nil
	}

	start := 0
	if after > 0 {
		// IDs are 1-based sequence numbers, so start at index == after.
		start = int(after)
		if start >= len(all) {
			return logsink.Page{}, nil
		}
	}

	end := start + limit
	if end > len(all) {
		end = len(all)
	}

	events := append([]*logsink.Event(nil), all[start:end]...)
	var next string
	if end < len(all) {
		next = events[len(events)-1].ID
	}

	return logsink.Page{
		Events:     events,
		NextCursor: next,
	}, nil
}

// Reconcile implements logsink.Store. It scans every run's events for one
// matching sessionID whose payload carries request_id, and merges patch's
// non-nil fields into that payload in place.
func (s *Store) Reconcile(_ context.Context, sessionID, requestID string, patch logsink.Patch) error {
	if sessionID == "" || requestID == "" {
		return fmt.Errorf("session_id and request_id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, events := range s.events {
		for _, e := range events {
			if e.SessionID != sessionID {
				continue
			}
			var fields map[string]any
			if err := json.Unmarshal(e.Payload, &fields); err != nil {
				continue
			}
			if rid, _ := fields["request_id"].(string); rid != requestID {
				continue
			}

			patch.ApplyTo(fields)
			merged, err := json.Marshal(fields)
			if err != nil {
				return fmt.Errorf("reconcile: marshal patched payload: %w", err)
			}
			e.Payload = merged
			return nil
		}
	}
	return nil
}
