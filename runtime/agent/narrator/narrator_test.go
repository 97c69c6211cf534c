package narrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cascadekit/cascade/runtime/agent/cascade"
)

// recordingSayer captures every Say call for assertions.
type recordingSayer struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingSayer) Say(_ context.Context, _ string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func (r *recordingSayer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.texts)
}

// fixedSynopsizer always returns a fixed string, optionally blocking on a
// channel first so tests can control exactly when a narration completes.
type fixedSynopsizer struct {
	text  string
	block <-chan struct{}
}

func (f *fixedSynopsizer) Synopsize(_ context.Context, _ cascade.Event, _ []string) (string, error) {
	if f.block != nil {
		<-f.block
	}
	return f.text, nil
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestServicePublishTriggersNarration(t *testing.T) {
	sayer := &recordingSayer{}
	svc := New(&fixedSynopsizer{text: "phase one wrapped up"}, sayer, Config{MinInterval: 10 * time.Millisecond})

	svc.Publish(context.Background(), cascade.Event{Kind: cascade.EventPhaseComplete, SessionID: "sess-1"})

	waitUntil(t, time.Second, func() bool { return sayer.count() == 1 })
}

func TestServiceIgnoresUnconfiguredEventKinds(t *testing.T) {
	sayer := &recordingSayer{}
	svc := New(&fixedSynopsizer{text: "x"}, sayer, Config{
		OnEvents:    []cascade.EventKind{cascade.EventPhaseComplete},
		MinInterval: 10 * time.Millisecond,
	})

	svc.Publish(context.Background(), cascade.Event{Kind: cascade.EventCascadeStart, SessionID: "sess-1"})
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, 0, sayer.count())
}

func TestServiceDebouncesBurstIntoSingleFollowUp(t *testing.T) {
	sayer := &recordingSayer{}
	svc := New(&fixedSynopsizer{text: "update"}, sayer, Config{MinInterval: 50 * time.Millisecond})

	svc.Publish(context.Background(), cascade.Event{Kind: cascade.EventPhaseComplete, Phase: "one"})
	waitUntil(t, time.Second, func() bool { return sayer.count() == 1 })

	// Fired while still inside the debounce window: becomes pending, not a
	// second immediate narration.
	svc.Publish(context.Background(), cascade.Event{Kind: cascade.EventPhaseComplete, Phase: "two"})
	svc.Publish(context.Background(), cascade.Event{Kind: cascade.EventPhaseComplete, Phase: "three"})

	svc.mu.Lock()
	running := svc.running
	svc.mu.Unlock()
	require.True(t, running, "a pending event should keep the narrator in the running/draining loop")
}

func TestServiceDiscardsStalePendingEvent(t *testing.T) {
	sayer := &recordingSayer{}
	block := make(chan struct{})
	svc := New(&fixedSynopsizer{text: "first", block: block}, sayer, Config{MinInterval: 10 * time.Millisecond})

	svc.Publish(context.Background(), cascade.Event{Kind: cascade.EventPhaseComplete, Phase: "one"})

	// While the first narration is blocked, queue a second event and let it
	// go stale (> 3*MinInterval old) before the first finishes.
	svc.Publish(context.Background(), cascade.Event{Kind: cascade.EventPhaseComplete, Phase: "two"})
	time.Sleep(40 * time.Millisecond)
	close(block)

	waitUntil(t, time.Second, func() bool { return sayer.count() == 1 })
	// Give the drain loop a moment to observe the stale pending and exit.
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, sayer.count(), "stale pending event must be discarded, not narrated")
}

func TestServiceStopWaitsForInFlightNarration(t *testing.T) {
	sayer := &recordingSayer{}
	block := make(chan struct{})
	svc := New(&fixedSynopsizer{text: "done", block: block}, sayer, Config{
		MinInterval: 10 * time.Millisecond,
		StopGrace:   time.Second,
	})

	svc.Publish(context.Background(), cascade.Event{Kind: cascade.EventPhaseComplete})

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(block)
	}()

	err := svc.Stop(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sayer.count())
}

func TestServiceStopTimesOutWhenNarrationHangs(t *testing.T) {
	sayer := &recordingSayer{}
	block := make(chan struct{})
	svc := New(&fixedSynopsizer{text: "stuck", block: block}, sayer, Config{
		MinInterval: 10 * time.Millisecond,
		StopGrace:   20 * time.Millisecond,
	})

	svc.Publish(context.Background(), cascade.Event{Kind: cascade.EventPhaseComplete})
	time.Sleep(5 * time.Millisecond)

	err := svc.Stop(context.Background())
	require.ErrorIs(t, err, ErrStopTimeout)

	close(block)
}

func TestServicePublishAfterStopIsNoop(t *testing.T) {
	sayer := &recordingSayer{}
	svc := New(&fixedSynopsizer{text: "late"}, sayer, Config{MinInterval: 10 * time.Millisecond})

	require.NoError(t, svc.Stop(context.Background()))
	svc.Publish(context.Background(), cascade.Event{Kind: cascade.EventPhaseComplete})

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 0, sayer.count())
}
