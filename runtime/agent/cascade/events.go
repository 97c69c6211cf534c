package cascade

import "context"

// EventKind enumerates the cascade-level event taxonomy named in §6.4.
// Phase-internal progress (turn/tool/sounding/evaluator events) is the
// Phase Runner's own concern (phase.Progress); EventPublisher only carries
// the cascade-scoped subset a session-level event-bus subscriber needs.
type EventKind string

const (
	EventCascadeStart    EventKind = "cascade_start"
	EventCascadeComplete EventKind = "cascade_complete"
	EventCascadeError    EventKind = "cascade_error"
	EventPhaseStart      EventKind = "phase_start"
	EventPhaseComplete   EventKind = "phase_complete"
)

// Event is a single cascade-level event, per §6.4.
type Event struct {
	Kind      EventKind
	SessionID string
	CascadeID string
	Phase     string
	Err       error
}

// EventPublisher receives cascade-level events as the Runner emits them.
// Implementations (e.g. the narrator's subscription, SSE broadcasters)
// must not block; Runner calls Publish synchronously between steps.
type EventPublisher interface {
	Publish(ctx context.Context, e Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Event) {}
