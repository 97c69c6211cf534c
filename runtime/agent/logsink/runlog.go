// Package logsink provides a durable, append-only event log for agent runs.
//
// The runlog is the canonical source of truth for run introspection. Runtimes
// append events as runs execute and callers list them using opaque cursors.
package logsink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cascadekit/cascade/runtime/agent"
	"github.com/cascadekit/cascade/runtime/agent/hooks"
)

type (
	// Event is a single immutable run event appended to the run log.
	//
	// Store implementations assign the ID when persisting the event. IDs are
	// opaque, monotonically ordered within a run, and suitable for cursor-based
	// pagination.
	Event struct {
		// ID is the store-assigned opaque identifier for this event.
		ID string
		// RunID is the identifier of the run this event belongs to.
		RunID string
		// AgentID is the identifier of the agent that emitted the event.
		AgentID agent.Ident
		// SessionID groups related runs into a conversation thread.
		SessionID string
		// TurnID identifies the conversational turn within the session.
		TurnID string
		// Type is the hook event type.
		Type hooks.EventType
		// Payload is the canonical JSON-encoded payload for the event.
		Payload json.RawMessage
		// Timestamp is the event time.
		Timestamp time.Time
	}

	// Page is a forward page of run events.
	Page struct {
		// Events are ordered oldest-first.
		Events []*Event
		// NextCursor is the cursor to use to fetch the next page.
		// It is empty when there are no further events.
		NextCursor string
	}

	// Store is an append-only event store for run introspection.
	//
	// Implementations must provide stable ordering within a run. Cursor values are
	// store-owned and opaque to callers.
	Store interface {
		// Append stores the event in the run log.
		//
		// Store implementations assign the event ID and persist the payload
		// verbatim. Append must be durable: failures are surfaced to callers so
		// workflows can fail fast when canonical logging is unavailable.
		Append(ctx context.Context, e *Event) error

		// List returns the next forward page of events for the given run ID.
		//
		// Cursor is an opaque value returned by a previous call to List (or empty
		// to start from the beginning). Limit must be greater than zero.
		List(ctx context.Context, runID string, cursor string, limit int) (Page, error)

		// Reconcile merges patch into the payload of the event matching
		// (sessionID, requestID), keyed by the request_id field embedded in
		// that event's JSON payload rather than the store's own ID. This is
		// the backfill path cost enrichment uses once a provider's usage
		// endpoint reports values the original log record didn't have yet
		// (§6.3: "Two records sharing a request_id may be reconciled ... in
		// place; readers must tolerate either shape"). A request_id that no
		// longer exists is not an error — reconciliation is best-effort.
		Reconcile(ctx context.Context, sessionID, requestID string, patch Patch) error
	}

	// Patch carries the enrichment fields that only become known after a
	// request completes: provider-reported cost and token/duration figures
	// that may supersede whatever the original response carried (§4.12).
	Patch struct {
		Cost            *float64
		TokensIn        *int
		TokensOut       *int
		TokensReasoning *int
		DurationMs      *int64
	}
)

// ApplyTo merges p's non-nil fields into a decoded JSON payload in place,
// shared by every Store implementation's Reconcile so the enrichment field
// names (cost, tokens_in, tokens_out, tokens_reasoning, duration_ms) stay
// consistent across stores.
func (p Patch) ApplyTo(fields map[string]any) {
	if p.Cost != nil {
		fields["cost"] = *p.Cost
	}
	if p.TokensIn != nil {
		fields["tokens_in"] = *p.TokensIn
	}
	if p.TokensOut != nil {
		fields["tokens_out"] = *p.TokensOut
	}
	if p.TokensReasoning != nil {
		fields["tokens_reasoning"] = *p.TokensReasoning
	}
	if p.DurationMs != nil {
		fields["duration_ms"] = *p.DurationMs
	}
}
