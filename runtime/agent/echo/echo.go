package echo

import (
	"sync"
	"time"
)

// NodeType classifies a history entry for trace-tree rendering and for the
// context-card eligibility filter. Values mirror the cascade's structural
// vocabulary: some are pure scaffolding (cascade, phase, turn) and are never
// eligible for context-card generation regardless of role.
type NodeType string

const (
	NodeCascade           NodeType = "cascade"
	NodePhase             NodeType = "phase"
	NodeTurn              NodeType = "turn"
	NodeTurnInput         NodeType = "turn_input"
	NodeStructure         NodeType = "structure"
	NodeLifecycle         NodeType = "lifecycle"
	NodeContextInjection  NodeType = "context_injection"
	NodeContextSelection  NodeType = "context_selection"
	NodeAgent             NodeType = "agent"
	NodeTool              NodeType = "tool"
	NodeToolCall          NodeType = "tool_call"
	NodeToolResult        NodeType = "tool_result"
	NodeUser              NodeType = "user"
	NodeMessage           NodeType = "message"
	NodeEvaluator         NodeType = "evaluator"
	NodeSoundingAttempt   NodeType = "sounding_attempt"
	NodeValidationStart   NodeType = "validation_start"
	NodeValidationError   NodeType = "validation_error"
)

// LogEntry is a single node in a session's trace tree. Payload is always a
// defensive copy of the caller-provided value: callers frequently keep a
// reference to the original message and continue mutating or reusing it
// (e.g. appending it to an in-flight model conversation), so AddHistory must
// never hand back (or retain) the caller's own map/slice.
type LogEntry struct {
	TraceID   string
	ParentID  string
	NodeType  NodeType
	Role      string
	Payload   any
	ToolCalls any
	Metadata  map[string]any
	Timestamp time.Time
}

// LineageEntry records a phase's contribution to the overall cascade result.
type LineageEntry struct {
	Phase   string
	Output  any
	TraceID string
}

// ErrorEntry records a non-fatal or fatal error encountered during execution.
type ErrorEntry struct {
	Phase    string
	Type     string
	Message  string
	Metadata map[string]any
}

// Snapshot is the externally-visible, read-only view returned by GetFullEcho.
type Snapshot struct {
	SessionID string
	State     map[string]any
	History   []LogEntry
	Lineage   []LineageEntry
	Errors    []ErrorEntry
	HasErrors bool
	Status    string
}

// Snapshotter renders a point-in-time diagram of a session's trace tree
// (e.g. Mermaid state-diagram syntax). Implementations may be expensive;
// Echo only calls Render when history has changed since the last good
// render (see RenderDiagram).
type Snapshotter interface {
	Render(e *Echo) (string, error)
}

// ContextCardSink receives eligible history entries for downstream
// summarization. It is satisfied by the context-card worker's queue.
type ContextCardSink interface {
	Push(entry LogEntry)
}

// MessageCallback is invoked for every AddHistory call, after copy-and-stamp,
// e.g. to persist the entry to a memory store.
type MessageCallback func(entry LogEntry)

// Echo accumulates the durable state of a single cascade run: named state,
// an ordered trace-tree history, phase lineage, and errors. All mutation
// goes through a single mutex: soundings/reforge attempts, the narrator, and
// the context-card worker may all touch the same Echo concurrently.
type Echo struct {
	SessionID       string
	ParentSessionID string

	mu      sync.Mutex
	state   map[string]any
	history []LogEntry
	lineage []LineageEntry
	errors  []ErrorEntry

	cascadeID string
	phaseName string

	snapshotter      Snapshotter
	lastDiagram      string
	diagramFailures  int
	historyAtSnap    int
	messageCallback  MessageCallback
	contextCardSink  ContextCardSink
}

// New creates an Echo for a session. parentSessionID is empty for top-level
// sessions and set for sub-cascade sessions spawned by the Cascade Runner.
func New(sessionID, parentSessionID string) *Echo {
	return &Echo{
		SessionID:       sessionID,
		ParentSessionID: parentSessionID,
		state:           make(map[string]any),
	}
}

// SetCascadeContext records the cascade id attached to subsequently-added
// history entries' metadata.
func (e *Echo) SetCascadeContext(cascadeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cascadeID = cascadeID
}

// SetPhaseContext records the current phase name attached to subsequently-
// added history entries' metadata.
func (e *Echo) SetPhaseContext(phaseName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phaseName = phaseName
}

// SetSnapshotter installs the diagram renderer used by RenderDiagram.
func (e *Echo) SetSnapshotter(s Snapshotter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshotter = s
}

// SetMessageCallback installs a callback invoked after every AddHistory.
func (e *Echo) SetMessageCallback(cb MessageCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messageCallback = cb
}

// SetContextCardSink installs the queue that receives eligible entries.
// The eligibility decision itself lives in the contextcard package so Echo
// stays agnostic of summarization policy; Echo pushes every entry and lets
// the sink decide, mirroring how the sink's Push is expected to filter.
func (e *Echo) SetContextCardSink(sink ContextCardSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.contextCardSink = sink
}

// AddHistory appends a copy of entry to the trace tree, stamping trace
// fields and metadata, and returns the stamped copy. The caller's entry
// value is never mutated and never retained: reusing entry immediately
// after this call is always safe.
func (e *Echo) AddHistory(entry LogEntry, traceID, parentID string, nodeType NodeType, metadata map[string]any) LogEntry {
	stamped := entry
	stamped.TraceID = traceID
	stamped.ParentID = parentID
	stamped.NodeType = nodeType
	stamped.Timestamp = time.Now()

	meta := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		meta[k] = v
	}

	e.mu.Lock()
	if e.cascadeID != "" {
		if _, ok := meta["cascade_id"]; !ok {
			meta["cascade_id"] = e.cascadeID
		}
	}
	if e.phaseName != "" {
		if _, ok := meta["phase_name"]; !ok {
			meta["phase_name"] = e.phaseName
		}
	}
	stamped.Metadata = meta
	e.history = append(e.history, stamped)
	cb := e.messageCallback
	sink := e.contextCardSink
	e.mu.Unlock()

	if cb != nil {
		cb(stamped)
	}
	if sink != nil {
		sink.Push(stamped)
	}
	return stamped
}

// AddLineage records a phase's output contribution toward the cascade result.
func (e *Echo) AddLineage(phase string, output any, traceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lineage = append(e.lineage, LineageEntry{Phase: phase, Output: output, TraceID: traceID})
}

// AddError records that an error occurred during execution of phase.
func (e *Echo) AddError(phase, errType, message string, metadata map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors = append(e.errors, ErrorEntry{Phase: phase, Type: errType, Message: message, Metadata: metadata})
}

// State returns the value stored under key and whether it was present.
func (e *Echo) State(key string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.state[key]
	return v, ok
}

// SetState stores value under key.
func (e *Echo) SetState(key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state[key] = value
}

// GetFullEcho returns a read-only snapshot of the session's accumulated
// state, suitable for returning to a caller or serializing.
func (e *Echo) GetFullEcho() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	state := make(map[string]any, len(e.state))
	for k, v := range e.state {
		state[k] = v
	}
	history := make([]LogEntry, len(e.history))
	copy(history, e.history)
	lineage := make([]LineageEntry, len(e.lineage))
	copy(lineage, e.lineage)
	errs := make([]ErrorEntry, len(e.errors))
	copy(errs, e.errors)
	status := "success"
	if len(errs) > 0 {
		status = "failed"
	}
	return Snapshot{
		SessionID: e.SessionID,
		State:     state,
		History:   history,
		Lineage:   lineage,
		Errors:    errs,
		HasErrors: len(errs) > 0,
		Status:    status,
	}
}

// Merge folds a sub-cascade's Echo into this one: state keys are overwritten
// by other's, lineage and errors are appended, and other's full history is
// recorded as a single nested entry rather than interleaved, so the parent
// trace tree stays well-formed without reparenting every child trace id.
func (e *Echo) Merge(other *Echo) {
	child := other.GetFullEcho()

	e.mu.Lock()
	defer e.mu.Unlock()
	for k, v := range child.State {
		e.state[k] = v
	}
	e.lineage = append(e.lineage, child.Lineage...)
	e.errors = append(e.errors, child.Errors...)
	e.history = append(e.history, LogEntry{
		NodeType: NodeStructure,
		Payload: map[string]any{
			"sub_echo": child.SessionID,
			"history":  child.History,
		},
		Timestamp: time.Now(),
	})
}

// RenderDiagram renders the current trace tree via the installed
// Snapshotter, preserving continuity: once a render has succeeded, a later
// failure (or an unchanged, too-short result) falls back to the last good
// diagram rather than returning an empty one, since the diagram only grows
// monotonically as history is appended.
func (e *Echo) RenderDiagram() string {
	e.mu.Lock()
	snapshotter := e.snapshotter
	unchanged := len(e.history) == e.historyAtSnap
	cached := e.lastDiagram
	e.mu.Unlock()

	if snapshotter == nil {
		return cached
	}
	if unchanged && cached != "" {
		return cached
	}

	diagram, err := snapshotter.Render(e)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil && len(diagram) > 10 {
		e.lastDiagram = diagram
		e.historyAtSnap = len(e.history)
		e.diagramFailures = 0
		return diagram
	}
	e.diagramFailures++
	return e.lastDiagram
}
