// Package policy codifies policy evaluation for agent runs. A policy engine
// decides which tools remain available to the planner on a given turn,
// tracks resource caps (remaining tool calls, consecutive failures, time
// budget), and reacts to planner retry hints, so tool filtering and budget
// enforcement live outside planner and tool implementations. The phase and
// cascade runners in this module do not call an Engine themselves.
package policy

import (
	"context"
	"time"

	"github.com/cascadekit/cascade/runtime/agent/run"
	"github.com/cascadekit/cascade/runtime/agent/toolregistry"
)

type (
	// Engine decides which tools remain available to the planner for a turn.
	// Implementations should be fast (well under the phase's own timeout)
	// since Decide sits on the hot path before every planner call.
	Engine interface {
		// Decide evaluates policy constraints and returns the allowlist and
		// updated caps for this turn. An error here terminates the run.
		Decide(ctx context.Context, input Input) (Decision, error)
	}

	// Input groups the information available to the policy engine when
	// deciding on a turn.
	Input struct {
		// RunContext carries run-level identifiers and labels.
		RunContext run.Context

		// Tools lists all candidate tools registered for the agent. The
		// engine filters this list down to the turn's allowlist.
		Tools []ToolMetadata

		// RetryHint carries planner guidance after a tool failure. Nil if
		// the turn follows a clean planner response.
		RetryHint *RetryHint

		// RemainingCaps reflects the run's current execution budgets.
		RemainingCaps CapsState

		// Requested, when non-empty, restricts candidates to this set
		// (e.g. a caller-scoped subset) instead of every registered tool.
		Requested []toolregistry.Ident

		// Labels carries arbitrary metadata propagated from RunContext or
		// prior policy decisions.
		Labels map[string]string
	}

	// Decision captures a policy evaluation's outcome. The phase runner
	// applies it before invoking the planner.
	Decision struct {
		// AllowedTools is the resolved allowlist for this turn. Empty means
		// no tool calls are permitted; the planner must produce a final
		// response.
		AllowedTools []toolregistry.Ident

		// Caps carries the caps to enforce for this turn onward.
		Caps CapsState

		// DisableTools, when true, forces the run toward a final response
		// or termination regardless of AllowedTools.
		DisableTools bool

		// Labels annotate downstream telemetry and memory with the policy
		// decision (e.g. {"policy_engine": "basic"}).
		Labels map[string]string

		// Metadata carries engine-specific diagnostics (reason codes,
		// approval IDs) persisted alongside the run record.
		Metadata map[string]any
	}

	// ToolMetadata describes a candidate tool made available to the policy
	// engine for filtering.
	ToolMetadata struct {
		ID          toolregistry.Ident
		Name        string
		Description string
		Tags        []string
	}

	// CapsState tracks the execution budgets remaining for a run.
	CapsState struct {
		// MaxToolCalls is the total allowed tool invocations for the run;
		// zero means unlimited.
		MaxToolCalls int
		// RemainingToolCalls decrements after each executed tool call.
		RemainingToolCalls int
		// MaxConsecutiveFailedToolCalls caps a streak of failures before
		// the run is circuit-broken; zero means unlimited.
		MaxConsecutiveFailedToolCalls int
		// RemainingConsecutiveFailedToolCalls decrements on failure and
		// resets to MaxConsecutiveFailedToolCalls on success.
		RemainingConsecutiveFailedToolCalls int
		// ExpiresAt is the wall-clock deadline for the run; zero means no
		// deadline.
		ExpiresAt time.Time
	}
)

// RetryReason categorizes the planner failure that produced a RetryHint.
type RetryReason string

const (
	RetryReasonInvalidArguments  RetryReason = "invalid_arguments"
	RetryReasonMissingFields     RetryReason = "missing_fields"
	RetryReasonMalformedResponse RetryReason = "malformed_response"
	RetryReasonTimeout           RetryReason = "timeout"
	RetryReasonRateLimited       RetryReason = "rate_limited"
	RetryReasonToolUnavailable   RetryReason = "tool_unavailable"
)

// RetryHint communicates planner guidance after a tool failure so the
// policy engine can adjust the allowlist or caps on the next turn.
type RetryHint struct {
	Reason             RetryReason
	Tool               toolregistry.Ident
	RestrictToTool     bool
	MissingFields      []string
	ExampleInput       map[string]any
	PriorInput         map[string]any
	ClarifyingQuestion string
	Message            string
}
