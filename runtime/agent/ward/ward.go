// Package ward evaluates pre- and post-phase validators ("wards") that gate
// phase execution. A ward runs in one of three modes: blocking (failure
// stops the phase immediately), retry (failure re-runs the phase body up to
// a configured attempt budget before failing), or advisory (failure is
// logged but never changes control flow). Wards run in declared order and
// a blocking failure short-circuits the remaining wards in that stage.
package ward

import (
	"context"
	"fmt"
)

// Mode controls how a ward failure affects phase control flow.
type Mode string

const (
	// ModeBlocking fails the phase immediately; remaining wards in the same
	// stage (pre or post) are not evaluated.
	ModeBlocking Mode = "blocking"
	// ModeRetry signals the phase runner to re-attempt the body, counted
	// against the phase's max_attempts budget.
	ModeRetry Mode = "retry"
	// ModeAdvisory records the failure without affecting control flow.
	ModeAdvisory Mode = "advisory"
)

// Stage identifies whether a ward runs before or after the phase body.
type Stage string

const (
	StagePre  Stage = "pre"
	StagePost Stage = "post"
)

// Input is the value a Validator inspects. Payload is the phase input for
// pre-wards and the phase output for post-wards.
type Input struct {
	Stage     Stage
	PhaseName string
	Payload   any
	Attempt   int
}

// Result is what a Validator reports back to the Engine.
type Result struct {
	// OK is true when the ward passed.
	OK bool
	// Message explains a failure; ignored when OK is true.
	Message string
	// Details carries structured diagnostic data (e.g. schema validation
	// error paths) for logging.
	Details map[string]any
}

// Validator checks one constraint against a phase's input or output.
type Validator interface {
	Validate(ctx context.Context, in Input) (Result, error)
}

// ValidatorFunc adapts a plain function to a Validator.
type ValidatorFunc func(ctx context.Context, in Input) (Result, error)

func (f ValidatorFunc) Validate(ctx context.Context, in Input) (Result, error) {
	return f(ctx, in)
}

// Registration pairs a Validator with the Mode it runs under.
type Registration struct {
	Name      string
	Mode      Mode
	Validator Validator
}

// Outcome is the aggregate result of running a stage's wards.
type Outcome struct {
	// Blocked is true when a blocking ward failed; the phase must fail.
	Blocked bool
	// RetryRequested is true when a retry ward failed and the phase should
	// re-attempt its body (subject to max_attempts).
	RetryRequested bool
	// Failures lists every failing ward in evaluation order, blocking or not.
	Failures []Failure
}

// Failure describes one failing ward.
type Failure struct {
	Name    string
	Mode    Mode
	Message string
	Details map[string]any
}

// Error is returned by Engine.Run when a blocking ward failed, so that
// callers using errors.As can extract structured failure data.
type Error struct {
	Outcome Outcome
}

func (e *Error) Error() string {
	if len(e.Outcome.Failures) == 0 {
		return "ward: blocked"
	}
	first := e.Outcome.Failures[0]
	return fmt.Sprintf("ward %q blocked: %s", first.Name, first.Message)
}

// Engine runs a stage's registered wards in declared order.
type Engine struct {
	pre  []Registration
	post []Registration
}

// New constructs an Engine with pre- and post-phase ward registrations.
func New(pre, post []Registration) *Engine {
	return &Engine{pre: pre, post: post}
}

// RunPre evaluates the pre-phase wards against payload.
func (e *Engine) RunPre(ctx context.Context, phaseName string, attempt int, payload any) (Outcome, error) {
	return run(ctx, e.pre, Input{Stage: StagePre, PhaseName: phaseName, Payload: payload, Attempt: attempt})
}

// RunPost evaluates the post-phase wards against payload.
func (e *Engine) RunPost(ctx context.Context, phaseName string, attempt int, payload any) (Outcome, error) {
	return run(ctx, e.post, Input{Stage: StagePost, PhaseName: phaseName, Payload: payload, Attempt: attempt})
}

func run(ctx context.Context, regs []Registration, in Input) (Outcome, error) {
	var out Outcome
	for _, reg := range regs {
		result, err := reg.Validator.Validate(ctx, in)
		if err != nil {
			return out, fmt.Errorf("ward %q: %w", reg.Name, err)
		}
		if result.OK {
			continue
		}
		out.Failures = append(out.Failures, Failure{
			Name:    reg.Name,
			Mode:    reg.Mode,
			Message: result.Message,
			Details: result.Details,
		})
		switch reg.Mode {
		case ModeBlocking:
			out.Blocked = true
			// short-circuit: a blocking failure stops evaluation of the
			// remaining wards in this stage.
			return out, nil
		case ModeRetry:
			out.RetryRequested = true
		case ModeAdvisory:
			// recorded in Failures only; control flow is unaffected.
		}
	}
	return out, nil
}
