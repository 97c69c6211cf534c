// Package phase implements the per-phase execution state machine: pre-ward
// validation, body execution (plain, soundings, or reforge), post-ward
// validation, retry/loop-until handling up to a max-attempts budget, and
// progress reporting. The state machine is modeled as a small owning struct
// plus a mutable state value rather than recursion or a goroutine per state.
package phase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cascadekit/cascade/runtime/agent/echo"
	"github.com/cascadekit/cascade/runtime/agent/reforge"
	"github.com/cascadekit/cascade/runtime/agent/soundings"
	"github.com/cascadekit/cascade/runtime/agent/ward"
)

// BodyMode selects how a phase body executes. It is chosen once at Runner
// construction time from which of Soundings/Reforge is present in Config.
type BodyMode string

const (
	// BodyModeTurn runs Body exactly once per attempt.
	BodyModeTurn BodyMode = "turn"
	// BodyModeSoundings runs Body as an N-wide soundings exploration per attempt.
	BodyModeSoundings BodyMode = "soundings"
	// BodyModeReforge runs Body as a K-round reforge refinement per attempt.
	BodyModeReforge BodyMode = "reforge"
)

// state enumerates the phase runner's state machine states.
type state int

const (
	stateInit state = iota
	statePreWards
	stateBody
	statePostWards
	stateLoopUntil
	stateValidate
	stateDone
	stateFailed
)

// BodyFunc executes the phase body for a single attempt. trace is a child
// Echo scoped to this attempt so nested soundings/reforge subtrees merge
// cleanly into the phase's own trace.
type BodyFunc func(ctx context.Context, input any, trace *echo.Echo) (output any, err error)

// LoopUntil is evaluated after the post-wards on each attempt. A false
// result drives another attempt (subject to MaxAttempts), mirroring
// output_schema in precedence: loop_until is evaluated first on each
// attempt, per DESIGN.md Open Question 1.
type LoopUntil func(ctx context.Context, output any) (bool, error)

// Config configures a single phase's execution.
type Config struct {
	// Name identifies the phase for tracing, wards, and progress events.
	Name string

	// MaxAttempts bounds total attempts across pre-ward retries,
	// post-ward retries, and loop_until retries combined. Defaults to 1.
	MaxAttempts int

	// PreWards/PostWards validate the phase's input/output. ModeRetry
	// failures drive another attempt; ModeBlocking failures fail the
	// phase immediately; ModeAdvisory failures are recorded only.
	PreWards  []ward.Registration
	PostWards []ward.Registration

	// LoopUntil, if set, is evaluated after the post-wards pass on each
	// attempt; returning false drives another attempt.
	LoopUntil LoopUntil

	// Mode selects how Body executes. Defaults to BodyModeTurn.
	Mode BodyMode

	// Soundings configures BodyModeSoundings; ignored otherwise.
	Soundings soundings.Spec
	// Reforge configures BodyModeReforge; ignored otherwise.
	Reforge reforge.Spec
}

// Output is the result of a phase run.
type Output struct {
	// Value is the final, ward-validated output payload.
	Value any
	// Attempts is how many attempts were consumed.
	Attempts int
	// PreOutcomes/PostOutcomes record every ward evaluation in attempt order.
	PreOutcomes  []ward.Outcome
	PostOutcomes []ward.Outcome
}

// Progress is a read-only snapshot of a phase run in flight, returned by
// Runner.Progress and handed to the ProgressPublisher on every state
// transition.
type Progress struct {
	PhaseName string
	State     string
	Attempt   int
	MaxAttempt int
}

// ProgressPublisher receives a Progress snapshot whenever the phase's state
// transitions. Implementations should not block; the runner calls this
// synchronously between states.
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, p Progress)
}

// ErrBlocked is returned when a blocking ward failure terminates the phase.
var ErrBlocked = errors.New("phase: blocked by ward")

// ErrAttemptsExhausted is returned when MaxAttempts is reached without a
// passing post-ward/loop_until evaluation.
var ErrAttemptsExhausted = errors.New("phase: max attempts exhausted")

// Runner executes a single phase's state machine.
type Runner struct {
	cfg       Config
	publisher ProgressPublisher

	mu       sync.Mutex
	progress Progress
}

// New constructs a Runner for cfg. publisher may be nil.
func New(cfg Config, publisher ProgressPublisher) *Runner {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Mode == "" {
		cfg.Mode = BodyModeTurn
	}
	return &Runner{cfg: cfg, publisher: publisher}
}

// Progress returns a snapshot of the current state. Safe for concurrent use
// while Run is executing.
func (r *Runner) Progress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

func (r *Runner) setState(ctx context.Context, st state, attempt int) {
	r.mu.Lock()
	r.progress = Progress{
		PhaseName:  r.cfg.Name,
		State:      stateName(st),
		Attempt:    attempt,
		MaxAttempt: r.cfg.MaxAttempts,
	}
	snap := r.progress
	r.mu.Unlock()
	if r.publisher != nil {
		r.publisher.PublishProgress(ctx, snap)
	}
}

func stateName(st state) string {
	switch st {
	case stateInit:
		return "init"
	case statePreWards:
		return "pre_wards"
	case stateBody:
		return "body"
	case statePostWards:
		return "post_wards"
	case stateLoopUntil:
		return "loop_until"
	case stateValidate:
		return "validate"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Run drives the phase state machine against input, parented at
// parentTrace, executing body on each attempt.
func (r *Runner) Run(ctx context.Context, input any, parentTrace *echo.Echo, body BodyFunc) (Output, error) {
	out := Output{}
	st := stateInit
	attempt := 1

	for {
		switch st {
		case stateInit:
			r.setState(ctx, st, attempt)
			st = statePreWards

		case statePreWards:
			r.setState(ctx, st, attempt)
			if len(r.cfg.PreWards) > 0 {
				engine := ward.New(r.cfg.PreWards, nil)
				outcome, err := engine.RunPre(ctx, r.cfg.Name, attempt, input)
				if err != nil {
					st = stateFailed
					out.Attempts = attempt
					return out, fmt.Errorf("phase %q: pre wards: %w", r.cfg.Name, err)
				}
				out.PreOutcomes = append(out.PreOutcomes, outcome)
				if outcome.Blocked {
					st = stateFailed
					out.Attempts = attempt
					return out, fmt.Errorf("%w: %s", ErrBlocked, r.cfg.Name)
				}
				if outcome.RetryRequested {
					if attempt >= r.cfg.MaxAttempts {
						st = stateFailed
						out.Attempts = attempt
						return out, fmt.Errorf("%w: %s", ErrAttemptsExhausted, r.cfg.Name)
					}
					attempt++
					continue
				}
			}
			st = stateBody

		case stateBody:
			r.setState(ctx, st, attempt)
			value, err := r.runBody(ctx, input, parentTrace, body)
			if err != nil {
				st = stateFailed
				out.Attempts = attempt
				return out, fmt.Errorf("phase %q: body: %w", r.cfg.Name, err)
			}
			out.Value = value
			st = statePostWards

		case statePostWards:
			r.setState(ctx, st, attempt)
			if len(r.cfg.PostWards) > 0 {
				engine := ward.New(nil, r.cfg.PostWards)
				outcome, err := engine.RunPost(ctx, r.cfg.Name, attempt, out.Value)
				if err != nil {
					st = stateFailed
					out.Attempts = attempt
					return out, fmt.Errorf("phase %q: post wards: %w", r.cfg.Name, err)
				}
				out.PostOutcomes = append(out.PostOutcomes, outcome)
				if outcome.Blocked {
					st = stateFailed
					out.Attempts = attempt
					return out, fmt.Errorf("%w: %s", ErrBlocked, r.cfg.Name)
				}
				if outcome.RetryRequested {
					if attempt >= r.cfg.MaxAttempts {
						st = stateFailed
						out.Attempts = attempt
						return out, fmt.Errorf("%w: %s", ErrAttemptsExhausted, r.cfg.Name)
					}
					attempt++
					st = statePreWards
					continue
				}
			}
			st = stateLoopUntil

		case stateLoopUntil:
			r.setState(ctx, st, attempt)
			if r.cfg.LoopUntil != nil {
				ok, err := r.cfg.LoopUntil(ctx, out.Value)
				if err != nil {
					st = stateFailed
					out.Attempts = attempt
					return out, fmt.Errorf("phase %q: loop_until: %w", r.cfg.Name, err)
				}
				if !ok {
					if attempt >= r.cfg.MaxAttempts {
						st = stateFailed
						out.Attempts = attempt
						return out, fmt.Errorf("%w: %s", ErrAttemptsExhausted, r.cfg.Name)
					}
					attempt++
					st = statePreWards
					continue
				}
			}
			st = stateValidate

		case stateValidate:
			r.setState(ctx, st, attempt)
			st = stateDone

		case stateDone:
			r.setState(ctx, st, attempt)
			out.Attempts = attempt
			return out, nil

		case stateFailed:
			r.setState(ctx, st, attempt)
			out.Attempts = attempt
			return out, fmt.Errorf("phase %q: failed", r.cfg.Name)
		}
	}
}

func (r *Runner) runBody(ctx context.Context, input any, parentTrace *echo.Echo, body BodyFunc) (any, error) {
	switch r.cfg.Mode {
	case BodyModeSoundings:
		soundingsBody := func(ctx context.Context, _ int, in any, trace *echo.Echo) (any, error) {
			return body(ctx, in, trace)
		}
		result, err := soundings.Run(ctx, r.cfg.Soundings, input, parentTrace, soundingsBody)
		if err != nil {
			return nil, err
		}
		return result.Winner.Output, nil

	case BodyModeReforge:
		reforgeBody := func(ctx context.Context, _ int, in any, trace *echo.Echo) (any, error) {
			return body(ctx, in, trace)
		}
		result, err := reforge.Run(ctx, r.cfg.Reforge, input, parentTrace, reforgeBody)
		if err != nil {
			return nil, err
		}
		return result.Final, nil

	default:
		child := echo.New(parentTrace.SessionID+"-"+r.cfg.Name, parentTrace.SessionID)
		out, err := body(ctx, input, child)
		parentTrace.Merge(child)
		return out, err
	}
}
