// Package soundings implements N-wide parallel exploratory phase-body
// attempts with evaluator-based winner selection, bounded by a configurable
// concurrency factor.
package soundings

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/cascadekit/cascade/runtime/agent/echo"
)

// Mutation controls how each attempt's input is derived from the phase's
// base input.
type Mutation string

const (
	// MutationBaseline runs every attempt against the same unmodified input.
	MutationBaseline Mutation = "baseline"
	// MutationAugment appends attempt-specific guidance to the base input.
	MutationAugment Mutation = "augment"
	// MutationRewrite replaces the base input entirely per attempt (used by
	// Reforge, where each round rewrites around the previous winner).
	MutationRewrite Mutation = "rewrite"
)

// Attempt is one exploratory execution of a phase body.
type Attempt struct {
	Index     int
	Input     any
	Output    any
	TraceID   string
	Err       error
	Metadata  map[string]any
}

// BodyFunc executes a single attempt's phase body. It receives the mutated
// input for that attempt and a child Echo scoped to the attempt's trace
// subtree.
type BodyFunc func(ctx context.Context, attempt int, input any, trace *echo.Echo) (output any, err error)

// MutateFunc derives attempt-specific input from the base input.
type MutateFunc func(attempt int, base any) any

// Evaluator picks the winning attempt among the (successful) candidates.
type Evaluator interface {
	Evaluate(ctx context.Context, attempts []Attempt) (winnerIndex int, err error)
}

// EvaluatorFunc adapts a plain function to an Evaluator.
type EvaluatorFunc func(ctx context.Context, attempts []Attempt) (int, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, attempts []Attempt) (int, error) {
	return f(ctx, attempts)
}

// TieBreak names a rule for resolving ties between equally scored attempts.
// Run does not consult Spec.TieBreak: FirstEvaluator always picks the first
// candidate, and CostEvaluator breaks equal costs by attempt order.
type TieBreak string

const (
	TieBreakFirst      TieBreak = "first"
	TieBreakLowestCost TieBreak = "lowest_cost"
)

// Spec configures a soundings run.
type Spec struct {
	N           int
	MaxParallel int
	Mutation    Mutation
	Mutate      MutateFunc
	Evaluator   Evaluator
	TieBreak    TieBreak
}

// Result is the outcome of a soundings run.
type Result struct {
	Attempts    []Attempt
	WinnerIndex int
	Winner      Attempt
}

// ErrAllAttemptsFailed is returned when every attempt errored; totality
// (spec property 2) guarantees every attempt is still recorded in the
// returned Result even in this case.
var ErrAllAttemptsFailed = errors.New("soundings: all attempts failed")

// Run launches Spec.N attempts (bounded by Spec.MaxParallel, default 8)
// against body, each on its own mutated input and its own Echo trace
// subtree parented at parentTrace, then asks Spec.Evaluator to pick a
// winner among the attempts that did not error.
//
// Every attempt is recorded in the returned Result.Attempts regardless of
// success or failure (totality): a failing attempt never vanishes from the
// record, it is simply excluded from evaluation.
func Run(ctx context.Context, spec Spec, base any, parentTrace *echo.Echo, body BodyFunc) (Result, error) {
	if spec.N <= 0 {
		return Result{}, fmt.Errorf("soundings: N must be positive, got %d", spec.N)
	}
	maxParallel := spec.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 8
	}
	if maxParallel > spec.N {
		maxParallel = spec.N
	}

	attempts := make([]Attempt, spec.N)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)

	for i := 0; i < spec.N; i++ {
		i := i
		g.Go(func() error {
			input := base
			if spec.Mutate != nil {
				input = spec.Mutate(i, base)
			}
			child := echo.New(fmt.Sprintf("%s-sounding-%d", parentTrace.SessionID, i), parentTrace.SessionID)
			out, err := body(gctx, i, input, child)
			attempts[i] = Attempt{Index: i, Input: input, Output: out, Err: err}
			parentTrace.Merge(child)
			// soundings attempts isolate failures from one another: a
			// failing attempt must never abort its siblings, so body
			// errors are captured on the Attempt and never returned to
			// errgroup.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	candidates := make([]Attempt, 0, spec.N)
	for _, a := range attempts {
		if a.Err == nil {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return Result{Attempts: attempts}, ErrAllAttemptsFailed
	}

	evaluator := spec.Evaluator
	if evaluator == nil {
		evaluator = FirstEvaluator{}
	}
	winnerIdx, err := evaluator.Evaluate(ctx, candidates)
	if err != nil {
		return Result{Attempts: attempts}, fmt.Errorf("soundings: evaluator: %w", err)
	}
	if winnerIdx < 0 || winnerIdx >= len(candidates) {
		return Result{Attempts: attempts}, fmt.Errorf("soundings: evaluator returned out-of-range index %d", winnerIdx)
	}
	winner := candidates[winnerIdx]
	return Result{Attempts: attempts, WinnerIndex: winner.Index, Winner: winner}, nil
}

// FirstEvaluator always picks the first successful attempt; it is the
// degenerate evaluator used when no LLM-backed evaluator is configured.
type FirstEvaluator struct{}

func (FirstEvaluator) Evaluate(_ context.Context, attempts []Attempt) (int, error) {
	return 0, nil
}

// CostEvaluator picks the attempt with the lowest reported cost, breaking
// ties by attempt order. cost must return a comparable cost for an attempt.
type CostEvaluator struct {
	Cost func(Attempt) float64
}

func (c CostEvaluator) Evaluate(_ context.Context, attempts []Attempt) (int, error) {
	type scored struct {
		idx  int
		cost float64
	}
	scores := make([]scored, len(attempts))
	for i, a := range attempts {
		scores[i] = scored{idx: i, cost: c.Cost(a)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].cost < scores[j].cost })
	return scores[0].idx, nil
}
