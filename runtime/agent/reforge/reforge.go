// Package reforge implements K sequential refinement rounds, each a
// soundings run conditioned on the previous round's winner.
package reforge

import (
	"context"
	"fmt"

	"github.com/cascadekit/cascade/runtime/agent/echo"
	"github.com/cascadekit/cascade/runtime/agent/soundings"
)

// Spec configures a reforge run.
type Spec struct {
	// Rounds is K, the number of sequential refinement rounds.
	Rounds int
	// Width is the per-round soundings factor (M).
	Width int
	// MaxParallel bounds concurrency within a single round.
	MaxParallel int
	Evaluator   soundings.Evaluator
	// Rewrite derives round k's per-attempt input from round k-1's winner
	// output and the attempt index.
	Rewrite func(round, attempt int, previousWinner any) any
}

// Round records one reforge round's soundings result.
type Round struct {
	Index  int
	Result soundings.Result
}

// Result is the outcome of a reforge run.
type Result struct {
	Rounds []Round
	// Final is the winning output of the last round.
	Final any
}

// Run drives Spec.Rounds sequential soundings rounds. Round 0 starts from
// seed; round k (k>0) rewrites its attempts around round k-1's winner via
// Spec.Rewrite, per the §3.2 "round k consumes round k-1's winner" rule.
func Run(ctx context.Context, spec Spec, seed any, parentTrace *echo.Echo, body soundings.BodyFunc) (Result, error) {
	if spec.Rounds <= 0 {
		return Result{}, fmt.Errorf("reforge: Rounds must be positive, got %d", spec.Rounds)
	}
	if spec.Width <= 0 {
		spec.Width = 1
	}

	result := Result{Rounds: make([]Round, 0, spec.Rounds)}
	previousWinner := seed

	for round := 0; round < spec.Rounds; round++ {
		round := round
		roundSpec := soundings.Spec{
			N:           spec.Width,
			MaxParallel: spec.MaxParallel,
			Mutation:    soundings.MutationRewrite,
			Evaluator:   spec.Evaluator,
			Mutate: func(attempt int, base any) any {
				if spec.Rewrite == nil {
					return base
				}
				return spec.Rewrite(round, attempt, base)
			},
		}

		roundResult, err := soundings.Run(ctx, roundSpec, previousWinner, parentTrace, body)
		result.Rounds = append(result.Rounds, Round{Index: round, Result: roundResult})
		if err != nil {
			return result, fmt.Errorf("reforge: round %d: %w", round, err)
		}
		previousWinner = roundResult.Winner.Output
	}

	result.Final = previousWinner
	return result, nil
}
