// Command sqlfndemo wires the cascade runner, the SQL-function invocation
// contract, and an Anthropic model client into a single runnable example: a
// "classify" function callable the way a SQL engine's scalar UDF would call
// it, backed by a one-phase cascade and an in-memory cache.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/cascadekit/cascade/runtime/agent/cascade"
	"github.com/cascadekit/cascade/runtime/agent/model"
	"github.com/cascadekit/cascade/runtime/agent/soundings"
	"github.com/cascadekit/cascade/runtime/agent/sqlfn"
	"github.com/cascadekit/cascade/runtime/agent/ward"

	"github.com/cascadekit/cascade/features/model/anthropic"
)

// demoResolver wires a single model client and trivial validators/evaluators
// into a cascade.Resolver, enough to drive classify's one-phase cascade.
type demoResolver struct {
	client model.Client
}

func (r *demoResolver) Validator(cascade.WardSpec) (ward.Validator, error) {
	return ward.NonEmpty(), nil
}
func (r *demoResolver) LoopUntil(string) (func(context.Context, any) (bool, error), error) {
	return nil, nil
}
func (r *demoResolver) Evaluator(string) (soundings.Evaluator, error) {
	return soundings.FirstEvaluator{}, nil
}
func (r *demoResolver) Mutate(string) (soundings.MutateFunc, error) { return nil, nil }
func (r *demoResolver) ModelClient(string) (model.Client, error)    { return r.client, nil }
func (r *demoResolver) ToolDispatcher() cascade.ToolDispatcher      { return nil }
func (r *demoResolver) ToolCatalog() cascade.ToolCatalog            { return nil }

func classifyCascade() cascade.Config {
	return cascade.Config{
		CascadeID: "classify",
		Phases: []cascade.PhaseConfig{{
			Name:         "classify",
			Instructions: "Classify the brand mentioned in: {{.text}}. Reply with just the brand name.",
			Model:        "default",
			MaxAttempts:  1,
			MaxTurns:     1,
			PostWards:    []cascade.WardSpec{{Name: "non-empty", Validator: "non-empty", Mode: ward.ModeBlocking}},
		}},
	}
}

func main() {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		log.Fatal("sqlfndemo: ANTHROPIC_API_KEY must be set")
	}
	client, err := anthropic.NewFromAPIKey(apiKey, "claude-3-5-haiku-latest")
	if err != nil {
		log.Fatalf("sqlfndemo: building model client: %v", err)
	}

	runner := cascade.New(&demoResolver{client: client})
	registry := sqlfn.NewRegistry()
	fn := sqlfn.NewFunction("classify", classifyCascade())
	fn.CacheTTL = 0 // no expiry; good enough for a short-lived demo process
	if err := registry.Register(fn); err != nil {
		log.Fatalf("sqlfndemo: registering function: %v", err)
	}

	exec := sqlfn.NewExecutor(registry, runner, sqlfn.NewMemoryCache(), nil)

	ctx := context.Background()
	rows := []string{"Apple iPhone 15", "Samsung Galaxy S24", "Apple iPhone 15"}
	for _, text := range rows {
		result, err := exec.Execute(ctx, "classify", map[string]any{"text": text})
		if err != nil {
			log.Fatalf("sqlfndemo: classify(%q): %v", text, err)
		}
		fmt.Printf("%-24s -> %-20v (cache hit: %v)\n", text, result.Value, result.CacheHit)
	}
}
