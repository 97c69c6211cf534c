package cascade

import (
	"context"

	"github.com/cascadekit/cascade/runtime/agent/model"
	"github.com/cascadekit/cascade/runtime/agent/soundings"
	"github.com/cascadekit/cascade/runtime/agent/ward"
)

// Resolver turns a cascade's declarative config into the live validators,
// evaluators, and clients the Runner drives. Config is data; Resolver
// supplies the code a WardSpec/SoundingsSpec key names, mirroring how the
// teacher's codegen binds declared names to generated handler functions.
type Resolver interface {
	// Validator resolves a WardSpec's Validator key to a live ward.Validator.
	Validator(spec WardSpec) (ward.Validator, error)

	// LoopUntil resolves a phase's loop_until key to a predicate evaluated
	// after each turn/attempt. An empty key means no gate; Resolver is not
	// called in that case.
	LoopUntil(key string) (func(ctx context.Context, output any) (bool, error), error)

	// Evaluator resolves a soundings/reforge evaluator key.
	Evaluator(key string) (soundings.Evaluator, error)

	// Mutate resolves a soundings mutate key to a MutateFunc. An empty key
	// is valid and means MutationBaseline (Resolver is not called).
	Mutate(key string) (soundings.MutateFunc, error)

	// ModelClient returns the model.Client to use for a phase's declared
	// model string (which may include a "::reasoning" suffix per §6.1).
	ModelClient(modelSpec string) (model.Client, error)

	// ToolDispatcher returns the dispatcher used to execute tool calls
	// requested by the model during a phase's turns.
	ToolDispatcher() ToolDispatcher

	// ToolCatalog returns the catalog used to resolve a phase's declared
	// tool names or manifest-mode auto-selection into tool definitions.
	ToolCatalog() ToolCatalog
}

func wardRegistrations(resolver Resolver, specs []WardSpec) ([]ward.Registration, error) {
	regs := make([]ward.Registration, 0, len(specs))
	for _, s := range specs {
		v, err := resolver.Validator(s)
		if err != nil {
			return nil, err
		}
		regs = append(regs, ward.Registration{Name: s.Name, Mode: s.Mode, Validator: v})
	}
	return regs, nil
}
