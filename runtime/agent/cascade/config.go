// Package cascade drives declarative cascades: an ordered (or
// handoff-routed) sequence of phases, each executed by the phase runner,
// sharing one Echo. It resolves config from a value, raw JSON/YAML bytes,
// or a path, deep-merges caller overrides, and optionally runs the whole
// cascade under a cascade-level soundings wrapper before handing phases to
// phase.Runner one at a time.
package cascade

import (
	"github.com/cascadekit/cascade/runtime/agent/reforge"
	"github.com/cascadekit/cascade/runtime/agent/soundings"
	"github.com/cascadekit/cascade/runtime/agent/ward"
)

// WardSpec declaratively names a validator and the mode it runs under.
// A Resolver turns these into ward.Registration values at phase-build
// time, since the validator implementation itself is not representable
// in config (it is Go code, a JSON Schema, or a model-backed check).
type WardSpec struct {
	Name string `json:"name" yaml:"name"`
	// Validator is a resolver-specific key, e.g. "schema:output" or the
	// name of a validator registered with the Resolver.
	Validator    string   `json:"validator" yaml:"validator"`
	Mode         ward.Mode `json:"mode" yaml:"mode"`
	Instructions string   `json:"instructions,omitempty" yaml:"instructions,omitempty"`
}

// SoundingsSpec configures an N-wide soundings exploration, used both at
// phase level and at cascade level (§4.9 step 5).
type SoundingsSpec struct {
	Factor      int          `json:"factor" yaml:"factor"`
	Evaluator   string       `json:"evaluator,omitempty" yaml:"evaluator,omitempty"`
	Mutate      string       `json:"mutate,omitempty" yaml:"mutate,omitempty"`
	MaxParallel int          `json:"max_parallel,omitempty" yaml:"max_parallel,omitempty"`
	Reforge     *ReforgeSpec `json:"reforge,omitempty" yaml:"reforge,omitempty"`
}

// ReforgeSpec configures a K-round reforge refinement.
type ReforgeSpec struct {
	Steps         int    `json:"steps" yaml:"steps"`
	FactorPerStep int    `json:"factor_per_step" yaml:"factor_per_step"`
	Evaluator     string `json:"evaluator,omitempty" yaml:"evaluator,omitempty"`
}

// Handoff names a candidate next phase, optionally gated by a condition
// key resolved by a Resolver. Target may be the reserved sentinels STOP
// (terminate the cascade) or PASS (fall through to the next declared
// phase) instead of a phase name.
type Handoff struct {
	Target string `json:"target" yaml:"target"`
	When   string `json:"when,omitempty" yaml:"when,omitempty"`
}

const (
	HandoffStop = "STOP"
	HandoffPass = "PASS"
)

// SubCascadeSpec declares a sub-cascade invoked as a tool from within a phase.
type SubCascadeSpec struct {
	Name   string         `json:"name" yaml:"name"`
	Source ConfigSource   `json:"source" yaml:"source"`
	Inputs map[string]any `json:"inputs,omitempty" yaml:"inputs,omitempty"`
}

// ToolsMode selects how a phase's tool list is determined.
type ToolsMode string

// ToolsManifest means the phase auto-selects tools via the registry's
// manifest rather than a fixed list.
const ToolsManifest ToolsMode = "manifest"

// PhaseConfig is the declarative configuration for a single phase.
type PhaseConfig struct {
	Name         string    `json:"name" yaml:"name"`
	Instructions string    `json:"instructions" yaml:"instructions"`
	Model        string    `json:"model" yaml:"model"`
	Tools        []string  `json:"tools,omitempty" yaml:"tools,omitempty"`
	ToolsMode    ToolsMode `json:"tools_mode,omitempty" yaml:"tools_mode,omitempty"`

	MaxTurns    int    `json:"max_turns,omitempty" yaml:"max_turns,omitempty"`
	MaxAttempts int    `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	LoopUntil   string `json:"loop_until,omitempty" yaml:"loop_until,omitempty"`

	OutputSchema map[string]any `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`

	PreWards  []WardSpec `json:"pre_wards,omitempty" yaml:"pre_wards,omitempty"`
	PostWards []WardSpec `json:"post_wards,omitempty" yaml:"post_wards,omitempty"`

	Soundings *SoundingsSpec `json:"soundings,omitempty" yaml:"soundings,omitempty"`

	Handoffs []Handoff `json:"handoffs,omitempty" yaml:"handoffs,omitempty"`

	SubCascades []SubCascadeSpec `json:"sub_cascades,omitempty" yaml:"sub_cascades,omitempty"`

	UseNativeTools bool `json:"use_native_tools,omitempty" yaml:"use_native_tools,omitempty"`
}

// NarratorConfig configures the optional per-cascade narrator.
type NarratorConfig struct {
	Model              string   `json:"model,omitempty" yaml:"model,omitempty"`
	Instructions       string   `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	OnEvents           []string `json:"on_events,omitempty" yaml:"on_events,omitempty"`
	MinIntervalSeconds float64  `json:"min_interval_seconds,omitempty" yaml:"min_interval_seconds,omitempty"`
}

// Config is the top-level declarative cascade document (§6.1).
type Config struct {
	CascadeID    string         `json:"cascade_id" yaml:"cascade_id"`
	Description  string         `json:"description,omitempty" yaml:"description,omitempty"`
	InputsSchema map[string]any `json:"inputs_schema,omitempty" yaml:"inputs_schema,omitempty"`
	Phases       []PhaseConfig  `json:"phases" yaml:"phases"`

	Narrator *NarratorConfig `json:"narrator,omitempty" yaml:"narrator,omitempty"`

	// Takes is the cascade-level soundings block (§4.9 step 5): run the
	// whole cascade N times, evaluate, and keep the winner.
	Takes *SoundingsSpec `json:"takes,omitempty" yaml:"takes,omitempty"`

	TokenBudget int            `json:"token_budget,omitempty" yaml:"token_budget,omitempty"`
	AutoContext map[string]any `json:"auto_context,omitempty" yaml:"auto_context,omitempty"`
	Memory      map[string]any `json:"memory,omitempty" yaml:"memory,omitempty"`
	MaxParallel int            `json:"max_parallel,omitempty" yaml:"max_parallel,omitempty"`
}

// toSoundingsSpec turns a declarative SoundingsSpec into the soundings
// package's runtime Spec, given a resolved soundings.Evaluator. Mutation is
// MutationBaseline when mutate is nil, MutationAugment when mutate is set
// and decl names a mutate strategy, and MutationRewrite when mutate is set
// without a named strategy. decl.Reforge is not consulted here; reforge
// blocks go through toReforgeSpec instead.
func toSoundingsSpec(decl *SoundingsSpec, eval soundings.Evaluator, mutate soundings.MutateFunc) soundings.Spec {
	if decl == nil {
		return soundings.Spec{N: 1, Evaluator: eval}
	}
	mode := soundings.MutationBaseline
	if mutate != nil {
		if decl.Mutate != "" {
			mode = soundings.MutationAugment
		} else {
			mode = soundings.MutationRewrite
		}
	}
	return soundings.Spec{
		N:           decl.Factor,
		MaxParallel: decl.MaxParallel,
		Mutation:    mode,
		Mutate:      mutate,
		Evaluator:   eval,
	}
}

// toReforgeSpec turns a declarative ReforgeSpec into reforge.Spec.
func toReforgeSpec(decl *ReforgeSpec, eval soundings.Evaluator, rewrite func(round, attempt int, previousWinner any) any) reforge.Spec {
	if decl == nil {
		return reforge.Spec{Rounds: 0}
	}
	return reforge.Spec{
		Rounds:    decl.Steps,
		Width:     decl.FactorPerStep,
		Evaluator: eval,
		Rewrite:   rewrite,
	}
}
