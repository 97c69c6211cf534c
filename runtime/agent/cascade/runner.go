package cascade

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cascadekit/cascade/runtime/agent/echo"
	"github.com/cascadekit/cascade/runtime/agent/engine"
	"github.com/cascadekit/cascade/runtime/agent/phase"
	"github.com/cascadekit/cascade/runtime/agent/soundings"
)

// Result is the structured cascade outcome returned by Run, per §6.2.
type Result struct {
	SessionID string
	State     map[string]any
	History   []echo.LogEntry
	Lineage   []echo.LineageEntry
	Errors    []echo.ErrorEntry
	HasErrors bool
	Status    string
	Value     any
}

// Option configures a single Run call.
type Option func(*runOptions)

type runOptions struct {
	sessionID       string
	parentSessionID string
	callerID        string
	overrides       Overrides
	publisher       EventPublisher
	durableEngine   engine.Engine
	workflowName    string
}

// WithSessionID pins the session ID instead of generating one.
func WithSessionID(id string) Option { return func(o *runOptions) { o.sessionID = id } }

// WithParentSessionID marks this run as a sub-cascade of parentSessionID.
func WithParentSessionID(id string) Option { return func(o *runOptions) { o.parentSessionID = id } }

// WithCallerID records the caller identity for invocation metadata.
func WithCallerID(id string) Option { return func(o *runOptions) { o.callerID = id } }

// WithOverrides applies caller-supplied cascade/cell overrides (§4.9 step 3).
func WithOverrides(o Overrides) Option { return func(ro *runOptions) { ro.overrides = o } }

// WithEventPublisher installs a subscriber for cascade-level events (§6.4).
func WithEventPublisher(p EventPublisher) Option {
	return func(o *runOptions) { o.publisher = p }
}

// WithDurableEngine routes the top-level run through engine.Engine.StartWorkflow
// instead of executing inline, mirroring ExecuteAgentInline vs StartWorkflow
// in the teacher (§4.9, §5). workflowName must already be registered on eng
// via RegisterWorkflow with a handler that calls Runner.runInline.
func WithDurableEngine(eng engine.Engine, workflowName string) Option {
	return func(o *runOptions) {
		o.durableEngine = eng
		o.workflowName = workflowName
	}
}

// Runner executes cascades against a Resolver that supplies the live code
// (validators, evaluators, model clients, tool dispatch) a cascade's
// declarative config names by key.
type Runner struct {
	resolver Resolver
}

// New constructs a Runner bound to resolver.
func New(resolver Resolver) *Runner {
	return &Runner{resolver: resolver}
}

// Run resolves src into a Config, applies overrides, and executes the
// cascade to completion, per §4.9.
func (r *Runner) Run(ctx context.Context, src ConfigSource, inputs map[string]any, opts ...Option) (result Result, err error) {
	var options runOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.publisher == nil {
		options.publisher = noopPublisher{}
	}

	cfg, err := resolveConfig(src)
	if err != nil {
		return Result{}, err
	}
	if err := validateConfig(cfg); err != nil {
		return Result{}, err
	}
	cfg = applyOverrides(cfg, options.overrides)

	if options.durableEngine != nil {
		return r.runDurable(ctx, cfg, inputs, options)
	}
	return r.runInline(ctx, cfg, inputs, options)
}

// runDurable starts the cascade as a workflow on the configured engine and
// blocks for its result, translating a workflow failure into the same
// Result/error shape runInline returns.
func (r *Runner) runDurable(ctx context.Context, cfg Config, inputs map[string]any, options runOptions) (Result, error) {
	handle, err := options.durableEngine.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:       workflowID(options, cfg),
		Workflow: options.workflowName,
		Input: durableInput{
			Config:  cfg,
			Inputs:  inputs,
			Options: options,
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("cascade %q: start durable workflow: %w", cfg.CascadeID, err)
	}
	var result Result
	if err := handle.Wait(ctx, &result); err != nil {
		return Result{}, fmt.Errorf("cascade %q: durable workflow: %w", cfg.CascadeID, err)
	}
	return result, nil
}

// durableInput is the payload a registered workflow handler unpacks before
// calling Runner.runInline from within engine.WorkflowContext.
type durableInput struct {
	Config  Config
	Inputs  map[string]any
	Options runOptions
}

func workflowID(options runOptions, cfg Config) string {
	if options.sessionID != "" {
		return options.sessionID
	}
	return cfg.CascadeID + "-" + uuid.NewString()
}

// runInline executes the cascade in the calling goroutine, recovering any
// panic at this boundary and converting it to a Go error per §7's
// deliberate deviation toward idiomatic Go (see SPEC_FULL.md §7).
func (r *Runner) runInline(ctx context.Context, cfg Config, inputs map[string]any, options runOptions) (result Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("cascade %q: panic: %v", cfg.CascadeID, rec)
		}
	}()

	sessionID := options.sessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	trace := echo.New(sessionID, options.parentSessionID)
	trace.SetCascadeContext(cfg.CascadeID)
	for k, v := range inputs {
		trace.SetState(k, v)
	}

	trace.AddHistory(echo.LogEntry{Payload: map[string]any{"inputs": inputs}}, sessionID, "", echo.NodeCascade, nil)
	options.publisher.Publish(ctx, Event{Kind: EventCascadeStart, SessionID: sessionID, CascadeID: cfg.CascadeID})

	var runErr error
	if cfg.Takes != nil {
		runErr = r.runWithCascadeSoundings(ctx, cfg, inputs, trace, options)
	} else {
		runErr = r.runPhases(ctx, cfg, inputs, trace, options)
	}

	snap := trace.GetFullEcho()
	result = Result{
		SessionID: snap.SessionID,
		State:     snap.State,
		History:   snap.History,
		Lineage:   snap.Lineage,
		Errors:    snap.Errors,
		HasErrors: snap.HasErrors,
		Status:    snap.Status,
	}
	if len(snap.Lineage) > 0 {
		result.Value = snap.Lineage[len(snap.Lineage)-1].Output
	}

	if runErr != nil {
		options.publisher.Publish(ctx, Event{Kind: EventCascadeError, SessionID: sessionID, CascadeID: cfg.CascadeID, Err: runErr})
		return result, runErr
	}
	options.publisher.Publish(ctx, Event{Kind: EventCascadeComplete, SessionID: sessionID, CascadeID: cfg.CascadeID})
	return result, nil
}

// runWithCascadeSoundings runs the whole cascade N times (§4.9 step 5) and
// keeps the winner's trace, discarding the losers' Echoes entirely so only
// the winning run's history/lineage/errors end up in the final result.
func (r *Runner) runWithCascadeSoundings(ctx context.Context, cfg Config, inputs map[string]any, trace *echo.Echo, options runOptions) error {
	eval, err := r.resolver.Evaluator(cfg.Takes.Evaluator)
	if err != nil {
		return fmt.Errorf("cascade %q: resolve takes evaluator: %w", cfg.CascadeID, err)
	}
	spec := toSoundingsSpec(cfg.Takes, eval, nil)

	var winnerTrace *echo.Echo
	body := func(ctx context.Context, attempt int, in any, parentTrace *echo.Echo) (any, error) {
		attemptTrace := echo.New(fmt.Sprintf("%s-takes-%d", trace.SessionID, attempt), trace.SessionID)
		if err := r.runPhases(ctx, cfg, inputs, attemptTrace, options); err != nil {
			return nil, err
		}
		return attemptSnapshot{trace: attemptTrace}, nil
	}

	result, err := soundings.Run(ctx, spec, inputs, trace, body)
	if err != nil {
		return fmt.Errorf("cascade %q: cascade-level soundings: %w", cfg.CascadeID, err)
	}
	snap, ok := result.Winner.Output.(attemptSnapshot)
	if !ok {
		return fmt.Errorf("cascade %q: cascade-level soundings produced no winner", cfg.CascadeID)
	}
	winnerTrace = snap.trace
	trace.Merge(winnerTrace)
	return nil
}

type attemptSnapshot struct {
	trace *echo.Echo
}

// runPhases drives phases per handoffs (§4.8 Handoff), defaulting to
// declared order when a phase has no handoffs.
func (r *Runner) runPhases(ctx context.Context, cfg Config, inputs map[string]any, trace *echo.Echo, options runOptions) error {
	byName := make(map[string]PhaseConfig, len(cfg.Phases))
	for _, p := range cfg.Phases {
		byName[p.Name] = p
	}

	var input any = inputs
	current := cfg.Phases[0].Name
	visited := map[string]bool{}

	for {
		if visited[current] {
			return fmt.Errorf("cascade %q: handoff cycle detected at phase %q", cfg.CascadeID, current)
		}
		visited[current] = true

		p, ok := byName[current]
		if !ok {
			return fmt.Errorf("cascade %q: unknown phase %q", cfg.CascadeID, current)
		}

		trace.SetPhaseContext(p.Name)
		options.publisher.Publish(ctx, Event{Kind: EventPhaseStart, SessionID: trace.SessionID, CascadeID: cfg.CascadeID, Phase: p.Name})

		output, err := r.runPhase(ctx, cfg, p, input, trace, options)
		if err != nil {
			trace.AddError(p.Name, "phase_error", err.Error(), nil)
			options.publisher.Publish(ctx, Event{Kind: EventCascadeError, SessionID: trace.SessionID, CascadeID: cfg.CascadeID, Phase: p.Name, Err: err})
			return err
		}
		options.publisher.Publish(ctx, Event{Kind: EventPhaseComplete, SessionID: trace.SessionID, CascadeID: cfg.CascadeID, Phase: p.Name})

		next, err := r.nextPhase(ctx, p, output, trace)
		if err != nil {
			return err
		}
		if next == HandoffStop {
			return nil
		}
		if next == HandoffPass || next == "" {
			idx := phaseIndex(cfg.Phases, p.Name)
			if idx < 0 || idx == len(cfg.Phases)-1 {
				return nil
			}
			current = cfg.Phases[idx+1].Name
			input = output
			continue
		}
		if next != p.Name {
			trace.AddHistory(echo.LogEntry{
				Role:    "system",
				Payload: fmt.Sprintf("Dynamically routed to: %s", next),
			}, trace.SessionID, "", echo.NodeStructure, map[string]any{"from": p.Name, "to": next})
		}
		current = next
		input = output
	}
}

func phaseIndex(phases []PhaseConfig, name string) int {
	for i, p := range phases {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// nextPhase resolves a phase's declared handoffs into a single target:
// no handoffs means PASS (declared order), a single handoff is
// unconditional, and multiple handoffs are resolved by a model/evaluator
// choice via the Resolver's loop_until-style predicate convention — here
// the first handoff whose When-keyed predicate passes wins, defaulting to
// PASS if none do.
func (r *Runner) nextPhase(ctx context.Context, p PhaseConfig, output any, trace *echo.Echo) (string, error) {
	if len(p.Handoffs) == 0 {
		return HandoffPass, nil
	}
	if len(p.Handoffs) == 1 && p.Handoffs[0].When == "" {
		return p.Handoffs[0].Target, nil
	}
	for _, h := range p.Handoffs {
		if h.When == "" {
			return h.Target, nil
		}
		predicate, err := r.resolver.LoopUntil(h.When)
		if err != nil {
			return "", fmt.Errorf("phase %q: resolve handoff condition %q: %w", p.Name, h.When, err)
		}
		ok, err := predicate(ctx, output)
		if err != nil {
			return "", fmt.Errorf("phase %q: evaluate handoff condition %q: %w", p.Name, h.When, err)
		}
		if ok {
			return h.Target, nil
		}
	}
	return HandoffPass, nil
}

// runPhase builds a phase.Runner from p via the Resolver and executes it,
// then records the output into lineage and any declared sub-cascades.
func (r *Runner) runPhase(ctx context.Context, cfg Config, p PhaseConfig, input any, trace *echo.Echo, options runOptions) (any, error) {
	preWards, err := wardRegistrations(r.resolver, p.PreWards)
	if err != nil {
		return nil, err
	}
	postWards, err := wardRegistrations(r.resolver, p.PostWards)
	if err != nil {
		return nil, err
	}
	var loopUntil phase.LoopUntil
	if p.LoopUntil != "" {
		loopUntil, err = r.resolver.LoopUntil(p.LoopUntil)
		if err != nil {
			return nil, err
		}
	}

	client, err := r.resolver.ModelClient(p.Model)
	if err != nil {
		return nil, err
	}
	body := turnBody(p, client, r.resolver.ToolDispatcher(), r.resolver.ToolCatalog(), loopUntil)

	pcfg := phase.Config{
		Name:        p.Name,
		MaxAttempts: p.MaxAttempts,
		PreWards:    preWards,
		PostWards:   postWards,
		LoopUntil:   loopUntil,
		Mode:        phase.BodyModeTurn,
	}

	if p.Soundings != nil {
		eval, err := r.resolver.Evaluator(p.Soundings.Evaluator)
		if err != nil {
			return nil, err
		}
		var mutate soundings.MutateFunc
		if p.Soundings.Mutate != "" {
			mutate, err = r.resolver.Mutate(p.Soundings.Mutate)
			if err != nil {
				return nil, err
			}
		}
		if p.Soundings.Reforge != nil {
			pcfg.Mode = phase.BodyModeReforge
			pcfg.Reforge = toReforgeSpec(p.Soundings.Reforge, eval, func(round, attempt int, previousWinner any) any {
				if mutate == nil {
					return previousWinner
				}
				return mutate(attempt, previousWinner)
			})
		} else {
			pcfg.Mode = phase.BodyModeSoundings
			pcfg.Soundings = toSoundingsSpec(p.Soundings, eval, mutate)
		}
	}

	runner := phase.New(pcfg, nil)
	out, err := runner.Run(ctx, input, trace, body)
	if err != nil {
		return nil, err
	}

	traceID := fmt.Sprintf("%s-%s", trace.SessionID, p.Name)
	trace.AddLineage(p.Name, out.Value, traceID)
	trace.SetState(p.Name, out.Value)

	for _, sc := range p.SubCascades {
		if err := r.runSubCascade(ctx, sc, out.Value, trace, options); err != nil {
			return nil, fmt.Errorf("phase %q: sub-cascade %q: %w", p.Name, sc.Name, err)
		}
	}

	return out.Value, nil
}

// runSubCascade spawns a child session and merges its Echo back, per §4.9
// step 7 and §5's "sub-cascades run on their own session but block the
// spawning phase until they return" rule.
func (r *Runner) runSubCascade(ctx context.Context, sc SubCascadeSpec, output any, trace *echo.Echo, options runOptions) error {
	childInputs := make(map[string]any, len(sc.Inputs)+1)
	for k, v := range sc.Inputs {
		childInputs[k] = v
	}
	childInputs["parent_output"] = output

	childSessionID := trace.SessionID + "-" + sc.Name
	childResult, runErr := r.Run(ctx, sc.Source, childInputs,
		WithSessionID(childSessionID),
		WithParentSessionID(trace.SessionID),
		WithCallerID(options.callerID),
		WithEventPublisher(options.publisher),
	)

	child := echo.New(childResult.SessionID, trace.SessionID)
	for k, v := range childResult.State {
		child.SetState(k, v)
	}
	for _, h := range childResult.History {
		child.AddHistory(h, h.TraceID, h.ParentID, h.NodeType, h.Metadata)
	}
	for _, l := range childResult.Lineage {
		child.AddLineage(l.Phase, l.Output, l.TraceID)
	}
	for _, e := range childResult.Errors {
		child.AddError(e.Phase, e.Type, e.Message, e.Metadata)
	}
	trace.Merge(child)

	return runErr
}
