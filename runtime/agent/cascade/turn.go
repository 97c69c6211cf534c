package cascade

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/cascadekit/cascade/runtime/agent/echo"
	"github.com/cascadekit/cascade/runtime/agent/model"
	"github.com/cascadekit/cascade/runtime/agent/toolregistry"
)

// ToolDispatcher invokes a single tool call requested by the model and
// returns the tool-result message to append to history, per §6.6's
// invoke(name, args_json, session_id, caller_id) contract. trace lets the
// dispatcher record its own history entries scoped to the current phase.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, call model.ToolCall, trace *echo.Echo) (model.Message, error)
}

// promptContext is the template context named in §4.8 BODY step 1:
// {input, state, outputs, lineage, this}.
type promptContext struct {
	Input   any
	State   map[string]any
	Outputs map[string]any
	Lineage []echo.LineageEntry
	This    PhaseConfig
}

// renderInstructions renders a phase's instructions template against the
// turn context. Plain text/template is sufficient here: the template
// surface is a small prompt-substitution concern, not a parsing or
// validation domain any pack library targets.
func renderInstructions(instructions string, pc promptContext) (string, error) {
	tmpl, err := template.New("instructions").Parse(instructions)
	if err != nil {
		return "", fmt.Errorf("cascade: parse instructions template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, pc); err != nil {
		return "", fmt.Errorf("cascade: render instructions template: %w", err)
	}
	return buf.String(), nil
}

// toolDefinitions resolves a phase's declared tool names into model tool
// definitions via the registry. ToolsManifest mode is resolved by the
// registry itself through Manifest; otherwise only the declared names are
// looked up, so an empty declared list yields no tools. This matches
// §6.1's "tackle | tools: [string] | manifest" union.
func toolDefinitions(reg ToolCatalog, p PhaseConfig) ([]*model.ToolDefinition, error) {
	if reg == nil {
		return nil, nil
	}
	if p.ToolsMode == ToolsManifest {
		return reg.Manifest()
	}
	defs := make([]*model.ToolDefinition, 0, len(p.Tools))
	for _, name := range p.Tools {
		def, err := reg.Lookup(toolregistry.Ident(name))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ToolCatalog resolves a phase's declared tool names/manifest mode into
// model tool definitions advertised to the model.
type ToolCatalog interface {
	Lookup(name toolregistry.Ident) (*model.ToolDefinition, error)
	Manifest() ([]*model.ToolDefinition, error)
}

// turnBody builds a phase.BodyFunc that drives the turn-based BODY mode
// (§4.8): render instructions, call the model, dispatch any requested
// tool calls, append results to history, and repeat up to max_turns,
// evaluating loop_until after each turn for an early exit.
func turnBody(p PhaseConfig, client model.Client, dispatcher ToolDispatcher, catalog ToolCatalog, loopUntil func(ctx context.Context, output any) (bool, error)) func(ctx context.Context, input any, trace *echo.Echo) (any, error) {
	maxTurns := p.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 1
	}
	return func(ctx context.Context, input any, trace *echo.Echo) (any, error) {
		defs, err := toolDefinitions(catalog, p)
		if err != nil {
			return nil, fmt.Errorf("phase %q: resolve tools: %w", p.Name, err)
		}

		snap := trace.GetFullEcho()
		rendered, err := renderInstructions(p.Instructions, promptContext{
			Input:   input,
			State:   snap.State,
			Outputs: lineageOutputs(snap.Lineage),
			Lineage: snap.Lineage,
			This:    p,
		})
		if err != nil {
			return nil, err
		}

		history := []*model.Message{{
			Role:  model.ConversationRoleUser,
			Parts: []model.Part{model.TextPart{Text: rendered}},
		}}

		var lastOutput any
		for turn := 0; turn < maxTurns; turn++ {
			req := &model.Request{
				Model:    p.Model,
				Messages: history,
				Tools:    defs,
			}
			resp, err := client.Complete(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("phase %q: turn %d: model call: %w", p.Name, turn, err)
			}
			for i := range resp.Content {
				history = append(history, &resp.Content[i])
			}

			if len(resp.ToolCalls) == 0 {
				lastOutput = flattenText(resp.Content)
				if loopUntil == nil {
					break
				}
				ok, err := loopUntil(ctx, lastOutput)
				if err != nil {
					return nil, fmt.Errorf("phase %q: loop_until: %w", p.Name, err)
				}
				if ok {
					break
				}
				continue
			}

			if dispatcher == nil {
				return nil, fmt.Errorf("phase %q: model requested %d tool calls but no dispatcher is configured", p.Name, len(resp.ToolCalls))
			}
			for _, call := range resp.ToolCalls {
				result, err := dispatcher.Dispatch(ctx, call, trace)
				if err != nil {
					return nil, fmt.Errorf("phase %q: tool %q: %w", p.Name, call.Name, err)
				}
				history = append(history, &result)
			}
		}
		return lastOutput, nil
	}
}

func flattenText(msgs []model.Message) string {
	var buf bytes.Buffer
	for _, m := range msgs {
		for _, part := range m.Parts {
			if tp, ok := part.(model.TextPart); ok {
				buf.WriteString(tp.Text)
			}
		}
	}
	return buf.String()
}

func lineageOutputs(lineage []echo.LineageEntry) map[string]any {
	out := make(map[string]any, len(lineage))
	for _, l := range lineage {
		out[l.Phase] = l.Output
	}
	return out
}
