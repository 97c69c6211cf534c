package cascade

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cascadekit/cascade/runtime/agent/model"
	"github.com/cascadekit/cascade/runtime/agent/soundings"
	"github.com/cascadekit/cascade/runtime/agent/ward"
)

// stubModelClient always replies with a fixed text response and no tool
// calls, so turnBody exits its loop on the first turn.
type stubModelClient struct {
	text string
}

func (s *stubModelClient) Complete(_ context.Context, _ *model.Request) (*model.Response, error) {
	return &model.Response{
		Content: []model.Message{{
			Role:  model.ConversationRoleAssistant,
			Parts: []model.Part{model.TextPart{Text: s.text}},
		}},
		StopReason: "stop",
	}, nil
}

func (s *stubModelClient) Stream(context.Context, *model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

// fakeResolver is a minimal Resolver test double. All maps are optional;
// missing keys resolve to safe zero values.
type fakeResolver struct {
	clients    map[string]model.Client
	defaultClient model.Client
	validators map[string]ward.Validator
	evaluators map[string]soundings.Evaluator
}

func (f *fakeResolver) Validator(spec WardSpec) (ward.Validator, error) {
	if v, ok := f.validators[spec.Validator]; ok {
		return v, nil
	}
	return ward.ValidatorFunc(func(_ context.Context, _ ward.Input) (ward.Result, error) {
		return ward.Result{OK: true}, nil
	}), nil
}

func (f *fakeResolver) LoopUntil(string) (func(ctx context.Context, output any) (bool, error), error) {
	return nil, nil
}

func (f *fakeResolver) Evaluator(key string) (soundings.Evaluator, error) {
	if e, ok := f.evaluators[key]; ok {
		return e, nil
	}
	return soundings.FirstEvaluator{}, nil
}

func (f *fakeResolver) Mutate(string) (soundings.MutateFunc, error) { return nil, nil }

func (f *fakeResolver) ModelClient(spec string) (model.Client, error) {
	if c, ok := f.clients[spec]; ok {
		return c, nil
	}
	return f.defaultClient, nil
}

func (f *fakeResolver) ToolDispatcher() ToolDispatcher { return nil }
func (f *fakeResolver) ToolCatalog() ToolCatalog       { return nil }

func newFakeResolver(text string) *fakeResolver {
	return &fakeResolver{defaultClient: &stubModelClient{text: text}}
}

func TestRunnerSinglePhaseSuccess(t *testing.T) {
	cfg := Config{
		CascadeID: "greet",
		Phases: []PhaseConfig{
			{Name: "draft", Instructions: "say hi", MaxAttempts: 1, MaxTurns: 1},
		},
	}
	runner := New(newFakeResolver("hello there"))
	result, err := runner.Run(context.Background(), cfg, map[string]any{"name": "ada"})
	require.NoError(t, err)
	require.Equal(t, "success", result.Status)
	require.False(t, result.HasErrors)
	require.Equal(t, "hello there", result.Value)
	require.Len(t, result.Lineage, 1)
	require.Equal(t, "draft", result.Lineage[0].Phase)
}

func TestRunnerHandoffStopShortCircuits(t *testing.T) {
	cfg := Config{
		CascadeID: "two-phase",
		Phases: []PhaseConfig{
			{Name: "draft", Instructions: "draft", MaxAttempts: 1, MaxTurns: 1, Handoffs: []Handoff{{Target: HandoffStop}}},
			{Name: "polish", Instructions: "polish", MaxAttempts: 1, MaxTurns: 1},
		},
	}
	runner := New(newFakeResolver("draft output"))
	result, err := runner.Run(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.Len(t, result.Lineage, 1)
	require.Equal(t, "draft", result.Lineage[0].Phase)
}

func TestRunnerDefaultOrderRunsAllPhases(t *testing.T) {
	cfg := Config{
		CascadeID: "two-phase",
		Phases: []PhaseConfig{
			{Name: "draft", Instructions: "draft", MaxAttempts: 1, MaxTurns: 1},
			{Name: "polish", Instructions: "polish", MaxAttempts: 1, MaxTurns: 1},
		},
	}
	runner := New(newFakeResolver("output"))
	result, err := runner.Run(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.Len(t, result.Lineage, 2)
	require.Equal(t, "draft", result.Lineage[0].Phase)
	require.Equal(t, "polish", result.Lineage[1].Phase)
}

func TestRunnerRejectsMissingCascadeID(t *testing.T) {
	cfg := Config{Phases: []PhaseConfig{{Name: "only"}}}
	runner := New(newFakeResolver("x"))
	_, err := runner.Run(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestRunnerRejectsUnknownHandoffTarget(t *testing.T) {
	cfg := Config{
		CascadeID: "bad",
		Phases: []PhaseConfig{
			{Name: "only", Handoffs: []Handoff{{Target: "missing"}}},
		},
	}
	runner := New(newFakeResolver("x"))
	_, err := runner.Run(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestRunnerOverridesSwapModel(t *testing.T) {
	resolver := &fakeResolver{
		clients: map[string]model.Client{
			"gpt-4o": &stubModelClient{text: "swapped"},
		},
		defaultClient: &stubModelClient{text: "default"},
	}
	cfg := Config{
		CascadeID: "swap",
		Phases:    []PhaseConfig{{Name: "draft", Model: "gpt-3.5", MaxAttempts: 1, MaxTurns: 1}},
	}
	runner := New(resolver)
	result, err := runner.Run(context.Background(), cfg, nil, WithOverrides(Overrides{
		CellOverrides: map[string]map[string]any{
			"default": {"model": "gpt-4o"},
		},
	}))
	require.NoError(t, err)
	require.Equal(t, "swapped", result.Value)
}

func TestRunnerSubCascadeMerges(t *testing.T) {
	child := Config{
		CascadeID: "child",
		Phases:    []PhaseConfig{{Name: "child-only", MaxAttempts: 1, MaxTurns: 1}},
	}
	parent := Config{
		CascadeID: "parent",
		Phases: []PhaseConfig{{
			Name:        "draft",
			MaxAttempts: 1,
			MaxTurns:    1,
			SubCascades: []SubCascadeSpec{{Name: "helper", Source: child}},
		}},
	}
	runner := New(newFakeResolver("out"))
	result, err := runner.Run(context.Background(), parent, nil)
	require.NoError(t, err)

	found := false
	for _, h := range result.History {
		if payload, ok := h.Payload.(map[string]any); ok {
			if sid, ok := payload["sub_echo"].(string); ok && strings.Contains(sid, "helper") {
				found = true
			}
		}
	}
	require.True(t, found, "expected a sub_echo marker for the helper sub-cascade")
}

func TestRunnerCascadeLevelSoundingsPicksWinner(t *testing.T) {
	cfg := Config{
		CascadeID: "takes",
		Phases:    []PhaseConfig{{Name: "draft", MaxAttempts: 1, MaxTurns: 1}},
		Takes:     &SoundingsSpec{Factor: 3},
	}
	runner := New(newFakeResolver("attempt output"))
	result, err := runner.Run(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.Equal(t, "attempt output", result.Value)
}
