package sqlfn

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cascadekit/cascade/runtime/agent/cascade"
	"github.com/cascadekit/cascade/runtime/agent/model"
	"github.com/cascadekit/cascade/runtime/agent/soundings"
	"github.com/cascadekit/cascade/runtime/agent/ward"
)

// stubModelClient always replies with a fixed text response, so a
// single-phase, single-turn cascade completes in one Complete call.
type stubModelClient struct {
	text  string
	calls int
}

func (s *stubModelClient) Complete(_ context.Context, _ *model.Request) (*model.Response, error) {
	s.calls++
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

// minimalResolver implements cascade.Resolver with a single fixed model
// client and trivial validators/evaluators, enough to drive a one-phase,
// one-turn cascade end to end.
type minimalResolver struct {
	client *stubModelClient
}

func (r *minimalResolver) Validator(cascade.WardSpec) (ward.Validator, error) {
	return ward.ValidatorFunc(func(context.Context, ward.Input) (ward.Result, error) {
		return ward.Result{OK: true}, nil
	}), nil
}
func (r *minimalResolver) LoopUntil(string) (func(context.Context, any) (bool, error), error) {
	return nil, nil
}
func (r *minimalResolver) Evaluator(string) (soundings.Evaluator, error) {
	return soundings.FirstEvaluator{}, nil
}
func (r *minimalResolver) Mutate(string) (soundings.MutateFunc, error) { return nil, nil }
func (r *minimalResolver) ModelClient(string) (model.Client, error)    { return r.client, nil }
func (r *minimalResolver) ToolDispatcher() cascade.ToolDispatcher      { return nil }
func (r *minimalResolver) ToolCatalog() cascade.ToolCatalog            { return nil }

func newTestExecutor(t *testing.T, client *stubModelClient, cache Cache, binder SQLBinder) (*Executor, *Registry) {
	t.Helper()
	runner := cascade.New(&minimalResolver{client: client})
	registry := NewRegistry()
	return NewExecutor(registry, runner, cache, binder), registry
}

func echoCascade(id string) cascade.Config {
	return cascade.Config{
		CascadeID: id,
		Phases: []cascade.PhaseConfig{
			{Name: "only", Instructions: "echo", MaxAttempts: 1, MaxTurns: 1},
		},
	}
}

func TestExecutorRunsCascadeAndCachesValue(t *testing.T) {
	client := &stubModelClient{text: "brand: Apple"}
	cache := NewMemoryCache()
	exec, registry := newTestExecutor(t, client, cache, nil)
	require.NoError(t, registry.Register(NewFunction("classify", echoCascade("classify"))))

	ctx := context.Background()
	result, err := exec.Execute(ctx, "classify", map[string]any{"text": "Apple iPhone"})
	require.NoError(t, err)
	require.Equal(t, "brand: Apple", result.Value)
	require.False(t, result.CacheHit)
	require.Equal(t, 1, client.calls)

	// Second call with identical args must hit the cache, not the model.
	result2, err := exec.Execute(ctx, "classify", map[string]any{"text": "Apple iPhone"})
	require.NoError(t, err)
	require.True(t, result2.CacheHit)
	require.Equal(t, "brand: Apple", result2.Value)
	require.Equal(t, 1, client.calls, "cache hit must not re-run the cascade")
}

func TestExecutorUnknownFunctionErrors(t *testing.T) {
	exec, _ := newTestExecutor(t, &stubModelClient{text: "x"}, NewMemoryCache(), nil)
	_, err := exec.Execute(context.Background(), "nope", nil)
	require.Error(t, err)
}

func TestExecutorTakesPrefixBypassesCache(t *testing.T) {
	client := &stubModelClient{text: "result"}
	cache := NewMemoryCache()
	exec, registry := newTestExecutor(t, client, cache, nil)
	require.NoError(t, registry.Register(NewFunction("classify", echoCascade("classify"))))

	ctx := context.Background()
	args := map[string]any{
		"text": `__CASCADE_TAKES:{"factor":1,"evaluator":"first"}__ Apple iPhone`,
	}
	_, err := exec.Execute(ctx, "classify", args)
	require.NoError(t, err)
	_, err = exec.Execute(ctx, "classify", args)
	require.NoError(t, err)
	require.Equal(t, 2, client.calls, "a takes call must never be served from cache")
}

func TestExecutorSourcePrefixSurfacedInResult(t *testing.T) {
	client := &stubModelClient{text: "result"}
	exec, registry := newTestExecutor(t, client, NewMemoryCache(), nil)
	require.NoError(t, registry.Register(NewFunction("classify", echoCascade("classify"))))

	args := map[string]any{
		"text": `__CASCADE_SOURCE:{"table":"products","column":"name","row":3}__ Apple iPhone`,
	}
	result, err := exec.Execute(context.Background(), "classify", args)
	require.NoError(t, err)
	require.Equal(t, "products", result.Source["table"])
	require.Equal(t, float64(3), result.Source["row"])
}

func TestExecutorCacheAsSharesResultAcrossFunctions(t *testing.T) {
	client := &stubModelClient{text: "shared"}
	cache := NewMemoryCache()
	exec, registry := newTestExecutor(t, client, cache, nil)

	primary := NewFunction("ask_data", echoCascade("ask_data"))
	variant := NewFunction("ask_data_sql", echoCascade("ask_data_sql"))
	variant.CacheAs = "ask_data"
	require.NoError(t, registry.Register(primary))
	require.NoError(t, registry.Register(variant))

	ctx := context.Background()
	args := map[string]any{"q": "total revenue"}
	_, err := exec.Execute(ctx, "ask_data", args)
	require.NoError(t, err)
	result, err := exec.Execute(ctx, "ask_data_sql", args)
	require.NoError(t, err)
	require.True(t, result.CacheHit, "ask_data_sql should hit the cache populated by ask_data")
	require.Equal(t, 1, client.calls)
}

// fakeSQLBinder records every bind/execute call and returns a deterministic
// scalar derived from the bound SQL text.
type fakeSQLBinder struct {
	bound []string
}

func (b *fakeSQLBinder) Bind(sqlText string, args map[string]any, argOrder []string) (string, error) {
	bound := sqlText
	for _, name := range argOrder {
		bound = fmt.Sprintf("%s[%s=%v]", bound, name, args[name])
	}
	b.bound = append(b.bound, bound)
	return bound, nil
}

func (b *fakeSQLBinder) ExecuteScalar(_ context.Context, sql string) (any, error) {
	return "scalar:" + sql, nil
}

func (b *fakeSQLBinder) ExecuteStatement(_ context.Context, sql string) (string, error) {
	return "/tmp/result-for-" + sql + ".json", nil
}

func TestExecutorSQLExecuteModeCachesSQLNotValue(t *testing.T) {
	client := &stubModelClient{text: "SELECT brand FROM t WHERE id = :id"}
	cache := NewMemoryCache()
	binder := &fakeSQLBinder{}
	exec, registry := newTestExecutor(t, client, cache, binder)

	fn := NewFunction("brand_of", echoCascade("brand_of"), "id")
	fn.OutputMode = OutputSQLExecute
	fn.StructureArgs = []string{"id"}
	require.NoError(t, registry.Register(fn))

	ctx := context.Background()
	result, err := exec.Execute(ctx, "brand_of", map[string]any{"id": 1})
	require.NoError(t, err)
	require.Equal(t, "scalar:SELECT brand FROM t WHERE id = :id[id=1]", result.Value)
	require.Equal(t, 1, client.calls)

	// Different id: cascade must NOT re-run (the generated SQL is cached),
	// but the bound/executed SQL reflects the new argument value.
	result2, err := exec.Execute(ctx, "brand_of", map[string]any{"id": 2})
	require.NoError(t, err)
	require.True(t, result2.CacheHit)
	require.Equal(t, 1, client.calls, "sql_execute cache hit must skip the cascade")
	require.Equal(t, "scalar:SELECT brand FROM t WHERE id = :id[id=2]", result2.Value)
}

func TestExecutorSQLExecuteWithoutBinderErrors(t *testing.T) {
	client := &stubModelClient{text: "SELECT 1"}
	exec, registry := newTestExecutor(t, client, NewMemoryCache(), nil)
	fn := NewFunction("f", echoCascade("f"))
	fn.OutputMode = OutputSQLExecute
	require.NoError(t, registry.Register(fn))

	_, err := exec.Execute(context.Background(), "f", map[string]any{})
	require.Error(t, err)
}
