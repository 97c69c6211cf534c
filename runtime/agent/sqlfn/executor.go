package sqlfn

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cascadekit/cascade/runtime/agent/cascade"
)

// SQLBinder is the narrow seam between sqlfn and whatever SQL engine is
// embedding it (e.g. a DuckDB connection). Only the operations
// OutputSQLExecute/OutputSQLStatement need are exposed, mirroring the
// model and collection seams used elsewhere in this runtime.
type SQLBinder interface {
	// Bind substitutes args, in argOrder, into sqlText's parameter
	// placeholders and returns the resulting executable SQL.
	Bind(sqlText string, args map[string]any, argOrder []string) (string, error)
	// ExecuteScalar runs a bound SQL expression and returns its single
	// scalar result.
	ExecuteScalar(ctx context.Context, sql string) (any, error)
	// ExecuteStatement runs a bound SQL statement and writes its result
	// set to a temp JSON file, returning that file's path.
	ExecuteStatement(ctx context.Context, sql string) (tempFilePath string, err error)
}

// Result is what Execute returns for a single SQL function call.
type Result struct {
	// Value is the produced value: the cascade's output for OutputValue,
	// the scalar ExecuteScalar produced for OutputSQLExecute, or the temp
	// file path ExecuteStatement produced for OutputSQLStatement.
	Value any
	// CacheHit reports whether Value (or, for the SQL output modes, the
	// SQL text that produced it) came from cache.
	CacheHit bool
	// Source is the lineage object extracted from a __CASCADE_SOURCE:...__
	// prefix, if any, surfaced per §6.7 as invocation_metadata.source.
	Source map[string]any
}

// ExecuteOption configures a single Execute call.
type ExecuteOption func(*executeOptions)

type executeOptions struct {
	sessionID string
	callerID  string
}

// WithSessionID pins the session ID used for the backing cascade run.
func WithSessionID(id string) ExecuteOption { return func(o *executeOptions) { o.sessionID = id } }

// WithCallerID records the caller identity for invocation metadata and
// cost attribution.
func WithCallerID(id string) ExecuteOption { return func(o *executeOptions) { o.callerID = id } }

// Executor runs SQL-registered cascades, handling takes/source prefix
// extraction, cache-key derivation, the two-tier cache, and the
// sql_execute/sql_statement output modes (§6.7).
type Executor struct {
	registry *Registry
	runner   *cascade.Runner
	cache    Cache
	binder   SQLBinder
}

// NewExecutor builds an Executor. binder may be nil if no registered
// Function uses OutputSQLExecute/OutputSQLStatement; cache may be nil to
// disable caching entirely regardless of per-Function settings.
func NewExecutor(registry *Registry, runner *cascade.Runner, cache Cache, binder SQLBinder) *Executor {
	return &Executor{registry: registry, runner: runner, cache: cache, binder: binder}
}

// Execute runs the named SQL function against args, per §6.7.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any, opts ...ExecuteOption) (Result, error) {
	var options executeOptions
	for _, opt := range opts {
		opt(&options)
	}

	fn, ok := e.registry.Lookup(name)
	if !ok {
		return Result{}, fmt.Errorf("sqlfn: function not found: %q", name)
	}

	cleaned, takes, hasTakes := ExtractTakes(args)
	cleaned, source, _ := ExtractSource(cleaned)

	// Takes bypass cache entirely: a per-call soundings override asks for
	// a fresh sample, not a replay of a previous winner.
	if fn.CacheEnabled && !hasTakes && e.cache != nil {
		key := CacheKey(fn, cleaned)
		if cached, found, err := e.cache.Get(ctx, fn.cacheName(), key); err == nil && found {
			value, err := e.resolveCached(ctx, fn, cached, cleaned)
			if err != nil {
				return Result{}, err
			}
			return Result{Value: value, CacheHit: true, Source: source}, nil
		}
	}

	runOpts := []cascade.Option{}
	if options.sessionID != "" {
		runOpts = append(runOpts, cascade.WithSessionID(options.sessionID))
	}
	if options.callerID != "" {
		runOpts = append(runOpts, cascade.WithCallerID(options.callerID))
	}
	if hasTakes {
		runOpts = append(runOpts, cascade.WithOverrides(cascade.Overrides{
			CascadeOverrides: map[string]any{"takes": takes},
		}))
	}

	cascadeResult, err := e.runner.Run(ctx, fn.Source, cleaned, runOpts...)
	if err != nil {
		return Result{}, fmt.Errorf("sqlfn: %q: %w", name, err)
	}

	value, cacheable, err := e.materialize(ctx, fn, cascadeResult.Value, cleaned)
	if err != nil {
		return Result{}, err
	}

	if fn.CacheEnabled && !hasTakes && e.cache != nil {
		key := CacheKey(fn, cleaned)
		_ = e.cache.Set(ctx, fn.cacheName(), key, cacheable, fn.CacheTTL)
	}

	return Result{Value: value, Source: source}, nil
}

// materialize turns a cascade's raw output into the Result value and the
// string that should be cached. For OutputValue these are the same thing
// (the value, stringified for caching); for the SQL output modes the
// cascade's output IS the SQL text, which is cached as-is and separately
// bound+executed to produce the returned value.
func (e *Executor) materialize(ctx context.Context, fn Function, raw any, args map[string]any) (value any, cacheable string, err error) {
	switch fn.OutputMode {
	case OutputSQLExecute:
		sqlText, ok := raw.(string)
		if !ok {
			return nil, "", fmt.Errorf("sqlfn: %q: sql_execute output mode requires a string result, got %T", fn.Name, raw)
		}
		v, err := e.bindAndExecuteScalar(ctx, fn, sqlText, args)
		if err != nil {
			return nil, "", err
		}
		return v, sqlText, nil
	case OutputSQLStatement:
		sqlText, ok := raw.(string)
		if !ok {
			return nil, "", fmt.Errorf("sqlfn: %q: sql_statement output mode requires a string result, got %T", fn.Name, raw)
		}
		path, err := e.bindAndExecuteStatement(ctx, fn, sqlText, args)
		if err != nil {
			return nil, "", err
		}
		return path, sqlText, nil
	default:
		return raw, canonicalJSON(raw), nil
	}
}

// resolveCached reinterprets a cache hit: for OutputValue the cached text
// is the value itself (round-tripped through JSON), for the SQL output
// modes it's the SQL fragment, which is re-bound against the *current*
// call's args and re-executed.
func (e *Executor) resolveCached(ctx context.Context, fn Function, cached string, args map[string]any) (any, error) {
	switch fn.OutputMode {
	case OutputSQLExecute:
		return e.bindAndExecuteScalar(ctx, fn, cached, args)
	case OutputSQLStatement:
		return e.bindAndExecuteStatement(ctx, fn, cached, args)
	default:
		var v any
		if err := json.Unmarshal([]byte(cached), &v); err != nil {
			return cached, nil
		}
		return v, nil
	}
}

func (e *Executor) bindAndExecuteScalar(ctx context.Context, fn Function, sqlText string, args map[string]any) (any, error) {
	if e.binder == nil {
		return nil, fmt.Errorf("sqlfn: %q: sql_execute output mode requires a SQLBinder", fn.Name)
	}
	bound, err := e.binder.Bind(sqlText, args, fn.ArgOrder)
	if err != nil {
		return nil, fmt.Errorf("sqlfn: %q: bind: %w", fn.Name, err)
	}
	return e.binder.ExecuteScalar(ctx, bound)
}

func (e *Executor) bindAndExecuteStatement(ctx context.Context, fn Function, sqlText string, args map[string]any) (string, error) {
	if e.binder == nil {
		return "", fmt.Errorf("sqlfn: %q: sql_statement output mode requires a SQLBinder", fn.Name)
	}
	bound, err := e.binder.Bind(sqlText, args, fn.ArgOrder)
	if err != nil {
		return "", fmt.Errorf("sqlfn: %q: bind: %w", fn.Name, err)
	}
	return e.binder.ExecuteStatement(ctx, bound)
}
