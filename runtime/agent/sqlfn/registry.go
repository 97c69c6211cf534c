package sqlfn

import (
	"fmt"
	"sync"
	"time"

	"github.com/cascadekit/cascade/runtime/agent/cascade"
)

// OutputMode selects how a Function's cascade result becomes a SQL value
// (§6.7).
type OutputMode string

const (
	// OutputValue returns the cascade's result value directly. Default.
	OutputValue OutputMode = "value"
	// OutputSQLExecute means the cascade returns a SQL expression, which
	// the runtime binds with the original call's arguments and executes
	// to produce the scalar value. The *SQL text* is what gets cached,
	// not the value it evaluates to, so repeated calls with different
	// argument values but the same generated expression skip the
	// cascade entirely and just re-bind and re-execute.
	OutputSQLExecute OutputMode = "sql_execute"
	// OutputSQLStatement means the cascade returns a full SQL statement.
	// The runtime binds it with the call's arguments, executes it, and
	// writes the table result to a temp JSON file for the caller to read
	// back (e.g. via a JSON-table reader). As with OutputSQLExecute, the
	// SQL text is the cached artifact.
	OutputSQLStatement OutputMode = "sql_statement"
)

// Function is one SQL-callable cascade registration.
type Function struct {
	// Name is the SQL-visible function name.
	Name string
	// Source resolves the backing cascade, same as cascade.Runner.Run's
	// src parameter (a cascade.Config, raw JSON/YAML bytes, or a
	// cascade.PathSource).
	Source cascade.ConfigSource
	// ArgOrder lists the cascade's input names in the order the SQL
	// caller supplies them positionally. Required for SQLBinder to bind
	// a cached SQL fragment back to fresh argument values.
	ArgOrder []string

	// CacheAs aliases this function's cache namespace to a shared name,
	// so two differently-named functions backed by related cascades
	// (e.g. a text-returning and a SQL-returning variant of the same
	// extraction) can share cached results. Defaults to Name.
	CacheAs string
	// CacheEnabled disables caching entirely when false. Default true via
	// NewFunction.
	CacheEnabled bool
	// CacheTTL bounds how long a cached entry is served before a fresh
	// cascade run is required. Zero means no expiry.
	CacheTTL time.Duration

	// CacheStrategy selects the cache-key derivation. Default StrategyContent.
	CacheStrategy CacheStrategy
	// StructureArgs names the args whose values are replaced by type tags
	// under StrategyStructure.
	StructureArgs []string
	// FingerprintArg names the single arg fingerprinted under
	// StrategyFingerprint.
	FingerprintArg string
	// FingerprintConfig tunes StrategyFingerprint.
	FingerprintConfig FingerprintConfig

	// OutputMode selects how the cascade's result becomes a SQL value.
	// Default OutputValue.
	OutputMode OutputMode
}

// cacheName returns CacheAs if set, else Name, implementing §6.7's
// cache_as aliasing.
func (fn Function) cacheName() string {
	if fn.CacheAs != "" {
		return fn.CacheAs
	}
	return fn.Name
}

// Registry holds the SQL-callable cascades known to an Executor.
type Registry struct {
	mu  sync.RWMutex
	fns map[string]Function
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{fns: make(map[string]Function)}
}

// Register adds fn, applying defaults (OutputMode value, CacheStrategy
// content) for zero-valued fields; CacheEnabled is kept as given
// (NewFunction sets it to true). Returns an error if fn.Name is empty or
// already registered.
func (r *Registry) Register(fn Function) error {
	if fn.Name == "" {
		return fmt.Errorf("sqlfn: function name is required")
	}
	if fn.OutputMode == "" {
		fn.OutputMode = OutputValue
	}
	if fn.CacheStrategy == "" {
		fn.CacheStrategy = StrategyContent
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.fns[fn.Name]; exists {
		return fmt.Errorf("sqlfn: function %q already registered", fn.Name)
	}
	if r.fns == nil {
		r.fns = make(map[string]Function)
	}
	r.fns[fn.Name] = fn
	return nil
}

// Lookup returns the named Function, if registered.
func (r *Registry) Lookup(name string) (Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[name]
	return fn, ok
}

// NewFunction builds a Function with CacheEnabled defaulted to true,
// since §6.7 caching is opt-out rather than opt-in.
func NewFunction(name string, source cascade.ConfigSource, argOrder ...string) Function {
	return Function{
		Name:         name,
		Source:       source,
		ArgOrder:     argOrder,
		CacheEnabled: true,
		OutputMode:   OutputValue,
		CacheStrategy: StrategyContent,
	}
}
