package sqlfn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCacheKeyContentStrategySameArgsSameKey(t *testing.T) {
	fn := NewFunction("classify", nil)
	a := map[string]any{"text": "Apple iPhone", "labels": "electronics,clothing"}
	b := map[string]any{"labels": "electronics,clothing", "text": "Apple iPhone"}
	require.Equal(t, CacheKey(fn, a), CacheKey(fn, b))
}

func TestCacheKeyContentStrategyDifferentArgsDifferentKey(t *testing.T) {
	fn := NewFunction("classify", nil)
	require.NotEqual(t,
		CacheKey(fn, map[string]any{"text": "Apple iPhone"}),
		CacheKey(fn, map[string]any{"text": "Samsung Galaxy"}),
	)
}

func TestCacheKeyCacheAsAliasesNamespaceNotKey(t *testing.T) {
	a := NewFunction("ask_data", nil)
	b := NewFunction("ask_data_sql", nil)
	b.CacheAs = "ask_data"
	require.Equal(t, "ask_data", a.cacheName())
	require.Equal(t, "ask_data", b.cacheName())
	// Same cacheName, same args -> identical key, enabling cache sharing.
	args := map[string]any{"q": "total revenue"}
	require.Equal(t, CacheKey(a, args), CacheKey(b, args))
}

func TestCacheKeyStructureStrategyIgnoresValuesWithinStructureArgs(t *testing.T) {
	fn := NewFunction("extract_json", nil)
	fn.CacheStrategy = StrategyStructure
	fn.StructureArgs = []string{"payload"}

	a := map[string]any{"payload": map[string]any{"name": "Alice", "age": 30.0}}
	b := map[string]any{"payload": map[string]any{"name": "Bob", "age": 99.0}}
	require.Equal(t, CacheKey(fn, a), CacheKey(fn, b), "same shape should share a key")

	c := map[string]any{"payload": map[string]any{"name": "Alice"}}
	require.NotEqual(t, CacheKey(fn, a), CacheKey(fn, c), "different shape must not share a key")
}

func TestCacheKeyFingerprintStrategyIgnoresContentKeepsFormat(t *testing.T) {
	fn := NewFunction("parse_order_id", nil)
	fn.CacheStrategy = StrategyFingerprint
	fn.FingerprintArg = "order_id"

	a := map[string]any{"order_id": "ORD-1234"}
	b := map[string]any{"order_id": "ABC-9999"}
	require.Equal(t, CacheKey(fn, a), CacheKey(fn, b), "same format should share a key")

	c := map[string]any{"order_id": "1234-ORD"}
	require.NotEqual(t, CacheKey(fn, a), CacheKey(fn, c), "different format must not share a key")
}

func TestCacheKeyFingerprintIncludeLengthsDistinguishesWidth(t *testing.T) {
	a := map[string]any{"order_id": "AB-12"}
	b := map[string]any{"order_id": "ABCDE-123456"}

	loose := NewFunction("f", nil)
	loose.CacheStrategy, loose.FingerprintArg = StrategyFingerprint, "order_id"
	require.Equal(t, CacheKey(loose, a), CacheKey(loose, b))

	strict := loose
	strict.FingerprintConfig = FingerprintConfig{IncludeLengths: true}
	require.NotEqual(t, CacheKey(strict, a), CacheKey(strict, b))
}

func TestCacheKeyFallsBackToContentWhenStrategyMisconfigured(t *testing.T) {
	fn := NewFunction("f", nil)
	fn.CacheStrategy = StrategyStructure // no StructureArgs set
	require.NotPanics(t, func() {
		CacheKey(fn, map[string]any{"a": 1})
	})
}
