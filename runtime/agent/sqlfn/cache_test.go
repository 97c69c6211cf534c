package sqlfn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryCacheRoundTrips(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "ns", "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "ns", "k", "v", 0))
	v, ok, err := c.Get(ctx, "ns", "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", v)
}

func TestMemoryCacheNamespacesDoNotCollide(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "ns1", "k", "v1", 0))
	require.NoError(t, c.Set(ctx, "ns2", "k", "v2", 0))

	v1, _, _ := c.Get(ctx, "ns1", "k")
	v2, _, _ := c.Get(ctx, "ns2", "k")
	require.Equal(t, "v1", v1)
	require.Equal(t, "v2", v2)
}

func TestMemoryCacheExpiresEntries(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "ns", "k", "v", time.Millisecond))

	require.Eventually(t, func() bool {
		_, ok, _ := c.Get(ctx, "ns", "k")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

// trackingCache wraps a Cache and counts calls, to verify tiered lookup order.
type trackingCache struct {
	Cache
	gets int
}

func (t *trackingCache) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	t.gets++
	return t.Cache.Get(ctx, namespace, key)
}

func TestTieredCacheChecksL1BeforeL2(t *testing.T) {
	l1 := &trackingCache{Cache: NewMemoryCache()}
	l2 := &trackingCache{Cache: NewMemoryCache()}
	tiered := NewTieredCache(l1, l2)
	ctx := context.Background()

	require.NoError(t, tiered.Set(ctx, "ns", "k", "v", 0))
	v, ok, err := tiered.Get(ctx, "ns", "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", v)
	require.Equal(t, 1, l1.gets)
	require.Equal(t, 0, l2.gets, "an L1 hit must not consult L2")
}

func TestTieredCacheBackfillsL1OnL2Hit(t *testing.T) {
	l1 := NewMemoryCache()
	l2 := NewMemoryCache()
	ctx := context.Background()

	// Populate only L2, simulating a value cached by another process.
	require.NoError(t, l2.Set(ctx, "ns", "k", "v", 0))

	tiered := NewTieredCache(l1, l2)
	v, ok, err := tiered.Get(ctx, "ns", "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", v)

	l1Value, l1ok, _ := l1.Get(ctx, "ns", "k")
	require.True(t, l1ok, "L2 hit should backfill L1")
	require.Equal(t, "v", l1Value)
}

func TestNewTieredCacheWithNilL2BehavesAsL1Alone(t *testing.T) {
	l1 := NewMemoryCache()
	tiered := NewTieredCache(l1, nil)
	require.NoError(t, tiered.Set(context.Background(), "ns", "k", "v", 0))
	v, ok, _ := tiered.Get(context.Background(), "ns", "k")
	require.True(t, ok)
	require.Equal(t, "v", v)
}
