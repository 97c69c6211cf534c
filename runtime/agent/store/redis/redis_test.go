package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// fakeClient is an in-memory stand-in for *redis.Client, narrowed to the
// client interface this package actually calls.
type fakeClient struct {
	data map[string]string
}

func newFakeClient() *fakeClient { return &fakeClient{data: make(map[string]string)} }

func (f *fakeClient) Get(ctx context.Context, key string) *goredis.StringCmd {
	cmd := goredis.NewStringCmd(ctx)
	v, ok := f.data[key]
	if !ok {
		cmd.SetErr(goredis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *fakeClient) Set(ctx context.Context, key string, value any, _ time.Duration) *goredis.StatusCmd {
	cmd := goredis.NewStatusCmd(ctx)
	s, _ := value.(string)
	f.data[key] = s
	cmd.SetVal("OK")
	return cmd
}

func TestCacheSetThenGetRoundTrips(t *testing.T) {
	c := &Cache{client: newFakeClient(), prefix: "sqlfn:"}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "classify", "abc123", "brand: Apple", 0))
	v, ok, err := c.Get(ctx, "classify", "abc123")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "brand: Apple", v)
}

func TestCacheGetMissReturnsNotFound(t *testing.T) {
	c := &Cache{client: newFakeClient(), prefix: "sqlfn:"}
	_, ok, err := c.Get(context.Background(), "classify", "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCacheNamespacesKeysWithPrefix(t *testing.T) {
	fake := newFakeClient()
	c := &Cache{client: fake, prefix: "myapp:"}
	require.NoError(t, c.Set(context.Background(), "ns", "k", "v", 0))
	_, ok := fake.data["myapp:ns:k"]
	require.True(t, ok)
}

func TestNewRejectsNilRedisClient(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}
