package contextcard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cascadekit/cascade/runtime/agent/contextcard/inmem"
)

// fakeEmbedder returns a deterministic one-dimensional vector per input so
// tests can assert on batch size and ordering.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	f.mu.Unlock()

	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func TestPoolProcessesEligibleRequestsIntoCards(t *testing.T) {
	store := inmem.New()
	embedder := &fakeEmbedder{}
	pool := New(store, nil, embedder, nil, Config{Workers: 1, BatchSize: 4, BatchLinger: 20 * time.Millisecond})
	defer pool.Close()

	ctx := context.Background()
	require.NoError(t, pool.Submit(ctx, Request{SessionID: "s1", ContentHash: "h1", Role: "message", Content: "hello world"}))

	require.Eventually(t, func() bool {
		_, ok := store.Get("s1", "h1")
		return ok
	}, time.Second, 5*time.Millisecond)

	card, ok := store.Get("s1", "h1")
	require.True(t, ok)
	require.Equal(t, "hello world", card.Summary)
	require.NotEmpty(t, card.Embedding)
}

func TestPoolDropsIneligibleRequests(t *testing.T) {
	store := inmem.New()
	pool := New(store, nil, nil, nil, Config{Workers: 1, BatchSize: 2, BatchLinger: 10 * time.Millisecond})
	defer pool.Close()

	ctx := context.Background()
	require.NoError(t, pool.Submit(ctx, Request{SessionID: "s1", ContentHash: "h1", Role: "system", Content: "ignored"}))
	require.NoError(t, pool.Submit(ctx, Request{SessionID: "s1", ContentHash: "h2", Role: "cascade", Content: "ignored"}))

	time.Sleep(50 * time.Millisecond)
	_, ok1 := store.Get("s1", "h1")
	_, ok2 := store.Get("s1", "h2")
	require.False(t, ok1)
	require.False(t, ok2)
}

func TestPoolBatchesEmbeddingCalls(t *testing.T) {
	store := inmem.New()
	embedder := &fakeEmbedder{}
	pool := New(store, nil, embedder, nil, Config{Workers: 1, BatchSize: 3, BatchLinger: time.Second})
	defer pool.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Submit(ctx, Request{
			SessionID:   "s1",
			ContentHash: string(rune('a' + i)),
			Role:        "user",
			Content:     "msg",
		}))
	}

	require.Eventually(t, func() bool {
		embedder.mu.Lock()
		defer embedder.mu.Unlock()
		return len(embedder.calls) == 1 && len(embedder.calls[0]) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestPoolWithoutEmbedderStillStoresCard(t *testing.T) {
	store := inmem.New()
	pool := New(store, nil, nil, nil, Config{Workers: 1, BatchSize: 1, BatchLinger: 10 * time.Millisecond})
	defer pool.Close()

	ctx := context.Background()
	require.NoError(t, pool.Submit(ctx, Request{SessionID: "s1", ContentHash: "h1", Role: "agent", Content: "no embedder configured"}))

	require.Eventually(t, func() bool {
		_, ok := store.Get("s1", "h1")
		return ok
	}, time.Second, 5*time.Millisecond)
}
