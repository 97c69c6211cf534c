package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/cascadekit/cascade/runtime/agent/logsink"
)

func TestStoreAppendAndList(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := s.Append(ctx, &logsink.Event{
			RunID:     "run-1",
			SessionID: "sess-1",
			TurnID:    "turn-1",
			Type:      "event",
			Payload:   []byte(`{}`),
			Timestamp: time.Unix(int64(i+1), 0).UTC(),
		})
		require.NoError(t, err)
	}

	page1, err := s.List(ctx, "run-1", "", 2)
	require.NoError(t, err)
	require.Len(t, page1.Events, 2)
	require.Equal(t, "1", page1.Events[0].ID)
	require.Equal(t, "2", page1.Events[1].ID)
	require.Equal(t, "2", page1.NextCursor)

	page2, err := s.List(ctx, "run-1", page1.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page2.Events, 1)
	require.Equal(t, "3", page2.Events[0].ID)
	require.Empty(t, page2.NextCursor)
}

func TestStoreReconcilePatchesMatchingPayload(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, &logsink.Event{
		RunID:     "run-1",
		SessionID: "sess-1",
		Payload:   []byte(`{"request_id":"req-1","cost":null}`),
		Timestamp: time.Unix(1, 0).UTC(),
	}))

	cost := 0.0042
	tokensIn := 120
	err := s.Reconcile(ctx, "sess-1", "req-1", logsink.Patch{Cost: &cost, TokensIn: &tokensIn})
	require.NoError(t, err)

	page, err := s.List(ctx, "run-1", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	require.Contains(t, string(page.Events[0].Payload), `"cost":0.0042`)
	require.Contains(t, string(page.Events[0].Payload), `"tokens_in":120`)
}

func TestStoreReconcileUnknownRequestIDIsNotError(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	err := s.Reconcile(ctx, "sess-1", "missing", logsink.Patch{})
	require.NoError(t, err)
}

func TestStoreListValidation(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	_, err := s.List(ctx, "", "", 10)
	require.Error(t, err)

	_, err = s.List(ctx, "run-1", "", 0)
	require.Error(t, err)

	_, err = s.List(ctx, "run-1", "not-an-int", 10)
	require.Error(t, err)
}
