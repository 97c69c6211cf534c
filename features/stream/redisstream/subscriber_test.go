package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	clientsredisstream "github.com/cascadekit/cascade/features/stream/redisstream/clients/redisstream"
	"github.com/cascadekit/cascade/runtime/agent/stream"
)

func TestSubscribeEmitsEvents(t *testing.T) {
	ctx := context.Background()
	eventCh := make(chan *clientsredisstream.Event, 1)
	sinkMock := &fakeSink{events: eventCh}
	streamMock := &fakeStream{sink: sinkMock}
	client := &fakeClient{stream: streamMock}

	sub, err := NewSubscriber(SubscriberOptions{Client: client, Buffer: 2})
	require.NoError(t, err)

	events, errs, cancel, err := sub.Subscribe(ctx, "run/run-123")
	require.NoError(t, err)
	defer cancel()
	require.Equal(t, "run/run-123", client.lastName)

	payload, _ := json.Marshal(map[string]any{
		"type":      "assistant_reply",
		"run_id":    "run-123",
		"timestamp": time.Now(),
		"payload":   map[string]string{"chunk": "hi"},
	})
	eventCh <- &clientsredisstream.Event{ID: "1-0", Payload: payload}
	close(eventCh)

	e := <-events
	require.Equal(t, stream.EventAssistantReply, e.Type())
	body := make(map[string]string)
	require.NoError(t, json.Unmarshal(e.Payload().(json.RawMessage), &body))
	require.Equal(t, "hi", body["chunk"])
	require.Empty(t, errs)
}

func TestSubscribeDecoderError(t *testing.T) {
	eventCh := make(chan *clientsredisstream.Event, 1)
	sinkMock := &fakeSink{events: eventCh}
	streamMock := &fakeStream{sink: sinkMock}
	client := &fakeClient{stream: streamMock}

	sub, err := NewSubscriber(SubscriberOptions{
		Client: client,
		Decoder: func([]byte) (stream.Event, error) {
			return nil, errors.New("decode error")
		},
	})
	require.NoError(t, err)

	events, errs, cancel, err := sub.Subscribe(context.Background(), "run/run-1")
	require.NoError(t, err)
	defer cancel()
	eventCh <- &clientsredisstream.Event{Payload: []byte("{}")}
	close(eventCh)

	require.Empty(t, events)
	require.EqualError(t, <-errs, "redisstream decode payload: decode error")
}
