package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	clientsredisstream "github.com/cascadekit/cascade/features/stream/redisstream/clients/redisstream"
	"github.com/cascadekit/cascade/runtime/agent/stream"
)

type fakeClient struct {
	stream     clientsredisstream.Stream
	closeCount int
	streamErr  error
	lastName   string
}

func (f *fakeClient) Stream(name string) (clientsredisstream.Stream, error) {
	f.lastName = name
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return f.stream, nil
}

func (f *fakeClient) Close(ctx context.Context) error {
	f.closeCount++
	return nil
}

type fakeStream struct {
	addFn func(ctx context.Context, event string, payload []byte) (string, error)
	sink  *fakeSink
}

func (f *fakeStream) Add(ctx context.Context, event string, payload []byte) (string, error) {
	return f.addFn(ctx, event, payload)
}
func (f *fakeStream) NewSink(ctx context.Context, name string) (clientsredisstream.Sink, error) {
	return f.sink, nil
}
func (f *fakeStream) Destroy(ctx context.Context) error { return nil }

type fakeSink struct {
	events chan *clientsredisstream.Event
	closed bool
}

func (f *fakeSink) Subscribe() <-chan *clientsredisstream.Event { return f.events }
func (f *fakeSink) Ack(context.Context, *clientsredisstream.Event) error { return nil }
func (f *fakeSink) Close(context.Context)                               { f.closed = true }

func TestSendPublishesEnvelope(t *testing.T) {
	str := &fakeStream{addFn: func(ctx context.Context, event string, payload []byte) (string, error) {
		require.Equal(t, string(stream.EventToolUpdate), event)
		var env Envelope
		require.NoError(t, json.Unmarshal(payload, &env))
		require.Equal(t, "run-123", env.RunID)
		require.Equal(t, "tool_update", env.Type)
		return "1-0", nil
	}}
	cli := &fakeClient{stream: str}

	sink, err := NewSink(Options{Client: cli})
	require.NoError(t, err)

	err = sink.Send(context.Background(), stream.NewBase(stream.EventToolUpdate, "run-123", "sess-1", map[string]string{"status": "ok"}))
	require.NoError(t, err)
	require.Equal(t, "session/sess-1", cli.lastName)
}

func TestCustomStreamID(t *testing.T) {
	str := &fakeStream{addFn: func(ctx context.Context, event string, payload []byte) (string, error) {
		return "1-0", nil
	}}
	cli := &fakeClient{stream: str}
	sink, err := NewSink(Options{
		Client: cli,
		StreamID: func(e stream.Event) (string, error) {
			return "custom/" + e.RunID(), nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, sink.Send(context.Background(), stream.NewBase(stream.EventPlannerThought, "run-1", "", nil)))
	require.Equal(t, "custom/run-1", cli.lastName)
}

func TestSendRequiresSessionID(t *testing.T) {
	sink, err := NewSink(Options{Client: &fakeClient{}})
	require.NoError(t, err)
	err = sink.Send(context.Background(), stream.NewBase(stream.EventAssistantReply, "run-1", "", nil))
	require.EqualError(t, err, "stream event missing session id")
}

func TestStreamCreationError(t *testing.T) {
	cli := &fakeClient{streamErr: errors.New("boom")}
	sink, err := NewSink(Options{Client: cli})
	require.NoError(t, err)
	err = sink.Send(context.Background(), stream.NewBase(stream.EventAssistantReply, "r", "s", nil))
	require.EqualError(t, err, "boom")
}

func TestAddError(t *testing.T) {
	str := &fakeStream{addFn: func(ctx context.Context, event string, payload []byte) (string, error) {
		return "", errors.New("add-failed")
	}}
	cli := &fakeClient{stream: str}
	sink, err := NewSink(Options{Client: cli})
	require.NoError(t, err)
	err = sink.Send(context.Background(), stream.NewBase(stream.EventAssistantReply, "r", "s", nil))
	require.EqualError(t, err, "add-failed")
}

func TestCloseDelegates(t *testing.T) {
	cli := &fakeClient{}
	sink, err := NewSink(Options{Client: cli})
	require.NoError(t, err)
	require.NoError(t, sink.Close(context.Background()))
	require.Equal(t, 1, cli.closeCount)
}
