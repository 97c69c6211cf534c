// Package redisstream provides a thin wrapper around Redis Streams. Callers
// build a Redis client, pass it to New, and receive a typed interface that
// exposes only the operations needed by the event-bus sink and subscriber.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type (
	// Event is a single entry read back from a stream.
	Event struct {
		// ID is the Redis-assigned stream entry ID (e.g. "1234567890-0").
		ID string
		// Payload is the raw envelope bytes stored under the "payload" field.
		Payload []byte
	}

	// Options configures the Client.
	Options struct {
		// Redis is the Redis connection used to back streams. Required.
		Redis *redis.Client
		// StreamMaxLen approximately bounds the number of entries kept per
		// stream (via XADD MAXLEN ~). Zero means unbounded.
		StreamMaxLen int64
		// OperationTimeout bounds individual Add operations. Zero means no timeout.
		OperationTimeout time.Duration
		// ReadBlock bounds how long a sink's background reader blocks on
		// XREADGROUP waiting for new entries. Defaults to 5s.
		ReadBlock time.Duration
	}

	// Client exposes the subset of Redis Streams operations required by the
	// event bus sink and subscriber.
	Client interface {
		// Stream returns a handle to the named stream. Streams are created
		// lazily on first Add or NewSink call.
		Stream(name string) (Stream, error)
		// Close releases resources owned by the client. Callers typically own
		// the Redis connection and may provide a no-op implementation.
		Close(ctx context.Context) error
	}

	// Stream exposes the operations needed to publish events and create sinks
	// (consumer groups) on a single Redis stream.
	Stream interface {
		// Add publishes an event with the given name and payload, returning
		// the entry ID assigned by Redis.
		Add(ctx context.Context, event string, payload []byte) (string, error)
		// NewSink creates a consumer group on this stream for reading events.
		NewSink(ctx context.Context, name string) (Sink, error)
		// Destroy deletes the stream and all its entries from Redis.
		Destroy(ctx context.Context) error
	}

	// Sink represents a consumer group reading from a stream.
	Sink interface {
		// Subscribe returns a channel that emits events as they arrive.
		Subscribe() <-chan *Event
		// Ack acknowledges successful processing of an event.
		Ack(ctx context.Context, evt *Event) error
		// Close stops the sink and releases its background reader.
		Close(ctx context.Context)
	}

	client struct {
		redis     *redis.Client
		maxLen    int64
		timeout   time.Duration
		readBlock time.Duration
	}

	handle struct {
		client *client
		name   string
	}

	sink struct {
		handle   *handle
		group    string
		consumer string
		events   chan *Event
		cancel   context.CancelFunc
		done     chan struct{}
	}
)

// New constructs a Client backed by the provided Redis connection. Returns an
// error if opts.Redis is nil.
func New(opts Options) (Client, error) {
	if opts.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	readBlock := opts.ReadBlock
	if readBlock <= 0 {
		readBlock = 5 * time.Second
	}
	return &client{
		redis:     opts.Redis,
		maxLen:    opts.StreamMaxLen,
		timeout:   opts.OperationTimeout,
		readBlock: readBlock,
	}, nil
}

// Stream returns a handle to the named stream. Returns an error if name is empty.
func (c *client) Stream(name string) (Stream, error) {
	if name == "" {
		return nil, errors.New("stream name is required")
	}
	return &handle{client: c, name: name}, nil
}

// Close is a no-op; callers own and manage the Redis connection lifecycle.
func (c *client) Close(ctx context.Context) error { return nil }

// Add publishes an event to the stream, returning the Redis-assigned entry ID.
func (h *handle) Add(ctx context.Context, event string, payload []byte) (string, error) {
	if event == "" {
		return "", errors.New("event name is required")
	}
	if h.client.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.client.timeout)
		defer cancel()
	}
	args := &redis.XAddArgs{
		Stream: h.name,
		Values: map[string]any{"event": event, "payload": payload},
	}
	if h.client.maxLen > 0 {
		args.MaxLen = h.client.maxLen
		args.Approx = true
	}
	id, err := h.client.redis.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("redisstream add: %w", err)
	}
	return id, nil
}

// NewSink creates a consumer group on the stream named `name` and starts a
// background reader that delivers new entries on the returned Sink's channel.
func (h *handle) NewSink(ctx context.Context, name string) (Sink, error) {
	err := h.client.redis.XGroupCreateMkStream(ctx, h.name, name, "$").Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		if !isBusyGroupErr(err) {
			return nil, fmt.Errorf("redisstream create group: %w", err)
		}
	}
	readerCtx, cancel := context.WithCancel(context.Background())
	s := &sink{
		handle:   h,
		group:    name,
		consumer: name + "-consumer",
		events:   make(chan *Event, 64),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.readLoop(readerCtx)
	return s, nil
}

// Destroy deletes the stream and all its entries.
func (h *handle) Destroy(ctx context.Context) error {
	return h.client.redis.Del(ctx, h.name).Err()
}

func isBusyGroupErr(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

func (s *sink) readLoop(ctx context.Context) {
	defer close(s.events)
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		res, err := s.handle.client.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: s.consumer,
			Streams:  []string{s.handle.name, ">"},
			Count:    32,
			Block:    s.handle.client.readBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
				continue
			}
			return
		}
		for _, str := range res {
			for _, msg := range str.Messages {
				payload, _ := msg.Values["payload"].(string)
				evt := &Event{ID: msg.ID, Payload: []byte(payload)}
				select {
				case s.events <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// Subscribe returns the channel events are delivered on.
func (s *sink) Subscribe() <-chan *Event { return s.events }

// Ack acknowledges an event, removing it from the consumer group's pending list.
func (s *sink) Ack(ctx context.Context, evt *Event) error {
	return s.handle.client.redis.XAck(ctx, s.handle.name, s.group, evt.ID).Err()
}

// Close stops the background reader and waits for it to exit.
func (s *sink) Close(ctx context.Context) {
	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
	}
}
