package stream_test

import (
	"context"
	"fmt"

	"github.com/cascadekit/cascade/runtime/agent/hooks"
	"github.com/cascadekit/cascade/runtime/agent/stream"
)

// collectSink is a simple in-memory sink used in examples to capture events.
type collectSink struct{ events []stream.Event }

func (s *collectSink) Send(ctx context.Context, e stream.Event) error {
	s.events = append(s.events, e)
	return nil
}
func (s *collectSink) Close(context.Context) error { return nil }

// Example demonstrating broadcast streaming by registering a stream
// subscriber directly on a hooks.Bus, the same wiring a cascade.Runner's
// EventPublisher sits beside.
func Example_broadcast() {
	ctx := context.Background()
	bus := hooks.NewBus()
	sink := &collectSink{}

	sub, _ := stream.NewSubscriber(sink)
	subscription, _ := bus.Register(sub)
	defer func() { _ = subscription.Close() }()

	// Publish a user-facing hook event; the stream subscriber forwards it.
	_ = bus.Publish(ctx, hooks.NewAssistantMessageEvent("run-1", "svc.agent", "", "hello", nil))

	// The sink received a typed stream event.
	fmt.Println(sink.events[0].Type())
	// Output: assistant_reply
}

// Example demonstrating per-request streaming by registering a temporary
// subscriber scoped to a single connection's bus.
func Example_perRequest() {
	ctx := context.Background()
	bus := hooks.NewBus()
	sink := &collectSink{}

	// Attach a temporary subscriber for this request/connection.
	sub, _ := stream.NewSubscriber(sink)
	subscription, _ := bus.Register(sub)
	defer func() { _ = subscription.Close() }()

	// Publish a planner note; the subscriber forwards it as a stream event.
	_ = bus.Publish(ctx, hooks.NewPlannerNoteEvent("run-1", "svc.agent", "", "thinking", nil))

	// The sink received a typed stream event.
	fmt.Println(sink.events[0].Type())
	// Output: planner_thought
}
