// Package health defines a minimal liveness-check contract shared by
// storage clients (Mongo, Redis) so a service can aggregate readiness
// across its dependencies without each client depending on a particular
// HTTP framework.
package health

import "context"

// Pinger is implemented by a client that can report whether its backing
// service is reachable.
type Pinger interface {
	// Name identifies the dependency in aggregated health output (e.g. "session-mongo").
	Name() string
	// Ping returns an error if the dependency is unreachable or unhealthy.
	Ping(ctx context.Context) error
}

// Check runs every Pinger and returns each one's Ping result keyed by its
// Name. A nil value means that dependency reported healthy; the map itself
// is never nil.
func Check(ctx context.Context, pingers ...Pinger) map[string]error {
	results := make(map[string]error, len(pingers))
	for _, p := range pingers {
		results[p.Name()] = p.Ping(ctx)
	}
	return results
}
