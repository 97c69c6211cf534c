// Package mongo wires the logsink.Store interface to the MongoDB client.
package mongo

import (
	"context"
	"errors"

	clientsmongo "github.com/cascadekit/cascade/features/logsink/mongo/clients/mongo"
	"github.com/cascadekit/cascade/runtime/agent/logsink"
)

// Store implements logsink.Store by delegating to the Mongo client.
type Store struct {
	client clientsmongo.Client
}

// NewStore builds a Mongo-backed run log store using the provided client.
func NewStore(client clientsmongo.Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	return &Store{client: client}, nil
}

// Append implements logsink.Store.
func (s *Store) Append(ctx context.Context, e *logsink.Event) error {
	return s.client.Append(ctx, e)
}

// List implements logsink.Store.
func (s *Store) List(ctx context.Context, runID string, cursor string, limit int) (logsink.Page, error) {
	return s.client.List(ctx, runID, cursor, limit)
}

// Reconcile implements logsink.Store.
func (s *Store) Reconcile(ctx context.Context, sessionID, requestID string, patch logsink.Patch) error {
	return s.client.Reconcile(ctx, sessionID, requestID, patch)
}
