package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/cascadekit/cascade/features/session/mongo/clients/mongo"
	"github.com/cascadekit/cascade/runtime/agent/echo"
)

// Store implements echo.Store by delegating to the Mongo client.
type Store struct {
	client mongo.Client
}

// NewStore builds a Store using the provided client.
func NewStore(client mongo.Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	return &Store{client: client}, nil
}

// CreateSession implements echo.Store.
func (s *Store) CreateSession(ctx context.Context, sessionID string, createdAt time.Time) (echo.Session, error) {
	return s.client.CreateSession(ctx, sessionID, createdAt)
}

// LoadSession implements echo.Store.
func (s *Store) LoadSession(ctx context.Context, sessionID string) (echo.Session, error) {
	return s.client.LoadSession(ctx, sessionID)
}

// EndSession implements echo.Store.
func (s *Store) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (echo.Session, error) {
	return s.client.EndSession(ctx, sessionID, endedAt)
}

// UpsertRun implements echo.Store.
func (s *Store) UpsertRun(ctx context.Context, run echo.RunMeta) error {
	return s.client.UpsertRun(ctx, run)
}

// LoadRun implements echo.Store.
func (s *Store) LoadRun(ctx context.Context, runID string) (echo.RunMeta, error) {
	return s.client.LoadRun(ctx, runID)
}

// ListRunsBySession implements echo.Store.
func (s *Store) ListRunsBySession(ctx context.Context, sessionID string, statuses []echo.RunStatus) ([]echo.RunMeta, error) {
	return s.client.ListRunsBySession(ctx, sessionID, statuses)
}
