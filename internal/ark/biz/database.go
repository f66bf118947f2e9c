package biz

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/kart-io/ark/pkg/errors"
)

// DatabaseService runs explorer operations against a live connection.
type DatabaseService struct {
	conns *ConnectionService
}

// NewDatabaseService creates a new DatabaseService.
func NewDatabaseService(conns *ConnectionService) *DatabaseService {
	return &DatabaseService{conns: conns}
}

// Target names a database, and optionally a collection, on a live connection.
type Target struct {
	ConnectionID string `json:"connectionId"`
	Database     string `json:"database"`
	Collection   string `json:"collection,omitempty"`
	Index        string `json:"index,omitempty"`
}

func (t *Target) requireCollection() error {
	if t.Collection == "" {
		return errors.ErrInvalidParam.WithMessage("collection is required")
	}
	return nil
}

// ListCollections lists the collections of a database.
func (s *DatabaseService) ListCollections(ctx context.Context, t *Target) ([]bson.M, error) {
	e, err := s.conns.Live(t.ConnectionID)
	if err != nil {
		return nil, err
	}
	colls, err := e.Client.ListCollections(ctx, t.Database)
	return colls, databaseError(err)
}

// CreateDatabase creates a database by creating its first collection.
func (s *DatabaseService) CreateDatabase(ctx context.Context, t *Target) error {
	return s.CreateCollection(ctx, t)
}

// DropDatabase drops a database.
func (s *DatabaseService) DropDatabase(ctx context.Context, t *Target) error {
	e, err := s.conns.Live(t.ConnectionID)
	if err != nil {
		return err
	}
	return databaseError(e.Client.DropDatabase(ctx, t.Database))
}

// CreateCollection creates a collection.
func (s *DatabaseService) CreateCollection(ctx context.Context, t *Target) error {
	if err := t.requireCollection(); err != nil {
		return err
	}
	e, err := s.conns.Live(t.ConnectionID)
	if err != nil {
		return err
	}
	return databaseError(e.Client.CreateCollection(ctx, t.Database, t.Collection))
}

// DropCollection drops a collection.
func (s *DatabaseService) DropCollection(ctx context.Context, t *Target) error {
	if err := t.requireCollection(); err != nil {
		return err
	}
	e, err := s.conns.Live(t.ConnectionID)
	if err != nil {
		return err
	}
	return databaseError(e.Client.DropCollection(ctx, t.Database, t.Collection))
}

// ListIndexes lists the indexes of a collection.
func (s *DatabaseService) ListIndexes(ctx context.Context, t *Target) ([]bson.M, error) {
	if err := t.requireCollection(); err != nil {
		return nil, err
	}
	e, err := s.conns.Live(t.ConnectionID)
	if err != nil {
		return nil, err
	}
	idx, err := e.Client.ListIndexes(ctx, t.Database, t.Collection)
	return idx, databaseError(err)
}

// GetCollectionStats returns collStats for a collection.
func (s *DatabaseService) GetCollectionStats(ctx context.Context, t *Target) (bson.M, error) {
	if err := t.requireCollection(); err != nil {
		return nil, err
	}
	e, err := s.conns.Live(t.ConnectionID)
	if err != nil {
		return nil, err
	}
	stats, err := e.Client.CollectionStats(ctx, t.Database, t.Collection)
	return stats, databaseError(err)
}

// DropIndex drops one index by name.
func (s *DatabaseService) DropIndex(ctx context.Context, t *Target) error {
	if err := t.requireCollection(); err != nil {
		return err
	}
	if t.Index == "" {
		return errors.ErrInvalidParam.WithMessage("index is required")
	}
	e, err := s.conns.Live(t.ConnectionID)
	if err != nil {
		return err
	}
	return databaseError(e.Client.DropIndex(ctx, t.Database, t.Collection, t.Index))
}

// DropAllIndexes drops every index except _id.
func (s *DatabaseService) DropAllIndexes(ctx context.Context, t *Target) error {
	if err := t.requireCollection(); err != nil {
		return err
	}
	e, err := s.conns.Live(t.ConnectionID)
	if err != nil {
		return err
	}
	return databaseError(e.Client.DropAllIndexes(ctx, t.Database, t.Collection))
}

func databaseError(err error) error {
	if err == nil {
		return nil
	}
	return errors.ErrDatabase.WithCause(err)
}
