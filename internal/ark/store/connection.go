package store

import (
	"context"

	"github.com/kart-io/ark/internal/model"
)

type connections struct {
	c collection[model.StoredConnection]
}

// Get retrieves a stored connection by id.
func (s *connections) Get(ctx context.Context, id string) (*model.StoredConnection, error) {
	return s.c.get(ctx, id)
}

// List lists stored connections in creation order.
func (s *connections) List(ctx context.Context) ([]*model.StoredConnection, error) {
	return s.c.list(ctx)
}

// Put upserts a stored connection. The computed URI is not persisted.
func (s *connections) Put(ctx context.Context, conn *model.StoredConnection) error {
	cp := *conn
	cp.URI = ""
	return s.c.put(ctx, conn.ID, &cp)
}

// Delete removes a stored connection.
func (s *connections) Delete(ctx context.Context, id string) error {
	return s.c.delete(ctx, id)
}

type icons struct {
	c collection[model.Icon]
}

// Get retrieves a connection icon.
func (s *icons) Get(ctx context.Context, id string) (*model.Icon, error) {
	return s.c.get(ctx, id)
}

// Put stores a connection icon.
func (s *icons) Put(ctx context.Context, icon *model.Icon) error {
	return s.c.put(ctx, icon.ID, icon)
}

// Delete removes a connection icon.
func (s *icons) Delete(ctx context.Context, id string) error {
	return s.c.delete(ctx, id)
}
