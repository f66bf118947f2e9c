package store

import (
	"context"
	stderrors "errors"

	"github.com/kart-io/ark/internal/model"
	"github.com/kart-io/ark/pkg/errors"
)

type scripts struct {
	c collection[model.Script]
}

// Get retrieves a saved script.
func (s *scripts) Get(ctx context.Context, id string) (*model.Script, error) {
	return s.c.get(ctx, id)
}

// List lists saved scripts.
func (s *scripts) List(ctx context.Context) ([]*model.Script, error) {
	return s.c.list(ctx)
}

// Put upserts a saved script.
func (s *scripts) Put(ctx context.Context, script *model.Script) error {
	return s.c.put(ctx, script.ID, script)
}

// Delete removes a saved script.
func (s *scripts) Delete(ctx context.Context, id string) error {
	return s.c.delete(ctx, id)
}

type settings struct {
	c collection[model.Settings]
}

// Get returns the general settings, or zero settings when none were saved.
func (s *settings) Get(ctx context.Context) (*model.Settings, error) {
	v, err := s.c.get(ctx, model.SettingsGeneralID)
	if stderrors.Is(err, errors.ErrNotFound) {
		return &model.Settings{}, nil
	}
	return v, err
}

// Put replaces the general settings.
func (s *settings) Put(ctx context.Context, v *model.Settings) error {
	return s.c.put(ctx, model.SettingsGeneralID, v)
}
