package store

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/ark/internal/model"
	"github.com/kart-io/ark/pkg/component/sqlite"
	"github.com/kart-io/ark/pkg/errors"
)

func newTestStore(t *testing.T) Factory {
	t.Helper()

	opts := sqlite.NewOptions()
	opts.Path = sqlite.MemoryPath
	client, err := sqlite.New(opts)
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(client.DB()))

	s := NewStore(client.DB())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConnectionsCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t).Connections()

	_, err := s.Get(ctx, "missing")
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))

	conn := &model.StoredConnection{
		ID:       "01A",
		Name:     "local",
		Protocol: model.ProtocolMongoDB,
		Hosts:    []string{"localhost:27017"},
		Type:     model.TypeDirectConnection,
		URI:      "mongodb://localhost:27017/",
	}
	require.NoError(t, s.Put(ctx, conn))
	assert.Equal(t, "mongodb://localhost:27017/", conn.URI, "caller's record is not mutated")

	got, err := s.Get(ctx, "01A")
	require.NoError(t, err)
	assert.Equal(t, "local", got.Name)
	assert.Empty(t, got.URI)

	conn.Name = "renamed"
	require.NoError(t, s.Put(ctx, conn))
	require.NoError(t, s.Put(ctx, &model.StoredConnection{ID: "01B", Name: "second"}))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "renamed", all[0].Name)
	assert.Equal(t, "second", all[1].Name)

	require.NoError(t, s.Delete(ctx, "01A"))
	require.NoError(t, s.Delete(ctx, "01A"))
	all, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	f := newTestStore(t)

	require.NoError(t, f.Icons().Put(ctx, &model.Icon{ID: "same", Data: []byte{0x89, 'P'}, MIME: "image/png"}))
	require.NoError(t, f.Scripts().Put(ctx, &model.Script{ID: "same", Name: "query.js", Path: "/tmp/query.js"}))

	icon, err := f.Icons().Get(ctx, "same")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P'}, icon.Data)

	scripts, err := f.Scripts().List(ctx)
	require.NoError(t, err)
	require.Len(t, scripts, 1)
	assert.Equal(t, "query.js", scripts[0].Name)

	_, err = f.Connections().Get(ctx, "same")
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))
}

func TestSettingsDefaults(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t).Settings()

	got, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Settings{}, *got)

	require.NoError(t, s.Put(ctx, &model.Settings{ShellTimeout: 30, PageSize: 20, CSVDelimiter: ";"}))
	got, err = s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, got.ShellTimeout)
	assert.Equal(t, ";", got.CSVDelimiter)
}
