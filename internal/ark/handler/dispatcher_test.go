package handler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/ark/internal/ark/biz"
	"github.com/kart-io/ark/internal/ark/driver/drivertest"
	"github.com/kart-io/ark/internal/ark/memstore"
	"github.com/kart-io/ark/internal/ark/registry"
	"github.com/kart-io/ark/internal/ark/store"
	"github.com/kart-io/ark/internal/ark/vault"
	"github.com/kart-io/ark/internal/model"
	"github.com/kart-io/ark/pkg/component/sqlite"
	"github.com/kart-io/ark/pkg/errors"
)

type noTunnels struct{}

func (noTunnels) Open(context.Context, *model.SSHConfig, []string) (memstore.Tunnel, error) {
	return nil, nil
}

// newTestServices wires the services over an in-memory store and a fake
// driver.
func newTestServices(t *testing.T) *Services {
	t.Helper()

	opts := sqlite.NewOptions()
	opts.Path = sqlite.MemoryPath
	client, err := sqlite.New(opts)
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(client.DB()))
	s := store.NewStore(client.DB())
	t.Cleanup(func() { _ = s.Close() })

	dir := t.TempDir()
	reg := registry.New(s, vault.New(filepath.Join(dir, "ark.key"), nil))
	dialer := &drivertest.Dialer{}
	conns := biz.NewConnectionService(reg, noTunnels{}, dialer, memstore.New())
	settings := biz.NewSettingsService(s, biz.Defaults{PageSize: 50, ShellTimeout: time.Minute})

	return &Services{
		Connections: conns,
		Databases:   biz.NewDatabaseService(conns),
		Queries:     biz.NewQueryService(conns),
		Shells:      biz.NewShellService(conns, reg, dialer, nil, settings),
		Scripts:     biz.NewScriptService(s, filepath.Join(dir, "scripts"), nil),
		Settings:    settings,
	}
}

func TestCatalog(t *testing.T) {
	d := New(newTestServices(t))

	var got []string
	for _, c := range d.Commands() {
		got = append(got, c.String())
	}
	assert.Equal(t, []string{
		"connection.connect",
		"connection.convertConnectionToUri",
		"connection.convertUriToConnection",
		"connection.createEncryptionKey",
		"connection.decryptPassword",
		"connection.delete",
		"connection.disconnect",
		"connection.info",
		"connection.list",
		"connection.listDatabases",
		"connection.load",
		"connection.save",
		"connection.test",
		"database.createCollection",
		"database.createDatabase",
		"database.dropAllIndexes",
		"database.dropCollection",
		"database.dropDatabase",
		"database.dropIndex",
		"database.getCollectionStats",
		"database.listCollections",
		"database.listIndexes",
		"query.deleteMany",
		"query.deleteOne",
		"query.updateMany",
		"query.updateOne",
		"script.delete",
		"script.list",
		"script.open",
		"script.save",
		"settings.get",
		"settings.save",
		"shell.create",
		"shell.destroy",
		"shell.eval",
		"shell.export",
	}, got)
}

func TestDispatchUnknownCommand(t *testing.T) {
	d := New(newTestServices(t))
	_, err := d.Dispatch(context.Background(), Command{Library: "connection", Action: "explode"}, nil)
	assert.ErrorIs(t, err, errors.ErrUnknownCommand)
}

func TestRegisterRejectsInvalidHandlers(t *testing.T) {
	d := NewDispatcher()
	noop := func(context.Context, []byte) (interface{}, error) { return nil, nil }

	assert.ErrorIs(t, d.Register(Command{Library: "x", Action: "y"}, nil), errors.ErrInvalidAsyncHandler)
	assert.ErrorIs(t, d.Register(Command{Library: "x"}, noop), errors.ErrInvalidAsyncHandler)
	require.NoError(t, d.Register(Command{Library: "x", Action: "y"}, noop))
	assert.ErrorIs(t, d.Register(Command{Library: "x", Action: "y"}, noop), errors.ErrInvalidAsyncHandler)
	assert.Panics(t, func() { d.MustRegister(Command{Library: "x", Action: "y"}, noop) })
}

func TestDispatchInvalidPayload(t *testing.T) {
	d := New(newTestServices(t))
	_, err := d.Dispatch(context.Background(), Command{Library: LibraryConnection, Action: "load"}, []byte("{"))
	assert.ErrorIs(t, err, errors.ErrInvalidParam)

	_, err = d.Dispatch(context.Background(), Command{Library: LibraryConnection, Action: "load"}, []byte(`{}`))
	assert.ErrorIs(t, err, errors.ErrInvalidParam)
}

func TestConnectionCommands(t *testing.T) {
	ctx := context.Background()
	d := New(newTestServices(t))
	conn := func(action, payload string) (interface{}, error) {
		return d.Dispatch(ctx, Command{Library: LibraryConnection, Action: action}, []byte(payload))
	}

	v, err := conn("save", `{"kind":"uri","uri":"mongodb://u:p@host1:27017/app","name":"local"}`)
	require.NoError(t, err)
	saved := v.(*model.StoredConnection)
	assert.Equal(t, "local", saved.Name)

	id := `{"id":"` + saved.ID + `"}`

	v, err = conn("list", "")
	require.NoError(t, err)
	assert.Len(t, v, 1)

	v, err = conn("decryptPassword", id)
	require.NoError(t, err)
	assert.Equal(t, &PasswordResponse{Password: "p"}, v)

	_, err = conn("connect", id)
	require.NoError(t, err)
	_, err = conn("listDatabases", id)
	require.NoError(t, err)

	v, err = conn("disconnect", id)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = conn("disconnect", id)
	assert.ErrorIs(t, err, errors.ErrNoCachedConnection)

	v, err = conn("test", `{"kind":"uri","uri":"not a uri"}`)
	require.NoError(t, err, "test reports failures in its result")
	assert.False(t, v.(*model.TestResult).Status)

	v, err = conn("convertConnectionToUri", `{"connection":{"hosts":["h1:27017"],"database":"app"}}`)
	require.NoError(t, err)
	assert.Equal(t, &URIResponse{URI: "mongodb://h1:27017/app?directConnection=true"}, v)

	v, err = conn("convertUriToConnection", `{"uri":"mongodb://h1:27017,h2:27017/app","connection":{"id":"keep","name":"kept"}}`)
	require.NoError(t, err)
	converted := v.(*model.StoredConnection)
	assert.Equal(t, "keep", converted.ID)
	assert.Equal(t, []string{"h1:27017", "h2:27017"}, converted.Hosts)

	v, err = conn("createEncryptionKey", "")
	require.NoError(t, err)
	assert.Len(t, v.(*KeyResponse).Key, 64)

	_, err = conn("delete", id)
	require.NoError(t, err)
	_, err = conn("load", id)
	assert.ErrorIs(t, err, errors.ErrNoStoredConnection)
}

func TestScriptAndSettingsCommands(t *testing.T) {
	ctx := context.Background()
	d := New(newTestServices(t))

	v, err := d.Dispatch(ctx, Command{Library: LibraryScript, Action: "save"}, []byte(`{"name":"q","code":"db.a.find()"}`))
	require.NoError(t, err)
	sc := v.(*model.Script)

	v, err = d.Dispatch(ctx, Command{Library: LibraryScript, Action: "open"}, []byte(`{"id":"`+sc.ID+`"}`))
	require.NoError(t, err)
	assert.Equal(t, "db.a.find()", v.(*model.ScriptContent).Code)

	_, err = d.Dispatch(ctx, Command{Library: LibrarySettings, Action: "save"}, []byte(`{"pageSize":10}`))
	require.NoError(t, err)
	v, err = d.Dispatch(ctx, Command{Library: LibrarySettings, Action: "get"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, v.(*model.Settings).PageSize)
}

func TestShellCommandsRequireConnection(t *testing.T) {
	ctx := context.Background()
	d := New(newTestServices(t))

	_, err := d.Dispatch(ctx, Command{Library: LibraryShell, Action: "create"}, []byte(`{"connectionId":"x","database":"app"}`))
	assert.ErrorIs(t, err, errors.ErrNoCachedConnection)

	_, err = d.Dispatch(ctx, Command{Library: LibraryShell, Action: "eval"}, []byte(`{"sessionId":"nope","code":"db.a.find()"}`))
	assert.ErrorIs(t, err, errors.ErrBrokenShell)

	_, err = d.Dispatch(ctx, Command{Library: LibraryShell, Action: "destroy"}, []byte(`{"sessionId":"nope"}`))
	assert.ErrorIs(t, err, errors.ErrBrokenShell)
}
