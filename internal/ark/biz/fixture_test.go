package biz

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kart-io/ark/internal/ark/driver/drivertest"
	"github.com/kart-io/ark/internal/ark/memstore"
	"github.com/kart-io/ark/internal/ark/registry"
	"github.com/kart-io/ark/internal/ark/shell"
	"github.com/kart-io/ark/internal/ark/store"
	"github.com/kart-io/ark/internal/ark/vault"
	"github.com/kart-io/ark/internal/model"
	"github.com/kart-io/ark/pkg/component/sqlite"
)

type fakeTunnels struct {
	mu     sync.Mutex
	tunnel *drivertest.Tunnel
	err    error
	opened int
}

func (f *fakeTunnels) Open(_ context.Context, cfg *model.SSHConfig, _ []string) (memstore.Tunnel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cfg == nil || !cfg.UseSSH {
		return nil, nil
	}
	f.opened++
	if f.err != nil {
		return nil, f.err
	}
	if f.tunnel == nil {
		return nil, nil
	}
	return f.tunnel, nil
}

type runnerFunc func(ctx context.Context, code string, rt *shell.Runtime) (interface{}, error)

func (f runnerFunc) Run(ctx context.Context, code string, rt *shell.Runtime) (interface{}, error) {
	return f(ctx, code, rt)
}

type fixture struct {
	store    store.Factory
	registry *registry.Registry
	cache    *memstore.Store
	tunnels  *fakeTunnels
	dialer   *drivertest.Dialer
	conns    *ConnectionService
	settings *SettingsService

	mu      sync.Mutex
	clients []*drivertest.Client
	// template configures every client the dialer hands out.
	template func(c *drivertest.Client)
	dialErr  error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	opts := sqlite.NewOptions()
	opts.Path = sqlite.MemoryPath
	client, err := sqlite.New(opts)
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(client.DB()))
	s := store.NewStore(client.DB())
	t.Cleanup(func() { _ = s.Close() })

	f := &fixture{
		store:    s,
		registry: registry.New(s, vault.New(filepath.Join(t.TempDir(), "ark.key"), nil)),
		cache:    memstore.New(),
		tunnels:  &fakeTunnels{},
		settings: NewSettingsService(s, Defaults{PageSize: 50, ShellTimeout: 2 * time.Minute, CSVDelimiter: ','}),
	}
	f.dialer = &drivertest.Dialer{New: func(string) (*drivertest.Client, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.dialErr != nil {
			return nil, f.dialErr
		}
		c := &drivertest.Client{Databases: []model.DatabaseInfo{{Name: "admin"}, {Name: "app", SizeOnDisk: 4096}}}
		if f.template != nil {
			f.template(c)
		}
		f.clients = append(f.clients, c)
		return c, nil
	}}
	f.conns = NewConnectionService(f.registry, f.tunnels, f.dialer, f.cache)
	return f
}

func (f *fixture) client(i int) *drivertest.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[i]
}

func (f *fixture) dialed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *fixture) saveURI(t *testing.T, uri string) string {
	t.Helper()
	c, err := f.registry.Save(context.Background(), &registry.SaveRequest{Kind: registry.KindURI, URI: uri})
	require.NoError(t, err)
	return c.ID
}

func (f *fixture) saveTunneled(t *testing.T, addr string) (string, *drivertest.Tunnel) {
	t.Helper()
	tun := &drivertest.Tunnel{Address: addr}
	f.tunnels.tunnel = tun
	c, err := f.registry.Save(context.Background(), &registry.SaveRequest{
		Kind: registry.KindConfig,
		Connection: &model.StoredConnection{
			Name:  "behind bastion",
			Hosts: []string{"db.internal:27017"},
			SSH: &model.SSHConfig{
				UseSSH:     true,
				Host:       "bastion.example.com",
				Port:       22,
				Username:   "ops",
				Method:     model.SSHMethodPassword,
				Password:   "secret",
				MongodHost: "db.internal",
				MongodPort: 27017,
			},
		},
	})
	require.NoError(t, err)
	return c.ID, tun
}
