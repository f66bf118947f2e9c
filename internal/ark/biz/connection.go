// Package biz implements the operations behind the request surface.
package biz

import (
	"context"
	stderrors "errors"

	"github.com/kart-io/logger"

	"github.com/kart-io/ark/internal/ark/driver"
	"github.com/kart-io/ark/internal/ark/memstore"
	"github.com/kart-io/ark/internal/ark/registry"
	"github.com/kart-io/ark/internal/ark/tunnel"
	"github.com/kart-io/ark/internal/model"
	"github.com/kart-io/ark/pkg/errors"
)

// TunnelOpener opens an SSH tunnel for a connection. It returns a nil
// tunnel when the connection is not tunneled.
type TunnelOpener interface {
	Open(ctx context.Context, cfg *model.SSHConfig, hosts []string) (memstore.Tunnel, error)
}

type tunnelOpener struct {
	m *tunnel.Manager
}

// NewTunnelOpener adapts a tunnel manager.
func NewTunnelOpener(m *tunnel.Manager) TunnelOpener {
	return &tunnelOpener{m: m}
}

func (o *tunnelOpener) Open(ctx context.Context, cfg *model.SSHConfig, hosts []string) (memstore.Tunnel, error) {
	t, err := o.m.Open(ctx, cfg, hosts)
	if err != nil || t == nil {
		return nil, err
	}
	return t, nil
}

// ConnectionService manages stored connections and the live connection cache.
type ConnectionService struct {
	registry *registry.Registry
	tunnels  TunnelOpener
	dialer   driver.Dialer
	cache    *memstore.Store
}

// NewConnectionService creates a new ConnectionService.
func NewConnectionService(reg *registry.Registry, tunnels TunnelOpener, dialer driver.Dialer, cache *memstore.Store) *ConnectionService {
	return &ConnectionService{
		registry: reg,
		tunnels:  tunnels,
		dialer:   dialer,
		cache:    cache,
	}
}

// List returns all stored connections.
func (s *ConnectionService) List(ctx context.Context) ([]*model.StoredConnection, error) {
	return s.registry.List(ctx)
}

// Load returns one stored connection.
func (s *ConnectionService) Load(ctx context.Context, connID string) (*model.StoredConnection, error) {
	return s.registry.Load(ctx, connID)
}

// Save persists a connection from a URI or a config payload.
func (s *ConnectionService) Save(ctx context.Context, req *registry.SaveRequest) (*model.StoredConnection, error) {
	return s.registry.Save(ctx, req)
}

// Delete removes a stored connection, disconnecting it first when live.
func (s *ConnectionService) Delete(ctx context.Context, connID string) error {
	if s.cache.Has(connID) {
		if err := s.Disconnect(ctx, connID); err != nil && !stderrors.Is(err, errors.ErrNoCachedConnection) {
			return err
		}
	}
	return s.registry.Delete(ctx, connID)
}

// DecryptPassword returns the plaintext password of a stored connection.
func (s *ConnectionService) DecryptPassword(ctx context.Context, connID string) (string, error) {
	return s.registry.DecryptPassword(ctx, connID)
}

// CreateEncryptionKey returns a new hex encoded key.
func (s *ConnectionService) CreateEncryptionKey() (string, error) {
	return s.registry.CreateEncryptionKey()
}

// ConvertConnectionToURI renders a connection as a URI.
func (s *ConnectionService) ConvertConnectionToURI(conn *model.StoredConnection) (string, error) {
	return registry.ConvertConnectionToURI(conn)
}

// ConvertURIToConnection parses a URI into a connection.
func (s *ConnectionService) ConvertURIToConnection(uri string, base *model.StoredConnection) (*model.StoredConnection, error) {
	return registry.ConvertURIToConnection(uri, base)
}

// Connect opens a live connection for a stored id and primes its database
// list. A connection already cached for the id is closed and replaced.
func (s *ConnectionService) Connect(ctx context.Context, connID string) ([]model.DatabaseInfo, error) {
	conn, err := s.registry.Load(ctx, connID)
	if err != nil {
		return nil, err
	}

	client, tun, err := s.open(ctx, conn, false)
	if err != nil {
		return nil, err
	}

	dbs, err := client.ListDatabases(ctx)
	if err != nil {
		release(connID, client, tun)
		return nil, err
	}

	prev, err := s.cache.Set(connID, &memstore.Entry{Client: client, Databases: dbs, Tunnel: tun})
	if err != nil {
		release(connID, client, tun)
		return nil, err
	}
	if prev != nil {
		logger.Warnw("Replacing live connection", "connection_id", connID)
		release(connID, prev.Client, prev.Tunnel)
	}

	logger.Infow("Connected", "connection_id", connID, "databases", len(dbs), "ssh", tun != nil)
	return dbs, nil
}

// Disconnect closes and forgets the live connection for id.
func (s *ConnectionService) Disconnect(_ context.Context, connID string) error {
	e, err := s.cache.Delete(connID)
	if err != nil {
		return errors.ErrNoCachedConnection.WithMessagef("connection %q is not connected", connID)
	}
	release(connID, e.Client, e.Tunnel)
	logger.Infow("Disconnected", "connection_id", connID)
	return nil
}

// Test checks that a connection can be opened and listed without saving or
// caching anything. Failures are reported in the result.
func (s *ConnectionService) Test(ctx context.Context, req *registry.SaveRequest) *model.TestResult {
	if err := s.test(ctx, req); err != nil {
		logger.Debugw("Connection test failed", "error", err.Error())
		return &model.TestResult{Status: false, Message: err.Error()}
	}
	return &model.TestResult{Status: true, Message: "Connection succeeded"}
}

func (s *ConnectionService) test(ctx context.Context, req *registry.SaveRequest) error {
	conn, err := s.registry.Prepare(ctx, req)
	if err != nil {
		return err
	}
	client, tun, err := s.open(ctx, conn, true)
	if err != nil {
		return err
	}
	defer release("", client, tun)

	_, err = client.ListDatabases(ctx)
	return err
}

// ListDatabases lists databases on a live connection and refreshes the
// cached list.
func (s *ConnectionService) ListDatabases(ctx context.Context, connID string) ([]model.DatabaseInfo, error) {
	e, err := s.Live(connID)
	if err != nil {
		return nil, err
	}
	dbs, err := e.Client.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetDatabases(connID, dbs); err != nil {
		return nil, errors.ErrNoCachedConnection.WithCause(err)
	}
	return dbs, nil
}

// Info describes a stored connection. Multi-host connections also report
// their replica set members, which requires the connection to be live.
func (s *ConnectionService) Info(ctx context.Context, connID string) (*model.ConnectionInfo, error) {
	conn, err := s.registry.Load(ctx, connID)
	if err != nil {
		return nil, err
	}
	info := &model.ConnectionInfo{ID: conn.ID, Name: conn.Name, Type: conn.Type}
	if len(conn.Hosts) <= 1 {
		return info, nil
	}

	e, err := s.Live(connID)
	if err != nil {
		return nil, err
	}
	details, err := replicaSet(ctx, e.Client)
	if err != nil {
		return nil, err
	}
	info.ReplicaSetDetails = details
	return info, nil
}

// Live returns the cache entry for id after checking that its tunnel, if
// any, is still listening.
func (s *ConnectionService) Live(connID string) (*memstore.Entry, error) {
	e, err := s.cache.Get(connID)
	if err != nil {
		return nil, errors.ErrNoCachedConnection.WithMessagef("connection %q is not connected", connID)
	}
	if e.TunnelClosed() {
		return nil, errors.ErrSSHTunnelClosed.WithMessagef("ssh tunnel for connection %q is closed", connID)
	}
	return e, nil
}

// Close disconnects every live connection.
func (s *ConnectionService) Close(ctx context.Context) {
	for _, connID := range s.cache.IDs() {
		_ = s.Disconnect(ctx, connID)
	}
}

// open tunnels and dials conn. plaintext says the record still carries
// its password unencrypted.
func (s *ConnectionService) open(ctx context.Context, conn *model.StoredConnection, plaintext bool) (driver.Client, memstore.Tunnel, error) {
	var tun memstore.Tunnel
	target := conn
	if conn.UsesSSH() {
		t, err := s.tunnels.Open(ctx, conn.SSH, conn.Hosts)
		if err != nil {
			return nil, nil, err
		}
		if t != nil {
			tun = t
			target = throughTunnel(conn, t.Addr())
		}
	}

	var (
		uri string
		err error
	)
	if plaintext {
		uri = registry.FormatURI(target, target.Password)
	} else {
		uri, err = s.registry.BuildURI(ctx, target, true)
	}
	if err != nil {
		release(conn.ID, nil, tun)
		return nil, nil, err
	}

	client, err := s.dialer.Dial(ctx, uri)
	if err != nil {
		release(conn.ID, nil, tun)
		return nil, nil, err
	}
	return client, tun, nil
}

// throughTunnel points conn at a single local tunnel endpoint.
func throughTunnel(conn *model.StoredConnection, addr string) *model.StoredConnection {
	c := *conn
	c.Protocol = model.ProtocolMongoDB
	c.Hosts = []string{addr}
	c.Type = model.TypeDirectConnection
	c.Options.ReplicaSet = ""
	direct := true
	c.Options.DirectConnection = &direct
	return &c
}

func replicaSet(ctx context.Context, client driver.Client) (*model.ReplicaSetDetails, error) {
	details, err := client.ReplicaSetStatus(ctx)
	if err != nil {
		if driver.IsNotReplicaSet(err) {
			return nil, nil
		}
		return nil, errors.ErrDatabase.WithCause(err)
	}
	return details, nil
}

func release(connID string, client driver.Client, tun memstore.Tunnel) {
	if client != nil {
		if err := client.Close(); err != nil {
			logger.Warnw("Failed to close client", "connection_id", connID, "error", err.Error())
		}
	}
	if tun != nil {
		if err := tun.Close(); err != nil {
			logger.Warnw("Failed to close ssh tunnel", "connection_id", connID, "error", err.Error())
		}
	}
}
