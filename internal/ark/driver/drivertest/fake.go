// Package drivertest provides an in-memory driver.Client for tests.
package drivertest

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kart-io/ark/internal/ark/driver"
	"github.com/kart-io/ark/internal/model"
)

// Call records one invocation on a Client.
type Call struct {
	Method string
	Args   []interface{}
}

// Client is a scripted driver.Client. Zero values answer with empty results.
type Client struct {
	mu     sync.Mutex
	calls  []Call
	closed int

	URI         string
	Databases   []model.DatabaseInfo
	ReplicaSet  *model.ReplicaSetDetails
	Err         error
	Collections map[string][]bson.M

	db *mongo.Database
}

var _ driver.Client = (*Client)(nil)

func (c *Client) record(method string, args ...interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Method: method, Args: args})
	return c.Err
}

// Calls returns the recorded invocations.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Closed returns how many times Close was called.
func (c *Client) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) ListDatabases(context.Context) ([]model.DatabaseInfo, error) {
	if err := c.record("ListDatabases"); err != nil {
		return nil, err
	}
	return c.Databases, nil
}

func (c *Client) ReplicaSetStatus(context.Context) (*model.ReplicaSetDetails, error) {
	if err := c.record("ReplicaSetStatus"); err != nil {
		return nil, err
	}
	if c.ReplicaSet == nil {
		return nil, mongo.CommandError{Code: 76, Name: "NoReplicationEnabled", Message: "not running with --replSet"}
	}
	return c.ReplicaSet, nil
}

func (c *Client) ListCollections(_ context.Context, db string) ([]bson.M, error) {
	if err := c.record("ListCollections", db); err != nil {
		return nil, err
	}
	return c.Collections[db], nil
}

func (c *Client) CreateCollection(_ context.Context, db, coll string) error {
	return c.record("CreateCollection", db, coll)
}

func (c *Client) DropDatabase(_ context.Context, db string) error {
	return c.record("DropDatabase", db)
}

func (c *Client) DropCollection(_ context.Context, db, coll string) error {
	return c.record("DropCollection", db, coll)
}

func (c *Client) ListIndexes(_ context.Context, db, coll string) ([]bson.M, error) {
	if err := c.record("ListIndexes", db, coll); err != nil {
		return nil, err
	}
	return []bson.M{{"name": "_id_", "key": bson.M{"_id": 1}}}, nil
}

func (c *Client) CollectionStats(_ context.Context, db, coll string) (bson.M, error) {
	if err := c.record("CollectionStats", db, coll); err != nil {
		return nil, err
	}
	return bson.M{"ns": db + "." + coll, "count": 0}, nil
}

func (c *Client) DropIndex(_ context.Context, db, coll, name string) error {
	return c.record("DropIndex", db, coll, name)
}

func (c *Client) DropAllIndexes(_ context.Context, db, coll string) error {
	return c.record("DropAllIndexes", db, coll)
}

func (c *Client) Update(_ context.Context, db, coll string, filter, update bson.Raw, many bool) (*model.UpdateResult, error) {
	if err := c.record("Update", db, coll, filter, update, many); err != nil {
		return nil, err
	}
	return &model.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

func (c *Client) Delete(_ context.Context, db, coll string, filter bson.Raw, many bool) (*model.DeleteResult, error) {
	if err := c.record("Delete", db, coll, filter, many); err != nil {
		return nil, err
	}
	return &model.DeleteResult{DeletedCount: 1}, nil
}

// Database returns a handle on a lazily connected client that never
// reaches a server unless an operation is run on it.
func (c *Client) Database(name string) *mongo.Database {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil || c.db.Name() != name {
		mc, err := mongo.Connect(context.Background(), options.Client().ApplyURI("mongodb://127.0.0.1:1"))
		if err != nil {
			panic(err)
		}
		c.db = mc.Database(name)
	}
	return c.db
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

// Dialer hands out Clients built by New and remembers the URIs it saw.
type Dialer struct {
	mu   sync.Mutex
	uris []string

	New func(uri string) (*Client, error)
}

var _ driver.Dialer = (*Dialer)(nil)

// Dial implements driver.Dialer.
func (d *Dialer) Dial(_ context.Context, uri string) (driver.Client, error) {
	d.mu.Lock()
	d.uris = append(d.uris, uri)
	d.mu.Unlock()

	if d.New == nil {
		return &Client{URI: uri}, nil
	}
	c, err := d.New(uri)
	if err != nil {
		return nil, err
	}
	c.URI = uri
	return c, nil
}

// URIs returns the URIs dialed so far.
func (d *Dialer) URIs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.uris...)
}

// Tunnel is a controllable memstore tunnel.
type Tunnel struct {
	mu      sync.Mutex
	Address string
	down    bool
	closed  bool
}

// Addr implements memstore.Tunnel.
func (t *Tunnel) Addr() string { return t.Address }

// Listening implements memstore.Tunnel.
func (t *Tunnel) Listening() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.down && !t.closed
}

// Close implements memstore.Tunnel.
func (t *Tunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Kill makes the tunnel stop listening.
func (t *Tunnel) Kill() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.down = true
}

// IsClosed reports whether Close was called.
func (t *Tunnel) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
