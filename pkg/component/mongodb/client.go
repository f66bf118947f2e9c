// Package mongodb wraps the MongoDB driver client with the configured pool
// and timeout tuning.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	options "github.com/kart-io/ark/pkg/options/mongodb"
)

// Options re-exports the driver tuning options.
type Options = options.Options

// NewOptions re-exports the default tuning.
var NewOptions = options.NewOptions

// Client wraps mongo.Client.
type Client struct {
	client *mongo.Client
	opts   *Options
}

// New creates a client for uri and verifies it with a ping.
func New(uri string, opts *Options) (*Client, error) {
	return NewWithContext(context.Background(), uri, opts)
}

// NewWithContext creates a client for uri with context support.
//
// The context bounds connection establishment and the initial ping.
// Returns an error if the URI cannot be parsed, the client cannot be
// created or the deployment does not answer the ping.
func NewWithContext(ctx context.Context, uri string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = NewOptions()
	}

	clientOpts := ClientOptions(uri, opts)
	if err := clientOpts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mongodb uri: %w", err)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, readpref.PrimaryPreferred()); err != nil {
		dctx, cancel := context.WithTimeout(context.Background(), opts.DisconnectTimeout)
		defer cancel()
		_ = client.Disconnect(dctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &Client{client: client, opts: opts}, nil
}

// ClientOptions applies uri then the tuning. Settings in the URI win
// over tuning defaults only for fields the tuning leaves at zero.
func ClientOptions(uri string, opts *Options) *mongoopts.ClientOptions {
	clientOpts := mongoopts.Client().ApplyURI(uri)

	if opts.AppName != "" && clientOpts.AppName == nil {
		clientOpts.SetAppName(opts.AppName)
	}

	// Apply connection pool settings
	if opts.MaxPoolSize > 0 && clientOpts.MaxPoolSize == nil {
		clientOpts.SetMaxPoolSize(opts.MaxPoolSize)
	}
	if opts.MinPoolSize > 0 && clientOpts.MinPoolSize == nil {
		clientOpts.SetMinPoolSize(opts.MinPoolSize)
	}
	if opts.MaxConnIdleTime > 0 && clientOpts.MaxConnIdleTime == nil {
		clientOpts.SetMaxConnIdleTime(opts.MaxConnIdleTime)
	}

	// Apply timeout settings
	if opts.ConnectTimeout > 0 && clientOpts.ConnectTimeout == nil {
		clientOpts.SetConnectTimeout(opts.ConnectTimeout)
	}
	if opts.SocketTimeout > 0 && clientOpts.SocketTimeout == nil {
		clientOpts.SetSocketTimeout(opts.SocketTimeout)
	}
	if opts.ServerSelectionTimeout > 0 && clientOpts.ServerSelectionTimeout == nil {
		clientOpts.SetServerSelectionTimeout(opts.ServerSelectionTimeout)
	}

	return clientOpts
}

// Name returns the storage type identifier.
func (c *Client) Name() string {
	return "mongodb"
}

// Ping checks if the connection to MongoDB is alive.
func (c *Client) Ping(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("client is nil")
	}
	return c.client.Ping(ctx, readpref.PrimaryPreferred())
}

// Close disconnects the client. It is idempotent.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.DisconnectTimeout)
	defer cancel()
	err := c.client.Disconnect(ctx)
	if err == mongo.ErrClientDisconnected {
		return nil
	}
	return err
}

// Database returns a database handle by name.
func (c *Client) Database(name string) *mongo.Database {
	return c.client.Database(name)
}

// Raw returns the underlying mongo.Client.
func (c *Client) Raw() *mongo.Client {
	return c.client
}
