// Package driver adapts the MongoDB client to the operations the services
// run against a live connection.
package driver

import (
	"context"
	stderrors "errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/kart-io/ark/internal/model"
	"github.com/kart-io/ark/pkg/component/mongodb"
)

// Client is a live connection to one deployment.
type Client interface {
	ListDatabases(ctx context.Context) ([]model.DatabaseInfo, error)
	ReplicaSetStatus(ctx context.Context) (*model.ReplicaSetDetails, error)

	ListCollections(ctx context.Context, db string) ([]bson.M, error)
	CreateCollection(ctx context.Context, db, coll string) error
	DropDatabase(ctx context.Context, db string) error
	DropCollection(ctx context.Context, db, coll string) error
	ListIndexes(ctx context.Context, db, coll string) ([]bson.M, error)
	CollectionStats(ctx context.Context, db, coll string) (bson.M, error)
	DropIndex(ctx context.Context, db, coll, name string) error
	DropAllIndexes(ctx context.Context, db, coll string) error

	Update(ctx context.Context, db, coll string, filter, update bson.Raw, many bool) (*model.UpdateResult, error)
	Delete(ctx context.Context, db, coll string, filter bson.Raw, many bool) (*model.DeleteResult, error)

	// Database exposes the raw handle for script evaluation.
	Database(name string) *mongo.Database
	Close() error
}

// Dialer opens clients from connection strings.
type Dialer interface {
	Dial(ctx context.Context, uri string) (Client, error)
}

type mongoDialer struct {
	opts *mongodb.Options
}

// NewDialer returns a Dialer using the given driver tuning.
func NewDialer(opts *mongodb.Options) Dialer {
	return &mongoDialer{opts: opts}
}

// Dial connects and pings. Driver errors are returned unchanged.
func (d *mongoDialer) Dial(ctx context.Context, uri string) (Client, error) {
	c, err := mongodb.NewWithContext(ctx, uri, d.opts)
	if err != nil {
		return nil, err
	}
	return &client{c: c}, nil
}

type client struct {
	c *mongodb.Client
}

// Wrap adapts an existing component client.
func Wrap(c *mongodb.Client) Client {
	return &client{c: c}
}

func (c *client) ListDatabases(ctx context.Context) ([]model.DatabaseInfo, error) {
	res, err := c.c.Raw().ListDatabases(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	out := make([]model.DatabaseInfo, 0, len(res.Databases))
	for _, db := range res.Databases {
		out = append(out, model.DatabaseInfo{Name: db.Name, SizeOnDisk: db.SizeOnDisk, Empty: db.Empty})
	}
	return out, nil
}

func (c *client) ReplicaSetStatus(ctx context.Context) (*model.ReplicaSetDetails, error) {
	var details model.ReplicaSetDetails
	err := c.c.Database("admin").RunCommand(ctx, bson.D{{Key: "replSetGetStatus", Value: 1}}).Decode(&details)
	if err != nil {
		return nil, err
	}
	return &details, nil
}

func (c *client) ListCollections(ctx context.Context, db string) ([]bson.M, error) {
	cur, err := c.c.Database(db).ListCollections(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	var out []bson.M
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) CreateCollection(ctx context.Context, db, coll string) error {
	return c.c.Database(db).CreateCollection(ctx, coll)
}

func (c *client) DropDatabase(ctx context.Context, db string) error {
	return c.c.Database(db).Drop(ctx)
}

func (c *client) DropCollection(ctx context.Context, db, coll string) error {
	return c.c.Database(db).Collection(coll).Drop(ctx)
}

func (c *client) ListIndexes(ctx context.Context, db, coll string) ([]bson.M, error) {
	cur, err := c.c.Database(db).Collection(coll).Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	var out []bson.M
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) CollectionStats(ctx context.Context, db, coll string) (bson.M, error) {
	var stats bson.M
	err := c.c.Database(db).RunCommand(ctx, bson.D{{Key: "collStats", Value: coll}}).Decode(&stats)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (c *client) DropIndex(ctx context.Context, db, coll, name string) error {
	_, err := c.c.Database(db).Collection(coll).Indexes().DropOne(ctx, name)
	return err
}

func (c *client) DropAllIndexes(ctx context.Context, db, coll string) error {
	_, err := c.c.Database(db).Collection(coll).Indexes().DropAll(ctx)
	return err
}

func (c *client) Update(ctx context.Context, db, coll string, filter, update bson.Raw, many bool) (*model.UpdateResult, error) {
	col := c.c.Database(db).Collection(coll)

	var (
		res *mongo.UpdateResult
		err error
	)
	if many {
		res, err = col.UpdateMany(ctx, filter, update)
	} else {
		res, err = col.UpdateOne(ctx, filter, update)
	}
	if err != nil {
		return nil, err
	}
	return &model.UpdateResult{
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
		UpsertedCount: res.UpsertedCount,
	}, nil
}

func (c *client) Delete(ctx context.Context, db, coll string, filter bson.Raw, many bool) (*model.DeleteResult, error) {
	col := c.c.Database(db).Collection(coll)

	var (
		res *mongo.DeleteResult
		err error
	)
	if many {
		res, err = col.DeleteMany(ctx, filter)
	} else {
		res, err = col.DeleteOne(ctx, filter)
	}
	if err != nil {
		return nil, err
	}
	return &model.DeleteResult{DeletedCount: res.DeletedCount}, nil
}

func (c *client) Database(name string) *mongo.Database {
	return c.c.Database(name)
}

func (c *client) Close() error {
	if err := c.c.Close(); err != nil {
		return fmt.Errorf("close mongodb client: %w", err)
	}
	return nil
}

// IsNotReplicaSet reports whether err says the server is not running
// with replication enabled.
func IsNotReplicaSet(err error) bool {
	var ce mongo.CommandError
	if stderrors.As(err, &ce) {
		// NoReplicationEnabled
		return ce.Code == 76 || ce.Name == "NoReplicationEnabled"
	}
	return false
}
