package shell

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Cursor is any script value that can be materialized into an array.
type Cursor interface {
	ToArray(ctx context.Context) ([]interface{}, error)
}

// opener is implemented by cursors that run lazily against the server.
type opener interface {
	Open(ctx context.Context) (*mongo.Cursor, error)
}

type findFunc func(ctx context.Context, filter interface{}, opts *options.FindOptions) (*mongo.Cursor, error)

type countFunc func(ctx context.Context, filter interface{}) (int64, error)

// FindCursor is a lazily executed find. Modifiers return the same cursor.
type FindCursor struct {
	filter interface{}
	opts   *options.FindOptions
	find   findFunc
	count  countFunc
}

// NewFindCursor returns a find over coll.
func NewFindCursor(coll *mongo.Collection, filter interface{}) *FindCursor {
	c := newFindCursor(filter, func(ctx context.Context, f interface{}, o *options.FindOptions) (*mongo.Cursor, error) {
		return coll.Find(ctx, f, o)
	})
	c.count = func(ctx context.Context, f interface{}) (int64, error) {
		return coll.CountDocuments(ctx, f)
	}
	return c
}

func newFindCursor(filter interface{}, find findFunc) *FindCursor {
	if filter == nil {
		filter = bson.D{}
	}
	return &FindCursor{filter: filter, opts: options.Find(), find: find}
}

// Limit sets the maximum number of documents.
func (c *FindCursor) Limit(n int64) *FindCursor {
	c.opts.SetLimit(n)
	return c
}

// Skip sets the number of documents to skip.
func (c *FindCursor) Skip(n int64) *FindCursor {
	c.opts.SetSkip(n)
	return c
}

// MaxTime sets the server side time limit.
func (c *FindCursor) MaxTime(d time.Duration) *FindCursor {
	c.opts.SetMaxTime(d)
	return c
}

// Sort sets the sort order.
func (c *FindCursor) Sort(order interface{}) *FindCursor {
	c.opts.SetSort(order)
	return c
}

// Project sets the projection.
func (c *FindCursor) Project(projection interface{}) *FindCursor {
	c.opts.SetProjection(projection)
	return c
}

// Filter returns the query filter.
func (c *FindCursor) Filter() interface{} {
	return c.filter
}

// Options returns the accumulated find options.
func (c *FindCursor) Options() *options.FindOptions {
	return c.opts
}

// Open runs the find.
func (c *FindCursor) Open(ctx context.Context) (*mongo.Cursor, error) {
	return c.find(ctx, c.filter, c.opts)
}

// Count returns the number of documents matching the filter, ignoring
// limit and skip.
func (c *FindCursor) Count(ctx context.Context) (int64, error) {
	if c.count == nil {
		return 0, unsupported("count is not available on this cursor")
	}
	return c.count(ctx, c.filter)
}

// ToArray runs the find and drains it.
func (c *FindCursor) ToArray(ctx context.Context) ([]interface{}, error) {
	return drain(ctx, c)
}

type aggregateFunc func(ctx context.Context, pipeline interface{}, opts *options.AggregateOptions) (*mongo.Cursor, error)

// AggregationCursor is a lazily executed aggregation. Skip and Limit
// append $skip and $limit stages in call order.
type AggregationCursor struct {
	pipeline mongo.Pipeline
	opts     *options.AggregateOptions
	agg      aggregateFunc
}

// NewAggregationCursor returns an aggregation over coll.
func NewAggregationCursor(coll *mongo.Collection, pipeline mongo.Pipeline) *AggregationCursor {
	return newAggregationCursor(pipeline, func(ctx context.Context, p interface{}, o *options.AggregateOptions) (*mongo.Cursor, error) {
		return coll.Aggregate(ctx, p, o)
	})
}

func newAggregationCursor(pipeline mongo.Pipeline, agg aggregateFunc) *AggregationCursor {
	return &AggregationCursor{
		pipeline: append(mongo.Pipeline(nil), pipeline...),
		opts:     options.Aggregate(),
		agg:      agg,
	}
}

// Skip appends a $skip stage.
func (c *AggregationCursor) Skip(n int64) *AggregationCursor {
	c.pipeline = append(c.pipeline, bson.D{{Key: "$skip", Value: n}})
	return c
}

// Limit appends a $limit stage.
func (c *AggregationCursor) Limit(n int64) *AggregationCursor {
	c.pipeline = append(c.pipeline, bson.D{{Key: "$limit", Value: n}})
	return c
}

// MaxTime sets the server side time limit.
func (c *AggregationCursor) MaxTime(d time.Duration) *AggregationCursor {
	c.opts.SetMaxTime(d)
	return c
}

// Pipeline returns the stages that will run.
func (c *AggregationCursor) Pipeline() mongo.Pipeline {
	return c.pipeline
}

// Options returns the aggregate options.
func (c *AggregationCursor) Options() *options.AggregateOptions {
	return c.opts
}

// Open runs the aggregation.
func (c *AggregationCursor) Open(ctx context.Context) (*mongo.Cursor, error) {
	return c.agg(ctx, c.pipeline, c.opts)
}

// ToArray runs the aggregation and drains it.
func (c *AggregationCursor) ToArray(ctx context.Context) ([]interface{}, error) {
	return drain(ctx, c)
}

// CommandCursor wraps a cursor returned by a command such as listIndexes.
type CommandCursor struct {
	cur *mongo.Cursor
}

// Open returns the wrapped cursor.
func (c *CommandCursor) Open(context.Context) (*mongo.Cursor, error) {
	return c.cur, nil
}

// ToArray drains the wrapped cursor.
func (c *CommandCursor) ToArray(ctx context.Context) ([]interface{}, error) {
	return drain(ctx, c)
}

func drain(ctx context.Context, o opener) ([]interface{}, error) {
	cur, err := o.Open(ctx)
	if err != nil {
		return nil, err
	}
	var docs []bson.D
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]interface{}, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out, nil
}
