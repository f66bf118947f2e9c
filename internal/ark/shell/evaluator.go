// Package shell evaluates user scripts against a live deployment and shapes
// the results for the result grid.
package shell

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/kart-io/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/kart-io/ark/internal/ark/driver"
	"github.com/kart-io/ark/internal/ark/export"
	"github.com/kart-io/ark/pkg/errors"
)

const (
	// DefaultLimit is the page size used when none is given.
	DefaultLimit = 50
	// DefaultTimeout bounds server side execution of a cursor.
	DefaultTimeout = 120 * time.Second
)

// EvalOptions paginates cursor results. Page is 1-based.
type EvalOptions struct {
	Page    int64
	Limit   int64
	Timeout time.Duration
}

func (o EvalOptions) normalize() EvalOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Skip returns the number of documents before the requested page.
func (o EvalOptions) Skip() int64 {
	o = o.normalize()
	return (o.Page - 1) * o.Limit
}

// Result is the classified value of one evaluation.
type Result struct {
	Value              interface{}
	IsCursor           bool
	IsNotDocumentArray bool
}

// Editable reports whether every returned document carries an ObjectID _id,
// so rows can be addressed for inline updates.
func (r *Result) Editable() bool {
	var docs []interface{}
	switch v := r.Value.(type) {
	case []interface{}:
		docs = v
	case bson.A:
		docs = v
	case bson.D:
		docs = []interface{}{v}
	default:
		return false
	}
	if len(docs) == 0 {
		return false
	}
	for _, d := range docs {
		doc, ok := d.(bson.D)
		if !ok {
			return false
		}
		id, ok := lookup(doc, "_id")
		if !ok {
			return false
		}
		if _, ok := id.(primitive.ObjectID); !ok {
			return false
		}
	}
	return true
}

// Marshal encodes the value as the BSON document {result: value}.
func (r *Result) Marshal() ([]byte, error) {
	return bson.Marshal(bson.D{{Key: "result", Value: r.Value}})
}

// Evaluator runs scripts over one dedicated driver client.
type Evaluator struct {
	client driver.Client
	runner ScriptRunner
	once   sync.Once
}

// NewEvaluator returns an evaluator. A nil runner selects the built-in one.
func NewEvaluator(client driver.Client, runner ScriptRunner) *Evaluator {
	if runner == nil {
		runner = NewRunner()
	}
	return &Evaluator{client: client, runner: runner}
}

func (e *Evaluator) runtime(database string) *Runtime {
	return &Runtime{
		DB:    e.client.Database(database),
		Admin: e.client.Database("admin"),
	}
}

func (e *Evaluator) run(ctx context.Context, code, database string) (interface{}, error) {
	v, err := e.runner.Run(ctx, code, e.runtime(database))
	if err != nil {
		return nil, wrap(err)
	}
	return v, nil
}

// Evaluate runs code and materializes cursors one page at a time.
func (e *Evaluator) Evaluate(ctx context.Context, code, database string, opts EvalOptions) (*Result, error) {
	opts = opts.normalize()
	v, err := e.run(ctx, code, database)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	switch c := v.(type) {
	case *AggregationCursor:
		c.Skip(opts.Skip()).MaxTime(opts.Timeout).Limit(opts.Limit)
		v, err = c.ToArray(ctx)
		res.IsCursor = true
	case *FindCursor:
		c.Limit(opts.Limit).Skip(opts.Skip()).MaxTime(opts.Timeout)
		v, err = c.ToArray(ctx)
		res.IsCursor = true
	case Cursor:
		// Command and change-stream cursors are drained whole and do not page.
		v, err = c.ToArray(ctx)
	}
	if err != nil {
		return nil, wrap(err)
	}

	res.Value = v
	res.IsNotDocumentArray = notDocumentArray(v)
	return res, nil
}

// Export runs code and streams every resulting document to a file.
func (e *Evaluator) Export(ctx context.Context, code, database string, opts export.Options) (*export.Summary, error) {
	v, err := e.run(ctx, code, database)
	if err != nil {
		return nil, err
	}

	var src export.Source
	switch c := v.(type) {
	case opener:
		cur, err := c.Open(ctx)
		if err != nil {
			return nil, wrap(err)
		}
		src = cur
	case []interface{}:
		src, err = mongo.NewCursorFromDocuments(c, nil, nil)
	case bson.A:
		src, err = mongo.NewCursorFromDocuments(c, nil, nil)
	case bson.D:
		src, err = mongo.NewCursorFromDocuments([]interface{}{c}, nil, nil)
	default:
		return nil, errors.ErrInvalidParam.WithMessage("script result cannot be exported")
	}
	if err != nil {
		return nil, wrap(err)
	}
	return export.Run(ctx, src, opts)
}

// Disconnect closes the evaluator's client. Repeated calls are no-ops.
func (e *Evaluator) Disconnect() {
	e.once.Do(func() {
		if err := e.client.Close(); err != nil {
			logger.Warnw("Failed to close shell client", "error", err.Error())
		}
	})
}

func wrap(err error) error {
	var e *errors.Errno
	if stderrors.As(err, &e) {
		return err
	}
	return errors.ErrDatabase.WithCause(err)
}

func notDocumentArray(v interface{}) bool {
	switch s := v.(type) {
	case []interface{}:
		return len(s) > 0 && isScalar(s[0])
	case bson.A:
		return len(s) > 0 && isScalar(s[0])
	case []string:
		return len(s) > 0
	}
	return isScalar(v)
}

func isScalar(v interface{}) bool {
	switch v.(type) {
	case time.Time, primitive.DateTime, primitive.ObjectID, primitive.Timestamp, primitive.Decimal128,
		string, bool, int, int32, int64, float32, float64:
		return true
	}
	return false
}
