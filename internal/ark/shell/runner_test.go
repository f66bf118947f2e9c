package shell

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/kart-io/ark/internal/ark/driver/drivertest"
	"github.com/kart-io/ark/pkg/errors"
)

// offlineRuntime is bound to a client that never reaches a server; only
// scripts that build cursors without running them can succeed.
func offlineRuntime(db string) *Runtime {
	c := &drivertest.Client{}
	return &Runtime{DB: c.Database(db), Admin: c.Database("admin")}
}

func TestRunnerBuildsFindCursor(t *testing.T) {
	v, err := NewRunner().Run(context.Background(),
		`db.users.find({age: {$gt: 30}}, {name: 1}).sort({age: -1}).skip(5).limit(10).maxTimeMS(250)`,
		offlineRuntime("app"))
	require.NoError(t, err)

	cur, ok := v.(*FindCursor)
	require.True(t, ok, "got %T", v)
	assert.Equal(t, bson.D{{Key: "age", Value: bson.D{{Key: "$gt", Value: int32(30)}}}}, cur.Filter())

	o := cur.Options()
	assert.Equal(t, bson.D{{Key: "name", Value: int32(1)}}, o.Projection)
	assert.Equal(t, bson.D{{Key: "age", Value: int32(-1)}}, o.Sort)
	assert.Equal(t, int64(5), *o.Skip)
	assert.Equal(t, int64(10), *o.Limit)
	assert.Equal(t, 250*time.Millisecond, *o.MaxTime)
}

func TestRunnerGetCollection(t *testing.T) {
	v, err := NewRunner().Run(context.Background(), `db.getCollection("order-items").find().projection({_id: 0})`, offlineRuntime("app"))
	require.NoError(t, err)
	cur, ok := v.(*FindCursor)
	require.True(t, ok)
	assert.Equal(t, bson.D{}, cur.Filter())
	assert.Equal(t, bson.D{{Key: "_id", Value: int32(0)}}, cur.Options().Projection)
}

func TestRunnerBuildsAggregation(t *testing.T) {
	v, err := NewRunner().Run(context.Background(),
		`db.orders.aggregate([{$match: {status: "A"}}, {$group: {_id: "$cust", total: {$sum: "$amount"}}}])`,
		offlineRuntime("app"))
	require.NoError(t, err)

	cur, ok := v.(*AggregationCursor)
	require.True(t, ok, "got %T", v)
	assert.Equal(t, mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "status", Value: "A"}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$cust"},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$amount"}}},
		}}},
	}, cur.Pipeline())
}

func TestRunnerReturnsLastStatement(t *testing.T) {
	v, err := NewRunner().Run(context.Background(), `db.a.find(); db.getSiblingDB("reports").getName()`, offlineRuntime("app"))
	require.NoError(t, err)
	assert.Equal(t, "reports", v)
}

func TestRunnerRejectsUnsupportedScripts(t *testing.T) {
	for _, code := range []string{
		"",
		"var x = 1",
		"db.users.find().explain()",
		"db.users.frobnicate()",
		"db.users.find().limit('ten')",
		"db.users.aggregate({$match: {}})",
		"db.getName().toUpperCase()",
		"rs.add('h:1')",
		"sh.enableSharding('x')",
		"process.exit(1)",
	} {
		_, err := NewRunner().Run(context.Background(), code, offlineRuntime("app"))
		assert.ErrorIs(t, err, errors.ErrUnsupportedScript, code)
	}
}
