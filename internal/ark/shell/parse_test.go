package shell

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/kart-io/ark/pkg/errors"
)

func TestStatements(t *testing.T) {
	code := `
// list users
db.users.find({name: "a;b"});
/* second */ db.orders.find() ;
`
	assert.Equal(t, []string{`db.users.find({name: "a;b"})`, `db.orders.find()`}, statements(code))
	assert.Empty(t, statements("  ;; // nothing\n"))
}

func TestStatementsSplitOnLineBreaks(t *testing.T) {
	assert.Equal(t, []string{"db.a.find()", "db.b.find()"}, statements("db.a.find()\ndb.b.find()"))
	assert.Equal(t, []string{"db.a.find()\n  .limit(1)"}, statements("db.a.find()\n  .limit(1)"))
	assert.Equal(t, []string{"db.a.find({\n  x: 1\n})", "db.b\n.count()"},
		statements("db.a.find({\n  x: 1\n})\n\ndb.b\n.count()"))
	assert.Equal(t, []string{"db.a.find(\n1)"}, statements("db.a.find(\n1)\n"))
}

func TestParseChain(t *testing.T) {
	c, err := parseChain(`db.users.find({age: {$gt: 1}}, {name: 1}).sort({age: -1}).limit(3)`)
	require.NoError(t, err)

	assert.Equal(t, "db", c.root)
	require.Len(t, c.steps, 4)
	assert.Equal(t, step{name: "users"}, c.steps[0])
	assert.Equal(t, step{name: "find", invoked: true, args: []string{"{age: {$gt: 1}}", "{name: 1}"}}, c.steps[1])
	assert.Equal(t, step{name: "sort", invoked: true, args: []string{"{age: -1}"}}, c.steps[2])
	assert.Equal(t, step{name: "limit", invoked: true, args: []string{"3"}}, c.steps[3])
}

func TestParseChainBracketAccess(t *testing.T) {
	c, err := parseChain(`db['my-coll'].findOne()`)
	require.NoError(t, err)
	require.Len(t, c.steps, 2)
	assert.Equal(t, "my-coll", c.steps[0].name)
	assert.False(t, c.steps[0].invoked)
	assert.True(t, c.steps[1].invoked)
	assert.Empty(t, c.steps[1].args)
}

func TestParseChainErrors(t *testing.T) {
	for _, src := range []string{
		"",
		"1 + 1",
		"db.users.find({)",
		"db.users.find(",
		"db.users find()",
		"db[users].find()",
	} {
		_, err := parseChain(src)
		assert.ErrorIs(t, err, errors.ErrUnsupportedScript, src)
	}
}

func TestParseValue(t *testing.T) {
	oid, _ := primitive.ObjectIDFromHex("65a1b2c3d4e5f60718293a4b")
	date := primitive.NewDateTimeFromTime(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))

	tests := []struct {
		name string
		in   string
		want interface{}
	}{
		{"bare keys", `{a: 1, b: "x"}`, bson.D{{Key: "a", Value: int32(1)}, {Key: "b", Value: "x"}}},
		{"single quotes", `{'a': 'it"s'}`, bson.D{{Key: "a", Value: `it"s`}}},
		{"operators", `{age: {$gte: 21}}`, bson.D{{Key: "age", Value: bson.D{{Key: "$gte", Value: int32(21)}}}}},
		{"trailing comma", `{a: [1, 2, ], }`, bson.D{{Key: "a", Value: bson.A{int32(1), int32(2)}}}},
		{"object id", `ObjectId("65a1b2c3d4e5f60718293a4b")`, oid},
		{"iso date", `ISODate('2024-01-02T03:04:05Z')`, date},
		{"new date", `new Date("2024-01-02T03:04:05Z")`, date},
		{"date only", `ISODate("2020-01-01")`, primitive.NewDateTimeFromTime(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))},
		{"date without zone", `ISODate("2024-01-02T03:04:05")`, date},
		{"date with space", `new Date('2024-01-02 03:04:05')`, date},
		{"date with offset", `ISODate("2024-01-02T05:04:05+02:00")`, date},
		{"date millis", `new Date(1704164645000)`, date},
		{"number long", `NumberLong(5)`, int64(5)},
		{"number long string", `NumberLong("9007199254740993")`, int64(9007199254740993)},
		{"number int", `NumberInt(7)`, int32(7)},
		{"float exponent", `1.5e3`, float64(1500)},
		{"negative", `-4`, int32(-4)},
		{"large int", `4294967296`, int64(4294967296)},
		{"regex", `/^ab+c/i`, primitive.Regex{Pattern: "^ab+c", Options: "i"}},
		{"undefined", `undefined`, nil},
		{"bool", `true`, true},
		{"canonical", `{"n": {"$numberLong": "3"}}`, bson.D{{Key: "n", Value: int64(3)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseValue(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseValueErrors(t *testing.T) {
	for _, in := range []string{`foo(1)`, `{a: bar}`, `ObjectId()`, `{a: 1`, `/open`, `ISODate("yesterday")`} {
		_, err := parseValue(in)
		assert.ErrorIs(t, err, errors.ErrUnsupportedScript, in)
	}
}
