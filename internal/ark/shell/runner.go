package shell

import (
	"context"
	stderrors "errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Runtime is the fixed set of globals a script can reach. DB is bound to the
// session database; rs and sh helpers run against Admin.
type Runtime struct {
	DB    *mongo.Database
	Admin *mongo.Database
}

// ScriptRunner executes script code and returns the value of its last
// statement.
type ScriptRunner interface {
	Run(ctx context.Context, code string, rt *Runtime) (interface{}, error)
}

// Runner is the built-in ScriptRunner. It understands shell call chains
// rooted at db, rs and sh with Extended JSON arguments.
type Runner struct{}

// NewRunner returns the built-in runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Run evaluates each statement in order and returns the last value.
func (r *Runner) Run(ctx context.Context, code string, rt *Runtime) (interface{}, error) {
	stmts := statements(code)
	if len(stmts) == 0 {
		return nil, unsupported("script is empty")
	}
	var last interface{}
	for _, s := range stmts {
		c, err := parseChain(s)
		if err != nil {
			return nil, err
		}
		if last, err = r.eval(ctx, c, rt); err != nil {
			return nil, err
		}
	}
	return last, nil
}

func (r *Runner) eval(ctx context.Context, c *chain, rt *Runtime) (interface{}, error) {
	switch c.root {
	case "db":
		return r.evalDB(ctx, c.steps, rt.DB)
	case "rs":
		return r.evalRS(ctx, c.steps, rt.Admin)
	case "sh":
		return r.evalSH(ctx, c.steps, rt.Admin)
	}
	return nil, unsupported("unknown global %q", c.root)
}

func (r *Runner) evalDB(ctx context.Context, steps []step, db *mongo.Database) (interface{}, error) {
	for len(steps) > 0 {
		st := steps[0]
		if !st.invoked {
			return r.evalCollection(ctx, steps[1:], db.Collection(st.name))
		}
		args, err := parseArgs(st.args)
		if err != nil {
			return nil, err
		}
		switch st.name {
		case "getCollection":
			name, err := argString(args, 0, st.name)
			if err != nil {
				return nil, err
			}
			return r.evalCollection(ctx, steps[1:], db.Collection(name))
		case "getSiblingDB":
			name, err := argString(args, 0, st.name)
			if err != nil {
				return nil, err
			}
			db = db.Client().Database(name)
			steps = steps[1:]
			continue
		case "getName":
			return done(steps[1:], db.Name(), nil)
		case "getCollectionNames":
			names, err := db.ListCollectionNames(ctx, bson.D{})
			return done(steps[1:], names, err)
		case "stats":
			res, err := runCommand(ctx, db, bson.D{{Key: "dbStats", Value: 1}})
			return done(steps[1:], res, err)
		case "runCommand", "adminCommand":
			cmd, err := argDoc(args, 0)
			if err != nil {
				return nil, err
			}
			target := db
			if st.name == "adminCommand" {
				target = db.Client().Database("admin")
			}
			res, err := runCommand(ctx, target, cmd)
			return done(steps[1:], res, err)
		}
		return nil, unsupported("db.%s() is not supported", st.name)
	}
	return db.Name(), nil
}

func (r *Runner) evalRS(ctx context.Context, steps []step, admin *mongo.Database) (interface{}, error) {
	if len(steps) == 0 || !steps[0].invoked {
		return nil, unsupported("rs requires a method call")
	}
	var cmd bson.D
	switch steps[0].name {
	case "status":
		cmd = bson.D{{Key: "replSetGetStatus", Value: 1}}
	case "conf", "config":
		res, err := runCommand(ctx, admin, bson.D{{Key: "replSetGetConfig", Value: 1}})
		if err != nil {
			return nil, err
		}
		if conf, ok := lookup(res, "config"); ok {
			return done(steps[1:], conf, nil)
		}
		return done(steps[1:], res, nil)
	case "hello", "isMaster":
		cmd = bson.D{{Key: "hello", Value: 1}}
	default:
		return nil, unsupported("rs.%s() is not supported", steps[0].name)
	}
	res, err := runCommand(ctx, admin, cmd)
	return done(steps[1:], res, err)
}

func (r *Runner) evalSH(ctx context.Context, steps []step, admin *mongo.Database) (interface{}, error) {
	if len(steps) == 0 || !steps[0].invoked || steps[0].name != "status" {
		return nil, unsupported("only sh.status() is supported")
	}
	res, err := runCommand(ctx, admin, bson.D{{Key: "listShards", Value: 1}})
	return done(steps[1:], res, err)
}

func (r *Runner) evalCollection(ctx context.Context, steps []step, coll *mongo.Collection) (interface{}, error) {
	if len(steps) == 0 {
		return coll.Name(), nil
	}
	st := steps[0]
	if !st.invoked {
		return nil, unsupported("nested collection %s.%s is not supported", coll.Name(), st.name)
	}
	args, err := parseArgs(st.args)
	if err != nil {
		return nil, err
	}
	rest := steps[1:]

	switch st.name {
	case "find":
		filter, err := argDoc(args, 0)
		if err != nil {
			return nil, err
		}
		cur := NewFindCursor(coll, filter)
		if len(args) > 1 {
			cur.Project(args[1])
		}
		return r.evalFindModifiers(ctx, rest, cur)
	case "aggregate":
		pipeline, err := argPipeline(args)
		if err != nil {
			return nil, err
		}
		return r.evalAggregateModifiers(ctx, rest, NewAggregationCursor(coll, pipeline))
	case "getIndexes":
		cur, err := coll.Indexes().List(ctx)
		if err != nil {
			return nil, err
		}
		return r.evalCursorModifiers(ctx, rest, &CommandCursor{cur: cur})
	}

	v, err := r.collectionCall(ctx, coll, st.name, args)
	return done(rest, v, err)
}

func (r *Runner) collectionCall(ctx context.Context, coll *mongo.Collection, method string, args []interface{}) (interface{}, error) {
	switch method {
	case "findOne":
		filter, err := argDoc(args, 0)
		if err != nil {
			return nil, err
		}
		opts := options.FindOne()
		if len(args) > 1 {
			opts.SetProjection(args[1])
		}
		var doc bson.D
		err = coll.FindOne(ctx, filter, opts).Decode(&doc)
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return doc, err
	case "countDocuments":
		filter, err := argDoc(args, 0)
		if err != nil {
			return nil, err
		}
		return coll.CountDocuments(ctx, filter)
	case "estimatedDocumentCount":
		return coll.EstimatedDocumentCount(ctx)
	case "distinct":
		field, err := argString(args, 0, method)
		if err != nil {
			return nil, err
		}
		filter, err := argDoc(args, 1)
		if err != nil {
			return nil, err
		}
		return coll.Distinct(ctx, field, filter)
	case "insertOne":
		doc, err := argDoc(args, 0)
		if err != nil {
			return nil, err
		}
		res, err := coll.InsertOne(ctx, doc)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "acknowledged", Value: true}, {Key: "insertedId", Value: res.InsertedID}}, nil
	case "insertMany":
		docs, ok := arg(args, 0).(bson.A)
		if !ok {
			return nil, unsupported("insertMany requires an array of documents")
		}
		res, err := coll.InsertMany(ctx, docs)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "acknowledged", Value: true}, {Key: "insertedIds", Value: bson.A(res.InsertedIDs)}}, nil
	case "updateOne", "updateMany", "replaceOne":
		return r.update(ctx, coll, method, args)
	case "deleteOne", "deleteMany":
		filter, err := argDoc(args, 0)
		if err != nil {
			return nil, err
		}
		var res *mongo.DeleteResult
		if method == "deleteOne" {
			res, err = coll.DeleteOne(ctx, filter)
		} else {
			res, err = coll.DeleteMany(ctx, filter)
		}
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "acknowledged", Value: true}, {Key: "deletedCount", Value: res.DeletedCount}}, nil
	case "drop":
		if err := coll.Drop(ctx); err != nil {
			return nil, err
		}
		return true, nil
	case "stats":
		return runCommand(ctx, coll.Database(), bson.D{{Key: "collStats", Value: coll.Name()}})
	}
	return nil, unsupported("%s() is not supported on collections", method)
}

func (r *Runner) update(ctx context.Context, coll *mongo.Collection, method string, args []interface{}) (interface{}, error) {
	filter, err := argDoc(args, 0)
	if err != nil {
		return nil, err
	}
	if len(args) < 2 {
		return nil, unsupported("%s requires an update argument", method)
	}
	upsert := false
	if o, ok := arg(args, 2).(bson.D); ok {
		if v, ok := lookup(o, "upsert"); ok {
			upsert, _ = v.(bool)
		}
	}

	var res *mongo.UpdateResult
	switch method {
	case "updateOne":
		res, err = coll.UpdateOne(ctx, filter, args[1], options.Update().SetUpsert(upsert))
	case "updateMany":
		res, err = coll.UpdateMany(ctx, filter, args[1], options.Update().SetUpsert(upsert))
	default:
		res, err = coll.ReplaceOne(ctx, filter, args[1], options.Replace().SetUpsert(upsert))
	}
	if err != nil {
		return nil, err
	}
	out := bson.D{
		{Key: "acknowledged", Value: true},
		{Key: "matchedCount", Value: res.MatchedCount},
		{Key: "modifiedCount", Value: res.ModifiedCount},
		{Key: "upsertedCount", Value: res.UpsertedCount},
	}
	if res.UpsertedID != nil {
		out = append(out, bson.E{Key: "upsertedId", Value: res.UpsertedID})
	}
	return out, nil
}

func (r *Runner) evalFindModifiers(ctx context.Context, steps []step, cur *FindCursor) (interface{}, error) {
	for i, st := range steps {
		if !st.invoked {
			return nil, unsupported("cursor property %s is not supported", st.name)
		}
		args, err := parseArgs(st.args)
		if err != nil {
			return nil, err
		}
		switch st.name {
		case "sort":
			cur.Sort(arg(args, 0))
		case "project", "projection":
			cur.Project(arg(args, 0))
		case "limit", "skip", "maxTimeMS":
			n, err := argInt(args, 0, st.name)
			if err != nil {
				return nil, err
			}
			switch st.name {
			case "limit":
				cur.Limit(n)
			case "skip":
				cur.Skip(n)
			default:
				cur.MaxTime(time.Duration(n) * time.Millisecond)
			}
		case "count":
			n, err := cur.Count(ctx)
			return done(steps[i+1:], n, err)
		case "toArray":
			docs, err := cur.ToArray(ctx)
			return done(steps[i+1:], docs, err)
		default:
			return nil, unsupported("cursor.%s() is not supported", st.name)
		}
	}
	return cur, nil
}

func (r *Runner) evalAggregateModifiers(ctx context.Context, steps []step, cur *AggregationCursor) (interface{}, error) {
	for i, st := range steps {
		if !st.invoked {
			return nil, unsupported("cursor property %s is not supported", st.name)
		}
		args, err := parseArgs(st.args)
		if err != nil {
			return nil, err
		}
		switch st.name {
		case "maxTimeMS":
			n, err := argInt(args, 0, st.name)
			if err != nil {
				return nil, err
			}
			cur.MaxTime(time.Duration(n) * time.Millisecond)
		case "toArray":
			docs, err := cur.ToArray(ctx)
			return done(steps[i+1:], docs, err)
		default:
			return nil, unsupported("aggregate cursor.%s() is not supported", st.name)
		}
	}
	return cur, nil
}

func (r *Runner) evalCursorModifiers(ctx context.Context, steps []step, cur Cursor) (interface{}, error) {
	if len(steps) == 0 {
		return cur, nil
	}
	if steps[0].invoked && steps[0].name == "toArray" {
		docs, err := cur.ToArray(ctx)
		return done(steps[1:], docs, err)
	}
	return nil, unsupported("cursor.%s() is not supported", steps[0].name)
}

// done returns v when nothing is chained after a terminal call.
func done(rest []step, v interface{}, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, unsupported("%s cannot be called on a result value", rest[0].name)
	}
	return v, nil
}

func runCommand(ctx context.Context, db *mongo.Database, cmd bson.D) (bson.D, error) {
	var res bson.D
	if err := db.RunCommand(ctx, cmd).Decode(&res); err != nil {
		return nil, err
	}
	return res, nil
}

func lookup(d bson.D, key string) (interface{}, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func parseArgs(raw []string) ([]interface{}, error) {
	out := make([]interface{}, len(raw))
	for i, a := range raw {
		v, err := parseValue(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func arg(args []interface{}, i int) interface{} {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func argDoc(args []interface{}, i int) (bson.D, error) {
	switch v := arg(args, i).(type) {
	case nil:
		return bson.D{}, nil
	case bson.D:
		return v, nil
	}
	return nil, unsupported("argument %d must be a document", i+1)
}

func argString(args []interface{}, i int, method string) (string, error) {
	if s, ok := arg(args, i).(string); ok {
		return s, nil
	}
	return "", unsupported("%s requires a string argument", method)
}

func argInt(args []interface{}, i int, method string) (int64, error) {
	switch v := arg(args, i).(type) {
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	}
	return 0, unsupported("%s requires a numeric argument", method)
}

func argPipeline(args []interface{}) (mongo.Pipeline, error) {
	stages, ok := arg(args, 0).(bson.A)
	if !ok {
		if arg(args, 0) != nil {
			return nil, unsupported("aggregate requires an array of stages")
		}
		return mongo.Pipeline{}, nil
	}
	out := make(mongo.Pipeline, 0, len(stages))
	for _, s := range stages {
		d, ok := s.(bson.D)
		if !ok {
			return nil, unsupported("aggregate stages must be documents")
		}
		out = append(out, d)
	}
	return out, nil
}
