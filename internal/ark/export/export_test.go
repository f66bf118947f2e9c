package export

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/kart-io/ark/pkg/errors"
)

func cursorOf(t *testing.T, docs ...bson.D) *mongo.Cursor {
	t.Helper()
	in := make([]interface{}, len(docs))
	for i, d := range docs {
		in[i] = d
	}
	cur, err := mongo.NewCursorFromDocuments(in, nil, nil)
	require.NoError(t, err)
	return cur
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestCSVDiscoversHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	src := cursorOf(t,
		bson.D{{Key: "a", Value: 1}, {Key: "b", Value: 2}},
		bson.D{{Key: "a", Value: 3}, {Key: "c", Value: 4}},
	)

	s, err := Run(context.Background(), src, Options{Type: TypeCSV, FileName: path})
	require.NoError(t, err)

	assert.Equal(t, "a,b,c\n1,2,\n3,,4\n", readFile(t, path))
	assert.Equal(t, []string{"a", "b", "c"}, s.Fields)
	assert.Equal(t, int64(2), s.Documents)
	assert.Equal(t, path, s.Path)
}

func TestCSVExplicitFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	src := cursorOf(t,
		bson.D{{Key: "a", Value: 1}, {Key: "b", Value: 2}},
		bson.D{{Key: "a", Value: 3}, {Key: "c", Value: 4}},
	)

	_, err := Run(context.Background(), src, Options{Type: TypeCSV, FileName: path, Fields: []string{"c", "a"}})
	require.NoError(t, err)

	assert.Equal(t, "c,a\n,1\n4,3\n", readFile(t, path))
}

func TestCSVDestructure(t *testing.T) {
	oid := primitive.NewObjectID()
	doc := bson.D{
		{Key: "_id", Value: oid},
		{Key: "address", Value: bson.D{{Key: "city", Value: "Paris"}, {Key: "zip", Value: "75001"}}},
		{Key: "tags", Value: bson.A{"x", "y"}},
	}

	t.Run("flattened", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.csv")
		_, err := Run(context.Background(), cursorOf(t, doc), Options{Type: TypeCSV, FileName: path, DestructureData: true})
		require.NoError(t, err)

		assert.Equal(t,
			"_id,address.city,address.zip,tags.0,tags.1\n"+oid.Hex()+",Paris,75001,x,y\n",
			readFile(t, path))
	})

	t.Run("nested as json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.csv")
		_, err := Run(context.Background(), cursorOf(t, doc), Options{Type: TypeCSV, FileName: path})
		require.NoError(t, err)

		assert.Equal(t,
			"_id,address,tags\n"+oid.Hex()+`,"{""city"":""Paris"",""zip"":""75001""}","[""x"",""y""]"`+"\n",
			readFile(t, path))
	})
}

func TestCSVDelimiter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	src := cursorOf(t, bson.D{{Key: "a", Value: "1;2"}, {Key: "b", Value: true}})

	_, err := Run(context.Background(), src, Options{Type: TypeCSV, FileName: path, Delimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, "a;b\n\"1;2\";true\n", readFile(t, path))
}

func TestNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.ndjson")
	oid := primitive.NewObjectID()
	src := cursorOf(t,
		bson.D{{Key: "_id", Value: oid}, {Key: "n", Value: int64(1)}},
		bson.D{{Key: "name", Value: "b"}, {Key: "tags", Value: bson.A{"x"}}},
	)

	s, err := Run(context.Background(), src, Options{Type: TypeNDJSON, FileName: path})
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.Documents)
	assert.Nil(t, s.Fields)

	lines := strings.Split(strings.TrimSuffix(readFile(t, path), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `{"_id":{"$oid":"`+oid.Hex()+`"},"n":1}`, lines[0])
	assert.Equal(t, `{"name":"b","tags":["x"]}`, lines[1])

	var back bson.D
	require.NoError(t, bson.UnmarshalExtJSON([]byte(lines[0]), false, &back))
	assert.Equal(t, oid, back[0].Value)
}

func TestLargeExportStreams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.csv")
	docs := make([]bson.D, 5000)
	for i := range docs {
		docs[i] = bson.D{{Key: "i", Value: i}, {Key: fmt.Sprintf("k%d", i%7), Value: "v"}}
	}

	s, err := Run(context.Background(), cursorOf(t, docs...), Options{Type: TypeCSV, FileName: path})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), s.Documents)
	assert.Len(t, s.Fields, 8)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	sc := bufio.NewScanner(f)
	n := 0
	for sc.Scan() {
		assert.Equal(t, 7, strings.Count(sc.Text(), ","), "every row is padded to the header width")
		n++
	}
	assert.Equal(t, 5001, n)
}

type failingSource struct {
	docs   []bson.D
	failAt int
	i      int
	closed bool
}

func (f *failingSource) Next(context.Context) bool {
	if f.i >= len(f.docs) || f.i == f.failAt {
		return false
	}
	f.i++
	return true
}

func (f *failingSource) Decode(v interface{}) error {
	b, err := bson.Marshal(f.docs[f.i-1])
	if err != nil {
		return err
	}
	return bson.Unmarshal(b, v)
}

func (f *failingSource) Err() error {
	if f.i == f.failAt {
		return stderrors.New("cursor killed")
	}
	return nil
}

func (f *failingSource) Close(context.Context) error {
	f.closed = true
	return nil
}

func TestSourceErrorAbortsAndKeepsPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.ndjson")
	src := &failingSource{
		docs:   []bson.D{{{Key: "a", Value: 1}}, {{Key: "a", Value: 2}}, {{Key: "a", Value: 3}}},
		failAt: 2,
	}

	_, err := Run(context.Background(), src, Options{Type: TypeNDJSON, FileName: path})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrInternal))
	assert.Contains(t, err.Error(), "cursor killed")
	assert.True(t, src.closed)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "partial files are left on disk")
}

func TestInvalidOptions(t *testing.T) {
	dir := t.TempDir()

	src := &failingSource{failAt: -1}
	_, err := Run(context.Background(), src, Options{Type: "xlsx", FileName: filepath.Join(dir, "x")})
	assert.True(t, stderrors.Is(err, errors.ErrInvalidParam))
	assert.True(t, src.closed)

	_, err = Run(context.Background(), &failingSource{failAt: -1}, Options{Type: TypeCSV})
	assert.True(t, stderrors.Is(err, errors.ErrInvalidParam))

	_, err = Run(context.Background(), &failingSource{failAt: -1}, Options{Type: TypeCSV, FileName: dir})
	assert.True(t, stderrors.Is(err, errors.ErrInternal), "a directory cannot be written")
}

func TestCloseErrorFailsExport(t *testing.T) {
	var file *os.File
	closeFile = func(f *os.File) error {
		file = f
		_ = f.Close()
		return stderrors.New("disk quota exceeded")
	}
	t.Cleanup(func() { closeFile = (*os.File).Close })

	path := filepath.Join(t.TempDir(), "out.ndjson")
	s, err := Run(context.Background(), cursorOf(t, bson.D{{Key: "a", Value: 1}}), Options{Type: TypeNDJSON, FileName: path})
	require.Error(t, err)
	assert.Nil(t, s)
	assert.True(t, stderrors.Is(err, errors.ErrInternal))
	assert.Contains(t, err.Error(), "disk quota exceeded")

	require.NotNil(t, file)
	assert.ErrorIs(t, file.Close(), os.ErrClosed, "the file is closed once")
}
