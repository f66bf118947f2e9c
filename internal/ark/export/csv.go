package export

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// csvWriter streams rows and, unless the columns were given up front,
// writes the header once every row has been seen.
type csvWriter struct {
	w           *csv.Writer
	delimiter   rune
	destructure bool

	fixed  bool
	header []string
	index  map[string]int
}

func newCSVWriter(buf *bufio.Writer, opts Options) (*csvWriter, error) {
	c := &csvWriter{
		w:           csv.NewWriter(buf),
		delimiter:   ',',
		destructure: opts.DestructureData,
		index:       make(map[string]int),
	}
	if opts.Delimiter != 0 {
		c.delimiter = opts.Delimiter
	}
	c.w.Comma = c.delimiter

	if len(opts.Fields) > 0 {
		c.fixed = true
		for _, f := range opts.Fields {
			c.addColumn(f)
		}
		if err := c.w.Write(c.header); err != nil {
			return nil, fmt.Errorf("write csv header: %w", err)
		}
	}
	return c, nil
}

func (c *csvWriter) addColumn(name string) int {
	if i, ok := c.index[name]; ok {
		return i
	}
	c.index[name] = len(c.header)
	c.header = append(c.header, name)
	return len(c.header) - 1
}

func (c *csvWriter) write(doc bson.D) error {
	cells := make(map[string]string)
	var order []string
	flatten("", doc, c.destructure, func(key, val string) {
		if _, seen := cells[key]; !seen {
			order = append(order, key)
		}
		cells[key] = val
	})

	if !c.fixed {
		for _, k := range order {
			c.addColumn(k)
		}
	}

	row := make([]string, len(c.header))
	for k, v := range cells {
		if i, ok := c.index[k]; ok {
			row[i] = v
		}
	}
	if err := c.w.Write(row); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

// finish prepends the discovered header. The file is read back whole and
// rewritten as header plus rows, with early rows padded to the final width.
func (c *csvWriter) finish(f *os.File) error {
	if c.fixed {
		return nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind csv: %w", err)
	}
	body, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read csv rows: %w", err)
	}

	r := csv.NewReader(bytes.NewReader(body))
	r.Comma = c.delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate csv: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind csv: %w", err)
	}

	out := bufio.NewWriter(f)
	w := csv.NewWriter(out)
	w.Comma = c.delimiter

	if len(c.header) > 0 {
		if err := w.Write(c.header); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reread csv row: %w", err)
		}
		for len(rec) < len(c.header) {
			rec = append(rec, "")
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("rewrite csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("rewrite csv: %w", err)
	}
	return out.Flush()
}

// flatten emits one cell per leaf. Nested documents become a.b and array
// elements a.0 when destructure is set.
func flatten(prefix string, v interface{}, destructure bool, emit func(key, val string)) {
	join := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "." + k
	}

	switch t := v.(type) {
	case bson.D:
		if prefix != "" && !destructure {
			emit(prefix, jsonCell(t))
			return
		}
		for _, e := range t {
			flatten(join(e.Key), e.Value, destructure, emit)
		}
	case bson.M:
		flatten(prefix, toD(t), destructure, emit)
	case bson.A:
		if !destructure {
			emit(prefix, jsonCell(t))
			return
		}
		for i, e := range t {
			flatten(join(strconv.Itoa(i)), e, destructure, emit)
		}
	default:
		emit(prefix, scalarCell(t))
	}
}

func toD(m bson.M) bson.D {
	d := make(bson.D, 0, len(m))
	for k, v := range m {
		d = append(d, bson.E{Key: k, Value: v})
	}
	return d
}

func scalarCell(v interface{}) string {
	switch t := v.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return ""
	case string:
		return t
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case bool:
		return strconv.FormatBool(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case primitive.Decimal128:
		return t.String()
	default:
		return jsonCell(t)
	}
}

// jsonCell renders v as relaxed Extended JSON.
func jsonCell(v interface{}) string {
	b, err := bson.MarshalExtJSON(bson.D{{Key: "v", Value: v}}, false, false)
	if err != nil {
		return fmt.Sprint(v)
	}
	// strip the {"v": wrapper
	return string(b[len(`{"v":`) : len(b)-1])
}
