// Package export streams query results to CSV or NDJSON files.
package export

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kart-io/logger"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/errgroup"

	"github.com/kart-io/ark/pkg/errors"
)

// Export formats.
const (
	TypeCSV    = "csv"
	TypeNDJSON = "ndjson"
)

// bufferedRows bounds how far the reader may run ahead of the file writer.
const bufferedRows = 64

// closeFile is replaced in tests.
var closeFile = (*os.File).Close

// Source is a stream of documents. *mongo.Cursor satisfies it.
type Source interface {
	Next(ctx context.Context) bool
	Decode(val interface{}) error
	Err() error
	Close(ctx context.Context) error
}

// Options controls one export.
type Options struct {
	Type     string   `json:"type"`
	FileName string   `json:"fileName"`
	Fields   []string `json:"fields,omitempty"`
	// DestructureData flattens nested documents and arrays into dotted
	// columns. Otherwise they are written as JSON text in one column.
	DestructureData bool `json:"destructureData,omitempty"`
	// Delimiter separates CSV cells. Zero means comma.
	Delimiter rune `json:"delimiter,omitempty"`
}

// Summary describes a finished export.
type Summary struct {
	Path      string   `json:"path"`
	Documents int64    `json:"documents"`
	Fields    []string `json:"fields,omitempty"`
}

// rowWriter receives documents in order and owns the file format.
type rowWriter interface {
	write(doc bson.D) error
	// finish runs after the last row, with the buffered writer flushed.
	finish(f *os.File) error
}

// Run drains src into the file named by opts. The source is closed on
// return. A failed export leaves the partial file in place.
func Run(ctx context.Context, src Source, opts Options) (*Summary, error) {
	defer func() { _ = src.Close(context.Background()) }()

	if opts.FileName == "" {
		return nil, errors.ErrInvalidParam.WithMessage("export file name is required")
	}
	if opts.Type != TypeCSV && opts.Type != TypeNDJSON {
		return nil, errors.ErrInvalidParam.WithMessagef("unsupported export type %q", opts.Type)
	}

	if dir := filepath.Dir(opts.FileName); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.ErrInternal.WithCause(fmt.Errorf("create export directory: %w", err))
		}
	}
	f, err := os.Create(opts.FileName)
	if err != nil {
		return nil, errors.ErrInternal.WithCause(fmt.Errorf("create export file: %w", err))
	}
	closed := false
	defer func() {
		if !closed {
			_ = f.Close()
		}
	}()

	buf := bufio.NewWriter(f)

	var w rowWriter
	var csvw *csvWriter
	switch opts.Type {
	case TypeCSV:
		csvw, err = newCSVWriter(buf, opts)
		if err != nil {
			return nil, errors.ErrInternal.WithCause(err)
		}
		w = csvw
	default:
		w = &ndjsonWriter{w: buf}
	}

	rows := make(chan bson.D, bufferedRows)
	var count int64

	g, gctx := errgroup.WithContext(ctx)

	// producer: blocks on the channel whenever the writer is behind
	g.Go(func() error {
		defer close(rows)
		for src.Next(gctx) {
			var doc bson.D
			if err := src.Decode(&doc); err != nil {
				return fmt.Errorf("decode document: %w", err)
			}
			select {
			case rows <- doc:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return src.Err()
	})

	g.Go(func() error {
		for doc := range rows {
			if err := w.write(doc); err != nil {
				return fmt.Errorf("write row %d: %w", count+1, err)
			}
			count++
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Warnw("Export aborted", "file", opts.FileName, "documents", count, "error", err)
		return nil, errors.ErrInternal.WithCause(err)
	}

	if err := buf.Flush(); err != nil {
		return nil, errors.ErrInternal.WithCause(fmt.Errorf("flush export: %w", err))
	}
	if err := w.finish(f); err != nil {
		return nil, errors.ErrInternal.WithCause(err)
	}
	closed = true
	if err := closeFile(f); err != nil {
		return nil, errors.ErrInternal.WithCause(fmt.Errorf("close export file: %w", err))
	}

	s := &Summary{Path: opts.FileName, Documents: count}
	if csvw != nil {
		s.Fields = csvw.header
	}

	logger.Infow("Export finished", "file", opts.FileName, "type", opts.Type, "documents", count)
	return s, nil
}

type ndjsonWriter struct {
	w *bufio.Writer
}

func (n *ndjsonWriter) write(doc bson.D) error {
	line, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return err
	}
	if _, err := n.w.Write(line); err != nil {
		return err
	}
	return n.w.WriteByte('\n')
}

func (n *ndjsonWriter) finish(*os.File) error {
	return nil
}
