// Package ingest reads the raw delimited export that feeds the Bronze layer.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"retail-medallion/internal/domain"
)

// parquetMagic starts every Parquet file.
var parquetMagic = []byte("PAR1")

// utf8BOM is stripped from the first header cell when present.
const utf8BOM = "\ufeff"

// Options controls how a source file is read.
type Options struct {
	Delimiter       rune
	ExpectedColumns []string
}

// Reader yields the data rows of one delimited file lazily, in file order.
type Reader struct {
	uri    string
	body   io.Closer
	csv    *csv.Reader
	header []string
}

// Open opens key in store, checks that it is delimited text rather than
// Parquet, and validates its header against opts.ExpectedColumns. All
// failures are IngestionErrors except StorageAccessErrors, which pass through.
func Open(ctx context.Context, store domain.ObjectStore, key string, opts Options) (*Reader, error) {
	body, err := getSource(ctx, store, key)
	if err != nil {
		return nil, err
	}
	return newReader(store.URI(key), body, body, opts)
}

// getSource fetches key, classifying failures the way Open documents.
func getSource(ctx context.Context, store domain.ObjectStore, key string) (io.ReadCloser, error) {
	uri := store.URI(key)
	body, err := store.Get(ctx, key)
	if err != nil {
		var accessErr *domain.StorageAccessError
		if errors.As(err, &accessErr) {
			return nil, err
		}
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			return nil, domain.ErrIngestion(uri, nil, "source file not found")
		}
		return nil, domain.ErrIngestion(uri, err, "source file unreadable")
	}
	return body, nil
}

// newReader reads the header from src. body is closed on failure and by
// Reader.Close.
func newReader(uri string, src io.Reader, body io.Closer, opts Options) (*Reader, error) {
	br := bufio.NewReader(src)
	magic, err := br.Peek(len(parquetMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		_ = body.Close()
		return nil, domain.ErrIngestion(uri, err, "source file unreadable")
	}
	if bytes.Equal(magic, parquetMagic) {
		_ = body.Close()
		return nil, domain.ErrIngestion(uri, nil, "file format mismatch: found Parquet, expected delimited text")
	}

	cr := csv.NewReader(br)
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}

	header, err := cr.Read()
	if err != nil {
		_ = body.Close()
		if errors.Is(err, io.EOF) {
			return nil, domain.ErrIngestion(uri, nil, "source file is empty, header row expected")
		}
		return nil, domain.ErrIngestion(uri, err, "read header")
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	if err := validateHeader(header, opts.ExpectedColumns); err != nil {
		_ = body.Close()
		return nil, domain.ErrIngestion(uri, nil, "%s", err.Error())
	}

	// Rows must match the header width; a short or long row is a row error.
	cr.FieldsPerRecord = len(header)

	return &Reader{uri: uri, body: body, csv: cr, header: header}, nil
}

func validateHeader(header, expected []string) error {
	seen := make(map[string]bool, len(header))
	for _, h := range header {
		if h == "" {
			return fmt.Errorf("header contains an empty column name")
		}
		if seen[h] {
			return fmt.Errorf("header contains duplicate column %q", h)
		}
		seen[h] = true
	}
	var missing []string
	for _, e := range expected {
		if !seen[e] {
			missing = append(missing, e)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("header mismatch: missing expected column(s) %q", missing)
	}
	return nil
}

// URI returns the location of the file being read.
func (r *Reader) URI() string { return r.uri }

// Header returns the resolved source schema: the header names in file order.
func (r *Reader) Header() []string {
	out := make([]string, len(r.header))
	copy(out, r.header)
	return out
}

// Records returns a single-use iterator over the data rows. A malformed row
// yields a *domain.ParseError with an empty record and iteration continues;
// any other read failure yields an IngestionError and stops.
func (r *Reader) Records() iter.Seq2[domain.RawRecord, error] {
	return func(yield func(domain.RawRecord, error) bool) {
		line := 0
		for {
			fields, err := r.csv.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			line++
			if err != nil {
				var perr *csv.ParseError
				if !errors.As(err, &perr) {
					yield(domain.RawRecord{}, domain.ErrIngestion(r.uri, err, "read line %d", line))
					return
				}
				rowErr := &domain.ParseError{Line: line, Field: "row", Value: strings.Join(fields, string(r.csv.Comma)), Reason: perr.Err.Error()}
				if !yield(domain.RawRecord{Line: line}, rowErr) {
					return
				}
				continue
			}

			values := make(map[string]string, len(r.header))
			for i, h := range r.header {
				values[h] = fields[i]
			}
			if !yield(domain.RawRecord{Line: line, Values: values}, nil) {
				return
			}
		}
	}
}

// Close releases the underlying object.
func (r *Reader) Close() error {
	return r.body.Close()
}
