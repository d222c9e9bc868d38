// Package normalize turns untyped Bronze rows into typed Silver records.
package normalize

import (
	"context"
	"errors"
	"iter"
	"maps"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"retail-medallion/internal/domain"
)

// chunkSize is the number of rows one worker parses per task.
const chunkSize = 512

// Config controls parsing and column mapping.
type Config struct {
	// DateFormats are tried in order; the first that parses wins.
	DateFormats []string
	// Columns maps CleanedRecord field names to source column names. Fields
	// left out use the standard export header.
	Columns map[string]string
	// Workers bounds row-parallel parsing. Zero means runtime.NumCPU().
	Workers int
}

// Source is a header plus a lazy sequence of rows, as produced by ingest.Reader.
type Source interface {
	Header() []string
	Records() iter.Seq2[domain.RawRecord, error]
}

// Result is the outcome of one normalization pass.
type Result struct {
	Records    []domain.CleanedRecord
	Rejections []domain.Rejection
	Total      int64
	Admitted   int64
	Rejected   int64
}

// Normalizer parses RawRecords into CleanedRecords.
type Normalizer struct {
	layouts []string
	columns map[string]string
	workers int
}

// New validates cfg and returns a Normalizer.
func New(cfg Config) (*Normalizer, error) {
	formats := cfg.DateFormats
	if len(formats) == 0 {
		return nil, domain.ErrValidation("at least one date format is required")
	}
	layouts := make([]string, 0, len(formats))
	for _, f := range formats {
		l, err := DateLayout(f)
		if err != nil {
			return nil, err
		}
		layouts = append(layouts, l)
	}

	columns := domain.DefaultColumns()
	for field, col := range cfg.Columns {
		if !slices.Contains(domain.CleanedFields, field) {
			return nil, domain.ErrValidation("unknown field %q in column mapping", field)
		}
		columns[field] = col
	}

	workers := cfg.Workers
	if workers < 0 {
		return nil, domain.ErrValidation("workers must not be negative")
	}
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	return &Normalizer{layouts: layouts, columns: columns, workers: workers}, nil
}

// Columns returns the resolved field to source column mapping.
func (n *Normalizer) Columns() map[string]string {
	return maps.Clone(n.columns)
}

// Resolve checks that every mapped column exists in header by exact name.
// The first missing column, in Silver field order, is reported as a SchemaError.
func (n *Normalizer) Resolve(header []string) error {
	for _, field := range domain.CleanedFields {
		col := n.columns[field]
		if !slices.Contains(header, col) {
			return domain.ErrSchema(col)
		}
	}
	return nil
}

type slot struct {
	record    *domain.CleanedRecord
	rejection *domain.Rejection
}

// Normalize resolves the source schema, then parses every row. Rows whose
// order date or sales fail to parse are rejected; unparseable profit or
// discount values are kept as nil. Output order follows input order.
func (n *Normalizer) Normalize(ctx context.Context, src Source) (*Result, error) {
	if err := n.Resolve(src.Header()); err != nil {
		return nil, err
	}

	var slots []slot
	var raws []domain.RawRecord
	var pending []int
	for rec, err := range src.Records() {
		if err != nil {
			var perr *domain.ParseError
			if !errors.As(err, &perr) {
				return nil, err
			}
			slots = append(slots, slot{rejection: &domain.Rejection{
				Line: perr.Line, Field: perr.Field, Value: perr.Value, Reason: perr.Reason,
			}})
			continue
		}
		pending = append(pending, len(slots))
		slots = append(slots, slot{})
		raws = append(raws, rec)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.workers)
	for start := 0; start < len(raws); start += chunkSize {
		end := min(start+chunkSize, len(raws))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				slots[pending[i]] = n.parseRow(raws[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Total: int64(len(slots))}
	for _, s := range slots {
		if s.rejection != nil {
			res.Rejections = append(res.Rejections, *s.rejection)
			res.Rejected++
			continue
		}
		res.Records = append(res.Records, *s.record)
		res.Admitted++
	}
	return res, nil
}

func (n *Normalizer) parseRow(raw domain.RawRecord) slot {
	value := func(field string) string { return raw.Values[n.columns[field]] }
	reject := func(field string, err error) slot {
		return slot{rejection: &domain.Rejection{
			Line: raw.Line, Field: n.columns[field], Value: value(field), Reason: err.Error(),
		}}
	}

	orderDate, err := parseDate(value(domain.FieldOrderDate), n.layouts)
	if err != nil {
		return reject(domain.FieldOrderDate, err)
	}
	sales, err := parseNumber(value(domain.FieldSales))
	if err != nil {
		return reject(domain.FieldSales, err)
	}

	return slot{record: &domain.CleanedRecord{
		OrderDate: orderDate,
		Sales:     sales,
		Profit:    optionalNumber(value(domain.FieldProfit)),
		Discount:  optionalNumber(value(domain.FieldDiscount)),
		Region:    value(domain.FieldRegion),
		Category:  value(domain.FieldCategory),
		State:     value(domain.FieldState),
		City:      value(domain.FieldCity),
	}}
}

func optionalNumber(raw string) *float64 {
	v, err := parseNumber(raw)
	if err != nil {
		return nil
	}
	return &v
}
