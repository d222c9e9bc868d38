package engine

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"slices"
	"time"

	"github.com/duckdb/duckdb-go/v2"

	"retail-medallion/internal/ddl"
	"retail-medallion/internal/domain"
)

// Gold metric column names.
const (
	ColumnOrderCount  = "order_count"
	ColumnTotalSales  = "total_sales"
	ColumnTotalProfit = "total_profit"
	ColumnAvgDiscount = "avg_discount"
)

const (
	silverTable = "silver_sales"
	goldTable   = "gold_metrics"
)

var silverColumns = []ddl.ColumnDef{
	{Name: domain.FieldOrderDate, Type: "DATE"},
	{Name: domain.FieldSales, Type: "DOUBLE"},
	{Name: domain.FieldProfit, Type: "DOUBLE"},
	{Name: domain.FieldDiscount, Type: "DOUBLE"},
	{Name: domain.FieldRegion, Type: "VARCHAR"},
	{Name: domain.FieldCategory, Type: "VARCHAR"},
	{Name: domain.FieldState, Type: "VARCHAR"},
	{Name: domain.FieldCity, Type: "VARCHAR"},
}

// MetricsLayout describes the columns of one Gold dataset.
type MetricsLayout struct {
	Dimensions      []string
	AverageDiscount bool
}

func (l MetricsLayout) columns() []ddl.ColumnDef {
	cols := make([]ddl.ColumnDef, 0, len(l.Dimensions)+4)
	for _, d := range l.Dimensions {
		cols = append(cols, ddl.ColumnDef{Name: d, Type: "VARCHAR"})
	}
	cols = append(cols,
		ddl.ColumnDef{Name: ColumnOrderCount, Type: "BIGINT"},
		ddl.ColumnDef{Name: ColumnTotalSales, Type: "DOUBLE"},
		ddl.ColumnDef{Name: ColumnTotalProfit, Type: "DOUBLE"},
	)
	if l.AverageDiscount {
		cols = append(cols, ddl.ColumnDef{Name: ColumnAvgDiscount, Type: "DOUBLE"})
	}
	return cols
}

// WriteCleaned writes the Silver snapshot to a Parquet file at path, keeping
// record order.
func (e *Engine) WriteCleaned(ctx context.Context, path string, records []domain.CleanedRecord) error {
	return e.writeTable(ctx, silverTable, silverColumns, path, func(a *duckdb.Appender) error {
		for i := range records {
			r := &records[i]
			if err := a.AppendRow(
				r.OrderDate,
				r.Sales,
				nullableFloat(r.Profit),
				nullableFloat(r.Discount),
				r.Region,
				r.Category,
				r.State,
				r.City,
			); err != nil {
				return fmt.Errorf("append silver row %d: %w", i, err)
			}
		}
		return nil
	})
}

// ReadCleaned reads a Silver Parquet file. A file missing any Silver column
// fails with a SchemaError naming the first missing column.
func (e *Engine) ReadCleaned(ctx context.Context, path string) ([]domain.CleanedRecord, error) {
	have, err := e.ParquetColumns(ctx, path)
	if err != nil {
		return nil, err
	}
	for _, c := range domain.CleanedFields {
		if !slices.Contains(have, c) {
			return nil, domain.ErrSchema(c)
		}
	}

	q, err := ddl.SelectFromParquet(path, domain.CleanedFields)
	if err != nil {
		return nil, err
	}
	rows, err := e.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("read silver %s: %w", path, err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.CleanedRecord
	for rows.Next() {
		var (
			r                       domain.CleanedRecord
			orderDate               time.Time
			profit, discount        sql.NullFloat64
			region, category, state sql.NullString
			city                    sql.NullString
		)
		if err := rows.Scan(&orderDate, &r.Sales, &profit, &discount, &region, &category, &state, &city); err != nil {
			return nil, fmt.Errorf("scan silver row: %w", err)
		}
		r.OrderDate = orderDate.UTC()
		r.Profit = floatPtr(profit)
		r.Discount = floatPtr(discount)
		r.Region = region.String
		r.Category = category.String
		r.State = state.String
		r.City = city.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// WriteMetrics writes one Gold dataset to a Parquet file at path.
func (e *Engine) WriteMetrics(ctx context.Context, path string, layout MetricsLayout, metrics []domain.AggregatedMetric) error {
	if len(layout.Dimensions) == 0 {
		return domain.ErrValidation("metrics layout needs at least one dimension")
	}
	return e.writeTable(ctx, goldTable, layout.columns(), path, func(a *duckdb.Appender) error {
		for i, m := range metrics {
			if len(m.Keys) != len(layout.Dimensions) {
				return fmt.Errorf("metric %d has %d keys, layout has %d dimensions", i, len(m.Keys), len(layout.Dimensions))
			}
			row := make([]driver.Value, 0, len(layout.Dimensions)+4)
			for _, k := range m.Keys {
				row = append(row, k)
			}
			row = append(row, m.OrderCount, m.TotalSales, m.TotalProfit)
			if layout.AverageDiscount {
				row = append(row, nullableFloat(m.AvgDiscount))
			}
			if err := a.AppendRow(row...); err != nil {
				return fmt.Errorf("append gold row %d: %w", i, err)
			}
		}
		return nil
	})
}

// ReadMetrics reads a Gold Parquet file written by WriteMetrics. Every column
// that is not a metric column is treated as a dimension, in file order.
func (e *Engine) ReadMetrics(ctx context.Context, path string) (MetricsLayout, []domain.AggregatedMetric, error) {
	have, err := e.ParquetColumns(ctx, path)
	if err != nil {
		return MetricsLayout{}, nil, err
	}
	var layout MetricsLayout
	for _, c := range have {
		switch c {
		case ColumnOrderCount, ColumnTotalSales, ColumnTotalProfit:
		case ColumnAvgDiscount:
			layout.AverageDiscount = true
		default:
			layout.Dimensions = append(layout.Dimensions, c)
		}
	}
	for _, c := range []string{ColumnOrderCount, ColumnTotalSales, ColumnTotalProfit} {
		if !slices.Contains(have, c) {
			return MetricsLayout{}, nil, domain.ErrSchema(c)
		}
	}

	names := make([]string, 0, len(have))
	for _, c := range layout.columns() {
		names = append(names, c.Name)
	}
	q, err := ddl.SelectFromParquet(path, names)
	if err != nil {
		return MetricsLayout{}, nil, err
	}
	rows, err := e.db.QueryContext(ctx, q)
	if err != nil {
		return MetricsLayout{}, nil, fmt.Errorf("read gold %s: %w", path, err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.AggregatedMetric
	for rows.Next() {
		keys := make([]sql.NullString, len(layout.Dimensions))
		var (
			m           domain.AggregatedMetric
			avgDiscount sql.NullFloat64
		)
		dest := make([]any, 0, len(names))
		for i := range keys {
			dest = append(dest, &keys[i])
		}
		dest = append(dest, &m.OrderCount, &m.TotalSales, &m.TotalProfit)
		if layout.AverageDiscount {
			dest = append(dest, &avgDiscount)
		}
		if err := rows.Scan(dest...); err != nil {
			return MetricsLayout{}, nil, fmt.Errorf("scan gold row: %w", err)
		}
		m.Keys = make([]string, len(keys))
		for i, k := range keys {
			m.Keys[i] = k.String
		}
		m.AvgDiscount = floatPtr(avgDiscount)
		out = append(out, m)
	}
	return layout, out, rows.Err()
}
