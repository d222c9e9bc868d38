package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-medallion/internal/domain"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func fptr(f float64) *float64 { return &f }

func sampleCleaned() []domain.CleanedRecord {
	return []domain.CleanedRecord{
		{
			OrderDate: time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC),
			Sales:     150.5, Profit: fptr(20.25), Discount: fptr(0.1),
			Region: "East", Category: "Furniture", State: "New York", City: "New York City",
		},
		{
			OrderDate: time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
			Sales:     42, Profit: nil, Discount: nil,
			Region: "West", Category: "Technology", State: "California", City: "Los Angeles",
		},
		{
			OrderDate: time.Date(2022, 1, 31, 0, 0, 0, 0, time.UTC),
			Sales:     -3.5, Profit: fptr(-1), Discount: fptr(0),
			Region: "Central", Category: "Office Supplies", State: "Texas", City: "",
		},
	}
}

func TestWriteReadCleaned(t *testing.T) {
	ctx := context.Background()
	eng := openTestEngine(t)
	path := filepath.Join(t.TempDir(), "sales.parquet")

	want := sampleCleaned()
	require.NoError(t, eng.WriteCleaned(ctx, path, want))

	cols, err := eng.ParquetColumns(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, domain.CleanedFields, cols)

	got, err := eng.ReadCleaned(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, want, got, "rows and their order survive the round trip")
}

func TestWriteCleaned_Empty(t *testing.T) {
	ctx := context.Background()
	eng := openTestEngine(t)
	path := filepath.Join(t.TempDir(), "sales.parquet")

	require.NoError(t, eng.WriteCleaned(ctx, path, nil))
	got, err := eng.ReadCleaned(ctx, path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWriteCleaned_Deterministic(t *testing.T) {
	ctx := context.Background()
	eng := openTestEngine(t)
	dir := t.TempDir()

	first := filepath.Join(dir, "a.parquet")
	second := filepath.Join(dir, "b.parquet")
	require.NoError(t, eng.WriteCleaned(ctx, first, sampleCleaned()))
	require.NoError(t, eng.WriteCleaned(ctx, second, sampleCleaned()))

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(a, b), "same rows must encode to identical bytes")
	assert.Equal(t, []byte("PAR1"), a[:4])
}

func TestReadCleaned_MissingColumn(t *testing.T) {
	ctx := context.Background()
	eng := openTestEngine(t)
	path := filepath.Join(t.TempDir(), "partial.parquet")

	_, err := eng.db.ExecContext(ctx,
		"COPY (SELECT DATE '2024-01-01' AS order_date, 1.0 AS sales) TO '"+path+"' (FORMAT PARQUET)")
	require.NoError(t, err)

	_, err = eng.ReadCleaned(ctx, path)
	require.Error(t, err)
	var serr *domain.SchemaError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, domain.FieldProfit, serr.Column)
}

func TestReadCleaned_MissingFile(t *testing.T) {
	eng := openTestEngine(t)
	_, err := eng.ReadCleaned(context.Background(), filepath.Join(t.TempDir(), "nope.parquet"))
	require.Error(t, err)
}

func TestWriteReadMetrics(t *testing.T) {
	ctx := context.Background()
	eng := openTestEngine(t)
	path := filepath.Join(t.TempDir(), "by_region_category.parquet")

	layout := MetricsLayout{Dimensions: []string{"region", "category"}, AverageDiscount: true}
	want := []domain.AggregatedMetric{
		{Keys: []string{"East", "Furniture"}, OrderCount: 2, TotalSales: 300, TotalProfit: 40, AvgDiscount: fptr(0.15)},
		{Keys: []string{"West", "Technology"}, OrderCount: 1, TotalSales: 42, TotalProfit: 0, AvgDiscount: nil},
	}
	require.NoError(t, eng.WriteMetrics(ctx, path, layout, want))

	gotLayout, got, err := eng.ReadMetrics(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, layout, gotLayout)
	assert.Equal(t, want, got)
}

func TestWriteMetrics_WithoutAverageDiscount(t *testing.T) {
	ctx := context.Background()
	eng := openTestEngine(t)
	path := filepath.Join(t.TempDir(), "by_state.parquet")

	layout := MetricsLayout{Dimensions: []string{"state"}}
	require.NoError(t, eng.WriteMetrics(ctx, path, layout, []domain.AggregatedMetric{
		{Keys: []string{"Texas"}, OrderCount: 3, TotalSales: 10, TotalProfit: 1, AvgDiscount: fptr(0.2)},
	}))

	cols, err := eng.ParquetColumns(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"state", ColumnOrderCount, ColumnTotalSales, ColumnTotalProfit}, cols)

	gotLayout, got, err := eng.ReadMetrics(ctx, path)
	require.NoError(t, err)
	assert.False(t, gotLayout.AverageDiscount)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].AvgDiscount)
}

func TestWriteMetrics_KeyCountMismatch(t *testing.T) {
	eng := openTestEngine(t)
	err := eng.WriteMetrics(context.Background(), filepath.Join(t.TempDir(), "x.parquet"),
		MetricsLayout{Dimensions: []string{"region"}},
		[]domain.AggregatedMetric{{Keys: []string{"East", "Furniture"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keys")

	err = eng.WriteMetrics(context.Background(), filepath.Join(t.TempDir(), "y.parquet"), MetricsLayout{}, nil)
	require.Error(t, err)
}
