package ingest

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-medallion/internal/domain"
	"retail-medallion/internal/testutil"
)

const superstoreCSV = `Order Date,Sales,Profit,Discount,Region,Category,State,City
03-14-2024,150.5,20.1,0.2,East,Furniture,New York,New York City
not-a-date,50,1,0,West,Technology,California,Los Angeles
`

func defaultOptions() Options {
	return Options{Delimiter: ',', ExpectedColumns: domain.DefaultExpectedColumns()}
}

func collect(t *testing.T, r *Reader) ([]domain.RawRecord, []error) {
	t.Helper()
	var recs []domain.RawRecord
	var errs []error
	for rec, err := range r.Records() {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, errs
}

func TestOpen_ReadsRecordsInOrder(t *testing.T) {
	store := testutil.NewMemStore("raw")
	store.Set("superstore.csv", []byte(superstoreCSV))

	r, err := Open(context.Background(), store, "superstore.csv", defaultOptions())
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck

	assert.Equal(t, domain.DefaultExpectedColumns(), r.Header())
	assert.Equal(t, "mem://raw/superstore.csv", r.URI())

	recs, errs := collect(t, r)
	require.Empty(t, errs)
	require.Len(t, recs, 2)
	assert.Equal(t, 1, recs[0].Line)
	assert.Equal(t, "03-14-2024", recs[0].Values["Order Date"])
	assert.Equal(t, "150.5", recs[0].Values["Sales"])
	assert.Equal(t, "East", recs[0].Values["Region"])
	assert.Equal(t, 2, recs[1].Line)
	assert.Equal(t, "not-a-date", recs[1].Values["Order Date"])
}

func TestOpen_CustomDelimiterAndBOM(t *testing.T) {
	store := testutil.NewMemStore("raw")
	store.Set("in.csv", []byte("\ufeffOrder Date;Sales\n2024-01-02;10\n"))

	r, err := Open(context.Background(), store, "in.csv", Options{Delimiter: ';', ExpectedColumns: []string{"Order Date", "Sales"}})
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck

	assert.Equal(t, []string{"Order Date", "Sales"}, r.Header())
	recs, errs := collect(t, r)
	require.Empty(t, errs)
	require.Len(t, recs, 1)
	assert.Equal(t, "10", recs[0].Values["Sales"])
}

func TestOpen_IngestionErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{name: "parquet_file", data: []byte("PAR1\x15\x04\x15"), want: "found Parquet"},
		{name: "empty_file", data: []byte(""), want: "empty"},
		{name: "empty_header_cell", data: []byte("Order Date,,Sales\n"), want: "empty column name"},
		{name: "duplicate_header", data: []byte("Sales,Sales\n"), want: "duplicate column"},
		{name: "missing_expected", data: []byte("Order Date,Sales\n03-14-2024,1\n"), want: "Profit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMemStore("raw")
			store.Set("in.csv", tt.data)

			_, err := Open(context.Background(), store, "in.csv", defaultOptions())
			require.Error(t, err)
			var ierr *domain.IngestionError
			require.True(t, errors.As(err, &ierr), "expected IngestionError, got %T", err)
			assert.Equal(t, "mem://raw/in.csv", ierr.Path)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOpen_MissingFile(t *testing.T) {
	store := testutil.NewMemStore("raw")

	_, err := Open(context.Background(), store, "nope.csv", defaultOptions())
	var ierr *domain.IngestionError
	require.True(t, errors.As(err, &ierr))
	assert.Contains(t, err.Error(), "not found")
}

func TestOpen_StorageAccessPassesThrough(t *testing.T) {
	store := testutil.NewMemStore("raw")
	store.GetErr = domain.ErrStorageAccess("s3://raw", nil, "access denied")

	_, err := Open(context.Background(), store, "in.csv", defaultOptions())
	var serr *domain.StorageAccessError
	require.True(t, errors.As(err, &serr))
	var ierr *domain.IngestionError
	assert.False(t, errors.As(err, &ierr))
}

func TestRecords_MalformedRowIsRowError(t *testing.T) {
	store := testutil.NewMemStore("raw")
	store.Set("in.csv", []byte("Order Date,Sales\n03-14-2024,1\n03-15-2024\n03-16-2024,3\n"))

	r, err := Open(context.Background(), store, "in.csv", Options{ExpectedColumns: []string{"Order Date", "Sales"}})
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck

	recs, errs := collect(t, r)
	require.Len(t, recs, 2)
	assert.Equal(t, 1, recs[0].Line)
	assert.Equal(t, 3, recs[1].Line)

	require.Len(t, errs, 1)
	var perr *domain.ParseError
	require.True(t, errors.As(errs[0], &perr))
	assert.Equal(t, 2, perr.Line)
	assert.Equal(t, "row", perr.Field)
}

func TestRecords_StopsEarly(t *testing.T) {
	store := testutil.NewMemStore("raw")
	store.Set("in.csv", []byte(superstoreCSV))

	r, err := Open(context.Background(), store, "in.csv", defaultOptions())
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck

	n := 0
	for range r.Records() {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestLand(t *testing.T) {
	src := testutil.NewMemStore("raw")
	src.Set("superstore.csv", []byte(superstoreCSV))
	bronze := testutil.NewMemStore("bronze")
	bronze.Set("superstore.csv", []byte("stale"))

	res, err := Land(context.Background(), src, "superstore.csv", bronze, "superstore.csv", defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.Rows)
	assert.Zero(t, res.RowErrors)
	assert.Equal(t, "mem://bronze/superstore.csv", res.Output)
	landed, ok := bronze.Object("superstore.csv")
	require.True(t, ok)
	assert.Equal(t, superstoreCSV, string(landed), "bronze copy is byte-identical")
}

func TestLand_InvalidSourceLeavesBronzeUntouched(t *testing.T) {
	src := testutil.NewMemStore("raw")
	src.Set("superstore.csv", []byte("Order Date,Sales\n"))
	bronze := testutil.NewMemStore("bronze")
	bronze.Set("superstore.csv", []byte("previous"))

	_, err := Land(context.Background(), src, "superstore.csv", bronze, "superstore.csv", defaultOptions())
	require.Error(t, err)

	landed, _ := bronze.Object("superstore.csv")
	assert.Equal(t, "previous", string(landed))
	assert.Zero(t, bronze.Puts())
}

// rewrittenSource replaces its object right after serving it once.
type rewrittenSource struct {
	*testutil.MemStore
}

func (s *rewrittenSource) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	body, err := s.MemStore.Get(ctx, key)
	s.Set(key, []byte("PAR1 rewritten after validation"))
	return body, err
}

func TestLand_LandsTheValidatedBytes(t *testing.T) {
	mem := testutil.NewMemStore("raw")
	mem.Set("superstore.csv", []byte(superstoreCSV))
	src := &rewrittenSource{MemStore: mem}
	bronze := testutil.NewMemStore("bronze")

	_, err := Land(context.Background(), src, "superstore.csv", bronze, "superstore.csv", defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, mem.Gets(), "source is read once")
	landed, ok := bronze.Object("superstore.csv")
	require.True(t, ok)
	assert.Equal(t, superstoreCSV, string(landed))
}
