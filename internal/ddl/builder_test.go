package ddl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "simple", input: "silver_sales"},
		{name: "underscore_prefix", input: "_staging"},
		{name: "max_length", input: strings.Repeat("a", 128)},
		{name: "empty", input: "", wantErr: "name is required"},
		{name: "too_long", input: strings.Repeat("a", 129), wantErr: "at most 128 characters"},
		{name: "starts_with_digit", input: "1table", wantErr: "must match"},
		{name: "contains_space", input: "Order Date", wantErr: "must match"},
		{name: "sql_injection", input: "foo; DROP TABLE", wantErr: "must match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.input)
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, `"my""table"`, QuoteIdentifier(`my"table`))
	assert.Equal(t, `'it''s'`, QuoteLiteral("it's"))
	assert.Equal(t, `''`, QuoteLiteral(""))
}

func TestValidateColumnType(t *testing.T) {
	for _, ok := range []string{"DATE", "DOUBLE", "VARCHAR", "BIGINT", "varchar"} {
		assert.NoError(t, ValidateColumnType(ok), ok)
	}
	for _, bad := range []string{"", "DOUBLE; DROP TABLE x", "DECIMAL(10,2)", "INT -- c", "(INT)"} {
		assert.Error(t, ValidateColumnType(bad), bad)
	}
}

func TestCreateTable(t *testing.T) {
	stmt, err := CreateTable("silver_sales", []ColumnDef{
		{Name: "order_date", Type: "DATE"},
		{Name: "sales", Type: "DOUBLE"},
	})
	require.NoError(t, err)
	assert.Equal(t, `CREATE OR REPLACE TABLE "silver_sales" ("order_date" DATE, "sales" DOUBLE)`, stmt)

	_, err = CreateTable("silver_sales", nil)
	require.Error(t, err)

	_, err = CreateTable("bad name", []ColumnDef{{Name: "a", Type: "INT"}})
	require.Error(t, err)

	_, err = CreateTable("t", []ColumnDef{{Name: "a", Type: "INT; DROP"}})
	require.Error(t, err)
}

func TestDropTable(t *testing.T) {
	stmt, err := DropTable("gold_metrics")
	require.NoError(t, err)
	assert.Equal(t, `DROP TABLE IF EXISTS "gold_metrics"`, stmt)
}

func TestCopyToParquet(t *testing.T) {
	stmt, err := CopyToParquet("silver_sales", "/tmp/it's/sales.parquet")
	require.NoError(t, err)
	assert.Equal(t, `COPY "silver_sales" TO '/tmp/it''s/sales.parquet' (FORMAT PARQUET, COMPRESSION ZSTD)`, stmt)

	_, err = CopyToParquet("bad name", "/tmp/x.parquet")
	require.Error(t, err)

	_, err = CopyToParquet("silver_sales", "")
	require.Error(t, err)
}

func TestSelectFromParquet(t *testing.T) {
	stmt, err := SelectFromParquet("/data/sales.parquet", []string{"region", "sales"})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "region", "sales" FROM read_parquet('/data/sales.parquet')`, stmt)

	_, err = SelectFromParquet("/data/sales.parquet", []string{"Order Date"})
	require.Error(t, err)

	_, err = SelectFromParquet("/data/sales.parquet", nil)
	require.Error(t, err)
}

func TestDescribeParquet(t *testing.T) {
	stmt, err := DescribeParquet("/data/sales.parquet")
	require.NoError(t, err)
	assert.Equal(t, `DESCRIBE SELECT * FROM read_parquet('/data/sales.parquet')`, stmt)
}
