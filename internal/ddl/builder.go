// Package ddl builds DuckDB statements for the staging tables and Parquet
// files the pipeline reads and writes.
package ddl

import (
	"fmt"
	"strings"
)

// ColumnDef describes a column for CREATE TABLE.
type ColumnDef struct {
	Name string
	Type string
}

// parquetCompression is the codec of every Parquet file the pipeline writes.
const parquetCompression = "ZSTD"

// CreateTable returns a DuckDB DDL statement:
// CREATE OR REPLACE TABLE "<table>" ("<col1>" TYPE1, "<col2>" TYPE2, ...).
func CreateTable(table string, columns []ColumnDef) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("at least one column is required")
	}

	colDefs := make([]string, 0, len(columns))
	for _, c := range columns {
		if err := ValidateIdentifier(c.Name); err != nil {
			return "", fmt.Errorf("invalid column name %q: %w", c.Name, err)
		}
		if err := ValidateColumnType(c.Type); err != nil {
			return "", fmt.Errorf("invalid column type for %q: %w", c.Name, err)
		}
		colDefs = append(colDefs, fmt.Sprintf("%s %s", QuoteIdentifier(c.Name), c.Type))
	}

	return fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)",
		QuoteIdentifier(table),
		strings.Join(colDefs, ", "),
	), nil
}

// DropTable returns a DuckDB DDL statement: DROP TABLE IF EXISTS "<table>".
func DropTable(table string) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", QuoteIdentifier(table)), nil
}

// CopyToParquet returns a COPY statement exporting a table to a single
// ZSTD-compressed Parquet file in insertion order.
func CopyToParquet(table, path string) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	return fmt.Sprintf("COPY %s TO %s (FORMAT PARQUET, COMPRESSION %s)",
		QuoteIdentifier(table),
		QuoteLiteral(path),
		parquetCompression,
	), nil
}

// SelectFromParquet returns a SELECT of the given columns from a Parquet file.
func SelectFromParquet(path string, columns []string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("at least one column is required")
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		if err := ValidateIdentifier(c); err != nil {
			return "", fmt.Errorf("invalid column name %q: %w", c, err)
		}
		quoted[i] = QuoteIdentifier(c)
	}
	return fmt.Sprintf("SELECT %s FROM read_parquet(%s)",
		strings.Join(quoted, ", "),
		QuoteLiteral(path),
	), nil
}

// DescribeParquet returns a statement listing the column names and types of a
// Parquet file.
func DescribeParquet(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	return fmt.Sprintf("DESCRIBE SELECT * FROM read_parquet(%s)", QuoteLiteral(path)), nil
}
