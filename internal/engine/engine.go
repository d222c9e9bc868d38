// Package engine encodes and decodes the Silver and Gold layers as Parquet
// files using an embedded, in-memory DuckDB database.
package engine

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/duckdb/duckdb-go/v2"

	"retail-medallion/internal/ddl"
)

// Engine wraps an in-memory DuckDB database used only as a Parquet codec.
type Engine struct {
	db *sql.DB
}

// Open creates an in-memory DuckDB database. DuckDB runs single-threaded so
// that the same rows always produce the same Parquet bytes.
func Open(ctx context.Context) (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if _, err := db.ExecContext(ctx, "SET threads TO 1"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure duckdb: %w", err)
	}
	return &Engine{db: db}, nil
}

// Close releases the DuckDB database.
func (e *Engine) Close() error {
	return e.db.Close()
}

// ParquetColumns returns the column names of a Parquet file in file order.
func (e *Engine) ParquetColumns(ctx context.Context, path string) ([]string, error) {
	q, err := ddl.DescribeParquet(path)
	if err != nil {
		return nil, err
	}
	rows, err := e.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", path, err)
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	var names []string
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan describe row: %w", err)
		}
		// DESCRIBE returns column_name first.
		names = append(names, fmt.Sprint(vals[0]))
	}
	return names, rows.Err()
}

// writeTable stages rows in a scratch table on a dedicated connection, exports
// it to a Parquet file at path, and drops the table again.
func (e *Engine) writeTable(
	ctx context.Context,
	table string,
	columns []ddl.ColumnDef,
	path string,
	appendRows func(a *duckdb.Appender) error,
) error {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire duckdb conn: %w", err)
	}
	defer conn.Close() //nolint:errcheck

	createSQL, err := ddl.CreateTable(table, columns)
	if err != nil {
		return fmt.Errorf("build DDL: %w", err)
	}
	dropSQL, err := ddl.DropTable(table)
	if err != nil {
		return fmt.Errorf("build DDL: %w", err)
	}
	copySQL, err := ddl.CopyToParquet(table, path)
	if err != nil {
		return fmt.Errorf("build COPY: %w", err)
	}

	if _, err := conn.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}
	defer func() { _, _ = conn.ExecContext(context.WithoutCancel(ctx), dropSQL) }()

	err = conn.Raw(func(raw any) error {
		driverConn, ok := raw.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected raw conn type %T", raw)
		}
		appender, err := duckdb.NewAppenderFromConn(driverConn, "", table)
		if err != nil {
			return fmt.Errorf("create %s appender: %w", table, err)
		}
		if err := appendRows(appender); err != nil {
			_ = appender.Close()
			return err
		}
		// Close flushes the buffered rows.
		if err := appender.Close(); err != nil {
			return fmt.Errorf("flush %s appender: %w", table, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, copySQL); err != nil {
		return fmt.Errorf("export %s to %s: %w", table, path, err)
	}
	return nil
}

// nullableFloat converts an optional float to an appender value.
func nullableFloat(v *float64) driver.Value {
	if v == nil {
		return nil
	}
	return *v
}

// floatPtr converts a scanned nullable float to an optional float.
func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
