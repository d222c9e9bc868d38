package ddl

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Staging tables and their columns use plain snake_case names.
var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const maxIdentifierLen = 128

// ColumnTypes are the DuckDB types the Silver and Gold layouts are built from.
var ColumnTypes = []string{"DATE", "DOUBLE", "BIGINT", "VARCHAR"}

// ValidateIdentifier checks that name is non-empty, at most 128 characters,
// and matches [a-zA-Z_][a-zA-Z0-9_]*.
func ValidateIdentifier(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("name is required")
	case len(name) > maxIdentifierLen:
		return fmt.Errorf("name must be at most %d characters", maxIdentifierLen)
	case !identifierRe.MatchString(name):
		return fmt.Errorf("name %q must match [a-zA-Z_][a-zA-Z0-9_]*", name)
	}
	return nil
}

// QuoteIdentifier double-quotes a SQL identifier.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral single-quotes a string value such as a file path.
func QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// ValidateColumnType accepts only the types in ColumnTypes, in any case.
func ValidateColumnType(typeName string) error {
	if typeName == "" {
		return fmt.Errorf("column type is required")
	}
	if !slices.Contains(ColumnTypes, strings.ToUpper(typeName)) {
		return fmt.Errorf("column type %q is not one of %s", typeName, strings.Join(ColumnTypes, ", "))
	}
	return nil
}
