// Package domain defines core types, interfaces, and errors for the medallion pipeline.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// IngestionError indicates the source file could not be located, read, or
// recognised as the expected delimited-text layout. Fatal to a run.
type IngestionError struct {
	Path    string
	Message string
	Err     error
}

func (e *IngestionError) Error() string {
	msg := fmt.Sprintf("ingestion %s: %s", e.Path, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IngestionError) Unwrap() error { return e.Err }

// SchemaError indicates a referenced column does not exist in the resolved schema.
type SchemaError struct {
	Column  string
	Message string
}

func (e *SchemaError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("schema: column %q not found", e.Column)
	}
	return fmt.Sprintf("schema: column %q: %s", e.Column, e.Message)
}

// ParseError describes a single unparseable field. It is never fatal; the
// normalizer turns it into a Rejection.
type ParseError struct {
	Line   int
	Field  string
	Value  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s %q: %s", e.Line, e.Field, e.Value, e.Reason)
}

// StorageAccessError indicates missing or rejected credentials for a layer location.
type StorageAccessError struct {
	Location string
	Message  string
	Err      error
}

func (e *StorageAccessError) Error() string {
	msg := fmt.Sprintf("storage access %s: %s", e.Location, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StorageAccessError) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrIngestion creates an IngestionError for path, wrapping err (which may be nil).
func ErrIngestion(path string, err error, format string, args ...interface{}) *IngestionError {
	return &IngestionError{Path: path, Message: fmt.Sprintf(format, args...), Err: err}
}

// ErrSchema creates a SchemaError naming the missing column.
func ErrSchema(column string) *SchemaError {
	return &SchemaError{Column: column}
}

// ErrStorageAccess creates a StorageAccessError for location, wrapping err (which may be nil).
func ErrStorageAccess(location string, err error, format string, args ...interface{}) *StorageAccessError {
	return &StorageAccessError{Location: location, Message: fmt.Sprintf(format, args...), Err: err}
}
