// Package rowdata provides the row-oriented logical model consumed by the
// stream-processing engine.
// This package implements:
// - Logical types and ordered row types
// - A parser for SQL-style row type strings
// - GenericRowData, the boxed row value handed to consumers
package rowdata
