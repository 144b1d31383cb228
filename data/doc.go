// Package data converts between logical row types and Arrow data.
// This package implements:
// - Logical row type to Arrow schema conversion (and back)
// - Record batch to GenericRowData conversion
// - Arrow IPC stream decoding and encoding
package data
