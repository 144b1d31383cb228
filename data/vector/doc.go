// Package vector exposes Arrow arrays as positional, null-aware column vectors.
// Adapters never copy column data; they are valid only while the record they
// were built from is retained.
package vector
