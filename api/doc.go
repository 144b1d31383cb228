// Package api exposes the ingest transports of the engine.
// This package implements:
// - A length-prefixed TCP server for Arrow IPC batches with token auth
// - An Arrow Flight DoPut ingest server
// - Row sinks and Prometheus metrics
package api
