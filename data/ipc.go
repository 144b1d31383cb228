package data

import (
	"bytes"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/pkg/errors"
)

var (
	ErrNoRecords  = errors.New("no records to serialize")
	ErrEmptyInput = errors.New("empty IPC input")
)

// IPCReader decodes Arrow IPC stream bytes into record batches.
type IPCReader struct {
	allocator memory.Allocator
	schema    *arrow.Schema
}

// NewIPCReader creates a reader backed by mem, or memory.DefaultAllocator if
// mem is nil.
func NewIPCReader(mem memory.Allocator) *IPCReader {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &IPCReader{allocator: mem}
}

// WithSchema returns a copy of the reader that rejects streams whose schema
// differs from schema.
func (r *IPCReader) WithSchema(schema *arrow.Schema) *IPCReader {
	return &IPCReader{allocator: r.allocator, schema: schema}
}

func (r *IPCReader) open(data []byte) (*ipc.Reader, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	opts := []ipc.Option{ipc.WithAllocator(r.allocator)}
	if r.schema != nil {
		opts = append(opts, ipc.WithSchema(r.schema))
	}
	reader, err := ipc.NewReader(bytes.NewReader(data), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create reader")
	}
	return reader, nil
}

// Decode returns the first record batch of the stream. A stream carrying a
// schema but no batches yields an empty record of that schema. The caller
// releases the record.
func (r *IPCReader) Decode(data []byte) (arrow.Record, error) {
	reader, err := r.open(data)
	if err != nil {
		return nil, err
	}
	defer reader.Release()

	if !reader.Next() {
		if reader.Err() != nil {
			return nil, errors.Wrap(reader.Err(), "failed to read record")
		}
		return emptyRecord(r.allocator, reader.Schema()), nil
	}

	record := reader.Record()
	record.Retain()
	return record, nil
}

// DecodeAll returns every record batch of the stream in order. The caller
// releases each record.
func (r *IPCReader) DecodeAll(data []byte) ([]arrow.Record, error) {
	reader, err := r.open(data)
	if err != nil {
		return nil, err
	}
	defer reader.Release()

	var records []arrow.Record
	for reader.Next() {
		record := reader.Record()
		record.Retain()
		records = append(records, record)
	}

	if reader.Err() != nil {
		for _, rec := range records {
			rec.Release()
		}
		return nil, errors.Wrap(reader.Err(), "failed to read record")
	}

	return records, nil
}

// Each calls fn with every record batch of the stream in order, stopping at
// the first error. A record is only valid during its call; fn retains it to
// keep it longer. Errors from fn are returned unchanged.
func (r *IPCReader) Each(data []byte, fn func(arrow.Record) error) error {
	reader, err := r.open(data)
	if err != nil {
		return err
	}
	defer reader.Release()

	for reader.Next() {
		if err := fn(reader.Record()); err != nil {
			return err
		}
	}
	if reader.Err() != nil {
		return errors.Wrap(reader.Err(), "failed to read record")
	}
	return nil
}

func emptyRecord(mem memory.Allocator, schema *arrow.Schema) arrow.Record {
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	return b.NewRecord()
}

// IPCWriter encodes record batches as Arrow IPC stream bytes.
type IPCWriter struct {
	allocator memory.Allocator
}

// NewIPCWriter creates a writer backed by mem, or memory.DefaultAllocator if
// mem is nil.
func NewIPCWriter(mem memory.Allocator) *IPCWriter {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &IPCWriter{allocator: mem}
}

// Serialize encodes one record as a complete IPC stream.
func (w *IPCWriter) Serialize(record arrow.Record) ([]byte, error) {
	if record == nil {
		return nil, ErrNoRecords
	}
	return w.SerializeAll([]arrow.Record{record})
}

// SerializeAll encodes records, which must share a schema, as one IPC stream.
func (w *IPCWriter) SerializeAll(records []arrow.Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	return w.write(records[0].Schema(), records)
}

// SerializeSchema encodes a stream with schema and no batches.
func (w *IPCWriter) SerializeSchema(schema *arrow.Schema) ([]byte, error) {
	return w.write(schema, nil)
}

func (w *IPCWriter) write(schema *arrow.Schema, records []arrow.Record) ([]byte, error) {
	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(w.allocator))

	for i, record := range records {
		if err := writer.Write(record); err != nil {
			writer.Close()
			return nil, errors.Wrapf(err, "failed to write record %d", i)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close writer")
	}

	return buf.Bytes(), nil
}
