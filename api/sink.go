package api

import (
	"bufio"
	"io"
	"sync"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/VanDung-dev/ArrowRow-Engine/deserializer"
	"github.com/VanDung-dev/ArrowRow-Engine/rowdata"
)

// RowSink receives the rows of every ingested batch. Flush is called once per
// batch after its last row.
type RowSink interface {
	deserializer.Collector
	Flush() error
}

type collectorSink struct {
	deserializer.Collector
}

func (collectorSink) Flush() error { return nil }

// SinkOf adapts a Collector to a RowSink with a no-op Flush.
func SinkOf(c deserializer.Collector) RowSink {
	if s, ok := c.(RowSink); ok {
		return s
	}
	return collectorSink{c}
}

// DiscardSink drops every row.
var DiscardSink RowSink = collectorSink{deserializer.CollectorFunc(func(*rowdata.GenericRowData) error { return nil })}

// JSONLinesSink writes each row as one JSON object per line, keyed by field
// name. Nested rows become nested objects and binary values base64 strings.
type JSONLinesSink struct {
	rowType *rowdata.RowType
	mu      sync.Mutex
	w       *bufio.Writer
}

func NewJSONLinesSink(w io.Writer, rowType *rowdata.RowType) *JSONLinesSink {
	return &JSONLinesSink{rowType: rowType, w: bufio.NewWriter(w)}
}

func (s *JSONLinesSink) Collect(row *rowdata.GenericRowData) error {
	b, err := json.Marshal(RowToMap(s.rowType, row))
	if err != nil {
		return errors.Wrap(err, "failed to encode row")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	return s.w.WriteByte('\n')
}

func (s *JSONLinesSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}

// RowToMap keys the values of row by the field names of rowType.
func RowToMap(rowType *rowdata.RowType, row *rowdata.GenericRowData) map[string]interface{} {
	m := make(map[string]interface{}, rowType.FieldCount())
	for i := 0; i < rowType.FieldCount() && i < row.Arity(); i++ {
		f := rowType.Field(i)
		v := row.Field(i)
		if nested, ok := v.(*rowdata.GenericRowData); ok && f.Type.RowType() != nil {
			m[f.Name] = RowToMap(f.Type.RowType(), nested)
			continue
		}
		m[f.Name] = v
	}
	return m
}
