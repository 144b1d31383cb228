package deserializer

import (
	"context"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/VanDung-dev/ArrowRow-Engine/data"
	"github.com/VanDung-dev/ArrowRow-Engine/rowdata"
)

var logger = log.New()

// SetLogLevel sets the level of the package logger.
func SetLogLevel(level log.Level) {
	logger.SetLevel(level)
}

// ErrEmptyMessage is returned by Deserialize for a nil or empty message.
var ErrEmptyMessage = errors.New("deserializing message is empty")

// DeserializationError wraps any failure while decoding or converting a
// message.
type DeserializationError struct {
	Cause error
}

// Error implements error.
func (e *DeserializationError) Error() string {
	return "error while deserializing Arrow batch: " + e.Cause.Error()
}

// Unwrap returns the cause.
func (e *DeserializationError) Unwrap() error { return e.Cause }

// Metrics receives per-batch observations. It is satisfied by api.Metrics.
type Metrics interface {
	ObserveBatch(rows int, elapsed time.Duration)
	ObserveFailure(reason string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveBatch(int, time.Duration) {}
func (noopMetrics) ObserveFailure(string)           {}

// Option configures an ArrowRowDataDeserializer.
type Option func(*ArrowRowDataDeserializer)

// WithAllocator sets the allocator used to decode messages.
func WithAllocator(mem memory.Allocator) Option {
	return func(d *ArrowRowDataDeserializer) {
		if mem != nil {
			d.allocator = mem
		}
	}
}

// WithLogger sets the log entry used for per-batch debug output.
func WithLogger(entry *log.Entry) Option {
	return func(d *ArrowRowDataDeserializer) {
		if entry != nil {
			d.log = entry
		}
	}
}

// WithMetrics sets the sink for batch and failure observations.
func WithMetrics(m Metrics) Option {
	return func(d *ArrowRowDataDeserializer) {
		if m != nil {
			d.metrics = m
		}
	}
}

// ArrowRowDataDeserializer turns serialized Arrow IPC batches into rows of
// one logical row type. Configuration is fixed at construction; an instance
// may be used from several goroutines.
type ArrowRowDataDeserializer struct {
	rowType      *rowdata.RowType
	producedType rowdata.TypeInformation
	schema       *arrow.Schema
	converter    *data.RowConverter
	reader       *data.IPCReader

	allocator memory.Allocator
	log       *log.Entry
	metrics   Metrics
}

// New derives the physical schema and the row converter for rowType.
func New(rowType *rowdata.RowType, producedType rowdata.TypeInformation, opts ...Option) (*ArrowRowDataDeserializer, error) {
	if rowType == nil {
		return nil, errors.Wrap(data.ErrSchemaMismatch, "row type is nil")
	}
	d := &ArrowRowDataDeserializer{
		rowType:      rowType,
		producedType: producedType,
		allocator:    memory.DefaultAllocator,
		log:          logger.WithField("component", "deserializer"),
		metrics:      noopMetrics{},
	}
	for _, opt := range opts {
		opt(d)
	}

	schema, err := data.ConvertToSchema(rowType)
	if err != nil {
		return nil, err
	}
	converter, err := data.CreateRowConverter(rowType)
	if err != nil {
		return nil, err
	}
	d.schema = schema
	d.converter = converter
	d.reader = data.NewIPCReader(d.allocator)
	return d, nil
}

// ArrowSchema returns the physical schema derived from the row type.
func (d *ArrowRowDataDeserializer) ArrowSchema() *arrow.Schema { return d.schema }

// ProducedType returns the type information of the emitted rows.
func (d *ArrowRowDataDeserializer) ProducedType() rowdata.TypeInformation { return d.producedType }

// RowType returns the logical row type.
func (d *ArrowRowDataDeserializer) RowType() *rowdata.RowType { return d.rowType }

// IsEndOfStream always reports false; the source is unbounded.
func (d *ArrowRowDataDeserializer) IsEndOfStream(*rowdata.GenericRowData) bool { return false }

// Open is called once before the first message.
func (d *ArrowRowDataDeserializer) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.log.WithFields(log.Fields{
		"rowType": d.rowType.String(),
		"schema":  d.schema.String(),
	}).Info("deserializer opened")
	return nil
}

// DeserializeOne decodes message and returns its first row. A nil or empty
// message yields (nil, nil), as does a batch without rows. Any further rows of
// the batch are dropped.
func (d *ArrowRowDataDeserializer) DeserializeOne(message []byte) (*rowdata.GenericRowData, error) {
	if len(message) == 0 {
		return nil, nil
	}
	var rows []*rowdata.GenericRowData
	err := d.decode(message, func(rec arrow.Record) error {
		var err error
		rows, err = d.converter.Convert(rec)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if len(rows) > 1 {
		d.log.WithField("dropped", len(rows)-1).Debug("single-row deserialize dropped remaining rows")
	}
	return rows[0], nil
}

// Deserialize decodes message and emits every row of every batch to out, in
// stream order. Rows emitted before a failure are not retracted.
func (d *ArrowRowDataDeserializer) Deserialize(message []byte, out Collector) error {
	if len(message) == 0 {
		d.metrics.ObserveFailure(reasonEmpty)
		return ErrEmptyMessage
	}
	var emitErr error
	start := time.Now()
	err := d.reader.Each(message, func(rec arrow.Record) error {
		if emitErr = d.emit(rec, out); emitErr != nil {
			return emitErr
		}
		d.observe(rec, start)
		start = time.Now()
		return nil
	})
	switch {
	case emitErr != nil:
		return d.fail(emitErr)
	case err != nil:
		return d.fail(&decodeError{cause: err})
	}
	return nil
}

// DeserializeRecord emits the rows of an already decoded record to out.
func (d *ArrowRowDataDeserializer) DeserializeRecord(rec arrow.Record, out Collector) error {
	start := time.Now()
	if err := d.emit(rec, out); err != nil {
		return d.fail(err)
	}
	d.observe(rec, start)
	return nil
}

// decode runs fn on the first batch of message.
func (d *ArrowRowDataDeserializer) decode(message []byte, fn func(arrow.Record) error) error {
	start := time.Now()
	rec, err := d.reader.Decode(message)
	if err != nil {
		return d.fail(&decodeError{cause: err})
	}
	defer rec.Release()

	if err := fn(rec); err != nil {
		return d.fail(err)
	}
	d.observe(rec, start)
	return nil
}

func (d *ArrowRowDataDeserializer) emit(rec arrow.Record, out Collector) error {
	return d.converter.ConvertEach(rec, func(row *rowdata.GenericRowData) error {
		if err := out.Collect(row); err != nil {
			return errors.Wrap(err, "collect")
		}
		return nil
	})
}

func (d *ArrowRowDataDeserializer) observe(rec arrow.Record, start time.Time) {
	rows := int(rec.NumRows())
	d.metrics.ObserveBatch(rows, time.Since(start))
	d.log.WithField("rows", rows).Debug("deserialized batch")
}

func (d *ArrowRowDataDeserializer) fail(err error) error {
	reason := FailureReason(err)
	d.metrics.ObserveFailure(reason)
	d.log.WithError(err).WithField("reason", reason).Debug("deserialize failed")
	return &DeserializationError{Cause: err}
}

// Equal reports whether both deserializers derive the same physical schema and
// produce the same type.
func (d *ArrowRowDataDeserializer) Equal(other *ArrowRowDataDeserializer) bool {
	if d == other {
		return true
	}
	if other == nil {
		return false
	}
	return d.schema.Equal(other.schema) && d.producedType.Equal(other.producedType)
}

// Hash is consistent with Equal.
func (d *ArrowRowDataDeserializer) Hash() uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(d.schema.Fingerprint())
	_, _ = h.WriteString(d.producedType.String())
	return h.Sum64()
}
