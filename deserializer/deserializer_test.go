package deserializer

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/ArrowRow-Engine/data"
	"github.com/VanDung-dev/ArrowRow-Engine/rowdata"
)

func idTimeType() *rowdata.RowType {
	return rowdata.MustRowType(
		rowdata.NewField("id", rowdata.BigInt()),
		rowdata.NewField("ts", rowdata.Time(6)),
	)
}

func newDeserializer(t *testing.T, rt *rowdata.RowType, opts ...Option) *ArrowRowDataDeserializer {
	t.Helper()
	d, err := New(rt, rowdata.InternalTypeInfo(rt), opts...)
	require.NoError(t, err)
	return d
}

// encode builds one IPC batch of schema with the given id and ts values.
func encode(t *testing.T, schema *arrow.Schema, ids []int64, ts []int64) []byte {
	t.Helper()
	rec := buildRecord(schema, ids, ts)
	defer rec.Release()

	payload, err := data.NewIPCWriter(nil).Serialize(rec)
	require.NoError(t, err)
	return payload
}

// encodeBatches writes one IPC stream carrying a batch per ids slice, with ts
// set to zero.
func encodeBatches(t *testing.T, schema *arrow.Schema, ids ...[]int64) []byte {
	t.Helper()
	records := make([]arrow.Record, 0, len(ids))
	for _, batch := range ids {
		rec := buildRecord(schema, batch, make([]int64, len(batch)))
		defer rec.Release()
		records = append(records, rec)
	}

	payload, err := data.NewIPCWriter(nil).SerializeAll(records)
	require.NoError(t, err)
	return payload
}

func buildRecord(schema *arrow.Schema, ids []int64, ts []int64) arrow.Record {
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).AppendValues(ids, nil)
	tb := b.Field(1).(*array.Time64Builder)
	for _, v := range ts {
		tb.Append(arrow.Time64(v))
	}
	return b.NewRecord()
}

func collectedIDs(out *ListCollector) []int64 {
	var ids []int64
	for _, row := range out.Rows() {
		ids = append(ids, row.GetLong(0))
	}
	return ids
}

type recordingMetrics struct {
	mu       sync.Mutex
	batches  int
	rows     int
	failures []string
}

func (m *recordingMetrics) ObserveBatch(rows int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	m.rows += rows
}

func (m *recordingMetrics) ObserveFailure(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, reason)
}

func TestDeserializeBatch(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	metrics := &recordingMetrics{}
	d := newDeserializer(t, idTimeType(), WithAllocator(mem), WithMetrics(metrics))
	require.NoError(t, d.Open(context.Background()))

	payload := encode(t, d.ArrowSchema(), []int64{42, 43}, []int64{3_661_000_000, 1_500})

	var out ListCollector
	require.NoError(t, d.Deserialize(payload, &out))

	rows := out.Rows()
	require.Len(t, rows, 2)
	assert.True(t, rowdata.GenericRowOf(int64(42), int32(3_661_000)).Equal(rows[0]), "got %s", rows[0])
	assert.True(t, rowdata.GenericRowOf(int64(43), int32(1)).Equal(rows[1]), "got %s", rows[1])

	assert.Equal(t, 1, metrics.batches)
	assert.Equal(t, 2, metrics.rows)
	assert.Empty(t, metrics.failures)
}

func TestDeserializeEmptyMessage(t *testing.T) {
	metrics := &recordingMetrics{}
	d := newDeserializer(t, idTimeType(), WithMetrics(metrics))

	var out ListCollector
	err := d.Deserialize(nil, &out)
	assert.Equal(t, ErrEmptyMessage, err)
	assert.Equal(t, ErrEmptyMessage, d.Deserialize([]byte{}, &out))
	assert.Equal(t, 0, out.Len())
	assert.Equal(t, []string{reasonEmpty, reasonEmpty}, metrics.failures)

	row, err := d.DeserializeOne(nil)
	assert.NoError(t, err)
	assert.Nil(t, row)

	row, err = d.DeserializeOne([]byte{})
	assert.NoError(t, err)
	assert.Nil(t, row)
}

func TestDeserializeOne(t *testing.T) {
	d := newDeserializer(t, idTimeType())

	row, err := d.DeserializeOne(encode(t, d.ArrowSchema(), []int64{1, 2, 3}, []int64{0, 0, 0}))
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(1), row.GetLong(0))

	schemaOnly, err := data.NewIPCWriter(nil).SerializeSchema(d.ArrowSchema())
	require.NoError(t, err)
	row, err = d.DeserializeOne(schemaOnly)
	require.NoError(t, err)
	assert.Nil(t, row)

	var out ListCollector
	require.NoError(t, d.Deserialize(schemaOnly, &out))
	assert.Equal(t, 0, out.Len())
}

func TestDeserializeMalformed(t *testing.T) {
	metrics := &recordingMetrics{}
	d := newDeserializer(t, idTimeType(), WithMetrics(metrics))

	var out ListCollector
	err := d.Deserialize([]byte("not an arrow stream"), &out)
	require.Error(t, err)

	var de *DeserializationError
	require.True(t, errors.As(err, &de))
	var decErr *decodeError
	assert.True(t, errors.As(err, &decErr))
	assert.Equal(t, []string{reasonDecode}, metrics.failures)

	_, err = d.DeserializeOne([]byte("not an arrow stream"))
	assert.True(t, errors.As(err, &de))
}

func TestDeserializeTruncated(t *testing.T) {
	metrics := &recordingMetrics{}
	d := newDeserializer(t, idTimeType(), WithMetrics(metrics))
	payload := encode(t, d.ArrowSchema(), []int64{1, 2, 3}, []int64{0, 0, 0})
	// drop the end-of-stream marker and the tail of the batch body
	truncated := payload[:len(payload)-16]

	var out ListCollector
	err := d.Deserialize(truncated, &out)
	require.Error(t, err)

	var de *DeserializationError
	require.True(t, errors.As(err, &de))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF), "got %v", err)
	assert.Contains(t, err.Error(), "IPC decode failed: ")
	assert.Equal(t, reasonDecode, FailureReason(err))
	assert.Equal(t, []string{reasonDecode}, metrics.failures)
	assert.Equal(t, 0, out.Len())

	_, err = d.DeserializeOne(truncated)
	require.True(t, errors.As(err, &de))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF), "got %v", err)
}

func TestDeserializeMultipleBatches(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	metrics := &recordingMetrics{}
	d := newDeserializer(t, idTimeType(), WithAllocator(mem), WithMetrics(metrics))
	payload := encodeBatches(t, d.ArrowSchema(), []int64{1}, []int64{2, 3}, []int64{4})

	var out ListCollector
	require.NoError(t, d.Deserialize(payload, &out))
	assert.Equal(t, []int64{1, 2, 3, 4}, collectedIDs(&out))
	assert.Equal(t, 3, metrics.batches)
	assert.Equal(t, 4, metrics.rows)
	assert.Empty(t, metrics.failures)

	// the single-row path reads the first batch only
	row, err := d.DeserializeOne(payload)
	require.NoError(t, err)
	assert.Equal(t, int64(1), row.GetLong(0))
}

func TestDeserializeLaterBatchFailure(t *testing.T) {
	metrics := &recordingMetrics{}
	d := newDeserializer(t, idTimeType(), WithMetrics(metrics))
	payload := encodeBatches(t, d.ArrowSchema(), []int64{1}, []int64{2, 3}, []int64{4, 5, 6, 7})

	var out ListCollector
	err := d.Deserialize(payload[:len(payload)-16], &out)
	require.Error(t, err)

	var de *DeserializationError
	require.True(t, errors.As(err, &de))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF), "got %v", err)
	assert.Equal(t, []int64{1, 2, 3}, collectedIDs(&out))
	assert.Equal(t, 2, metrics.batches)
	assert.Equal(t, []string{reasonDecode}, metrics.failures)
}

func TestDeserializeCollectFailureInLaterBatch(t *testing.T) {
	d := newDeserializer(t, idTimeType())
	payload := encodeBatches(t, d.ArrowSchema(), []int64{1, 2}, []int64{3, 4})

	full := errors.New("sink full")
	var seen []int64
	err := d.Deserialize(payload, CollectorFunc(func(row *rowdata.GenericRowData) error {
		if row.GetLong(0) == 4 {
			return full
		}
		seen = append(seen, row.GetLong(0))
		return nil
	}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, full))
	assert.Equal(t, reasonOther, FailureReason(err))
	assert.Equal(t, []int64{1, 2, 3}, seen)
}

func TestDeserializeRenamedField(t *testing.T) {
	metrics := &recordingMetrics{}
	d := newDeserializer(t, idTimeType(), WithMetrics(metrics))

	renamed := arrow.NewSchema([]arrow.Field{
		{Name: "price", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "elapsed", Type: arrow.FixedWidthTypes.Time64us, Nullable: true},
	}, nil)
	payload := encode(t, renamed, []int64{1}, []int64{0})

	var out ListCollector
	err := d.Deserialize(payload, &out)
	require.Error(t, err)

	var de *DeserializationError
	require.True(t, errors.As(err, &de))
	assert.True(t, errors.Is(err, data.ErrSchemaMismatch))
	assert.Equal(t, []string{reasonSchema}, metrics.failures)
	assert.Equal(t, 0, out.Len())

	_, err = d.DeserializeOne(payload)
	assert.True(t, errors.Is(err, data.ErrSchemaMismatch))
}

func TestDeserializeSchemaMismatch(t *testing.T) {
	d := newDeserializer(t, idTimeType())

	// a batch of a single BIGINT column
	other := rowdata.MustRowType(rowdata.NewField("id", rowdata.BigInt()))
	schema, err := data.ConvertToSchema(other)
	require.NoError(t, err)
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	b.Field(0).(*array.Int64Builder).Append(1)
	rec := b.NewRecord()
	b.Release()
	payload, err := data.NewIPCWriter(nil).Serialize(rec)
	rec.Release()
	require.NoError(t, err)

	var out ListCollector
	err = d.Deserialize(payload, &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, data.ErrSchemaMismatch))
	assert.Equal(t, reasonSchema, FailureReason(err))
}

func TestDeserializePartialEmission(t *testing.T) {
	d := newDeserializer(t, idTimeType())
	payload := encode(t, d.ArrowSchema(), []int64{1, 2, 3}, []int64{0, 0, 0})

	full := errors.New("sink full")
	var seen []int64
	err := d.Deserialize(payload, CollectorFunc(func(row *rowdata.GenericRowData) error {
		if len(seen) == 2 {
			return full
		}
		seen = append(seen, row.GetLong(0))
		return nil
	}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, full))
	assert.Equal(t, []int64{1, 2}, seen)
}

func TestDeserializeRecord(t *testing.T) {
	d := newDeserializer(t, idTimeType())
	payload := encode(t, d.ArrowSchema(), []int64{9}, []int64{2_000})

	rec, err := data.NewIPCReader(nil).Decode(payload)
	require.NoError(t, err)
	defer rec.Release()

	var out ListCollector
	require.NoError(t, d.DeserializeRecord(rec, &out))
	require.Equal(t, 1, out.Len())
	assert.Equal(t, int32(2), out.Rows()[0].GetInt(1))
}

func TestDeserializeNestedNull(t *testing.T) {
	rt, err := rowdata.ParseRowType("ROW<outer ROW<inner BIGINT>>")
	require.NoError(t, err)
	d := newDeserializer(t, rt)

	b := array.NewRecordBuilder(memory.DefaultAllocator, d.ArrowSchema())
	sb := b.Field(0).(*array.StructBuilder)
	ib := sb.FieldBuilder(0).(*array.Int64Builder)
	sb.Append(true)
	ib.Append(1)
	sb.Append(true)
	ib.Append(2)
	sb.AppendNull()
	rec := b.NewRecord()
	b.Release()
	payload, err := data.NewIPCWriter(nil).Serialize(rec)
	rec.Release()
	require.NoError(t, err)

	var out ListCollector
	require.NoError(t, d.Deserialize(payload, &out))
	rows := out.Rows()
	require.Len(t, rows, 3)
	assert.Nil(t, rows[2].Field(0))
	assert.True(t, rowdata.GenericRowOf(rowdata.GenericRowOf(int64(2))).Equal(rows[1]))
}

func TestNewUnsupportedType(t *testing.T) {
	rt := rowdata.MustRowType(rowdata.NewField("amount", rowdata.Decimal()))
	_, err := New(rt, rowdata.InternalTypeInfo(rt))
	require.Error(t, err)
	assert.True(t, errors.Is(err, data.ErrUnsupportedLogicalType))

	_, err = New(nil, rowdata.TypeInformation{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, data.ErrSchemaMismatch))
}

func TestEqualAndHash(t *testing.T) {
	a := newDeserializer(t, idTimeType())
	b := newDeserializer(t, idTimeType())

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())
	assert.False(t, a.Equal(nil))

	renamed, err := New(idTimeType(), rowdata.NamedTypeInfo("events", idTimeType()))
	require.NoError(t, err)
	assert.False(t, a.Equal(renamed))
	assert.NotEqual(t, a.Hash(), renamed.Hash())

	other := newDeserializer(t, rowdata.MustRowType(rowdata.NewField("id", rowdata.BigInt())))
	assert.False(t, a.Equal(other))
}

func TestAccessors(t *testing.T) {
	rt := idTimeType()
	d := newDeserializer(t, rt)

	assert.True(t, rt.Equal(d.RowType()))
	assert.True(t, rowdata.InternalTypeInfo(rt).Equal(d.ProducedType()))
	assert.Equal(t, 2, d.ArrowSchema().NumFields())
	assert.False(t, d.IsEndOfStream(rowdata.GenericRowOf(int64(1))))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, d.Open(ctx))
}

func TestConcurrentDeserialize(t *testing.T) {
	d := newDeserializer(t, idTimeType())
	payload := encode(t, d.ArrowSchema(), []int64{1, 2, 3, 4}, []int64{0, 1000, 2000, 3000})

	var out ListCollector
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, d.Deserialize(payload, &out))
		}()
	}
	wg.Wait()
	assert.Equal(t, 32, out.Len())
}

// FuzzDeserialize checks that arbitrary input never panics.
// Run with: go test -fuzz=FuzzDeserialize -fuzztime=30s ./deserializer/
func FuzzDeserialize(f *testing.F) {
	rt := idTimeType()
	d, err := New(rt, rowdata.InternalTypeInfo(rt))
	if err != nil {
		f.Fatalf("new: %v", err)
	}

	b := array.NewRecordBuilder(memory.DefaultAllocator, d.ArrowSchema())
	b.Field(0).(*array.Int64Builder).Append(42)
	b.Field(1).(*array.Time64Builder).Append(3_661_000_000)
	rec := b.NewRecord()
	b.Release()
	valid, err := data.NewIPCWriter(nil).Serialize(rec)
	rec.Release()
	if err != nil {
		f.Fatalf("serialize: %v", err)
	}

	f.Add(valid)
	f.Add([]byte{})
	f.Add([]byte{0xff, 0xff, 0xff, 0xff})

	f.Fuzz(func(t *testing.T, msg []byte) {
		_ = d.Deserialize(msg, CollectorFunc(func(*rowdata.GenericRowData) error { return nil }))
		_, _ = d.DeserializeOne(msg)
	})
}
