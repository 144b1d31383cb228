package vector

import (
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/pkg/errors"

	"github.com/VanDung-dev/ArrowRow-Engine/rowdata"
)

// VectorizedColumnBatch is a set of column vectors sharing one row count.
type VectorizedColumnBatch struct {
	columns []ColumnVector
	numRows int
}

// NewVectorizedColumnBatch groups columns that all hold numRows rows.
func NewVectorizedColumnBatch(columns []ColumnVector, numRows int) *VectorizedColumnBatch {
	return &VectorizedColumnBatch{columns: columns, numRows: numRows}
}

// Arity returns the number of columns.
func (b *VectorizedColumnBatch) Arity() int { return len(b.columns) }

// NumRows returns the shared row count.
func (b *VectorizedColumnBatch) NumRows() int { return b.numRows }

// Column returns column i.
func (b *VectorizedColumnBatch) Column(i int) ColumnVector { return b.columns[i] }

// Row returns a view of row rowID.
func (b *VectorizedColumnBatch) Row(rowID int) *ColumnarRowData {
	return &ColumnarRowData{batch: b, rowID: rowID}
}

// RowVector adapts a struct column. Child vectors are addressed with the same
// index as the struct itself.
type RowVector struct {
	structArr *array.Struct
	fields    *VectorizedColumnBatch
}

// NewRowVector wraps arr with one child vector per struct field.
func NewRowVector(arr *array.Struct, fieldColumns []ColumnVector) (*RowVector, error) {
	if arr == nil {
		return nil, nullVector("Struct")
	}
	if fieldColumns == nil {
		return nil, errors.Wrap(ErrNullVector, "struct field vectors are nil")
	}
	if arr.NumField() != len(fieldColumns) {
		return nil, errors.Wrapf(ErrUnsupportedVectorType,
			"struct has %d fields but %d field vectors were given", arr.NumField(), len(fieldColumns))
	}
	return &RowVector{
		structArr: arr,
		fields:    NewVectorizedColumnBatch(fieldColumns, arr.Len()),
	}, nil
}

// IsNullAt reports struct-level nullness only. Children of a null struct may
// still hold values.
func (v *RowVector) IsNullAt(i int) bool { return v.structArr.IsNull(i) }

// GetRow returns a view bound to i over the child vectors. No data is copied;
// the view is valid only while the underlying record is alive.
func (v *RowVector) GetRow(i int) *ColumnarRowData { return v.fields.Row(i) }

// Fields returns the batch of child vectors.
func (v *RowVector) Fields() *VectorizedColumnBatch { return v.fields }

// ColumnarRowData is a rowdata.RowData view of one row of a VectorizedColumnBatch.
type ColumnarRowData struct {
	batch *VectorizedColumnBatch
	rowID int
}

var _ rowdata.RowData = (*ColumnarRowData)(nil)

// NewColumnarRowData returns a view of row rowID of batch.
func NewColumnarRowData(batch *VectorizedColumnBatch, rowID int) *ColumnarRowData {
	return &ColumnarRowData{batch: batch, rowID: rowID}
}

// RowID returns the row the view is bound to.
func (r *ColumnarRowData) RowID() int { return r.rowID }

// SetRowID rebinds the view to another row of the same batch.
func (r *ColumnarRowData) SetRowID(rowID int) { r.rowID = rowID }

// Arity returns the number of fields.
func (r *ColumnarRowData) Arity() int { return r.batch.Arity() }

// IsNullAt reports whether field pos is null.
func (r *ColumnarRowData) IsNullAt(pos int) bool {
	return r.batch.columns[pos].IsNullAt(r.rowID)
}

// GetByte returns field pos of the bound row.
func (r *ColumnarRowData) GetByte(pos int) int8 {
	return r.batch.columns[pos].(ByteColumnVector).GetByte(r.rowID)
}

// GetShort returns field pos of the bound row.
func (r *ColumnarRowData) GetShort(pos int) int16 {
	return r.batch.columns[pos].(ShortColumnVector).GetShort(r.rowID)
}

// GetInt returns field pos of the bound row.
func (r *ColumnarRowData) GetInt(pos int) int32 {
	return r.batch.columns[pos].(IntColumnVector).GetInt(r.rowID)
}

// GetLong returns field pos of the bound row.
func (r *ColumnarRowData) GetLong(pos int) int64 {
	return r.batch.columns[pos].(LongColumnVector).GetLong(r.rowID)
}

// GetFloat returns field pos of the bound row.
func (r *ColumnarRowData) GetFloat(pos int) float32 {
	return r.batch.columns[pos].(FloatColumnVector).GetFloat(r.rowID)
}

// GetDouble returns field pos of the bound row.
func (r *ColumnarRowData) GetDouble(pos int) float64 {
	return r.batch.columns[pos].(DoubleColumnVector).GetDouble(r.rowID)
}

// GetBoolean returns field pos of the bound row.
func (r *ColumnarRowData) GetBoolean(pos int) bool {
	return r.batch.columns[pos].(BooleanColumnVector).GetBoolean(r.rowID)
}

// GetString returns field pos of the bound row.
func (r *ColumnarRowData) GetString(pos int) string {
	return r.batch.columns[pos].(StringColumnVector).GetString(r.rowID)
}

// GetBinary returns field pos of the bound row.
func (r *ColumnarRowData) GetBinary(pos int) []byte {
	return r.batch.columns[pos].(BytesColumnVector).GetBytes(r.rowID)
}

// GetRow returns the nested row of field pos. numFields is implied by the
// child vectors.
func (r *ColumnarRowData) GetRow(pos int, numFields int) rowdata.RowData {
	return r.batch.columns[pos].(RowColumnVector).GetRow(r.rowID)
}
