package vector

import (
	"github.com/pkg/errors"
)

// Adapter construction errors.
var (
	ErrNullVector            = errors.New("column vector is nil")
	ErrUnsupportedVectorType = errors.New("unsupported vector type")
)

func nullVector(kind string) error {
	return errors.Wrapf(ErrNullVector, "%s array is nil", kind)
}

// ColumnVector is positional, null-aware access to one column. Indexes must be
// in [0, rowCount) of the batch the vector was built from.
type ColumnVector interface {
	IsNullAt(i int) bool
}

// ByteColumnVector reads int8 values.
type ByteColumnVector interface {
	ColumnVector
	GetByte(i int) int8
}

// ShortColumnVector reads int16 values.
type ShortColumnVector interface {
	ColumnVector
	GetShort(i int) int16
}

// IntColumnVector reads int32 values.
type IntColumnVector interface {
	ColumnVector
	GetInt(i int) int32
}

// LongColumnVector reads int64 values.
type LongColumnVector interface {
	ColumnVector
	GetLong(i int) int64
}

// FloatColumnVector reads float32 values.
type FloatColumnVector interface {
	ColumnVector
	GetFloat(i int) float32
}

// DoubleColumnVector reads float64 values.
type DoubleColumnVector interface {
	ColumnVector
	GetDouble(i int) float64
}

// BooleanColumnVector reads bool values.
type BooleanColumnVector interface {
	ColumnVector
	GetBoolean(i int) bool
}

// StringColumnVector reads string values.
type StringColumnVector interface {
	ColumnVector
	GetString(i int) string
}

// BytesColumnVector reads []byte values.
type BytesColumnVector interface {
	ColumnVector
	GetBytes(i int) []byte
}

// RowColumnVector reads nested rows of a struct column.
type RowColumnVector interface {
	ColumnVector
	GetRow(i int) *ColumnarRowData
}

// valueArray is the subset of the arrow typed arrays used by the leaf adapters.
type valueArray[T any] interface {
	IsNull(i int) bool
	Value(i int) T
}

type arrayVector[T any] struct {
	values valueArray[T]
}

func (v *arrayVector[T]) IsNullAt(i int) bool {
	return v.values.IsNull(i)
}
