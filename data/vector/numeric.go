package vector

import (
	"github.com/apache/arrow-go/v18/arrow/array"
)

// TinyIntVector adapts an int8 column.
type TinyIntVector struct{ arrayVector[int8] }

// NewTinyIntVector wraps arr. A nil arr is rejected with ErrNullVector.
func NewTinyIntVector(arr *array.Int8) (*TinyIntVector, error) {
	if arr == nil {
		return nil, nullVector("Int8")
	}
	return &TinyIntVector{arrayVector[int8]{arr}}, nil
}

// GetByte returns the value at row i.
func (v *TinyIntVector) GetByte(i int) int8 { return v.values.Value(i) }

// SmallIntVector adapts an int16 column.
type SmallIntVector struct{ arrayVector[int16] }

// NewSmallIntVector wraps arr. A nil arr is rejected with ErrNullVector.
func NewSmallIntVector(arr *array.Int16) (*SmallIntVector, error) {
	if arr == nil {
		return nil, nullVector("Int16")
	}
	return &SmallIntVector{arrayVector[int16]{arr}}, nil
}

// GetShort returns the value at row i.
func (v *SmallIntVector) GetShort(i int) int16 { return v.values.Value(i) }

// IntVector adapts an int32 column.
type IntVector struct{ arrayVector[int32] }

// NewIntVector wraps arr. A nil arr is rejected with ErrNullVector.
func NewIntVector(arr *array.Int32) (*IntVector, error) {
	if arr == nil {
		return nil, nullVector("Int32")
	}
	return &IntVector{arrayVector[int32]{arr}}, nil
}

// GetInt returns the value at row i.
func (v *IntVector) GetInt(i int) int32 { return v.values.Value(i) }

// BigIntVector adapts an int64 column.
type BigIntVector struct{ arrayVector[int64] }

// NewBigIntVector wraps arr. A nil arr is rejected with ErrNullVector.
func NewBigIntVector(arr *array.Int64) (*BigIntVector, error) {
	if arr == nil {
		return nil, nullVector("Int64")
	}
	return &BigIntVector{arrayVector[int64]{arr}}, nil
}

// GetLong returns the value at row i.
func (v *BigIntVector) GetLong(i int) int64 { return v.values.Value(i) }

// FloatVector adapts a float32 column.
type FloatVector struct{ arrayVector[float32] }

// NewFloatVector wraps arr. A nil arr is rejected with ErrNullVector.
func NewFloatVector(arr *array.Float32) (*FloatVector, error) {
	if arr == nil {
		return nil, nullVector("Float32")
	}
	return &FloatVector{arrayVector[float32]{arr}}, nil
}

// GetFloat returns the value at row i.
func (v *FloatVector) GetFloat(i int) float32 { return v.values.Value(i) }

// DoubleVector adapts a float64 column.
type DoubleVector struct{ arrayVector[float64] }

// NewDoubleVector wraps arr. A nil arr is rejected with ErrNullVector.
func NewDoubleVector(arr *array.Float64) (*DoubleVector, error) {
	if arr == nil {
		return nil, nullVector("Float64")
	}
	return &DoubleVector{arrayVector[float64]{arr}}, nil
}

// GetDouble returns the value at row i.
func (v *DoubleVector) GetDouble(i int) float64 { return v.values.Value(i) }

// BooleanVector adapts a bool column.
type BooleanVector struct{ arrayVector[bool] }

// NewBooleanVector wraps arr. A nil arr is rejected with ErrNullVector.
func NewBooleanVector(arr *array.Boolean) (*BooleanVector, error) {
	if arr == nil {
		return nil, nullVector("Boolean")
	}
	return &BooleanVector{arrayVector[bool]{arr}}, nil
}

// GetBoolean returns the value at row i.
func (v *BooleanVector) GetBoolean(i int) bool { return v.values.Value(i) }

// VarCharVector adapts a utf8 column. Returned strings alias the column buffer.
type VarCharVector struct{ arrayVector[string] }

// NewVarCharVector wraps arr. A nil arr is rejected with ErrNullVector.
func NewVarCharVector(arr *array.String) (*VarCharVector, error) {
	if arr == nil {
		return nil, nullVector("String")
	}
	return &VarCharVector{arrayVector[string]{arr}}, nil
}

// GetString returns the value at row i.
func (v *VarCharVector) GetString(i int) string { return v.values.Value(i) }

// VarBinaryVector adapts a binary column. Returned slices alias the column buffer.
type VarBinaryVector struct{ arrayVector[[]byte] }

// NewVarBinaryVector wraps arr. A nil arr is rejected with ErrNullVector.
func NewVarBinaryVector(arr *array.Binary) (*VarBinaryVector, error) {
	if arr == nil {
		return nil, nullVector("Binary")
	}
	return &VarBinaryVector{arrayVector[[]byte]{arr}}, nil
}

// GetBytes returns the value at row i.
func (v *VarBinaryVector) GetBytes(i int) []byte { return v.values.Value(i) }
