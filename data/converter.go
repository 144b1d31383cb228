package data

import (
	"bytes"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/VanDung-dev/ArrowRow-Engine/data/vector"
	"github.com/VanDung-dev/ArrowRow-Engine/rowdata"
)

var logger = log.New()

// SetLogLevel sets the level of the package logger.
func SetLogLevel(level log.Level) {
	logger.SetLevel(level)
}

// fieldConverter reads the value at pos of row as its boxed row value. It is
// only called for non-null positions.
type fieldConverter func(row rowdata.RowData, pos int) interface{}

// RowConverter turns Arrow record batches of one row type into GenericRowData
// rows. It holds no per-batch state and is safe for concurrent use.
type RowConverter struct {
	rowType    *rowdata.RowType
	converters []fieldConverter
}

// CreateRowConverter builds the per-field converters for rowType.
func CreateRowConverter(rowType *rowdata.RowType) (*RowConverter, error) {
	if rowType == nil {
		return nil, errors.Wrap(ErrSchemaMismatch, "row type is nil")
	}
	converters, err := createFieldConverters(rowType, "")
	if err != nil {
		return nil, err
	}
	return &RowConverter{rowType: rowType, converters: converters}, nil
}

func createFieldConverters(rowType *rowdata.RowType, prefix string) ([]fieldConverter, error) {
	converters := make([]fieldConverter, rowType.FieldCount())
	for i := 0; i < rowType.FieldCount(); i++ {
		f := rowType.Field(i)
		c, err := createFieldConverter(f.Type, prefix+f.Name)
		if err != nil {
			return nil, err
		}
		converters[i] = c
	}
	return converters, nil
}

func createFieldConverter(t rowdata.LogicalType, path string) (fieldConverter, error) {
	switch t.Root() {
	case rowdata.TinyIntRoot:
		return func(row rowdata.RowData, pos int) interface{} { return row.GetByte(pos) }, nil
	case rowdata.SmallIntRoot:
		return func(row rowdata.RowData, pos int) interface{} { return row.GetShort(pos) }, nil
	case rowdata.IntegerRoot, rowdata.DateRoot, rowdata.TimeRoot:
		return func(row rowdata.RowData, pos int) interface{} { return row.GetInt(pos) }, nil
	case rowdata.BigIntRoot:
		return func(row rowdata.RowData, pos int) interface{} { return row.GetLong(pos) }, nil
	case rowdata.FloatRoot:
		return func(row rowdata.RowData, pos int) interface{} { return row.GetFloat(pos) }, nil
	case rowdata.DoubleRoot:
		return func(row rowdata.RowData, pos int) interface{} { return row.GetDouble(pos) }, nil
	case rowdata.BooleanRoot:
		return func(row rowdata.RowData, pos int) interface{} { return row.GetBoolean(pos) }, nil
	case rowdata.VarCharRoot:
		// adapters alias the record buffers, rows must outlive the record
		return func(row rowdata.RowData, pos int) interface{} { return strings.Clone(row.GetString(pos)) }, nil
	case rowdata.VarBinaryRoot:
		return func(row rowdata.RowData, pos int) interface{} {
			b := row.GetBinary(pos)
			if b == nil {
				return []byte{}
			}
			return bytes.Clone(b)
		}, nil
	case rowdata.RowRoot:
		nestedType := t.RowType()
		children, err := createFieldConverters(nestedType, path+".")
		if err != nil {
			return nil, err
		}
		arity := nestedType.FieldCount()
		return func(row rowdata.RowData, pos int) interface{} {
			return convertRow(row.GetRow(pos, arity), children)
		}, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedLogicalType, "field %q has type %s", path, t)
	}
}

func convertRow(row rowdata.RowData, converters []fieldConverter) *rowdata.GenericRowData {
	out := rowdata.NewGenericRowData(len(converters))
	for pos, c := range converters {
		if row.IsNullAt(pos) {
			continue
		}
		out.SetField(pos, c(row, pos))
	}
	return out
}

// RowType returns the row type the converter was built for.
func (c *RowConverter) RowType() *rowdata.RowType { return c.rowType }

// Convert returns one row per record row, in record order. The returned rows
// own their data and stay valid after the record is released.
func (c *RowConverter) Convert(record arrow.Record) ([]*rowdata.GenericRowData, error) {
	batch, err := c.Adapt(record)
	if err != nil {
		return nil, err
	}
	return c.ConvertVectors(batch)
}

// ConvertEach is the streaming form of Convert. It stops at the first error
// returned by emit.
func (c *RowConverter) ConvertEach(record arrow.Record, emit func(*rowdata.GenericRowData) error) error {
	batch, err := c.Adapt(record)
	if err != nil {
		return err
	}
	return c.eachRow(batch, emit)
}

// ConvertVectors converts an already adapted batch.
func (c *RowConverter) ConvertVectors(batch *vector.VectorizedColumnBatch) ([]*rowdata.GenericRowData, error) {
	if batch == nil {
		return nil, errors.Wrap(ErrSchemaMismatch, "column batch is nil")
	}
	rows := make([]*rowdata.GenericRowData, 0, batch.NumRows())
	err := c.eachRow(batch, func(row *rowdata.GenericRowData) error {
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *RowConverter) eachRow(batch *vector.VectorizedColumnBatch, emit func(*rowdata.GenericRowData) error) error {
	if batch.Arity() != len(c.converters) {
		return errors.Wrapf(ErrSchemaMismatch, "batch has %d columns, row type has %d fields",
			batch.Arity(), len(c.converters))
	}
	view := vector.NewColumnarRowData(batch, 0)
	for i := 0; i < batch.NumRows(); i++ {
		view.SetRowID(i)
		if err := emit(convertRow(view, c.converters)); err != nil {
			return err
		}
	}
	logger.WithFields(log.Fields{"rows": batch.NumRows(), "columns": batch.Arity()}).Debug("converted batch")
	return nil
}

// Adapt checks column names against the row type, including struct children,
// and wraps every column of record in the adapter matching its field type.
func (c *RowConverter) Adapt(record arrow.Record) (*vector.VectorizedColumnBatch, error) {
	if record == nil {
		return nil, errors.Wrap(ErrSchemaMismatch, "record is nil")
	}
	if int(record.NumCols()) != c.rowType.FieldCount() {
		return nil, errors.Wrapf(ErrSchemaMismatch, "record has %d columns, row type has %d fields",
			record.NumCols(), c.rowType.FieldCount())
	}
	schema := record.Schema()
	columns := make([]vector.ColumnVector, c.rowType.FieldCount())
	for i := range columns {
		f := c.rowType.Field(i)
		if name := schema.Field(i).Name; name != f.Name {
			return nil, errors.Wrapf(ErrSchemaMismatch, "column %d is named %q, row type expects %q", i, name, f.Name)
		}
		v, err := createColumnVector(record.Column(i), f.Type, f.Name)
		if err != nil {
			return nil, err
		}
		columns[i] = v
	}
	return vector.NewVectorizedColumnBatch(columns, int(record.NumRows())), nil
}

func createColumnVector(arr arrow.Array, t rowdata.LogicalType, path string) (vector.ColumnVector, error) {
	if arr == nil {
		return nil, errors.Wrapf(vector.ErrNullVector, "field %q", path)
	}
	return adaptArray(arr, t, path)
}

func adaptArray(arr arrow.Array, t rowdata.LogicalType, path string) (vector.ColumnVector, error) {
	mismatch := func() error {
		return errors.Wrapf(vector.ErrUnsupportedVectorType, "field %q: %s column for %s field", path, arr.DataType(), t)
	}
	switch t.Root() {
	case rowdata.TinyIntRoot:
		a, ok := arr.(*array.Int8)
		if !ok {
			return nil, mismatch()
		}
		return vector.NewTinyIntVector(a)
	case rowdata.SmallIntRoot:
		a, ok := arr.(*array.Int16)
		if !ok {
			return nil, mismatch()
		}
		return vector.NewSmallIntVector(a)
	case rowdata.IntegerRoot:
		a, ok := arr.(*array.Int32)
		if !ok {
			return nil, mismatch()
		}
		return vector.NewIntVector(a)
	case rowdata.BigIntRoot:
		a, ok := arr.(*array.Int64)
		if !ok {
			return nil, mismatch()
		}
		return vector.NewBigIntVector(a)
	case rowdata.FloatRoot:
		a, ok := arr.(*array.Float32)
		if !ok {
			return nil, mismatch()
		}
		return vector.NewFloatVector(a)
	case rowdata.DoubleRoot:
		a, ok := arr.(*array.Float64)
		if !ok {
			return nil, mismatch()
		}
		return vector.NewDoubleVector(a)
	case rowdata.BooleanRoot:
		a, ok := arr.(*array.Boolean)
		if !ok {
			return nil, mismatch()
		}
		return vector.NewBooleanVector(a)
	case rowdata.VarCharRoot:
		a, ok := arr.(*array.String)
		if !ok {
			return nil, mismatch()
		}
		return vector.NewVarCharVector(a)
	case rowdata.VarBinaryRoot:
		a, ok := arr.(*array.Binary)
		if !ok {
			return nil, mismatch()
		}
		return vector.NewVarBinaryVector(a)
	case rowdata.DateRoot:
		v, err := vector.NewDateVector(arr)
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", path)
		}
		return v, nil
	case rowdata.TimeRoot:
		// any of the four time encodings is accepted regardless of declared precision
		v, err := vector.NewTimeVector(arr)
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", path)
		}
		return v, nil
	case rowdata.RowRoot:
		a, ok := arr.(*array.Struct)
		if !ok {
			return nil, mismatch()
		}
		nestedType := t.RowType()
		if a.NumField() != nestedType.FieldCount() {
			return nil, errors.Wrapf(ErrSchemaMismatch, "field %q: struct has %d fields, row type has %d",
				path, a.NumField(), nestedType.FieldCount())
		}
		st := a.DataType().(*arrow.StructType)
		children := make([]vector.ColumnVector, nestedType.FieldCount())
		for j := range children {
			f := nestedType.Field(j)
			if name := st.Field(j).Name; name != f.Name {
				return nil, errors.Wrapf(ErrSchemaMismatch, "field %q: struct child %d is named %q, row type expects %q",
					path, j, name, f.Name)
			}
			child, err := createColumnVector(a.Field(j), f.Type, path+"."+f.Name)
			if err != nil {
				return nil, err
			}
			children[j] = child
		}
		return vector.NewRowVector(a, children)
	default:
		return nil, errors.Wrapf(ErrUnsupportedLogicalType, "field %q has type %s", path, t)
	}
}
