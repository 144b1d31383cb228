package data

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/pkg/errors"

	"github.com/VanDung-dev/ArrowRow-Engine/rowdata"
)

// Conversion errors.
var (
	ErrUnsupportedLogicalType = errors.New("unsupported logical type")
	ErrUnsupportedArrowType   = errors.New("unsupported arrow type")
	ErrSchemaMismatch         = errors.New("schema mismatch")
)

// ConvertToSchema maps a logical row type to the Arrow schema its batches are
// encoded with. Fields keep their names, order and nullability; nested rows
// become struct fields.
//
// Mapping:
//   - TINYINT, SMALLINT, INT, BIGINT: int8, int16, int32, int64
//   - FLOAT, DOUBLE: float32, float64
//   - BOOLEAN: bool
//   - STRING, BYTES: utf8, binary
//   - DATE: date32
//   - TIME(0): time32[s], TIME(1-3): time32[ms], TIME(4-6): time64[us], TIME(7-9): time64[ns]
//   - ROW: struct
func ConvertToSchema(rowType *rowdata.RowType) (*arrow.Schema, error) {
	fields, err := toArrowFields(rowType, "")
	if err != nil {
		return nil, err
	}
	return arrow.NewSchema(fields, nil), nil
}

func toArrowFields(rowType *rowdata.RowType, prefix string) ([]arrow.Field, error) {
	fields := make([]arrow.Field, rowType.FieldCount())
	for i := 0; i < rowType.FieldCount(); i++ {
		f := rowType.Field(i)
		field, err := toArrowField(f, prefix+f.Name)
		if err != nil {
			return nil, err
		}
		fields[i] = field
	}
	return fields, nil
}

func toArrowField(f rowdata.RowField, path string) (arrow.Field, error) {
	dt, err := toArrowType(f.Type, path)
	if err != nil {
		return arrow.Field{}, err
	}
	return arrow.Field{Name: f.Name, Type: dt, Nullable: f.Type.Nullable()}, nil
}

func toArrowType(t rowdata.LogicalType, path string) (arrow.DataType, error) {
	switch t.Root() {
	case rowdata.TinyIntRoot:
		return arrow.PrimitiveTypes.Int8, nil
	case rowdata.SmallIntRoot:
		return arrow.PrimitiveTypes.Int16, nil
	case rowdata.IntegerRoot:
		return arrow.PrimitiveTypes.Int32, nil
	case rowdata.BigIntRoot:
		return arrow.PrimitiveTypes.Int64, nil
	case rowdata.FloatRoot:
		return arrow.PrimitiveTypes.Float32, nil
	case rowdata.DoubleRoot:
		return arrow.PrimitiveTypes.Float64, nil
	case rowdata.BooleanRoot:
		return arrow.FixedWidthTypes.Boolean, nil
	case rowdata.VarCharRoot:
		return arrow.BinaryTypes.String, nil
	case rowdata.VarBinaryRoot:
		return arrow.BinaryTypes.Binary, nil
	case rowdata.DateRoot:
		return arrow.FixedWidthTypes.Date32, nil
	case rowdata.TimeRoot:
		return timeType(t.Precision()), nil
	case rowdata.RowRoot:
		children, err := toArrowFields(t.RowType(), path+".")
		if err != nil {
			return nil, err
		}
		return arrow.StructOf(children...), nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedLogicalType, "field %q has type %s", path, t)
	}
}

func timeType(precision int) arrow.DataType {
	switch {
	case precision == 0:
		return &arrow.Time32Type{Unit: arrow.Second}
	case precision <= 3:
		return &arrow.Time32Type{Unit: arrow.Millisecond}
	case precision <= 6:
		return &arrow.Time64Type{Unit: arrow.Microsecond}
	default:
		return &arrow.Time64Type{Unit: arrow.Nanosecond}
	}
}

// ConvertFromSchema derives the logical row type of an Arrow schema. It is the
// inverse of ConvertToSchema and additionally accepts date64.
func ConvertFromSchema(schema *arrow.Schema) (*rowdata.RowType, error) {
	if schema == nil {
		return nil, errors.Wrap(ErrUnsupportedArrowType, "schema is nil")
	}
	return fromArrowFields(schema.Fields(), "")
}

func fromArrowFields(fields []arrow.Field, prefix string) (*rowdata.RowType, error) {
	rowFields := make([]rowdata.RowField, len(fields))
	for i, f := range fields {
		t, err := fromArrowType(f.Type, prefix+f.Name)
		if err != nil {
			return nil, err
		}
		rowFields[i] = rowdata.NewField(f.Name, t.WithNullable(f.Nullable))
	}
	rt, err := rowdata.NewRowType(rowFields...)
	if err != nil {
		return nil, errors.Wrapf(ErrUnsupportedArrowType, "%v", err)
	}
	return rt, nil
}

func fromArrowType(dt arrow.DataType, path string) (rowdata.LogicalType, error) {
	switch dt.ID() {
	case arrow.INT8:
		return rowdata.TinyInt(), nil
	case arrow.INT16:
		return rowdata.SmallInt(), nil
	case arrow.INT32:
		return rowdata.Int(), nil
	case arrow.INT64:
		return rowdata.BigInt(), nil
	case arrow.FLOAT32:
		return rowdata.Float(), nil
	case arrow.FLOAT64:
		return rowdata.Double(), nil
	case arrow.BOOL:
		return rowdata.Boolean(), nil
	case arrow.STRING:
		return rowdata.String(), nil
	case arrow.BINARY:
		return rowdata.Bytes(), nil
	case arrow.DATE32, arrow.DATE64:
		return rowdata.Date(), nil
	case arrow.TIME32:
		if dt.(*arrow.Time32Type).Unit == arrow.Second {
			return rowdata.Time(0), nil
		}
		return rowdata.Time(3), nil
	case arrow.TIME64:
		if dt.(*arrow.Time64Type).Unit == arrow.Microsecond {
			return rowdata.Time(6), nil
		}
		return rowdata.Time(9), nil
	case arrow.STRUCT:
		rt, err := fromArrowFields(dt.(*arrow.StructType).Fields(), path+".")
		if err != nil {
			return rowdata.LogicalType{}, err
		}
		return rowdata.Row(rt), nil
	default:
		return rowdata.LogicalType{}, errors.Wrapf(ErrUnsupportedArrowType, "field %q has type %s", path, dt)
	}
}
