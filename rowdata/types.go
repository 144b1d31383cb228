package rowdata

import (
	"fmt"

	"github.com/pkg/errors"
)

// Root identifies the family of a logical type.
type Root int

const (
	TinyIntRoot Root = iota
	SmallIntRoot
	IntegerRoot
	BigIntRoot
	FloatRoot
	DoubleRoot
	BooleanRoot
	VarCharRoot
	VarBinaryRoot
	DateRoot
	TimeRoot
	RowRoot

	// The following roots can be declared but have no columnar mapping.
	DecimalRoot
	TimestampRoot
)

var rootNames = map[Root]string{
	TinyIntRoot:   "TINYINT",
	SmallIntRoot:  "SMALLINT",
	IntegerRoot:   "INT",
	BigIntRoot:    "BIGINT",
	FloatRoot:     "FLOAT",
	DoubleRoot:    "DOUBLE",
	BooleanRoot:   "BOOLEAN",
	VarCharRoot:   "STRING",
	VarBinaryRoot: "BYTES",
	DateRoot:      "DATE",
	TimeRoot:      "TIME",
	RowRoot:       "ROW",
	DecimalRoot:   "DECIMAL",
	TimestampRoot: "TIMESTAMP",
}

func (r Root) String() string {
	if name, ok := rootNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Root(%d)", int(r))
}

// MaxTimePrecision is the largest fractional-second precision of TIME.
const MaxTimePrecision = 9

// ErrInvalidType is returned when a logical type is constructed with invalid parameters.
var ErrInvalidType = errors.New("invalid logical type")

// LogicalType describes the semantic type of a row field. Values are immutable;
// use the constructors below and NotNull to derive variants.
type LogicalType struct {
	root      Root
	nullable  bool
	precision int
	row       *RowType
}

func TinyInt() LogicalType { return LogicalType{root: TinyIntRoot, nullable: true} }
func SmallInt() LogicalType { return LogicalType{root: SmallIntRoot, nullable: true} }
func Int() LogicalType { return LogicalType{root: IntegerRoot, nullable: true} }
func BigInt() LogicalType { return LogicalType{root: BigIntRoot, nullable: true} }
func Float() LogicalType { return LogicalType{root: FloatRoot, nullable: true} }
func Double() LogicalType { return LogicalType{root: DoubleRoot, nullable: true} }
func Boolean() LogicalType { return LogicalType{root: BooleanRoot, nullable: true} }
func String() LogicalType { return LogicalType{root: VarCharRoot, nullable: true} }
func Bytes() LogicalType { return LogicalType{root: VarBinaryRoot, nullable: true} }
func Date() LogicalType { return LogicalType{root: DateRoot, nullable: true} }
func Timestamp() LogicalType { return LogicalType{root: TimestampRoot, nullable: true, precision: 6} }
func Decimal() LogicalType { return LogicalType{root: DecimalRoot, nullable: true} }

// Time returns TIME(precision). Precision is clamped to [0, MaxTimePrecision].
func Time(precision int) LogicalType {
	if precision < 0 {
		precision = 0
	}
	if precision > MaxTimePrecision {
		precision = MaxTimePrecision
	}
	return LogicalType{root: TimeRoot, nullable: true, precision: precision}
}

// Row returns a nested ROW type over rowType.
func Row(rowType *RowType) LogicalType {
	return LogicalType{root: RowRoot, nullable: true, row: rowType}
}

// Root returns the type family.
func (t LogicalType) Root() Root { return t.root }

// Nullable reports whether the type admits absent values.
func (t LogicalType) Nullable() bool { return t.nullable }

// Precision returns the fractional-second precision of TIME (0 for every other root).
func (t LogicalType) Precision() int { return t.precision }

// RowType returns the nested row type for ROW, nil otherwise.
func (t LogicalType) RowType() *RowType { return t.row }

// NotNull returns a non-nullable copy of t.
func (t LogicalType) NotNull() LogicalType {
	t.nullable = false
	return t
}

// WithNullable returns a copy of t with the given nullability.
func (t LogicalType) WithNullable(nullable bool) LogicalType {
	t.nullable = nullable
	return t
}

// Equal reports whether t and other are structurally equal.
func (t LogicalType) Equal(other LogicalType) bool {
	if t.root != other.root || t.nullable != other.nullable || t.precision != other.precision {
		return false
	}
	if t.root != RowRoot {
		return true
	}
	return t.row.Equal(other.row)
}

func (t LogicalType) String() string {
	var s string
	switch t.root {
	case TimeRoot:
		s = fmt.Sprintf("TIME(%d)", t.precision)
	case TimestampRoot:
		s = fmt.Sprintf("TIMESTAMP(%d)", t.precision)
	case RowRoot:
		s = t.row.String()
	default:
		s = t.root.String()
	}
	if !t.nullable {
		s += " NOT NULL"
	}
	return s
}
