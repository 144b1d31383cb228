package rowdata

import (
	"bytes"
	"fmt"
	"strings"
)

// RowKind describes the changelog semantics of a row.
type RowKind byte

const (
	Insert RowKind = iota
	UpdateBefore
	UpdateAfter
	Delete
)

func (k RowKind) String() string {
	switch k {
	case Insert:
		return "+I"
	case UpdateBefore:
		return "-U"
	case UpdateAfter:
		return "+U"
	case Delete:
		return "-D"
	default:
		return "?"
	}
}

// RowData is positional, typed access to a logical row. Getters must only be
// called for positions where IsNullAt returns false.
type RowData interface {
	Arity() int
	IsNullAt(pos int) bool
	GetByte(pos int) int8
	GetShort(pos int) int16
	GetInt(pos int) int32
	GetLong(pos int) int64
	GetFloat(pos int) float32
	GetDouble(pos int) float64
	GetBoolean(pos int) bool
	GetString(pos int) string
	GetBinary(pos int) []byte
	GetRow(pos int, numFields int) RowData
}

// GenericRowData holds boxed field values. A nil field is absent.
//
// Field values use these Go types: TINYINT int8, SMALLINT int16, INT int32,
// BIGINT int64, FLOAT float32, DOUBLE float64, BOOLEAN bool, STRING string,
// BYTES []byte, DATE int32 (days since epoch), TIME int32 (millis of day),
// ROW *GenericRowData.
type GenericRowData struct {
	kind   RowKind
	fields []interface{}
}

// NewGenericRowData creates a row with arity absent fields.
func NewGenericRowData(arity int) *GenericRowData {
	return &GenericRowData{kind: Insert, fields: make([]interface{}, arity)}
}

// GenericRowOf creates a row holding the given values.
func GenericRowOf(values ...interface{}) *GenericRowData {
	row := NewGenericRowData(len(values))
	copy(row.fields, values)
	return row
}

func (r *GenericRowData) Kind() RowKind { return r.kind }
func (r *GenericRowData) SetKind(kind RowKind) { r.kind = kind }
func (r *GenericRowData) Arity() int { return len(r.fields) }
func (r *GenericRowData) Field(pos int) interface{} { return r.fields[pos] }
func (r *GenericRowData) SetField(pos int, value interface{}) {
	r.fields[pos] = value
}

// Values returns a copy of the field values.
func (r *GenericRowData) Values() []interface{} {
	out := make([]interface{}, len(r.fields))
	copy(out, r.fields)
	return out
}

func (r *GenericRowData) IsNullAt(pos int) bool { return r.fields[pos] == nil }
func (r *GenericRowData) GetByte(pos int) int8 { return r.fields[pos].(int8) }
func (r *GenericRowData) GetShort(pos int) int16 { return r.fields[pos].(int16) }
func (r *GenericRowData) GetInt(pos int) int32 { return r.fields[pos].(int32) }
func (r *GenericRowData) GetLong(pos int) int64 { return r.fields[pos].(int64) }
func (r *GenericRowData) GetFloat(pos int) float32 { return r.fields[pos].(float32) }
func (r *GenericRowData) GetDouble(pos int) float64 { return r.fields[pos].(float64) }
func (r *GenericRowData) GetBoolean(pos int) bool { return r.fields[pos].(bool) }
func (r *GenericRowData) GetString(pos int) string { return r.fields[pos].(string) }
func (r *GenericRowData) GetBinary(pos int) []byte { return r.fields[pos].([]byte) }

func (r *GenericRowData) GetRow(pos int, numFields int) RowData {
	return r.fields[pos].(*GenericRowData)
}

// Equal compares kind and field values, descending into nested rows.
func (r *GenericRowData) Equal(other *GenericRowData) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.kind != other.kind || len(r.fields) != len(other.fields) {
		return false
	}
	for i := range r.fields {
		if !fieldEqual(r.fields[i], other.fields[i]) {
			return false
		}
	}
	return true
}

func fieldEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case *GenericRowData:
		bv, ok := b.(*GenericRowData)
		return ok && av.Equal(bv)
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	default:
		return a == b
	}
}

func (r *GenericRowData) String() string {
	var sb strings.Builder
	sb.WriteString(r.kind.String())
	sb.WriteByte('(')
	for i, v := range r.fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		if v == nil {
			sb.WriteString("null")
			continue
		}
		fmt.Fprintf(&sb, "%v", v)
	}
	sb.WriteByte(')')
	return sb.String()
}
