package rowdata

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidRowType is returned by NewRowType for empty or duplicate field names.
var ErrInvalidRowType = errors.New("invalid row type")

// RowField is a named, typed field of a RowType.
type RowField struct {
	Name string
	Type LogicalType
}

// NewField is shorthand for RowField{Name: name, Type: t}.
func NewField(name string, t LogicalType) RowField {
	return RowField{Name: name, Type: t}
}

// RowType is the ordered, immutable field list of a logical row.
type RowType struct {
	fields []RowField
	index  map[string]int
}

// NewRowType builds a RowType. Field order is significant. A RowType with zero
// fields is valid.
func NewRowType(fields ...RowField) (*RowType, error) {
	rt := &RowType{
		fields: make([]RowField, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		if f.Name == "" {
			return nil, errors.Wrapf(ErrInvalidRowType, "field %d has an empty name", i)
		}
		if _, dup := rt.index[f.Name]; dup {
			return nil, errors.Wrapf(ErrInvalidRowType, "duplicate field name %q", f.Name)
		}
		if f.Type.root == RowRoot && f.Type.row == nil {
			return nil, errors.Wrapf(ErrInvalidRowType, "field %q is a ROW without fields", f.Name)
		}
		rt.fields[i] = f
		rt.index[f.Name] = i
	}
	return rt, nil
}

// MustRowType is like NewRowType but panics on error. Intended for static schemas and tests.
func MustRowType(fields ...RowField) *RowType {
	rt, err := NewRowType(fields...)
	if err != nil {
		panic(err)
	}
	return rt
}

// FieldCount returns the number of fields.
func (r *RowType) FieldCount() int { return len(r.fields) }

// Field returns the i-th field.
func (r *RowType) Field(i int) RowField { return r.fields[i] }

// Fields returns a copy of the field list.
func (r *RowType) Fields() []RowField {
	out := make([]RowField, len(r.fields))
	copy(out, r.fields)
	return out
}

// FieldNames returns the field names in order.
func (r *RowType) FieldNames() []string {
	names := make([]string, len(r.fields))
	for i, f := range r.fields {
		names[i] = f.Name
	}
	return names
}

// FieldIndex returns the position of the named field or -1.
func (r *RowType) FieldIndex(name string) int {
	if i, ok := r.index[name]; ok {
		return i
	}
	return -1
}

// Equal reports whether both row types have the same fields in the same order.
func (r *RowType) Equal(other *RowType) bool {
	if r == nil || other == nil {
		return r == other
	}
	if len(r.fields) != len(other.fields) {
		return false
	}
	for i := range r.fields {
		if r.fields[i].Name != other.fields[i].Name || !r.fields[i].Type.Equal(other.fields[i].Type) {
			return false
		}
	}
	return true
}

func (r *RowType) String() string {
	if r == nil {
		return "ROW<>"
	}
	var sb strings.Builder
	sb.WriteString("ROW<")
	for i, f := range r.fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.Name)
		sb.WriteByte(' ')
		sb.WriteString(f.Type.String())
	}
	sb.WriteByte('>')
	return sb.String()
}
