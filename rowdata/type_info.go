package rowdata

// TypeInformation is the declared output type of a deserializer, used by the
// surrounding engine for schema negotiation.
type TypeInformation struct {
	name    string
	rowType *RowType
}

// InternalTypeInfo describes rows of rowType in the engine's internal
// GenericRowData representation.
func InternalTypeInfo(rowType *RowType) TypeInformation {
	return TypeInformation{name: "InternalTypeInfo", rowType: rowType}
}

// NamedTypeInfo is like InternalTypeInfo but with a caller supplied descriptor name.
func NamedTypeInfo(name string, rowType *RowType) TypeInformation {
	return TypeInformation{name: name, rowType: rowType}
}

func (ti TypeInformation) Name() string { return ti.name }
func (ti TypeInformation) RowType() *RowType { return ti.rowType }

// Equal reports whether both descriptors have the same name and row type.
func (ti TypeInformation) Equal(other TypeInformation) bool {
	return ti.name == other.name && ti.rowType.Equal(other.rowType)
}

func (ti TypeInformation) String() string {
	return ti.name + "<" + ti.rowType.String() + ">"
}
