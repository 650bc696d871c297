package dbx

// Parameter describes one bind parameter.
//
// For input parameters Value is the bind value. For output parameters Value is ignored at
// bind time and populated by the provider once the command has run; RefCursor outputs come
// back as Table values. Size only matters for output and variable-length parameters, <= 0
// leaves the provider default. Tag carries the structured (UDT/TVP) type name.
type Parameter struct {
	Name     string
	Value    Value
	Type     LogicalType
	IsOutput bool
	Size     int
	Tag      string
}

// NewParameter returns an input parameter.
func NewParameter(name string, logicalType LogicalType, value Value) *Parameter {
	return &Parameter{Name: name, Type: logicalType, Value: value}
}

// NewOutputParameter returns an output parameter.
func NewOutputParameter(name string, logicalType LogicalType, size int) *Parameter {
	return &Parameter{Name: name, Type: logicalType, IsOutput: true, Size: size}
}

// NewStructuredParameter returns a structured input parameter bound with the given type name.
func NewStructuredParameter(name string, typeName string, value Value) *Parameter {
	return &Parameter{Name: name, Type: Structured, Value: value, Tag: typeName}
}

// IsSimple reports whether p is a scalar input parameter.
func (p *Parameter) IsSimple() bool {
	if p.IsOutput {
		return false
	}

	switch p.Type {
	case Structured, Binary, RefCursor, Object:
		return false
	}

	k := p.Value.Kind()

	return k != KindTable && k != KindObject && k != KindBytes
}
