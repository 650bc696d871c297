package dbx

import (
	"strings"

	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

// LogicalType is the provider-independent type of a bind parameter.
type LogicalType int

const (
	UnKnown LogicalType = iota
	Object
	String
	AnsiString
	Boolean
	Byte
	Int16
	Int32
	Int64
	Decimal
	Double
	DateTime
	Date
	Guid
	Xml
	Structured
	Binary
	RefCursor
)

var logicalTypeNames = map[LogicalType]string{
	UnKnown:    "UnKnown",
	Object:     "Object",
	String:     "String",
	AnsiString: "AnsiString",
	Boolean:    "Boolean",
	Byte:       "Byte",
	Int16:      "Int16",
	Int32:      "Int32",
	Int64:      "Int64",
	Decimal:    "Decimal",
	Double:     "Double",
	DateTime:   "DateTime",
	Date:       "Date",
	Guid:       "Guid",
	Xml:        "Xml",
	Structured: "Structured",
	Binary:     "Binary",
	RefCursor:  "RefCursor",
}

func (t LogicalType) String() string {
	if name, ok := logicalTypeNames[t]; ok {
		return name
	}

	return "UnKnown"
}

// IsInteger reports whether values of t are bound as int64.
func (t LogicalType) IsInteger() bool {
	return t == Byte || t == Int16 || t == Int32 || t == Int64
}

// ParseLogicalType parses a type name case-insensitively. The empty string is UnKnown.
func ParseLogicalType(name string) (LogicalType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return UnKnown, nil
	}

	for t, n := range logicalTypeNames {
		if strings.EqualFold(n, name) {
			return t, nil
		}
	}

	return UnKnown, errorx.NewConfigurationError("unknown logical type '%s'", name)
}

// CallType tells whether a command text is a SQL batch or the name of a stored procedure.
type CallType int

const (
	Text CallType = iota
	StoredProcedure
)

func (c CallType) String() string {
	if c == StoredProcedure {
		return "StoredProcedure"
	}

	return "Text"
}

// ParseCallType accepts "Text", "StoredProcedure" and "Procedure", case-insensitively.
// The empty string is Text.
func ParseCallType(name string) (CallType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text":
		return Text, nil
	case "storedprocedure", "procedure", "sp":
		return StoredProcedure, nil
	}

	return Text, errorx.NewConfigurationError("unknown execution type '%s'", name)
}

// UnmarshalText lets CallType be decoded from configuration.
func (c *CallType) UnmarshalText(text []byte) error {
	parsed, err := ParseCallType(string(text))
	if err != nil {
		return err
	}

	*c = parsed

	return nil
}

// MarshalText renders the call type name.
func (c CallType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}
