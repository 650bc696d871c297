package dbx

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// Kind is the discriminator of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindBool
	KindInt64
	KindDecimal
	KindFloat
	KindDateTime
	KindBytes
	KindTable
	KindObject
)

var kindNames = [...]string{"Null", "String", "Bool", "Int64", "Decimal", "Float", "DateTime", "Bytes", "Table", "Object"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}

	return "Unknown"
}

// Value is a closed sum type for parameter and result values.
// Decimals are carried as their canonical decimal text so no precision is lost between providers.
// Object carries a caller-supplied struct, map or slice, used for UDT binding and JSON/XML mapping.
type Value struct {
	kind Kind
	str  string
	i    int64
	f    float64
	t    time.Time
	b    []byte
	tbl  *DataTable
	obj  any
}

// Null returns the null Value.
func Null() Value { return Value{} }

func StringValue(s string) Value { return Value{kind: KindString, str: s} }

func BoolValue(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.i = 1
	}

	return v
}

func Int64Value(i int64) Value { return Value{kind: KindInt64, i: i} }

func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

func TimeValue(t time.Time) Value { return Value{kind: KindDateTime, t: t} }

func BytesValue(b []byte) Value {
	if b == nil {
		return Null()
	}

	return Value{kind: KindBytes, b: b}
}

func TableValue(t *DataTable) Value {
	if t == nil {
		return Null()
	}

	return Value{kind: KindTable, tbl: t}
}

func ObjectValue(o any) Value {
	if o == nil {
		return Null()
	}

	return Value{kind: KindObject, obj: o}
}

// DecimalValue parses s as a decimal number and keeps its text.
func DecimalValue(s string) (Value, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "+")
	if !isDecimalText(s) {
		return Null(), errors.Errorf("invalid decimal '%s'", s)
	}

	return Value{kind: KindDecimal, str: s}, nil
}

// MustDecimal is DecimalValue for literals known to be valid.
func MustDecimal(s string) Value {
	v, err := DecimalValue(s)
	if err != nil {
		panic(err)
	}

	return v
}

// DecimalFromFloat renders f with the shortest exact representation.
func DecimalFromFloat(f float64) Value {
	return Value{kind: KindDecimal, str: strconv.FormatFloat(f, 'f', -1, 64)}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// Interface returns the Go representation of v: nil, string, bool, int64, float64, time.Time,
// []byte, *DataTable or the wrapped object. Decimals are returned as their text.
func (v Value) Interface() any {
	switch v.kind {
	case KindString, KindDecimal:
		return v.str
	case KindBool:
		return v.i == 1
	case KindInt64:
		return v.i
	case KindFloat:
		return v.f
	case KindDateTime:
		return v.t
	case KindBytes:
		return v.b
	case KindTable:
		return v.tbl
	case KindObject:
		return v.obj
	}

	return nil
}

// AsString renders v as text. Null renders as the empty string.
func (v Value) AsString() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString, KindDecimal:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.i == 1)
	case KindInt64:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindDateTime:
		return v.t.Format(time.RFC3339Nano)
	case KindBytes:
		return string(v.b)
	case KindTable:
		data, _ := v.tbl.ToJSON()
		return string(data)
	}

	return fmt.Sprint(v.obj)
}

// AsInt64 converts v to an int64. Fractional decimals and floats are rejected.
func (v Value) AsInt64() (int64, error) {
	switch v.kind {
	case KindInt64:
		return v.i, nil
	case KindBool:
		return v.i, nil
	case KindFloat:
		if v.f != math.Trunc(v.f) || math.IsInf(v.f, 0) || math.IsNaN(v.f) {
			return 0, errors.Errorf("float %v is not an integer", v.f)
		}

		return int64(v.f), nil
	case KindDecimal, KindString:
		if i, err := strconv.ParseInt(strings.TrimSpace(v.str), 10, 64); err == nil {
			return i, nil
		}

		r, ok := new(big.Rat).SetString(strings.TrimSpace(v.str))
		if !ok {
			return 0, errors.Errorf("'%s' is not a number", v.str)
		}

		if !r.IsInt() || !r.Num().IsInt64() {
			return 0, errors.Errorf("'%s' does not fit an int64 without loss", v.str)
		}

		return r.Num().Int64(), nil
	}

	return 0, errors.Errorf("cannot convert %s to Int64", v.kind)
}

// AsFloat converts v to a float64.
func (v Value) AsFloat() (float64, error) {
	switch v.kind {
	case KindFloat:
		return v.f, nil
	case KindInt64, KindBool:
		return float64(v.i), nil
	case KindDecimal, KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, errors.Wrapf(err, "'%s' is not a number", v.str)
		}

		return f, nil
	}

	return 0, errors.Errorf("cannot convert %s to Float", v.kind)
}

// AsDecimal converts v to a decimal Value.
func (v Value) AsDecimal() (Value, error) {
	switch v.kind {
	case KindDecimal:
		return v, nil
	case KindInt64, KindBool:
		return Value{kind: KindDecimal, str: strconv.FormatInt(v.i, 10)}, nil
	case KindFloat:
		return DecimalFromFloat(v.f), nil
	case KindString:
		return DecimalValue(v.str)
	case KindBytes:
		return DecimalValue(string(v.b))
	}

	return Null(), errors.Errorf("cannot convert %s to Decimal", v.kind)
}

// AsBool converts v to a bool. Strings accept strconv.ParseBool forms.
func (v Value) AsBool() (bool, error) {
	switch v.kind {
	case KindBool, KindInt64:
		return v.i != 0, nil
	case KindString, KindDecimal:
		b, err := strconv.ParseBool(strings.TrimSpace(v.str))
		if err != nil {
			return false, errors.Wrapf(err, "'%s' is not a boolean", v.str)
		}

		return b, nil
	}

	return false, errors.Errorf("cannot convert %s to Bool", v.kind)
}

// AsTime converts v to a time.Time. Strings are parsed as RFC3339 or "2006-01-02 15:04:05".
func (v Value) AsTime() (time.Time, error) {
	switch v.kind {
	case KindDateTime:
		return v.t, nil
	case KindString:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, strings.TrimSpace(v.str)); err == nil {
				return t, nil
			}
		}

		return time.Time{}, errors.Errorf("'%s' is not a date time", v.str)
	}

	return time.Time{}, errors.Errorf("cannot convert %s to DateTime", v.kind)
}

// AsBytes returns the byte payload. Strings are returned as their UTF-8 bytes.
func (v Value) AsBytes() ([]byte, error) {
	switch v.kind {
	case KindBytes:
		return v.b, nil
	case KindString:
		return []byte(v.str), nil
	}

	return nil, errors.Errorf("cannot convert %s to Bytes", v.kind)
}

// AsTable returns the tabular payload, or nil when v is not a table.
func (v Value) AsTable() *DataTable {
	return v.tbl
}

// MarshalJSON renders v as its Go representation. Decimals are emitted as JSON numbers.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindDecimal:
		return []byte(v.str), nil
	case KindTable:
		return v.tbl.ToJSON()
	}

	return json.Marshal(v.Interface())
}

// ValueOf converts a driver or caller value to a Value.
func ValueOf(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case *Value:
		if t == nil {
			return Null()
		}

		return *t
	case string:
		return StringValue(t)
	case []byte:
		if t == nil {
			return Null()
		}

		return BytesValue(append([]byte(nil), t...))
	case bool:
		return BoolValue(t)
	case int:
		return Int64Value(int64(t))
	case int8:
		return Int64Value(int64(t))
	case int16:
		return Int64Value(int64(t))
	case int32:
		return Int64Value(int64(t))
	case int64:
		return Int64Value(t)
	case uint8:
		return Int64Value(int64(t))
	case uint16:
		return Int64Value(int64(t))
	case uint32:
		return Int64Value(int64(t))
	case uint:
		return unsignedValue(uint64(t))
	case uint64:
		return unsignedValue(t)
	case float32:
		return FloatValue(float64(t))
	case float64:
		return FloatValue(t)
	case time.Time:
		return TimeValue(t)
	case *DataTable:
		return TableValue(t)
	case sql.NullString:
		if !t.Valid {
			return Null()
		}

		return StringValue(t.String)
	case sql.NullInt64:
		if !t.Valid {
			return Null()
		}

		return Int64Value(t.Int64)
	case sql.NullInt32:
		if !t.Valid {
			return Null()
		}

		return Int64Value(int64(t.Int32))
	case sql.NullBool:
		if !t.Valid {
			return Null()
		}

		return BoolValue(t.Bool)
	case sql.NullFloat64:
		if !t.Valid {
			return Null()
		}

		return FloatValue(t.Float64)
	case sql.NullTime:
		if !t.Valid {
			return Null()
		}

		return TimeValue(t.Time)
	case driver.Valuer:
		dv, err := t.Value()
		if err != nil {
			return ObjectValue(x)
		}

		return ValueOf(dv)
	}

	return ObjectValue(x)
}

func unsignedValue(u uint64) Value {
	if u > math.MaxInt64 {
		return Value{kind: KindDecimal, str: strconv.FormatUint(u, 10)}
	}

	return Int64Value(int64(u))
}

func isDecimalText(s string) bool {
	if s == "" || strings.ContainsAny(s, "/xXpP_") {
		return false
	}

	f, err := strconv.ParseFloat(s, 64)

	return err == nil && !math.IsInf(f, 0) && !math.IsNaN(f)
}
