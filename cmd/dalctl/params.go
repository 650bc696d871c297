package main

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
	"github.com/marcodd23/go-dal-core/pkg/utilx"
)

// parseParameters parses every --param flag value.
func parseParameters(specs []string) ([]*dbx.Parameter, error) {
	params := make([]*dbx.Parameter, 0, len(specs))

	for _, s := range specs {
		p, err := parseParameter(s)
		if err != nil {
			return nil, err
		}

		params = append(params, p)
	}

	return params, nil
}

// parseParameter parses "name:type=value".
//
// Without "=value" the parameter is an output parameter; "name:type" may carry a size suffix,
// as in "total:String(50)". An empty value binds the empty string for string types and null
// for every other type. A missing type defaults to String.
func parseParameter(s string) (*dbx.Parameter, error) {
	decl, raw, hasValue := strings.Cut(s, "=")

	name, typeName, _ := strings.Cut(decl, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.Errorf("parameter '%s' has no name", s)
	}

	size := 0
	typeName = strings.TrimSpace(typeName)
	if open := strings.IndexByte(typeName, '('); open > 0 && strings.HasSuffix(typeName, ")") {
		n, err := strconv.Atoi(typeName[open+1 : len(typeName)-1])
		if err != nil {
			return nil, errors.Wrapf(err, "parameter '%s' has an invalid size", name)
		}

		size = n
		typeName = typeName[:open]
	}

	logicalType := dbx.String
	if typeName != "" {
		t, err := dbx.ParseLogicalType(typeName)
		if err != nil {
			return nil, errors.WithMessagef(err, "parameter '%s'", name)
		}

		logicalType = t
	}

	if !hasValue {
		return dbx.NewOutputParameter(name, logicalType, size), nil
	}

	v, err := parseValue(logicalType, raw)
	if err != nil {
		return nil, errors.WithMessagef(err, "parameter '%s'", name)
	}

	p := dbx.NewParameter(name, logicalType, v)
	p.Size = size

	return p, nil
}

func parseValue(t dbx.LogicalType, raw string) (dbx.Value, error) {
	switch t {
	case dbx.String, dbx.AnsiString, dbx.Xml, dbx.Guid, dbx.UnKnown, dbx.Object:
		return dbx.StringValue(raw), nil
	}

	if strings.TrimSpace(raw) == "" {
		return dbx.Null(), nil
	}

	switch t {
	case dbx.Boolean:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return dbx.Null(), errors.Wrapf(err, "'%s' is not a boolean", raw)
		}

		return dbx.BoolValue(b), nil
	case dbx.Byte, dbx.Int16, dbx.Int32, dbx.Int64:
		i, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return dbx.Null(), errors.Wrapf(err, "'%s' is not an integer", raw)
		}

		return dbx.Int64Value(i), nil
	case dbx.Decimal:
		return dbx.DecimalValue(raw)
	case dbx.Double:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return dbx.Null(), errors.Wrapf(err, "'%s' is not a number", raw)
		}

		return dbx.FloatValue(f), nil
	case dbx.DateTime, dbx.Date:
		ts, err := utilx.ParseTime(raw)
		if err != nil {
			return dbx.Null(), err
		}

		return dbx.TimeValue(ts), nil
	case dbx.Binary:
		return dbx.BytesValue([]byte(raw)), nil
	}

	return dbx.Null(), errors.Errorf("type %s cannot be given on the command line", t)
}
