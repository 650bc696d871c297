package mssqldb

import (
	"database/sql"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
)

var fieldNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_]`)

// tvpRows converts a structured value to the slice of structs the driver expects for a TVP.
// A DataTable becomes a slice of a struct type built from its columns, in column order; an
// Object value is passed as is and must already be a slice of structs.
func tvpRows(v dbx.Value) (any, error) {
	switch v.Kind() {
	case dbx.KindTable:
		return tableToStructs(v.AsTable())
	case dbx.KindObject:
		return v.Interface(), nil
	case dbx.KindNull:
		return nil, nil
	}

	return nil, errors.Errorf("a structured parameter needs a table or object value, got %s", v.Kind())
}

func tableToStructs(t *dbx.DataTable) (any, error) {
	if t == nil || len(t.Columns) == 0 {
		return nil, errors.New("table has no columns")
	}

	fields := make([]reflect.StructField, len(t.Columns))
	for i, c := range t.Columns {
		fields[i] = reflect.StructField{
			Name: fmt.Sprintf("F%d_%s", i, fieldNameSanitizer.ReplaceAllString(c.Name, "_")),
			Type: nullableType(c.Type),
		}
	}

	rowType := reflect.StructOf(fields)
	out := reflect.MakeSlice(reflect.SliceOf(rowType), 0, len(t.Rows))

	for r, row := range t.Rows {
		item := reflect.New(rowType).Elem()
		for i, c := range t.Columns {
			cell, err := nullableValue(c.Type, row[i])
			if err != nil {
				return nil, errors.Wrapf(err, "row %d, column '%s'", r, c.Name)
			}

			item.Field(i).Set(reflect.ValueOf(cell))
		}

		out = reflect.Append(out, item)
	}

	return out.Interface(), nil
}

func nullableType(ct dbx.ColumnType) reflect.Type {
	switch ct {
	case dbx.ColInt64:
		return reflect.TypeOf(sql.NullInt64{})
	case dbx.ColFloat:
		return reflect.TypeOf(sql.NullFloat64{})
	case dbx.ColBool:
		return reflect.TypeOf(sql.NullBool{})
	case dbx.ColDateTime:
		return reflect.TypeOf(sql.NullTime{})
	case dbx.ColBytes:
		return reflect.TypeOf([]byte(nil))
	}

	return reflect.TypeOf(sql.NullString{})
}

func nullableValue(ct dbx.ColumnType, v dbx.Value) (any, error) {
	null := v.IsNull()

	switch ct {
	case dbx.ColInt64:
		if null {
			return sql.NullInt64{}, nil
		}

		i, err := v.AsInt64()

		return sql.NullInt64{Int64: i, Valid: true}, err
	case dbx.ColFloat:
		if null {
			return sql.NullFloat64{}, nil
		}

		f, err := v.AsFloat()

		return sql.NullFloat64{Float64: f, Valid: true}, err
	case dbx.ColBool:
		if null {
			return sql.NullBool{}, nil
		}

		b, err := v.AsBool()

		return sql.NullBool{Bool: b, Valid: true}, err
	case dbx.ColDateTime:
		if null {
			return sql.NullTime{}, nil
		}

		t, err := v.AsTime()

		return sql.NullTime{Time: t.In(time.UTC), Valid: true}, err
	case dbx.ColBytes:
		if null {
			return []byte(nil), nil
		}

		return v.AsBytes()
	}

	if null {
		return sql.NullString{}, nil
	}

	return sql.NullString{String: strings.Clone(v.AsString()), Valid: true}, nil
}
