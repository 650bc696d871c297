package dbx

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"reflect"

	"github.com/pkg/errors"
)

// RowConvertibleEntity is a struct that renders itself as one bulk-insert row.
//
// ToRow returns the values in the order of the struct's `db` tagged exported fields, skipping
// fields tagged `db:"-"`:
//
//	type Order struct {
//	    ID       int64  `db:"id"`
//	    Customer string `db:"customer"`
//	}
//
//	func (o Order) ToRow() []interface{} { return []interface{}{o.ID, o.Customer} }
type RowConvertibleEntity interface {
	ToRow() []interface{}
}

// taggedField is an exported struct field carrying a column tag.
type taggedField struct {
	index  int
	column string
}

func structValue(x any) (reflect.Value, error) {
	v := reflect.ValueOf(x)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}, errors.New("nil struct pointer")
		}

		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return reflect.Value{}, errors.Errorf("expected a struct type, got %s", v.Kind())
	}

	return v, nil
}

// taggedFields lists the exported fields of t tagged with tagKey, in declaration order.
func taggedFields(t reflect.Type, tagKey string) []taggedField {
	var fields []taggedField

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}

		if tag := f.Tag.Get(tagKey); tag != "" && tag != "-" {
			fields = append(fields, taggedField{index: i, column: tag})
		}
	}

	return fields
}

// DeriveColumnNamesFromTags returns the tagKey tag values (e.g. "db") of the exported fields of
// entity, which may be a struct or a pointer to one. Untagged fields and `db:"-"` are skipped.
func DeriveColumnNamesFromTags[T any](entity T, tagKey string) ([]string, error) {
	v, err := structValue(entity)
	if err != nil {
		return nil, err
	}

	fields := taggedFields(v.Type(), tagKey)
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.column
	}

	return names, nil
}

// StructsToRows extracts the tagged field values of every entity, in the column order of
// DeriveColumnNamesFromTags.
func StructsToRows[T any](entities []T, tagKey string) ([][]interface{}, error) {
	rows := make([][]interface{}, 0, len(entities))

	var fields []taggedField
	for n, entity := range entities {
		v, err := structValue(entity)
		if err != nil {
			return nil, errors.Wrapf(err, "entity %d", n)
		}

		if fields == nil {
			fields = taggedFields(v.Type(), tagKey)
		}

		row := make([]interface{}, len(fields))
		for i, f := range fields {
			row[i] = v.Field(f.index).Interface()
		}

		rows = append(rows, row)
	}

	return rows, nil
}

// newTxId returns a random non-zero positive int64 used to follow a transaction in the logs.
func newTxId() int64 {
	var buf [8]byte

	for {
		if _, err := rand.Read(buf[:]); err != nil {
			continue
		}

		if id := int64(binary.BigEndian.Uint64(buf[:]) % uint64(math.MaxInt64)); id != 0 {
			return id
		}
	}
}
