package dbx

import (
	"bytes"
	"encoding/xml"
	"reflect"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// ToJSON renders the rows as a JSON array of objects keyed by column name.
func (t *DataTable) ToJSON() ([]byte, error) {
	records := make([]map[string]Value, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]Value, len(t.Columns))
		for i, c := range t.Columns {
			rec[c.Name] = row[i]
		}

		records = append(records, rec)
	}

	return json.Marshal(records)
}

// ToXML renders the rows as <DocumentElement><rowElement><Column>value</Column>...</rowElement></DocumentElement>.
// rowElement defaults to the table name, then "Table". Null cells are omitted.
func (t *DataTable) ToXML(rowElement string) ([]byte, error) {
	if rowElement == "" {
		rowElement = t.Name
	}

	if rowElement == "" {
		rowElement = TableName(0)
	}

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)

	root := xml.StartElement{Name: xml.Name{Local: "DocumentElement"}}
	if err := enc.EncodeToken(root); err != nil {
		return nil, errors.WithStack(err)
	}

	for _, row := range t.Rows {
		rowStart := xml.StartElement{Name: xml.Name{Local: rowElement}}
		if err := enc.EncodeToken(rowStart); err != nil {
			return nil, errors.WithStack(err)
		}

		for i, c := range t.Columns {
			if row[i].IsNull() {
				continue
			}

			if err := enc.EncodeElement(row[i].AsString(), xml.StartElement{Name: xml.Name{Local: c.Name}}); err != nil {
				return nil, errors.WithStack(err)
			}
		}

		if err := enc.EncodeToken(rowStart.End()); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, errors.WithStack(err)
	}

	if err := enc.Flush(); err != nil {
		return nil, errors.WithStack(err)
	}

	return buf.Bytes(), nil
}

// DataTableFromEntities builds a table from RowConvertibleEntity values. Column names come
// from the `db` tags of the first entity; column types from the first row's values.
func DataTableFromEntities[T RowConvertibleEntity](name string, entities []T) (*DataTable, error) {
	if len(entities) == 0 {
		return nil, errors.New("no entities to convert")
	}

	columnNames, err := DeriveColumnNamesFromTags(entities[0], "db")
	if err != nil {
		return nil, errors.Wrap(err, "error deriving column names")
	}

	rows := make([][]interface{}, len(entities))
	for i, entity := range entities {
		rows[i] = entity.ToRow()
	}

	return dataTableFromRows(name, columnNames, rows)
}

// DataTableFromStructs builds a table from plain structs using the fields tagged with tagKey.
func DataTableFromStructs[T any](name string, entities []T, tagKey string) (*DataTable, error) {
	if len(entities) == 0 {
		return nil, errors.New("no entities to convert")
	}

	columnNames, err := DeriveColumnNamesFromTags(entities[0], tagKey)
	if err != nil {
		return nil, errors.Wrap(err, "error deriving column names")
	}

	rows, err := StructsToRows(entities, tagKey)
	if err != nil {
		return nil, err
	}

	return dataTableFromRows(name, columnNames, rows)
}

func dataTableFromRows(name string, columnNames []string, rows [][]interface{}) (*DataTable, error) {
	table := &DataTable{Name: name, Columns: make([]Column, len(columnNames))}
	for i, c := range columnNames {
		table.Columns[i] = Column{Name: c, Type: ColObject}
		if len(rows[0]) > i {
			table.Columns[i].Type = columnTypeOfGo(rows[0][i])
		}
	}

	for n, r := range rows {
		if len(r) != len(columnNames) {
			return nil, errors.Errorf("row %d has %d values, expected %d", n, len(r), len(columnNames))
		}

		values := make([]Value, len(r))
		for i, x := range r {
			values[i] = ValueOf(x)
		}

		if err := table.AddRow(values...); err != nil {
			return nil, errors.Wrapf(err, "row %d", n)
		}
	}

	return table, nil
}

func columnTypeOfGo(x any) ColumnType {
	switch ValueOf(x).Kind() {
	case KindString:
		return ColString
	case KindInt64:
		return ColInt64
	case KindDecimal:
		return ColDecimal
	case KindFloat:
		return ColFloat
	case KindBool:
		return ColBool
	case KindDateTime:
		return ColDateTime
	case KindBytes:
		return ColBytes
	}

	if x != nil && reflect.TypeOf(x).Kind() == reflect.String {
		return ColString
	}

	return ColObject
}
