package dbx

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ColumnType is the declared type of a DataTable column.
type ColumnType uint8

const (
	ColString ColumnType = iota
	ColInt64
	ColDecimal
	ColFloat
	ColBool
	ColDateTime
	ColBytes
	ColObject
)

var columnTypeNames = [...]string{"String", "Int64", "Decimal", "Float", "Bool", "DateTime", "Bytes", "Object"}

func (c ColumnType) String() string {
	if int(c) < len(columnTypeNames) {
		return columnTypeNames[c]
	}

	return "Object"
}

// Column describes one DataTable column. DatabaseType is the driver's type name, when known.
type Column struct {
	Name         string
	Type         ColumnType
	DatabaseType string
}

// DataTable is an in-memory result set: typed columns and rows of Values.
type DataTable struct {
	Name    string
	Columns []Column
	Rows    [][]Value
}

// DataSet groups the result sets of one command, in order.
type DataSet struct {
	Name   string
	Tables []*DataTable
}

// NewDataTable returns an empty table with the given columns.
func NewDataTable(name string, columns ...Column) *DataTable {
	return &DataTable{Name: name, Columns: append([]Column(nil), columns...)}
}

// RowCount returns the number of rows.
func (t *DataTable) RowCount() int {
	if t == nil {
		return 0
	}

	return len(t.Rows)
}

// ColumnIndex returns the index of the column named name (case-insensitive), or -1.
func (t *DataTable) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}

	return -1
}

// ColumnNames lists the column names in order.
func (t *DataTable) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}

	return names
}

// AddRow appends a row converted to the declared column types.
func (t *DataTable) AddRow(values ...Value) error {
	if len(values) != len(t.Columns) {
		return errors.Errorf("table '%s' has %d columns, row has %d values", t.Name, len(t.Columns), len(values))
	}

	row := make([]Value, len(values))
	for i, v := range values {
		converted, err := ConvertValue(v, t.Columns[i].Type)
		if err != nil {
			return errors.Wrapf(err, "column '%s'", t.Columns[i].Name)
		}

		row[i] = converted
	}

	t.Rows = append(t.Rows, row)

	return nil
}

// Value returns the cell at row for the named column.
func (t *DataTable) Value(row int, column string) (Value, error) {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return Null(), errors.Errorf("table '%s' has no column '%s'", t.Name, column)
	}

	if row < 0 || row >= len(t.Rows) {
		return Null(), errors.Errorf("table '%s' has no row %d", t.Name, row)
	}

	return t.Rows[row][idx], nil
}

// Clone copies the schema without rows.
func (t *DataTable) Clone() *DataTable {
	return NewDataTable(t.Name, t.Columns...)
}

// ImportRow appends a copy of row, converting each cell to the declared column type.
func (t *DataTable) ImportRow(row []Value) error {
	return t.AddRow(row...)
}

// SetColumnType changes the declared type of a column. Rows are kept by cloning the schema
// with the new type and re-importing every row, so each cell is converted; a cell that does
// not convert without loss aborts the change and leaves the table untouched.
func (t *DataTable) SetColumnType(column string, colType ColumnType) error {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return errors.Errorf("table '%s' has no column '%s'", t.Name, column)
	}

	if t.Columns[idx].Type == colType {
		return nil
	}

	clone := t.Clone()
	clone.Columns[idx].Type = colType

	for _, row := range t.Rows {
		if err := clone.ImportRow(row); err != nil {
			return err
		}
	}

	*t = *clone

	return nil
}

// Select returns a new table with the given columns, in the given order.
func (t *DataTable) Select(columns ...string) (*DataTable, error) {
	idx := make([]int, len(columns))
	out := &DataTable{Name: t.Name}

	for i, name := range columns {
		idx[i] = t.ColumnIndex(name)
		if idx[i] < 0 {
			return nil, errors.Errorf("table '%s' has no column '%s'", t.Name, name)
		}

		out.Columns = append(out.Columns, t.Columns[idx[i]])
	}

	for _, row := range t.Rows {
		projected := make([]Value, len(idx))
		for i, j := range idx {
			projected[i] = row[j]
		}

		out.Rows = append(out.Rows, projected)
	}

	return out, nil
}

// Table returns the i-th table, or nil.
func (ds *DataSet) Table(i int) *DataTable {
	if ds == nil || i < 0 || i >= len(ds.Tables) {
		return nil
	}

	return ds.Tables[i]
}

// TableByName returns the table named name (case-insensitive), or nil.
func (ds *DataSet) TableByName(name string) *DataTable {
	for _, t := range ds.Tables {
		if strings.EqualFold(t.Name, name) {
			return t
		}
	}

	return nil
}

// Add appends t, naming it "Table", "Table1", ... when it has no name.
func (ds *DataSet) Add(t *DataTable) {
	if t.Name == "" {
		t.Name = TableName(len(ds.Tables))
	}

	ds.Tables = append(ds.Tables, t)
}

// TableName returns the default name of the i-th result set.
func TableName(i int) string {
	if i == 0 {
		return "Table"
	}

	return fmt.Sprintf("Table%d", i)
}

//###################################
//#        Reading result sets       #
//###################################

// CellConverter turns a raw driver value into a Value for a column. Providers use it to
// handle driver-specific representations; returning false falls back to ConvertCell.
type CellConverter func(col Column, raw any) (Value, bool)

// ColumnTypeOf maps a driver type name to a ColumnType.
func ColumnTypeOf(databaseType string) ColumnType {
	dt := strings.ToUpper(strings.TrimSpace(databaseType))

	switch {
	case dt == "":
		return ColObject
	case dt == "INT" || dt == "BIGINT" || dt == "SMALLINT" || dt == "TINYINT" || dt == "INTEGER" ||
		dt == "INT2" || dt == "INT4" || dt == "INT8" || dt == "SERIAL" || dt == "BIGSERIAL":
		return ColInt64
	case dt == "DECIMAL" || dt == "NUMERIC" || dt == "MONEY" || dt == "SMALLMONEY" || dt == "NUMBER":
		return ColDecimal
	case dt == "FLOAT" || dt == "REAL" || dt == "FLOAT4" || dt == "FLOAT8" || dt == "DOUBLE" ||
		dt == "BINARY_DOUBLE" || dt == "BINARY_FLOAT" || dt == "IBDOUBLE" || dt == "IBFLOAT":
		return ColFloat
	case dt == "BIT" || dt == "BOOL" || dt == "BOOLEAN":
		return ColBool
	case strings.HasPrefix(dt, "DATE") || strings.HasPrefix(dt, "TIMESTAMP") || strings.HasPrefix(dt, "TIME") ||
		dt == "SMALLDATETIME":
		return ColDateTime
	case dt == "VARBINARY" || dt == "BINARY" || dt == "IMAGE" || dt == "BLOB" || dt == "RAW" ||
		dt == "LONG RAW" || dt == "BYTEA" || dt == "LONGRAW":
		return ColBytes
	}

	return ColString
}

// ConvertCell converts a raw driver value to a Value of the column's declared type.
func ConvertCell(col Column, raw any) (Value, error) {
	v := ValueOf(raw)
	if v.IsNull() {
		return v, nil
	}

	if b, ok := raw.([]byte); ok && col.Type != ColBytes {
		v = StringValue(string(b))
	}

	return ConvertValue(v, col.Type)
}

// ConvertValue converts v to the representation of a column type.
func ConvertValue(v Value, colType ColumnType) (Value, error) {
	if v.IsNull() {
		return v, nil
	}

	switch colType {
	case ColString:
		if v.Kind() == KindString {
			return v, nil
		}

		return StringValue(v.AsString()), nil
	case ColInt64:
		i, err := v.AsInt64()
		if err != nil {
			return Null(), err
		}

		return Int64Value(i), nil
	case ColDecimal:
		return v.AsDecimal()
	case ColFloat:
		f, err := v.AsFloat()
		if err != nil {
			return Null(), err
		}

		return FloatValue(f), nil
	case ColBool:
		b, err := v.AsBool()
		if err != nil {
			return Null(), err
		}

		return BoolValue(b), nil
	case ColDateTime:
		tm, err := v.AsTime()
		if err != nil {
			return Null(), err
		}

		return TimeValue(tm), nil
	case ColBytes:
		b, err := v.AsBytes()
		if err != nil {
			return Null(), err
		}

		return BytesValue(b), nil
	}

	return v, nil
}

// ReadTable drains the current result set of rows into a DataTable. It does not close rows.
func ReadTable(rows *sql.Rows, name string, convert CellConverter) (*DataTable, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	table := &DataTable{Name: name, Columns: make([]Column, len(colTypes))}
	for i, ct := range colTypes {
		table.Columns[i] = Column{Name: ct.Name(), DatabaseType: ct.DatabaseTypeName(), Type: ColumnTypeOf(ct.DatabaseTypeName())}
	}

	raw := make([]any, len(colTypes))
	ptrs := make([]any, len(colTypes))
	for i := range raw {
		ptrs[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.WithStack(err)
		}

		row := make([]Value, len(raw))
		for i, r := range raw {
			row[i], err = convertCell(table.Columns[i], r, convert)
			if err != nil {
				return nil, errors.Wrapf(err, "column '%s'", table.Columns[i].Name)
			}
		}

		table.Rows = append(table.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	return table, nil
}

func convertCell(col Column, raw any, convert CellConverter) (Value, error) {
	if convert != nil {
		if v, ok := convert(col, raw); ok {
			return v, nil
		}
	}

	return ConvertCell(col, raw)
}
