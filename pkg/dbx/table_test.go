package dbx_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
)

func decimalTable(t *testing.T, name string) *dbx.DataTable {
	t.Helper()

	table := dbx.NewDataTable(name,
		dbx.Column{Name: "ID", Type: dbx.ColDecimal, DatabaseType: "NUMBER"},
		dbx.Column{Name: "LABEL", Type: dbx.ColString},
		dbx.Column{Name: "AMOUNT", Type: dbx.ColDecimal, DatabaseType: "NUMBER"},
	)
	require.NoError(t, table.AddRow(dbx.MustDecimal("5.0"), dbx.StringValue("five"), dbx.MustDecimal("1.25")))
	require.NoError(t, table.AddRow(dbx.MustDecimal("6"), dbx.Null(), dbx.MustDecimal("2")))

	return table
}

// TestApplyIntegerFieldsCorrectsDecimal checks the int64 correction keeps rows and values.
func TestApplyIntegerFieldsCorrectsDecimal(t *testing.T) {
	table := decimalTable(t, "Table")
	ds := &dbx.DataSet{Tables: []*dbx.DataTable{table}}

	require.NoError(t, dbx.ApplyIntegerFields(ds, "ID", dbx.Text))

	assert.Equal(t, dbx.ColInt64, table.Columns[0].Type)
	assert.Equal(t, dbx.ColDecimal, table.Columns[2].Type)
	assert.Equal(t, 2, table.RowCount())

	id, err := table.Value(0, "ID")
	require.NoError(t, err)
	assert.Equal(t, dbx.Int64Value(5), id)

	label, err := table.Value(0, "LABEL")
	require.NoError(t, err)
	assert.Equal(t, "five", label.AsString())

	amount, err := table.Value(0, "AMOUNT")
	require.NoError(t, err)
	assert.Equal(t, dbx.MustDecimal("1.25"), amount)
}

// TestApplyIntegerFieldsStoredProcedure skips the cursor token and matches tables by position.
func TestApplyIntegerFieldsStoredProcedure(t *testing.T) {
	first, second := decimalTable(t, "Table"), decimalTable(t, "Table1")
	ds := &dbx.DataSet{Tables: []*dbx.DataTable{first, second}}

	// AMOUNT holds 1.25: converting it would fail, so the leading token must be skipped.
	require.NoError(t, dbx.ApplyIntegerFields(ds, "AMOUNT:ID,ID", dbx.StoredProcedure))

	assert.Equal(t, dbx.ColInt64, first.Columns[0].Type)
	assert.Equal(t, dbx.ColDecimal, first.Columns[2].Type)

	id, err := first.Value(0, "ID")
	require.NoError(t, err)
	assert.Equal(t, dbx.Int64Value(5), id)

	assert.Equal(t, dbx.ColDecimal, second.Columns[0].Type)
	assert.Equal(t, dbx.ColDecimal, second.Columns[2].Type)
}

// TestApplyIntegerFieldsLossyValue expects an error and an untouched table.
func TestApplyIntegerFieldsLossyValue(t *testing.T) {
	table := decimalTable(t, "Table")
	ds := &dbx.DataSet{Tables: []*dbx.DataTable{table}}

	require.Error(t, dbx.ApplyIntegerFields(ds, "AMOUNT", dbx.Text))
	assert.Equal(t, dbx.ColDecimal, table.Columns[2].Type)
}

// TestParseOutputFields checks descriptor splitting per call type.
func TestParseOutputFields(t *testing.T) {
	assert.Nil(t, dbx.ParseOutputFields("", dbx.Text))
	assert.Equal(t, [][]string{{"ID", "QTY"}, {"N"}}, dbx.ParseOutputFields("ID:QTY,N", dbx.Text))
	assert.Equal(t, [][]string{{"QTY"}, nil}, dbx.ParseOutputFields("cur1:QTY,cur2", dbx.StoredProcedure))
}

// TestParseColumnMappings checks the "src:dst" format.
func TestParseColumnMappings(t *testing.T) {
	m, err := dbx.ParseColumnMappings(" id:job_id , name ")
	require.NoError(t, err)
	assert.Equal(t, []dbx.ColumnMapping{{Source: "id", Destination: "job_id"}, {Source: "name", Destination: "name"}}, m)

	_, err = dbx.ParseColumnMappings("id:")
	assert.Error(t, err)
}

// TestResolveColumnMappings maps destination columns back to source indexes.
func TestResolveColumnMappings(t *testing.T) {
	table := decimalTable(t, "Table")

	idx, dst, err := dbx.ResolveColumnMappings(table, []dbx.ColumnMapping{{Source: "amount", Destination: "amt"}, {Source: "ID", Destination: "id"}})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, idx)
	assert.Equal(t, []string{"amt", "id"}, dst)

	_, _, err = dbx.ResolveColumnMappings(table, []dbx.ColumnMapping{{Source: "nope", Destination: "x"}})
	assert.Error(t, err)
}

// TestDataTableExport checks JSON and XML rendering and column selection.
func TestDataTableExport(t *testing.T) {
	table := decimalTable(t, "Orders")

	js, err := table.ToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"ID":5.0,"LABEL":"five","AMOUNT":1.25},{"ID":6,"LABEL":null,"AMOUNT":2}]`, string(js))

	sel, err := table.Select("LABEL")
	require.NoError(t, err)
	assert.Equal(t, []string{"LABEL"}, sel.ColumnNames())
	assert.Equal(t, 2, sel.RowCount())

	ds := &dbx.DataSet{}
	ds.Add(dbx.NewDataTable(""))
	ds.Add(dbx.NewDataTable(""))
	assert.Equal(t, "Table1", ds.Tables[1].Name)
	assert.NotNil(t, ds.TableByName("table"))
}
