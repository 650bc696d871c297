package oradb_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	go_ora "github.com/sijms/go-ora/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
	"github.com/marcodd23/go-dal-core/pkg/dbx/oradb"
)

type orderLine struct {
	ID  int64  `json:"id" xml:"id" udt:"ID"`
	Sku string `json:"sku" xml:"sku" udt:"SKU"`
}

// passthrough hands array arguments to the mock unchanged.
type passthrough struct{}

func (passthrough) ConvertValue(v any) (driver.Value, error) { return v, nil }

func newManager(t *testing.T) (*dbx.DatabaseManager, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	deps := dbx.Dependencies{Connector: dbx.ConnectorFunc(func(string, string) (*sql.DB, error) { return db, nil })}
	spec := &dbx.DatabaseSpecification{Name: "erp", Provider: oradb.ProviderName, ConnectionString: "oracle://localhost/XE"}

	return dbx.NewDatabaseManager(oradb.New(), spec, deps), mock
}

// TestParameterNamesPerCallType checks that procedure calls strip the marker and text
// commands carry it exactly once.
func TestParameterNamesPerCallType(t *testing.T) {
	p := oradb.New()
	params := []*dbx.Parameter{
		dbx.NewParameter(":id", dbx.Int64, dbx.Int64Value(1)),
		dbx.NewParameter("status", dbx.String, dbx.StringValue("OPEN")),
	}

	text, err := p.CreateCommand("SELECT * FROM orders WHERE id = :id AND status = :status", dbx.Text, params, dbx.CommandOptions{})
	require.NoError(t, err)
	assert.Equal(t, ":id", text.Parameters[0].Name)
	assert.Equal(t, ":status", text.Parameters[1].Name)
	assert.Equal(t, "id", text.Args[0].(sql.NamedArg).Name)

	proc, err := p.CreateCommand("erp.close_order", dbx.StoredProcedure, params, dbx.CommandOptions{})
	require.NoError(t, err)
	assert.Equal(t, "id", proc.Parameters[0].Name)
	assert.Equal(t, "status", proc.Parameters[1].Name)
	assert.Equal(t, "BEGIN erp.close_order(id => :id, status => :status); END;", proc.Text)
}

// TestStructuredAsClob checks JSON and XML mapping of structured parameters.
func TestStructuredAsClob(t *testing.T) {
	p := oradb.New()
	lines := []orderLine{{ID: 1, Sku: "A"}}
	prm := dbx.NewStructuredParameter("lines", "ORDER_LINE", dbx.ObjectValue(lines))

	cmd, err := p.CreateCommand("erp.load_lines", dbx.StoredProcedure, []*dbx.Parameter{prm}, dbx.CommandOptions{MapUdtAsJson: true})
	require.NoError(t, err)

	clob, ok := cmd.Args[0].(sql.NamedArg).Value.(go_ora.Clob)
	require.True(t, ok)
	assert.True(t, clob.Valid)
	assert.JSONEq(t, `[{"id":1,"sku":"A"}]`, clob.String)
	assert.Equal(t, "CLOB", cmd.Parameters[0].DbType)

	table := dbx.NewDataTable("line", dbx.Column{Name: "sku", Type: dbx.ColString})
	require.NoError(t, table.AddRow(dbx.StringValue("B")))

	cmd, err = p.CreateCommand("erp.load_lines", dbx.StoredProcedure, []*dbx.Parameter{
		dbx.NewStructuredParameter("lines", "line", dbx.TableValue(table)),
	}, dbx.CommandOptions{MapUdtAsXml: true})
	require.NoError(t, err)

	clob = cmd.Args[0].(sql.NamedArg).Value.(go_ora.Clob)
	assert.Equal(t, "<DocumentElement><line><sku>B</sku></line></DocumentElement>", clob.String)
}

// TestBinaryAsUtf16Blob checks that text written to a BLOB is UTF-16LE encoded.
func TestBinaryAsUtf16Blob(t *testing.T) {
	cmd, err := oradb.New().CreateCommand("erp.save_doc", dbx.StoredProcedure, []*dbx.Parameter{
		dbx.NewParameter("doc", dbx.Binary, dbx.StringValue("Hi")),
	}, dbx.CommandOptions{})
	require.NoError(t, err)

	blob, ok := cmd.Args[0].(sql.NamedArg).Value.(go_ora.Blob)
	require.True(t, ok)
	assert.Equal(t, []byte{'H', 0, 'i', 0}, blob.Data)
}

// TestOutputParameters checks cursor and sized outputs.
func TestOutputParameters(t *testing.T) {
	cmd, err := oradb.New().CreateCommand("erp.list_orders", dbx.StoredProcedure, []*dbx.Parameter{
		dbx.NewOutputParameter("orders", dbx.RefCursor, 0),
		dbx.NewOutputParameter("message", dbx.String, 0),
		dbx.NewOutputParameter("total", dbx.Int64, 0),
	}, dbx.CommandOptions{})
	require.NoError(t, err)
	require.True(t, cmd.HasOutputs())

	cursor, ok := cmd.Args[0].(sql.NamedArg).Value.(sql.Out)
	require.True(t, ok)
	assert.IsType(t, &go_ora.RefCursor{}, cursor.Dest)

	message := cmd.Args[1].(sql.NamedArg).Value.(go_ora.Out)
	assert.Equal(t, oradb.DefaultOutputSize, message.Size)

	total := cmd.Args[2].(sql.NamedArg).Value.(go_ora.Out)
	assert.IsType(t, &sql.NullInt64{}, total.Dest)
}

// TestUdtWithoutTagFailsAtExecution checks that the object type is registered, and rejected,
// only when the command runs.
func TestUdtWithoutTagFailsAtExecution(t *testing.T) {
	prm := &dbx.Parameter{Name: "line", Type: dbx.Structured, Value: dbx.ObjectValue(orderLine{ID: 1})}

	_, err := oradb.New().CreateCommand("erp.add_line", dbx.StoredProcedure, []*dbx.Parameter{prm}, dbx.CommandOptions{})
	require.NoError(t, err)

	m, _ := newManager(t)

	_, err = m.ExecNonQuery(context.Background(), dbx.StoredProcedure, "erp.add_line", []*dbx.Parameter{prm})
	require.Error(t, err)
	assert.True(t, m.Connection().State().IsClosed())
}

// TestIntegerCorrectionOnFill checks that NUMBER columns named in the output fields come back
// as Int64 and the others stay decimal.
func TestIntegerCorrectionOnFill(t *testing.T) {
	m, mock := newManager(t)

	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("ID").OfType("NUMBER", float64(0)),
		sqlmock.NewColumn("PRICE").OfType("NUMBER", float64(0)),
	).AddRow(float64(5), 2.5).AddRow(float64(6), 3.0)
	mock.ExpectQuery("SELECT id, price FROM orders").WillReturnRows(rows)

	query := &dbx.QuerySpecification{Name: "orders", Query: "SELECT id, price FROM orders", ExecutionType: dbx.Text, OutputFields: "ID"}

	table, err := m.ExecSpecDataTable(context.Background(), query, nil)
	require.NoError(t, err)

	assert.Equal(t, dbx.ColInt64, table.Columns[0].Type)
	assert.Equal(t, dbx.ColDecimal, table.Columns[1].Type)
	assert.Equal(t, 2, table.RowCount())

	id, err := table.Value(0, "ID")
	require.NoError(t, err)
	assert.Equal(t, dbx.Int64Value(5), id)

	price, err := table.Value(0, "PRICE")
	require.NoError(t, err)
	assert.Equal(t, "2.5", price.AsString())
}

// TestBulkCopyArrayBinding checks the array insert and its internal transaction.
func TestBulkCopyArrayBinding(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual), sqlmock.ValueConverterOption(passthrough{}))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO erp.jobs (job_id, job_name) VALUES (:1, :2)").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	table := dbx.NewDataTable("jobs", dbx.Column{Name: "id", Type: dbx.ColInt64}, dbx.Column{Name: "name", Type: dbx.ColString})
	require.NoError(t, table.AddRow(dbx.Int64Value(1), dbx.StringValue("a")))
	require.NoError(t, table.AddRow(dbx.Int64Value(2), dbx.Null()))

	p := oradb.New()
	assert.Equal(t, dbx.BulkInternalTx, p.BulkTransactionMode())

	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	n, err := p.BulkCopy(context.Background(), dbx.Handle{DB: db, Conn: conn}, dbx.BulkCopyRequest{
		Destination: "erp.jobs",
		Table:       table,
		Mappings:    []dbx.ColumnMapping{{Source: "id", Destination: "job_id"}, {Source: "name", Destination: "job_name"}},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestBulkLoaderSharesTransactionAcrossArrayInserts checks that several array inserts run in
// one loader transaction that is rolled back when a later insert fails.
func TestBulkLoaderSharesTransactionAcrossArrayInserts(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual), sqlmock.ValueConverterOption(passthrough{}))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO erp.jobs (id) VALUES (:1)").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO erp.jobs_audit (id) VALUES (:1)").
		WithArgs(sqlmock.AnyArg()).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	table := dbx.NewDataTable("jobs", dbx.Column{Name: "id", Type: dbx.ColInt64})
	require.NoError(t, table.AddRow(dbx.Int64Value(1)))

	deps := dbx.Dependencies{Connector: dbx.ConnectorFunc(func(string, string) (*sql.DB, error) { return db, nil })}
	spec := &dbx.DatabaseSpecification{Name: "erp", Provider: oradb.ProviderName, ConnectionString: "oracle://localhost/XE"}
	loader := dbx.NewBulkLoader(oradb.New(), spec, nil, deps)

	_, err = loader.BulkInsertMany(context.Background(), []dbx.BulkLoad{
		{Destination: "erp.jobs", Table: table},
		{Destination: "erp.jobs_audit", Table: table},
	})
	require.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestUdtRegisteredOncePerPool checks that repeated executions reuse the object type already
// registered on the pool.
func TestUdtRegisteredOncePerPool(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual), sqlmock.ValueConverterOption(passthrough{}))
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < 3; i++ {
		mock.ExpectExec("BEGIN erp.add_line(line => :line); END;").
			WithArgs(sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	var registered []string
	provider := oradb.New(oradb.WithTypeRegistrar(func(pool *sql.DB, typeName string, _ any) error {
		assert.Same(t, db, pool)
		registered = append(registered, typeName)
		return nil
	}))

	deps := dbx.Dependencies{Connector: dbx.ConnectorFunc(func(string, string) (*sql.DB, error) { return db, nil })}
	spec := &dbx.DatabaseSpecification{Name: "erp", Provider: oradb.ProviderName, ConnectionString: "oracle://localhost/XE"}
	m := dbx.NewDatabaseManager(provider, spec, deps)

	for i := 0; i < 3; i++ {
		prm := &dbx.Parameter{Name: "line", Type: dbx.Structured, Tag: "ERP.ORDER_LINE", Value: dbx.ObjectValue(orderLine{ID: int64(i), Sku: "x"})}

		_, err := m.ExecNonQuery(context.Background(), dbx.StoredProcedure, "erp.add_line", []*dbx.Parameter{prm})
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"ERP.ORDER_LINE"}, registered)
	require.NoError(t, mock.ExpectationsWereMet())
}
