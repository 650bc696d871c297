package pgxdb_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
	"github.com/marcodd23/go-dal-core/pkg/dbx/pgxdb"
	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

// passthrough hands pgx.NamedArgs to the mock unchanged.
type passthrough struct{}

func (passthrough) ConvertValue(v any) (driver.Value, error) { return v, nil }

// namedArgs matches a pgx.NamedArgs argument holding want.
type namedArgs pgx.NamedArgs

func (n namedArgs) Match(v driver.Value) bool {
	got, ok := v.(pgx.NamedArgs)
	if !ok || len(got) != len(n) {
		return false
	}

	for k, want := range n {
		if got[k] != want {
			return false
		}
	}

	return true
}

func newManager(t *testing.T) (*dbx.DatabaseManager, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual), sqlmock.ValueConverterOption(passthrough{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	deps := dbx.Dependencies{Connector: dbx.ConnectorFunc(func(string, string) (*sql.DB, error) { return db, nil })}
	spec := &dbx.DatabaseSpecification{Name: "events", Provider: pgxdb.ProviderName, ConnectionString: "postgres://localhost/events"}

	return dbx.NewDatabaseManager(pgxdb.New(), spec, deps), mock
}

// TestCreateCommandNamedArgs checks that parameters are collected into one pgx.NamedArgs
// argument keyed without the marker.
func TestCreateCommandNamedArgs(t *testing.T) {
	p := pgxdb.New()
	params := []*dbx.Parameter{
		dbx.NewParameter("id", dbx.Int64, dbx.Int64Value(7)),
		dbx.NewParameter("@@name", dbx.String, dbx.StringValue("orders")),
	}

	cmd, err := p.CreateCommand(" SELECT * FROM event_log WHERE id = @id AND entity_name = @name ", dbx.Text, params, dbx.CommandOptions{})
	require.NoError(t, err)

	assert.Equal(t, "SELECT * FROM event_log WHERE id = @id AND entity_name = @name", cmd.Text)
	assert.Equal(t, "@id", cmd.Parameters[0].Name)
	assert.Equal(t, "@name", cmd.Parameters[1].Name)
	require.Len(t, cmd.Args, 1)
	assert.Equal(t, pgx.NamedArgs{"id": int64(7), "name": "orders"}, cmd.Args[0])
}

// TestCreateCommandProcedureCall checks that stored procedures are wrapped in CALL.
func TestCreateCommandProcedureCall(t *testing.T) {
	p := pgxdb.New()
	params := []*dbx.Parameter{
		dbx.NewParameter("entity", dbx.String, dbx.StringValue("orders")),
		dbx.NewParameter("age", dbx.Int64, dbx.Int64Value(3)),
	}

	cmd, err := p.CreateCommand("archive_events", dbx.StoredProcedure, params, dbx.CommandOptions{})
	require.NoError(t, err)
	assert.Equal(t, "CALL archive_events(@entity, @age)", cmd.Text)

	cmd, err = p.CreateCommand("CALL archive_events(@entity, 1)", dbx.StoredProcedure, params[:1], dbx.CommandOptions{})
	require.NoError(t, err)
	assert.Equal(t, "CALL archive_events(@entity, 1)", cmd.Text)
}

// TestStructuredParameterAsJSON checks that tables and objects are sent as JSON text.
func TestStructuredParameterAsJSON(t *testing.T) {
	table := dbx.NewDataTable("lines", dbx.Column{Name: "sku", Type: dbx.ColString})
	require.NoError(t, table.AddRow(dbx.StringValue("A-1")))

	p := pgxdb.New()
	cmd, err := p.CreateCommand("SELECT import_lines(@lines::jsonb)", dbx.Text, []*dbx.Parameter{
		dbx.NewStructuredParameter("lines", "", dbx.TableValue(table)),
	}, dbx.CommandOptions{})
	require.NoError(t, err)

	args := cmd.Args[0].(pgx.NamedArgs)
	assert.JSONEq(t, `[{"sku":"A-1"}]`, args["lines"].(string))
}

// TestOutputParameterFailsAtExecution checks that output parameters are rejected when the
// command runs, not when it is built.
func TestOutputParameterFailsAtExecution(t *testing.T) {
	m, _ := newManager(t)

	_, err := m.ExecNonQuery(context.Background(), dbx.StoredProcedure, "count_events", []*dbx.Parameter{
		dbx.NewOutputParameter("total", dbx.Int64, 0),
	})
	require.Error(t, err)

	var dbErr *errorx.DatabaseError
	assert.ErrorAs(t, err, &dbErr)
	assert.Contains(t, err.Error(), "not supported")
}

// TestExecScalarThroughManager runs a text query end to end against the mock driver.
func TestExecScalarThroughManager(t *testing.T) {
	m, mock := newManager(t)

	mock.ExpectQuery("SELECT count(*) FROM event_log WHERE entity_name = @name").
		WithArgs(namedArgs{"name": "orders"}).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	v, err := m.ExecScalar(context.Background(), dbx.Text, "SELECT count(*) FROM event_log WHERE entity_name = @name", []*dbx.Parameter{
		dbx.NewParameter("name", dbx.String, dbx.StringValue("orders")),
	})
	require.NoError(t, err)
	assert.Equal(t, dbx.Int64Value(3), v)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestBulkCopyRejectsBadTableName checks destination validation before any copy starts.
func TestBulkCopyRejectsBadTableName(t *testing.T) {
	table := dbx.NewDataTable("src", dbx.Column{Name: "id", Type: dbx.ColInt64})

	_, err := pgxdb.New().BulkCopy(context.Background(), dbx.Handle{}, dbx.BulkCopyRequest{Destination: "a.b.c", Table: table})
	require.Error(t, err)

	var cfgErr *errorx.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

// TestListenUnlisten checks the channel is quoted as an identifier.
func TestListenUnlisten(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`LISTEN "event_log"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UNLISTEN "event_log"`).WillReturnResult(sqlmock.NewResult(0, 0))

	conn, err := db.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()

	p := pgxdb.New()
	h := dbx.Handle{DB: db, Conn: conn}
	require.NoError(t, p.Subscribe(ctx, h, "event_log"))
	require.NoError(t, p.Unsubscribe(ctx, h, "event_log"))
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestConnConfigConnectionString covers local and Cloud SQL connection strings.
func TestConnConfigConnectionString(t *testing.T) {
	local, err := pgxdb.ConnConfig{
		IsLocalEnv: true,
		Host:       "localhost",
		Port:       5432,
		DBName:     "main-db",
		User:       "postgres",
		Password:   "pa ss",
	}.ConnectionString()
	require.NoError(t, err)
	assert.Equal(t, "dbname=main-db user=postgres password='pa ss' host=localhost port=5432", local)

	cloud, err := pgxdb.ConnConfig{Host: "proj:region:inst", DBName: "db", User: "u", Password: "p"}.ConnectionString()
	require.NoError(t, err)
	assert.Equal(t, "dbname=db user=u password=p host=/cloudsql/proj:region:inst", cloud)

	_, err = pgxdb.ConnConfig{User: "u", Password: "p"}.ConnectionString()
	require.Error(t, err)
}
