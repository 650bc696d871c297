package dbx

import (
	"context"
	"database/sql"
	"encoding/xml"
	"fmt"

	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

// DatabaseManager is the execution surface over one ConnectionContext.
//
// Every Exec method builds the command through the provider, runs it on the connection
// context and, on the way out, disposes the connection when no transaction is active and
// auto-dispose is enabled. Errors are returned unchanged after that cleanup.
type DatabaseManager struct {
	provider    RelationalProvider
	conn        *ConnectionContext
	spec        *DatabaseSpecification
	query       *QuerySpecification
	deps        Dependencies
	autoDispose bool
}

// NewDatabaseManager binds a manager to the database described by spec.
func NewDatabaseManager(provider RelationalProvider, spec *DatabaseSpecification, deps Dependencies, opts ...ManagerOption) *DatabaseManager {
	m := &DatabaseManager{provider: provider, spec: spec, deps: deps, autoDispose: true}
	for _, opt := range opts {
		opt(m)
	}

	if m.conn == nil {
		m.conn = NewConnectionContext(provider, spec, deps)
	}

	return m
}

// OpenDatabaseManager resolves the query specification named queryName, its database
// specification and provider, and returns a manager bound to all three.
func OpenDatabaseManager(deps Dependencies, queryName string, opts ...ManagerOption) (*DatabaseManager, error) {
	if deps.Resolver == nil {
		return nil, errorx.NewConfigurationError("no specification resolver configured")
	}

	query := deps.Resolver.GetQuerySpecification(queryName)
	if query == nil {
		return nil, errorx.NewConfigurationError("query specification '%s' not found", queryName)
	}

	return NewDatabaseManagerForDatabase(deps, query.DatabaseName, append([]ManagerOption{WithQuerySpecification(query)}, opts...)...)
}

// NewDatabaseManagerForDatabase resolves the database specification named dbName and its
// provider and returns a manager bound to them.
func NewDatabaseManagerForDatabase(deps Dependencies, dbName string, opts ...ManagerOption) (*DatabaseManager, error) {
	if deps.Resolver == nil {
		return nil, errorx.NewConfigurationError("no specification resolver configured")
	}

	spec := deps.Resolver.GetDatabaseSpecification(dbName)
	if spec == nil {
		return nil, errorx.NewConfigurationError("database specification '%s' not found", dbName)
	}

	provider, err := deps.Providers.Get(spec.Provider)
	if err != nil {
		return nil, err
	}

	return NewDatabaseManager(provider, spec, deps, opts...), nil
}

// Query returns the bound query specification, or nil.
func (m *DatabaseManager) Query() *QuerySpecification { return m.query }

// Connection returns the connection context.
func (m *DatabaseManager) Connection() *ConnectionContext { return m.conn }

// AutoDispose reports whether auto-dispose is enabled.
func (m *DatabaseManager) AutoDispose() bool { return m.autoDispose }

// SetAutoDispose enables or disables auto-dispose.
func (m *DatabaseManager) SetAutoDispose(enabled bool) { m.autoDispose = enabled }

func (m *DatabaseManager) buildCommand(callType CallType, query string, params []*Parameter, o execOptions) (*Command, error) {
	cmd, err := m.provider.CreateCommand(query, callType, params, CommandOptions{
		MapUdtAsJson: o.mapUdtAsJson,
		MapUdtAsXml:  o.mapUdtAsXml,
		Timeout:      ResolveTimeout(m.spec, o.timeout),
	})
	if err != nil {
		return nil, err
	}

	if o.capture != nil {
		*o.capture = cmd
	}

	return cmd, nil
}

// finish disposes the connection when no transaction is active and auto-dispose is on.
func (m *DatabaseManager) finish(ctx context.Context) {
	if m.conn.InTransaction() || !m.autoDispose {
		return
	}

	if err := m.conn.Dispose(ctx); err != nil {
		m.deps.logger().LogError(ctx, "error disposing connection", err)
	}
}

func (m *DatabaseManager) postProcess(ds *DataSet, callType CallType, o execOptions) error {
	if o.outputFields == "" {
		return nil
	}

	pp, ok := m.provider.(ResultPostProcessor)
	if !ok {
		return nil
	}

	return pp.PostProcess(ds, o.outputFields, callType)
}

//###################################
//#        Execution matrix         #
//###################################

// ExecNonQuery executes a statement and returns the affected rows.
func (m *DatabaseManager) ExecNonQuery(ctx context.Context, callType CallType, query string, params []*Parameter, opts ...ExecOption) (int64, error) {
	defer m.finish(ctx)

	cmd, err := m.buildCommand(callType, query, params, collectExecOptions(opts))
	if err != nil {
		return 0, err
	}

	return m.conn.ExecuteNonQuery(ctx, cmd)
}

// ExecScalar executes a query and returns the first column of the first row.
func (m *DatabaseManager) ExecScalar(ctx context.Context, callType CallType, query string, params []*Parameter, opts ...ExecOption) (Value, error) {
	defer m.finish(ctx)

	cmd, err := m.buildCommand(callType, query, params, collectExecOptions(opts))
	if err != nil {
		return Null(), err
	}

	return m.conn.ExecuteScalar(ctx, cmd)
}

// ExecDataReader executes a query and returns an open reader. The connection is released
// when the reader is closed.
func (m *DatabaseManager) ExecDataReader(ctx context.Context, callType CallType, query string, params []*Parameter, opts ...ExecOption) (*Reader, error) {
	cmd, err := m.buildCommand(callType, query, params, collectExecOptions(opts))
	if err != nil {
		m.finish(ctx)
		return nil, err
	}

	reader, err := m.conn.ExecuteReader(ctx, cmd)
	if err != nil {
		m.finish(ctx)
		return nil, err
	}

	reader.OnClose(func(ctx context.Context) error {
		m.finish(ctx)
		return nil
	})

	return reader, nil
}

// ExecXmlReader executes a query producing XML and returns a decoder over it.
func (m *DatabaseManager) ExecXmlReader(ctx context.Context, callType CallType, query string, params []*Parameter, opts ...ExecOption) (*xml.Decoder, error) {
	defer m.finish(ctx)

	cmd, err := m.buildCommand(callType, query, params, collectExecOptions(opts))
	if err != nil {
		return nil, err
	}

	return m.conn.ExecuteXmlReader(ctx, cmd)
}

// ExecDataSet executes a command and reads every result set.
func (m *DatabaseManager) ExecDataSet(ctx context.Context, callType CallType, query string, params []*Parameter, opts ...ExecOption) (*DataSet, error) {
	defer m.finish(ctx)

	o := collectExecOptions(opts)

	cmd, err := m.buildCommand(callType, query, params, o)
	if err != nil {
		return nil, err
	}

	ds, err := m.conn.FillDataSet(ctx, cmd)
	if err != nil {
		return nil, err
	}

	if err := m.postProcess(ds, callType, o); err != nil {
		return nil, err
	}

	return ds, nil
}

// ExecDataTable executes a command and reads its first result set.
func (m *DatabaseManager) ExecDataTable(ctx context.Context, callType CallType, query string, params []*Parameter, opts ...ExecOption) (*DataTable, error) {
	defer m.finish(ctx)

	o := collectExecOptions(opts)

	cmd, err := m.buildCommand(callType, query, params, o)
	if err != nil {
		return nil, err
	}

	table, err := m.conn.FillTable(ctx, cmd)
	if err != nil {
		return nil, err
	}

	if err := m.postProcess(&DataSet{Tables: []*DataTable{table}}, callType, o); err != nil {
		return nil, err
	}

	return table, nil
}

//###################################
//#          Transactions           #
//###################################

// BeginTransaction starts a transaction on the manager's connection. A transaction still
// active is rolled back first.
func (m *DatabaseManager) BeginTransaction(ctx context.Context, opts *sql.TxOptions) (Transaction, error) {
	tx, err := m.conn.BeginTransaction(ctx, opts)
	if err != nil {
		m.finish(ctx)
		return nil, err
	}

	m.deps.logger().LogDebug(ctx, fmt.Sprintf("Begin transaction: %d", tx.TxId()))

	return tx, nil
}

// Commit commits the active transaction and applies the auto-dispose policy.
func (m *DatabaseManager) Commit(ctx context.Context) error {
	defer m.finish(ctx)

	return m.conn.Commit(ctx)
}

// Rollback rolls back the active transaction and applies the auto-dispose policy.
func (m *DatabaseManager) Rollback(ctx context.Context) {
	defer m.finish(ctx)

	m.conn.Rollback(ctx)
}

// Dispose rolls back any active transaction and releases the connection.
func (m *DatabaseManager) Dispose(ctx context.Context) error {
	return m.conn.Dispose(ctx)
}
