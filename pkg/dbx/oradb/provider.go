// Package oradb is the Oracle provider, on github.com/sijms/go-ora/v2.
//
// Text commands bind ":name" parameters. Stored procedures are wrapped in an anonymous block
// with named notation, so parameter names are bound without the marker. Oracle reports every
// NUMBER column as a decimal; PostProcess corrects the integer columns named in the query
// specification's output fields.
package oradb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	go_ora "github.com/sijms/go-ora/v2"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

const (
	// ProviderName is the name used in DatabaseSpecification.Provider.
	ProviderName = "oracle"
	// Marker prefixes parameter names in text commands.
	Marker = ':'
	// DefaultOutputSize is the buffer size of string output parameters without a Size.
	DefaultOutputSize = 4000
)

// TypeRegistrar registers an object type on a pool so values of typeObj can be bound.
type TypeRegistrar func(db *sql.DB, typeName string, typeObj any) error

// Option configures a Provider.
type Option func(*Provider)

// WithTypeRegistrar replaces the go-ora object type registration.
func WithTypeRegistrar(r TypeRegistrar) Option {
	return func(p *Provider) {
		p.registrar = r
	}
}

type udtKey struct {
	db   *sql.DB
	name string
}

// Provider implements dbx.RelationalProvider for Oracle.
type Provider struct {
	*dbx.BaseProvider

	registrar TypeRegistrar

	udtMu    sync.Mutex
	udtTypes map[udtKey]struct{}
}

var (
	_ dbx.RelationalProvider  = (*Provider)(nil)
	_ dbx.BulkCopier          = (*Provider)(nil)
	_ dbx.ChangeListener      = (*Provider)(nil)
	_ dbx.ResultPostProcessor = (*Provider)(nil)
)

// New returns the Oracle provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		BaseProvider: &dbx.BaseProvider{
			ProviderName: ProviderName,
			Driver:       "oracle",
			ParamMarker:  Marker,
		},
		registrar: func(db *sql.DB, typeName string, typeObj any) error {
			return go_ora.RegisterType(db, typeName, "", typeObj)
		},
		udtTypes: make(map[udtKey]struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// CreateCommand binds params by name. Structured inputs are serialized to a CLOB when JSON or
// XML mapping is on and registered as a UDT otherwise; Binary inputs go to a BLOB; RefCursor
// outputs are read back as tables.
func (p *Provider) CreateCommand(query string, callType dbx.CallType, params []*dbx.Parameter, opts dbx.CommandOptions) (*dbx.Command, error) {
	strip := callType == dbx.StoredProcedure
	cmd := dbx.NewCommand(ProviderName, strings.TrimSpace(query), callType, opts.Timeout)

	for _, prm := range params {
		name := dbx.NormalizeParameterName(prm.Name, Marker, strip)
		bp := &dbx.BoundParameter{Name: name, Parameter: prm, DbType: prm.Type.String()}

		var (
			arg any
			err error
		)

		switch {
		case prm.Type == dbx.Structured && !prm.IsOutput && (opts.MapUdtAsJson || opts.MapUdtAsXml):
			arg, err = structuredClob(prm.Value, opts.MapUdtAsXml && !opts.MapUdtAsJson, prm.Tag)
			bp.DbType = "CLOB"
		case prm.Type == dbx.Structured && !prm.IsOutput:
			arg = prm.Value.Interface()
			bp.DbType = prm.Tag
			cmd.AddBinder(p.udtBinder(prm))
		case prm.Type == dbx.Binary && !prm.IsOutput:
			arg, err = binaryBlob(prm.Value)
			bp.DbType = "BLOB"
		case prm.IsOutput && prm.Type == dbx.RefCursor:
			cursor := &go_ora.RefCursor{}
			arg = sql.Out{Dest: cursor}
			cmd.AddOutput(prm, cursor, cursorCollector(cursor))
		case prm.IsOutput:
			dest := dbx.OutputHolder(prm.Type)
			arg = go_ora.Out{Dest: dest, Size: outputSize(prm)}
			cmd.AddOutput(prm, dest, nil)
		case prm.Type == dbx.UnKnown || prm.Type == dbx.RefCursor:
			arg = prm.Value.Interface()
		default:
			arg, err = dbx.CoerceValue(prm.Type, prm.Value)
		}

		if err != nil {
			return nil, errorx.NewConfigurationErrorWrapper(err, "error converting parameter '%s'", name)
		}

		bp.Arg = sql.Named(strings.TrimLeft(name, string(Marker)), arg)
		cmd.Bind(bp)
	}

	if callType == dbx.StoredProcedure {
		cmd.Text = procedureCall(cmd.Text, cmd.Parameters)
	}

	return cmd, nil
}

// procedureCall wraps a procedure name in an anonymous block using named notation. Text that
// already is a block is left alone.
func procedureCall(name string, params []*dbx.BoundParameter) string {
	upper := strings.ToUpper(name)
	if strings.HasPrefix(upper, "BEGIN") || strings.HasPrefix(upper, "DECLARE") || strings.HasPrefix(upper, "CALL ") {
		return name
	}

	args := make([]string, len(params))
	for i, bp := range params {
		args[i] = fmt.Sprintf("%s => %c%s", bp.Name, Marker, bp.Name)
	}

	return fmt.Sprintf("BEGIN %s(%s); END;", name, strings.Join(args, ", "))
}

func outputSize(prm *dbx.Parameter) int {
	if prm.Size > 0 {
		return prm.Size
	}

	switch prm.Type {
	case dbx.String, dbx.AnsiString, dbx.Xml, dbx.Guid, dbx.Decimal, dbx.UnKnown, dbx.Object:
		return DefaultOutputSize
	}

	return 0
}

// udtBinder registers the parameter's object type on the pool before execution. The server
// rejects a missing or unknown type name at this point. A type is registered once per pool.
func (p *Provider) udtBinder(prm *dbx.Parameter) dbx.Binder {
	return func(_ context.Context, h dbx.Handle) error {
		if prm.Value.IsNull() {
			return nil
		}

		key := udtKey{db: h.DB, name: strings.ToUpper(prm.Tag)}

		p.udtMu.Lock()
		defer p.udtMu.Unlock()

		if _, ok := p.udtTypes[key]; ok {
			return nil
		}

		if err := p.registrar(h.DB, prm.Tag, prm.Value.Interface()); err != nil {
			return errorx.NewDatabaseErrorWrapper(err, "error registering object type '%s' for parameter '%s'", prm.Tag, prm.Name)
		}

		p.udtTypes[key] = struct{}{}

		return nil
	}
}

// cursorCollector reads the returned cursor into a table.
func cursorCollector(cursor *go_ora.RefCursor) dbx.OutputCollector {
	return func(_ context.Context, _ dbx.Handle) (dbx.Value, error) {
		rows, err := cursor.Query()
		if err != nil {
			return dbx.Null(), err
		}
		defer rows.Close()

		table, err := readDriverRows(rows, "")
		if err != nil {
			return dbx.Null(), err
		}

		return dbx.TableValue(table), nil
	}
}

// readDriverRows drains a driver-level result set, such as a cursor's, into a DataTable.
func readDriverRows(rows driver.Rows, name string) (*dbx.DataTable, error) {
	cols := rows.Columns()
	table := &dbx.DataTable{Name: name, Columns: make([]dbx.Column, len(cols))}

	typed, hasTypes := rows.(driver.RowsColumnTypeDatabaseTypeName)
	for i, c := range cols {
		table.Columns[i] = dbx.Column{Name: c, Type: dbx.ColObject}
		if hasTypes {
			dbType := typed.ColumnTypeDatabaseTypeName(i)
			table.Columns[i].DatabaseType = dbType
			table.Columns[i].Type = dbx.ColumnTypeOf(dbType)
		}
	}

	values := make([]driver.Value, len(cols))
	for {
		err := rows.Next(values)
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, err
		}

		row := make([]dbx.Value, len(values))
		for i, raw := range values {
			if row[i], err = dbx.ConvertCell(table.Columns[i], raw); err != nil {
				return nil, err
			}
		}

		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// FillDataSet returns the cursors of a procedure call as its result sets. Commands without
// cursor outputs are read as ordinary result sets.
func (p *Provider) FillDataSet(ctx context.Context, h dbx.Handle, cmd *dbx.Command) (*dbx.DataSet, error) {
	cursors := cursorParameters(cmd)
	if len(cursors) == 0 {
		return p.BaseProvider.FillDataSet(ctx, h, cmd)
	}

	if _, err := p.ExecuteNonQuery(ctx, h, cmd); err != nil {
		return nil, err
	}

	ds := &dbx.DataSet{}
	for _, prm := range cursors {
		table := prm.Value.AsTable()
		if table == nil {
			table = dbx.NewDataTable("")
		}

		table.Name = ""
		ds.Add(table)
	}

	return ds, nil
}

// FillTable returns the first cursor of a procedure call, or the first result set.
func (p *Provider) FillTable(ctx context.Context, h dbx.Handle, cmd *dbx.Command) (*dbx.DataTable, error) {
	if len(cursorParameters(cmd)) == 0 {
		return p.BaseProvider.FillTable(ctx, h, cmd)
	}

	ds, err := p.FillDataSet(ctx, h, cmd)
	if err != nil {
		return nil, err
	}

	return ds.Table(0), nil
}

func cursorParameters(cmd *dbx.Command) []*dbx.Parameter {
	var cursors []*dbx.Parameter
	for _, bp := range cmd.Parameters {
		if bp.Parameter.IsOutput && bp.Parameter.Type == dbx.RefCursor {
			cursors = append(cursors, bp.Parameter)
		}
	}

	return cursors
}

// PostProcess forces the integer output fields to Int64.
func (p *Provider) PostProcess(ds *dbx.DataSet, outputFields string, callType dbx.CallType) error {
	return dbx.ApplyIntegerFields(ds, outputFields, callType)
}
