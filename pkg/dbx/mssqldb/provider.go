// Package mssqldb is the SQL Server provider, on github.com/denisenkom/go-mssqldb.
//
// Parameters carry the '@' marker. Stored procedures are called by name (the driver issues an
// RPC call when the query text is a bare procedure name), structured parameters are sent as
// table-valued parameters and bulk loads use the driver's bulk copy.
package mssqldb

import (
	"database/sql"
	"strings"

	mssql "github.com/denisenkom/go-mssqldb"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

const (
	// ProviderName is the name used in DatabaseSpecification.Provider.
	ProviderName = "sqlserver"
	// Marker prefixes parameter names.
	Marker = '@'
)

// Provider implements dbx.RelationalProvider for SQL Server.
type Provider struct {
	*dbx.BaseProvider
}

var (
	_ dbx.RelationalProvider = (*Provider)(nil)
	_ dbx.BulkCopier         = (*Provider)(nil)
	_ dbx.ChangeListener     = (*Provider)(nil)
)

// New returns the SQL Server provider.
func New() *Provider {
	return &Provider{BaseProvider: &dbx.BaseProvider{
		ProviderName: ProviderName,
		Driver:       "sqlserver",
		ParamMarker:  Marker,
		Cells:        convertCell,
	}}
}

// CreateCommand binds params as named arguments. Structured input parameters become
// table-valued parameters typed by Tag; a missing Tag is left for the server to reject.
func (p *Provider) CreateCommand(query string, callType dbx.CallType, params []*dbx.Parameter, opts dbx.CommandOptions) (*dbx.Command, error) {
	cmd := dbx.NewCommand(ProviderName, strings.TrimSpace(query), callType, opts.Timeout)

	for _, prm := range params {
		name := dbx.NormalizeParameterName(prm.Name, Marker, callType == dbx.StoredProcedure)
		bp := &dbx.BoundParameter{Name: name, Parameter: prm, DbType: prm.Type.String()}

		switch {
		case prm.Type == dbx.Structured && !prm.IsOutput:
			rows, err := tvpRows(prm.Value)
			if err != nil {
				return nil, errorx.NewConfigurationErrorWrapper(err, "error converting structured parameter '%s'", name)
			}

			bp.DbType = prm.Tag
			bp.Arg = dbx.NamedArg(name, Marker, mssql.TVP{TypeName: prm.Tag, Value: rows})
		case prm.IsOutput:
			dest := dbx.OutputHolder(prm.Type)
			bp.Arg = dbx.NamedArg(name, Marker, sql.Out{Dest: dest})
			cmd.AddOutput(prm, dest, nil)
		default:
			arg, err := bindValue(prm)
			if err != nil {
				return nil, errorx.NewConfigurationErrorWrapper(err, "error converting parameter '%s'", name)
			}

			bp.Arg = dbx.NamedArg(name, Marker, arg)
		}

		cmd.Bind(bp)
	}

	return cmd, nil
}

// bindValue maps the logical type to the driver type. UnKnown and Object leave the driver
// to infer the type from the value.
func bindValue(prm *dbx.Parameter) (any, error) {
	if prm.Value.IsNull() {
		return nil, nil
	}

	switch prm.Type {
	case dbx.AnsiString:
		return mssql.VarChar(prm.Value.AsString()), nil
	case dbx.Guid:
		var id mssql.UniqueIdentifier
		if err := id.Scan(prm.Value.AsString()); err != nil {
			return nil, err
		}

		return id, nil
	case dbx.Xml:
		return mssql.NVarCharMax(prm.Value.AsString()), nil
	case dbx.UnKnown, dbx.Object:
		return prm.Value.Interface(), nil
	}

	return dbx.CoerceValue(prm.Type, prm.Value)
}

func convertCell(col dbx.Column, raw any) (dbx.Value, bool) {
	b, ok := raw.([]byte)
	if !ok || b == nil {
		return dbx.Value{}, false
	}

	if strings.EqualFold(col.DatabaseType, "UNIQUEIDENTIFIER") && len(b) == 16 {
		var id mssql.UniqueIdentifier
		if err := id.Scan(b); err == nil {
			return dbx.StringValue(id.String()), true
		}
	}

	return dbx.Value{}, false
}
