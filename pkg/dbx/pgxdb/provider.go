// Package pgxdb is the PostgreSQL provider, on github.com/jackc/pgx/v5 through its
// database/sql driver.
//
// Text commands use "@name" placeholders bound with pgx.NamedArgs, stored procedures are
// called with CALL. Output parameters are not supported and fail when the command runs.
package pgxdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

const (
	// ProviderName is the name used in DatabaseSpecification.Provider.
	ProviderName = "postgres"
	// Marker prefixes parameter names.
	Marker = '@'
)

// Provider implements dbx.RelationalProvider for PostgreSQL.
type Provider struct {
	*dbx.BaseProvider
}

var (
	_ dbx.RelationalProvider = (*Provider)(nil)
	_ dbx.BulkCopier         = (*Provider)(nil)
	_ dbx.ChangeListener     = (*Provider)(nil)
)

// New returns the PostgreSQL provider.
func New() *Provider {
	return &Provider{BaseProvider: &dbx.BaseProvider{
		ProviderName: ProviderName,
		Driver:       "pgx",
		ParamMarker:  Marker,
	}}
}

// CreateCommand collects params into a single pgx.NamedArgs argument. Structured values are
// sent as JSON.
func (p *Provider) CreateCommand(query string, callType dbx.CallType, params []*dbx.Parameter, opts dbx.CommandOptions) (*dbx.Command, error) {
	cmd := dbx.NewCommand(ProviderName, strings.TrimSpace(query), callType, opts.Timeout)
	named := pgx.NamedArgs{}

	for _, prm := range params {
		name := dbx.NormalizeParameterName(prm.Name, Marker, false)
		bp := &dbx.BoundParameter{Name: name, Parameter: prm, DbType: prm.Type.String()}

		if prm.IsOutput || prm.Type == dbx.RefCursor {
			cmd.AddBinder(unsupported(name, prm))
			cmd.Bind(bp)

			continue
		}

		var (
			arg any
			err error
		)

		switch prm.Type {
		case dbx.Structured:
			arg, err = structuredJSON(prm.Value)
		case dbx.UnKnown, dbx.Object:
			arg = prm.Value.Interface()
		default:
			arg, err = dbx.CoerceValue(prm.Type, prm.Value)
		}

		if err != nil {
			return nil, errorx.NewConfigurationErrorWrapper(err, "error converting parameter '%s'", name)
		}

		named[strings.TrimLeft(name, string(Marker))] = arg
		bp.Arg = arg
		cmd.Parameters = append(cmd.Parameters, bp)
	}

	if callType == dbx.StoredProcedure {
		cmd.Text = procedureCall(cmd.Text, cmd.Parameters)
	}

	if len(named) > 0 {
		cmd.Args = []any{named}
	}

	return cmd, nil
}

func procedureCall(name string, params []*dbx.BoundParameter) string {
	if strings.HasPrefix(strings.ToUpper(name), "CALL ") {
		return name
	}

	args := make([]string, 0, len(params))
	for _, bp := range params {
		args = append(args, bp.Name)
	}

	return fmt.Sprintf("CALL %s(%s)", name, strings.Join(args, ", "))
}

func unsupported(name string, prm *dbx.Parameter) dbx.Binder {
	return func(context.Context, dbx.Handle) error {
		return errorx.NewDatabaseError("parameter '%s': %s output parameters are not supported by the postgres provider", name, prm.Type)
	}
}

func structuredJSON(v dbx.Value) (any, error) {
	switch v.Kind() {
	case dbx.KindNull:
		return nil, nil
	case dbx.KindString:
		return v.AsString(), nil
	case dbx.KindTable:
		doc, err := v.AsTable().ToJSON()
		return string(doc), err
	}

	doc, err := json.Marshal(v.Interface())

	return string(doc), err
}
