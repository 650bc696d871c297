package main

import (
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

const (
	shapeNonQuery = "nonquery"
	shapeScalar   = "scalar"
	shapeTable    = "table"
	shapeDataSet  = "dataset"
	shapeReader   = "reader"
	shapeXML      = "xml"
)

type execOptions struct {
	params    []string
	shape     string
	sql       string
	database  string
	procedure bool
	timeout   int
	asXML     bool
}

func newExecCmd() *cobra.Command {
	var o execOptions

	cmd := &cobra.Command{
		Use:   "exec [query-name]",
		Short: "Execute a query specification, or an ad hoc statement with --sql",
		Example: `  dalctl exec orders_by_customer -p customer:String=acme --shape table
  dalctl exec --database sales --sql "UPDATE ORDERS SET STATUS = @s" -p s:Int32=2
  dalctl exec --database sales --procedure --sql COUNT_ORDERS -p customer=acme -p total:Int32`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParameters(o.params)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				return runExec(ctx, a, cmd.OutOrStdout(), args, o, params)
			})
		},
	}

	fs := cmd.Flags()
	fs.StringArrayVarP(&o.params, "param", "p", nil, "parameter as name:type=value, or name:type for an output parameter")
	fs.StringVar(&o.shape, "shape", shapeTable, "result shape: nonquery, scalar, table, dataset, reader, xml")
	fs.StringVar(&o.sql, "sql", "", "ad hoc statement (or procedure name with --procedure)")
	fs.StringVar(&o.database, "database", "", "database specification used with --sql")
	fs.BoolVar(&o.procedure, "procedure", false, "treat --sql as a stored procedure name")
	fs.IntVar(&o.timeout, "timeout", 0, "command timeout in seconds, overrides the specification")
	fs.BoolVar(&o.asXML, "xml", false, "render tables as XML instead of JSON")

	return cmd
}

// executor runs one shape for either a query specification or an ad hoc statement.
type executor struct {
	m        *dbx.DatabaseManager
	query    *dbx.QuerySpecification
	callType dbx.CallType
	text     string
}

func newExecutor(a *app, args []string, o execOptions) (*executor, error) {
	if len(args) == 1 {
		if o.sql != "" {
			return nil, errorx.NewConfigurationError("give either a query name or --sql, not both")
		}

		m, err := dbx.OpenDatabaseManager(a.deps, args[0])
		if err != nil {
			return nil, err
		}

		return &executor{m: m, query: m.Query()}, nil
	}

	if o.sql == "" || o.database == "" {
		return nil, errorx.NewConfigurationError("an ad hoc statement needs both --sql and --database")
	}

	m, err := dbx.NewDatabaseManagerForDatabase(a.deps, o.database)
	if err != nil {
		return nil, err
	}

	callType := dbx.Text
	if o.procedure {
		callType = dbx.StoredProcedure
	}

	return &executor{m: m, callType: callType, text: o.sql}, nil
}

func runExec(ctx context.Context, a *app, w io.Writer, args []string, o execOptions, params []*dbx.Parameter) error {
	e, err := newExecutor(a, args, o)
	if err != nil {
		return err
	}

	var opts []dbx.ExecOption
	if o.timeout > 0 {
		opts = append(opts, dbx.WithTimeout(o.timeout))
	}

	switch strings.ToLower(o.shape) {
	case shapeNonQuery:
		n, err := e.nonQuery(ctx, params, opts)
		if err != nil {
			return err
		}

		return writeJSON(w, map[string]any{"rowsAffected": n, "outputs": outputParameters(params)})
	case shapeScalar:
		v, err := e.scalar(ctx, params, opts)
		if err != nil {
			return err
		}

		return writeJSON(w, map[string]any{"value": v, "outputs": outputParameters(params)})
	case shapeTable:
		t, err := e.table(ctx, params, opts)
		if err != nil {
			return err
		}

		return writeTables(w, o.asXML, t)
	case shapeDataSet:
		ds, err := e.dataSet(ctx, params, opts)
		if err != nil {
			return err
		}

		return writeTables(w, o.asXML, ds.Tables...)
	case shapeReader:
		tables, err := e.reader(ctx, params, opts)
		if err != nil {
			return err
		}

		return writeTables(w, o.asXML, tables...)
	case shapeXML:
		return e.xmlReader(ctx, w, params, opts)
	}

	return errorx.NewConfigurationError("unknown result shape '%s'", o.shape)
}

func (e *executor) nonQuery(ctx context.Context, params []*dbx.Parameter, opts []dbx.ExecOption) (int64, error) {
	if e.query != nil {
		return e.m.ExecSpecNonQuery(ctx, e.query, params, opts...)
	}

	return e.m.ExecNonQuery(ctx, e.callType, e.text, params, opts...)
}

func (e *executor) scalar(ctx context.Context, params []*dbx.Parameter, opts []dbx.ExecOption) (dbx.Value, error) {
	if e.query != nil {
		return e.m.ExecSpecScalar(ctx, e.query, params, opts...)
	}

	return e.m.ExecScalar(ctx, e.callType, e.text, params, opts...)
}

func (e *executor) table(ctx context.Context, params []*dbx.Parameter, opts []dbx.ExecOption) (*dbx.DataTable, error) {
	if e.query != nil {
		return e.m.ExecSpecDataTable(ctx, e.query, params, opts...)
	}

	return e.m.ExecDataTable(ctx, e.callType, e.text, params, opts...)
}

func (e *executor) dataSet(ctx context.Context, params []*dbx.Parameter, opts []dbx.ExecOption) (*dbx.DataSet, error) {
	if e.query != nil {
		return e.m.ExecSpecDataSet(ctx, e.query, params, opts...)
	}

	return e.m.ExecDataSet(ctx, e.callType, e.text, params, opts...)
}

// reader drains every result set of a data reader.
func (e *executor) reader(ctx context.Context, params []*dbx.Parameter, opts []dbx.ExecOption) ([]*dbx.DataTable, error) {
	var (
		r   *dbx.Reader
		err error
	)

	if e.query != nil {
		r, err = e.m.ExecSpecDataReader(ctx, e.query, params, opts...)
	} else {
		r, err = e.m.ExecDataReader(ctx, e.callType, e.text, params, opts...)
	}

	if err != nil {
		return nil, err
	}

	var tables []*dbx.DataTable
	for i := 0; ; i++ {
		t, err := r.ReadTable(dbx.TableName(i))
		if err != nil {
			_ = r.Close()
			return nil, err
		}

		tables = append(tables, t)

		if !r.NextResultSet() {
			break
		}
	}

	if err := r.Close(); err != nil {
		return nil, err
	}

	return tables, nil
}

func (e *executor) xmlReader(ctx context.Context, w io.Writer, params []*dbx.Parameter, opts []dbx.ExecOption) error {
	var (
		dec *xml.Decoder
		err error
	)

	if e.query != nil {
		dec, err = e.m.ExecSpecXmlReader(ctx, e.query, params, opts...)
	} else {
		dec, err = e.m.ExecXmlReader(ctx, e.callType, e.text, params, opts...)
	}

	if err != nil {
		return err
	}

	return copyXML(w, dec)
}
