package dbx

import (
	"context"
	"database/sql"
	"encoding/xml"
	"strings"

	"github.com/marcodd23/go-dal-core/pkg/errorx"
	"github.com/pkg/errors"
)

// BaseProvider implements the execution primitives of RelationalProvider over database/sql.
// Concrete providers embed it and supply CreateCommand. Cells, when set, converts
// driver-specific cell representations while filling tables.
type BaseProvider struct {
	ProviderName string
	Driver       string
	ParamMarker  byte
	Cells        CellConverter
}

func (b *BaseProvider) Name() string { return b.ProviderName }

func (b *BaseProvider) DriverName() string { return b.Driver }

func (b *BaseProvider) Marker() byte { return b.ParamMarker }

func (b *BaseProvider) withTimeout(ctx context.Context, cmd *Command) (context.Context, context.CancelFunc) {
	if cmd.Timeout > 0 {
		return context.WithTimeout(ctx, cmd.Timeout)
	}

	return context.WithCancel(ctx)
}

func (b *BaseProvider) wrap(err error, cmd *Command) error {
	if err == nil {
		return nil
	}

	var dbErr *errorx.DatabaseError
	if errors.As(err, &dbErr) {
		return err
	}

	return errorx.NewDatabaseErrorWrapper(err, "error executing '%s'", cmd.Text)
}

// ExecuteScalar returns the first column of the first row, or Null when there is none.
func (b *BaseProvider) ExecuteScalar(ctx context.Context, h Handle, cmd *Command) (Value, error) {
	ctx, cancel := b.withTimeout(ctx, cmd)
	defer cancel()

	if err := cmd.Prepare(ctx, h); err != nil {
		return Null(), err
	}

	rows, err := h.Querier().QueryContext(ctx, cmd.Text, cmd.Args...)
	if err != nil {
		return Null(), b.wrap(err, cmd)
	}

	result := Null()
	table, err := ReadTable(rows, TableName(0), b.Cells)
	if err == nil && table.RowCount() > 0 && len(table.Columns) > 0 {
		result = table.Rows[0][0]
	}

	if closeErr := rows.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return Null(), b.wrap(err, cmd)
	}

	return result, b.wrap(cmd.CollectOutputs(ctx, h), cmd)
}

// ExecuteNonQuery returns the number of affected rows.
func (b *BaseProvider) ExecuteNonQuery(ctx context.Context, h Handle, cmd *Command) (int64, error) {
	ctx, cancel := b.withTimeout(ctx, cmd)
	defer cancel()

	if err := cmd.Prepare(ctx, h); err != nil {
		return 0, err
	}

	res, err := h.Querier().ExecContext(ctx, cmd.Text, cmd.Args...)
	if err != nil {
		return 0, b.wrap(err, cmd)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		affected = -1
	}

	return affected, b.wrap(cmd.CollectOutputs(ctx, h), cmd)
}

// ExecuteReader returns an open Reader. The command timeout lasts until the reader is closed.
func (b *BaseProvider) ExecuteReader(ctx context.Context, h Handle, cmd *Command) (*Reader, error) {
	ctx, cancel := b.withTimeout(ctx, cmd)

	if err := cmd.Prepare(ctx, h); err != nil {
		cancel()
		return nil, err
	}

	rows, err := h.Querier().QueryContext(ctx, cmd.Text, cmd.Args...)
	if err != nil {
		cancel()
		return nil, b.wrap(err, cmd)
	}

	return newReader(rows, cmd, h, cancel), nil
}

// ExecuteXmlReader concatenates the first column of every row (FOR XML style results are split
// over several rows) and returns a decoder over the document.
func (b *BaseProvider) ExecuteXmlReader(ctx context.Context, h Handle, cmd *Command) (*xml.Decoder, error) {
	ctx, cancel := b.withTimeout(ctx, cmd)
	defer cancel()

	if err := cmd.Prepare(ctx, h); err != nil {
		return nil, err
	}

	rows, err := h.Querier().QueryContext(ctx, cmd.Text, cmd.Args...)
	if err != nil {
		return nil, b.wrap(err, cmd)
	}
	defer rows.Close()

	var doc strings.Builder
	for rows.Next() {
		var chunk sql.NullString
		if err := rows.Scan(&chunk); err != nil {
			return nil, b.wrap(err, cmd)
		}

		doc.WriteString(chunk.String)
	}

	if err := rows.Err(); err != nil {
		return nil, b.wrap(err, cmd)
	}

	if err := rows.Close(); err != nil {
		return nil, b.wrap(err, cmd)
	}

	if err := cmd.CollectOutputs(ctx, h); err != nil {
		return nil, b.wrap(err, cmd)
	}

	return xml.NewDecoder(strings.NewReader(doc.String())), nil
}

// FillTable reads the first result set.
func (b *BaseProvider) FillTable(ctx context.Context, h Handle, cmd *Command) (*DataTable, error) {
	ds, err := b.fill(ctx, h, cmd, 1)
	if err != nil {
		return nil, err
	}

	if t := ds.Table(0); t != nil {
		return t, nil
	}

	return NewDataTable(TableName(0)), nil
}

// FillDataSet reads every result set.
func (b *BaseProvider) FillDataSet(ctx context.Context, h Handle, cmd *Command) (*DataSet, error) {
	return b.fill(ctx, h, cmd, -1)
}

func (b *BaseProvider) fill(ctx context.Context, h Handle, cmd *Command, maxSets int) (*DataSet, error) {
	ctx, cancel := b.withTimeout(ctx, cmd)
	defer cancel()

	if err := cmd.Prepare(ctx, h); err != nil {
		return nil, err
	}

	rows, err := h.Querier().QueryContext(ctx, cmd.Text, cmd.Args...)
	if err != nil {
		return nil, b.wrap(err, cmd)
	}
	defer rows.Close()

	ds := &DataSet{}
	for {
		table, err := ReadTable(rows, TableName(len(ds.Tables)), b.Cells)
		if err != nil {
			return nil, b.wrap(err, cmd)
		}

		if len(table.Columns) > 0 {
			ds.Add(table)
		}

		if maxSets > 0 && len(ds.Tables) >= maxSets {
			break
		}

		if !rows.NextResultSet() {
			break
		}
	}

	if err := rows.Close(); err != nil {
		return nil, b.wrap(err, cmd)
	}

	return ds, b.wrap(cmd.CollectOutputs(ctx, h), cmd)
}

// BeginTransaction starts a transaction on the dedicated connection.
func (b *BaseProvider) BeginTransaction(ctx context.Context, conn *sql.Conn, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		return nil, errorx.NewDatabaseErrorWrapper(err, "error beginning transaction")
	}

	return tx, nil
}
