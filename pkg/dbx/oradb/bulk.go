package oradb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

// BulkTransactionMode - array inserts run in a transaction owned by the provider, or in the
// loader's transaction when one is passed in the Handle.
func (p *Provider) BulkTransactionMode() dbx.BulkTxMode {
	return dbx.BulkInternalTx
}

// BulkCopy inserts req.Table with one array-bound INSERT. Each bind variable receives a slice
// holding the column's values for every row.
func (p *Provider) BulkCopy(ctx context.Context, h dbx.Handle, req dbx.BulkCopyRequest) (int64, error) {
	if req.Table == nil {
		return 0, errorx.NewConfigurationError("bulk copy into '%s' has no source table", req.Destination)
	}

	if req.Table.RowCount() == 0 {
		return 0, nil
	}

	sourceIdx, columns, err := dbx.ResolveColumnMappings(req.Table, req.Mappings)
	if err != nil {
		return 0, err
	}

	binds := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, idx := range sourceIdx {
		binds[i] = fmt.Sprintf(":%d", i+1)

		args[i], err = columnArray(req.Table, idx)
		if err != nil {
			return 0, err
		}
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", req.Destination, strings.Join(columns, ", "), strings.Join(binds, ", "))

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	tx := h.Tx
	if tx == nil {
		if tx, err = h.Conn.BeginTx(ctx, nil); err != nil {
			return 0, errorx.NewDatabaseErrorWrapper(err, "error beginning bulk transaction")
		}
	}

	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		if h.Tx == nil {
			_ = tx.Rollback()
		}

		return 0, errorx.NewDatabaseErrorWrapper(err, "bulk insert error")
	}

	if h.Tx == nil {
		if err := tx.Commit(); err != nil {
			return 0, errorx.NewDatabaseErrorWrapper(err, "error committing bulk transaction")
		}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return int64(req.Table.RowCount()), nil
	}

	return n, nil
}

// columnArray builds the typed slice bound for one column.
func columnArray(t *dbx.DataTable, idx int) (any, error) {
	col := t.Columns[idx]

	switch col.Type {
	case dbx.ColInt64, dbx.ColBool:
		out := make([]sql.NullInt64, len(t.Rows))
		for r, row := range t.Rows {
			if row[idx].IsNull() {
				continue
			}

			i, err := row[idx].AsInt64()
			if err != nil {
				return nil, errorx.NewDatabaseErrorWrapper(err, "column '%s', row %d", col.Name, r)
			}

			out[r] = sql.NullInt64{Int64: i, Valid: true}
		}

		return out, nil
	case dbx.ColFloat:
		out := make([]sql.NullFloat64, len(t.Rows))
		for r, row := range t.Rows {
			if row[idx].IsNull() {
				continue
			}

			f, err := row[idx].AsFloat()
			if err != nil {
				return nil, errorx.NewDatabaseErrorWrapper(err, "column '%s', row %d", col.Name, r)
			}

			out[r] = sql.NullFloat64{Float64: f, Valid: true}
		}

		return out, nil
	case dbx.ColDateTime:
		out := make([]sql.NullTime, len(t.Rows))
		for r, row := range t.Rows {
			if row[idx].IsNull() {
				continue
			}

			tm, err := row[idx].AsTime()
			if err != nil {
				return nil, errorx.NewDatabaseErrorWrapper(err, "column '%s', row %d", col.Name, r)
			}

			out[r] = sql.NullTime{Time: tm.In(time.UTC), Valid: true}
		}

		return out, nil
	case dbx.ColBytes:
		out := make([][]byte, len(t.Rows))
		for r, row := range t.Rows {
			if row[idx].IsNull() {
				continue
			}

			b, err := row[idx].AsBytes()
			if err != nil {
				return nil, errorx.NewDatabaseErrorWrapper(err, "column '%s', row %d", col.Name, r)
			}

			out[r] = b
		}

		return out, nil
	}

	out := make([]sql.NullString, len(t.Rows))
	for r, row := range t.Rows {
		if !row[idx].IsNull() {
			out[r] = sql.NullString{String: row[idx].AsString(), Valid: true}
		}
	}

	return out, nil
}
