package mssqldb

import (
	"context"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/pkg/errors"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

// BulkTransactionMode - the loader supplies a dedicated transaction.
func (p *Provider) BulkTransactionMode() dbx.BulkTxMode {
	return dbx.BulkDedicatedTx
}

// BulkCopy streams req.Table into req.Destination with the driver's bulk copy. Rows are
// buffered by the statement and sent when it is executed without arguments.
func (p *Provider) BulkCopy(ctx context.Context, h dbx.Handle, req dbx.BulkCopyRequest) (int64, error) {
	if req.Table == nil {
		return 0, errorx.NewConfigurationError("bulk copy into '%s' has no source table", req.Destination)
	}

	sourceIdx, columns, err := dbx.ResolveColumnMappings(req.Table, req.Mappings)
	if err != nil {
		return 0, err
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	stmt, err := h.Querier().PrepareContext(ctx, mssql.CopyIn(req.Destination, mssql.BulkOptions{}, columns...))
	if err != nil {
		return 0, errorx.NewDatabaseErrorWrapper(err, "error preparing bulk copy into '%s'", req.Destination)
	}
	defer stmt.Close()

	args := make([]any, len(sourceIdx))
	for r, row := range req.Table.Rows {
		for i, idx := range sourceIdx {
			args[i] = row[idx].Interface()
		}

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, errorx.NewDatabaseErrorWrapper(errors.Wrapf(err, "row %d", r), "bulk insert error")
		}
	}

	res, err := stmt.ExecContext(ctx)
	if err != nil {
		return 0, errorx.NewDatabaseErrorWrapper(err, "bulk insert error")
	}

	return res.RowsAffected()
}
