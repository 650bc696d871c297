package pgxdb

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

// BulkTransactionMode - COPY runs inside the transaction begun by the loader.
func (p *Provider) BulkTransactionMode() dbx.BulkTxMode {
	return dbx.BulkDedicatedTx
}

// BulkCopy streams req.Table into req.Destination using pgx.CopyFrom on the connection
// underneath the database/sql handle.
//
// The destination may be schema-qualified ("schema.table"); names are case-sensitive.
func (p *Provider) BulkCopy(ctx context.Context, h dbx.Handle, req dbx.BulkCopyRequest) (int64, error) {
	if req.Table == nil {
		return 0, errorx.NewConfigurationError("bulk copy into '%s' has no source table", req.Destination)
	}

	tableName, err := splitTableName(req.Destination)
	if err != nil {
		return 0, err
	}

	sourceIdx, columns, err := dbx.ResolveColumnMappings(req.Table, req.Mappings)
	if err != nil {
		return 0, err
	}

	rows := make([][]any, len(req.Table.Rows))
	for r, row := range req.Table.Rows {
		rows[r] = make([]any, len(sourceIdx))
		for i, idx := range sourceIdx {
			rows[r][i] = row[idx].Interface()
		}
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var rowCount int64
	err = h.Conn.Raw(func(driverConn any) error {
		conn, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return errors.Errorf("unexpected driver connection %T", driverConn)
		}

		rowCount, err = conn.Conn().CopyFrom(ctx, tableName, columns, pgx.CopyFromRows(rows))

		return err
	})
	if err != nil {
		return 0, errorx.NewDatabaseErrorWrapper(errors.Wrap(err, "bulk insert error"), "error copying into '%s'", req.Destination)
	}

	return rowCount, nil
}

// BulkInsertEntitiesWithTags inserts a large number of structs into a PostgreSQL table using pgx.CopyFrom.
//
// The column names are derived from the `db` struct tags of the first entity, and each entity is
// converted with its ToRow method. Fields with `db:"-"` or without a `db` tag are skipped.
//
// Arguments:
//   - ctx: The context for the copy, which can be used to control cancellation and deadlines.
//   - loader: A BulkLoader bound to the PostgreSQL database specification.
//   - tableName: The name of the table into which data will be inserted (CASE SENSITIVE).
//   - entities: A slice of structs implementing the `RowConvertibleEntity` interface.
//
// Returns:
//   - int64: The number of rows successfully inserted.
//   - error: Any error encountered during the bulk insert.
func BulkInsertEntitiesWithTags[T dbx.RowConvertibleEntity](ctx context.Context, loader *dbx.BulkLoader, tableName string, entities []T) (int64, error) {
	if len(entities) == 0 {
		return 0, errors.New("no entities to insert")
	}

	return dbx.BulkInsertEntities(ctx, loader, tableName, entities)
}

func splitTableName(tableName string) (pgx.Identifier, error) {
	parts := strings.Split(tableName, ".")
	switch len(parts) {
	case 1:
		// Only the table name is provided, assume the default schema
		return pgx.Identifier{parts[0]}, nil
	case 2:
		return pgx.Identifier{parts[0], parts[1]}, nil
	}

	return nil, errorx.NewConfigurationError("invalid table name format: %s", tableName)
}
