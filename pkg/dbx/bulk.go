package dbx

import (
	"context"
	"fmt"

	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

// BulkLoad is one table load of a multi-table bulk insert. An empty ColumnMapping copies
// every column under its own name.
type BulkLoad struct {
	Destination   string
	Table         *DataTable
	ColumnMapping string
}

// BulkLoader streams DataTables into destination tables through the provider's native bulk
// copy. Bulk operations always own their connection: it is disposed when the call returns,
// whatever the auto-dispose policy.
type BulkLoader struct {
	provider RelationalProvider
	spec     *DatabaseSpecification
	query    *QuerySpecification
	deps     Dependencies
}

// NewBulkLoader returns a loader for the database described by spec. query supplies the
// default destination (Query) and column mapping; it may be nil.
func NewBulkLoader(provider RelationalProvider, spec *DatabaseSpecification, query *QuerySpecification, deps Dependencies) *BulkLoader {
	return &BulkLoader{provider: provider, spec: spec, query: query, deps: deps}
}

// BulkInsert copies table into the query specification's destination.
func (l *BulkLoader) BulkInsert(ctx context.Context, table *DataTable) (int64, error) {
	if l.query == nil {
		return 0, errorx.NewConfigurationError("bulk insert requires a query specification naming the destination table")
	}

	return l.BulkInsertMany(ctx, []BulkLoad{{Destination: l.query.Query, Table: table, ColumnMapping: l.query.ColumnMapping}})
}

// BulkInsertMany copies every load in one transaction and returns the total rows copied.
// The transaction is committed when all loads succeed and rolled back otherwise. A single
// load on a provider with BulkInternalTx runs in the provider's own transaction.
func (l *BulkLoader) BulkInsertMany(ctx context.Context, loads []BulkLoad) (int64, error) {
	copier, ok := l.provider.(BulkCopier)
	if !ok {
		return 0, errorx.NewConfigurationError("provider '%s' does not support bulk copy", l.provider.Name())
	}

	reqs := make([]BulkCopyRequest, 0, len(loads))
	timeout := ResolveTimeout(l.spec, l.queryTimeout())
	for _, load := range loads {
		mappings, err := ParseColumnMappings(load.ColumnMapping)
		if err != nil {
			return 0, err
		}

		reqs = append(reqs, BulkCopyRequest{Destination: load.Destination, Table: load.Table, Mappings: mappings, Timeout: timeout})
	}

	conn := NewConnectionContext(l.provider, l.spec, l.deps)
	defer func() {
		if err := conn.Dispose(ctx); err != nil {
			l.deps.logger().LogError(ctx, "error disposing bulk connection", err)
		}
	}()

	// A provider managing its own transaction still joins a shared one when several loads
	// must succeed or fail together.
	shared := copier.BulkTransactionMode() == BulkDedicatedTx || len(reqs) > 1

	var total int64
	err := conn.RunAs(ctx, func(ctx context.Context) error {
		if shared {
			if _, err := conn.BeginTransaction(ctx, nil); err != nil {
				return err
			}
		}

		h, err := conn.Handle(ctx)
		if err != nil {
			return err
		}

		for _, req := range reqs {
			n, err := copier.BulkCopy(ctx, h, req)
			if err != nil {
				conn.Rollback(ctx)
				return err
			}

			total += n
			l.deps.logger().LogDebug(ctx, fmt.Sprintf("bulk copied %d rows into %s", n, req.Destination))
		}

		if conn.InTransaction() {
			return conn.Commit(ctx)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return total, nil
}

func (l *BulkLoader) queryTimeout() int {
	if l.query == nil {
		return 0
	}

	return l.query.Timeout
}

// BulkInsertEntities converts entities to a DataTable through their db tags and ToRow and
// copies them into destination.
func BulkInsertEntities[T RowConvertibleEntity](ctx context.Context, loader *BulkLoader, destination string, entities []T) (int64, error) {
	table, err := DataTableFromEntities(destination, entities)
	if err != nil {
		return 0, err
	}

	mapping := ""
	if loader.query != nil && loader.query.Query == destination {
		mapping = loader.query.ColumnMapping
	}

	return loader.BulkInsertMany(ctx, []BulkLoad{{Destination: destination, Table: table, ColumnMapping: mapping}})
}
