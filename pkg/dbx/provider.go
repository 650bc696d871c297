package dbx

import (
	"context"
	"database/sql"
	"encoding/xml"
	"strings"
	"sync"
	"time"

	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

// Querier is the part of *sql.Conn and *sql.Tx used to run commands.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Handle is the live connection of a ConnectionContext: the pool it came from, the dedicated
// connection and the active transaction, if any.
type Handle struct {
	DB   *sql.DB
	Conn *sql.Conn
	Tx   *sql.Tx
}

// Querier returns the transaction when one is active, the connection otherwise.
func (h Handle) Querier() Querier {
	if h.Tx != nil {
		return h.Tx
	}

	return h.Conn
}

// RelationalProvider is implemented once per database engine. Providers embed *BaseProvider
// and override only what differs: parameter binding in CreateCommand, result-set collection.
type RelationalProvider interface {
	Name() string
	DriverName() string
	Marker() byte
	CreateCommand(query string, callType CallType, params []*Parameter, opts CommandOptions) (*Command, error)
	ExecuteScalar(ctx context.Context, h Handle, cmd *Command) (Value, error)
	ExecuteNonQuery(ctx context.Context, h Handle, cmd *Command) (int64, error)
	ExecuteReader(ctx context.Context, h Handle, cmd *Command) (*Reader, error)
	ExecuteXmlReader(ctx context.Context, h Handle, cmd *Command) (*xml.Decoder, error)
	FillTable(ctx context.Context, h Handle, cmd *Command) (*DataTable, error)
	FillDataSet(ctx context.Context, h Handle, cmd *Command) (*DataSet, error)
	BeginTransaction(ctx context.Context, conn *sql.Conn, opts *sql.TxOptions) (*sql.Tx, error)
}

// BulkTxMode tells who owns the transaction of a bulk copy.
type BulkTxMode int

const (
	// BulkDedicatedTx - the loader begins a transaction and hands it to the provider.
	BulkDedicatedTx BulkTxMode = iota
	// BulkInternalTx - the provider manages its own transaction when the Handle carries none,
	// and joins Handle.Tx otherwise.
	BulkInternalTx
)

// BulkCopyRequest is one destination table load.
type BulkCopyRequest struct {
	Destination string
	Table       *DataTable
	Mappings    []ColumnMapping
	Timeout     time.Duration
}

// BulkCopier is implemented by providers with a native bulk copy path.
type BulkCopier interface {
	BulkTransactionMode() BulkTxMode
	BulkCopy(ctx context.Context, h Handle, req BulkCopyRequest) (int64, error)
}

// ChangeListener is implemented by providers able to push change notifications.
type ChangeListener interface {
	// Subscribe registers interest in channel on the connection.
	Subscribe(ctx context.Context, h Handle, channel string) error
	// WaitForChange blocks up to timeout. It returns nil, nil when nothing arrived in time.
	WaitForChange(ctx context.Context, h Handle, channel string, timeout time.Duration) (*ChangeEvent, error)
	// Unsubscribe drops the registration.
	Unsubscribe(ctx context.Context, h Handle, channel string) error
}

// ResultPostProcessor is implemented by providers whose results need correcting after a fill.
type ResultPostProcessor interface {
	PostProcess(ds *DataSet, outputFields string, callType CallType) error
}

//###################################
//#        Provider registry        #
//###################################

// ProviderRegistry resolves providers by the name used in DatabaseSpecification.Provider.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]RelationalProvider
}

// NewProviderRegistry registers the given providers under their names.
func NewProviderRegistry(providers ...RelationalProvider) *ProviderRegistry {
	r := &ProviderRegistry{providers: make(map[string]RelationalProvider)}
	for _, p := range providers {
		r.Register(p)
	}

	return r
}

// Register adds p, replacing any provider with the same name.
func (r *ProviderRegistry) Register(p RelationalProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[strings.ToLower(p.Name())] = p
}

// Get returns the provider registered under name.
func (r *ProviderRegistry) Get(name string) (RelationalProvider, error) {
	if r == nil {
		return nil, errorx.NewConfigurationError("no provider registry configured")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errorx.NewConfigurationError("unknown provider '%s'", name)
	}

	return p, nil
}

// Names lists the registered provider names.
func (r *ProviderRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}

	return names
}
