package dbx

import (
	"database/sql"
	"sync"

	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

// Connector opens connection pools. Implementations may share pools between callers.
type Connector interface {
	Open(driverName string, dsn string) (*sql.DB, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(driverName string, dsn string) (*sql.DB, error)

func (f ConnectorFunc) Open(driverName string, dsn string) (*sql.DB, error) {
	return f(driverName, dsn)
}

// PooledConnector keeps one *sql.DB per driver and connection string, so every
// ConnectionContext for the same database draws from the same pool.
type PooledConnector struct {
	mu    sync.Mutex
	pools map[string]*sql.DB
}

// NewPooledConnector returns an empty PooledConnector.
func NewPooledConnector() *PooledConnector {
	return &PooledConnector{pools: make(map[string]*sql.DB)}
}

// Open returns the pool for driverName and dsn, creating it on first use.
func (p *PooledConnector) Open(driverName string, dsn string) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := driverName + "|" + dsn
	if db, ok := p.pools[key]; ok {
		return db, nil
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errorx.NewDatabaseErrorWrapper(err, "error opening '%s' connection pool", driverName)
	}

	p.pools[key] = db

	return db, nil
}

// Close closes every pool.
func (p *PooledConnector) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for key, db := range p.pools {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}

		delete(p.pools, key)
	}

	return firstErr
}

var (
	sharedConnector     *PooledConnector
	sharedConnectorOnce sync.Once
)

func defaultConnector() Connector {
	sharedConnectorOnce.Do(func() {
		sharedConnector = NewPooledConnector()
	})

	return sharedConnector
}

// ClosePools closes the pools opened through the package default connector.
func ClosePools() error {
	if sharedConnector == nil {
		return nil
	}

	return sharedConnector.Close()
}
