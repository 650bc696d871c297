package dbx

import (
	"context"
	"database/sql"
	"encoding/xml"
	"fmt"
	"sync"

	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

// ConnectionState is the lifecycle state of a ConnectionContext.
type ConnectionState int

const (
	StateUnopened ConnectionState = iota
	StateOpen
	StateClosed
	StateDisposed
)

func (s ConnectionState) String() string {
	switch s {
	case StateOpen:
		return "Open"
	case StateClosed:
		return "Closed"
	case StateDisposed:
		return "Disposed"
	}

	return "Unopened"
}

// IsClosed reports whether no connection is held.
func (s ConnectionState) IsClosed() bool {
	return s != StateOpen
}

// ConnectionContext owns the live connection and transaction of one unit of work.
//
// The connection is acquired lazily from the provider's pool. Closing or disposing a
// context rolls back any active transaction before the connection goes back to the pool;
// a closed or disposed context opens a fresh connection on its next use.
//
// A ConnectionContext is not safe for concurrent use; only Dispose and Close are guarded.
type ConnectionContext struct {
	mu       sync.Mutex
	provider RelationalProvider
	spec     *DatabaseSpecification
	deps     Dependencies

	db    *sql.DB
	conn  *sql.Conn
	tx    Transaction
	state ConnectionState
}

// NewConnectionContext returns an unopened context for the database described by spec.
func NewConnectionContext(provider RelationalProvider, spec *DatabaseSpecification, deps Dependencies) *ConnectionContext {
	return &ConnectionContext{provider: provider, spec: spec, deps: deps}
}

// Provider returns the provider bound to the context.
func (c *ConnectionContext) Provider() RelationalProvider { return c.provider }

// Specification returns the database specification bound to the context.
func (c *ConnectionContext) Specification() *DatabaseSpecification { return c.spec }

// State returns the connection state.
func (c *ConnectionContext) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// InTransaction reports whether a transaction is active.
func (c *ConnectionContext) InTransaction() bool {
	return c.tx != nil
}

// Open acquires the connection if it is not open yet, impersonating when required.
func (c *ConnectionContext) Open(ctx context.Context) error {
	return c.RunAs(ctx, c.open)
}

func (c *ConnectionContext) open(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	if c.spec == nil {
		return errorx.NewConfigurationError("missing database specification")
	}

	if c.db == nil {
		dsn, err := c.connectionString()
		if err != nil {
			return err
		}

		db, err := c.deps.connector().Open(c.provider.DriverName(), dsn)
		if err != nil {
			return err
		}

		c.db = db
	}

	conn, err := c.db.Conn(ctx)
	if err != nil {
		return errorx.NewDatabaseErrorWrapper(err, "error opening connection to '%s'", c.spec.Name)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()

	c.deps.logger().LogDebug(ctx, fmt.Sprintf("connection to '%s' opened", c.spec.Name))

	return nil
}

func (c *ConnectionContext) connectionString() (string, error) {
	if !c.spec.IsEncrypted {
		return c.spec.ConnectionString, nil
	}

	if c.deps.Crypto == nil {
		return "", errorx.NewConfigurationError("database '%s' has an encrypted connection string but no credential crypto is configured", c.spec.Name)
	}

	dsn, err := c.deps.Crypto.Decrypt(c.spec.ConnectionString, c.spec.EncryptionKey)
	if err != nil {
		return "", errorx.NewConfigurationErrorWrapper(err, "error decrypting connection string of '%s'", c.spec.Name)
	}

	return dsn, nil
}

// Handle opens the connection if needed and returns it with the active transaction.
func (c *ConnectionContext) Handle(ctx context.Context) (Handle, error) {
	if err := c.open(ctx); err != nil {
		return Handle{}, err
	}

	h := Handle{DB: c.db, Conn: c.conn}
	if c.tx != nil {
		h.Tx = c.tx.GetTx()
	}

	return h, nil
}

// Current returns the held connection without opening one. ok is false when the context holds
// no connection.
func (c *ConnectionContext) Current() (h Handle, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return Handle{}, false
	}

	h = Handle{DB: c.db, Conn: c.conn}
	if c.tx != nil {
		h.Tx = c.tx.GetTx()
	}

	return h, true
}

type runAsKey struct{}

// RunAs runs fn under the run-as identity when the specification requires impersonation,
// directly otherwise. Calls nested inside fn for the same connection reuse the identity
// already in effect instead of switching again.
func (c *ConnectionContext) RunAs(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.spec == nil || !c.spec.Impersonate || c.spec.RunAsUser == nil {
		return fn(ctx)
	}

	if owner, _ := ctx.Value(runAsKey{}).(*ConnectionContext); owner == c {
		return fn(ctx)
	}

	if c.deps.Impersonator == nil {
		return errorx.NewConfigurationError("database '%s' requires impersonation but no impersonation executor is configured", c.spec.Name)
	}

	user := *c.spec.RunAsUser
	if user.IsEncrypted {
		if c.deps.Crypto == nil {
			return errorx.NewConfigurationError("run-as user '%s' has an encrypted password but no credential crypto is configured", user.UserName)
		}

		password, err := c.deps.Crypto.Decrypt(user.Password, user.EncryptionKey)
		if err != nil {
			return errorx.NewConfigurationErrorWrapper(err, "error decrypting password of run-as user '%s'", user.UserName)
		}

		user.Password = password
		user.IsEncrypted = false
	}

	return c.deps.Impersonator.Execute(ctx, user, func(ctx context.Context) error {
		return fn(context.WithValue(ctx, runAsKey{}, c))
	})
}

//###################################
//#          Transactions           #
//###################################

// BeginTransaction starts a transaction, rolling back any transaction still active.
func (c *ConnectionContext) BeginTransaction(ctx context.Context, opts *sql.TxOptions) (Transaction, error) {
	var tx Transaction

	err := c.RunAs(ctx, func(ctx context.Context) error {
		if err := c.open(ctx); err != nil {
			return err
		}

		if c.tx != nil {
			c.tx.TxRollback(ctx)
			c.tx = nil
		}

		sqlTx, err := c.provider.BeginTransaction(ctx, c.conn, opts)
		if err != nil {
			return err
		}

		tx = NewSqlTransaction(sqlTx, c.deps.logger())
		c.tx = tx

		return nil
	})

	return tx, err
}

// Commit commits the active transaction.
func (c *ConnectionContext) Commit(ctx context.Context) error {
	if c.tx == nil {
		return errorx.NewDatabaseError("no active transaction to commit")
	}

	tx := c.tx
	c.tx = nil

	if err := tx.TxCommit(ctx); err != nil {
		return errorx.NewDatabaseErrorWrapper(err, "error committing transaction %d", tx.TxId())
	}

	return nil
}

// Rollback rolls back the active transaction. Without one it does nothing.
func (c *ConnectionContext) Rollback(ctx context.Context) {
	if c.tx == nil {
		return
	}

	c.tx.TxRollback(ctx)
	c.tx = nil
}

//###################################
//#            Disposal             #
//###################################

// Close rolls back any active transaction and returns the connection to the pool.
func (c *ConnectionContext) Close(ctx context.Context) error {
	return c.release(ctx, StateClosed)
}

// Dispose is Close for the end of a unit of work. It is idempotent.
func (c *ConnectionContext) Dispose(ctx context.Context) error {
	return c.release(ctx, StateDisposed)
}

func (c *ConnectionContext) release(ctx context.Context, final ConnectionState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tx != nil {
		c.tx.TxRollback(ctx)
		c.tx = nil
	}

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil

		if err != nil {
			err = errorx.NewDatabaseErrorWrapper(err, "error closing connection")
		}
	}

	if c.state != StateUnopened || final == StateDisposed {
		c.state = final
	}

	return err
}

//###################################
//#      Execution primitives       #
//###################################

// ExecuteScalar runs cmd and returns the first cell of the first row.
func (c *ConnectionContext) ExecuteScalar(ctx context.Context, cmd *Command) (Value, error) {
	result := Null()
	err := c.RunAs(ctx, func(ctx context.Context) error {
		h, err := c.Handle(ctx)
		if err != nil {
			return err
		}

		result, err = c.provider.ExecuteScalar(ctx, h, cmd)

		return err
	})

	return result, err
}

// ExecuteNonQuery runs cmd and returns the affected rows.
func (c *ConnectionContext) ExecuteNonQuery(ctx context.Context, cmd *Command) (int64, error) {
	var affected int64
	err := c.RunAs(ctx, func(ctx context.Context) error {
		h, err := c.Handle(ctx)
		if err != nil {
			return err
		}

		affected, err = c.provider.ExecuteNonQuery(ctx, h, cmd)

		return err
	})

	return affected, err
}

// ExecuteReader runs cmd and returns an open reader.
func (c *ConnectionContext) ExecuteReader(ctx context.Context, cmd *Command) (*Reader, error) {
	var reader *Reader
	err := c.RunAs(ctx, func(ctx context.Context) error {
		h, err := c.Handle(ctx)
		if err != nil {
			return err
		}

		reader, err = c.provider.ExecuteReader(ctx, h, cmd)

		return err
	})

	return reader, err
}

// ExecuteXmlReader runs cmd and returns a decoder over the XML it produced.
func (c *ConnectionContext) ExecuteXmlReader(ctx context.Context, cmd *Command) (*xml.Decoder, error) {
	var dec *xml.Decoder
	err := c.RunAs(ctx, func(ctx context.Context) error {
		h, err := c.Handle(ctx)
		if err != nil {
			return err
		}

		dec, err = c.provider.ExecuteXmlReader(ctx, h, cmd)

		return err
	})

	return dec, err
}

// FillTable runs cmd and reads its first result set.
func (c *ConnectionContext) FillTable(ctx context.Context, cmd *Command) (*DataTable, error) {
	var table *DataTable
	err := c.RunAs(ctx, func(ctx context.Context) error {
		h, err := c.Handle(ctx)
		if err != nil {
			return err
		}

		table, err = c.provider.FillTable(ctx, h, cmd)

		return err
	})

	return table, err
}

// FillDataSet runs cmd and reads every result set.
func (c *ConnectionContext) FillDataSet(ctx context.Context, cmd *Command) (*DataSet, error) {
	var ds *DataSet
	err := c.RunAs(ctx, func(ctx context.Context) error {
		h, err := c.Handle(ctx)
		if err != nil {
			return err
		}

		ds, err = c.provider.FillDataSet(ctx, h, cmd)

		return err
	})

	return ds, err
}
