package pgxdb

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/marcodd23/go-dal-core/pkg/errorx"
	"github.com/marcodd23/go-dal-core/pkg/logx"
)

// ConnConfig represents the configuration required for a PostgreSQL connection.
type ConnConfig struct {
	VpcDirectConnection bool
	Host                string
	Port                int32
	DBName              string
	User                string
	Password            string
	MaxConn             int32
	IsLocalEnv          bool
}

// ConnectionString renders conf as a keyword/value connection string.
//
// Local and VPC-direct connections use Host and Port, otherwise Host names a Cloud SQL
// instance reached through the unix socket mounted at /cloudsql.
func (conf ConnConfig) ConnectionString() (string, error) {
	if conf.DBName == "" {
		return "", errorx.NewConfigurationError("error creating connection string: DB_Name is EMPTY")
	}

	if conf.User == "" {
		return "", errorx.NewConfigurationError("error creating connection string: DB_User is EMPTY")
	}

	if conf.Password == "" {
		return "", errorx.NewConfigurationError("error creating connection string: DB_Password is EMPTY")
	}

	parts := []string{
		"dbname=" + quoteValue(conf.DBName),
		"user=" + quoteValue(conf.User),
		"password=" + quoteValue(conf.Password),
	}

	if conf.IsLocalEnv || conf.VpcDirectConnection {
		parts = append(parts, "host="+quoteValue(conf.Host), fmt.Sprintf("port=%d", conf.Port))
	} else {
		parts = append(parts, "host="+quoteValue("/cloudsql/"+conf.Host))
	}

	if conf.MaxConn > 0 {
		parts = append(parts, fmt.Sprintf("pool_max_conns=%d", int32(runtime.NumCPU())*conf.MaxConn))
	}

	return strings.Join(parts, " "), nil
}

func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}

	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
}

//###################################
//#    Connector - pgxpool backed.   #
//###################################

// Connector implements dbx.Connector on pgxpool: each connection string gets one pool,
// exposed to database/sql through stdlib.OpenDBFromPool.
type Connector struct {
	logger logx.Logger

	mu    sync.Mutex
	pools map[string]*pgxpool.Pool
	dbs   map[string]*sql.DB
}

// NewConnector returns an empty Connector.
func NewConnector(logger logx.Logger) *Connector {
	return &Connector{
		logger: logx.OrNop(logger),
		pools:  make(map[string]*pgxpool.Pool),
		dbs:    make(map[string]*sql.DB),
	}
}

// Open returns the *sql.DB bound to the pool for dsn, creating the pool on first use.
// The driver name is ignored.
func (c *Connector) Open(_ string, dsn string) (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if db, ok := c.dbs[dsn]; ok {
		return db, nil
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errorx.NewConfigurationErrorWrapper(err, "error parsing postgres connection string")
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, errorx.NewDatabaseErrorWrapper(err, "Error creating New Connection Pool")
	}

	c.logger.LogInfo(context.Background(), fmt.Sprintf("Created new Connection Pool: DB=%s, HOST=%s, PORT=%d",
		poolConfig.ConnConfig.Database,
		poolConfig.ConnConfig.Host,
		poolConfig.ConnConfig.Port))

	db := stdlib.OpenDBFromPool(pool)
	c.pools[dsn] = pool
	c.dbs[dsn] = db

	return db, nil
}

// Close closes every pool.
func (c *Connector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for dsn, db := range c.dbs {
		_ = db.Close()
		c.pools[dsn].Close()
		delete(c.dbs, dsn)
		delete(c.pools, dsn)
	}

	c.logger.LogInfo(context.Background(), "DB Connection Pools Successfully Closed!")
}
