package main

import (
	"context"
	"database/sql"
	"os"

	"github.com/marcodd23/go-dal-core/pkg/configx"
	"github.com/marcodd23/go-dal-core/pkg/dbx"
	"github.com/marcodd23/go-dal-core/pkg/dbx/mssqldb"
	"github.com/marcodd23/go-dal-core/pkg/dbx/oradb"
	"github.com/marcodd23/go-dal-core/pkg/dbx/pgxdb"
	"github.com/marcodd23/go-dal-core/pkg/errorx"
	"github.com/marcodd23/go-dal-core/pkg/logx"
	"github.com/marcodd23/go-dal-core/pkg/runas"
	"github.com/marcodd23/go-dal-core/pkg/secretx"
	"github.com/marcodd23/go-dal-core/pkg/specx"
)

// Config - dalctl configuration, read from property.yaml (or property-<env>.yaml).
/*
name: "dalctl"
environment: "local"
version: "1.0"
logging:
  level: "info"
gcp:
  project: my-project
specifications: "./config/specifications.yaml"
requireImpersonation: false
relay:
  topic: "db-changes"
  batchSize: 100
  maxRetryCount: 3
*/
type Config struct {
	configx.BaseConfig   `mapstructure:",squash"`
	RequireImpersonation bool        `mapstructure:"requireImpersonation"`
	Relay                RelayConfig `mapstructure:"relay"`
}

type RelayConfig struct {
	Topic         string `mapstructure:"topic"`
	BatchSize     int32  `mapstructure:"batchSize"`
	MaxRetryCount int16  `mapstructure:"maxRetryCount" validate:"gte=0"`
}

// app holds what every sub command needs once the configuration is loaded.
type app struct {
	config    Config
	logger    logx.Logger
	registry  *specx.Registry
	deps      dbx.Dependencies
	pgPools   *pgxdb.Connector
	sqlPools  *dbx.PooledConnector
	providers *dbx.ProviderRegistry
}

// newApp loads the configuration from configDir, overrides it with the command line, sets up
// the process logger on stderr and loads the specification registry.
func newApp(configDir string, specPath string, logLevel string) (*app, error) {
	var cfg Config
	if err := configx.LoadConfigFromPathForEnv(configDir, &cfg); err != nil {
		return nil, errorx.NewConfigurationErrorWrapper(err, "error loading dalctl configuration")
	}

	if cfg.Name == "" {
		cfg.Name = "dalctl"
	}

	if logLevel != "" {
		cfg.Logging = &configx.LoggingConfig{Level: logLevel}
	}

	if specPath != "" {
		cfg.Specifications = specPath
	}

	logger := logx.SetupLoggerTo(cfg, os.Stderr)

	a := &app{
		config:    cfg,
		logger:    logger,
		pgPools:   pgxdb.NewConnector(logger),
		sqlPools:  dbx.NewPooledConnector(),
		providers: dbx.NewProviderRegistry(mssqldb.New(), oradb.New(), pgxdb.New()),
	}

	a.registry = specx.NewRegistry(logger)
	if cfg.Specifications != "" {
		if err := a.registry.Load(cfg.Specifications); err != nil {
			return nil, err
		}
	}

	a.deps = dbx.Dependencies{
		Resolver:     a.registry,
		Crypto:       secretx.New(secretx.DefaultKeyResolver()),
		Impersonator: runas.New(logger, runas.WithRequireImpersonation(cfg.RequireImpersonation)),
		Logger:       logger,
		Connector:    dbx.ConnectorFunc(a.open),
		Providers:    a.providers,
	}

	return a, nil
}

// open routes postgres to the pgxpool backed connector and every other driver to database/sql pools.
func (a *app) open(driverName string, dsn string) (*sql.DB, error) {
	if driverName == pgxdb.New().DriverName() {
		return a.pgPools.Open(driverName, dsn)
	}

	return a.sqlPools.Open(driverName, dsn)
}

// close releases every connection pool.
func (a *app) close(ctx context.Context) {
	a.pgPools.Close()

	if err := a.sqlPools.Close(); err != nil {
		a.logger.LogError(ctx, "error closing connection pools", err)
	}
}

// query resolves a query specification by name.
func (a *app) query(name string) (*dbx.QuerySpecification, *dbx.DatabaseSpecification, dbx.RelationalProvider, error) {
	query := a.registry.GetQuerySpecification(name)
	if query == nil {
		return nil, nil, nil, errorx.NewConfigurationError("query specification '%s' not found", name)
	}

	spec := a.registry.GetDatabaseSpecification(query.DatabaseName)
	if spec == nil {
		return nil, nil, nil, errorx.NewConfigurationError("database specification '%s' not found", query.DatabaseName)
	}

	provider, err := a.providers.Get(spec.Provider)
	if err != nil {
		return nil, nil, nil, err
	}

	return query, spec, provider, nil
}
