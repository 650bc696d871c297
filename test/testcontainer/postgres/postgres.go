package postgres

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
	"github.com/marcodd23/go-dal-core/pkg/dbx/pgxdb"
	"github.com/marcodd23/go-dal-core/pkg/logx"
	"github.com/marcodd23/go-dal-core/test"
)

const (
	postgresContainerImage = "docker.io/postgres:16-alpine"
	postgresContainerPort  = "5432/tcp"

	MainDbName     = "main-db"
	MainDbUser     = "postgres"
	MainDbPassword = "password"
)

// PostgresContainer represents the postgres Container type used in the module.
type PostgresContainer struct {
	Container  *postgres.PostgresContainer
	MappedPort nat.Port
	Host       string
	DbName     string
	DbUser     string
	DbPassword string
}

const TestSnapshotId = "test-snapshot"

// StartPostgresContainer starts postgres with the EVENT_LOG schema.
func StartPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	return StartPostgresContainerWithInitScript(ctx, t, test.ProjectPath("test", "testcontainer", "postgres", "init_schema.sql"))
}

// StartPostgresContainerWithInitScript starts postgres and runs initScriptPath.
func StartPostgresContainerWithInitScript(ctx context.Context, t *testing.T, initScriptPath string) *PostgresContainer {
	pg, err := postgres.Run(ctx,
		postgresContainerImage,
		postgres.WithInitScripts(filepath.Clean(initScriptPath)),
		postgres.WithDatabase(MainDbName),
		postgres.WithUsername(MainDbUser),
		postgres.WithPassword(MainDbPassword),
		postgres.WithSQLDriver("pgx"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(10*time.Second)),
	)

	require.NoError(t, err)
	require.NotNil(t, pg)

	mappedPort, err := pg.MappedPort(ctx, postgresContainerPort)
	require.NoError(t, err)

	host, err := pg.Host(ctx)
	require.NoError(t, err)

	logx.GetLogger().LogInfo(ctx, fmt.Sprintf("Postgres running at %s:%s", host, mappedPort.Port()))

	// Create a snapshot of the database to restore later
	err = pg.Snapshot(ctx, postgres.WithSnapshotName(TestSnapshotId))
	require.NoError(t, err)

	return &PostgresContainer{
		Container:  pg,
		MappedPort: mappedPort,
		Host:       host,
		DbName:     MainDbName,
		DbUser:     MainDbUser,
		DbPassword: MainDbPassword,
	}
}

func (c *PostgresContainer) StopContainer(ctx context.Context, t *testing.T) error {
	logx.GetLogger().LogInfo(ctx, "Terminating the Container ....")

	timeout := time.Second * 3

	err := c.Container.Stop(ctx, &timeout)
	if err != nil {
		require.NoError(t, err, fmt.Sprintf("error stopping the Container %v", err))
		return err
	}

	return nil
}

// ConnConfig returns the connection configuration of the running container.
func (c *PostgresContainer) ConnConfig() pgxdb.ConnConfig {
	return pgxdb.ConnConfig{
		IsLocalEnv: true,
		Host:       c.Host,
		Port:       int32(c.MappedPort.Int()),
		DBName:     c.DbName,
		User:       c.DbUser,
		Password:   c.DbPassword,
		MaxConn:    1,
	}
}

// DatabaseSpecification returns a specification named name pointing at the container.
func (c *PostgresContainer) DatabaseSpecification(t *testing.T, name string) *dbx.DatabaseSpecification {
	dsn, err := c.ConnConfig().ConnectionString()
	require.NoError(t, err)

	return &dbx.DatabaseSpecification{
		Name:              name,
		Provider:          pgxdb.ProviderName,
		ConnectionString:  dsn,
		ConnectionTimeOut: 30,
	}
}
