package mssql

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mssql"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
	"github.com/marcodd23/go-dal-core/pkg/dbx/mssqldb"
	"github.com/marcodd23/go-dal-core/pkg/logx"
)

const (
	mssqlContainerImage = "mcr.microsoft.com/mssql/server:2022-CU14-ubuntu-22.04"
	MainDbPassword      = "Str0ng!Passw0rd"
)

// MssqlContainer represents the SQL Server container used by the integration tests.
type MssqlContainer struct {
	Container        *mssql.MSSQLServerContainer
	ConnectionString string
}

// StartMssqlContainer starts SQL Server and returns once it accepts logins.
func StartMssqlContainer(ctx context.Context, t *testing.T) *MssqlContainer {
	ctr, err := mssql.Run(ctx,
		mssqlContainerImage,
		mssql.WithAcceptEULA(),
		mssql.WithPassword(MainDbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("Recovery is complete.").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)

	logx.GetLogger().LogInfo(ctx, "SQL Server container started")

	return &MssqlContainer{Container: ctr, ConnectionString: dsn}
}

func (c *MssqlContainer) StopContainer(ctx context.Context, t *testing.T) {
	logx.GetLogger().LogInfo(ctx, "Terminating the Container ....")

	require.NoError(t, c.Container.Terminate(ctx))
}

// DatabaseSpecification returns a specification named name pointing at the container.
func (c *MssqlContainer) DatabaseSpecification(name string) *dbx.DatabaseSpecification {
	return &dbx.DatabaseSpecification{
		Name:              name,
		Provider:          mssqldb.ProviderName,
		ConnectionString:  c.ConnectionString,
		ConnectionTimeOut: 30,
	}
}
