package dbx_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
)

// TestPollerTimesOutWithEmptyResult polls a query that never returns rows and expects an empty
// table, no error, within the command timeout plus one interval.
func TestPollerTimesOutWithEmptyResult(t *testing.T) {
	deps, mock := newMockDeps(t)

	for i := 0; i < 3; i++ {
		mock.ExpectQuery("SELECT id FROM outbox").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	}

	query := &dbx.QuerySpecification{Name: "outbox", Query: "SELECT id FROM outbox"}
	p := dbx.NewPoller(newFakeProvider(), testDatabaseSpec(), query, deps)

	start := time.Now()
	table, err := p.StartWatching(context.Background(), nil, 2, 1)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.NotNil(t, table)
	assert.Equal(t, 0, table.RowCount())
	assert.GreaterOrEqual(t, elapsed, 2*time.Second)
	assert.Less(t, elapsed, 3500*time.Millisecond)
}

// TestPollerReturnsFirstRows stops polling as soon as rows appear.
func TestPollerReturnsFirstRows(t *testing.T) {
	deps, mock := newMockDeps(t)

	mock.ExpectQuery("SELECT id FROM outbox").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT id FROM outbox").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))

	query := &dbx.QuerySpecification{Name: "outbox", Query: "SELECT id FROM outbox"}
	p := dbx.NewPoller(newFakeProvider(), testDatabaseSpec(), query, deps, dbx.WithWatchTimeout(10))

	result := <-p.StartWatchingAsync(context.Background(), nil, 0, 1)
	require.NoError(t, result.Err)
	require.Equal(t, 1, result.Table.RowCount())

	v, err := result.Table.Value(0, "id")
	require.NoError(t, err)
	assert.Equal(t, dbx.Int64Value(9), v)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestPollerSwallowsAttemptError checks that a failing attempt ends the loop with an empty
// result rather than an error.
func TestPollerSwallowsAttemptError(t *testing.T) {
	deps, mock := newMockDeps(t)

	mock.ExpectQuery("SELECT id FROM outbox").WillReturnError(assert.AnError)

	query := &dbx.QuerySpecification{Name: "outbox", Query: "SELECT id FROM outbox"}
	p := dbx.NewPoller(newFakeProvider(), testDatabaseSpec(), query, deps)

	table, err := p.StartWatching(context.Background(), nil, 30, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, table.RowCount())
}

// TestPollerHonoursCancellation checks that a cancelled context ends the sleep.
func TestPollerHonoursCancellation(t *testing.T) {
	deps, mock := newMockDeps(t)

	mock.ExpectQuery("SELECT id FROM outbox").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	query := &dbx.QuerySpecification{Name: "outbox", Query: "SELECT id FROM outbox"}
	p := dbx.NewPoller(newFakeProvider(), testDatabaseSpec(), query, deps)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	table, err := p.StartWatching(ctx, nil, 60, 30)
	require.NoError(t, err)
	assert.Equal(t, 0, table.RowCount())
	assert.Less(t, time.Since(start), 5*time.Second)
}

// TestPollerRequiresQuery checks the setup error path.
func TestPollerRequiresQuery(t *testing.T) {
	deps, _ := newMockDeps(t)

	_, err := dbx.NewPoller(newFakeProvider(), testDatabaseSpec(), nil, deps).StartWatching(context.Background(), nil, 1, 1)
	require.Error(t, err)
}

// TestPollerRunsInsideOneImpersonation checks that the pool open and every poll query happen
// within a single run-as scope.
func TestPollerRunsInsideOneImpersonation(t *testing.T) {
	deps, mock, imp, spec := newImpersonatedDeps(t)

	mock.ExpectQuery("SELECT id FROM outbox").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT id FROM outbox").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))

	var inScopeErr error
	imp.inScope = func() { inScopeErr = mock.ExpectationsWereMet() }

	query := &dbx.QuerySpecification{Name: "outbox", Query: "SELECT id FROM outbox"}
	p := dbx.NewPoller(newFakeProvider(), spec, query, deps, dbx.WithWatchTimeout(10))

	table, err := p.StartWatching(context.Background(), nil, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, table.RowCount())

	assert.Equal(t, 1, imp.calls)
	assert.Equal(t, []bool{true}, imp.opens)
	require.NoError(t, inScopeErr)
}
