package dbx_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
)

func watchQuery() *dbx.QuerySpecification {
	return &dbx.QuerySpecification{Name: "orders", Query: "SELECT id FROM orders", NotificationChannel: "orders_changed"}
}

// TestChangeWatcherNotifyOnce registers the query, delivers one event and expects the watch
// to end by itself.
func TestChangeWatcherNotifyOnce(t *testing.T) {
	deps, mock := newMockDeps(t)
	mock.ExpectQuery("SELECT id FROM orders").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	provider := newFakeProvider()
	w := dbx.NewChangeWatcher(provider, testDatabaseSpec(), watchQuery(), deps)
	w.NotifyOnce = true

	events := make(chan dbx.ChangeEvent, 2)
	w.OnChange = func(_ context.Context, ev dbx.ChangeEvent) { events <- ev }
	w.OnError = func(_ context.Context, err error) { t.Errorf("unexpected error: %v", err) }

	w.StartWatching(context.Background(), nil, 0)
	require.NotNil(t, w.Done())

	provider.events <- &dbx.ChangeEvent{Channel: "orders_changed", Payload: "42"}

	select {
	case ev := <-events:
		assert.Equal(t, "42", ev.Payload)
		assert.Equal(t, dbx.ChangeNotified, ev.Type)
		assert.Equal(t, w.SubscriptionID(), ev.SubscriptionID)
		assert.NotEqual(t, uuid.Nil, ev.EventID)
	case <-time.After(3 * time.Second):
		t.Fatal("no change event")
	}

	select {
	case <-w.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not end after the first event")
	}

	assert.Equal(t, []string{"orders_changed"}, provider.subscribe)
	assert.Equal(t, []string{"orders_changed"}, provider.dropped)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestChangeWatcherTimeout expects a timeout event when nothing changes.
func TestChangeWatcherTimeout(t *testing.T) {
	deps, mock := newMockDeps(t)
	mock.ExpectQuery("SELECT id FROM orders").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w := dbx.NewChangeWatcher(newFakeProvider(), testDatabaseSpec(), watchQuery(), deps)

	events := make(chan dbx.ChangeEvent, 1)
	w.OnChange = func(_ context.Context, ev dbx.ChangeEvent) { events <- ev }

	w.StartWatching(context.Background(), nil, 1)

	select {
	case ev := <-events:
		assert.Equal(t, dbx.ChangeTimeout, ev.Type)
	case <-time.After(4 * time.Second):
		t.Fatal("no timeout event")
	}
}

// TestChangeWatcherRejectsStructuredParameter expects the error to be reported, not returned.
func TestChangeWatcherRejectsStructuredParameter(t *testing.T) {
	deps, _ := newMockDeps(t)

	w := dbx.NewChangeWatcher(newFakeProvider(), testDatabaseSpec(), watchQuery(), deps)

	var reported error
	w.OnError = func(_ context.Context, err error) { reported = err }

	w.StartWatching(context.Background(), []*dbx.Parameter{
		dbx.NewStructuredParameter("rows", "dbo.IdList", dbx.TableValue(dbx.NewDataTable("ids"))),
	}, 0)

	require.Error(t, reported)
	assert.Nil(t, w.Done())
}

// TestChangeWatcherRegistrationErrorDisposes expects a failing registration query to be
// reported through OnError.
func TestChangeWatcherRegistrationErrorDisposes(t *testing.T) {
	deps, mock := newMockDeps(t)
	mock.ExpectQuery("SELECT id FROM orders").WillReturnError(assert.AnError)

	w := dbx.NewChangeWatcher(newFakeProvider(), testDatabaseSpec(), watchQuery(), deps)

	var reported error
	w.OnError = func(_ context.Context, err error) { reported = err }

	w.StartWatching(context.Background(), nil, 0)

	require.ErrorIs(t, reported, assert.AnError)
}

// TestChangeWatcherStop stops a running watch.
func TestChangeWatcherStop(t *testing.T) {
	deps, mock := newMockDeps(t)
	mock.ExpectQuery("SELECT id FROM orders").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	w := dbx.NewChangeWatcher(newFakeProvider(), testDatabaseSpec(), watchQuery(), deps)
	w.StartWatching(context.Background(), nil, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	w.Stop(ctx)

	select {
	case <-w.Done():
	default:
		t.Fatal("watch still running after Stop")
	}
}

// TestChangeWatcherLostConnectionNotReopened checks that a listener failure ends the watch
// without opening another connection just to unsubscribe.
func TestChangeWatcherLostConnectionNotReopened(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id FROM orders").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	opens := 0
	deps := dbx.Dependencies{Connector: dbx.ConnectorFunc(func(string, string) (*sql.DB, error) {
		opens++
		return db, nil
	})}

	provider := newFakeProvider()
	provider.waitErr = assert.AnError

	w := dbx.NewChangeWatcher(provider, testDatabaseSpec(), watchQuery(), deps)

	reported := make(chan error, 1)
	w.OnError = func(_ context.Context, err error) { reported <- err }

	w.StartWatching(context.Background(), nil, 0)

	select {
	case err := <-reported:
		require.ErrorIs(t, err, assert.AnError)
	case <-time.After(3 * time.Second):
		t.Fatal("listener failure not reported")
	}

	select {
	case <-w.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("watch still running after the listener failed")
	}

	assert.Equal(t, 1, opens)
	assert.Empty(t, provider.dropped)
	require.NoError(t, mock.ExpectationsWereMet())
}
