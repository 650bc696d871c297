package dbx_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
)

// fakeProvider binds parameters as named arguments and can act as bulk copier and change
// listener for the lifecycle tests.
type fakeProvider struct {
	*dbx.BaseProvider

	mu        sync.Mutex
	bulkMode  dbx.BulkTxMode
	bulkErr   error
	failOn    string
	copied    []dbx.BulkCopyRequest
	joined    []bool
	events    chan *dbx.ChangeEvent
	waitErr   error
	subscribe []string
	dropped   []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		BaseProvider: &dbx.BaseProvider{ProviderName: "fake", Driver: "sqlmock", ParamMarker: '@'},
		events:       make(chan *dbx.ChangeEvent, 4),
	}
}

func (p *fakeProvider) CreateCommand(query string, callType dbx.CallType, params []*dbx.Parameter, opts dbx.CommandOptions) (*dbx.Command, error) {
	cmd := dbx.NewCommand(p.Name(), query, callType, opts.Timeout)

	for _, prm := range params {
		name := dbx.NormalizeParameterName(prm.Name, p.Marker(), callType == dbx.StoredProcedure)

		arg, err := dbx.CoerceValue(prm.Type, prm.Value)
		if err != nil {
			return nil, err
		}

		cmd.Bind(&dbx.BoundParameter{Name: name, Parameter: prm, Arg: dbx.NamedArg(name, p.Marker(), arg)})
	}

	return cmd, nil
}

func (p *fakeProvider) BulkTransactionMode() dbx.BulkTxMode { return p.bulkMode }

// BulkCopy fails with bulkErr for every load, or only for the failOn destination when set.
func (p *fakeProvider) BulkCopy(_ context.Context, h dbx.Handle, req dbx.BulkCopyRequest) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.joined = append(p.joined, h.Tx != nil)

	if p.bulkErr != nil && (p.failOn == "" || p.failOn == req.Destination) {
		return 0, p.bulkErr
	}

	p.copied = append(p.copied, req)

	return int64(req.Table.RowCount()), nil
}

func (p *fakeProvider) Subscribe(_ context.Context, _ dbx.Handle, channel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.subscribe = append(p.subscribe, channel)

	return nil
}

func (p *fakeProvider) WaitForChange(ctx context.Context, _ dbx.Handle, _ string, timeout time.Duration) (*dbx.ChangeEvent, error) {
	p.mu.Lock()
	waitErr := p.waitErr
	p.mu.Unlock()

	if waitErr != nil {
		return nil, waitErr
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-p.events:
		return ev, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *fakeProvider) Unsubscribe(_ context.Context, _ dbx.Handle, channel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.dropped = append(p.dropped, channel)

	return nil
}

// newMockDeps returns dependencies whose connector hands out a sqlmock pool.
func newMockDeps(t *testing.T) (dbx.Dependencies, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	deps := dbx.Dependencies{
		Connector: dbx.ConnectorFunc(func(string, string) (*sql.DB, error) { return db, nil }),
	}

	return deps, mock
}

func testDatabaseSpec() *dbx.DatabaseSpecification {
	return &dbx.DatabaseSpecification{Name: "main", Provider: "fake", ConnectionString: "sqlmock"}
}

// scopedImpersonator counts run-as scopes, records whether each pool open happened inside
// one and runs inScope just before a scope closes.
type scopedImpersonator struct {
	calls   int
	active  bool
	opens   []bool
	inScope func()
}

func (s *scopedImpersonator) Execute(ctx context.Context, _ dbx.RunAsUserSpecification, fn func(ctx context.Context) error) error {
	s.calls++
	s.active = true
	defer func() { s.active = false }()

	err := fn(ctx)
	if s.inScope != nil {
		s.inScope()
	}

	return err
}

// newImpersonatedDeps returns sqlmock dependencies whose pool opens are recorded by the
// returned impersonator, together with a specification requiring impersonation.
func newImpersonatedDeps(t *testing.T) (dbx.Dependencies, sqlmock.Sqlmock, *scopedImpersonator, *dbx.DatabaseSpecification) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	imp := &scopedImpersonator{}
	deps := dbx.Dependencies{
		Connector: dbx.ConnectorFunc(func(string, string) (*sql.DB, error) {
			imp.opens = append(imp.opens, imp.active)
			return db, nil
		}),
		Impersonator: imp,
	}

	spec := testDatabaseSpec()
	spec.Impersonate = true
	spec.RunAsUser = &dbx.RunAsUserSpecification{UserName: "svc", Domain: "CORP"}

	return deps, mock, imp, spec
}
