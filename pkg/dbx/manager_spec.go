package dbx

import (
	"context"
	"encoding/xml"

	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

// The ExecSpec methods forward to the Exec matrix using the query text, call type, UDT
// mapping flags, output fields and timeout of a QuerySpecification. Options passed by the
// caller are applied after the specification's.

func (m *DatabaseManager) resolveQuery(q *QuerySpecification) (*QuerySpecification, error) {
	if q == nil {
		q = m.query
	}

	if q == nil {
		return nil, errorx.NewConfigurationError("no query specification given")
	}

	return q, nil
}

func (m *DatabaseManager) ExecSpecNonQuery(ctx context.Context, q *QuerySpecification, params []*Parameter, opts ...ExecOption) (int64, error) {
	q, err := m.resolveQuery(q)
	if err != nil {
		return 0, err
	}

	return m.ExecNonQuery(ctx, q.ExecutionType, q.Query, params, specExecOptions(q, opts)...)
}

func (m *DatabaseManager) ExecSpecScalar(ctx context.Context, q *QuerySpecification, params []*Parameter, opts ...ExecOption) (Value, error) {
	q, err := m.resolveQuery(q)
	if err != nil {
		return Null(), err
	}

	return m.ExecScalar(ctx, q.ExecutionType, q.Query, params, specExecOptions(q, opts)...)
}

func (m *DatabaseManager) ExecSpecDataReader(ctx context.Context, q *QuerySpecification, params []*Parameter, opts ...ExecOption) (*Reader, error) {
	q, err := m.resolveQuery(q)
	if err != nil {
		return nil, err
	}

	return m.ExecDataReader(ctx, q.ExecutionType, q.Query, params, specExecOptions(q, opts)...)
}

func (m *DatabaseManager) ExecSpecXmlReader(ctx context.Context, q *QuerySpecification, params []*Parameter, opts ...ExecOption) (*xml.Decoder, error) {
	q, err := m.resolveQuery(q)
	if err != nil {
		return nil, err
	}

	return m.ExecXmlReader(ctx, q.ExecutionType, q.Query, params, specExecOptions(q, opts)...)
}

func (m *DatabaseManager) ExecSpecDataSet(ctx context.Context, q *QuerySpecification, params []*Parameter, opts ...ExecOption) (*DataSet, error) {
	q, err := m.resolveQuery(q)
	if err != nil {
		return nil, err
	}

	return m.ExecDataSet(ctx, q.ExecutionType, q.Query, params, specExecOptions(q, opts)...)
}

func (m *DatabaseManager) ExecSpecDataTable(ctx context.Context, q *QuerySpecification, params []*Parameter, opts ...ExecOption) (*DataTable, error) {
	q, err := m.resolveQuery(q)
	if err != nil {
		return nil, err
	}

	return m.ExecDataTable(ctx, q.ExecutionType, q.Query, params, specExecOptions(q, opts)...)
}
