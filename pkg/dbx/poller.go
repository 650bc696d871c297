package dbx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

// DefaultPollInterval is used when StartWatching gets no interval.
const DefaultPollInterval = 60 * time.Second

// PollResult is the outcome of an asynchronous poll.
type PollResult struct {
	Table *DataTable
	Err   error
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithWatchTimeout sets the overall wall-clock limit of a poll, in seconds. Without it the
// command timeout is used.
func WithWatchTimeout(seconds int) PollerOption {
	return func(p *Poller) {
		p.watchTimeout = seconds
	}
}

// Poller detects changes by running a text query repeatedly until it returns rows or the
// overall timeout elapses.
//
// A failed attempt ends the loop and the best result obtained so far (possibly empty) is
// returned without error: callers cannot tell "no rows yet" from "query failed" other than
// through the log. Only setup errors (missing specification, command build, impersonation)
// are returned.
type Poller struct {
	mu           sync.Mutex
	provider     RelationalProvider
	spec         *DatabaseSpecification
	query        *QuerySpecification
	deps         Dependencies
	watchTimeout int
}

// NewPoller returns a poller for query on the database described by spec.
func NewPoller(provider RelationalProvider, spec *DatabaseSpecification, query *QuerySpecification, deps Dependencies, opts ...PollerOption) *Poller {
	p := &Poller{provider: provider, spec: spec, query: query, deps: deps}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// StartWatching polls every pollIntervalSeconds (60 when <= 0) until the query returns at
// least one row or the timeout elapses. One poll runs at a time per Poller.
func (p *Poller) StartWatching(ctx context.Context, params []*Parameter, commandTimeoutSeconds int, pollIntervalSeconds int) (*DataTable, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.query == nil {
		return nil, errorx.NewConfigurationError("poller requires a query specification")
	}

	interval := DefaultPollInterval
	if pollIntervalSeconds > 0 {
		interval = time.Duration(pollIntervalSeconds) * time.Second
	}

	cmdTimeout := ResolveTimeout(p.spec, commandTimeoutSeconds)

	timeout := cmdTimeout
	if p.watchTimeout > 0 {
		timeout = time.Duration(p.watchTimeout) * time.Second
	}

	cmd, err := p.provider.CreateCommand(p.query.Query, Text, params, CommandOptions{Timeout: cmdTimeout})
	if err != nil {
		return nil, err
	}

	conn := NewConnectionContext(p.provider, p.spec, p.deps)
	defer func() {
		if err := conn.Dispose(ctx); err != nil {
			p.deps.logger().LogError(ctx, "error disposing poller connection", err)
		}
	}()

	best := NewDataTable(TableName(0))
	err = conn.RunAs(ctx, func(ctx context.Context) error {
		best = p.poll(ctx, conn, cmd, interval, timeout)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return best, nil
}

func (p *Poller) poll(ctx context.Context, conn *ConnectionContext, cmd *Command, interval time.Duration, timeout time.Duration) *DataTable {
	logger := p.deps.logger()
	best := NewDataTable(TableName(0))
	start := time.Now().UTC()

	for attempt := 1; ; attempt++ {
		h, err := conn.Handle(ctx)
		if err == nil {
			var table *DataTable
			table, err = p.provider.FillTable(ctx, h, cmd)
			if err == nil && table != nil {
				best = table
			}
		}

		if err != nil {
			logger.LogError(ctx, fmt.Sprintf("poll attempt %d of '%s' failed", attempt, p.query.Name), err)
			return best
		}

		if best.RowCount() > 0 {
			logger.LogDebug(ctx, fmt.Sprintf("poll of '%s' returned %d rows after %d attempts", p.query.Name, best.RowCount(), attempt))
			return best
		}

		elapsed := time.Now().UTC().Sub(start)
		if elapsed >= timeout {
			return best
		}

		timer := time.NewTimer(min(interval, timeout-elapsed))
		select {
		case <-ctx.Done():
			timer.Stop()
			return best
		case <-timer.C:
		}
	}
}

// StartWatchingAsync runs StartWatching in the background and delivers its result on the
// returned channel.
func (p *Poller) StartWatchingAsync(ctx context.Context, params []*Parameter, commandTimeoutSeconds int, pollIntervalSeconds int) <-chan PollResult {
	out := make(chan PollResult, 1)

	go func() {
		defer close(out)

		table, err := p.StartWatching(ctx, params, commandTimeoutSeconds, pollIntervalSeconds)
		out <- PollResult{Table: table, Err: err}
	}()

	return out
}
