package dbx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

// ChangeType tells why a ChangeEvent was raised.
type ChangeType int

const (
	ChangeNotified ChangeType = iota
	ChangeTimeout
)

func (t ChangeType) String() string {
	if t == ChangeTimeout {
		return "Timeout"
	}

	return "Notified"
}

// ChangeEvent is one change notification delivered by a ChangeListener.
type ChangeEvent struct {
	SubscriptionID uuid.UUID  `json:"subscriptionId"`
	EventID        uuid.UUID  `json:"eventId"`
	Channel        string     `json:"channel"`
	Type           ChangeType `json:"type"`
	Payload        string     `json:"payload,omitempty"`
	ReceivedAt     time.Time  `json:"receivedAt"`
}

const watchSlice = 5 * time.Second

// ChangeWatcher registers interest in a query's data and raises OnChange when the provider
// signals a change on the query specification's NotificationChannel.
//
// Registration runs the query once (text only, simple input parameters only). Errors met
// while registering or listening are reported through OnError and end the watch; they are
// never returned.
type ChangeWatcher struct {
	OnChange   func(ctx context.Context, event ChangeEvent)
	OnError    func(ctx context.Context, err error)
	NotifyOnce bool

	provider RelationalProvider
	spec     *DatabaseSpecification
	query    *QuerySpecification
	deps     Dependencies

	mu             sync.Mutex
	conn           *ConnectionContext
	cancel         context.CancelFunc
	done           chan struct{}
	subscriptionID uuid.UUID
}

// NewChangeWatcher returns a watcher for query on the database described by spec.
func NewChangeWatcher(provider RelationalProvider, spec *DatabaseSpecification, query *QuerySpecification, deps Dependencies) *ChangeWatcher {
	return &ChangeWatcher{provider: provider, spec: spec, query: query, deps: deps}
}

// SubscriptionID identifies the current watch.
func (w *ChangeWatcher) SubscriptionID() uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.subscriptionID
}

// Done is closed when the current watch ends. It is nil before the first StartWatching.
func (w *ChangeWatcher) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.done
}

// StartWatching registers the query and starts listening in the background. A watch already
// running is stopped first. timeoutSeconds > 0 ends the watch with a ChangeTimeout event.
func (w *ChangeWatcher) StartWatching(ctx context.Context, params []*Parameter, timeoutSeconds int) {
	w.Stop(ctx)

	listener, cmd, err := w.prepare(params, timeoutSeconds)
	if err != nil {
		w.report(ctx, err)
		return
	}

	conn := NewConnectionContext(w.provider, w.spec, w.deps)
	channel := w.query.NotificationChannel

	if err := w.register(ctx, conn, listener, cmd, channel); err != nil {
		w.report(ctx, err)

		if disposeErr := conn.Dispose(ctx); disposeErr != nil {
			w.deps.logger().LogError(ctx, "error disposing watcher connection", disposeErr)
		}

		return
	}

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	var deadline time.Time
	if timeoutSeconds > 0 {
		deadline = time.Now().UTC().Add(time.Duration(timeoutSeconds) * time.Second)
	}

	w.mu.Lock()
	w.conn = conn
	w.cancel = cancel
	w.done = make(chan struct{})
	w.subscriptionID = uuid.New()
	done, subID := w.done, w.subscriptionID
	w.mu.Unlock()

	w.deps.logger().LogInfo(ctx, fmt.Sprintf("watching channel '%s' (subscription %s)", channel, subID))

	go w.listen(watchCtx, conn, listener, channel, subID, deadline, done)
}

func (w *ChangeWatcher) prepare(params []*Parameter, timeoutSeconds int) (ChangeListener, *Command, error) {
	if w.query == nil {
		return nil, nil, errorx.NewConfigurationError("change watcher requires a query specification")
	}

	if w.query.NotificationChannel == "" {
		return nil, nil, errorx.NewConfigurationError("query '%s' has no notification channel", w.query.Name)
	}

	listener, ok := w.provider.(ChangeListener)
	if !ok {
		return nil, nil, errorx.NewConfigurationError("provider '%s' does not support change notifications", w.provider.Name())
	}

	for _, p := range params {
		if !p.IsSimple() {
			return nil, nil, errorx.NewConfigurationError("change watcher supports simple input parameters only, '%s' is %s", p.Name, p.Type)
		}
	}

	cmd, err := w.provider.CreateCommand(w.query.Query, Text, params, CommandOptions{Timeout: ResolveTimeout(w.spec, timeoutSeconds)})
	if err != nil {
		return nil, nil, err
	}

	return listener, cmd, nil
}

// register subscribes to the channel and runs the query once.
func (w *ChangeWatcher) register(ctx context.Context, conn *ConnectionContext, listener ChangeListener, cmd *Command, channel string) error {
	return conn.RunAs(ctx, func(ctx context.Context) error {
		h, err := conn.Handle(ctx)
		if err != nil {
			return err
		}

		if err := listener.Subscribe(ctx, h, channel); err != nil {
			return err
		}

		reader, err := w.provider.ExecuteReader(ctx, h, cmd)
		if err != nil {
			return err
		}

		for reader.Next() {
		}

		if err := reader.Err(); err != nil {
			_ = reader.Close()
			return errorx.NewDatabaseErrorWrapper(err, "error registering query '%s'", w.query.Name)
		}

		return reader.Close()
	})
}

func (w *ChangeWatcher) listen(ctx context.Context, conn *ConnectionContext, listener ChangeListener, channel string, subID uuid.UUID, deadline time.Time, done chan struct{}) {
	lost := false

	defer close(done)
	defer func() { w.teardown(conn, listener, channel, lost) }()

	for {
		wait := watchSlice
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				w.fire(ctx, ChangeEvent{SubscriptionID: subID, Channel: channel, Type: ChangeTimeout})
				return
			}

			wait = min(wait, remaining)
		}

		var event *ChangeEvent
		err := conn.RunAs(ctx, func(ctx context.Context) error {
			h, err := conn.Handle(ctx)
			if err != nil {
				return err
			}

			event, err = listener.WaitForChange(ctx, h, channel, wait)

			return err
		})

		if ctx.Err() != nil {
			return
		}

		if err != nil {
			lost = true
			w.report(ctx, err)
			return
		}

		if event == nil {
			continue
		}

		event.SubscriptionID = subID
		w.fire(ctx, *event)

		if w.NotifyOnce {
			return
		}
	}
}

func (w *ChangeWatcher) fire(ctx context.Context, event ChangeEvent) {
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}

	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}

	if w.OnChange != nil {
		w.OnChange(ctx, event)
	}
}

func (w *ChangeWatcher) report(ctx context.Context, err error) {
	w.deps.logger().LogError(ctx, "change watcher error", err)

	if w.OnError != nil {
		w.OnError(ctx, err)
	}
}

// teardown unsubscribes on the listener connection and releases it. A lost or released
// connection is never reopened just to unsubscribe.
func (w *ChangeWatcher) teardown(conn *ConnectionContext, listener ChangeListener, channel string, lost bool) {
	ctx, cancel := context.WithTimeout(context.Background(), watchSlice)
	defer cancel()

	if h, ok := conn.Current(); ok && !lost {
		if err := listener.Unsubscribe(ctx, h, channel); err != nil {
			w.deps.logger().LogWarning(ctx, fmt.Sprintf("error unsubscribing from '%s'", channel), err)
		}
	}

	if err := conn.Dispose(ctx); err != nil {
		w.deps.logger().LogError(ctx, "error disposing watcher connection", err)
	}
}

// Stop ends the current watch and waits for the listener to release its connection, or for
// ctx to be done.
func (w *ChangeWatcher) Stop(ctx context.Context) {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()

	select {
	case <-done:
	case <-ctx.Done():
	}
}
