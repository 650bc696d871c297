package main

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
	"github.com/marcodd23/go-dal-core/pkg/errorx"
	"github.com/marcodd23/go-dal-core/pkg/messaging"
	"github.com/marcodd23/go-dal-core/pkg/messaging/pubsub"
	"github.com/marcodd23/go-dal-core/pkg/shutdown"
)

const cleanupTimeoutMilli = 10000

type watchOptions struct {
	params  []string
	timeout int
	once    bool
	relay   bool
	topic   string
}

func newWatchCmd() *cobra.Command {
	var o watchOptions

	cmd := &cobra.Command{
		Use:   "watch <query-name>",
		Short: "Print (and optionally relay to Pub/Sub) the change notifications of a query",
		Long: `watch subscribes to the notification channel of a query specification and prints one
JSON line per change until SIGINT/SIGTERM, the timeout or, with --once, the first change.
With --relay every change is also published to the configured Pub/Sub topic.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParameters(o.params)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				return runWatch(ctx, a, cmd.OutOrStdout(), args[0], o, params)
			})
		},
	}

	fs := cmd.Flags()
	fs.StringArrayVarP(&o.params, "param", "p", nil, "parameter as name:type=value")
	fs.IntVar(&o.timeout, "timeout", 0, "stop after this many seconds, 0 watches until interrupted")
	fs.BoolVar(&o.once, "once", false, "stop after the first change")
	fs.BoolVar(&o.relay, "relay", false, "publish every change to Pub/Sub")
	fs.StringVar(&o.topic, "topic", "", "Pub/Sub topic, overrides relay.topic")

	return cmd
}

func runWatch(ctx context.Context, a *app, w io.Writer, queryName string, o watchOptions, params []*dbx.Parameter) error {
	query, spec, provider, err := a.query(queryName)
	if err != nil {
		return err
	}

	var publisher messaging.BufferedPublisherWithRetry

	handlers := []func(context.Context, dbx.ChangeEvent){
		func(ctx context.Context, e dbx.ChangeEvent) {
			if err := writeEvent(w, e); err != nil {
				a.logger.LogError(ctx, "error writing change event", err)
			}
		},
	}

	if o.relay {
		topic := o.topic
		if topic == "" {
			topic = a.config.Relay.Topic
		}

		if topic == "" || a.config.GetGcpConfig().ProjectId == "" {
			return errorx.NewConfigurationError("relay needs a topic and gcp.project")
		}

		publisher, err = pubsub.NewBufferedPublisherWithRetryFactory(ctx, a.config.GetGcpConfig().ProjectId,
			messaging.TopicPublishConfig{
				BatchSize:     a.config.Relay.BatchSize,
				MaxRetryCount: a.config.Relay.MaxRetryCount,
			}, a.logger)
		if err != nil {
			return err
		}

		handlers = append(handlers, messaging.NewChangeRelay(publisher, topic, a.logger).OnChange)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	watcher := dbx.NewChangeWatcher(provider, spec, query, a.deps)
	watcher.NotifyOnce = o.once
	watcher.OnChange = func(ctx context.Context, e dbx.ChangeEvent) {
		for _, h := range handlers {
			h(ctx, e)
		}
	}
	watcher.OnError = func(ctx context.Context, err error) {
		a.logger.LogError(ctx, fmt.Sprintf("watch of '%s' failed", query.Name), err)
	}

	closePublisher := func(ctx context.Context) {
		if publisher == nil {
			return
		}

		if err := publisher.Close(ctx); err != nil {
			a.logger.LogError(ctx, "error closing the relay publisher", err)
		}
	}

	watcher.StartWatching(watchCtx, params, o.timeout)

	done := watcher.Done()
	if done == nil {
		closePublisher(ctx)
		return errorx.NewGeneralError("watch of '%s' could not be registered", query.Name)
	}

	// End the shutdown wait when the watcher stops on its own.
	go func() {
		select {
		case <-done:
			cancel()
		case <-watchCtx.Done():
		}
	}()

	shutdown.WaitForShutdown(watchCtx, cleanupTimeoutMilli, func(timeoutCtx context.Context) {
		watcher.Stop(timeoutCtx)
		closePublisher(timeoutCtx)
	})

	return nil
}

func writeEvent(w io.Writer, e dbx.ChangeEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, string(data))

	return err
}
