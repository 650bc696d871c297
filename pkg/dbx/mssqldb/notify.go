package mssqldb

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

// Change notifications are read from a Service Broker queue. The channel names the queue,
// optionally schema-qualified; the database side (service, queue, and the trigger or event
// notification sending to it) is set up by the application.

const endDialog = "http://schemas.microsoft.com/SQL/ServiceBroker/EndDialog"

var queueName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func quoteQueue(channel string) (string, error) {
	if !queueName.MatchString(channel) {
		return "", errorx.NewConfigurationError("invalid Service Broker queue name '%s'", channel)
	}

	parts := strings.Split(channel, ".")
	for i, part := range parts {
		parts[i] = "[" + part + "]"
	}

	return strings.Join(parts, "."), nil
}

// Subscribe checks that the queue exists.
func (p *Provider) Subscribe(ctx context.Context, h dbx.Handle, channel string) error {
	if _, err := quoteQueue(channel); err != nil {
		return err
	}

	var count int64
	err := h.Querier().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sys.service_queues WHERE name = PARSENAME(@queue, 1)",
		sql.Named("queue", channel)).Scan(&count)
	if err != nil {
		return errorx.NewDatabaseErrorWrapper(err, "error looking up queue '%s'", channel)
	}

	if count == 0 {
		return errorx.NewConfigurationError("Service Broker queue '%s' not found", channel)
	}

	return nil
}

// WaitForChange receives one message from the queue, waiting up to timeout. End-of-dialog
// messages close their conversation and count as no change.
func (p *Provider) WaitForChange(ctx context.Context, h dbx.Handle, channel string, timeout time.Duration) (*dbx.ChangeEvent, error) {
	queue, err := quoteQueue(channel)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"WAITFOR (RECEIVE TOP(1) conversation_handle, message_type_name, CAST(message_body AS NVARCHAR(MAX)) FROM %s), TIMEOUT %d",
		queue, timeout.Milliseconds())

	var (
		handle      []byte
		messageType string
		body        sql.NullString
	)

	err = h.Querier().QueryRowContext(ctx, query).Scan(&handle, &messageType, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, errorx.NewDatabaseErrorWrapper(err, "error receiving from queue '%s'", channel)
	}

	if messageType == endDialog {
		if _, err := h.Querier().ExecContext(ctx, "END CONVERSATION @handle", sql.Named("handle", handle)); err != nil {
			return nil, errorx.NewDatabaseErrorWrapper(err, "error ending conversation on '%s'", channel)
		}

		return nil, nil
	}

	return &dbx.ChangeEvent{Channel: channel, Type: dbx.ChangeNotified, Payload: body.String, ReceivedAt: time.Now().UTC()}, nil
}

// Unsubscribe is a no-op: the queue outlives the watcher.
func (p *Provider) Unsubscribe(context.Context, dbx.Handle, string) error {
	return nil
}
