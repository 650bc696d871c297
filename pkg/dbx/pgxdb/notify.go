package pgxdb

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

// Change notifications use LISTEN/NOTIFY: the channel is the notification channel name.

// Subscribe issues LISTEN on the channel.
func (p *Provider) Subscribe(ctx context.Context, h dbx.Handle, channel string) error {
	if _, err := h.Conn.ExecContext(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return errorx.NewDatabaseErrorWrapper(err, "error listening on '%s'", channel)
	}

	return nil
}

// WaitForChange waits up to timeout for a notification on the connection.
func (p *Provider) WaitForChange(ctx context.Context, h dbx.Handle, channel string, timeout time.Duration) (*dbx.ChangeEvent, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var notification *pgconn.Notification
	err := h.Conn.Raw(func(driverConn any) error {
		conn, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return errorx.NewDatabaseError("unexpected driver connection %T", driverConn)
		}

		var err error
		notification, err = conn.Conn().WaitForNotification(waitCtx)

		return err
	})

	if err != nil {
		if ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return nil, nil
		}

		return nil, errorx.NewDatabaseErrorWrapper(err, "error waiting for notification on '%s'", channel)
	}

	return &dbx.ChangeEvent{
		Channel:    notification.Channel,
		Type:       dbx.ChangeNotified,
		Payload:    notification.Payload,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

// Unsubscribe issues UNLISTEN on the channel.
func (p *Provider) Unsubscribe(ctx context.Context, h dbx.Handle, channel string) error {
	if _, err := h.Conn.ExecContext(ctx, "UNLISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return errorx.NewDatabaseErrorWrapper(err, "error unlistening on '%s'", channel)
	}

	return nil
}
