package oradb

import (
	"context"
	"database/sql"
	"time"

	go_ora "github.com/sijms/go-ora/v2"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

// Change notifications use DBMS_ALERT: the channel is the alert name, signalled by the
// application with DBMS_ALERT.SIGNAL and delivered on commit.

const alertMessageSize = 1800

// Subscribe registers the session for the alert.
func (p *Provider) Subscribe(ctx context.Context, h dbx.Handle, channel string) error {
	if _, err := h.Querier().ExecContext(ctx, "BEGIN DBMS_ALERT.REGISTER(:name); END;", sql.Named("name", channel)); err != nil {
		return errorx.NewDatabaseErrorWrapper(err, "error registering alert '%s'", channel)
	}

	return nil
}

// WaitForChange waits for the alert up to timeout, rounded up to whole seconds.
func (p *Provider) WaitForChange(ctx context.Context, h dbx.Handle, channel string, timeout time.Duration) (*dbx.ChangeEvent, error) {
	seconds := int64((timeout + time.Second - 1) / time.Second)

	var (
		message sql.NullString
		status  sql.NullInt64
	)

	_, err := h.Querier().ExecContext(ctx,
		"BEGIN DBMS_ALERT.WAITONE(:name, :message, :status, :timeout); END;",
		sql.Named("name", channel),
		sql.Named("message", go_ora.Out{Dest: &message, Size: alertMessageSize}),
		sql.Named("status", go_ora.Out{Dest: &status}),
		sql.Named("timeout", seconds),
	)
	if err != nil {
		return nil, errorx.NewDatabaseErrorWrapper(err, "error waiting for alert '%s'", channel)
	}

	if status.Int64 != 0 {
		return nil, nil
	}

	return &dbx.ChangeEvent{Channel: channel, Type: dbx.ChangeNotified, Payload: message.String, ReceivedAt: time.Now().UTC()}, nil
}

// Unsubscribe removes the session's registration.
func (p *Provider) Unsubscribe(ctx context.Context, h dbx.Handle, channel string) error {
	if _, err := h.Querier().ExecContext(ctx, "BEGIN DBMS_ALERT.REMOVE(:name); END;", sql.Named("name", channel)); err != nil {
		return errorx.NewDatabaseErrorWrapper(err, "error removing alert '%s'", channel)
	}

	return nil
}
