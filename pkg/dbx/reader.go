package dbx

import (
	"context"
	"database/sql"
	"sync"
)

// Reader is a forward-only result reader. It embeds *sql.Rows; Close must be called, it
// releases the command timeout, collects output parameters and runs the owner's release
// step (the conditional connection dispose of a DatabaseManager).
type Reader struct {
	*sql.Rows

	cmd       *Command
	handle    Handle
	cancel    context.CancelFunc
	onClose   func(ctx context.Context) error
	closeOnce sync.Once
	closeErr  error
}

func newReader(rows *sql.Rows, cmd *Command, h Handle, cancel context.CancelFunc) *Reader {
	return &Reader{Rows: rows, cmd: cmd, handle: h, cancel: cancel}
}

// OnClose chains fn after the reader's own cleanup.
func (r *Reader) OnClose(fn func(ctx context.Context) error) {
	prev := r.onClose
	r.onClose = func(ctx context.Context) error {
		if prev != nil {
			if err := prev(ctx); err != nil {
				return err
			}
		}

		return fn(ctx)
	}
}

// Close closes the rows and releases everything attached to the reader. It is idempotent.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.Rows.Close()

		ctx := context.Background()
		if r.closeErr == nil && r.cmd != nil {
			r.closeErr = r.cmd.CollectOutputs(ctx, r.handle)
		}

		if r.cancel != nil {
			r.cancel()
		}

		if r.onClose != nil {
			if err := r.onClose(ctx); err != nil && r.closeErr == nil {
				r.closeErr = err
			}
		}
	})

	return r.closeErr
}

// ReadTable drains the current result set into a DataTable.
func (r *Reader) ReadTable(name string) (*DataTable, error) {
	return ReadTable(r.Rows, name, nil)
}
