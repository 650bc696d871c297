package dbx

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"

	"github.com/marcodd23/go-dal-core/pkg/logx"
)

// Transaction defines the interface for managing database transactions.
//
// A ConnectionContext owns at most one active Transaction at a time. Every command executed
// through the context while the transaction is active runs inside it.
type Transaction interface {
	GetTx() *sql.Tx
	TxId() int64
	TxCommit(ctx context.Context) error
	TxRollback(ctx context.Context)
}

// SqlTransaction is a Transaction over *sql.Tx.
type SqlTransaction struct {
	tx     *sql.Tx
	txId   int64
	logger logx.Logger
}

// NewSqlTransaction wraps tx and gives it a random id for logging.
func NewSqlTransaction(tx *sql.Tx, logger logx.Logger) *SqlTransaction {
	return &SqlTransaction{tx: tx, txId: newTxId(), logger: logx.OrNop(logger)}
}

func (t *SqlTransaction) GetTx() *sql.Tx { return t.tx }

func (t *SqlTransaction) TxId() int64 { return t.txId }

// TxCommit commits the transaction.
func (t *SqlTransaction) TxCommit(ctx context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return err
	}

	t.logger.LogDebug(ctx, fmt.Sprintf("Committed transaction: %d", t.txId))

	return nil
}

// TxRollback rolls the transaction back. A transaction already done is not an error.
func (t *SqlTransaction) TxRollback(ctx context.Context) {
	err := t.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		t.logger.LogError(ctx, fmt.Sprintf("error Rolling Back transaction: %d", t.txId), err)
		return
	}

	t.logger.LogDebug(ctx, fmt.Sprintf("Rollack transaction: %d", t.txId))
}
