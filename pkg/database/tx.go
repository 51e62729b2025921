package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// TxFunc runs inside a transaction; exec must be used for every statement.
type TxFunc func(ctx context.Context, exec sqlx.ExtContext) error

// Transactor runs units of work atomically.
type Transactor interface {
	WithinTx(ctx context.Context, fn TxFunc) error
}

// TxObserver receives the duration of each committed or rolled back transaction.
type TxObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

// TxRunner implements Transactor on top of sqlx.
type TxRunner struct {
	db       *sqlx.DB
	timeout  time.Duration
	observer TxObserver
}

// NewTxRunner builds a runner that bounds every transaction by timeout.
func NewTxRunner(db *sqlx.DB, timeout time.Duration, observer TxObserver) *TxRunner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TxRunner{db: db, timeout: timeout, observer: observer}
}

// WithinTx begins a transaction, runs fn, and commits. Any error, panic or
// cancellation rolls the transaction back.
func (r *TxRunner) WithinTx(ctx context.Context, fn TxFunc) (err error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
		if r.observer != nil {
			label := "tx_commit"
			if err != nil {
				label = "tx_rollback"
			}
			r.observer.ObserveDBQuery(label, time.Since(start))
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
