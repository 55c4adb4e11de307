package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/pkg/apperror"
)

type contextKey string

const (
	// DBConnKey carries a request-scoped pooled connection.
	DBConnKey contextKey = "db_conn"
	// DBTxKey carries an open transaction for multi-repo operations.
	DBTxKey contextKey = "db_tx"
)

// WithConn stores a pooled connection on the context so repositories reuse it
// instead of acquiring their own.
func WithConn(ctx context.Context, conn *pgxpool.Conn) context.Context {
	return context.WithValue(ctx, DBConnKey, conn)
}

// ConnFromContext retrieves the request-scoped database connection, if any.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// TxFromContext retrieves the open transaction, if any. Repositories check
// this first so every statement inside WithTx joins the same transaction.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx runs fn inside a single transaction. The transaction is attached to
// the context passed to fn; any repository resolving its connection through
// TxFromContext participates in it. A non-nil error from fn rolls everything
// back. Nested calls reuse the outer transaction.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	if tx := TxFromContext(ctx); tx != nil {
		return fn(ctx)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, DBTxKey, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// WithSerializableTx runs fn like WithTx but at SERIALIZABLE isolation, used
// for dispensing where multi-row inventory invariants must hold. A
// serialization conflict is retried once with a fresh transaction, so fn must
// reset any state it captures. A conflict on the retry surfaces as
// apperror.ErrTransactionFailed.
func WithSerializableTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	if tx := TxFromContext(ctx); tx != nil {
		return fn(ctx)
	}

	return retrySerializable(func() error {
		tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if err := fn(context.WithValue(ctx, DBTxKey, tx)); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

// retrySerializable reruns attempt once when the first run ends in a
// serialization failure.
func retrySerializable(attempt func() error) error {
	err := attempt()
	if !isSerializationFailure(err) {
		return err
	}
	err = attempt()
	if isSerializationFailure(err) {
		return fmt.Errorf("serialization conflict persisted after retry: %v: %w", err, apperror.ErrTransactionFailed)
	}
	return err
}

// isSerializationFailure matches SQLSTATE 40001, raised when concurrent
// serializable transactions cannot be ordered.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}
