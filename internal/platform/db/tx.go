package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres error codes the repositories branch on.
const (
	PgErrUniqueViolation      = "23505"
	PgErrSerializationFailure = "40001"
	PgErrDeadlockDetected     = "40P01"
)

// maxTxAttempts bounds retries of transactions aborted by serialization
// failures or deadlocks.
const maxTxAttempts = 3

// WithTx executes fn inside a READ COMMITTED transaction. Row locks taken with
// SELECT ... FOR UPDATE serialise writers on the same key while letting the
// locked read observe the latest committed version. Transactions aborted by
// the server with a retryable code are re-run from scratch.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = runTx(ctx, pool, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
	}
	return err
}

func runTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// IsRetryable reports whether err is a serialization failure or deadlock.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == PgErrSerializationFailure || pgErr.Code == PgErrDeadlockDetected
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == PgErrUniqueViolation
}

// NullInt64 maps zero ids to SQL NULL.
func NullInt64(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
