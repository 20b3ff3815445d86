package database

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"time"
)

type TxOptions struct {
	IsolationLevel sql.IsolationLevel
	ReadOnly       bool
	MaxRetries     int
	// InitialBackoff is doubled after each failed attempt. Zero means 50ms.
	InitialBackoff time.Duration
}

func DefaultTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel: sql.LevelReadCommitted,
		MaxRetries:     3,
	}
}

// SerializableTxOptions is used by writes that read and then act on the
// values they read, such as order placement.
func SerializableTxOptions() TxOptions {
	return TxOptions{
		IsolationLevel: sql.LevelSerializable,
		MaxRetries:     5,
	}
}

// WithTransaction runs fn once inside a transaction. The transaction is rolled
// back when fn returns an error.
func WithTransaction(ctx context.Context, db *sql.DB, opts TxOptions, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{
		Isolation: opts.IsolationLevel,
		ReadOnly:  opts.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// WithRetry runs fn in a fresh transaction until it commits, fails with a
// permanent error, or MaxRetries retries have been spent on serialization,
// deadlock and lock-not-available failures.
func WithRetry(ctx context.Context, db *sql.DB, opts TxOptions, fn func(*sql.Tx) error) error {
	backoff := opts.InitialBackoff
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := WithTransaction(ctx, db, opts, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt >= opts.MaxRetries {
			return fmt.Errorf("max retries (%d) exceeded: %w", opts.MaxRetries, err)
		}

		if err := sleep(ctx, backoff+jitter(backoff)); err != nil {
			return err
		}
		backoff *= 2
	}
}

func jitter(d time.Duration) time.Duration {
	if d < 4 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d / 4)))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
