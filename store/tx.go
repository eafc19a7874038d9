package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/vowsuite/concierge"
)

const (
	// DefaultMaxRetries bounds how many times a conflicting transaction is
	// re-run before the wrapper gives up.
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the base of the linear backoff between attempts.
	DefaultRetryDelay = 100 * time.Millisecond
)

// TxOptions tunes one WithTx invocation. The zero value gets defaults.
type TxOptions struct {
	Isolation  sql.IsolationLevel
	MaxRetries int
	RetryDelay time.Duration

	// Sleep is swapped out by tests; nil means time.Sleep.
	Sleep func(time.Duration)
}

func (o TxOptions) withDefaults() TxOptions {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
	return o
}

// WithTx runs fn inside a transaction: commit on normal return, rollback on
// any error. Transient conflicts (sqlite BUSY/LOCKED, deadlock or
// serialization failures, connection/timeout conditions) re-run the whole
// transaction from the start with linear backoff, up to MaxRetries attempts
// in total. Exhausted retries and non-retryable errors surface as a single
// TransactionFailed error wrapping the last cause; callers must not assume
// partial effects.
func WithTx(ctx context.Context, db *sql.DB, opts TxOptions, fn func(*sql.Tx) error) error {
	opts = opts.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			break
		}
		if attempt > 1 {
			opts.Sleep(opts.RetryDelay * time.Duration(attempt-1))
		}

		lastErr = runTx(ctx, db, opts.Isolation, fn)
		if lastErr == nil {
			return nil
		}
		// Classified tool errors are handler-level failures, never conflicts.
		if !Retryable(lastErr) {
			break
		}
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	// Handler-level validation errors surface to the caller unchanged; the
	// transaction was already rolled back.
	var ce *concierge.Error
	if errors.As(lastErr, &ce) {
		return lastErr
	}
	return concierge.TransactionFailed(lastErr)
}

func runTx(ctx context.Context, db *sql.DB, isolation sql.IsolationLevel, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// The rollback must run even when fn panics: callers recover handler
	// panics, and with a single-connection pool an abandoned transaction
	// wedges every later query.
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// CascadeOutcome carries the primary result and each cascade operation's
// result from one WithCascadeTx invocation.
type CascadeOutcome[T any] struct {
	Main    T
	Cascade []any
}

// WithCascadeTx executes one primary operation then each dependent cascade
// operation (receiving the primary's result) inside a single retry-wrapped
// transaction, so a partial cascade can never be observed.
func WithCascadeTx[T any](
	ctx context.Context,
	db *sql.DB,
	opts TxOptions,
	main func(*sql.Tx) (T, error),
	cascades ...func(*sql.Tx, T) (any, error),
) (CascadeOutcome[T], error) {
	var out CascadeOutcome[T]
	err := WithTx(ctx, db, opts, func(tx *sql.Tx) error {
		out = CascadeOutcome[T]{}
		primary, err := main(tx)
		if err != nil {
			return err
		}
		out.Main = primary
		for i, cascade := range cascades {
			res, err := cascade(tx, primary)
			if err != nil {
				return fmt.Errorf("cascade %d: %w", i, err)
			}
			out.Cascade = append(out.Cascade, res)
		}
		return nil
	})
	if err != nil {
		return CascadeOutcome[T]{}, err
	}
	return out, nil
}

// retryableFragments are message heuristics for drivers and proxies that do
// not expose structured conflict codes.
var retryableFragments = []string{
	"deadlock",
	"serialization failure",
	"lock not available",
	"database is locked",
	"database table is locked",
	"connection",
	"timeout",
}

// Retryable reports whether err is a transient conflict worth re-running
// the whole transaction for.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var ce *concierge.Error
	if errors.As(err, &ce) {
		// Handler validation errors abort immediately regardless of message.
		return false
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range retryableFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
