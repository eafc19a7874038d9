package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vowsuite/concierge"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := WithTx(ctx, db, TxOptions{}, func(tx *sql.Tx) error {
		return InsertClient(ctx, tx, &Client{
			ID: "c1", TenantID: "t1", Name: "Ana & Rui", CreatedAt: time.Now(),
		})
	})
	require.NoError(t, err)

	c, err := GetClient(ctx, db, "t1", "c1")
	require.NoError(t, err)
	require.NotNil(t, c)
	require.Equal(t, "Ana & Rui", c.Name)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	boom := errors.New("handler exploded")
	err := WithTx(ctx, db, TxOptions{}, func(tx *sql.Tx) error {
		if err := InsertClient(ctx, tx, &Client{ID: "c1", TenantID: "t1", Name: "x", CreatedAt: time.Now()}); err != nil {
			return err
		}
		return boom
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, boom))
	require.Equal(t, concierge.CodeTransactionFailed, concierge.CodeOf(err))

	c, err := GetClient(ctx, db, "t1", "c1")
	require.NoError(t, err)
	require.Nil(t, c, "rolled-back insert must not be observable")
}

func TestWithTx_PanicReleasesConnection(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	func() {
		defer func() {
			require.NotNil(t, recover(), "panic must propagate to the caller")
		}()
		_ = WithTx(ctx, db, TxOptions{}, func(tx *sql.Tx) error {
			if err := InsertClient(ctx, tx, &Client{ID: "c1", TenantID: "t1", Name: "x", CreatedAt: time.Now()}); err != nil {
				return err
			}
			panic("handler exploded")
		})
	}()

	// The pool has a single connection; an abandoned transaction would
	// block this query forever.
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var one int
	require.NoError(t, db.QueryRowContext(queryCtx, `SELECT 1`).Scan(&one))
	require.Equal(t, 1, one)

	c, err := GetClient(ctx, db, "t1", "c1")
	require.NoError(t, err)
	require.Nil(t, c, "insert from the panicked transaction must not be observable")
}

func TestWithTx_RetryBound(t *testing.T) {
	db := newTestDB(t)

	attempts := 0
	var delays []time.Duration
	opts := TxOptions{
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
		Sleep:      func(d time.Duration) { delays = append(delays, d) },
	}

	err := WithTx(context.Background(), db, opts, func(*sql.Tx) error {
		attempts++
		return errors.New("database is locked")
	})
	require.Error(t, err)
	require.Equal(t, 3, attempts, "always-retryable error must run exactly MaxRetries attempts")
	require.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, delays, "linear backoff")
	require.Equal(t, concierge.CodeTransactionFailed, concierge.CodeOf(err))
}

func TestWithTx_NonRetryableFailsFast(t *testing.T) {
	db := newTestDB(t)

	attempts := 0
	err := WithTx(context.Background(), db, TxOptions{Sleep: func(time.Duration) {}}, func(*sql.Tx) error {
		attempts++
		return concierge.BadRequest("firstName is required")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts, "classified handler errors must not retry")
	require.Equal(t, concierge.CodeBadRequest, concierge.CodeOf(err),
		"validation errors surface unchanged, not as TransactionFailed")
}

func TestWithTx_RetryEventuallySucceeds(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	attempts := 0
	err := WithTx(ctx, db, TxOptions{Sleep: func(time.Duration) {}}, func(tx *sql.Tx) error {
		attempts++
		if attempts == 1 {
			return errors.New("serialization failure")
		}
		return InsertClient(ctx, tx, &Client{ID: "c1", TenantID: "t1", Name: "x", CreatedAt: time.Now()})
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)

	c, err := GetClient(ctx, db, "t1", "c1")
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestWithCascadeTx_PartialCascadeNeverObservable(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := WithCascadeTx(ctx, db, TxOptions{Sleep: func(time.Duration) {}},
		func(tx *sql.Tx) (*Client, error) {
			c := &Client{ID: "c1", TenantID: "t1", Name: "Ana & Rui", CreatedAt: time.Now()}
			return c, InsertClient(ctx, tx, c)
		},
		func(tx *sql.Tx, c *Client) (any, error) {
			e := &Event{ID: "e1", TenantID: "t1", ClientID: c.ID, Name: "Wedding Day", CreatedAt: time.Now()}
			return e, InsertEvent(ctx, tx, e)
		},
		func(*sql.Tx, *Client) (any, error) {
			return nil, concierge.BadRequest("forced cascade failure")
		},
	)
	require.Error(t, err)

	c, err := GetClient(ctx, db, "t1", "c1")
	require.NoError(t, err)
	require.Nil(t, c, "primary write must not survive a failed cascade")
}

func TestWithCascadeTx_ReturnsMainAndCascadeResults(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	out, err := WithCascadeTx(ctx, db, TxOptions{},
		func(tx *sql.Tx) (*Client, error) {
			c := &Client{ID: "c1", TenantID: "t1", Name: "Ana & Rui", TotalBudget: 20000, CreatedAt: time.Now()}
			return c, InsertClient(ctx, tx, c)
		},
		func(tx *sql.Tx, c *Client) (any, error) {
			e := &Event{ID: "e1", TenantID: "t1", ClientID: c.ID, Name: "Wedding Day", CreatedAt: time.Now()}
			return e, InsertEvent(ctx, tx, e)
		},
	)
	require.NoError(t, err)
	require.Equal(t, "c1", out.Main.ID)
	require.Len(t, out.Cascade, 1)
}

func TestRetryable_Classification(t *testing.T) {
	require.True(t, Retryable(errors.New("database is locked")))
	require.True(t, Retryable(errors.New("pq: deadlock detected")))
	require.True(t, Retryable(errors.New("could not serialize access: serialization failure")))
	require.True(t, Retryable(errors.New("lock not available")))
	require.True(t, Retryable(errors.New("read tcp: connection reset by peer")))
	require.True(t, Retryable(errors.New("i/o timeout")))

	require.False(t, Retryable(nil))
	require.False(t, Retryable(errors.New("UNIQUE constraint failed: guests.id")))
	require.False(t, Retryable(concierge.NotFound("guest not found")))
}
