// Package pending holds tool calls awaiting user confirmation. Records are
// keyed by an unguessable id and carry an expiry; losing them on a crash is
// acceptable, so the store favors plain durable inserts over anything
// stronger. Expiry is enforced lazily on read; Sweep exists for an external
// scheduler but is an optimization, not a correctness requirement.
package pending

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vowsuite/concierge"
)

// DefaultTTL is the confirmation window for a pending call.
const DefaultTTL = 5 * time.Minute

// Store persists pending calls in the pending_calls table.
type Store struct {
	db  *sql.DB
	ttl time.Duration

	// now is swapped out by tests.
	now func() time.Time
}

// Option mutates a Store at construction time.
type Option func(*Store)

// WithTTL overrides the confirmation window.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create builds a PendingToolCall with a fresh unguessable id and the
// store's TTL, persists it, and returns it.
func (s *Store) Create(ctx context.Context, caller concierge.CallerContext, toolName string, args map[string]any, preview concierge.ToolPreview) (*concierge.PendingToolCall, error) {
	now := s.now()
	call := &concierge.PendingToolCall{
		ID:        uuid.NewString(),
		UserID:    caller.UserID,
		TenantID:  caller.TenantID,
		ToolName:  toolName,
		Arguments: args,
		Preview:   preview,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.Set(ctx, call); err != nil {
		return nil, err
	}
	return call, nil
}

// Set durably inserts the record. A storage failure propagates; callers
// must never treat it as success.
func (s *Store) Set(ctx context.Context, call *concierge.PendingToolCall) error {
	args, err := json.Marshal(call.Arguments)
	if err != nil {
		return fmt.Errorf("encode pending arguments: %w", err)
	}
	preview, err := json.Marshal(call.Preview)
	if err != nil {
		return fmt.Errorf("encode pending preview: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_calls (id, user_id, tenant_id, tool_name, arguments, preview, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		call.ID, call.UserID, call.TenantID, call.ToolName, string(args), string(preview),
		call.CreatedAt.UnixNano(), call.ExpiresAt.UnixNano())
	if err != nil {
		return fmt.Errorf("persist pending call %s: %w", call.ID, err)
	}
	return nil
}

// Get returns the record, or nil when it is absent or already expired.
// An expired record is deleted on read.
func (s *Store) Get(ctx context.Context, id string) (*concierge.PendingToolCall, error) {
	call, err := s.fetch(ctx, s.db, id)
	if err != nil || call == nil {
		return nil, err
	}
	if call.Expired(s.now()) {
		_ = s.Delete(ctx, id)
		return nil, nil
	}
	return call, nil
}

// Take atomically claims the record: exactly one of two racing confirm/
// cancel calls gets it, the other sees nil. Expired records are treated as
// absent (and removed).
func (s *Store) Take(ctx context.Context, id string) (*concierge.PendingToolCall, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("take pending call: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	call, err := s.fetch(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if call == nil {
		return nil, nil
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM pending_calls WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("take pending call %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("take pending call %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("take pending call %s: %w", id, err)
	}
	if n == 0 {
		return nil, nil
	}
	if call.Expired(s.now()) {
		return nil, nil
	}
	return call, nil
}

// Delete is idempotent.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_calls WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete pending call %s: %w", id, err)
	}
	return nil
}

// ListForUser returns the user's non-expired pending calls, newest first.
// Used for multi-session visibility, not for cleanup.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*concierge.PendingToolCall, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, tenant_id, tool_name, arguments, preview, created_at, expires_at
		 FROM pending_calls WHERE user_id = ? AND expires_at > ? ORDER BY created_at DESC`,
		userID, s.now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("list pending calls: %w", err)
	}
	defer rows.Close()

	var out []*concierge.PendingToolCall
	for rows.Next() {
		call, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, call)
	}
	return out, rows.Err()
}

// Sweep bulk-deletes expired records and returns how many were removed.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_calls WHERE expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sweep pending calls: %w", err)
	}
	return res.RowsAffected()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) fetch(ctx context.Context, q querier, id string) (*concierge.PendingToolCall, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, user_id, tenant_id, tool_name, arguments, preview, created_at, expires_at
		 FROM pending_calls WHERE id = ?`, id)
	call, err := scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending call %s: %w", id, err)
	}
	return call, nil
}

func scanPending(row interface{ Scan(...any) error }) (*concierge.PendingToolCall, error) {
	var call concierge.PendingToolCall
	var args, preview string
	var createdAt, expiresAt int64
	if err := row.Scan(&call.ID, &call.UserID, &call.TenantID, &call.ToolName, &args, &preview, &createdAt, &expiresAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(args), &call.Arguments); err != nil {
		return nil, fmt.Errorf("decode pending arguments: %w", err)
	}
	if err := json.Unmarshal([]byte(preview), &call.Preview); err != nil {
		return nil, fmt.Errorf("decode pending preview: %w", err)
	}
	call.CreatedAt = time.Unix(0, createdAt)
	call.ExpiresAt = time.Unix(0, expiresAt)
	return &call, nil
}
