package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type TimelineItem struct {
	ID        string
	TenantID  string
	ClientID  string
	Title     string
	StartsAt  time.Time
	EndsAt    time.Time
	Location  string
	CreatedAt time.Time
}

const timelineColumns = `id, tenant_id, client_id, title, starts_at, ends_at, location, created_at`

func scanTimelineItem(row interface{ Scan(...any) error }) (*TimelineItem, error) {
	var t TimelineItem
	var startsAt, endsAt, createdAt string
	err := row.Scan(&t.ID, &t.TenantID, &t.ClientID, &t.Title, &startsAt, &endsAt, &t.Location, &createdAt)
	if err != nil {
		return nil, err
	}
	t.StartsAt = parseTime(startsAt)
	t.EndsAt = parseTime(endsAt)
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}

func InsertTimelineItem(ctx context.Context, q Querier, t *TimelineItem) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO timeline_items (id, tenant_id, client_id, title, starts_at, ends_at, location, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TenantID, t.ClientID, t.Title, formatTime(t.StartsAt), formatTime(t.EndsAt), t.Location, formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert timeline item: %w", err)
	}
	return nil
}

func GetTimelineItem(ctx context.Context, q Querier, tenantID, id string) (*TimelineItem, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+timelineColumns+` FROM timeline_items WHERE tenant_id = ? AND id = ?`, tenantID, id)
	t, err := scanTimelineItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get timeline item: %w", err)
	}
	return t, nil
}

func ListTimeline(ctx context.Context, q Querier, tenantID, clientID string) ([]TimelineItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+timelineColumns+` FROM timeline_items WHERE tenant_id = ? AND client_id = ? ORDER BY starts_at`,
		tenantID, clientID)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	defer rows.Close()

	var out []TimelineItem
	for rows.Next() {
		t, err := scanTimelineItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan timeline item: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ShiftTimeline moves every timeline row of the client by delta (negative
// means earlier) and returns how many rows were shifted. Timestamps are
// stored as text, so each row is rewritten individually; callers run this
// inside a wrapped transaction.
func ShiftTimeline(ctx context.Context, q Querier, tenantID, clientID string, delta time.Duration) (int, error) {
	items, err := ListTimeline(ctx, q, tenantID, clientID)
	if err != nil {
		return 0, err
	}
	for _, item := range items {
		_, err := q.ExecContext(ctx,
			`UPDATE timeline_items SET starts_at = ?, ends_at = ? WHERE tenant_id = ? AND id = ?`,
			formatTime(item.StartsAt.Add(delta)), formatTime(item.EndsAt.Add(delta)), tenantID, item.ID)
		if err != nil {
			return 0, fmt.Errorf("shift timeline item %s: %w", item.ID, err)
		}
	}
	return len(items), nil
}
