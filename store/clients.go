package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Client is a wedding client account. TotalBudget is the agreed ceiling the
// budget-overrun warning compares projected spend against.
type Client struct {
	ID          string
	TenantID    string
	Name        string
	Email       string
	Phone       string
	WeddingDate *time.Time
	TotalBudget float64
	CreatedAt   time.Time
}

// Event is a scheduled occasion under a client (ceremony, reception, ...).
// A default event is seeded when the client is created.
type Event struct {
	ID        string
	TenantID  string
	ClientID  string
	Name      string
	StartsAt  *time.Time
	Venue     string
	CreatedAt time.Time
}

func InsertClient(ctx context.Context, q Querier, c *Client) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO clients (id, tenant_id, name, email, phone, wedding_date, total_budget, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TenantID, c.Name, c.Email, c.Phone,
		formatNullableTime(c.WeddingDate), c.TotalBudget, formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

const clientColumns = `id, tenant_id, name, email, phone, wedding_date, total_budget, created_at`

func scanClient(row interface{ Scan(...any) error }) (*Client, error) {
	var c Client
	var weddingDate sql.NullString
	var createdAt string
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Email, &c.Phone, &weddingDate, &c.TotalBudget, &createdAt)
	if err != nil {
		return nil, err
	}
	c.WeddingDate = parseNullableTime(weddingDate)
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

// GetClient returns nil when no client matches.
func GetClient(ctx context.Context, q Querier, tenantID, id string) (*Client, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE tenant_id = ? AND id = ?`, tenantID, id)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

// ClientsByName returns every client whose name matches, for free-text
// entity resolution. Matching is case-insensitive substring.
func ClientsByName(ctx context.Context, q Querier, tenantID, name string) ([]Client, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE tenant_id = ? AND name LIKE ? COLLATE NOCASE ORDER BY created_at`,
		tenantID, "%"+name+"%")
	if err != nil {
		return nil, fmt.Errorf("clients by name: %w", err)
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("clients by name: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func InsertEvent(ctx context.Context, q Querier, e *Event) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO events (id, tenant_id, client_id, name, starts_at, venue, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, e.ClientID, e.Name, formatNullableTime(e.StartsAt), e.Venue, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}
