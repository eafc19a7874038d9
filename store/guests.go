package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RSVP statuses a guest can hold.
const (
	RSVPPending  = "pending"
	RSVPAccepted = "accepted"
	RSVPDeclined = "declined"
)

type Guest struct {
	ID          string
	TenantID    string
	ClientID    string
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	RSVPStatus  string
	TableNumber *int
	PlusOnes    int
	CreatedAt   time.Time
}

// FullName joins first and last name for display and fuzzy matching.
func (g *Guest) FullName() string {
	if g.LastName == "" {
		return g.FirstName
	}
	return g.FirstName + " " + g.LastName
}

const guestColumns = `id, tenant_id, client_id, first_name, last_name, email, phone, rsvp_status, table_number, plus_ones, created_at`

func scanGuest(row interface{ Scan(...any) error }) (*Guest, error) {
	var g Guest
	var tableNumber sql.NullInt64
	var createdAt string
	err := row.Scan(&g.ID, &g.TenantID, &g.ClientID, &g.FirstName, &g.LastName,
		&g.Email, &g.Phone, &g.RSVPStatus, &tableNumber, &g.PlusOnes, &createdAt)
	if err != nil {
		return nil, err
	}
	if tableNumber.Valid {
		n := int(tableNumber.Int64)
		g.TableNumber = &n
	}
	g.CreatedAt = parseTime(createdAt)
	return &g, nil
}

func InsertGuest(ctx context.Context, q Querier, g *Guest) error {
	var tableNumber any
	if g.TableNumber != nil {
		tableNumber = *g.TableNumber
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO guests (id, tenant_id, client_id, first_name, last_name, email, phone, rsvp_status, table_number, plus_ones, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.TenantID, g.ClientID, g.FirstName, g.LastName, g.Email, g.Phone,
		g.RSVPStatus, tableNumber, g.PlusOnes, formatTime(g.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert guest: %w", err)
	}
	return nil
}

func GetGuest(ctx context.Context, q Querier, tenantID, id string) (*Guest, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+guestColumns+` FROM guests WHERE tenant_id = ? AND id = ?`, tenantID, id)
	g, err := scanGuest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get guest: %w", err)
	}
	return g, nil
}

// GuestsByName returns every guest of the client whose first, last or full
// name matches the free-text reference. Case-insensitive substring.
func GuestsByName(ctx context.Context, q Querier, tenantID, clientID, name string) ([]Guest, error) {
	pattern := "%" + name + "%"
	rows, err := q.QueryContext(ctx,
		`SELECT `+guestColumns+` FROM guests
		 WHERE tenant_id = ? AND client_id = ?
		   AND (first_name LIKE ? COLLATE NOCASE
		     OR last_name LIKE ? COLLATE NOCASE
		     OR (first_name || ' ' || last_name) LIKE ? COLLATE NOCASE)
		 ORDER BY created_at`,
		tenantID, clientID, pattern, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("guests by name: %w", err)
	}
	defer rows.Close()
	return collectGuests(rows)
}

func ListGuests(ctx context.Context, q Querier, tenantID, clientID string) ([]Guest, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+guestColumns+` FROM guests WHERE tenant_id = ? AND client_id = ? ORDER BY created_at`,
		tenantID, clientID)
	if err != nil {
		return nil, fmt.Errorf("list guests: %w", err)
	}
	defer rows.Close()
	return collectGuests(rows)
}

func collectGuests(rows *sql.Rows) ([]Guest, error) {
	var out []Guest
	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan guest: %w", err)
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// UpdateGuestRSVP sets the RSVP status; returns false when the guest does
// not exist.
func UpdateGuestRSVP(ctx context.Context, q Querier, tenantID, id, status string) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE guests SET rsvp_status = ? WHERE tenant_id = ? AND id = ?`, status, tenantID, id)
	if err != nil {
		return false, fmt.Errorf("update guest rsvp: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteGuest removes the guest; returns false when nothing was deleted.
func DeleteGuest(ctx context.Context, q Querier, tenantID, id string) (bool, error) {
	res, err := q.ExecContext(ctx,
		`DELETE FROM guests WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return false, fmt.Errorf("delete guest: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
