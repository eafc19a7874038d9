package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Vendor struct {
	ID        string
	TenantID  string
	ClientID  *string
	Name      string
	Category  string
	Email     string
	Phone     string
	Cost      float64
	Booked    bool
	CreatedAt time.Time
}

const vendorColumns = `id, tenant_id, client_id, name, category, email, phone, cost, booked, created_at`

func scanVendor(row interface{ Scan(...any) error }) (*Vendor, error) {
	var v Vendor
	var clientID sql.NullString
	var createdAt string
	err := row.Scan(&v.ID, &v.TenantID, &clientID, &v.Name, &v.Category,
		&v.Email, &v.Phone, &v.Cost, &v.Booked, &createdAt)
	if err != nil {
		return nil, err
	}
	if clientID.Valid {
		v.ClientID = &clientID.String
	}
	v.CreatedAt = parseTime(createdAt)
	return &v, nil
}

func InsertVendor(ctx context.Context, q Querier, v *Vendor) error {
	var clientID any
	if v.ClientID != nil {
		clientID = *v.ClientID
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO vendors (id, tenant_id, client_id, name, category, email, phone, cost, booked, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.TenantID, clientID, v.Name, v.Category, v.Email, v.Phone, v.Cost, v.Booked, formatTime(v.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert vendor: %w", err)
	}
	return nil
}

func GetVendor(ctx context.Context, q Querier, tenantID, id string) (*Vendor, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+vendorColumns+` FROM vendors WHERE tenant_id = ? AND id = ?`, tenantID, id)
	v, err := scanVendor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vendor: %w", err)
	}
	return v, nil
}

// VendorsByName resolves a free-text vendor reference. Case-insensitive
// substring match on the vendor name.
func VendorsByName(ctx context.Context, q Querier, tenantID, name string) ([]Vendor, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+vendorColumns+` FROM vendors WHERE tenant_id = ? AND name LIKE ? COLLATE NOCASE ORDER BY created_at`,
		tenantID, "%"+name+"%")
	if err != nil {
		return nil, fmt.Errorf("vendors by name: %w", err)
	}
	defer rows.Close()
	return collectVendors(rows)
}

func ListVendors(ctx context.Context, q Querier, tenantID string) ([]Vendor, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+vendorColumns+` FROM vendors WHERE tenant_id = ? ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	defer rows.Close()
	return collectVendors(rows)
}

func collectVendors(rows *sql.Rows) ([]Vendor, error) {
	var out []Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vendor: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// MarkVendorBooked flips the booked flag and links the vendor to a client.
// Returns false when the vendor does not exist.
func MarkVendorBooked(ctx context.Context, q Querier, tenantID, id, clientID string) (bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE vendors SET booked = 1, client_id = ? WHERE tenant_id = ? AND id = ?`,
		clientID, tenantID, id)
	if err != nil {
		return false, fmt.Errorf("mark vendor booked: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
