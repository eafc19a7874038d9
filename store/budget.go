package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type BudgetItem struct {
	ID          string
	TenantID    string
	ClientID    string
	Category    string
	Description string
	Amount      float64
	Paid        bool
	VendorID    *string
	CreatedAt   time.Time
}

const budgetColumns = `id, tenant_id, client_id, category, description, amount, paid, vendor_id, created_at`

func scanBudgetItem(row interface{ Scan(...any) error }) (*BudgetItem, error) {
	var b BudgetItem
	var vendorID sql.NullString
	var createdAt string
	err := row.Scan(&b.ID, &b.TenantID, &b.ClientID, &b.Category, &b.Description,
		&b.Amount, &b.Paid, &vendorID, &createdAt)
	if err != nil {
		return nil, err
	}
	if vendorID.Valid {
		b.VendorID = &vendorID.String
	}
	b.CreatedAt = parseTime(createdAt)
	return &b, nil
}

func InsertBudgetItem(ctx context.Context, q Querier, b *BudgetItem) error {
	var vendorID any
	if b.VendorID != nil {
		vendorID = *b.VendorID
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO budget_items (id, tenant_id, client_id, category, description, amount, paid, vendor_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.TenantID, b.ClientID, b.Category, b.Description, b.Amount, b.Paid, vendorID, formatTime(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert budget item: %w", err)
	}
	return nil
}

func GetBudgetItem(ctx context.Context, q Querier, tenantID, id string) (*BudgetItem, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budget_items WHERE tenant_id = ? AND id = ?`, tenantID, id)
	b, err := scanBudgetItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get budget item: %w", err)
	}
	return b, nil
}

// UpdateBudgetItem overwrites the mutable fields of an existing row.
// Handlers read-modify-write inside a wrapped transaction.
func UpdateBudgetItem(ctx context.Context, q Querier, b *BudgetItem) (bool, error) {
	var vendorID any
	if b.VendorID != nil {
		vendorID = *b.VendorID
	}
	res, err := q.ExecContext(ctx,
		`UPDATE budget_items SET category = ?, description = ?, amount = ?, paid = ?, vendor_id = ?
		 WHERE tenant_id = ? AND id = ?`,
		b.Category, b.Description, b.Amount, b.Paid, vendorID, b.TenantID, b.ID)
	if err != nil {
		return false, fmt.Errorf("update budget item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// BudgetItemsByDescription resolves a free-text reference to budget rows.
func BudgetItemsByDescription(ctx context.Context, q Querier, tenantID, clientID, text string) ([]BudgetItem, error) {
	pattern := "%" + text + "%"
	rows, err := q.QueryContext(ctx,
		`SELECT `+budgetColumns+` FROM budget_items
		 WHERE tenant_id = ? AND client_id = ?
		   AND (description LIKE ? COLLATE NOCASE OR category LIKE ? COLLATE NOCASE)
		 ORDER BY created_at`,
		tenantID, clientID, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("budget items by description: %w", err)
	}
	defer rows.Close()
	return collectBudgetItems(rows)
}

func ListBudgetItems(ctx context.Context, q Querier, tenantID, clientID string) ([]BudgetItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+budgetColumns+` FROM budget_items WHERE tenant_id = ? AND client_id = ? ORDER BY created_at`,
		tenantID, clientID)
	if err != nil {
		return nil, fmt.Errorf("list budget items: %w", err)
	}
	defer rows.Close()
	return collectBudgetItems(rows)
}

func collectBudgetItems(rows *sql.Rows) ([]BudgetItem, error) {
	var out []BudgetItem
	for rows.Next() {
		b, err := scanBudgetItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget item: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// BudgetTotals returns the projected spend (sum of all item amounts) and
// the paid portion for a client.
func BudgetTotals(ctx context.Context, q Querier, tenantID, clientID string) (spent, paid float64, err error) {
	row := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0), COALESCE(SUM(CASE WHEN paid THEN amount ELSE 0 END), 0)
		 FROM budget_items WHERE tenant_id = ? AND client_id = ?`,
		tenantID, clientID)
	if err := row.Scan(&spent, &paid); err != nil {
		return 0, 0, fmt.Errorf("budget totals: %w", err)
	}
	return spent, paid, nil
}
