package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied idempotently at startup. Every entity table carries
// tenant_id; lookups are always tenant-scoped.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS clients (
		id            TEXT PRIMARY KEY,
		tenant_id     TEXT NOT NULL,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL DEFAULT '',
		phone         TEXT NOT NULL DEFAULT '',
		wedding_date  TEXT,
		total_budget  REAL NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_clients_tenant ON clients(tenant_id)`,

	`CREATE TABLE IF NOT EXISTS events (
		id         TEXT PRIMARY KEY,
		tenant_id  TEXT NOT NULL,
		client_id  TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		name       TEXT NOT NULL,
		starts_at  TEXT,
		venue      TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_client ON events(tenant_id, client_id)`,

	`CREATE TABLE IF NOT EXISTS guests (
		id           TEXT PRIMARY KEY,
		tenant_id    TEXT NOT NULL,
		client_id    TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		first_name   TEXT NOT NULL,
		last_name    TEXT NOT NULL DEFAULT '',
		email        TEXT NOT NULL DEFAULT '',
		phone        TEXT NOT NULL DEFAULT '',
		rsvp_status  TEXT NOT NULL DEFAULT 'pending',
		table_number INTEGER,
		plus_ones    INTEGER NOT NULL DEFAULT 0,
		created_at   TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_guests_client ON guests(tenant_id, client_id)`,

	`CREATE TABLE IF NOT EXISTS budget_items (
		id          TEXT PRIMARY KEY,
		tenant_id   TEXT NOT NULL,
		client_id   TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		category    TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		amount      REAL NOT NULL DEFAULT 0,
		paid        INTEGER NOT NULL DEFAULT 0,
		vendor_id   TEXT,
		created_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_budget_client ON budget_items(tenant_id, client_id)`,

	`CREATE TABLE IF NOT EXISTS timeline_items (
		id         TEXT PRIMARY KEY,
		tenant_id  TEXT NOT NULL,
		client_id  TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		title      TEXT NOT NULL,
		starts_at  TEXT NOT NULL,
		ends_at    TEXT NOT NULL,
		location   TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_timeline_client ON timeline_items(tenant_id, client_id)`,

	`CREATE TABLE IF NOT EXISTS vendors (
		id         TEXT PRIMARY KEY,
		tenant_id  TEXT NOT NULL,
		client_id  TEXT,
		name       TEXT NOT NULL,
		category   TEXT NOT NULL DEFAULT '',
		email      TEXT NOT NULL DEFAULT '',
		phone      TEXT NOT NULL DEFAULT '',
		cost       REAL NOT NULL DEFAULT 0,
		booked     INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vendors_tenant ON vendors(tenant_id)`,

	`CREATE TABLE IF NOT EXISTS pending_calls (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		tenant_id  TEXT NOT NULL,
		tool_name  TEXT NOT NULL,
		arguments  TEXT NOT NULL,
		preview    TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_user ON pending_calls(user_id, expires_at)`,

	`CREATE TABLE IF NOT EXISTS sync_actions (
		id          TEXT PRIMARY KEY,
		type        TEXT NOT NULL,
		module      TEXT NOT NULL,
		entity_id   TEXT NOT NULL DEFAULT '',
		data        TEXT NOT NULL DEFAULT '{}',
		tenant_id   TEXT NOT NULL,
		scope_id    TEXT NOT NULL DEFAULT '',
		user_id     TEXT NOT NULL,
		timestamp   INTEGER NOT NULL,
		query_paths TEXT NOT NULL DEFAULT '[]',
		tool_name   TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_tenant_ts ON sync_actions(tenant_id, timestamp)`,
}

// Migrate creates the schema. Safe to call on every startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
