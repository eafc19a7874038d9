package broadcast

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vowsuite/concierge"
)

// Log is the durable, append-only record of published sync actions,
// replayed by clients that were disconnected when an action was broadcast.
type Log struct {
	db *sql.DB
}

func NewLog(db *sql.DB) *Log {
	return &Log{db: db}
}

// Append persists one action. Actions are never mutated after insert.
func (l *Log) Append(ctx context.Context, action concierge.SyncAction) error {
	data, err := json.Marshal(action.Data)
	if err != nil {
		return fmt.Errorf("encode sync action data: %w", err)
	}
	paths, err := json.Marshal(action.QueryPaths)
	if err != nil {
		return fmt.Errorf("encode sync action query paths: %w", err)
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO sync_actions (id, type, module, entity_id, data, tenant_id, scope_id, user_id, timestamp, query_paths, tool_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		action.ID, string(action.Type), action.Module, action.EntityID, string(data),
		action.TenantID, action.ScopeID, action.UserID, action.Timestamp.UnixNano(),
		string(paths), action.ToolName)
	if err != nil {
		return fmt.Errorf("append sync action %s: %w", action.ID, err)
	}
	return nil
}

// Since returns the tenant's actions strictly after the given time, oldest
// first. Reconnecting clients call this before resubscribing to the hub.
func (l *Log) Since(ctx context.Context, tenantID string, after time.Time) ([]concierge.SyncAction, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, type, module, entity_id, data, tenant_id, scope_id, user_id, timestamp, query_paths, tool_name
		 FROM sync_actions WHERE tenant_id = ? AND timestamp > ? ORDER BY timestamp`,
		tenantID, after.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("replay sync actions: %w", err)
	}
	defer rows.Close()

	var out []concierge.SyncAction
	for rows.Next() {
		var action concierge.SyncAction
		var actionType, data, paths string
		var ts int64
		if err := rows.Scan(&action.ID, &actionType, &action.Module, &action.EntityID, &data,
			&action.TenantID, &action.ScopeID, &action.UserID, &ts, &paths, &action.ToolName); err != nil {
			return nil, fmt.Errorf("scan sync action: %w", err)
		}
		action.Type = concierge.ActionType(actionType)
		action.Timestamp = time.Unix(0, ts)
		if err := json.Unmarshal([]byte(data), &action.Data); err != nil {
			return nil, fmt.Errorf("decode sync action data: %w", err)
		}
		if err := json.Unmarshal([]byte(paths), &action.QueryPaths); err != nil {
			return nil, fmt.Errorf("decode sync action query paths: %w", err)
		}
		out = append(out, action)
	}
	return out, rows.Err()
}
