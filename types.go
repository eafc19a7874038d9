package concierge

import (
	"strings"
	"time"
)

// ToolCall is a named, argument-bearing request produced by the upstream
// planner model. Immutable once issued.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// CallerContext is the pre-validated identity and tenant context attached
// to every call. Authentication itself happens upstream of this module.
type CallerContext struct {
	UserID   string `json:"userId"`
	TenantID string `json:"tenantId"`
	// ScopeID narrows the tenant to a single wedding/event when set.
	ScopeID string `json:"scopeId,omitempty"`
}

// Valid reports whether the context carries the minimum identity the
// dispatcher requires.
func (c CallerContext) Valid() bool {
	return strings.TrimSpace(c.UserID) != "" && strings.TrimSpace(c.TenantID) != ""
}

// CascadeResult describes one secondary write triggered by a primary write.
type CascadeResult struct {
	Action     string `json:"action"`
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
}

// ToolExecutionResult is the transient output of a dispatched tool call.
type ToolExecutionResult struct {
	Success        bool            `json:"success"`
	ToolName       string          `json:"toolName"`
	Data           any             `json:"data,omitempty"`
	Message        string          `json:"message,omitempty"`
	CascadeResults []CascadeResult `json:"cascadeResults,omitempty"`
	Err            *Error          `json:"-"`
}

// ActionType is the kind of change a SyncAction describes.
type ActionType string

const (
	ActionInsert ActionType = "insert"
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
)

// SyncAction tells connected clients which cached query results are stale
// after a committed mutation. Append-only; never mutated after creation.
type SyncAction struct {
	ID         string     `json:"id"`
	Type       ActionType `json:"type"`
	Module     string     `json:"module"`
	EntityID   string     `json:"entityId"`
	Data       any        `json:"data,omitempty"`
	TenantID   string     `json:"tenantId"`
	ScopeID    string     `json:"scopeId,omitempty"`
	UserID     string     `json:"userId"`
	Timestamp  time.Time  `json:"timestamp"`
	QueryPaths []string   `json:"queryPaths"`
	ToolName   string     `json:"toolName"`
}

// PreviewField is one argument rendered for human review.
type PreviewField struct {
	Name         string `json:"name"`
	Value        any    `json:"value"`
	DisplayValue string `json:"displayValue"`
}

// ToolPreview is the human-readable rendering of what a tool call will do.
// Built fresh per call; persisted only as part of a PendingToolCall.
type ToolPreview struct {
	ToolName             string         `json:"toolName"`
	ActionLabel          string         `json:"actionLabel"`
	Description          string         `json:"description"`
	Fields               []PreviewField `json:"fields"`
	CascadeEffects       []string       `json:"cascadeEffects,omitempty"`
	Warnings             []string       `json:"warnings,omitempty"`
	RequiresConfirmation bool           `json:"requiresConfirmation"`
}

// PendingToolCall is a mutation awaiting explicit user confirmation.
// Lifecycle: created, then exactly one of confirmed, cancelled or expired.
type PendingToolCall struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	TenantID  string         `json:"tenantId"`
	ToolName  string         `json:"toolName"`
	Arguments map[string]any `json:"arguments"`
	Preview   ToolPreview    `json:"preview"`
	CreatedAt time.Time      `json:"createdAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

// Expired reports whether the call's confirmation window has elapsed.
func (p *PendingToolCall) Expired(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}
