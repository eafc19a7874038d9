package assistant

import (
	"github.com/vowsuite/concierge"
)

// Frame types emitted on the assistant SSE stream.
const (
	FrameContent  = "content"
	FrameToolCall = "tool_call"
	FrameDone     = "done"
	FrameError    = "error"
)

// StreamFrame is one line-delimited event sent to the client. Exactly one
// of the optional payloads is set depending on Type.
type StreamFrame struct {
	Type     string         `json:"type"`
	Content  string         `json:"content,omitempty"`
	ToolCall *ToolCallFrame `json:"toolCall,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// ToolCallFrame describes a proposed tool call to the client: either it
// was executed inline (queries, exempt mutations) and carries the result,
// or it needs confirmation and carries the pending id plus preview.
type ToolCallFrame struct {
	ID                   string                         `json:"id,omitempty"`
	Name                 string                         `json:"name"`
	RequiresConfirmation bool                           `json:"requiresConfirmation"`
	PendingCallID        string                         `json:"pendingCallId,omitempty"`
	Preview              *concierge.ToolPreview         `json:"preview,omitempty"`
	Result               *concierge.ToolExecutionResult `json:"result,omitempty"`
	Error                *errorBody                     `json:"error,omitempty"`
}

// Reply types for the non-streaming message endpoint.
const (
	ReplyContent              = "content"
	ReplyConfirmationRequired = "confirmation_required"
	ReplyError                = "error"
)

// MessageReply is the single JSON response of the fallback RPC.
type MessageReply struct {
	Type          string                         `json:"type"`
	Content       string                         `json:"content,omitempty"`
	PendingCallID string                         `json:"pendingCallId,omitempty"`
	Preview       *concierge.ToolPreview         `json:"preview,omitempty"`
	ToolResult    *concierge.ToolExecutionResult `json:"toolResult,omitempty"`
}

// IncomingMessage is one entry of the rolled-up history a client sends.
type IncomingMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages []IncomingMessage `json:"messages"`
}

type confirmRequest struct {
	PendingCallID string `json:"pendingCallId"`
}
