package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vowsuite/concierge"
	"github.com/vowsuite/concierge/broadcast"
	"github.com/vowsuite/concierge/tools"
)

type chatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.Message, error)
	Stream(ctx context.Context, input []*schema.Message, opts ...einoModel.Option) (*schema.StreamReader[*schema.Message], error)
}

// PlannerFactory builds a per-request planner model with the tool-call
// callback wired in.
type PlannerFactory func(ctx context.Context, onToolCall func(*ToolCall)) (chatModel, error)

type Config struct {
	Dispatcher *tools.Dispatcher
	Hub        *broadcast.Hub
	Log        *broadcast.Log
	NewPlanner PlannerFactory
	Logger     *zap.SugaredLogger
	Now        func() time.Time
}

// Handler serves the assistant and sync endpoints.
type Handler struct {
	dispatcher *tools.Dispatcher
	hub        *broadcast.Hub
	log        *broadcast.Log
	newPlanner PlannerFactory
	logger     *zap.SugaredLogger
	now        func() time.Time
}

func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("Dispatcher is required")
	}
	if cfg.NewPlanner == nil {
		return nil, fmt.Errorf("NewPlanner is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Handler{
		dispatcher: cfg.Dispatcher,
		hub:        cfg.Hub,
		log:        cfg.Log,
		newPlanner: cfg.NewPlanner,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}, nil
}

// NewPlannerFactory wraps a configured PlannerModel with the registry's
// tool declarations for use as the Handler's planner source.
func NewPlannerFactory(cfg PlannerConfig) PlannerFactory {
	return func(ctx context.Context, onToolCall func(*ToolCall)) (chatModel, error) {
		m, err := NewPlannerModel(cfg)
		if err != nil {
			return nil, err
		}
		m = m.WithToolDefinitions(RegistryToolDefinitions())
		if onToolCall != nil {
			m = m.WithToolCallHandler(onToolCall)
		}
		return m, nil
	}
}

func (h *Handler) handleStream(c *gin.Context) {
	caller := callerFrom(c)

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c.Writer, concierge.BadRequest("invalid request body"))
		return
	}
	messages, err := convertMessages(req.Messages)
	if err != nil {
		writeError(c.Writer, err)
		return
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	toolCallChan := make(chan *ToolCall, 16)
	planner, err := h.newPlanner(c.Request.Context(), func(call *ToolCall) {
		if call == nil {
			return
		}
		select {
		case toolCallChan <- call:
		default:
			h.logger.Warnw("tool call channel full, dropping", "tool", call.Name)
		}
	})
	if err != nil {
		writeError(w, err)
		return
	}

	sr, err := planner.Stream(c.Request.Context(), messages)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Flush()

	writeFrame := func(frame StreamFrame) {
		data, err := json.Marshal(frame)
		if err != nil {
			h.logger.Errorw("failed to encode stream frame", "err", err)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		w.Flush()
	}

	seen := make(map[string]bool)
	flushToolCalls := func() {
		for {
			select {
			case call := <-toolCallChan:
				if call == nil || (call.ID != "" && seen[call.ID]) {
					continue
				}
				if call.ID != "" {
					seen[call.ID] = true
				}
				writeFrame(StreamFrame{
					Type:     FrameToolCall,
					ToolCall: h.proposeToolCall(c.Request.Context(), call, caller),
				})
			default:
				return
			}
		}
	}

	streamErr := error(nil)
	for {
		flushToolCalls()
		msg, err := sr.Recv()
		if err != nil {
			if !errorIsStreamEnd(err) {
				streamErr = err
			}
			break
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		writeFrame(StreamFrame{Type: FrameContent, Content: msg.Content})
	}
	flushToolCalls()

	if streamErr != nil {
		writeFrame(StreamFrame{Type: FrameError, Message: streamErr.Error()})
	} else {
		writeFrame(StreamFrame{Type: FrameDone})
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	w.Flush()
}

// proposeToolCall routes one upstream call through the dispatcher:
// queries and exempt mutations execute inline, everything else becomes a
// pending confirmation.
func (h *Handler) proposeToolCall(ctx context.Context, call *ToolCall, caller concierge.CallerContext) *ToolCallFrame {
	frame := &ToolCallFrame{ID: call.ID, Name: call.Name}

	args, err := decodeArguments(call.Arguments)
	if err != nil {
		frame.Error = errorBodyOf(concierge.AsError(err))
		return frame
	}

	prop, err := h.dispatcher.Propose(ctx, tools.Name(call.Name), args, caller)
	if err != nil {
		frame.Error = errorBodyOf(concierge.AsError(err))
		return frame
	}

	preview := prop.Preview
	frame.Preview = &preview
	frame.RequiresConfirmation = preview.RequiresConfirmation
	if prop.Pending != nil {
		frame.PendingCallID = prop.Pending.ID
	}
	frame.Result = prop.Result
	return frame
}

func (h *Handler) handleMessage(c *gin.Context) {
	caller := callerFrom(c)

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c.Writer, concierge.BadRequest("invalid request body"))
		return
	}
	messages, err := convertMessages(req.Messages)
	if err != nil {
		writeError(c.Writer, err)
		return
	}

	// Generate is synchronous, so the callback only fires on this
	// goroutine while it runs.
	var calls []*ToolCall
	planner, err := h.newPlanner(c.Request.Context(), func(call *ToolCall) {
		if call != nil {
			calls = append(calls, call)
		}
	})
	if err != nil {
		writeError(c.Writer, err)
		return
	}

	reply, err := planner.Generate(c.Request.Context(), messages)
	if err != nil {
		h.logger.Warnw("planner generate failed", "err", err)
		writeJSON(c.Writer, MessageReply{Type: ReplyError, Content: "The assistant is unavailable right now."})
		return
	}

	content := ""
	if reply != nil {
		content = reply.Content
	}

	if len(calls) == 0 {
		writeJSON(c.Writer, MessageReply{Type: ReplyContent, Content: content})
		return
	}

	frame := h.proposeToolCall(c.Request.Context(), calls[0], caller)
	switch {
	case frame.Error != nil:
		writeJSON(c.Writer, MessageReply{Type: ReplyError, Content: frame.Error.Message})
	case frame.RequiresConfirmation:
		writeJSON(c.Writer, MessageReply{
			Type:          ReplyConfirmationRequired,
			Content:       content,
			PendingCallID: frame.PendingCallID,
			Preview:       frame.Preview,
		})
	default:
		writeJSON(c.Writer, MessageReply{
			Type:       ReplyContent,
			Content:    content,
			ToolResult: frame.Result,
		})
	}
}

func (h *Handler) handleConfirm(c *gin.Context) {
	caller := callerFrom(c)

	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PendingCallID) == "" {
		writeError(c.Writer, concierge.BadRequest("pendingCallId is required"))
		return
	}

	result, err := h.dispatcher.Confirm(c.Request.Context(), req.PendingCallID, caller)
	if err != nil {
		writeError(c.Writer, err)
		return
	}
	writeJSON(c.Writer, result)
}

func (h *Handler) handleCancel(c *gin.Context) {
	caller := callerFrom(c)

	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PendingCallID) == "" {
		writeError(c.Writer, concierge.BadRequest("pendingCallId is required"))
		return
	}

	if err := h.dispatcher.Cancel(c.Request.Context(), req.PendingCallID, caller); err != nil {
		writeError(c.Writer, err)
		return
	}
	writeJSON(c.Writer, gin.H{"cancelled": true})
}

func (h *Handler) handlePending(c *gin.Context) {
	caller := callerFrom(c)
	calls, err := h.dispatcher.PendingForUser(c.Request.Context(), caller)
	if err != nil {
		writeError(c.Writer, err)
		return
	}
	writeJSON(c.Writer, gin.H{"pending": calls})
}

func (h *Handler) handleSyncStream(c *gin.Context) {
	if h.hub == nil {
		writeError(c.Writer, concierge.Internal(fmt.Errorf("sync hub not configured")))
		return
	}
	caller := callerFrom(c)

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Flush()

	ch, cancel := h.hub.Subscribe(caller.TenantID)
	defer cancel()

	for {
		select {
		case action, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(action)
			if err != nil {
				h.logger.Errorw("failed to encode sync action", "action", action.ID, "err", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			w.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (h *Handler) handleSyncSince(c *gin.Context) {
	if h.log == nil {
		writeError(c.Writer, concierge.Internal(fmt.Errorf("sync log not configured")))
		return
	}
	caller := callerFrom(c)

	after, err := time.Parse(time.RFC3339, c.Query("after"))
	if err != nil {
		writeError(c.Writer, concierge.BadRequest("after must be an RFC3339 timestamp"))
		return
	}

	actions, err := h.log.Since(c.Request.Context(), caller.TenantID, after)
	if err != nil {
		writeError(c.Writer, concierge.AsError(err))
		return
	}
	writeJSON(c.Writer, gin.H{"actions": actions})
}

func convertMessages(incoming []IncomingMessage) ([]*schema.Message, error) {
	if len(incoming) == 0 {
		return nil, concierge.BadRequest("messages is required")
	}
	result := make([]*schema.Message, 0, len(incoming))
	for _, msg := range incoming {
		role := strings.TrimSpace(msg.Role)
		switch role {
		case "system":
			result = append(result, schema.SystemMessage(msg.Content))
		case "user":
			result = append(result, schema.UserMessage(msg.Content))
		case "assistant":
			if msg.Content == "" {
				continue
			}
			result = append(result, schema.AssistantMessage(msg.Content, nil))
		case "":
			return nil, concierge.BadRequest("message role is required")
		default:
			return nil, concierge.BadRequest("unsupported role: %s", role)
		}
	}
	if len(result) == 0 {
		return nil, concierge.BadRequest("no valid messages to send")
	}
	return result, nil
}

func decodeArguments(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		return nil, concierge.BadRequest("tool call arguments are not a JSON object")
	}
	return args, nil
}

func errorIsStreamEnd(err error) bool {
	return errors.Is(err, io.EOF)
}
