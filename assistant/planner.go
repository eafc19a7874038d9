// Package assistant is the HTTP surface of the pipeline: it relays the
// upstream planner model's event stream to clients, turns proposed tool
// calls into previews and pending confirmations, and exposes the
// confirm/cancel and sync endpoints.
package assistant

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

var errStreamDone = errors.New("planner stream done")

// DefaultInstructions is the system prompt used when the caller supplies
// none.
const DefaultInstructions = "You are a wedding planning assistant. Use the available tools to answer questions and make changes on the planner's behalf."

type PlannerConfig struct {
	Model        string
	UpstreamURL  string
	Token        string
	HTTPClient   *http.Client
	Instructions string
	Temperature  *float32
}

// PlannerModel is an eino ToolCallingChatModel over the upstream planner
// SSE API. Content deltas flow through the stream reader; tool-call events
// are surfaced through the registered handler callback.
type PlannerModel struct {
	config          PlannerConfig
	tools           []*schema.ToolInfo
	definitions     []ToolDefinition
	toolCallHandler func(*ToolCall)
}

func NewPlannerModel(config PlannerConfig) (*PlannerModel, error) {
	if strings.TrimSpace(config.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}
	if strings.TrimSpace(config.UpstreamURL) == "" {
		return nil, fmt.Errorf("upstream url is required")
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	return &PlannerModel{config: config}, nil
}

func (m *PlannerModel) Generate(ctx context.Context, input []*schema.Message, _ ...einoModel.Option) (*schema.Message, error) {
	content, err := m.doStreamRequest(ctx, input, func(string) error { return nil })
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(content, nil), nil
}

func (m *PlannerModel) Stream(ctx context.Context, input []*schema.Message, _ ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	sr, sw := schema.Pipe[*schema.Message](64)
	go func() {
		defer sw.Close()
		_, err := m.doStreamRequest(ctx, input, func(delta string) error {
			if delta == "" {
				return nil
			}
			sw.Send(&schema.Message{Role: schema.Assistant, Content: delta}, nil)
			return nil
		})
		if err != nil {
			sw.Send(nil, err)
		}
	}()
	return sr, nil
}

func (m *PlannerModel) WithTools(tools []*schema.ToolInfo) (einoModel.ToolCallingChatModel, error) {
	cloned := *m
	cloned.tools = tools
	return &cloned, nil
}

// WithToolDefinitions sets the registry-derived tool declarations sent on
// every request.
func (m *PlannerModel) WithToolDefinitions(defs []ToolDefinition) *PlannerModel {
	cloned := *m
	cloned.definitions = defs
	return &cloned
}

func (m *PlannerModel) WithToolCallHandler(handler func(*ToolCall)) *PlannerModel {
	cloned := *m
	cloned.toolCallHandler = handler
	return &cloned
}

func (m *PlannerModel) doStreamRequest(ctx context.Context, input []*schema.Message, onDelta func(string) error) (string, error) {
	payload, err := m.buildRequestPayload(input)
	if err != nil {
		return "", err
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode planner request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.UpstreamURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to build planner request: %w", err)
	}
	if strings.TrimSpace(m.config.Token) != "" {
		req.Header.Set("Authorization", "Bearer "+m.config.Token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := m.config.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("planner request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return "", fmt.Errorf("planner request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return readPlannerSSE(ctx, resp.Body, onDelta, m.toolCallHandler)
}

type requestMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content,omitempty"`
	ToolCall  string `json:"toolCallId,omitempty"`
	ToolName  string `json:"toolName,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type requestPayload struct {
	Model        string           `json:"model"`
	Messages     []requestMessage `json:"messages"`
	Instructions string           `json:"instructions"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream"`
	Temperature  *float32         `json:"temperature,omitempty"`
}

func (m *PlannerModel) buildRequestPayload(input []*schema.Message) (*requestPayload, error) {
	instructions := strings.TrimSpace(m.config.Instructions)
	messages := make([]requestMessage, 0, len(input))

	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			if msg.Content == "" {
				continue
			}
			if instructions == "" {
				instructions = msg.Content
			} else {
				instructions = instructions + "\n\n" + msg.Content
			}
		case schema.Tool:
			if msg.ToolCallID == "" || msg.Content == "" {
				continue
			}
			messages = append(messages, requestMessage{
				Role:     "tool",
				ToolCall: strings.TrimSpace(msg.ToolCallID),
				Content:  msg.Content,
			})
		default:
			if msg.Content != "" {
				messages = append(messages, requestMessage{
					Role:    string(msg.Role),
					Content: msg.Content,
				})
			}
			for _, call := range msg.ToolCalls {
				callID := strings.TrimSpace(call.ID)
				if callID == "" {
					continue
				}
				messages = append(messages, requestMessage{
					Role:      "assistant",
					ToolCall:  callID,
					ToolName:  strings.TrimSpace(call.Function.Name),
					Arguments: call.Function.Arguments,
				})
			}
		}
	}

	if len(messages) == 0 {
		return nil, fmt.Errorf("no valid messages to send")
	}
	if instructions == "" {
		instructions = DefaultInstructions
	}

	return &requestPayload{
		Model:        m.config.Model,
		Messages:     messages,
		Instructions: instructions,
		Tools:        m.definitions,
		Stream:       true,
		Temperature:  m.config.Temperature,
	}, nil
}

// readPlannerSSE consumes the upstream line-delimited event stream. Events
// are JSON objects with a type of content, tool_call, done or error; a
// literal [DONE] line also ends the stream.
func readPlannerSSE(ctx context.Context, body io.Reader, onDelta func(string) error, onToolCall func(*ToolCall)) (string, error) {
	reader := bufio.NewReader(body)
	var dataLines []string
	var fullContent strings.Builder

	handle := func(payload string) error {
		return handlePlannerEvent(payload, &fullContent, onDelta, onToolCall)
	}

	for {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(dataLines) > 0 {
					if err := handle(strings.Join(dataLines, "\n")); err != nil {
						if errors.Is(err, errStreamDone) {
							return fullContent.String(), nil
						}
						return "", err
					}
				}
				return fullContent.String(), nil
			}
			return "", err
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(dataLines) == 0 {
				continue
			}
			if err := handle(strings.Join(dataLines, "\n")); err != nil {
				if errors.Is(err, errStreamDone) {
					return fullContent.String(), nil
				}
				return "", err
			}
			dataLines = dataLines[:0]
			continue
		}

		if strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return fullContent.String(), nil
			}
			if data != "" {
				dataLines = append(dataLines, data)
			}
		}
	}
}

func handlePlannerEvent(payload string, fullContent *strings.Builder, onDelta func(string) error, onToolCall func(*ToolCall)) error {
	var event plannerEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		// Malformed frames are skipped; the stream itself stays usable.
		return nil
	}

	switch event.Type {
	case "content":
		delta := event.Delta
		if delta == "" {
			delta = event.Content
		}
		if delta == "" {
			return nil
		}
		fullContent.WriteString(delta)
		if onDelta != nil {
			return onDelta(delta)
		}
		return nil
	case "tool_call":
		call := event.toolCall()
		if call != nil && onToolCall != nil {
			onToolCall(call)
		}
		return nil
	case "done":
		return errStreamDone
	case "error":
		message := strings.TrimSpace(event.Message)
		if message == "" {
			message = "unknown error"
		}
		return fmt.Errorf("planner stream error: %s", message)
	default:
		return nil
	}
}

type plannerEvent struct {
	Type      string          `json:"type"`
	Delta     string          `json:"delta,omitempty"`
	Content   string          `json:"content,omitempty"`
	Message   string          `json:"message,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Status    string          `json:"status,omitempty"`
}

func (e *plannerEvent) toolCall() *ToolCall {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return nil
	}
	args := strings.TrimSpace(string(e.Arguments))
	// Arguments arrive either as a JSON-encoded string or an inline object.
	if strings.HasPrefix(args, `"`) {
		var decoded string
		if err := json.Unmarshal(e.Arguments, &decoded); err == nil {
			args = decoded
		}
	}
	if args == "" {
		args = "{}"
	}
	return &ToolCall{
		ID:        strings.TrimSpace(e.ID),
		Name:      name,
		Arguments: args,
		Status:    strings.ToLower(strings.TrimSpace(e.Status)),
	}
}
