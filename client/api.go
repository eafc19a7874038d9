// Package client is the consumer side of the assistant API: it feeds user
// text into the streaming endpoint, renders tokens as they arrive, retries
// transport failures on a fixed backoff schedule and degrades to the
// non-streaming endpoint when the stream keeps failing.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vowsuite/concierge"
	"github.com/vowsuite/concierge/assistant"
)

// API is the HTTP binding to one concierge server, carrying the caller's
// identity on every request.
type API struct {
	BaseURL    string
	HTTPClient *http.Client
	Caller     concierge.CallerContext
}

func NewAPI(baseURL string, caller concierge.CallerContext) (*API, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if !caller.Valid() {
		return nil, fmt.Errorf("caller identity is required")
	}
	return &API{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		Caller:     caller,
	}, nil
}

func (a *API) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", a.Caller.UserID)
	req.Header.Set("X-Tenant-Id", a.Caller.TenantID)
	if a.Caller.ScopeID != "" {
		req.Header.Set("X-Scope-Id", a.Caller.ScopeID)
	}
	return req, nil
}

// OpenStream starts a streaming assistant request. The caller owns the
// returned body and must close it.
func (a *API) OpenStream(ctx context.Context, messages []assistant.IncomingMessage) (io.ReadCloser, error) {
	req, err := a.newRequest(ctx, http.MethodPost, "/v1/assistant/stream", map[string]any{"messages": messages})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		resp.Body.Close()
		return nil, fmt.Errorf("stream request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp.Body, nil
}

// SendFallback issues the single non-streaming call used after streaming
// retries are exhausted.
func (a *API) SendFallback(ctx context.Context, messages []assistant.IncomingMessage) (*assistant.MessageReply, error) {
	var reply assistant.MessageReply
	if err := a.doJSON(ctx, http.MethodPost, "/v1/assistant/message", map[string]any{"messages": messages}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Confirm executes a pending call the user approved.
func (a *API) Confirm(ctx context.Context, pendingCallID string) (*concierge.ToolExecutionResult, error) {
	var result concierge.ToolExecutionResult
	if err := a.doJSON(ctx, http.MethodPost, "/v1/assistant/confirm", map[string]any{"pendingCallId": pendingCallID}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Cancel discards a pending call.
func (a *API) Cancel(ctx context.Context, pendingCallID string) error {
	return a.doJSON(ctx, http.MethodPost, "/v1/assistant/cancel", map[string]any{"pendingCallId": pendingCallID}, nil)
}

func (a *API) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := a.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
