package assistant

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/vowsuite/concierge"
	"github.com/vowsuite/concierge/broadcast"
	"github.com/vowsuite/concierge/pending"
	"github.com/vowsuite/concierge/store"
	"github.com/vowsuite/concierge/tools"
)

// scriptedPlanner plays back a fixed sequence of content deltas and tool
// calls instead of reaching upstream.
type scriptedPlanner struct {
	deltas     []string
	toolCalls  []*ToolCall
	err        error
	onToolCall func(*ToolCall)
}

func (p *scriptedPlanner) Generate(ctx context.Context, input []*schema.Message, _ ...einoModel.Option) (*schema.Message, error) {
	if p.err != nil {
		return nil, p.err
	}
	for _, call := range p.toolCalls {
		if p.onToolCall != nil {
			p.onToolCall(call)
		}
	}
	return schema.AssistantMessage(strings.Join(p.deltas, ""), nil), nil
}

func (p *scriptedPlanner) Stream(ctx context.Context, input []*schema.Message, _ ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	sr, sw := schema.Pipe[*schema.Message](16)
	go func() {
		defer sw.Close()
		for _, delta := range p.deltas {
			sw.Send(&schema.Message{Role: schema.Assistant, Content: delta}, nil)
		}
		for _, call := range p.toolCalls {
			if p.onToolCall != nil {
				p.onToolCall(call)
			}
		}
		if p.err != nil {
			sw.Send(nil, p.err)
		}
	}()
	return sr, nil
}

type testServer struct {
	router     *gin.Engine
	dispatcher *tools.Dispatcher
	bcaster    *broadcast.Broadcaster
	clientID   string
}

func newTestServer(t *testing.T, planner *scriptedPlanner) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.Migrate(context.Background(), db))

	hub := broadcast.NewHub(nil)
	log := broadcast.NewLog(db)
	bcaster := broadcast.NewBroadcaster(hub, log, nil)

	dispatcher, err := tools.NewDispatcher(tools.Config{
		DB:          db,
		Pending:     pending.NewStore(db),
		Broadcaster: bcaster,
		TxOptions: store.TxOptions{
			MaxRetries: 3,
			RetryDelay: time.Millisecond,
			Sleep:      func(time.Duration) {},
		},
	})
	require.NoError(t, err)

	client := &store.Client{
		ID:          "client-1",
		TenantID:    "tenant-1",
		Name:        "Ava & Sam",
		TotalBudget: 40000,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, store.InsertClient(context.Background(), db, client))

	h, err := NewHandler(Config{
		Dispatcher: dispatcher,
		Hub:        hub,
		Log:        log,
		NewPlanner: func(ctx context.Context, onToolCall func(*ToolCall)) (chatModel, error) {
			planner.onToolCall = onToolCall
			return planner, nil
		},
	})
	require.NoError(t, err)

	router := gin.New()
	require.NoError(t, RegisterGinRoutes(router, h))
	return &testServer{router: router, dispatcher: dispatcher, bcaster: bcaster, clientID: client.ID}
}

func newRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", "user-1")
	req.Header.Set("X-Tenant-Id", "tenant-1")
	return req
}

func readFrames(t *testing.T, body *bytes.Buffer) []StreamFrame {
	t.Helper()
	var frames []StreamFrame
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}
		var frame StreamFrame
		require.NoError(t, json.Unmarshal([]byte(data), &frame))
		frames = append(frames, frame)
	}
	return frames
}

func TestStreamMissingIdentity(t *testing.T) {
	ts := newTestServer(t, &scriptedPlanner{})

	req := httptest.NewRequest(http.MethodPost, "/v1/assistant/stream", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), string(concierge.CodeUnauthenticated))
}

func TestStreamContentAndConfirmation(t *testing.T) {
	ts := newTestServer(t, &scriptedPlanner{
		deltas: []string{"Adding ", "the guest."},
		toolCalls: []*ToolCall{{
			ID:        "call_1",
			Name:      "add_guest",
			Arguments: `{"clientId":"client-1","firstName":"Ana"}`,
		}},
	})

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, newRequest(t, http.MethodPost, "/v1/assistant/stream", chatRequest{
		Messages: []IncomingMessage{{Role: "user", Content: "add Ana to the guest list"}},
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "data: [DONE]")

	frames := readFrames(t, rec.Body)
	require.GreaterOrEqual(t, len(frames), 3)

	var content strings.Builder
	var toolFrame *ToolCallFrame
	for _, frame := range frames {
		switch frame.Type {
		case FrameContent:
			content.WriteString(frame.Content)
		case FrameToolCall:
			toolFrame = frame.ToolCall
		}
	}
	require.Equal(t, "Adding the guest.", content.String())
	require.Equal(t, FrameDone, frames[len(frames)-1].Type)

	require.NotNil(t, toolFrame)
	require.True(t, toolFrame.RequiresConfirmation)
	require.NotEmpty(t, toolFrame.PendingCallID)
	require.NotNil(t, toolFrame.Preview)
	require.Equal(t, "Add guest Ana to the guest list", toolFrame.Preview.Description)
}

func TestStreamQueryExecutesInline(t *testing.T) {
	ts := newTestServer(t, &scriptedPlanner{
		toolCalls: []*ToolCall{{
			ID:        "call_1",
			Name:      "list_guests",
			Arguments: `{"clientId":"client-1"}`,
		}},
	})

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, newRequest(t, http.MethodPost, "/v1/assistant/stream", chatRequest{
		Messages: []IncomingMessage{{Role: "user", Content: "who is coming?"}},
	}))

	frames := readFrames(t, rec.Body)
	var toolFrame *ToolCallFrame
	for _, frame := range frames {
		if frame.Type == FrameToolCall {
			toolFrame = frame.ToolCall
		}
	}
	require.NotNil(t, toolFrame)
	require.False(t, toolFrame.RequiresConfirmation)
	require.Empty(t, toolFrame.PendingCallID)
	require.NotNil(t, toolFrame.Result)
	require.True(t, toolFrame.Result.Success)
}

func TestStreamUpstreamError(t *testing.T) {
	ts := newTestServer(t, &scriptedPlanner{
		deltas: []string{"partial"},
		err:    fmt.Errorf("upstream reset"),
	})

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, newRequest(t, http.MethodPost, "/v1/assistant/stream", chatRequest{
		Messages: []IncomingMessage{{Role: "user", Content: "hello"}},
	}))

	frames := readFrames(t, rec.Body)
	last := frames[len(frames)-1]
	require.Equal(t, FrameError, last.Type)
	require.Contains(t, last.Message, "upstream reset")
}

func TestMessageConfirmationFlow(t *testing.T) {
	ts := newTestServer(t, &scriptedPlanner{
		deltas: []string{"I need your confirmation."},
		toolCalls: []*ToolCall{{
			ID:        "call_1",
			Name:      "add_guest",
			Arguments: `{"clientId":"client-1","firstName":"Ana"}`,
		}},
	})

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, newRequest(t, http.MethodPost, "/v1/assistant/message", chatRequest{
		Messages: []IncomingMessage{{Role: "user", Content: "add Ana"}},
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	var reply MessageReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	require.Equal(t, ReplyConfirmationRequired, reply.Type)
	require.NotEmpty(t, reply.PendingCallID)
	require.NotNil(t, reply.Preview)

	// Confirm executes the parked call.
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, newRequest(t, http.MethodPost, "/v1/assistant/confirm", confirmRequest{
		PendingCallID: reply.PendingCallID,
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	var result concierge.ToolExecutionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(t, result.Success)

	// A second confirm finds nothing.
	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, newRequest(t, http.MethodPost, "/v1/assistant/confirm", confirmRequest{
		PendingCallID: reply.PendingCallID,
	}))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessagePlannerFailure(t *testing.T) {
	ts := newTestServer(t, &scriptedPlanner{err: fmt.Errorf("upstream down")})

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, newRequest(t, http.MethodPost, "/v1/assistant/message", chatRequest{
		Messages: []IncomingMessage{{Role: "user", Content: "hello"}},
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	var reply MessageReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	require.Equal(t, ReplyError, reply.Type)
}

func TestCancelThenConfirm(t *testing.T) {
	ts := newTestServer(t, &scriptedPlanner{
		toolCalls: []*ToolCall{{
			ID:        "call_1",
			Name:      "add_guest",
			Arguments: `{"clientId":"client-1","firstName":"Ana"}`,
		}},
	})

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, newRequest(t, http.MethodPost, "/v1/assistant/message", chatRequest{
		Messages: []IncomingMessage{{Role: "user", Content: "add Ana"}},
	}))
	var reply MessageReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))

	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, newRequest(t, http.MethodPost, "/v1/assistant/cancel", confirmRequest{
		PendingCallID: reply.PendingCallID,
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, newRequest(t, http.MethodPost, "/v1/assistant/confirm", confirmRequest{
		PendingCallID: reply.PendingCallID,
	}))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPendingEndpoint(t *testing.T) {
	ts := newTestServer(t, &scriptedPlanner{
		toolCalls: []*ToolCall{{
			ID:        "call_1",
			Name:      "add_guest",
			Arguments: `{"clientId":"client-1","firstName":"Ana"}`,
		}},
	})

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, newRequest(t, http.MethodPost, "/v1/assistant/message", chatRequest{
		Messages: []IncomingMessage{{Role: "user", Content: "add Ana"}},
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, newRequest(t, http.MethodGet, "/v1/assistant/pending", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Pending []*concierge.PendingToolCall `json:"pending"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Pending, 1)
	require.Equal(t, "add_guest", body.Pending[0].ToolName)
}

func TestSyncSinceReplay(t *testing.T) {
	ts := newTestServer(t, &scriptedPlanner{})
	before := time.Now().Add(-time.Minute)

	caller := concierge.CallerContext{UserID: "user-1", TenantID: "tenant-1"}
	_, err := ts.dispatcher.ExecuteWithSync(context.Background(), tools.NameAddGuest, map[string]any{
		"clientId":  ts.clientID,
		"firstName": "Ana",
	}, caller)
	require.NoError(t, err)
	ts.bcaster.Wait()

	rec := httptest.NewRecorder()
	path := "/v1/sync/since?after=" + before.UTC().Format(time.RFC3339)
	ts.router.ServeHTTP(rec, newRequest(t, http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Actions []concierge.SyncAction `json:"actions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Actions, 1)
	require.Equal(t, "add_guest", body.Actions[0].ToolName)
}

func TestSyncSinceBadTimestamp(t *testing.T) {
	ts := newTestServer(t, &scriptedPlanner{})

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, newRequest(t, http.MethodGet, "/v1/sync/since?after=yesterday", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
