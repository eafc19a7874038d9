package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vowsuite/concierge"
	"github.com/vowsuite/concierge/assistant"
)

var testCaller = concierge.CallerContext{UserID: "user-1", TenantID: "tenant-1"}

func writeFrames(w http.ResponseWriter, frames ...assistant.StreamFrame) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, frame := range frames {
		data, _ := json.Marshal(frame)
		fmt.Fprintf(w, "data: %s\n\n", data)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func newTestSession(t *testing.T, handler http.Handler, opts ...SessionOption) (*Session, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	api, err := NewAPI(srv.URL, testCaller)
	require.NoError(t, err)

	opts = append([]SessionOption{WithSleep(func(time.Duration) {})}, opts...)
	session, err := NewSession(api, opts...)
	require.NoError(t, err)
	return session, srv
}

func TestSendMessageStreamsTokens(t *testing.T) {
	session, _ := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/assistant/stream", r.URL.Path)
		require.Equal(t, "user-1", r.Header.Get("X-User-Id"))
		writeFrames(w,
			assistant.StreamFrame{Type: assistant.FrameContent, Content: "12 guests "},
			assistant.StreamFrame{Type: assistant.FrameContent, Content: "have accepted."},
			assistant.StreamFrame{Type: assistant.FrameDone},
		)
	}))

	var tokens []string
	var states []State
	session.callbacks = Callbacks{
		OnToken:       func(_, token string) { tokens = append(tokens, token) },
		OnStateChange: func(state State) { states = append(states, state) },
	}

	require.NoError(t, session.SendMessage(context.Background(), "how many guests accepted?"))

	messages := session.Messages()
	require.Len(t, messages, 2)
	require.Equal(t, "user", messages[0].Role)
	require.Equal(t, "12 guests have accepted.", messages[1].Content)
	require.Equal(t, StatusSuccess, messages[1].Status)
	require.Equal(t, []string{"12 guests ", "have accepted."}, tokens)
	require.Equal(t, []State{StateConnecting, StateStreaming, StateIdle}, states)
	require.Equal(t, StateIdle, session.State())
}

func TestSendMessageSurfacesConfirmation(t *testing.T) {
	preview := concierge.ToolPreview{
		ToolName:             "add_guest",
		Description:          "Add guest Ana to the guest list",
		RequiresConfirmation: true,
	}
	session, _ := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFrames(w,
			assistant.StreamFrame{Type: assistant.FrameToolCall, ToolCall: &assistant.ToolCallFrame{
				Name:                 "add_guest",
				RequiresConfirmation: true,
				PendingCallID:        "pending-1",
				Preview:              &preview,
			}},
			assistant.StreamFrame{Type: assistant.FrameDone},
		)
	}))

	var events []ToolCallEvent
	session.callbacks = Callbacks{OnToolCall: func(e ToolCallEvent) { events = append(events, e) }}

	require.NoError(t, session.SendMessage(context.Background(), "add Ana"))

	require.Len(t, events, 1)
	require.True(t, events[0].RequiresConfirmation)
	require.Equal(t, "pending-1", events[0].PendingCallID)

	messages := session.Messages()
	require.NotNil(t, messages[1].PendingConfirmation)
	require.Equal(t, "pending-1", messages[1].PendingConfirmation.PendingCallID)
	require.Equal(t, StatusSuccess, messages[1].Status)
}

func TestStreamingFallbackHandoff(t *testing.T) {
	var streamAttempts, fallbackCalls atomic.Int32
	session, _ := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/assistant/stream":
			streamAttempts.Add(1)
			http.Error(w, "stream unavailable", http.StatusServiceUnavailable)
		case "/v1/assistant/message":
			fallbackCalls.Add(1)
			json.NewEncoder(w).Encode(assistant.MessageReply{
				Type:    assistant.ReplyContent,
				Content: "Here is the full answer.",
			})
		default:
			http.NotFound(w, r)
		}
	}))

	var delays []time.Duration
	session.sleep = func(d time.Duration) { delays = append(delays, d) }

	require.NoError(t, session.SendMessage(context.Background(), "hello"))

	require.Equal(t, int32(4), streamAttempts.Load())
	require.Equal(t, int32(1), fallbackCalls.Load())
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)

	messages := session.Messages()
	require.Equal(t, "Here is the full answer.", messages[1].Content)
	require.Equal(t, StatusSuccess, messages[1].Status)
	require.Equal(t, StateIdle, session.State())
}

func TestFallbackConfirmationRequired(t *testing.T) {
	preview := concierge.ToolPreview{ToolName: "add_guest", RequiresConfirmation: true}
	session, _ := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/assistant/stream":
			http.Error(w, "stream unavailable", http.StatusServiceUnavailable)
		case "/v1/assistant/message":
			json.NewEncoder(w).Encode(assistant.MessageReply{
				Type:          assistant.ReplyConfirmationRequired,
				Content:       "I need your confirmation.",
				PendingCallID: "pending-1",
				Preview:       &preview,
			})
		}
	}))

	var events []ToolCallEvent
	session.callbacks = Callbacks{OnToolCall: func(e ToolCallEvent) { events = append(events, e) }}

	require.NoError(t, session.SendMessage(context.Background(), "add Ana"))

	require.Len(t, events, 1)
	require.Equal(t, "pending-1", events[0].PendingCallID)

	messages := session.Messages()
	require.NotNil(t, messages[1].PendingConfirmation)
	require.Equal(t, StatusSuccess, messages[1].Status)
}

func TestBothPathsFailFinalizesError(t *testing.T) {
	session, _ := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "everything is down", http.StatusServiceUnavailable)
	}))

	err := session.SendMessage(context.Background(), "hello")
	require.Error(t, err)

	messages := session.Messages()
	require.Equal(t, StatusError, messages[1].Status)
	require.Equal(t, StateError, session.State())
}

func TestProtocolErrorDoesNotRetry(t *testing.T) {
	var streamAttempts atomic.Int32
	session, _ := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		streamAttempts.Add(1)
		writeFrames(w, assistant.StreamFrame{Type: assistant.FrameError, Message: "planner rejected the request"})
	}))

	err := session.SendMessage(context.Background(), "hello")
	require.Error(t, err)
	require.Equal(t, int32(1), streamAttempts.Load())

	messages := session.Messages()
	require.Equal(t, StatusError, messages[1].Status)
	require.Equal(t, StateError, session.State())
}

func TestPartialContentResetOnRetry(t *testing.T) {
	var attempts atomic.Int32
	session, _ := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			// Truncated stream: content but no done frame.
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "data: {\"type\":\"content\",\"content\":\"partial \"}\n\n")
			return
		}
		writeFrames(w,
			assistant.StreamFrame{Type: assistant.FrameContent, Content: "complete answer"},
			assistant.StreamFrame{Type: assistant.FrameDone},
		)
	}))

	require.NoError(t, session.SendMessage(context.Background(), "hello"))

	messages := session.Messages()
	require.Equal(t, "complete answer", messages[1].Content)
	require.Equal(t, StatusSuccess, messages[1].Status)
}

func TestSingleFlight(t *testing.T) {
	release := make(chan struct{})
	session, _ := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		writeFrames(w, assistant.StreamFrame{Type: assistant.FrameDone})
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = session.SendMessage(context.Background(), "first")
	}()

	require.Eventually(t, func() bool {
		return session.State() == StateConnecting
	}, time.Second, time.Millisecond)

	err := session.SendMessage(context.Background(), "second")
	require.ErrorIs(t, err, errSendInFlight)

	close(release)
	wg.Wait()
}

func TestCancelStreamIsNotAnError(t *testing.T) {
	started := make(chan struct{})
	session, _ := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"content\",\"content\":\"thinking... \"}\n\n")
		w.(http.Flusher).Flush()
		close(started)
		<-r.Context().Done()
	}))

	done := make(chan error, 1)
	go func() { done <- session.SendMessage(context.Background(), "hello") }()

	<-started
	session.CancelStream()

	require.NoError(t, <-done)

	messages := session.Messages()
	require.NotEqual(t, StatusError, messages[1].Status)
	require.Equal(t, StateIdle, session.State())
}

func TestConfirmRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/assistant/confirm", r.URL.Path)
		require.Equal(t, "tenant-1", r.Header.Get("X-Tenant-Id"))
		json.NewEncoder(w).Encode(concierge.ToolExecutionResult{Success: true, ToolName: "add_guest"})
	}))
	t.Cleanup(srv.Close)

	api, err := NewAPI(srv.URL, testCaller)
	require.NoError(t, err)

	result, err := api.Confirm(context.Background(), "pending-1")
	require.NoError(t, err)
	require.True(t, result.Success)
}
