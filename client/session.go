package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vowsuite/concierge"
	"github.com/vowsuite/concierge/assistant"
)

// State is the transport's current position in its lifecycle.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateStreaming    State = "streaming"
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
)

// RetryStrategy is the fixed retry schedule for failed streaming attempts.
type RetryStrategy struct {
	MaxRetries int
	Delays     []time.Duration
}

func DefaultRetryStrategy() RetryStrategy {
	return RetryStrategy{
		MaxRetries: 3,
		Delays:     []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
	}
}

// DelayFor returns the wait before retry number n (zero-based); schedules
// shorter than the retry budget repeat their last delay.
func (r RetryStrategy) DelayFor(n int) time.Duration {
	if len(r.Delays) == 0 {
		return 0
	}
	if n >= len(r.Delays) {
		return r.Delays[len(r.Delays)-1]
	}
	return r.Delays[n]
}

// defaultAttemptTimeout bounds one streaming attempt independent of the
// retry budget.
const defaultAttemptTimeout = 30 * time.Second

// MessageStatus tracks a conversation entry's lifecycle. Terminal values
// are success and error.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusStreaming MessageStatus = "streaming"
	StatusSuccess   MessageStatus = "success"
	StatusError     MessageStatus = "error"
)

// PendingConfirmation is the confirmation affordance attached to an
// assistant message when a proposed mutation awaits the user.
type PendingConfirmation struct {
	PendingCallID string
	Preview       concierge.ToolPreview
}

// Message is one conversation entry, mutated in place as tokens arrive.
type Message struct {
	ID                  string
	Role                string
	Content             string
	Timestamp           time.Time
	Status              MessageStatus
	ToolResult          *concierge.ToolExecutionResult
	PendingConfirmation *PendingConfirmation
}

// ToolCallEvent surfaces a proposed tool call to the embedding UI.
type ToolCallEvent struct {
	MessageID            string
	Name                 string
	RequiresConfirmation bool
	PendingCallID        string
	Preview              *concierge.ToolPreview
	Result               *concierge.ToolExecutionResult
}

// Callbacks are invoked from the sending goroutine as the stream
// progresses.
type Callbacks struct {
	OnToken       func(messageID, token string)
	OnToolCall    func(ToolCallEvent)
	OnStateChange func(State)
}

// errProtocol marks an upstream error frame: the conversation failed
// server-side, so retrying the transport cannot help.
var errProtocol = errors.New("assistant stream reported an error")

var errSendInFlight = errors.New("a message is already in flight on this session")

// Session drives one conversation over the streaming transport, degrading
// to the non-streaming endpoint when the stream repeatedly fails.
type Session struct {
	api            *API
	strategy       RetryStrategy
	attemptTimeout time.Duration
	sleep          func(time.Duration)
	now            func() time.Time
	newID          func() string
	callbacks      Callbacks

	mu           sync.Mutex
	state        State
	messages     []*Message
	inflight     bool
	cancelActive context.CancelFunc
	cancelled    bool
}

type SessionOption func(*Session)

func WithRetryStrategy(strategy RetryStrategy) SessionOption {
	return func(s *Session) { s.strategy = strategy }
}

func WithAttemptTimeout(timeout time.Duration) SessionOption {
	return func(s *Session) { s.attemptTimeout = timeout }
}

func WithCallbacks(callbacks Callbacks) SessionOption {
	return func(s *Session) { s.callbacks = callbacks }
}

// WithSleep replaces the backoff wait, letting tests run the schedule
// without real timers.
func WithSleep(sleep func(time.Duration)) SessionOption {
	return func(s *Session) { s.sleep = sleep }
}

func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

func NewSession(api *API, opts ...SessionOption) (*Session, error) {
	if api == nil {
		return nil, fmt.Errorf("api is required")
	}
	s := &Session{
		api:            api,
		strategy:       DefaultRetryStrategy(),
		attemptTimeout: defaultAttemptTimeout,
		sleep:          time.Sleep,
		now:            time.Now,
		newID:          uuid.NewString,
		state:          StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State returns the transport's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a snapshot of the conversation.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, *m)
	}
	return out
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()
	if changed && s.callbacks.OnStateChange != nil {
		s.callbacks.OnStateChange(state)
	}
}

// SendMessage appends the user's text and a placeholder reply, then runs
// the streaming attempt loop. After the retry budget is spent it falls
// back to the non-streaming endpoint; the placeholder always ends in a
// terminal status unless the user cancelled.
func (s *Session) SendMessage(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.inflight {
		s.mu.Unlock()
		return errSendInFlight
	}
	s.inflight = true
	s.cancelled = false

	now := s.now()
	user := &Message{
		ID:        s.newID(),
		Role:      "user",
		Content:   text,
		Timestamp: now,
		Status:    StatusSuccess,
	}
	placeholder := &Message{
		ID:        s.newID(),
		Role:      "assistant",
		Timestamp: now,
		Status:    StatusPending,
	}
	s.messages = append(s.messages, user, placeholder)
	history := s.historyLocked(placeholder)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inflight = false
		s.cancelActive = nil
		s.mu.Unlock()
	}()

	for attempt := 0; attempt <= s.strategy.MaxRetries; attempt++ {
		if attempt > 0 {
			s.setState(StateReconnecting)
			s.sleep(s.strategy.DelayFor(attempt - 1))
		}
		if s.isCancelled() {
			return s.finishCancelled(placeholder)
		}
		s.setState(StateConnecting)

		err := s.streamOnce(ctx, history, placeholder)
		if err == nil {
			s.finalize(placeholder, StatusSuccess)
			s.setState(StateIdle)
			return nil
		}
		if s.isCancelled() {
			return s.finishCancelled(placeholder)
		}
		if errors.Is(err, errProtocol) {
			s.finalize(placeholder, StatusError)
			s.setState(StateError)
			return err
		}
		// Transport failure: reset any partial tokens so the retry
		// replays into a clean placeholder.
		s.mu.Lock()
		placeholder.Content = ""
		placeholder.Status = StatusPending
		s.mu.Unlock()
	}

	return s.fallback(ctx, history, placeholder)
}

// streamOnce runs a single streaming attempt with its own timeout. A nil
// return means the stream completed with a done frame.
func (s *Session) streamOnce(ctx context.Context, history []assistant.IncomingMessage, placeholder *Message) error {
	attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	defer cancel()

	s.mu.Lock()
	s.cancelActive = cancel
	s.mu.Unlock()

	body, err := s.api.OpenStream(attemptCtx, history)
	if err != nil {
		return err
	}
	defer body.Close()

	s.setState(StateStreaming)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	sawDone := false
	for scanner.Scan() {
		if s.isCancelled() {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var frame assistant.StreamFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			continue
		}
		switch frame.Type {
		case assistant.FrameContent:
			s.appendToken(placeholder, frame.Content)
		case assistant.FrameToolCall:
			s.handleToolCallFrame(placeholder, frame.ToolCall)
		case assistant.FrameDone:
			sawDone = true
		case assistant.FrameError:
			return fmt.Errorf("%w: %s", errProtocol, frame.Message)
		}
		if sawDone {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if !sawDone {
		return io.ErrUnexpectedEOF
	}
	return nil
}

// fallback issues the single non-streaming call and applies its reply to
// the placeholder in one shot.
func (s *Session) fallback(ctx context.Context, history []assistant.IncomingMessage, placeholder *Message) error {
	if s.isCancelled() {
		return s.finishCancelled(placeholder)
	}
	s.setState(StateConnecting)

	reply, err := s.api.SendFallback(ctx, history)
	if err != nil {
		s.finalize(placeholder, StatusError)
		s.setState(StateError)
		return err
	}

	switch reply.Type {
	case assistant.ReplyContent:
		s.mu.Lock()
		placeholder.Content = reply.Content
		placeholder.ToolResult = reply.ToolResult
		s.mu.Unlock()
		s.finalize(placeholder, StatusSuccess)
		s.setState(StateIdle)
		return nil
	case assistant.ReplyConfirmationRequired:
		s.mu.Lock()
		placeholder.Content = reply.Content
		if reply.PendingCallID != "" && reply.Preview != nil {
			placeholder.PendingConfirmation = &PendingConfirmation{
				PendingCallID: reply.PendingCallID,
				Preview:       *reply.Preview,
			}
		}
		s.mu.Unlock()
		if s.callbacks.OnToolCall != nil && reply.Preview != nil {
			s.callbacks.OnToolCall(ToolCallEvent{
				MessageID:            placeholder.ID,
				Name:                 reply.Preview.ToolName,
				RequiresConfirmation: true,
				PendingCallID:        reply.PendingCallID,
				Preview:              reply.Preview,
			})
		}
		s.finalize(placeholder, StatusSuccess)
		s.setState(StateIdle)
		return nil
	default:
		s.finalize(placeholder, StatusError)
		s.setState(StateError)
		return fmt.Errorf("assistant unavailable: %s", reply.Content)
	}
}

func (s *Session) appendToken(placeholder *Message, token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	placeholder.Content += token
	placeholder.Status = StatusStreaming
	s.mu.Unlock()
	if s.callbacks.OnToken != nil {
		s.callbacks.OnToken(placeholder.ID, token)
	}
}

func (s *Session) handleToolCallFrame(placeholder *Message, call *assistant.ToolCallFrame) {
	if call == nil {
		return
	}
	s.mu.Lock()
	if call.RequiresConfirmation && call.PendingCallID != "" && call.Preview != nil {
		placeholder.PendingConfirmation = &PendingConfirmation{
			PendingCallID: call.PendingCallID,
			Preview:       *call.Preview,
		}
	}
	if call.Result != nil {
		placeholder.ToolResult = call.Result
	}
	s.mu.Unlock()

	if s.callbacks.OnToolCall != nil {
		s.callbacks.OnToolCall(ToolCallEvent{
			MessageID:            placeholder.ID,
			Name:                 call.Name,
			RequiresConfirmation: call.RequiresConfirmation,
			PendingCallID:        call.PendingCallID,
			Preview:              call.Preview,
			Result:               call.Result,
		})
	}
}

func (s *Session) finalize(placeholder *Message, status MessageStatus) {
	s.mu.Lock()
	placeholder.Status = status
	s.mu.Unlock()
}

// finishCancelled closes out a send the user aborted: the placeholder is
// finalized without an error status because cancellation is not a failure.
func (s *Session) finishCancelled(placeholder *Message) error {
	s.finalize(placeholder, StatusSuccess)
	s.setState(StateIdle)
	return nil
}

func (s *Session) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// CancelStream aborts the in-flight attempt and returns to idle. The
// placeholder keeps whatever content already arrived.
func (s *Session) CancelStream() {
	s.mu.Lock()
	s.cancelled = true
	cancel := s.cancelActive
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.setState(StateIdle)
}

// Close aborts any in-flight work.
func (s *Session) Close() {
	s.CancelStream()
}

// historyLocked rolls the conversation up for the wire, excluding the
// placeholder being filled. Callers must hold s.mu.
func (s *Session) historyLocked(placeholder *Message) []assistant.IncomingMessage {
	history := make([]assistant.IncomingMessage, 0, len(s.messages))
	for _, m := range s.messages {
		if m == placeholder || m.Content == "" {
			continue
		}
		history = append(history, assistant.IncomingMessage{Role: m.Role, Content: m.Content})
	}
	return history
}
