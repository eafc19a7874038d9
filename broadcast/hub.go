// Package broadcast publishes sync actions to live client sessions and
// appends them to a durable log for replay after reconnects. Both halves
// are best-effort with respect to the mutation that triggered them: a
// publish or persist failure is logged and swallowed, never surfaced to
// the dispatcher, because the mutation has already committed.
package broadcast

import (
	"sync"

	"go.uber.org/zap"

	"github.com/vowsuite/concierge"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind loses actions (and recovers via the durable log).
const subscriberBuffer = 16

// Hub fans sync actions out to subscribed client sessions, filtered by
// tenant. Delivery is non-blocking: a full subscriber buffer drops the
// action for that subscriber with a warning.
type Hub struct {
	logger *zap.SugaredLogger

	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
}

type subscriber struct {
	tenantID string
	ch       chan concierge.SyncAction
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{logger: logger, subs: make(map[int]*subscriber)}
}

// Subscribe registers a session for a tenant's sync actions. The returned
// cancel func unregisters and closes the channel; it is safe to call twice.
func (h *Hub) Subscribe(tenantID string) (<-chan concierge.SyncAction, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	sub := &subscriber{tenantID: tenantID, ch: make(chan concierge.SyncAction, subscriberBuffer)}
	h.subs[id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers the action to every subscriber of its tenant.
func (h *Hub) Publish(action concierge.SyncAction) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		if sub.tenantID != action.TenantID {
			continue
		}
		select {
		case sub.ch <- action:
		default:
			h.logger.Warnw("sync subscriber buffer full, dropping action",
				"tenant", action.TenantID, "tool", action.ToolName, "action", action.ID)
		}
	}
}

// SubscriberCount reports how many sessions are currently subscribed.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
