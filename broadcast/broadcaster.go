package broadcast

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vowsuite/concierge"
)

// persistTimeout bounds the durable-log append so a slow disk cannot hold
// broadcast goroutines forever.
const persistTimeout = 5 * time.Second

// Broadcaster fans a committed mutation's sync action out to the hub and
// the durable log concurrently. Both are fire-and-forget for the caller.
type Broadcaster struct {
	hub    *Hub
	log    *Log
	logger *zap.SugaredLogger
	wg     sync.WaitGroup
}

func NewBroadcaster(hub *Hub, log *Log, logger *zap.SugaredLogger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Broadcaster{hub: hub, log: log, logger: logger}
}

// Dispatch publishes and persists the action concurrently. It returns
// immediately; errors are logged, never propagated, because the mutation
// the action describes has already committed.
func (b *Broadcaster) Dispatch(action concierge.SyncAction) {
	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		b.hub.Publish(action)
	}()
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := b.log.Append(ctx, action); err != nil {
			b.logger.Errorw("failed to persist sync action",
				"action", action.ID, "tool", action.ToolName, "err", err)
		}
	}()
}

// Wait joins in-flight dispatches. Used by tests and graceful shutdown.
func (b *Broadcaster) Wait() {
	b.wg.Wait()
}
