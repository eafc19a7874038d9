package broadcast

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vowsuite/concierge"
	"github.com/vowsuite/concierge/store"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.Migrate(context.Background(), db))
	return db
}

func testAction(tenantID string, ts time.Time) concierge.SyncAction {
	return concierge.SyncAction{
		ID:         uuid.NewString(),
		Type:       concierge.ActionInsert,
		Module:     "guests",
		EntityID:   "g1",
		Data:       map[string]any{"firstName": "Ana"},
		TenantID:   tenantID,
		UserID:     "u1",
		Timestamp:  ts,
		QueryPaths: []string{"guests.list", "guests.count"},
		ToolName:   "add_guest",
	}
}

func TestHub_DeliversToMatchingTenantOnly(t *testing.T) {
	hub := NewHub(zap.NewNop().Sugar())

	chA, cancelA := hub.Subscribe("tenant-a")
	defer cancelA()
	chB, cancelB := hub.Subscribe("tenant-b")
	defer cancelB()

	hub.Publish(testAction("tenant-a", time.Now()))

	select {
	case action := <-chA:
		require.Equal(t, "add_guest", action.ToolName)
	case <-time.After(time.Second):
		t.Fatal("tenant-a subscriber did not receive the action")
	}

	select {
	case <-chB:
		t.Fatal("tenant-b subscriber must not receive tenant-a actions")
	default:
	}
}

func TestHub_FullSubscriberDropsWithoutBlocking(t *testing.T) {
	hub := NewHub(zap.NewNop().Sugar())

	_, cancel := hub.Subscribe("t1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			hub.Publish(testAction("t1", time.Now()))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestHub_CancelIsIdempotent(t *testing.T) {
	hub := NewHub(zap.NewNop().Sugar())
	_, cancel := hub.Subscribe("t1")
	cancel()
	cancel()
	require.Equal(t, 0, hub.SubscriberCount())
}

func TestLog_AppendAndSince(t *testing.T) {
	log := NewLog(newTestDB(t))
	ctx := context.Background()

	base := time.Now()
	early := testAction("t1", base.Add(-time.Minute))
	late := testAction("t1", base.Add(time.Minute))
	foreign := testAction("t2", base.Add(time.Minute))

	require.NoError(t, log.Append(ctx, early))
	require.NoError(t, log.Append(ctx, late))
	require.NoError(t, log.Append(ctx, foreign))

	actions, err := log.Since(ctx, "t1", base)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, late.ID, actions[0].ID)
	require.Equal(t, []string{"guests.list", "guests.count"}, actions[0].QueryPaths)
}

func TestBroadcaster_PublishesAndPersists(t *testing.T) {
	db := newTestDB(t)
	hub := NewHub(zap.NewNop().Sugar())
	log := NewLog(db)
	b := NewBroadcaster(hub, log, zap.NewNop().Sugar())

	ch, cancel := hub.Subscribe("t1")
	defer cancel()

	action := testAction("t1", time.Now())
	b.Dispatch(action)
	b.Wait()

	select {
	case got := <-ch:
		require.Equal(t, action.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive dispatched action")
	}

	replay, err := log.Since(context.Background(), "t1", action.Timestamp.Add(-time.Second))
	require.NoError(t, err)
	require.Len(t, replay, 1)
}

func TestBroadcaster_PersistFailureIsSwallowed(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Exec(`DROP TABLE sync_actions`)
	require.NoError(t, err)

	b := NewBroadcaster(NewHub(nil), NewLog(db), nil)
	b.Dispatch(testAction("t1", time.Now()))
	b.Wait()
	// No panic, no error surfaced: the mutation already committed.
}
