package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	events  []Event
	resyncs int
}

func (r *recorder) HandleEvent(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Resync(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resyncs++
}

func (r *recorder) snapshot() ([]Event, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out, r.resyncs
}

func setupFeed(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func waitSubscribed(t *testing.T, mr *miniredis.Miniredis, business string) {
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(Channel(business))[Channel(business)] == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRedis_RoundTripSkipsOwnEvents(t *testing.T) {
	mr, client := setupFeed(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	terminalA := NewRedis(client, "bistro", "POS-A")
	terminalB := NewRedis(client, "bistro", "POS-B")

	rec := &recorder{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = terminalB.Subscribe(ctx, rec)
	}()
	waitSubscribed(t, mr, "bistro")

	ev, err := NewEvent(EventUpdate, EntityTableSession, "", "T1", map[string]string{"current_total": "50"})
	require.NoError(t, err)
	require.NoError(t, terminalA.Publish(ctx, ev))

	own, err := NewEvent(EventInsert, EntityOrderLine, "", "T1", nil)
	require.NoError(t, err)
	require.NoError(t, terminalB.Publish(ctx, own))

	require.Eventually(t, func() bool {
		events, _ := rec.snapshot()
		return len(events) == 1
	}, 2*time.Second, 10*time.Millisecond)

	events, resyncs := rec.snapshot()
	assert.Equal(t, EntityTableSession, events[0].Entity)
	assert.Equal(t, "POS-A", events[0].Origin)
	assert.Equal(t, "bistro", events[0].BusinessID)
	assert.JSONEq(t, `{"current_total":"50"}`, string(events[0].Payload))
	assert.Equal(t, 0, resyncs)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}

func TestRedis_ResyncAfterReconnect(t *testing.T) {
	mr, client := setupFeed(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := NewRedis(client, "bistro", "POS-B")
	sub.SetBackoff(20 * time.Millisecond)
	rec := &recorder{}
	go func() { _ = sub.Subscribe(ctx, rec) }()
	waitSubscribed(t, mr, "bistro")

	mr.Close()
	require.NoError(t, mr.Restart())

	require.Eventually(t, func() bool {
		_, resyncs := rec.snapshot()
		return resyncs >= 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Publish(context.Background(), Event{}))
}
