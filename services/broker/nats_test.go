package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidiacare/lucidia/core/event"
	logsvc "github.com/lucidiacare/lucidia/services/logger"
)

const recvTimeout = 2 * time.Second

func newTestNatsBroker(t *testing.T, drops DropCounter, bufSize int) *natsBroker {
	srv := natsserver.RunRandClientPortServer()
	t.Cleanup(srv.Shutdown)

	brk, err := NewNatsBroker(srv.ClientURL(), "lucidia.feed.", logsvc.NewNopLogger(), drops)
	require.NoError(t, err)
	t.Cleanup(func() { _ = brk.Close() })

	b := brk.(*natsBroker)
	b.bufSize = bufSize
	return b
}

// subscribe returns once the server knows about the subscription.
func subscribe(t *testing.T, b *natsBroker, ownerID string) event.Subscription {
	t.Helper()
	sub, err := b.Subscribe(ownerID)
	require.NoError(t, err)
	require.NoError(t, b.nc.Flush())
	return sub
}

func receive(t *testing.T, sub event.Subscription) event.Event {
	t.Helper()
	select {
	case evt, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return evt
	case <-time.After(recvTimeout):
		t.Fatal("no event received")
		return event.Event{}
	}
}

func TestNatsBroker(t *testing.T) {
	ctx := context.Background()
	b := newTestNatsBroker(t, nil, DefaultBufferSize)

	mine := subscribe(t, b, "p1")
	other := subscribe(t, b, "p2")

	t.Run("subject per owner", func(t *testing.T) {
		assert.Equal(t, "lucidia.feed.p1", b.subject("p1"))
	})

	t.Run("publish reaches the owner's subscribers", func(t *testing.T) {
		b.Publish(ctx, event.New(event.CollectionFaces, event.OpCreated, "p1", "f1", map[string]string{"name": "Tom"}))

		evt := receive(t, mine)
		assert.Equal(t, event.CollectionFaces, evt.Collection)
		assert.Equal(t, event.OpCreated, evt.Op)
		assert.Equal(t, "p1", evt.OwnerID)
		assert.Equal(t, "f1", evt.ID)
		assert.JSONEq(t, `{"name": "Tom"}`, string(evt.Data))
	})

	t.Run("other owners see nothing", func(t *testing.T) {
		b.Publish(ctx, event.New(event.CollectionFaces, event.OpDeleted, "p1", "f1", nil))
		b.Publish(ctx, event.New(event.CollectionAlerts, event.OpCreated, "p2", "a1", nil))

		// p2's own event is the first one it gets
		evt := receive(t, other)
		assert.Equal(t, "a1", evt.ID)
		assert.Equal(t, event.OpDeleted, receive(t, mine).Op)
	})

	t.Run("cancelled context still publishes", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		b.Publish(cctx, event.New(event.CollectionReminders, event.OpUpdated, "p1", "r1", nil))
		assert.Equal(t, "r1", receive(t, mine).ID)
	})

	t.Run("undecodable payloads are skipped", func(t *testing.T) {
		require.NoError(t, b.nc.Publish(b.subject("p1"), []byte("not json")))
		b.Publish(ctx, event.New(event.CollectionMemories, event.OpCreated, "p1", "m1", nil))
		assert.Equal(t, "m1", receive(t, mine).ID)
	})

	t.Run("close ends the events channel", func(t *testing.T) {
		require.NoError(t, other.Close())
		select {
		case _, open := <-other.Events():
			assert.False(t, open)
		case <-time.After(recvTimeout):
			t.Fatal("events channel left open")
		}
	})
}

func TestNatsBroker_slowSubscriber(t *testing.T) {
	ctx := context.Background()
	drops := new(dropRecorder)
	b := newTestNatsBroker(t, drops, 2)

	sub := subscribe(t, b, "p1")
	for _, id := range []string{"f1", "f2", "f3"} {
		b.Publish(ctx, event.New(event.CollectionFaces, event.OpCreated, "p1", id, nil))
	}
	require.NoError(t, b.nc.Flush())

	assert.Eventually(t, func() bool {
		drops.mu.Lock()
		defer drops.mu.Unlock()
		return drops.drops[event.CollectionFaces] == 1
	}, recvTimeout, 10*time.Millisecond)

	assert.Equal(t, "f1", receive(t, sub).ID)
	assert.Equal(t, "f2", receive(t, sub).ID)
	require.NoError(t, sub.Close())
}

func TestNatsBroker_wireFormat(t *testing.T) {
	b := newTestNatsBroker(t, nil, DefaultBufferSize)

	raw := make(chan *nats.Msg, 1)
	ns, err := b.nc.ChanSubscribe(b.subject("p1"), raw)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ns.Unsubscribe() })
	require.NoError(t, b.nc.Flush())

	b.Publish(context.Background(), event.New(event.CollectionLocation, event.OpUpdated, "p1", "p1", nil))

	select {
	case msg := <-raw:
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(msg.Data, &body))
		assert.Equal(t, "location", body["collection"])
		assert.Equal(t, "updated", body["op"])
		assert.Equal(t, "p1", body["owner_id"])
	case <-time.After(recvTimeout):
		t.Fatal("no message on the owner's subject")
	}
}
