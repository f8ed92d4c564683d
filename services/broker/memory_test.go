package broker

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lucidiacare/lucidia/core/event"
	logsvc "github.com/lucidiacare/lucidia/services/logger"
)

type dropRecorder struct {
	mu    sync.Mutex
	drops map[string]int
}

func (r *dropRecorder) EventDropped(collection string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.drops == nil {
		r.drops = make(map[string]int)
	}
	r.drops[collection]++
}

func TestMemoryBroker(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	drops := new(dropRecorder)
	b := NewMemoryBroker(logsvc.NewNopLogger(), drops, 2)

	mine, err := b.Subscribe("p1")
	require.NoError(t, err)
	other, err := b.Subscribe("p2")
	require.NoError(t, err)

	b.Publish(ctx, event.New(event.CollectionFaces, event.OpCreated, "p1", "f1", nil))
	b.Publish(ctx, event.New(event.CollectionFaces, event.OpUpdated, "p1", "f1", nil))
	b.Publish(ctx, event.New(event.CollectionFaces, event.OpDeleted, "p1", "f1", nil)) // buffer full

	got := []string{(<-mine.Events()).Op, (<-mine.Events()).Op}
	assert.Equal(t, []string{event.OpCreated, event.OpUpdated}, got)
	assert.Equal(t, 1, drops.drops[event.CollectionFaces])

	select {
	case evt := <-other.Events():
		t.Errorf("other owner got %+v", evt)
	default:
	}

	require.NoError(t, mine.Close())
	_, open := <-mine.Events()
	assert.False(t, open)
	b.Publish(ctx, event.New(event.CollectionFaces, event.OpCreated, "p1", "f2", nil))

	require.NoError(t, b.Close())
	_, open = <-other.Events()
	assert.False(t, open)
	assert.NoError(t, other.Close())

	_, err = b.Subscribe("p1")
	assert.Equal(t, ErrClosed, err)
}
