package broker

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/event"
)

var ErrClosed = errors.New("broker closed")

// DefaultBufferSize is the number of events a subscriber may lag behind before events get dropped.
const DefaultBufferSize = 64

// DropCounter is told about every event dropped for a slow subscriber.
type DropCounter interface {
	EventDropped(collection string)
}

type memoryBroker struct {
	logger  core.Logger
	drops   DropCounter
	bufSize int

	mu     sync.RWMutex
	subs   map[string]map[*memorySubscription]struct{} // {ownerID: subs}
	closed bool
}

var _ event.Broker = (*memoryBroker)(nil)

// NewMemoryBroker returns a process-local broker. drops may be nil.
func NewMemoryBroker(logger core.Logger, drops DropCounter, bufSize ...int) event.Broker {
	size := DefaultBufferSize
	if len(bufSize) > 0 && bufSize[0] > 0 {
		size = bufSize[0]
	}
	return &memoryBroker{
		logger:  logger,
		drops:   drops,
		bufSize: size,
		subs:    make(map[string]map[*memorySubscription]struct{}),
	}
}

// Publish never blocks: a subscriber whose buffer is full misses evt.
func (b *memoryBroker) Publish(_ context.Context, evt event.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for sub := range b.subs[evt.OwnerID] {
		sub.deliver(evt, b)
	}
}

func (b *memoryBroker) dropped(evt event.Event) {
	if b.drops != nil {
		b.drops.EventDropped(evt.Collection)
	}
	if b.logger != nil {
		b.logger.Warn("feed subscriber too slow, event dropped",
			map[string]interface{}{"owner_id": evt.OwnerID, "collection": evt.Collection})
	}
}

func (b *memoryBroker) Subscribe(ownerID string) (event.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	sub := &memorySubscription{
		broker:  b,
		ownerID: ownerID,
		events:  make(chan event.Event, b.bufSize),
	}
	if b.subs[ownerID] == nil {
		b.subs[ownerID] = make(map[*memorySubscription]struct{})
	}
	b.subs[ownerID][sub] = struct{}{}
	return sub, nil
}

func (b *memoryBroker) unsubscribe(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if owned, ok := b.subs[sub.ownerID]; ok {
		delete(owned, sub)
		if len(owned) == 0 {
			delete(b.subs, sub.ownerID)
		}
	}
	sub.close()
}

func (b *memoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, owned := range b.subs {
		for sub := range owned {
			sub.close()
		}
	}
	b.subs = nil
	return nil
}

type memorySubscription struct {
	broker  *memoryBroker
	ownerID string

	mu     sync.Mutex
	events chan event.Event
	done   bool
}

func (s *memorySubscription) deliver(evt event.Event, b *memoryBroker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	select {
	case s.events <- evt:
	default:
		b.dropped(evt)
	}
}

// close must be called with the broker lock held.
func (s *memorySubscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.done {
		s.done = true
		close(s.events)
	}
}

func (s *memorySubscription) Events() <-chan event.Event { return s.events }

func (s *memorySubscription) Close() error {
	s.broker.unsubscribe(s)
	return nil
}
