package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/event"
)

// natsBroker shares the feed between API instances through NATS core subjects `<prefix>.<ownerID>`.
type natsBroker struct {
	nc      *nats.Conn
	prefix  string
	logger  core.Logger
	drops   DropCounter
	bufSize int
}

var _ event.Broker = (*natsBroker)(nil)

// NewNatsBroker connects to url. drops may be nil.
func NewNatsBroker(url, prefix string, logger core.Logger, drops DropCounter) (event.Broker, error) {
	nc, err := nats.Connect(url,
		nats.Name("lucidia-feed"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn(fmt.Sprintf("nats disconnected: %v", err), err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", map[string]interface{}{"url": c.ConnectedUrl()})
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to nats")
	}
	return newNatsBroker(nc, prefix, logger, drops), nil
}

func newNatsBroker(nc *nats.Conn, prefix string, logger core.Logger, drops DropCounter) *natsBroker {
	return &natsBroker{
		nc:      nc,
		prefix:  strings.TrimSuffix(prefix, "."),
		logger:  logger,
		drops:   drops,
		bufSize: DefaultBufferSize,
	}
}

func (b *natsBroker) subject(ownerID string) string {
	return b.prefix + "." + ownerID
}

// Publish sends evt even when ctx is done: the change it reports is already saved.
func (b *natsBroker) Publish(_ context.Context, evt event.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		b.logger.Error(fmt.Sprintf("encoding event: %v", err), errors.Wrap(err, "encoding event"))
		return
	}
	if err = b.nc.Publish(b.subject(evt.OwnerID), data); err != nil {
		b.logger.Error(fmt.Sprintf("publishing event: %v", err), errors.Wrap(err, "publishing event"))
	}
}

func (b *natsBroker) Subscribe(ownerID string) (event.Subscription, error) {
	sub := &natsSubscription{events: make(chan event.Event, b.bufSize)}
	ns, err := b.nc.Subscribe(b.subject(ownerID), func(msg *nats.Msg) {
		var evt event.Event
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			b.logger.Warn(fmt.Sprintf("decoding event: %v", err), err)
			return
		}
		if !sub.deliver(evt) {
			if b.drops != nil {
				b.drops.EventDropped(evt.Collection)
			}
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "subscribing to feed")
	}
	sub.ns = ns
	return sub, nil
}

func (b *natsBroker) Close() error {
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return errors.Wrap(err, "draining nats connection")
	}
	return nil
}

type natsSubscription struct {
	ns *nats.Subscription

	mu     sync.Mutex
	events chan event.Event
	done   bool
}

func (s *natsSubscription) deliver(evt event.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return true
	}
	select {
	case s.events <- evt:
		return true
	default:
		return false
	}
}

func (s *natsSubscription) Events() <-chan event.Event { return s.events }

func (s *natsSubscription) Close() error {
	err := s.ns.Unsubscribe()
	s.mu.Lock()
	if !s.done {
		s.done = true
		close(s.events)
	}
	s.mu.Unlock()
	return errors.Wrap(err, "unsubscribing from feed")
}
