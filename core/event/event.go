// Package event describes the change feed every client listens to.
//
// Each target owner (a patient) has one feed. Services publish an Event
// whenever a document in one of the owner's collections changes, and
// subscribers receive them in publication order.
package event

import (
	"context"
	"encoding/json"
	"time"
)

// Collections
const (
	CollectionFaces         = "faces"
	CollectionMemories      = "memories"
	CollectionReminders     = "reminders"
	CollectionAlerts        = "alerts"
	CollectionSafeZones     = "safeZones"
	CollectionLocation      = "location"
	CollectionNotifications = "notifications"
)

// Ops
const (
	OpSnapshot = "snapshot"
	OpCreated  = "created"
	OpUpdated  = "updated"
	OpDeleted  = "deleted"
	OpNotify   = "notify"
)

type Event struct {
	Collection string          `json:"collection"`
	Op         string          `json:"op"`
	OwnerID    string          `json:"owner_id"`
	ID         string          `json:"id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	At         time.Time       `json:"at"`
}

// Notification kinds & severities
const (
	KindReminder = "reminder"
	KindAlert    = "alert"

	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityDanger  = "danger"
)

// Notification is the payload of events in CollectionNotifications.
type Notification struct {
	Kind     string `json:"kind"` // reminder | alert
	RefID    string `json:"ref_id"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // info | warning | danger
}

// New builds an Event, encoding data as its JSON payload.
func New(collection, op, ownerID, id string, data interface{}) Event {
	evt := Event{
		Collection: collection,
		Op:         op,
		OwnerID:    ownerID,
		ID:         id,
		At:         time.Now().UTC(),
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			evt.Data = raw
		}
	}
	return evt
}

func (e Event) IsNotification() bool { return e.Collection == CollectionNotifications }

type (
	// Publisher fans events out to the owner's subscribers.
	// Delivery is best effort: implementations log failures instead of returning them.
	Publisher interface {
		Publish(ctx context.Context, evt Event)
	}

	Subscription interface {
		Events() <-chan Event
		Close() error
	}

	Broker interface {
		Publisher
		Subscribe(ownerID string) (Subscription, error)
		Close() error
	}
)

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}
