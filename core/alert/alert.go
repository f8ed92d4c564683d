// Package alert records the events caretakers must react to.
package alert

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/event"
)

// Types
const (
	TypeSOS          = "SOS"
	TypeSafeZoneExit = "SafeZoneExit"
)

// SOSMessage is the message of alerts raised by TriggerSOS.
const SOSMessage = "Patient triggered an Emergency SOS!"

var (
	ErrNotFound = errors.New("alert not found")

	// DefaultOrdering lists the newest alerts first.
	DefaultOrdering = []core.DBOrdering{{Field: "timestamp"}}
)

type Alert struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"` // UTC
	IsRead    bool      `json:"is_read"`
}

// QueryFilter applies AND operation on its non-nil fields.
type QueryFilter struct {
	IsRead *bool
}

type (
	// Notifier is told about every raised alert.
	Notifier interface {
		AlertRaised(ctx context.Context, a Alert)
	}

	Repository interface {
		// QueryAlerts returns the owner's alerts sorted by ordering, DefaultOrdering when empty.
		QueryAlerts(ctx context.Context, ownerID string, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Alert, error)
		GetAlert(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) (Alert, error)
		CreateAlert(ctx context.Context, a Alert, exec ...core.DBExecutor) (Alert, error)
		MarkAlertRead(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) error
		// MarkAllAlertsRead returns the IDs of the alerts it changed.
		MarkAllAlertsRead(ctx context.Context, ownerID string, exec ...core.DBExecutor) ([]string, error)
	}

	Service interface {
		List(ctx context.Context, ownerID string, ordering []core.DBOrdering) ([]Alert, error)
		Unread(ctx context.Context, ownerID string) ([]Alert, error)
		Raise(ctx context.Context, ownerID, typ, message string) (Alert, error)
		TriggerSOS(ctx context.Context, patientID string) (Alert, error)
		MarkRead(ctx context.Context, ownerID, id string) (Alert, error)
		MarkAllRead(ctx context.Context, ownerID string) (int, error)
	}

	service struct {
		repo      Repository
		publisher event.Publisher
		notifier  Notifier
	}
)

var _ Service = (*service)(nil)

type nopNotifier struct{}

func (nopNotifier) AlertRaised(context.Context, Alert) {}

// NewService returns an alert Service; notifier may be nil.
func NewService(repo Repository, publisher event.Publisher, notifier Notifier) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(publisher, "publisher"),
	).CheckAndPanic()
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &service{repo: repo, publisher: publisher, notifier: notifier}
}

func (svc *service) List(ctx context.Context, ownerID string, ordering []core.DBOrdering) ([]Alert, error) {
	return svc.repo.QueryAlerts(ctx, ownerID, nil, ordering)
}

func (svc *service) Unread(ctx context.Context, ownerID string) ([]Alert, error) {
	no := false
	return svc.repo.QueryAlerts(ctx, ownerID, &QueryFilter{IsRead: &no}, nil)
}

func (svc *service) Raise(ctx context.Context, ownerID, typ, message string) (Alert, error) {
	a, err := svc.repo.CreateAlert(ctx, Alert{
		OwnerID:   ownerID,
		Type:      typ,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return Alert{}, errors.Wrap(err, "creating alert")
	}
	svc.publisher.Publish(ctx, event.New(event.CollectionAlerts, event.OpCreated, ownerID, a.ID, a))
	svc.notifier.AlertRaised(ctx, a)
	return a, nil
}

func (svc *service) TriggerSOS(ctx context.Context, patientID string) (Alert, error) {
	return svc.Raise(ctx, patientID, TypeSOS, SOSMessage)
}

func (svc *service) MarkRead(ctx context.Context, ownerID, id string) (Alert, error) {
	if err := svc.repo.MarkAlertRead(ctx, ownerID, id); err != nil {
		return Alert{}, err
	}
	a, err := svc.repo.GetAlert(ctx, ownerID, id)
	if err != nil {
		return Alert{}, err
	}
	svc.publisher.Publish(ctx, event.New(event.CollectionAlerts, event.OpUpdated, ownerID, a.ID, a))
	return a, nil
}

func (svc *service) MarkAllRead(ctx context.Context, ownerID string) (int, error) {
	ids, err := svc.repo.MarkAllAlertsRead(ctx, ownerID)
	if err != nil {
		return 0, errors.Wrap(err, "marking alerts as read")
	}
	for _, id := range ids {
		if a, err := svc.repo.GetAlert(ctx, ownerID, id); err == nil {
			svc.publisher.Publish(ctx, event.New(event.CollectionAlerts, event.OpUpdated, ownerID, a.ID, a))
		}
	}
	return len(ids), nil
}
