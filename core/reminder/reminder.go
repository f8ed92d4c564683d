// Package reminder schedules the patient's daily tasks and finds the ones that fell due.
package reminder

import (
	"context"
	"fmt"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/event"
)

// Types
const (
	TypeMedication  = "medication"
	TypeAppointment = "appointment"
	TypeActivity    = "activity"
	TypeOther       = "other"
)

var (
	AllTypes = []string{TypeMedication, TypeAppointment, TypeActivity, TypeOther}

	ErrNotFound = errors.New("reminder not found")

	timeOfDayTag  = "timeofday"
	timeOfDayText = "time must look like 08:30, 20:30 or 8:30 PM"
)

type Reminder struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Time        string    `json:"time"` // h:MM AM|PM
	Type        string    `json:"type"`
	IsCompleted bool      `json:"is_completed"`
	Notified    bool      `json:"notified"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

// IsDue reports whether r is pending and today's occurrence of its time has passed.
func (r Reminder) IsDue(now time.Time) bool {
	if r.IsCompleted || r.Notified {
		return false
	}
	at, err := occurrence(r.Time, now)
	if err != nil {
		return false
	}
	return !at.After(now)
}

// Message is the text the patient is notified with.
func (r Reminder) Message() string {
	return fmt.Sprintf("Reminder: %s at %s", r.Title, r.Time)
}

// DueReminder returns the first due reminder of reminders.
func DueReminder(reminders []Reminder, now time.Time) (Reminder, bool) {
	for _, r := range reminders {
		if r.IsDue(now) {
			return r, true
		}
	}
	return Reminder{}, false
}

type NewReminder struct {
	Title string `json:"title" validate:"notblank"`
	Time  string `json:"time" validate:"required,timeofday"`
	Type  string `json:"type" validate:"required,oneof=medication appointment activity other"`
}

func (nr *NewReminder) Validate(validate *validator.Validate) error {
	nr.Title = core.CleanString(nr.Title)
	nr.Time = core.CleanString(nr.Time)
	nr.Type = core.CleanString(nr.Type, true /* lower */)
	if nr.Type == "" {
		nr.Type = TypeOther
	}
	return validate.Struct(nr)
}

// QueryFilter applies AND operation on its non-nil fields.
type QueryFilter struct {
	IsCompleted *bool
	Notified    *bool
}

type (
	Repository interface {
		// QueryReminders returns the owner's reminders in creation order.
		QueryReminders(ctx context.Context, ownerID string, filter *QueryFilter, exec ...core.DBExecutor) ([]Reminder, error)
		// QueryPendingOwners returns the owners having reminders neither completed nor notified.
		QueryPendingOwners(ctx context.Context, exec ...core.DBExecutor) ([]string, error)
		GetReminder(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) (Reminder, error)
		CreateReminder(ctx context.Context, r Reminder, exec ...core.DBExecutor) (Reminder, error)
		UpdateReminder(ctx context.Context, r Reminder, exec ...core.DBExecutor) (Reminder, error)
		DeleteReminder(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) error
	}

	Service interface {
		List(ctx context.Context, ownerID string) ([]Reminder, error)
		Pending(ctx context.Context, ownerID string) ([]Reminder, error)
		PendingOwners(ctx context.Context) ([]string, error)
		Create(ctx context.Context, ownerID string, nr NewReminder) (Reminder, error)
		MarkCompleted(ctx context.Context, ownerID, id string) (Reminder, error)
		MarkNotified(ctx context.Context, ownerID, id string) (Reminder, error)
		Delete(ctx context.Context, ownerID, id string) error
		// Due returns the owner's first due reminder at now, if any.
		Due(ctx context.Context, ownerID string, now time.Time) (Reminder, bool, error)
	}

	service struct {
		repo      Repository
		publisher event.Publisher
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, publisher event.Publisher) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(publisher, "publisher"),
	).CheckAndPanic()
	return &service{repo: repo, publisher: publisher}
}

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(timeOfDayTag, timeOfDayValidation)
	core.RegisterCustomTranslation(validate, translator, timeOfDayTag, timeOfDayText)
}

func timeOfDayValidation(fl validator.FieldLevel) bool {
	_, _, err := ParseTimeOfDay(fl.Field().String())
	return err == nil
}

func (svc *service) List(ctx context.Context, ownerID string) ([]Reminder, error) {
	return svc.repo.QueryReminders(ctx, ownerID, nil)
}

func (svc *service) Pending(ctx context.Context, ownerID string) ([]Reminder, error) {
	no := false
	return svc.repo.QueryReminders(ctx, ownerID, &QueryFilter{IsCompleted: &no})
}

func (svc *service) PendingOwners(ctx context.Context) ([]string, error) {
	return svc.repo.QueryPendingOwners(ctx)
}

func (svc *service) Create(ctx context.Context, ownerID string, nr NewReminder) (Reminder, error) {
	tod, err := NormalizeTimeOfDay(nr.Time)
	if err != nil {
		return Reminder{}, core.NewValidationError(err, core.FieldError{Field: "time", Error: timeOfDayText})
	}
	r, err := svc.repo.CreateReminder(ctx, Reminder{
		OwnerID:   ownerID,
		Title:     nr.Title,
		Time:      tod,
		Type:      nr.Type,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return Reminder{}, errors.Wrap(err, "creating reminder")
	}
	svc.publisher.Publish(ctx, event.New(event.CollectionReminders, event.OpCreated, ownerID, r.ID, r))
	return r, nil
}

func (svc *service) update(ctx context.Context, ownerID, id string, fn func(r *Reminder)) (Reminder, error) {
	r, err := svc.repo.GetReminder(ctx, ownerID, id)
	if err != nil {
		return Reminder{}, err
	}
	fn(&r)
	if r, err = svc.repo.UpdateReminder(ctx, r); err != nil {
		return Reminder{}, errors.Wrap(err, "updating reminder")
	}
	svc.publisher.Publish(ctx, event.New(event.CollectionReminders, event.OpUpdated, ownerID, r.ID, r))
	return r, nil
}

func (svc *service) MarkCompleted(ctx context.Context, ownerID, id string) (Reminder, error) {
	return svc.update(ctx, ownerID, id, func(r *Reminder) { r.IsCompleted = true })
}

func (svc *service) MarkNotified(ctx context.Context, ownerID, id string) (Reminder, error) {
	return svc.update(ctx, ownerID, id, func(r *Reminder) { r.Notified = true })
}

func (svc *service) Delete(ctx context.Context, ownerID, id string) error {
	if err := svc.repo.DeleteReminder(ctx, ownerID, id); err != nil {
		return err
	}
	svc.publisher.Publish(ctx, event.New(event.CollectionReminders, event.OpDeleted, ownerID, id, nil))
	return nil
}

func (svc *service) Due(ctx context.Context, ownerID string, now time.Time) (Reminder, bool, error) {
	reminders, err := svc.repo.QueryReminders(ctx, ownerID, nil)
	if err != nil {
		return Reminder{}, false, errors.Wrap(err, "querying reminders")
	}
	r, ok := DueReminder(reminders, now)
	return r, ok, nil
}
