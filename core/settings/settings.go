// Package settings stores per-user notification preferences.
package settings

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core"
)

var ErrNotFound = errors.New("settings not found")

type Settings struct {
	UserID            string    `json:"user_id"`
	PushNotifications bool      `json:"push_notifications"`
	EmailSummary      bool      `json:"email_summary"`
	UpdatedAt         time.Time `json:"updated_at"` // UTC
}

// Default returns the settings of a user who never changed them.
func Default(userID string) Settings {
	return Settings{UserID: userID, PushNotifications: true, EmailSummary: false}
}

// UpdateSettings holds the preferences to change; nil fields are left as is.
type UpdateSettings struct {
	PushNotifications *bool `json:"push_notifications"`
	EmailSummary      *bool `json:"email_summary"`
}

type (
	Repository interface {
		GetSettings(ctx context.Context, userID string, exec ...core.DBExecutor) (Settings, error)
		UpsertSettings(ctx context.Context, s Settings, exec ...core.DBExecutor) (Settings, error)
	}

	Service interface {
		Get(ctx context.Context, userID string) (Settings, error)
		Update(ctx context.Context, userID string, us UpdateSettings) (Settings, error)
		TogglePushNotifications(ctx context.Context, userID string) (Settings, error)
		ToggleEmailSummary(ctx context.Context, userID string) (Settings, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	vala.BeginValidation().Validate(vala.IsNotNil(repo, "repo")).CheckAndPanic()
	return &service{repo: repo}
}

func (svc *service) Get(ctx context.Context, userID string) (Settings, error) {
	s, err := svc.repo.GetSettings(ctx, userID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Default(userID), nil
		}
		return Settings{}, errors.Wrap(err, "getting settings")
	}
	return s, nil
}

func (svc *service) update(ctx context.Context, userID string, fn func(s *Settings)) (Settings, error) {
	s, err := svc.Get(ctx, userID)
	if err != nil {
		return Settings{}, err
	}
	fn(&s)
	s.UpdatedAt = time.Now().UTC()
	s, err = svc.repo.UpsertSettings(ctx, s)
	return s, errors.Wrap(err, "saving settings")
}

func (svc *service) Update(ctx context.Context, userID string, us UpdateSettings) (Settings, error) {
	return svc.update(ctx, userID, func(s *Settings) {
		if us.PushNotifications != nil {
			s.PushNotifications = *us.PushNotifications
		}
		if us.EmailSummary != nil {
			s.EmailSummary = *us.EmailSummary
		}
	})
}

func (svc *service) TogglePushNotifications(ctx context.Context, userID string) (Settings, error) {
	return svc.update(ctx, userID, func(s *Settings) { s.PushNotifications = !s.PushNotifications })
}

func (svc *service) ToggleEmailSummary(ctx context.Context, userID string) (Settings, error) {
	return svc.update(ctx, userID, func(s *Settings) { s.EmailSummary = !s.EmailSummary })
}
