package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/settings"
)

type settingsRow struct {
	UserID            string    `db:"user_id"`
	PushNotifications bool      `db:"push_notifications"`
	EmailSummary      bool      `db:"email_summary"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (row settingsRow) toSettings() settings.Settings {
	return settings.Settings{
		UserID:            row.UserID,
		PushNotifications: row.PushNotifications,
		EmailSummary:      row.EmailSummary,
		UpdatedAt:         row.UpdatedAt.UTC(),
	}
}

type settingsRepository struct {
	baseRepository
}

var _ settings.Repository = (*settingsRepository)(nil)

func NewSettingsRepository(exec core.DBExecutor) *settingsRepository {
	return &settingsRepository{baseRepository{exec: exec}}
}

func (repo settingsRepository) GetSettings(ctx context.Context, userID string, exec ...core.DBExecutor) (settings.Settings, error) {
	ex := repo.getExec(exec)
	q := "SELECT user_id, push_notifications, email_summary, updated_at FROM settings WHERE user_id = ?"
	var row settingsRow
	if err := sqlx.GetContext(ctx, ex, &row, ex.Rebind(q), userID); err != nil {
		return settings.Settings{}, trapNoRowsErr(err, settings.ErrNotFound, "getting settings")
	}
	return row.toSettings(), nil
}

func (repo settingsRepository) UpsertSettings(ctx context.Context, s settings.Settings, exec ...core.DBExecutor) (settings.Settings, error) {
	row := settingsRow{
		UserID:            s.UserID,
		PushNotifications: s.PushNotifications,
		EmailSummary:      s.EmailSummary,
		UpdatedAt:         s.UpdatedAt.UTC(),
	}
	q := `INSERT INTO settings (user_id, push_notifications, email_summary, updated_at)
		VALUES (:user_id, :push_notifications, :email_summary, :updated_at)
		ON CONFLICT (user_id) DO UPDATE SET
			push_notifications = excluded.push_notifications,
			email_summary = excluded.email_summary,
			updated_at = excluded.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row); err != nil {
		return settings.Settings{}, errors.Wrap(err, "upserting settings")
	}
	return row.toSettings(), nil
}
