package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/reminder"
)

const reminderColumns = "id, owner_id, title, time, type, is_completed, notified, created_at"

type reminderRow struct {
	ID          string    `db:"id"`
	OwnerID     string    `db:"owner_id"`
	Title       string    `db:"title"`
	Time        string    `db:"time"`
	Type        string    `db:"type"`
	IsCompleted bool      `db:"is_completed"`
	Notified    bool      `db:"notified"`
	CreatedAt   time.Time `db:"created_at"`
}

func (row reminderRow) toReminder() reminder.Reminder {
	return reminder.Reminder{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		Title:       row.Title,
		Time:        row.Time,
		Type:        row.Type,
		IsCompleted: row.IsCompleted,
		Notified:    row.Notified,
		CreatedAt:   row.CreatedAt.UTC(),
	}
}

func newReminderRow(r reminder.Reminder) reminderRow {
	return reminderRow{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Title:       r.Title,
		Time:        r.Time,
		Type:        r.Type,
		IsCompleted: r.IsCompleted,
		Notified:    r.Notified,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type reminderRepository struct {
	baseRepository
}

var _ reminder.Repository = (*reminderRepository)(nil)

func NewReminderRepository(exec core.DBExecutor) *reminderRepository {
	return &reminderRepository{baseRepository{exec: exec}}
}

func (repo reminderRepository) QueryReminders(ctx context.Context, ownerID string, filter *reminder.QueryFilter, exec ...core.DBExecutor) ([]reminder.Reminder, error) {
	where := []string{"owner_id = ?"}
	args := []interface{}{ownerID}
	if filter != nil {
		if filter.IsCompleted != nil {
			where = append(where, "is_completed = ?")
			args = append(args, *filter.IsCompleted)
		}
		if filter.Notified != nil {
			where = append(where, "notified = ?")
			args = append(args, *filter.Notified)
		}
	}
	q := "SELECT " + reminderColumns + " FROM reminders WHERE " + strings.Join(where, " AND ") +
		" ORDER BY created_at ASC"

	ex := repo.getExec(exec)
	var rows []reminderRow
	if err := sqlx.SelectContext(ctx, ex, &rows, ex.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying reminders")
	}
	reminders := make([]reminder.Reminder, 0, len(rows))
	for _, row := range rows {
		reminders = append(reminders, row.toReminder())
	}
	return reminders, nil
}

func (repo reminderRepository) QueryPendingOwners(ctx context.Context, exec ...core.DBExecutor) ([]string, error) {
	ex := repo.getExec(exec)
	q := "SELECT DISTINCT owner_id FROM reminders WHERE is_completed = ? AND notified = ? ORDER BY owner_id"
	var owners []string
	if err := sqlx.SelectContext(ctx, ex, &owners, ex.Rebind(q), false, false); err != nil {
		return nil, errors.Wrap(err, "querying pending reminder owners")
	}
	return owners, nil
}

func (repo reminderRepository) GetReminder(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) (reminder.Reminder, error) {
	ex := repo.getExec(exec)
	q := "SELECT " + reminderColumns + " FROM reminders WHERE owner_id = ? AND id = ?"
	var row reminderRow
	if err := sqlx.GetContext(ctx, ex, &row, ex.Rebind(q), ownerID, id); err != nil {
		return reminder.Reminder{}, trapNoRowsErr(err, reminder.ErrNotFound, "getting reminder")
	}
	return row.toReminder(), nil
}

func (repo reminderRepository) CreateReminder(ctx context.Context, r reminder.Reminder, exec ...core.DBExecutor) (reminder.Reminder, error) {
	r.ID = uuid.New().String()
	q := `INSERT INTO reminders (` + reminderColumns + `)
		VALUES (:id, :owner_id, :title, :time, :type, :is_completed, :notified, :created_at)`
	row := newReminderRow(r)
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row); err != nil {
		return reminder.Reminder{}, errors.Wrap(err, "inserting reminder")
	}
	return row.toReminder(), nil
}

func (repo reminderRepository) UpdateReminder(ctx context.Context, r reminder.Reminder, exec ...core.DBExecutor) (reminder.Reminder, error) {
	q := `UPDATE reminders SET title = :title, time = :time, type = :type, is_completed = :is_completed, notified = :notified
		WHERE id = :id AND owner_id = :owner_id`
	row := newReminderRow(r)
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row)
	if err != nil {
		return reminder.Reminder{}, errors.Wrap(err, "updating reminder")
	}
	if err = checkAffected(res, reminder.ErrNotFound); err != nil {
		return reminder.Reminder{}, err
	}
	return row.toReminder(), nil
}

func (repo reminderRepository) DeleteReminder(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) error {
	ex := repo.getExec(exec)
	res, err := ex.ExecContext(ctx, ex.Rebind("DELETE FROM reminders WHERE owner_id = ? AND id = ?"), ownerID, id)
	if err != nil {
		return errors.Wrap(err, "deleting reminder")
	}
	return checkAffected(res, reminder.ErrNotFound)
}
