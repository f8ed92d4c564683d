package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/alert"
)

const alertColumns = "id, owner_id, type, message, timestamp, is_read"

var alertOrderFields = map[string]bool{"timestamp": true, "type": true, "is_read": true}

type alertRow struct {
	ID        string    `db:"id"`
	OwnerID   string    `db:"owner_id"`
	Type      string    `db:"type"`
	Message   string    `db:"message"`
	Timestamp time.Time `db:"timestamp"`
	IsRead    bool      `db:"is_read"`
}

func (row alertRow) toAlert() alert.Alert {
	return alert.Alert{
		ID:        row.ID,
		OwnerID:   row.OwnerID,
		Type:      row.Type,
		Message:   row.Message,
		Timestamp: row.Timestamp.UTC(),
		IsRead:    row.IsRead,
	}
}

type alertRepository struct {
	baseRepository
}

var _ alert.Repository = (*alertRepository)(nil)

func NewAlertRepository(exec core.DBExecutor) *alertRepository {
	return &alertRepository{baseRepository{exec: exec}}
}

func (repo alertRepository) QueryAlerts(ctx context.Context, ownerID string, filter *alert.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]alert.Alert, error) {
	q := "SELECT " + alertColumns + " FROM alerts WHERE owner_id = ?"
	args := []interface{}{ownerID}
	if filter != nil && filter.IsRead != nil {
		q += " AND is_read = ?"
		args = append(args, *filter.IsRead)
	}
	q += orderBy(ordering, alertOrderFields, alert.DefaultOrdering)

	ex := repo.getExec(exec)
	var rows []alertRow
	if err := sqlx.SelectContext(ctx, ex, &rows, ex.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying alerts")
	}
	alerts := make([]alert.Alert, 0, len(rows))
	for _, row := range rows {
		alerts = append(alerts, row.toAlert())
	}
	return alerts, nil
}

func (repo alertRepository) GetAlert(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) (alert.Alert, error) {
	ex := repo.getExec(exec)
	q := "SELECT " + alertColumns + " FROM alerts WHERE owner_id = ? AND id = ?"
	var row alertRow
	if err := sqlx.GetContext(ctx, ex, &row, ex.Rebind(q), ownerID, id); err != nil {
		return alert.Alert{}, trapNoRowsErr(err, alert.ErrNotFound, "getting alert")
	}
	return row.toAlert(), nil
}

func (repo alertRepository) CreateAlert(ctx context.Context, a alert.Alert, exec ...core.DBExecutor) (alert.Alert, error) {
	row := alertRow{
		ID:        uuid.New().String(),
		OwnerID:   a.OwnerID,
		Type:      a.Type,
		Message:   a.Message,
		Timestamp: a.Timestamp.UTC(),
		IsRead:    a.IsRead,
	}
	q := `INSERT INTO alerts (` + alertColumns + `) VALUES (:id, :owner_id, :type, :message, :timestamp, :is_read)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row); err != nil {
		return alert.Alert{}, errors.Wrap(err, "inserting alert")
	}
	return row.toAlert(), nil
}

func (repo alertRepository) MarkAlertRead(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) error {
	ex := repo.getExec(exec)
	res, err := ex.ExecContext(ctx, ex.Rebind("UPDATE alerts SET is_read = ? WHERE owner_id = ? AND id = ?"), true, ownerID, id)
	if err != nil {
		return errors.Wrap(err, "marking alert read")
	}
	return checkAffected(res, alert.ErrNotFound)
}

func (repo alertRepository) MarkAllAlertsRead(ctx context.Context, ownerID string, exec ...core.DBExecutor) ([]string, error) {
	ex := repo.getExec(exec)
	var ids []string
	q := "SELECT id FROM alerts WHERE owner_id = ? AND is_read = ? ORDER BY timestamp DESC"
	if err := sqlx.SelectContext(ctx, ex, &ids, ex.Rebind(q), ownerID, false); err != nil {
		return nil, errors.Wrap(err, "querying unread alerts")
	}
	if len(ids) == 0 {
		return ids, nil
	}

	q, args, err := sqlx.In("UPDATE alerts SET is_read = ? WHERE id IN (?)", true, ids)
	if err != nil {
		return nil, errors.Wrap(err, "building update query")
	}
	if _, err = ex.ExecContext(ctx, ex.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "marking alerts read")
	}
	return ids, nil
}
