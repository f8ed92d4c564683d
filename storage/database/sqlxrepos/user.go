package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/user"
)

const userColumns = "id, name, email, role, patient_id, patient_code, is_active, password_hash, created_at, updated_at, last_login"

type userRow struct {
	ID           string      `db:"id"`
	Name         string      `db:"name"`
	Email        string      `db:"email"`
	Role         string      `db:"role"`
	PatientID    null.String `db:"patient_id"`
	PatientCode  null.String `db:"patient_code"`
	IsActive     bool        `db:"is_active"`
	PasswordHash null.Bytes  `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

type userRepository struct {
	baseRepository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{baseRepository{exec: exec}}
}

func (repo userRepository) toRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Email:        usr.Email,
		Role:         usr.Role,
		PatientID:    null.NewString(usr.PatientID, usr.PatientID != ""),
		PatientCode:  null.NewString(usr.PatientCode, usr.PatientCode != ""),
		IsActive:     usr.IsActive,
		PasswordHash: null.NewBytes(usr.PasswordHash, len(usr.PasswordHash) > 0),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) fromRow(row userRow) user.User {
	usr := user.User{
		ID:           row.ID,
		Name:         row.Name,
		Email:        row.Email,
		Role:         row.Role,
		PatientID:    row.PatientID.String,
		PatientCode:  row.PatientCode.String,
		IsActive:     row.IsActive,
		PasswordHash: row.PasswordHash.Bytes,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if row.LastLogin.Valid {
		usr.LastLogin = row.LastLogin.Time.UTC()
	}
	return usr
}

func (repo userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	q := "SELECT COUNT(*) FROM users WHERE email = ?"
	args := []interface{}{strings.ToLower(email)}
	for _, u := range excludedUsers {
		q += " AND id <> ?"
		args = append(args, u.ID)
	}

	ex := repo.getExec(exec)
	var count int
	if err := sqlx.GetContext(ctx, ex, &count, ex.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if count > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) PatientCodeExists(ctx context.Context, code string, exec ...core.DBExecutor) (bool, error) {
	ex := repo.getExec(exec)
	var count int
	if err := sqlx.GetContext(ctx, ex, &count, ex.Rebind("SELECT COUNT(*) FROM users WHERE patient_code = ?"), code); err != nil {
		return false, errors.Wrap(err, "checking patient code")
	}
	return count > 0, nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	ex := repo.getExec(exec)
	q := `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :name, :email, :role, :patient_id, :patient_code, :is_active, :password_hash, :created_at, :updated_at, :last_login)`
	row := repo.toRow(usr)
	if _, err := sqlx.NamedExecContext(ctx, ex, q, row); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, exec ...core.DBExecutor) ([]user.User, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter != nil {
		if filter.Role != "" {
			where = append(where, "role = ?")
			args = append(args, filter.Role)
		}
		if filter.PatientID != "" {
			where = append(where, "patient_id = ?")
			args = append(args, filter.PatientID)
		}
		if filter.IsActive != nil {
			where = append(where, "is_active = ?")
			args = append(args, *filter.IsActive)
		}
	}
	q := "SELECT " + userColumns + " FROM users"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at ASC"

	ex := repo.getExec(exec)
	var rows []userRow
	if err := sqlx.SelectContext(ctx, ex, &rows, ex.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.fromRow(row))
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	q := "SELECT " + userColumns + " FROM users WHERE "
	var arg string
	switch {
	case filter.ID != "":
		q += "id = ?"
		arg = filter.ID
	case filter.Email != "":
		q += "email = ?"
		arg = strings.ToLower(filter.Email)
	case filter.PatientCode != "":
		q += "patient_code = ?"
		arg = strings.ToUpper(filter.PatientCode)
	default:
		return user.User{}, user.ErrNotFound
	}

	ex := repo.getExec(exec)
	var row userRow
	if err := sqlx.GetContext(ctx, ex, &row, ex.Rebind(q), arg); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	ex := repo.getExec(exec)
	q := `UPDATE users SET
		name = :name, email = :email, role = :role, patient_id = :patient_id, patient_code = :patient_code,
		is_active = :is_active, password_hash = :password_hash, updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`
	row := repo.toRow(usr)
	res, err := sqlx.NamedExecContext(ctx, ex, q, row)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if err = checkAffected(res, user.ErrNotFound); err != nil {
		return user.User{}, err
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In("DELETE FROM users WHERE id IN (?)", ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	ex := repo.getExec(exec)
	_, err = ex.ExecContext(ctx, ex.Rebind(q), args...)
	return errors.Wrap(err, "deleting users")
}
