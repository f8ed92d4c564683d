package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/face"
)

const faceColumns = "id, owner_id, name, relation, image_url, notes, created_at"

type faceRow struct {
	ID        string    `db:"id"`
	OwnerID   string    `db:"owner_id"`
	Name      string    `db:"name"`
	Relation  string    `db:"relation"`
	ImageURL  string    `db:"image_url"`
	Notes     string    `db:"notes"`
	CreatedAt time.Time `db:"created_at"`
}

func (row faceRow) toFace() face.Face {
	return face.Face{
		ID:        row.ID,
		OwnerID:   row.OwnerID,
		Name:      row.Name,
		Relation:  row.Relation,
		ImageURL:  row.ImageURL,
		Notes:     row.Notes,
		CreatedAt: row.CreatedAt.UTC(),
	}
}

func newFaceRow(f face.Face) faceRow {
	return faceRow{
		ID:        f.ID,
		OwnerID:   f.OwnerID,
		Name:      f.Name,
		Relation:  f.Relation,
		ImageURL:  f.ImageURL,
		Notes:     f.Notes,
		CreatedAt: f.CreatedAt.UTC(),
	}
}

type faceRepository struct {
	baseRepository
}

var _ face.Repository = (*faceRepository)(nil)

func NewFaceRepository(exec core.DBExecutor) *faceRepository {
	return &faceRepository{baseRepository{exec: exec}}
}

func (repo faceRepository) QueryFaces(ctx context.Context, ownerID string, exec ...core.DBExecutor) ([]face.Face, error) {
	ex := repo.getExec(exec)
	q := "SELECT " + faceColumns + " FROM faces WHERE owner_id = ? ORDER BY created_at ASC"
	var rows []faceRow
	if err := sqlx.SelectContext(ctx, ex, &rows, ex.Rebind(q), ownerID); err != nil {
		return nil, errors.Wrap(err, "querying faces")
	}
	faces := make([]face.Face, 0, len(rows))
	for _, row := range rows {
		faces = append(faces, row.toFace())
	}
	return faces, nil
}

func (repo faceRepository) GetFace(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) (face.Face, error) {
	ex := repo.getExec(exec)
	q := "SELECT " + faceColumns + " FROM faces WHERE owner_id = ? AND id = ?"
	var row faceRow
	if err := sqlx.GetContext(ctx, ex, &row, ex.Rebind(q), ownerID, id); err != nil {
		return face.Face{}, trapNoRowsErr(err, face.ErrNotFound, "getting face")
	}
	return row.toFace(), nil
}

func (repo faceRepository) CreateFace(ctx context.Context, f face.Face, exec ...core.DBExecutor) (face.Face, error) {
	f.ID = uuid.New().String()
	q := `INSERT INTO faces (` + faceColumns + `)
		VALUES (:id, :owner_id, :name, :relation, :image_url, :notes, :created_at)`
	row := newFaceRow(f)
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row); err != nil {
		return face.Face{}, errors.Wrap(err, "inserting face")
	}
	return row.toFace(), nil
}

func (repo faceRepository) UpdateFace(ctx context.Context, f face.Face, exec ...core.DBExecutor) (face.Face, error) {
	q := `UPDATE faces SET name = :name, relation = :relation, image_url = :image_url, notes = :notes
		WHERE id = :id AND owner_id = :owner_id`
	row := newFaceRow(f)
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row)
	if err != nil {
		return face.Face{}, errors.Wrap(err, "updating face")
	}
	if err = checkAffected(res, face.ErrNotFound); err != nil {
		return face.Face{}, err
	}
	return row.toFace(), nil
}

func (repo faceRepository) DeleteFace(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) error {
	ex := repo.getExec(exec)
	res, err := ex.ExecContext(ctx, ex.Rebind("DELETE FROM faces WHERE owner_id = ? AND id = ?"), ownerID, id)
	if err != nil {
		return errors.Wrap(err, "deleting face")
	}
	return checkAffected(res, face.ErrNotFound)
}
