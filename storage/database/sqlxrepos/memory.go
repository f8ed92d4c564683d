package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/memory"
)

const memoryColumns = "id, owner_id, title, description, image_url, date, tags, created_at"

var memoryOrderFields = map[string]bool{"date": true, "created_at": true, "title": true}

type memoryRow struct {
	ID          string     `db:"id"`
	OwnerID     string     `db:"owner_id"`
	Title       string     `db:"title"`
	Description string     `db:"description"`
	ImageURL    string     `db:"image_url"`
	Date        string     `db:"date"`
	Tags        StringList `db:"tags"`
	CreatedAt   time.Time  `db:"created_at"`
}

func (row memoryRow) toMemory() memory.Memory {
	tags := []string(row.Tags)
	if tags == nil {
		tags = []string{}
	}
	return memory.Memory{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		Title:       row.Title,
		Description: row.Description,
		ImageURL:    row.ImageURL,
		Date:        row.Date,
		Tags:        tags,
		CreatedAt:   row.CreatedAt.UTC(),
	}
}

func newMemoryRow(m memory.Memory) memoryRow {
	return memoryRow{
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		Title:       m.Title,
		Description: m.Description,
		ImageURL:    m.ImageURL,
		Date:        m.Date,
		Tags:        StringList(m.Tags),
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

type memoryRepository struct {
	baseRepository
}

var _ memory.Repository = (*memoryRepository)(nil)

func NewMemoryRepository(exec core.DBExecutor) *memoryRepository {
	return &memoryRepository{baseRepository{exec: exec}}
}

func (repo memoryRepository) QueryMemories(ctx context.Context, ownerID string, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]memory.Memory, error) {
	ex := repo.getExec(exec)
	q := "SELECT " + memoryColumns + " FROM memories WHERE owner_id = ?" +
		orderBy(ordering, memoryOrderFields, memory.DefaultOrdering)
	var rows []memoryRow
	if err := sqlx.SelectContext(ctx, ex, &rows, ex.Rebind(q), ownerID); err != nil {
		return nil, errors.Wrap(err, "querying memories")
	}
	memories := make([]memory.Memory, 0, len(rows))
	for _, row := range rows {
		memories = append(memories, row.toMemory())
	}
	return memories, nil
}

func (repo memoryRepository) GetMemory(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) (memory.Memory, error) {
	ex := repo.getExec(exec)
	q := "SELECT " + memoryColumns + " FROM memories WHERE owner_id = ? AND id = ?"
	var row memoryRow
	if err := sqlx.GetContext(ctx, ex, &row, ex.Rebind(q), ownerID, id); err != nil {
		return memory.Memory{}, trapNoRowsErr(err, memory.ErrNotFound, "getting memory")
	}
	return row.toMemory(), nil
}

func (repo memoryRepository) CreateMemory(ctx context.Context, m memory.Memory, exec ...core.DBExecutor) (memory.Memory, error) {
	m.ID = uuid.New().String()
	q := `INSERT INTO memories (` + memoryColumns + `)
		VALUES (:id, :owner_id, :title, :description, :image_url, :date, :tags, :created_at)`
	row := newMemoryRow(m)
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row); err != nil {
		return memory.Memory{}, errors.Wrap(err, "inserting memory")
	}
	return row.toMemory(), nil
}

func (repo memoryRepository) UpdateMemory(ctx context.Context, m memory.Memory, exec ...core.DBExecutor) (memory.Memory, error) {
	q := `UPDATE memories SET title = :title, description = :description, image_url = :image_url, date = :date, tags = :tags
		WHERE id = :id AND owner_id = :owner_id`
	row := newMemoryRow(m)
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row)
	if err != nil {
		return memory.Memory{}, errors.Wrap(err, "updating memory")
	}
	if err = checkAffected(res, memory.ErrNotFound); err != nil {
		return memory.Memory{}, err
	}
	return row.toMemory(), nil
}

func (repo memoryRepository) DeleteMemory(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) error {
	ex := repo.getExec(exec)
	res, err := ex.ExecContext(ctx, ex.Rebind("DELETE FROM memories WHERE owner_id = ? AND id = ?"), ownerID, id)
	if err != nil {
		return errors.Wrap(err, "deleting memory")
	}
	return checkAffected(res, memory.ErrNotFound)
}
