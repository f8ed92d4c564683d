package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/geo"
)

const (
	locationColumns = "patient_id, lat, lng, timestamp"
	safeZoneColumns = "id, owner_id, name, lat, lng, radius, is_outside, created_at"
)

type locationRow struct {
	PatientID string    `db:"patient_id"`
	Lat       float64   `db:"lat"`
	Lng       float64   `db:"lng"`
	Timestamp time.Time `db:"timestamp"`
}

func (row locationRow) toLocation() geo.Location {
	return geo.Location{PatientID: row.PatientID, Lat: row.Lat, Lng: row.Lng, Timestamp: row.Timestamp.UTC()}
}

type safeZoneRow struct {
	ID        string    `db:"id"`
	OwnerID   string    `db:"owner_id"`
	Name      string    `db:"name"`
	Lat       float64   `db:"lat"`
	Lng       float64   `db:"lng"`
	Radius    float64   `db:"radius"`
	IsOutside bool      `db:"is_outside"`
	CreatedAt time.Time `db:"created_at"`
}

func (row safeZoneRow) toSafeZone() geo.SafeZone {
	return geo.SafeZone{
		ID:        row.ID,
		OwnerID:   row.OwnerID,
		Name:      row.Name,
		Lat:       row.Lat,
		Lng:       row.Lng,
		Radius:    row.Radius,
		IsOutside: row.IsOutside,
		CreatedAt: row.CreatedAt.UTC(),
	}
}

func newSafeZoneRow(z geo.SafeZone) safeZoneRow {
	return safeZoneRow{
		ID:        z.ID,
		OwnerID:   z.OwnerID,
		Name:      z.Name,
		Lat:       z.Lat,
		Lng:       z.Lng,
		Radius:    z.Radius,
		IsOutside: z.IsOutside,
		CreatedAt: z.CreatedAt.UTC(),
	}
}

type geoRepository struct {
	baseRepository
}

var _ geo.Repository = (*geoRepository)(nil)

func NewGeoRepository(exec core.DBExecutor) *geoRepository {
	return &geoRepository{baseRepository{exec: exec}}
}

func (repo geoRepository) GetLocation(ctx context.Context, patientID string, exec ...core.DBExecutor) (geo.Location, error) {
	ex := repo.getExec(exec)
	q := "SELECT " + locationColumns + " FROM locations WHERE patient_id = ?"
	var row locationRow
	if err := sqlx.GetContext(ctx, ex, &row, ex.Rebind(q), patientID); err != nil {
		return geo.Location{}, trapNoRowsErr(err, geo.ErrLocationNotFound, "getting location")
	}
	return row.toLocation(), nil
}

func (repo geoRepository) QueryLocations(ctx context.Context, exec ...core.DBExecutor) ([]geo.Location, error) {
	ex := repo.getExec(exec)
	var rows []locationRow
	if err := sqlx.SelectContext(ctx, ex, &rows, "SELECT "+locationColumns+" FROM locations ORDER BY patient_id"); err != nil {
		return nil, errors.Wrap(err, "querying locations")
	}
	locations := make([]geo.Location, 0, len(rows))
	for _, row := range rows {
		locations = append(locations, row.toLocation())
	}
	return locations, nil
}

// UpsertLocation keeps a single location row per patient.
func (repo geoRepository) UpsertLocation(ctx context.Context, loc geo.Location, exec ...core.DBExecutor) (geo.Location, error) {
	row := locationRow{PatientID: loc.PatientID, Lat: loc.Lat, Lng: loc.Lng, Timestamp: loc.Timestamp.UTC()}
	q := `INSERT INTO locations (` + locationColumns + `) VALUES (:patient_id, :lat, :lng, :timestamp)
		ON CONFLICT (patient_id) DO UPDATE SET lat = excluded.lat, lng = excluded.lng, timestamp = excluded.timestamp`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row); err != nil {
		return geo.Location{}, errors.Wrap(err, "upserting location")
	}
	return row.toLocation(), nil
}

func (repo geoRepository) QuerySafeZones(ctx context.Context, ownerID string, exec ...core.DBExecutor) ([]geo.SafeZone, error) {
	ex := repo.getExec(exec)
	q := "SELECT " + safeZoneColumns + " FROM safe_zones WHERE owner_id = ? ORDER BY created_at ASC"
	var rows []safeZoneRow
	if err := sqlx.SelectContext(ctx, ex, &rows, ex.Rebind(q), ownerID); err != nil {
		return nil, errors.Wrap(err, "querying safe zones")
	}
	zones := make([]geo.SafeZone, 0, len(rows))
	for _, row := range rows {
		zones = append(zones, row.toSafeZone())
	}
	return zones, nil
}

func (repo geoRepository) GetSafeZone(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) (geo.SafeZone, error) {
	ex := repo.getExec(exec)
	q := "SELECT " + safeZoneColumns + " FROM safe_zones WHERE owner_id = ? AND id = ?"
	var row safeZoneRow
	if err := sqlx.GetContext(ctx, ex, &row, ex.Rebind(q), ownerID, id); err != nil {
		return geo.SafeZone{}, trapNoRowsErr(err, geo.ErrNotFound, "getting safe zone")
	}
	return row.toSafeZone(), nil
}

func (repo geoRepository) CreateSafeZone(ctx context.Context, z geo.SafeZone, exec ...core.DBExecutor) (geo.SafeZone, error) {
	z.ID = uuid.New().String()
	q := `INSERT INTO safe_zones (` + safeZoneColumns + `)
		VALUES (:id, :owner_id, :name, :lat, :lng, :radius, :is_outside, :created_at)`
	row := newSafeZoneRow(z)
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, row); err != nil {
		return geo.SafeZone{}, errors.Wrap(err, "inserting safe zone")
	}
	return row.toSafeZone(), nil
}

// UpdateSafeZone saves the editable fields of z. is_outside is only ever changed by SetZoneOutside.
func (repo geoRepository) UpdateSafeZone(ctx context.Context, z geo.SafeZone, exec ...core.DBExecutor) (geo.SafeZone, error) {
	ex := repo.getExec(exec)
	q := `UPDATE safe_zones SET name = :name, lat = :lat, lng = :lng, radius = :radius
		WHERE id = :id AND owner_id = :owner_id`
	res, err := sqlx.NamedExecContext(ctx, ex, q, newSafeZoneRow(z))
	if err != nil {
		return geo.SafeZone{}, errors.Wrap(err, "updating safe zone")
	}
	if err = checkAffected(res, geo.ErrNotFound); err != nil {
		return geo.SafeZone{}, err
	}
	return repo.GetSafeZone(ctx, z.OwnerID, z.ID, ex)
}

func (repo geoRepository) DeleteSafeZone(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) error {
	ex := repo.getExec(exec)
	res, err := ex.ExecContext(ctx, ex.Rebind("DELETE FROM safe_zones WHERE owner_id = ? AND id = ?"), ownerID, id)
	if err != nil {
		return errors.Wrap(err, "deleting safe zone")
	}
	return checkAffected(res, geo.ErrNotFound)
}

func (repo geoRepository) SetZoneOutside(ctx context.Context, id string, outside bool, exec ...core.DBExecutor) (bool, error) {
	ex := repo.getExec(exec)
	q := "UPDATE safe_zones SET is_outside = ? WHERE id = ? AND is_outside = ?"
	res, err := ex.ExecContext(ctx, ex.Rebind(q), outside, id, !outside)
	if err != nil {
		return false, errors.Wrap(err, "flipping safe zone state")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "getting affected rows")
	}
	return n > 0, nil
}
