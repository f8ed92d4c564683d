// Package geo tracks where the patient is and which safe zones they left.
package geo

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/alert"
	"github.com/lucidiacare/lucidia/core/event"
)

var (
	ErrNotFound         = errors.New("safe zone not found")
	ErrLocationNotFound = errors.New("location not found")
)

type Location struct {
	PatientID string    `json:"patient_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"` // UTC
}

func (l Location) Point() Point { return Point{Lat: l.Lat, Lng: l.Lng} }

type SafeZone struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Radius    float64   `json:"radius"` // meters
	IsOutside bool      `json:"is_outside"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

func (z SafeZone) Center() Point { return Point{Lat: z.Lat, Lng: z.Lng} }

// ExitMessage is the message of the alert raised when the patient leaves z.
func (z SafeZone) ExitMessage() string {
	return fmt.Sprintf(`Left "%s" safe zone.`, z.Name)
}

type ZoneStatus struct {
	Zone      SafeZone `json:"zone"`
	Distance  float64  `json:"distance"` // meters from the center
	IsOutside bool     `json:"is_outside"`
}

type Status struct {
	Location *Location   `json:"location"`
	Zones    []ZoneStatus `json:"zones"`
}

type UpdateLocation struct {
	Lat *float64 `json:"lat" validate:"required,min=-90,max=90"`
	Lng *float64 `json:"lng" validate:"required,min=-180,max=180"`
}

func (ul *UpdateLocation) Validate(validate *validator.Validate) error { return validate.Struct(ul) }

func (ul UpdateLocation) Point() Point { return Point{Lat: *ul.Lat, Lng: *ul.Lng} }

type NewSafeZone struct {
	Name   string   `json:"name" validate:"notblank"`
	Lat    *float64 `json:"lat" validate:"required,min=-90,max=90"`
	Lng    *float64 `json:"lng" validate:"required,min=-180,max=180"`
	Radius float64  `json:"radius" validate:"gt=0"`
}

func (nz *NewSafeZone) Validate(validate *validator.Validate) error {
	nz.Name = core.CleanString(nz.Name)
	return validate.Struct(nz)
}

// UpdateSafeZone holds the fields to change; nil fields are left as is.
type UpdateSafeZone struct {
	Name   *string  `json:"name" validate:"omitempty,notblank"`
	Lat    *float64 `json:"lat" validate:"omitempty,min=-90,max=90"`
	Lng    *float64 `json:"lng" validate:"omitempty,min=-180,max=180"`
	Radius *float64 `json:"radius" validate:"omitempty,gt=0"`
}

func (uz *UpdateSafeZone) Validate(validate *validator.Validate) error {
	if uz.Name != nil {
		*uz.Name = core.CleanString(*uz.Name)
	}
	return validate.Struct(uz)
}

func (uz UpdateSafeZone) apply(z *SafeZone) {
	if uz.Name != nil {
		z.Name = *uz.Name
	}
	if uz.Lat != nil {
		z.Lat = *uz.Lat
	}
	if uz.Lng != nil {
		z.Lng = *uz.Lng
	}
	if uz.Radius != nil {
		z.Radius = *uz.Radius
	}
}

type (
	Repository interface {
		GetLocation(ctx context.Context, patientID string, exec ...core.DBExecutor) (Location, error)
		QueryLocations(ctx context.Context, exec ...core.DBExecutor) ([]Location, error)
		UpsertLocation(ctx context.Context, loc Location, exec ...core.DBExecutor) (Location, error)

		QuerySafeZones(ctx context.Context, ownerID string, exec ...core.DBExecutor) ([]SafeZone, error)
		GetSafeZone(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) (SafeZone, error)
		CreateSafeZone(ctx context.Context, z SafeZone, exec ...core.DBExecutor) (SafeZone, error)
		UpdateSafeZone(ctx context.Context, z SafeZone, exec ...core.DBExecutor) (SafeZone, error)
		DeleteSafeZone(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) error
		// SetZoneOutside flips the zone's outside flag and reports whether it changed.
		// Concurrent callers racing on the same transition see exactly one change.
		SetZoneOutside(ctx context.Context, id string, outside bool, exec ...core.DBExecutor) (bool, error)
	}

	Service interface {
		Location(ctx context.Context, patientID string) (Location, error)
		Locations(ctx context.Context) ([]Location, error)
		// UpdateLocation stores the patient's position and runs breach detection on their safe zones.
		UpdateLocation(ctx context.Context, patientID string, p Point) (Location, error)
		Status(ctx context.Context, patientID string) (Status, error)

		ListSafeZones(ctx context.Context, ownerID string) ([]SafeZone, error)
		CreateSafeZone(ctx context.Context, ownerID string, nz NewSafeZone) (SafeZone, error)
		UpdateSafeZone(ctx context.Context, ownerID, id string, uz UpdateSafeZone) (SafeZone, error)
		DeleteSafeZone(ctx context.Context, ownerID, id string) error
	}

	service struct {
		repo      Repository
		alertSvc  alert.Service
		publisher event.Publisher
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, alertSvc alert.Service, publisher event.Publisher) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(alertSvc, "alertSvc"),
		vala.IsNotNil(publisher, "publisher"),
	).CheckAndPanic()
	return &service{repo: repo, alertSvc: alertSvc, publisher: publisher}
}

func (svc *service) Location(ctx context.Context, patientID string) (Location, error) {
	return svc.repo.GetLocation(ctx, patientID)
}

func (svc *service) Locations(ctx context.Context) ([]Location, error) {
	return svc.repo.QueryLocations(ctx)
}

func (svc *service) UpdateLocation(ctx context.Context, patientID string, p Point) (Location, error) {
	loc, err := svc.repo.UpsertLocation(ctx, Location{
		PatientID: patientID,
		Lat:       p.Lat,
		Lng:       p.Lng,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return Location{}, errors.Wrap(err, "saving location")
	}
	svc.publisher.Publish(ctx, event.New(event.CollectionLocation, event.OpUpdated, patientID, patientID, loc))

	if err = svc.detectBreaches(ctx, loc); err != nil {
		return loc, errors.Wrap(err, "detecting breaches")
	}
	return loc, nil
}

// detectBreaches raises one SafeZoneExit alert per inside→outside transition.
// Returning inside re-arms the zone.
func (svc *service) detectBreaches(ctx context.Context, loc Location) error {
	zones, err := svc.repo.QuerySafeZones(ctx, loc.PatientID)
	if err != nil {
		return errors.Wrap(err, "querying safe zones")
	}

	for _, zone := range zones {
		changed, err := svc.checkZone(ctx, loc, &zone)
		if err != nil {
			return err
		}
		if changed {
			svc.publisher.Publish(ctx, event.New(event.CollectionSafeZones, event.OpUpdated, zone.OwnerID, zone.ID, zone))
		}
	}
	return nil
}

// checkZone moves zone to the side of its boundary loc is on, raising an alert on exit.
// It reports whether this call made the transition.
func (svc *service) checkZone(ctx context.Context, loc Location, zone *SafeZone) (bool, error) {
	outside := IsOutsideZone(loc.Point(), *zone)
	if outside == zone.IsOutside {
		return false, nil
	}
	changed, err := svc.repo.SetZoneOutside(ctx, zone.ID, outside)
	if err != nil {
		return false, errors.Wrap(err, "updating safe zone state")
	}
	// another worker may have made the transition first
	zone.IsOutside = outside
	if !changed {
		return false, nil
	}

	if outside {
		if _, err = svc.alertSvc.Raise(ctx, loc.PatientID, alert.TypeSafeZoneExit, zone.ExitMessage()); err != nil {
			return true, errors.Wrap(err, "raising safe zone alert")
		}
	}
	return true, nil
}

func (svc *service) Status(ctx context.Context, patientID string) (Status, error) {
	zones, err := svc.repo.QuerySafeZones(ctx, patientID)
	if err != nil {
		return Status{}, errors.Wrap(err, "querying safe zones")
	}

	status := Status{Zones: make([]ZoneStatus, 0, len(zones))}
	loc, err := svc.repo.GetLocation(ctx, patientID)
	switch {
	case err == nil:
		status.Location = &loc
	case errors.Cause(err) != ErrLocationNotFound:
		return Status{}, errors.Wrap(err, "getting location")
	}

	for _, zone := range zones {
		zs := ZoneStatus{Zone: zone}
		if status.Location != nil {
			zs.Distance = HaversineDistance(loc.Point(), zone.Center())
			zs.IsOutside = zs.Distance > zone.Radius
		}
		status.Zones = append(status.Zones, zs)
	}
	return status, nil
}

func (svc *service) ListSafeZones(ctx context.Context, ownerID string) ([]SafeZone, error) {
	return svc.repo.QuerySafeZones(ctx, ownerID)
}

func (svc *service) CreateSafeZone(ctx context.Context, ownerID string, nz NewSafeZone) (SafeZone, error) {
	zone := SafeZone{
		OwnerID:   ownerID,
		Name:      nz.Name,
		Lat:       *nz.Lat,
		Lng:       *nz.Lng,
		Radius:    nz.Radius,
		CreatedAt: time.Now().UTC(),
	}
	zone, err := svc.repo.CreateSafeZone(ctx, zone)
	if err != nil {
		return SafeZone{}, errors.Wrap(err, "creating safe zone")
	}
	svc.publisher.Publish(ctx, event.New(event.CollectionSafeZones, event.OpCreated, ownerID, zone.ID, zone))
	return zone, nil
}

func (svc *service) UpdateSafeZone(ctx context.Context, ownerID, id string, uz UpdateSafeZone) (SafeZone, error) {
	zone, err := svc.repo.GetSafeZone(ctx, ownerID, id)
	if err != nil {
		return SafeZone{}, err
	}
	uz.apply(&zone)
	if zone, err = svc.repo.UpdateSafeZone(ctx, zone); err != nil {
		return SafeZone{}, errors.Wrap(err, "updating safe zone")
	}

	// a moved or resized zone may now hold the patient on its other side
	loc, err := svc.repo.GetLocation(ctx, ownerID)
	switch {
	case err == nil:
		if _, err = svc.checkZone(ctx, loc, &zone); err != nil {
			return zone, err
		}
	case errors.Cause(err) != ErrLocationNotFound:
		return zone, errors.Wrap(err, "getting location")
	}
	svc.publisher.Publish(ctx, event.New(event.CollectionSafeZones, event.OpUpdated, ownerID, zone.ID, zone))
	return zone, nil
}

func (svc *service) DeleteSafeZone(ctx context.Context, ownerID, id string) error {
	if err := svc.repo.DeleteSafeZone(ctx, ownerID, id); err != nil {
		return err
	}
	svc.publisher.Publish(ctx, event.New(event.CollectionSafeZones, event.OpDeleted, ownerID, id, nil))
	return nil
}
