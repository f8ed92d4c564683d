package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core/geo"
)

type gpsApi struct {
	svc      geo.Service
	validate *validator.Validate
}

func registerGPSAPI(g *echo.Group, deps ServerDeps) {
	api := gpsApi{svc: deps.GeoSvc, validate: deps.Validate}

	g.GET("/location", api.location)
	g.PUT("/location", api.updateLocation, patientOnly)
	g.GET("/status", api.status)

	zg := g.Group("/safe-zones")
	zg.GET("", api.querySafeZones)
	zg.POST("", api.createSafeZone, caretakerOnly)
	zg.PUT("/:id", api.updateSafeZone, caretakerOnly)
	zg.DELETE("/:id", api.destroySafeZone, caretakerOnly)
}

func (api *gpsApi) location(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	loc, err := api.svc.Location(ctx.Request().Context(), owner)
	if err != nil {
		return errors.Wrap(err, "getting location")
	}
	return ctx.JSON(http.StatusOK, loc)
}

func (api *gpsApi) updateLocation(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	var data geo.UpdateLocation
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateLocation")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	loc, err := api.svc.UpdateLocation(ctx.Request().Context(), owner, data.Point())
	if err != nil {
		return errors.Wrap(err, "updating location")
	}
	return ctx.JSON(http.StatusOK, loc)
}

func (api *gpsApi) status(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	status, err := api.svc.Status(ctx.Request().Context(), owner)
	if err != nil {
		return errors.Wrap(err, "getting gps status")
	}
	return ctx.JSON(http.StatusOK, status)
}

func (api *gpsApi) querySafeZones(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	zones, err := api.svc.ListSafeZones(ctx.Request().Context(), owner)
	if err != nil {
		return errors.Wrap(err, "listing safe zones")
	}
	if zones == nil {
		zones = []geo.SafeZone{}
	}
	return ctx.JSON(http.StatusOK, zones)
}

func (api *gpsApi) createSafeZone(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	var data geo.NewSafeZone
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSafeZone")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	zone, err := api.svc.CreateSafeZone(ctx.Request().Context(), owner, data)
	if err != nil {
		return errors.Wrap(err, "creating safe zone")
	}
	return ctx.JSON(http.StatusCreated, zone)
}

func (api *gpsApi) updateSafeZone(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	var data geo.UpdateSafeZone
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSafeZone")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	zone, err := api.svc.UpdateSafeZone(ctx.Request().Context(), owner, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating safe zone")
	}
	return ctx.JSON(http.StatusOK, zone)
}

func (api *gpsApi) destroySafeZone(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteSafeZone(ctx.Request().Context(), owner, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting safe zone")
	}
	return ctx.NoContent(http.StatusNoContent)
}
