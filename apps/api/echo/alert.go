package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core/alert"
)

type alertApi struct {
	svc alert.Service
}

func registerAlertAPI(g *echo.Group, deps ServerDeps) {
	api := alertApi{svc: deps.AlertSvc}

	g.GET("", api.query)
	g.POST("/sos", api.sos, patientOnly)
	g.POST("/read-all", api.readAll, caretakerOnly)
	g.POST("/:id/read", api.read, caretakerOnly)
}

func (api *alertApi) query(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	alerts, err := api.svc.List(ctx.Request().Context(), owner, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "listing alerts")
	}
	if alerts == nil {
		alerts = []alert.Alert{}
	}
	return ctx.JSON(http.StatusOK, alerts)
}

func (api *alertApi) sos(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	a, err := api.svc.TriggerSOS(ctx.Request().Context(), owner)
	if err != nil {
		return errors.Wrap(err, "triggering SOS")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *alertApi) read(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	a, err := api.svc.MarkRead(ctx.Request().Context(), owner, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "marking alert as read")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *alertApi) readAll(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.MarkAllRead(ctx.Request().Context(), owner)
	if err != nil {
		return errors.Wrap(err, "marking alerts as read")
	}
	return ctx.JSON(http.StatusOK, ReadAllResponse{Updated: n})
}

type ReadAllResponse struct {
	Updated int `json:"updated"`
}
