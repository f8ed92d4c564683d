package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core/alert"
	"github.com/lucidiacare/lucidia/core/geo"
	"github.com/lucidiacare/lucidia/core/reminder"
)

type dashboardApi struct {
	alertSvc    alert.Service
	reminderSvc reminder.Service
	geoSvc      geo.Service
}

func registerDashboardAPI(g *echo.Group, deps ServerDeps) {
	api := dashboardApi{alertSvc: deps.AlertSvc, reminderSvc: deps.ReminderSvc, geoSvc: deps.GeoSvc}
	g.GET("", api.retrieve)
}

type Dashboard struct {
	UnreadAlerts     []alert.Alert       `json:"unread_alerts"`
	PendingReminders []reminder.Reminder `json:"pending_reminders"`
	Location         *geo.Location       `json:"location"`
}

func (api *dashboardApi) retrieve(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	c := ctx.Request().Context()

	dash := Dashboard{UnreadAlerts: []alert.Alert{}, PendingReminders: []reminder.Reminder{}}
	alerts, err := api.alertSvc.Unread(c, owner)
	if err != nil {
		return errors.Wrap(err, "listing unread alerts")
	}
	if alerts != nil {
		dash.UnreadAlerts = alerts
	}
	reminders, err := api.reminderSvc.Pending(c, owner)
	if err != nil {
		return errors.Wrap(err, "listing pending reminders")
	}
	if reminders != nil {
		dash.PendingReminders = reminders
	}

	loc, err := api.geoSvc.Location(c, owner)
	switch {
	case err == nil:
		dash.Location = &loc
	case errors.Cause(err) != geo.ErrLocationNotFound:
		return errors.Wrap(err, "getting location")
	}
	return ctx.JSON(http.StatusOK, dash)
}
