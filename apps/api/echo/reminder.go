package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core/reminder"
)

type reminderApi struct {
	svc      reminder.Service
	validate *validator.Validate
	location *time.Location
}

func registerReminderAPI(g *echo.Group, deps ServerDeps) {
	api := reminderApi{
		svc:      deps.ReminderSvc,
		validate: deps.Validate,
		location: deps.Conf.Monitor.Location(),
	}

	g.GET("", api.query)
	g.POST("", api.create, caretakerOnly)
	g.GET("/due", api.due)
	g.DELETE("/:id", api.destroy, caretakerOnly)
	g.POST("/:id/complete", api.complete)
	g.POST("/:id/notified", api.notified)
}

func (api *reminderApi) query(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	reminders, err := api.svc.List(ctx.Request().Context(), owner)
	if err != nil {
		return errors.Wrap(err, "listing reminders")
	}
	if reminders == nil {
		reminders = []reminder.Reminder{}
	}
	return ctx.JSON(http.StatusOK, reminders)
}

func (api *reminderApi) create(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	var data reminder.NewReminder
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReminder")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	r, err := api.svc.Create(ctx.Request().Context(), owner, data)
	if err != nil {
		return errors.Wrap(err, "creating reminder")
	}
	return ctx.JSON(http.StatusCreated, r)
}

// due answers with the first due reminder, or 204 when none is due.
func (api *reminderApi) due(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	r, ok, err := api.svc.Due(ctx.Request().Context(), owner, time.Now().In(api.location))
	if err != nil {
		return errors.Wrap(err, "finding due reminder")
	}
	if !ok {
		return ctx.NoContent(http.StatusNoContent)
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *reminderApi) complete(ctx echo.Context) error {
	return api.mark(ctx, api.svc.MarkCompleted)
}

func (api *reminderApi) notified(ctx echo.Context) error {
	return api.mark(ctx, api.svc.MarkNotified)
}

func (api *reminderApi) mark(ctx echo.Context, fn func(ctx context.Context, ownerID, id string) (reminder.Reminder, error)) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	r, err := fn(ctx.Request().Context(), owner, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "updating reminder")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *reminderApi) destroy(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), owner, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting reminder")
	}
	return ctx.NoContent(http.StatusNoContent)
}
