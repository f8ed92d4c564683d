package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core/settings"
)

type settingsApi struct {
	svc settings.Service
}

func registerSettingsAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := settingsApi{svc: deps.SettingsSvc}

	sg := g.Group("/settings", jwt)
	sg.GET("", api.retrieve)
	sg.PUT("", api.update)
	sg.POST("/push-notifications/toggle", api.togglePushNotifications)
	sg.POST("/email-summary/toggle", api.toggleEmailSummary)
}

func (api *settingsApi) retrieve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	s, err := api.svc.Get(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "getting settings")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *settingsApi) update(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	var data settings.UpdateSettings
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSettings")
	}
	s, err := api.svc.Update(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "updating settings")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *settingsApi) togglePushNotifications(ctx echo.Context) error {
	return api.toggle(ctx, api.svc.TogglePushNotifications)
}

func (api *settingsApi) toggleEmailSummary(ctx echo.Context) error {
	return api.toggle(ctx, api.svc.ToggleEmailSummary)
}

func (api *settingsApi) toggle(ctx echo.Context, fn func(ctx context.Context, userID string) (settings.Settings, error)) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	s, err := fn(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "toggling settings")
	}
	return ctx.JSON(http.StatusOK, s)
}
