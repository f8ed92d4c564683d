package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core/face"
)

type faceApi struct {
	svc      face.Service
	validate *validator.Validate
}

func registerFaceAPI(g *echo.Group, deps ServerDeps) {
	api := faceApi{svc: deps.FaceSvc, validate: deps.Validate}

	g.GET("", api.query)
	g.POST("", api.create)
	g.GET("/:id", api.retrieve)
	g.PUT("/:id", api.update, caretakerOnly)
	g.DELETE("/:id", api.destroy, caretakerOnly)
}

func (api *faceApi) query(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	faces, err := api.svc.List(ctx.Request().Context(), owner)
	if err != nil {
		return errors.Wrap(err, "listing faces")
	}
	if faces == nil {
		faces = []face.Face{}
	}
	return ctx.JSON(http.StatusOK, faces)
}

func (api *faceApi) create(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	var data face.NewFace
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewFace")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	f, err := api.svc.Create(ctx.Request().Context(), owner, data)
	if err != nil {
		return errors.Wrap(err, "creating face")
	}
	return ctx.JSON(http.StatusCreated, f)
}

func (api *faceApi) retrieve(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	f, err := api.svc.Get(ctx.Request().Context(), owner, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting face")
	}
	return ctx.JSON(http.StatusOK, f)
}

func (api *faceApi) update(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	var data face.UpdateFace
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateFace")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	f, err := api.svc.Update(ctx.Request().Context(), owner, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating face")
	}
	return ctx.JSON(http.StatusOK, f)
}

func (api *faceApi) destroy(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), owner, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting face")
	}
	return ctx.NoContent(http.StatusNoContent)
}
