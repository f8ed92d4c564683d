package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core/memory"
)

type memoryApi struct {
	svc      memory.Service
	validate *validator.Validate
}

func registerMemoryAPI(g *echo.Group, deps ServerDeps) {
	api := memoryApi{svc: deps.MemorySvc, validate: deps.Validate}

	g.GET("", api.query)
	g.POST("", api.create, caretakerOnly)
	g.GET("/:id", api.retrieve)
	g.PUT("/:id", api.update, caretakerOnly)
	g.DELETE("/:id", api.destroy, caretakerOnly)
}

func (api *memoryApi) query(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	memories, err := api.svc.List(ctx.Request().Context(), owner, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "listing memories")
	}
	if memories == nil {
		memories = []memory.Memory{}
	}
	return ctx.JSON(http.StatusOK, memories)
}

func (api *memoryApi) create(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	var data memory.NewMemory
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMemory")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	m, err := api.svc.Create(ctx.Request().Context(), owner, data)
	if err != nil {
		return errors.Wrap(err, "creating memory")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *memoryApi) retrieve(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	m, err := api.svc.Get(ctx.Request().Context(), owner, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting memory")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *memoryApi) update(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	var data memory.UpdateMemory
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateMemory")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	m, err := api.svc.Update(ctx.Request().Context(), owner, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating memory")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *memoryApi) destroy(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), owner, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting memory")
	}
	return ctx.NoContent(http.StatusNoContent)
}
