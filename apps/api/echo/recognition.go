package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/recognition"
	"github.com/lucidiacare/lucidia/services/metrics"
)

type recognitionApi struct {
	svc      recognition.Service
	logger   core.Logger
	metrics  *metrics.Metrics
	validate *validator.Validate
}

func registerRecognitionAPI(g *echo.Group, deps ServerDeps) {
	api := recognitionApi{
		svc:      deps.RecognitionSvc,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		validate: deps.Validate,
	}

	g.POST("/identify", api.identify, patientOnly)
	g.POST("/remember", api.remember, patientOnly)
	g.POST("/reset", api.reset, patientOnly)
}

func (api *recognitionApi) bind(ctx echo.Context) (string, recognition.CaptureRequest, error) {
	var data recognition.CaptureRequest
	owner, err := getContextTarget(ctx)
	if err != nil {
		return "", data, err
	}
	if err = ctx.Bind(&data); err != nil {
		return "", data, errors.Wrap(err, "binding to CaptureRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return "", data, err
	}
	return owner, data, nil
}

func (api *recognitionApi) count(status string) {
	if api.metrics != nil {
		api.metrics.Recognitions.WithLabelValues(status).Inc()
	}
}

func (api *recognitionApi) identify(ctx echo.Context) error {
	owner, data, err := api.bind(ctx)
	if err != nil {
		return err
	}

	res, err := api.svc.Recognize(ctx.Request().Context(), owner, data.Image)
	if err != nil {
		if res.Status != recognition.StatusError {
			return errors.Wrap(err, "recognizing face")
		}
		// the patient gets an error status, not a server error
		api.logger.Error("recognizing face", err, map[string]interface{}{"owner_id": owner})
	}
	api.count(res.Status)
	return ctx.JSON(http.StatusOK, res)
}

func (api *recognitionApi) remember(ctx echo.Context) error {
	owner, data, err := api.bind(ctx)
	if err != nil {
		return err
	}

	res, err := api.svc.RememberNewPerson(ctx.Request().Context(), owner, data.Image)
	if err != nil {
		return errors.Wrap(err, "remembering new person")
	}
	api.count(res.Status)
	return ctx.JSON(http.StatusCreated, res)
}

// reset forgets the last identity, as when the patient turns the camera off.
func (api *recognitionApi) reset(ctx echo.Context) error {
	owner, err := getContextTarget(ctx)
	if err != nil {
		return err
	}
	api.svc.Reset(owner)
	return ctx.NoContent(http.StatusNoContent)
}
