package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core"
	"github.com/lucidiacare/lucidia/core/alert"
	"github.com/lucidiacare/lucidia/core/face"
	"github.com/lucidiacare/lucidia/core/geo"
	"github.com/lucidiacare/lucidia/core/memory"
	"github.com/lucidiacare/lucidia/core/recognition"
	"github.com/lucidiacare/lucidia/core/reminder"
	"github.com/lucidiacare/lucidia/core/settings"
	"github.com/lucidiacare/lucidia/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")

	// domainErrors maps the services' sentinel errors to HTTP errors.
	domainErrors = map[error]*echo.HTTPError{
		user.ErrNotFound:             errHttpNotFound,
		user.ErrNotLinked:            echo.NewHTTPError(http.StatusForbidden, user.ErrNotLinked.Error()),
		user.ErrAuthenticationFailed: errAuthenticationFailed,
		user.ErrAccountDeactivated:   errAccountDeactivated,
		face.ErrNotFound:             errHttpNotFound,
		memory.ErrNotFound:           errHttpNotFound,
		reminder.ErrNotFound:         errHttpNotFound,
		alert.ErrNotFound:            errHttpNotFound,
		geo.ErrNotFound:              errHttpNotFound,
		geo.ErrLocationNotFound:      echo.NewHTTPError(http.StatusNotFound, geo.ErrLocationNotFound.Error()),
		settings.ErrNotFound:         errHttpNotFound,
		recognition.ErrUnavailable:   echo.NewHTTPError(http.StatusServiceUnavailable, recognition.ErrUnavailable.Error()),
	}
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if herr, ok := domainErrors[cause]; ok {
			cause = herr
		}

		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.Name = claims.Name
				usr.Email = claims.Email
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
