package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/lucidiacare/lucidia/core/user"
)

// roleMiddleware lets through users having one of roles.
func roleMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			for _, role := range roles {
				if claims.Role == role {
					return next(ctx)
				}
			}
			return errHttpForbidden
		}
	}
}

var (
	patientOnly   = roleMiddleware(user.RolePatient)
	caretakerOnly = roleMiddleware(user.RoleCaretaker)
)

// targetMiddleware resolves the patient whose data the request operates on:
// patients act on their own data, caretakers on their linked patient's.
func targetMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}
			targetID, err := usr.TargetID()
			if err != nil {
				return err
			}
			ctx.Set(contextTarget, targetID)
			return next(ctx)
		}
	}
}
