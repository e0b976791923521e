package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// callerMiddleware rejects tokens that do not carry a usable caller identity.
func callerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if _, err := getContextCaller(ctx); err != nil {
			return errors.Wrap(err, "getting context caller")
		}
		return next(ctx)
	}
}

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			caller, err := getContextCaller(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context caller")
			}
			if caller.IsAdmin() && contextHasAnyRole(caller, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
