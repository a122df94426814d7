package auth

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

// RestrictTo allows only the listed roles through. It must run after
// RequireLogin.
func RestrictTo(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := CurrentUser(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "you are not logged in, please log in to continue")
			}
			if !slices.Contains(roles, user.Role) {
				return echo.NewHTTPError(http.StatusForbidden, "you are not allowed to perform this action")
			}
			return next(c)
		}
	}
}
