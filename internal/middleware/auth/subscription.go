package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequireSubscription rejects users whose subscription is missing or has
// lapsed. It must run after RequireLogin.
func RequireSubscription() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := CurrentUser(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "you are not logged in, please log in to continue")
			}
			if user.SubscriptionExpireAt == nil || user.SubscriptionExpireAt.Before(time.Now()) {
				return echo.NewHTTPError(http.StatusForbidden, "your plan has expired, please upgrade to continue")
			}
			return next(c)
		}
	}
}
