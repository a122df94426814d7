package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/courselane/course_platform/internal/models"
)

const userContextKey = "user"

func SetUser(c echo.Context, u *models.User) {
	c.Set(userContextKey, u)
}

// CurrentUser returns the user resolved by RequireLogin, if any.
func CurrentUser(c echo.Context) (*models.User, bool) {
	u, ok := c.Get(userContextKey).(*models.User)
	return u, ok && u != nil
}
