package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/courselane/course_platform/internal/models"
	"github.com/courselane/course_platform/internal/token"
)

// RequireLogin resolves the bearer token into a live user and stores it in
// the request context. Tokens issued before the user's last password change
// are rejected, which forces a re-login after every password change.
func RequireLogin(db *gorm.DB, tokens *token.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "you are not logged in, please log in to continue")
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "authorization header format must be Bearer {token}")
			}

			claims, err := tokens.Verify(parts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			var user models.User
			if err := db.Where("id = ? AND active = ?", claims.UserID, true).First(&user).Error; err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "the user no longer exists")
			}

			if user.ChangedPasswordAfter(claims.IssuedAt) {
				return echo.NewHTTPError(http.StatusUnauthorized, "password was changed recently, please log in again")
			}

			SetUser(c, &user)
			return next(c)
		}
	}
}
