package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/courselane/course_platform/internal/handlers"
	"github.com/courselane/course_platform/internal/middleware/auth"
	"github.com/courselane/course_platform/internal/models"
	"github.com/courselane/course_platform/internal/token"
)

type Deps struct {
	DB              *gorm.DB
	Tokens          *token.Service
	AuthHandler     *handlers.AuthHandler
	UserHandler     *handlers.UserHandler
	CourseHandler   *handlers.CourseHandler
	PurchaseHandler *handlers.PurchaseHandler
	SearchHandler   *handlers.SearchHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	// The webhook stays outside /api/v1 and outside every middleware that
	// could touch the body: signature verification needs the raw bytes.
	e.POST("/stripe-webhook", d.PurchaseHandler.Webhook)

	requireLogin := auth.RequireLogin(d.DB, d.Tokens)

	v1 := e.Group("/api/v1")

	courses := v1.Group("/courses")
	courses.GET("", d.CourseHandler.ListCourses)
	courses.GET("/search", d.SearchHandler.Search)
	courses.GET("/preview/:id", d.CourseHandler.PreviewCourse)
	courses.POST("", d.CourseHandler.CreateCourse, requireLogin, auth.RestrictTo(models.RoleAdmin, models.RoleAuthor))
	courses.GET("/:id", d.CourseHandler.GetCourse, requireLogin)
	courses.PATCH("/:id", d.CourseHandler.UpdateCourse, requireLogin, auth.RestrictTo(models.RoleAdmin))
	courses.DELETE("/:id", d.CourseHandler.DeleteCourse, requireLogin, auth.RestrictTo(models.RoleAdmin))

	users := v1.Group("/users")
	users.POST("/signup", d.AuthHandler.Signup)
	users.POST("/login", d.AuthHandler.Login)
	users.POST("/logout", d.AuthHandler.Logout)
	users.POST("/forgotPassword", d.AuthHandler.ForgotPassword)
	users.PATCH("/resetPassword/:token", d.AuthHandler.ResetPassword)

	me := users.Group("", requireLogin)
	me.PATCH("/updateMyPassword", d.AuthHandler.UpdatePassword)
	me.GET("/me", d.UserHandler.Me)
	me.PATCH("/updateMe", d.UserHandler.UpdateMe)
	me.DELETE("/deleteMe", d.UserHandler.DeleteMe)
	me.GET("/my-courses", d.UserHandler.MyPurchasedCourses)

	authors := users.Group("", requireLogin, auth.RestrictTo(models.RoleAuthor, models.RoleAdmin))
	authors.GET("/get-my-created-courses", d.CourseHandler.MyCreatedCourses)
	authors.GET("/my-courses/:id", d.CourseHandler.MyCreatedCourse)
	authors.PATCH("/my-courses/:id", d.CourseHandler.UpdateMyCreatedCourse)
	authors.DELETE("/my-courses/:id", d.CourseHandler.DeleteMyCreatedCourse)

	admin := users.Group("", requireLogin, auth.RestrictTo(models.RoleAdmin))
	admin.GET("", d.UserHandler.ListUsers)
	admin.POST("", d.UserHandler.CreateUser)
	admin.GET("/:id", d.UserHandler.GetUser)
	admin.PATCH("/:id", d.UserHandler.UpdateUser)
	admin.DELETE("/:id", d.UserHandler.DeleteUser)

	purchases := v1.Group("/purchases", requireLogin)
	purchases.GET("/checkout-session/:courseID", d.PurchaseHandler.CheckoutSession)
	purchases.POST("/free-course/:courseID", d.PurchaseHandler.FreeCourse)
}

// ErrorHandler renders the uniform error envelope and keeps 5xx noise in the
// logs rather than in the response body.
func ErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := any("internal server error")
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			message = he.Message
		}
		if code >= 500 {
			log.Error("request failed", "status", code, "path", c.Path(), "error", err)
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, echo.Map{"status": "error", "message": message})
	}
}
