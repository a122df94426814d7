package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/courselane/course_platform/internal/hash"
	"github.com/courselane/course_platform/internal/ledger"
	"github.com/courselane/course_platform/internal/logging"
	"github.com/courselane/course_platform/internal/middleware/auth"
	"github.com/courselane/course_platform/internal/models"
	"github.com/courselane/course_platform/internal/util"
)

type UserHandler struct {
	DB     *gorm.DB
	Ledger *ledger.Ledger
}

func (h *UserHandler) Me(c echo.Context) error {
	user, ok := auth.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "you are not logged in, please log in to continue")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "success",
		"data":    echo.Map{"user": user},
	})
}

func (h *UserHandler) UpdateMe(c echo.Context) error {
	user, ok := auth.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "you are not logged in, please log in to continue")
	}

	var req struct {
		Name     *string `json:"name"`
		Email    *string `json:"email" validate:"omitempty,email"`
		Password *string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Password != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "this route is not for password updates")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Email != nil {
		updates["email"] = util.NormalizeEmail(*req.Email)
	}
	if len(updates) > 0 {
		if err := h.DB.Model(user).Updates(updates).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "cannot update user")
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status": "success",
		"data":   echo.Map{"user": user},
	})
}

// DeleteMe soft-deletes: the row stays for the purchase ledger, but every
// auth lookup filters on active.
func (h *UserHandler) DeleteMe(c echo.Context) error {
	user, ok := auth.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "you are not logged in, please log in to continue")
	}

	if err := h.DB.Model(user).Update("active", false).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot deactivate user")
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *UserHandler) MyPurchasedCourses(c echo.Context) error {
	user, ok := auth.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "you are not logged in, please log in to continue")
	}

	ids, err := h.Ledger.ListEntitlements(c.Request().Context(), user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list purchases")
	}

	courses := []models.Course{}
	if len(ids) > 0 {
		if err := h.DB.Where("id IN ?", ids).Order("id ASC").Find(&courses).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "cannot list purchases")
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status": "success",
		"data":   echo.Map{"courses": courses},
	})
}

func (h *UserHandler) ListUsers(c echo.Context) error {
	var users []models.User
	if err := h.DB.Order("id ASC").Find(&users).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list users")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "success",
		"results": len(users),
		"data":    echo.Map{"users": users},
	})
}

func (h *UserHandler) CreateUser(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "user.create")

	var req struct {
		Name     string `json:"name"     validate:"required"`
		Email    string `json:"email"    validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
		Role     string `json:"role"     validate:"omitempty,oneof=user author moderator admin"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create user")
	}

	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	user := models.User{
		Name:         req.Name,
		Email:        util.NormalizeEmail(req.Email),
		Role:         role,
		PasswordHash: pwHash,
		Active:       true,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		l.Error("create_user_failed", "status", 500, "reason", "cannot create user", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create user")
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "success",
		"data":    echo.Map{"user": user},
	})
}

func (h *UserHandler) GetUser(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id is not an integer")
	}

	var user models.User
	if err := h.DB.First(&user, id).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "no user found with that id")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "success",
		"data":    echo.Map{"user": user},
	})
}

func (h *UserHandler) UpdateUser(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id is not an integer")
	}

	var user models.User
	if err := h.DB.First(&user, id).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "no user found with that id")
	}

	var req struct {
		Name   *string `json:"name"`
		Email  *string `json:"email" validate:"omitempty,email"`
		Role   *string `json:"role"  validate:"omitempty,oneof=user author moderator admin"`
		Active *bool   `json:"active"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Email != nil {
		updates["email"] = util.NormalizeEmail(*req.Email)
	}
	if req.Role != nil {
		updates["role"] = *req.Role
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if len(updates) > 0 {
		if err := h.DB.Model(&user).Updates(updates).Error; err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "cannot update user")
		}
	}

	return c.JSON(http.StatusAccepted, echo.Map{
		"message": "success",
		"data":    echo.Map{"user": user},
	})
}

func (h *UserHandler) DeleteUser(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id is not an integer")
	}

	var user models.User
	if err := h.DB.First(&user, id).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "no user found with that id")
	}

	if err := h.DB.Delete(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot delete user")
	}

	return c.NoContent(http.StatusNoContent)
}
