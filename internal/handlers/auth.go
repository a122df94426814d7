package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/courselane/course_platform/internal/events"
	"github.com/courselane/course_platform/internal/hash"
	"github.com/courselane/course_platform/internal/logging"
	"github.com/courselane/course_platform/internal/mail"
	"github.com/courselane/course_platform/internal/middleware/auth"
	"github.com/courselane/course_platform/internal/models"
	"github.com/courselane/course_platform/internal/token"
	"github.com/courselane/course_platform/internal/util"
)

const resetTokenTTL = 3 * time.Minute

type AuthHandler struct {
	DB              *gorm.DB
	Tokens          *token.Service
	Mailer          mail.Sender
	Producer        *events.Producer
	ResetURL        string
	CookieExpiresIn int // days
}

func CreateCookie(name, value, path string, expTime time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  expTime,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *AuthHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.Publish(ctx, events.TopicUserEvents, fmt.Sprint(event["user_id"]), event); err != nil {
		c.Logger().Errorf("kafka publish error: %v", err)
	}
}

// sendToken issues a session token and delivers it both as the jwt cookie and
// as a JSON field, mirroring what the login and signup responses look like.
func (h *AuthHandler) sendToken(c echo.Context, user *models.User, status int) error {
	tok, err := h.Tokens.Issue(user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create session token")
	}

	exp := time.Now().Add(time.Duration(h.CookieExpiresIn) * 24 * time.Hour)
	c.SetCookie(CreateCookie("jwt", tok, "/", exp))

	return c.JSON(status, echo.Map{
		"status": "success",
		"token":  tok,
		"data":   echo.Map{"user": user},
	})
}

func (h *AuthHandler) Signup(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "auth.signup")

	var req struct {
		Name     string `json:"name"     validate:"required"`
		Email    string `json:"email"    validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	email := util.NormalizeEmail(req.Email)

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		l.Error("signup_failed", "status", 500, "reason", "hash error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create user")
	}

	user := models.User{
		Name:         req.Name,
		Email:        email,
		Role:         models.RoleUser,
		PasswordHash: pwHash,
		Active:       true,
	}
	// The unique index on email is the only duplicate check: a pre-read
	// would race with concurrent signups for the same address.
	if err := h.DB.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return echo.NewHTTPError(http.StatusBadRequest, "email already exists")
		}
		l.Error("signup_failed", "status", 500, "reason", "cannot create user", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create user")
	}

	h.publish(c, map[string]any{
		"type":    "user_registered",
		"user_id": user.ID,
		"email":   user.Email,
	})

	l.Info("signup_success", "user_id", user.ID)
	return h.sendToken(c, &user, http.StatusCreated)
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"    validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	var user models.User
	err := h.DB.Where("email = ? AND active = ?", util.NormalizeEmail(req.Email), true).First(&user).Error
	if err != nil || !hash.CheckPassword(user.PasswordHash, req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "incorrect email or password")
	}

	h.publish(c, map[string]any{
		"type":    "user_logged_in",
		"user_id": user.ID,
		"email":   user.Email,
	})

	return h.sendToken(c, &user, http.StatusOK)
}

func (h *AuthHandler) Logout(c echo.Context) error {
	c.SetCookie(CreateCookie("jwt", "", "/", time.Now().Add(-time.Hour)))
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "success",
		"message": "logged out",
	})
}

func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "auth.forgot_password")

	var req struct {
		Email string `json:"email" validate:"required,email"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	var user models.User
	if err := h.DB.Where("email = ? AND active = ?", util.NormalizeEmail(req.Email), true).First(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "there is no user with that email address")
	}

	plain, digest, err := hash.NewResetToken()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create reset token")
	}

	expires := time.Now().Add(resetTokenTTL)
	updates := map[string]any{
		"password_reset_token":   digest,
		"password_reset_expires": expires,
	}
	if err := h.DB.Model(&user).Updates(updates).Error; err != nil {
		l.Error("forgot_password_failed", "status", 500, "reason", "cannot store reset token", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create reset token")
	}

	message := fmt.Sprintf(`Forgot your password? Use the link to reset it:

%s%s

If you didn't forget your password please ignore this mail.`, h.ResetURL, plain)

	if err := h.Mailer.Send(user.Email, "Your password reset token (valid for 3 min)", message); err != nil {
		// Roll the token back so a retried forgot-password call is not
		// blocked by a stale one.
		rollback := map[string]any{
			"password_reset_token":   "",
			"password_reset_expires": nil,
		}
		if dbErr := h.DB.Model(&user).Updates(rollback).Error; dbErr != nil {
			l.Error("forgot_password_failed", "status", 500, "reason", "reset token rollback failed", "error", dbErr)
		}
		l.Error("forgot_password_failed", "status", 500, "reason", "mail send failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "there was an error sending the e-mail, try again later")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":  "success",
		"message": "email sent successfully, please check your mail",
	})
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req struct {
		Password string `json:"password" validate:"required,min=8"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	digest := hash.DigestResetToken(c.Param("token"))

	var user models.User
	err := h.DB.Where("password_reset_token = ? AND password_reset_expires > ?", digest, time.Now()).First(&user).Error
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "token is invalid or expired")
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not reset password")
	}

	// Backdated by a second so a token issued in the same instant still
	// counts as pre-change.
	changedAt := time.Now().Add(-time.Second)
	updates := map[string]any{
		"password_hash":          pwHash,
		"password_changed_at":    changedAt,
		"password_reset_token":   "",
		"password_reset_expires": nil,
	}
	if err := h.DB.Model(&user).Updates(updates).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not reset password")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":  "success",
		"message": "password reset successful, please log in",
	})
}

func (h *AuthHandler) UpdatePassword(c echo.Context) error {
	user, ok := auth.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "you are not logged in, please log in to continue")
	}

	var req struct {
		PasswordCurrent string `json:"password_current" validate:"required"`
		Password        string `json:"password"         validate:"required,min=8"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if !hash.CheckPassword(user.PasswordHash, req.PasswordCurrent) {
		return echo.NewHTTPError(http.StatusUnauthorized, "password is incorrect")
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not update password")
	}

	changedAt := time.Now().Add(-time.Second)
	updates := map[string]any{
		"password_hash":       pwHash,
		"password_changed_at": changedAt,
	}
	if err := h.DB.Model(user).Updates(updates).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not update password")
	}
	user.PasswordHash = pwHash
	user.PasswordChangedAt = &changedAt

	return h.sendToken(c, user, http.StatusOK)
}
