package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/courselane/course_platform/internal/middleware/auth"
	"github.com/courselane/course_platform/internal/models"
)

func TestMeHidesSensitiveFields(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "User", "me@example.com", "pass1234", models.RoleUser)

	c, rec := env.request(http.MethodGet, "/api/v1/users/me", nil)
	auth.SetUser(c, user)
	require.NoError(t, env.users.Me(c))
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeBody(t, rec)["data"].(map[string]any)["user"].(map[string]any)
	require.Equal(t, "me@example.com", got["email"])
	require.NotContains(t, got, "password_hash")
	require.NotContains(t, got, "active")
	require.NotContains(t, got, "password_reset_token")
}

func TestUpdateMe(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "Old Name", "old@example.com", "pass1234", models.RoleUser)

	c, rec := env.request(http.MethodPatch, "/api/v1/users/updateMe", map[string]any{
		"name":  "New Name",
		"email": "New@Example.COM",
	})
	auth.SetUser(c, user)
	require.NoError(t, env.users.UpdateMe(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var stored models.User
	require.NoError(t, env.db.First(&stored, user.ID).Error)
	require.Equal(t, "New Name", stored.Name)
	require.Equal(t, "new@example.com", stored.Email)
}

func TestUpdateMeRejectsPassword(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "User", "me@example.com", "pass1234", models.RoleUser)

	c, _ := env.request(http.MethodPatch, "/api/v1/users/updateMe", map[string]any{
		"password": "sneaky-pass-1234",
	})
	auth.SetUser(c, user)
	requireHTTPError(t, env.users.UpdateMe(c), http.StatusBadRequest, "this route is not for password updates")
}

func TestDeleteMeDeactivates(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "User", "bye@example.com", "pass1234", models.RoleUser)

	c, rec := env.request(http.MethodDelete, "/api/v1/users/deleteMe", nil)
	auth.SetUser(c, user)
	require.NoError(t, env.users.DeleteMe(c))
	require.Equal(t, http.StatusNoContent, rec.Code)

	// The row is kept for the purchase ledger, just marked inactive.
	var stored models.User
	require.NoError(t, env.db.First(&stored, user.ID).Error)
	require.False(t, stored.Active)
}

func TestMyPurchasedCourses(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "Buyer", "buyer@example.com", "pass1234", models.RoleUser)
	author := env.createUser(t, "Author", "author@example.com", "pass1234", models.RoleAuthor)

	owned := env.createCourse(t, author.ID, 499, true)
	env.createCourse(t, author.ID, 999, true)
	require.NoError(t, env.ledger.Grant(context.Background(), user.ID, owned.ID, 499))

	c, rec := env.request(http.MethodGet, "/api/v1/users/my-courses", nil)
	auth.SetUser(c, user)
	require.NoError(t, env.users.MyPurchasedCourses(c))
	require.Equal(t, http.StatusOK, rec.Code)

	courses := decodeBody(t, rec)["data"].(map[string]any)["courses"].([]any)
	require.Len(t, courses, 1)
	require.EqualValues(t, owned.ID, courses[0].(map[string]any)["id"])
}

func TestAdminCreateUser(t *testing.T) {
	env := newTestEnv(t)

	c, rec := env.request(http.MethodPost, "/api/v1/users", map[string]any{
		"name":     "Moderator",
		"email":    "Mod@Example.com",
		"password": "pass1234",
		"role":     models.RoleModerator,
	})
	require.NoError(t, env.users.CreateUser(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var stored models.User
	require.NoError(t, env.db.Where("email = ?", "mod@example.com").First(&stored).Error)
	require.Equal(t, models.RoleModerator, stored.Role)
	require.True(t, stored.Active)
}

func TestAdminCreateUserRejectsUnknownRole(t *testing.T) {
	env := newTestEnv(t)

	c, _ := env.request(http.MethodPost, "/api/v1/users", map[string]any{
		"name":     "Root",
		"email":    "root@example.com",
		"password": "pass1234",
		"role":     "superadmin",
	})
	requireHTTPError(t, env.users.CreateUser(c), http.StatusBadRequest, "")
}

func TestAdminGetUser(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "User", "get@example.com", "pass1234", models.RoleUser)

	c, rec := env.request(http.MethodGet, "/api/v1/users/1", nil)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, env.users.GetUser(c))
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeBody(t, rec)["data"].(map[string]any)["user"].(map[string]any)
	require.EqualValues(t, user.ID, got["id"])

	c, _ = env.request(http.MethodGet, "/api/v1/users/999", nil)
	c.SetParamNames("id")
	c.SetParamValues("999")
	requireHTTPError(t, env.users.GetUser(c), http.StatusNotFound, "no user found with that id")
}

func TestAdminUpdateUser(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "User", "promote@example.com", "pass1234", models.RoleUser)

	c, rec := env.request(http.MethodPatch, "/api/v1/users/1", map[string]any{
		"role":   models.RoleAuthor,
		"active": false,
	})
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, env.users.UpdateUser(c))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var stored models.User
	require.NoError(t, env.db.First(&stored, user.ID).Error)
	require.Equal(t, models.RoleAuthor, stored.Role)
	require.False(t, stored.Active)
}

func TestAdminDeleteUser(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "User", "remove@example.com", "pass1234", models.RoleUser)

	c, rec := env.request(http.MethodDelete, "/api/v1/users/1", nil)
	c.SetParamNames("id")
	c.SetParamValues("1")
	require.NoError(t, env.users.DeleteUser(c))
	require.Equal(t, http.StatusNoContent, rec.Code)

	err := env.db.First(&models.User{}, user.ID).Error
	require.Error(t, err)
}
