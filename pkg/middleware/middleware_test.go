package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultadmin/pkg/auth"
	"github.com/vaultadmin/pkg/config"
	"github.com/vaultadmin/pkg/errors"
	"github.com/vaultadmin/pkg/response"
)

func decode(t *testing.T, body io.Reader) response.Response {
	t.Helper()
	var out response.Response
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func newApp() *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
}

func TestJWTAuth(t *testing.T) {
	jwt := auth.NewJWTManager(&config.JWTConfig{Secret: "s", Expire: 60})
	app := newApp()
	app.Get("/me", JWTAuth(jwt), func(c *fiber.Ctx) error {
		return c.SendString(GetUserID(c) + "|" + GetRole(c) + "|" + GetRoleID(c))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
	assert.False(t, decode(t, resp.Body).Success)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer nope")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	token, err := jwt.GenerateToken(auth.Subject{UserID: "u1", Role: "staff", RoleID: "R1"})
	require.NoError(t, err)
	req = httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "u1|staff|R1", string(body))
}

func TestRequirePermission(t *testing.T) {
	store, err := auth.NewPolicyStore(nil, nil)
	require.NoError(t, err)
	require.NoError(t, store.SetPermissions(auth.RoleSubject("R1"), []string{"manage_admin_roles"}))
	require.NoError(t, store.AssignUser("u1", auth.RoleSubject("R1")))

	app := newApp()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("userId", c.Get("X-User"))
		return c.Next()
	})
	app.Post("/roles", RequirePermission(store, "manage_admin_roles"), func(c *fiber.Ctx) error {
		return response.Success(c, nil)
	})

	cases := map[string]int{"": 401, "u2": 403, "u1": 200}
	for user, want := range cases {
		req := httptest.NewRequest("POST", "/roles", nil)
		req.Header.Set("X-User", user)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, "user %q", user)
	}
}

func TestErrorHandlerMapsAppErrors(t *testing.T) {
	app := newApp()
	app.Use(Recovery())
	app.Get("/in-use", func(c *fiber.Ctx) error { return errors.RoleInUse(2) })
	app.Get("/boom", func(c *fiber.Ctx) error { panic("boom") })

	resp, err := app.Test(httptest.NewRequest("GET", "/in-use", nil))
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode)
	assert.Contains(t, decode(t, resp.Body).Message, "2")

	resp, err = app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestRequestIDAndCors(t *testing.T) {
	app := newApp()
	app.Use(Cors(), RequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(GetRequestID(c)) })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, resp.Header.Get("X-Request-ID"), string(body))
	assert.Len(t, string(body), 36)

	req := httptest.NewRequest("OPTIONS", "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}
