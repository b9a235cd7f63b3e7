package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultadmin/pkg/apiclient"
	"github.com/vaultadmin/pkg/events"
	"github.com/vaultadmin/pkg/identity"
	"github.com/vaultadmin/pkg/rbac"
	"github.com/vaultadmin/services/console/internal/backendtest"
	"github.com/vaultadmin/services/console/internal/page"
	"github.com/vaultadmin/services/console/internal/session"
)

type envelope struct {
	Success bool           `json:"success"`
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

type harness struct {
	t       *testing.T
	backend *backendtest.Backend
	store   *session.Store
	app     *fiber.App
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := backendtest.New(t)
	b.PutRole(identity.Role{ID: "R1", Name: "ops", DisplayName: "Operations", Permissions: []string{"view_files", "edit_files"}})
	b.AddUser(identity.Identity{ID: "u1", Email: "root@vault.io", Role: rbac.RoleSuperAdmin}, "secret")
	b.AddUser(identity.Identity{ID: "u2", Email: "admin@vault.io", Role: rbac.RoleAdmin}, "secret")
	b.AddUser(identity.Identity{ID: "u3", Email: "ops@vault.io", Role: rbac.RoleStaff, RoleID: "R1"}, "secret")

	store := session.NewStore(apiclient.New(b.URL, time.Second), b.JWT, rbac.DefaultRoutes(), time.Minute, 0)
	t.Cleanup(store.Close)
	return &harness{t: t, backend: b, store: store, app: New(store, page.Default())}
}

func (h *harness) do(method, path, sessionID string, body any) (int, envelope) {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if sessionID != "" {
		req.Header.Set(session.Header, sessionID)
	}

	resp, err := h.app.Test(req, -1)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env
}

func (h *harness) login(email string) string {
	h.t.Helper()
	status, env := h.do(fiber.MethodPost, "/session/login", "", fiber.Map{"email": email, "password": "secret"})
	require.Equal(h.t, fiber.StatusCreated, status, env.Message)
	id, _ := env.Data["sessionId"].(string)
	require.NotEmpty(h.t, id)
	return id
}

func actionIDs(env envelope) []string {
	p, _ := env.Data["page"].(map[string]any)
	raw, _ := p["actions"].([]any)
	ids := make([]string, 0, len(raw))
	for _, a := range raw {
		ids = append(ids, a.(map[string]any)["id"].(string))
	}
	return ids
}

func decisionKind(env envelope) string {
	d, _ := env.Data["decision"].(map[string]any)
	kind, _ := d["kind"].(string)
	return kind
}

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t)

	status, env := h.do(fiber.MethodPost, "/session/login", "", fiber.Map{"email": "nope", "password": "x"})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.False(t, env.Success)

	status, env = h.do(fiber.MethodPost, "/session/login", "", fiber.Map{"email": "ops@vault.io", "password": "bad"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "用户名或密码错误", env.Message)

	id := h.login("OPS@vault.io ")

	status, env = h.do(fiber.MethodGet, "/session/me", id, nil)
	require.Equal(t, fiber.StatusOK, status)
	sess, _ := env.Data["session"].(map[string]any)
	user, _ := sess["user"].(map[string]any)
	assert.Equal(t, rbac.RoleStaff, user["role"])
	assert.Equal(t, "Operations", user["roleName"])

	status, _ = h.do(fiber.MethodGet, "/session/me", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	status, _ = h.do(fiber.MethodGet, "/session/me", "unknown", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = h.do(fiber.MethodPost, "/session/refresh", id, nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = h.do(fiber.MethodDelete, "/session", id, nil)
	assert.Equal(t, fiber.StatusOK, status)
	status, _ = h.do(fiber.MethodGet, "/session/me", id, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestAccessAndGateChecks(t *testing.T) {
	h := newHarness(t)
	id := h.login("ops@vault.io")

	_, env := h.do(fiber.MethodGet, "/session/access?route=/files/", id, nil)
	assert.Equal(t, "/files", env.Data["route"])
	assert.Equal(t, true, env.Data["allowed"])

	_, env = h.do(fiber.MethodGet, "/session/access?route=/admin/roles", id, nil)
	assert.Equal(t, false, env.Data["allowed"])

	status, _ := h.do(fiber.MethodGet, "/session/access", id, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	_, env = h.do(fiber.MethodPost, "/session/check", id, fiber.Map{"permissions": []string{"delete_files", "edit_files"}})
	assert.Equal(t, true, env.Data["allowed"])
	_, env = h.do(fiber.MethodPost, "/session/check", id, fiber.Map{"permissions": []string{"delete_files", "edit_files"}, "mode": "all"})
	assert.Equal(t, false, env.Data["allowed"])
}

func TestPageGuard(t *testing.T) {
	h := newHarness(t)

	status, env := h.do(fiber.MethodGet, "/pages/dashboard", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, string(rbac.DecisionUnauthenticated), decisionKind(env))

	id := h.login("ops@vault.io")

	status, env = h.do(fiber.MethodGet, "/pages/files", id, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, []string{"edit"}, actionIDs(env))

	status, env = h.do(fiber.MethodGet, "/pages/admin/roles", id, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, string(rbac.DecisionRouteDenied), decisionKind(env))
	assert.Nil(t, env.Data["page"])

	status, _ = h.do(fiber.MethodGet, "/pages/profile", id, nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = h.do(fiber.MethodGet, "/pages/unknown", id, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, env = h.do(fiber.MethodGet, "/pages/nav", id, nil)
	require.Equal(t, fiber.StatusOK, status)
	pages, _ := env.Data["pages"].([]any)
	var paths []string
	for _, p := range pages {
		paths = append(paths, p.(map[string]any)["path"].(string))
	}
	assert.Equal(t, []string{"/files"}, paths)
}

func TestRoleAdministration(t *testing.T) {
	h := newHarness(t)
	root := h.login("root@vault.io")
	ops := h.login("ops@vault.io")

	status, _ := h.do(fiber.MethodGet, "/admin/roles", ops, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, env := h.do(fiber.MethodGet, "/admin/permissions", root, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, env.Data["groups"], len(rbac.Groups()))

	status, env = h.do(fiber.MethodPost, "/admin/roles", root, fiber.Map{"name": "ops", "displayName": "Dup", "permissions": []string{"view_users"}})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "角色名称已存在", env.Message)

	status, _ = h.do(fiber.MethodPost, "/admin/roles", root, fiber.Map{"name": "support", "displayName": "Support"})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)

	status, env = h.do(fiber.MethodPost, "/admin/roles", root, fiber.Map{"name": "support", "displayName": "Support", "permissions": []string{"view_support_tickets"}})
	require.Equal(t, fiber.StatusCreated, status, env.Message)
	created, _ := env.Data["role"].(map[string]any)
	newID, _ := created["_id"].(string)
	require.NotEmpty(t, newID)

	// 使用中的角色在本地拦截，不请求后端
	status, env = h.do(fiber.MethodDelete, "/admin/roles/R1", root, nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Contains(t, env.Message, "1")

	status, _ = h.do(fiber.MethodDelete, "/admin/roles/"+newID, root, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, []string{"create " + newID, "delete " + newID}, h.backend.Calls())
}

func TestRoleEditRefreshesAffectedSessions(t *testing.T) {
	h := newHarness(t)
	root := h.login("root@vault.io")
	ops := h.login("ops@vault.io")

	status, env := h.do(fiber.MethodPut, "/admin/roles/R1", root, fiber.Map{
		"name": "ops", "displayName": "Operations", "permissions": []string{"view_files", "delete_files"},
	})
	require.Equal(t, fiber.StatusOK, status, env.Message)

	_, env = h.do(fiber.MethodGet, "/pages/files", ops, nil)
	assert.Equal(t, []string{"delete"}, actionIDs(env))

	status, _ = h.do(fiber.MethodPut, "/admin/users/u3/role", root, fiber.Map{"role": rbac.RoleModerator})
	require.Equal(t, fiber.StatusOK, status)

	s, ok := h.store.Get(ops)
	require.True(t, ok)
	assert.Equal(t, rbac.RoleModerator, s.User().Role)
	assert.Empty(t, s.User().RoleID)
}

func TestAdminRejectedByBackend(t *testing.T) {
	h := newHarness(t)
	admin := h.login("admin@vault.io")

	// 控制台按超级管理员放行，后端的 admin 策略不含角色管理
	status, env := h.do(fiber.MethodPost, "/admin/roles", admin, fiber.Map{"name": "x", "displayName": "X", "permissions": []string{"view_users"}})
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "没有访问权限", env.Message)
	assert.Empty(t, h.backend.Calls())
}

func TestSubscribeRefreshesOnBackendEvent(t *testing.T) {
	h := newHarness(t)
	ops := h.login("ops@vault.io")

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bridge := events.NewBridge("console-1", client)
	Subscribe(bridge, h.store, time.Second)
	require.NoError(t, bridge.Start())
	defer bridge.Stop()

	h.backend.PutRole(identity.Role{ID: "R1", Name: "ops", DisplayName: "Operations", Permissions: []string{"view_users"}})
	publisher := events.NewBridge("rbac-1", client)
	require.NoError(t, publisher.Publish(t.Context(), rbac.TopicRoleChanged, rbac.RoleChanged{RoleID: "R1", Action: rbac.RoleUpdated}))

	s, _ := h.store.Get(ops)
	assert.Eventually(t, func() bool {
		return s.Access().HasPermission(rbac.PermViewUsers)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	h.login("ops@vault.io")

	resp, err := h.app.Test(httptest.NewRequest(fiber.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, ServiceName, body["service"])
	assert.EqualValues(t, 1, body["sessions"])
}
