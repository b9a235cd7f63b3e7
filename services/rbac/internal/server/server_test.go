package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultadmin/pkg/auth"
	"github.com/vaultadmin/pkg/config"
	"github.com/vaultadmin/pkg/identity"
	"github.com/vaultadmin/pkg/rbac"
	"github.com/vaultadmin/services/rbac/internal/model"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type recorder struct {
	mu     sync.Mutex
	events []rbac.RoleChanged
}

func (r *recorder) Publish(_ context.Context, topic string, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if topic == rbac.TopicRoleChanged {
		r.events = append(r.events, v.(rbac.RoleChanged))
	}
	return nil
}

type harness struct {
	t      *testing.T
	app    *fiber.App
	db     *gorm.DB
	policy *auth.PolicyStore
	events *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, Migrate(db))

	policy, err := auth.NewPolicyStore(db, nil)
	require.NoError(t, err)
	require.NoError(t, SeedPolicies(policy))
	require.NoError(t, SeedSuperAdmin(context.Background(), db, policy, &config.SeedConfig{
		Email:    "root@vault.test",
		Name:     "Root",
		Password: "rootpass",
	}))

	rec := &recorder{}
	app := New(Deps{
		DB:        db,
		Policy:    policy,
		JWT:       auth.NewJWTManager(&config.JWTConfig{Secret: "test", Issuer: "vaultadmin", Expire: 3600}),
		Publisher: rec,
	})
	return &harness{t: t, app: app, db: db, policy: policy, events: rec}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (h *harness) call(method, path, token string, body any) (int, envelope) {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(h.t, err)
	var env envelope
	require.NoError(h.t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (h *harness) login(email, password string) string {
	h.t.Helper()
	status, env := h.call("POST", "/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(h.t, 200, status, env.Message)
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(h.t, json.Unmarshal(env.Data, &out))
	return out.Token
}

func (h *harness) addUser(email, role string, roleID *string) *model.User {
	h.t.Helper()
	hash, err := auth.HashPassword("pw")
	require.NoError(h.t, err)
	u := &model.User{Email: email, Name: email, PasswordHash: hash, Role: role, RoleID: roleID}
	require.NoError(h.t, h.db.Create(u).Error)
	subject := auth.BuiltinSubject(role)
	if roleID != nil {
		subject = auth.RoleSubject(*roleID)
	}
	require.NoError(h.t, h.policy.AssignUser(u.ID, subject))
	return u
}

func (h *harness) createRole(token, name string, perms ...string) rbac.CustomRole {
	h.t.Helper()
	status, env := h.call("POST", "/roles", token, rbac.RolePayload{Name: name, DisplayName: name, Permissions: perms})
	require.Equal(h.t, 201, status, env.Message)
	var out struct {
		Role rbac.CustomRole `json:"role"`
	}
	require.NoError(h.t, json.Unmarshal(env.Data, &out))
	return out.Role
}

func TestLogin(t *testing.T) {
	h := newHarness(t)

	status, env := h.call("POST", "/auth/login", "", map[string]string{"email": "root@vault.test", "password": "nope"})
	assert.Equal(t, 401, status)
	assert.False(t, env.Success)
	assert.Equal(t, "用户名或密码错误", env.Message)

	status, _ = h.call("POST", "/auth/login", "", map[string]string{"email": "not-an-email"})
	assert.Equal(t, 422, status)

	token := h.login("ROOT@vault.test ", "rootpass")
	status, env = h.call("GET", "/auth/me", token, nil)
	require.Equal(t, 200, status)
	var out struct {
		User identity.Me `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, rbac.RoleSuperAdmin, out.User.Role)
	assert.Nil(t, out.User.InlineRole)
}

func TestSeedIsIdempotent(t *testing.T) {
	h := newHarness(t)
	cfg := &config.SeedConfig{Email: "root@vault.test", Password: "rootpass"}
	require.NoError(t, SeedSuperAdmin(context.Background(), h.db, h.policy, cfg))

	var n int64
	require.NoError(t, h.db.Model(&model.User{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestRoleLifecycle(t *testing.T) {
	h := newHarness(t)
	root := h.login("root@vault.test", "rootpass")

	r := h.createRole(root, "ops", "view_files", "edit_files", "view_files")
	assert.Equal(t, []string{"edit_files", "view_files"}, r.Permissions)

	// 名称重复与未知权限
	status, env := h.call("POST", "/roles", root, rbac.RolePayload{Name: "ops", DisplayName: "x", Permissions: []string{"view_files"}})
	assert.Equal(t, 409, status)
	assert.Equal(t, "角色名称已存在", env.Message)
	status, _ = h.call("POST", "/roles", root, rbac.RolePayload{Name: "x", DisplayName: "x", Permissions: []string{"launch_rockets"}})
	assert.Equal(t, 422, status)
	status, _ = h.call("POST", "/roles", root, rbac.RolePayload{Name: "viewer", DisplayName: "x", Permissions: []string{"view_files"}})
	assert.Equal(t, 422, status)

	// 分配给员工后，getMe 展开角色
	staff := h.addUser("staff@vault.test", rbac.RoleStaff, nil)
	status, env = h.call("PUT", "/users/"+staff.ID+"/role", root, rbac.RoleAssignment{Role: rbac.RoleStaff, RoleID: r.ID})
	require.Equal(t, 200, status, env.Message)

	staffToken := h.login("staff@vault.test", "pw")
	_, env = h.call("GET", "/auth/me", staffToken, nil)
	var me struct {
		User identity.Me `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &me))
	require.NotNil(t, me.User.InlineRole)
	assert.Equal(t, r.ID, me.User.RoleID)
	assert.ElementsMatch(t, []string{"view_files", "edit_files"}, me.User.InlineRole.Permissions)

	// 员工无权管理角色
	status, _ = h.call("POST", "/roles", staffToken, rbac.RolePayload{Name: "y", DisplayName: "y", Permissions: []string{"view_files"}})
	assert.Equal(t, 403, status)

	// 使用中的角色不能删除
	status, env = h.call("DELETE", "/roles/"+r.ID, root, nil)
	assert.Equal(t, 409, status)
	assert.Contains(t, env.Message, "1")

	status, env = h.call("GET", "/roles", root, nil)
	require.Equal(t, 200, status)
	var list struct {
		Roles []rbac.CustomRole `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Roles, 1)
	assert.Equal(t, 1, list.Roles[0].UsageCount)

	// 更新权限并发布事件
	status, _ = h.call("PUT", "/roles/"+r.ID, root, rbac.RolePayload{Name: "ops", DisplayName: "Ops", Permissions: []string{"view_users"}})
	require.Equal(t, 200, status)
	ok, err := h.policy.Allowed(staff.ID, "view_users")
	require.NoError(t, err)
	assert.True(t, ok)

	// 改回内置角色后可以删除
	status, _ = h.call("PUT", "/users/"+staff.ID+"/role", root, rbac.RoleAssignment{Role: rbac.RoleViewer})
	require.Equal(t, 200, status)
	status, _ = h.call("DELETE", "/roles/"+r.ID, root, nil)
	require.Equal(t, 200, status)
	status, _ = h.call("GET", "/roles/"+r.ID, root, nil)
	assert.Equal(t, 404, status)

	perms, err := h.policy.Permissions(auth.RoleSubject(r.ID))
	require.NoError(t, err)
	assert.Empty(t, perms)

	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	actions := make([]string, 0, len(h.events.events))
	for _, ev := range h.events.events {
		actions = append(actions, ev.Action)
	}
	assert.Equal(t, []string{rbac.RoleAssigned, rbac.RoleUpdated, rbac.RoleAssigned, rbac.RoleDeleted}, actions)
}

func TestSystemRoleCannotBeDeleted(t *testing.T) {
	h := newHarness(t)
	root := h.login("root@vault.test", "rootpass")

	sys := &model.Role{Name: "auditor", DisplayName: "Auditor", IsSystemRole: true}
	require.NoError(t, h.db.Create(sys).Error)

	status, env := h.call("DELETE", "/roles/"+sys.ID, root, nil)
	assert.Equal(t, 403, status)
	assert.Equal(t, "系统角色不能删除", env.Message)
}

func TestAssignRoleValidation(t *testing.T) {
	h := newHarness(t)
	root := h.login("root@vault.test", "rootpass")
	u := h.addUser("mod@vault.test", rbac.RoleModerator, nil)

	status, _ := h.call("PUT", "/users/"+u.ID+"/role", root, rbac.RoleAssignment{Role: "pirate"})
	assert.Equal(t, 422, status)
	status, _ = h.call("PUT", "/users/"+u.ID+"/role", root, rbac.RoleAssignment{Role: rbac.RoleStaff})
	assert.Equal(t, 422, status)
	status, _ = h.call("PUT", "/users/"+u.ID+"/role", root, rbac.RoleAssignment{Role: rbac.RoleStaff, RoleID: "missing"})
	assert.Equal(t, 404, status)
	status, _ = h.call("PUT", "/users/nobody/role", root, rbac.RoleAssignment{Role: rbac.RoleViewer})
	assert.Equal(t, 404, status)

	// admin 缺少 manage_admin_roles
	h.addUser("admin@vault.test", rbac.RoleAdmin, nil)
	admin := h.login("admin@vault.test", "pw")
	status, _ = h.call("PUT", "/users/"+u.ID+"/role", admin, rbac.RoleAssignment{Role: rbac.RoleViewer})
	assert.Equal(t, 403, status)

	status, _ = h.call("GET", "/roles", "", nil)
	assert.Equal(t, 401, status)
}

func TestLoginAuditLog(t *testing.T) {
	h := newHarness(t)
	h.addUser("viewer@vault.test", rbac.RoleViewer, nil)

	status, _ := h.call("POST", "/auth/login", "", map[string]string{"email": "root@vault.test", "password": "wrong"})
	require.Equal(t, 401, status)
	root := h.login("root@vault.test", "rootpass")
	viewer := h.login("viewer@vault.test", "pw")

	status, _ = h.call("GET", "/audit-logs/logins", viewer, nil)
	assert.Equal(t, 403, status)

	type page struct {
		Items []model.LoginLog `json:"items"`
		Total int64            `json:"total"`
	}

	status, env := h.call("GET", "/audit-logs/logins?email=root", root, nil)
	require.Equal(t, 200, status, env.Message)
	var all page
	require.NoError(t, json.Unmarshal(env.Data, &all))
	assert.EqualValues(t, 2, all.Total)

	status, env = h.call("GET", "/audit-logs/logins?success=false&pageSize=500", root, nil)
	require.Equal(t, 200, status)
	var failed page
	require.NoError(t, json.Unmarshal(env.Data, &failed))
	require.Len(t, failed.Items, 1)
	assert.Equal(t, "root@vault.test", failed.Items[0].Email)
	assert.Equal(t, "用户名或密码错误", failed.Items[0].Message)
	assert.Empty(t, failed.Items[0].UserID)
}

func TestOperationAuditLog(t *testing.T) {
	h := newHarness(t)
	root := h.login("root@vault.test", "rootpass")

	h.createRole(root, "ops", "view_files")
	status, _ := h.call("POST", "/roles", root, rbac.RolePayload{Name: "ops", DisplayName: "x", Permissions: []string{"view_files"}})
	require.Equal(t, 409, status)
	status, _ = h.call("GET", "/roles", root, nil)
	require.Equal(t, 200, status)

	type page struct {
		Items []model.OperationLog `json:"items"`
		Total int64                `json:"total"`
	}

	status, env := h.call("GET", "/audit-logs/operations?module=roles", root, nil)
	require.Equal(t, 200, status, env.Message)
	var all page
	require.NoError(t, json.Unmarshal(env.Data, &all))
	require.EqualValues(t, 2, all.Total, "reads and anonymous logins are not recorded")
	for _, item := range all.Items {
		assert.Equal(t, "root@vault.test", item.Email)
		assert.Equal(t, "POST", item.Method)
		assert.Equal(t, "/roles", item.Path)
	}

	status, env = h.call("GET", "/audit-logs/operations?success=false", root, nil)
	require.Equal(t, 200, status)
	var failed page
	require.NoError(t, json.Unmarshal(env.Data, &failed))
	require.Len(t, failed.Items, 1)
	assert.Equal(t, 409, failed.Items[0].Status)
}
