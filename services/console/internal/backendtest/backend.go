// Package backendtest 提供控制台测试使用的后端 API 替身
package backendtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/vaultadmin/pkg/auth"
	"github.com/vaultadmin/pkg/config"
	"github.com/vaultadmin/pkg/identity"
	"github.com/vaultadmin/pkg/rbac"
)

type account struct {
	identity.Identity
	password string
}

// Backend 内存中的后端 API
type Backend struct {
	URL string
	JWT *auth.JWTManager

	mu     sync.Mutex
	users  map[string]*account
	roles  map[string]*identity.Role
	down   bool
	nextID int
	calls  []string
}

// New 启动后端替身，测试结束时关闭
func New(t *testing.T) *Backend {
	t.Helper()
	b := &Backend{
		JWT:   auth.NewJWTManager(&config.JWTConfig{Secret: "console-test", Issuer: "test", Expire: 3600}),
		users: make(map[string]*account),
		roles: make(map[string]*identity.Role),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", b.login)
	mux.HandleFunc("GET /auth/me", b.authed(b.me))
	mux.HandleFunc("GET /roles", b.authed(b.listRoles))
	mux.HandleFunc("GET /roles/{id}", b.authed(b.getRole))
	mux.HandleFunc("POST /roles", b.manage(b.createRole))
	mux.HandleFunc("PUT /roles/{id}", b.manage(b.updateRole))
	mux.HandleFunc("DELETE /roles/{id}", b.manage(b.deleteRole))
	mux.HandleFunc("PUT /users/{id}/role", b.manage(b.assignRole))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	b.URL = srv.URL
	return b
}

// AddUser 添加用户
func (b *Backend) AddUser(id identity.Identity, password string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[id.ID] = &account{Identity: id, password: password}
}

// PutRole 添加或替换角色
func (b *Backend) PutRole(role identity.Role) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roles[role.ID] = &role
}

// SetUserRole 直接修改用户角色，不经过接口
func (b *Backend) SetUserRole(userID, role, roleID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if u, ok := b.users[userID]; ok {
		u.Role = role
		u.RoleID = roleID
	}
}

// SetDown 模拟后端不可用（登录除外）
func (b *Backend) SetDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = down
}

// Calls 已收到的写请求
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "code": status, "message": message})
}

func ok(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"success": true, "code": status, "data": data})
}

type authedHandler func(w http.ResponseWriter, r *http.Request, caller *account)

func (b *Backend) authed(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims, err := b.JWT.ParseToken(token)
		if err != nil {
			fail(w, http.StatusUnauthorized, "无效的认证令牌")
			return
		}

		b.mu.Lock()
		down := b.down
		caller, found := b.users[claims.UserID]
		b.mu.Unlock()
		if down {
			fail(w, http.StatusServiceUnavailable, "后端服务不可用")
			return
		}
		if !found {
			fail(w, http.StatusUnauthorized, "用户不存在")
			return
		}
		next(w, r, caller)
	}
}

// manage 与后端一致：内置角色按内置权限集判断，admin 不含角色管理权限
func (b *Backend) manage(next authedHandler) http.HandlerFunc {
	return b.authed(func(w http.ResponseWriter, r *http.Request, caller *account) {
		allowed := false
		if set, builtin := rbac.BuiltinPermissions(caller.Role); builtin {
			allowed = set.Has(rbac.PermManageAdminRoles)
		} else {
			b.mu.Lock()
			if role, found := b.roles[caller.RoleID]; found {
				for _, p := range role.Permissions {
					allowed = allowed || p == string(rbac.PermManageAdminRoles)
				}
			}
			b.mu.Unlock()
		}
		if !allowed {
			fail(w, http.StatusForbidden, "没有访问权限")
			return
		}
		next(w, r, caller)
	})
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	var found *account
	for _, u := range b.users {
		if u.Email == req.Email && u.password == req.Password {
			found = u
		}
	}
	b.mu.Unlock()
	if found == nil {
		fail(w, http.StatusUnauthorized, "用户名或密码错误")
		return
	}

	token, err := b.JWT.GenerateToken(auth.Subject{
		UserID: found.ID,
		Email:  found.Email,
		Name:   found.Name,
		Role:   found.Role,
		RoleID: found.RoleID,
	})
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	ok(w, http.StatusOK, map[string]any{"token": token, "user": found.Identity})
}

func (b *Backend) me(w http.ResponseWriter, _ *http.Request, caller *account) {
	b.mu.Lock()
	user := map[string]any{
		"id":    caller.ID,
		"email": caller.Email,
		"name":  caller.Name,
		"role":  caller.Role,
	}
	if role, found := b.roles[caller.RoleID]; found {
		user["roleId"] = role
	} else if caller.RoleID != "" {
		user["roleId"] = caller.RoleID
	}
	b.mu.Unlock()
	ok(w, http.StatusOK, map[string]any{"user": user})
}

func (b *Backend) usage(id string) int {
	n := 0
	for _, u := range b.users {
		if u.RoleID == id {
			n++
		}
	}
	return n
}

func (b *Backend) listRoles(w http.ResponseWriter, _ *http.Request, _ *account) {
	b.mu.Lock()
	roles := make([]identity.Role, 0, len(b.roles))
	for _, r := range b.roles {
		role := *r
		role.UsageCount = b.usage(r.ID)
		roles = append(roles, role)
	}
	b.mu.Unlock()
	ok(w, http.StatusOK, map[string]any{"roles": roles})
}

func (b *Backend) getRole(w http.ResponseWriter, r *http.Request, _ *account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	role, found := b.roles[r.PathValue("id")]
	if !found {
		fail(w, http.StatusNotFound, "角色不存在")
		return
	}
	out := *role
	out.UsageCount = b.usage(role.ID)
	ok(w, http.StatusOK, map[string]any{"role": out})
}

func (b *Backend) createRole(w http.ResponseWriter, r *http.Request, _ *account) {
	var req rbac.RolePayload
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.roles {
		if existing.Name == req.Name {
			fail(w, http.StatusConflict, "角色名称已存在")
			return
		}
	}
	b.nextID++
	role := &identity.Role{
		ID:          "role-" + strconv.Itoa(b.nextID),
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		Color:       req.Color,
		Permissions: req.Permissions,
	}
	b.roles[role.ID] = role
	b.calls = append(b.calls, "create "+role.ID)
	ok(w, http.StatusCreated, map[string]any{"role": role})
}

func (b *Backend) updateRole(w http.ResponseWriter, r *http.Request, _ *account) {
	var req rbac.RolePayload
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	defer b.mu.Unlock()
	role, found := b.roles[r.PathValue("id")]
	if !found {
		fail(w, http.StatusNotFound, "角色不存在")
		return
	}
	role.Name = req.Name
	role.DisplayName = req.DisplayName
	role.Description = req.Description
	role.Color = req.Color
	role.Permissions = req.Permissions
	b.calls = append(b.calls, "update "+role.ID)
	ok(w, http.StatusOK, map[string]any{"role": role})
}

func (b *Backend) deleteRole(w http.ResponseWriter, r *http.Request, _ *account) {
	id := r.PathValue("id")
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, found := b.roles[id]; !found {
		fail(w, http.StatusNotFound, "角色不存在")
		return
	}
	delete(b.roles, id)
	b.calls = append(b.calls, "delete "+id)
	ok(w, http.StatusOK, nil)
}

func (b *Backend) assignRole(w http.ResponseWriter, r *http.Request, _ *account) {
	var req rbac.RoleAssignment
	_ = json.NewDecoder(r.Body).Decode(&req)

	id := r.PathValue("id")
	b.mu.Lock()
	defer b.mu.Unlock()
	u, found := b.users[id]
	if !found {
		fail(w, http.StatusNotFound, "用户不存在")
		return
	}
	u.Role = req.Role
	u.RoleID = req.RoleID
	b.calls = append(b.calls, "assign "+id)
	ok(w, http.StatusOK, nil)
}
