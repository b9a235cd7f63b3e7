// Package session 维护控制台操作员会话：每个会话持有独立的身份服务与角色服务
package session

import (
	"context"
	"time"

	"github.com/vaultadmin/pkg/apiclient"
	"github.com/vaultadmin/pkg/errors"
	"github.com/vaultadmin/pkg/identity"
	"github.com/vaultadmin/pkg/rbac"
)

// Session 一个操作员会话
type Session struct {
	ID        string
	CreatedAt time.Time

	api   *apiclient.Client
	auth  *identity.Service
	roles *rbac.RoleService
}

func newSession(id string, api *apiclient.Client, verifier identity.TokenVerifier, routes *rbac.RouteTable) *Session {
	s := &Session{
		ID:        id,
		CreatedAt: time.Now(),
		api:       api,
	}
	s.auth = identity.NewService(verifier, backend{s})
	s.roles = rbac.NewRoleService(rbac.NewResolver(backend{s}), routes)
	s.roles.Bind(s.auth)
	return s
}

// backend 使用会话当前令牌访问后端
type backend struct {
	s *Session
}

func (b backend) GetMe(ctx context.Context) (*identity.Me, error) {
	return b.s.Client().GetMe(ctx)
}

func (b backend) GetRoleByID(ctx context.Context, id string) (*identity.Role, error) {
	return b.s.Client().GetRoleByID(ctx, id)
}

// Client 携带当前令牌的后端客户端
func (s *Session) Client() *apiclient.Client {
	return s.api.WithToken(s.auth.Token())
}

// Login 后端登录，令牌校验通过后等待角色解析完成
func (s *Session) Login(ctx context.Context, email, password string) error {
	res, err := s.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if _, err := s.auth.Login(ctx, res.Token); err != nil {
		return errors.Wrap(err, 401, "登录令牌无效")
	}
	return s.roles.Wait(ctx)
}

// Refresh 从后端重新获取身份并重新解析权限
func (s *Session) Refresh(ctx context.Context) error {
	if err := s.auth.Refresh(ctx); err != nil {
		if errors.Is(err, identity.ErrNotAuthenticated) {
			return errors.ErrSessionNotFound
		}
		return err
	}
	return s.roles.Wait(ctx)
}

// Reload 身份不变，仅重新解析权限
func (s *Session) Reload(ctx context.Context) error {
	s.roles.Reload()
	return s.roles.Wait(ctx)
}

// State 当前会话状态
func (s *Session) State() rbac.SessionState {
	return s.roles.State()
}

// User 当前会话用户，未登录时为 nil
func (s *Session) User() *rbac.SessionUser {
	return s.roles.User()
}

// Access 权限判断
func (s *Session) Access() rbac.Access {
	return s.roles.Access()
}

// Routes 路由权限表
func (s *Session) Routes() *rbac.RouteTable {
	return s.roles.Routes()
}

// Admin 以当前身份进行角色管理
func (s *Session) Admin() *rbac.RoleManager {
	return rbac.NewRoleManager(s.Client())
}

// close 登出并停止角色服务
func (s *Session) close() {
	s.auth.Logout()
	s.roles.Close()
}
