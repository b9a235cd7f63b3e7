package rbac

import (
	"context"
	"fmt"

	"github.com/vaultadmin/pkg/identity"
	"github.com/vaultadmin/pkg/logger"
	"go.uber.org/zap"
)

// Backend 角色解析依赖的后端接口
type Backend interface {
	identity.Fetcher
	GetRoleByID(ctx context.Context, id string) (*identity.Role, error)
}

// Grant 策略解析得到的角色与权限
type Grant struct {
	Role        string
	RoleID      string
	RoleName    string
	Permissions PermissionSet
	Source      Source
}

// Strategy 自定义角色解析策略，返回 false 表示本策略无结果
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, pass *Pass) (Grant, bool)
}

// Pass 一次解析过程的状态，getMe 在同一次解析中最多调用一次
type Pass struct {
	Identity *identity.Identity

	backend Backend
	me      *identity.Me
	meErr   error
	fetched bool
	calls   int
}

// Me 获取当前身份记录（同一次解析内缓存）
func (p *Pass) Me(ctx context.Context) (*identity.Me, error) {
	if p.fetched {
		return p.me, p.meErr
	}
	p.fetched = true
	p.calls++
	p.me, p.meErr = p.backend.GetMe(ctx)
	if p.meErr == nil && p.me == nil {
		p.meErr = fmt.Errorf("empty identity record")
	}
	return p.me, p.meErr
}

// RoleID 已知的自定义角色ID，依次取后端记录、内联角色、身份
func (p *Pass) RoleID() string {
	if p.me != nil {
		if p.me.RoleID != "" {
			return p.me.RoleID
		}
		if p.me.InlineRole != nil && p.me.InlineRole.ID != "" {
			return p.me.InlineRole.ID
		}
	}
	return p.Identity.RoleID
}

// GetRoleByID 按ID获取角色
func (p *Pass) GetRoleByID(ctx context.Context, id string) (*identity.Role, error) {
	p.calls++
	return p.backend.GetRoleByID(ctx, id)
}

// Calls 本次解析发出的后端请求数
func (p *Pass) Calls() int {
	return p.calls
}

// InlineRoleStrategy 采用 getMe 返回的内联角色
type InlineRoleStrategy struct{}

func (InlineRoleStrategy) Name() string { return string(SourceInlineRole) }

func (InlineRoleStrategy) Resolve(ctx context.Context, pass *Pass) (Grant, bool) {
	me, err := pass.Me(ctx)
	if err != nil {
		logger.Debug("获取当前身份失败", zap.String("userId", pass.Identity.ID), zap.Error(err))
		return Grant{}, false
	}
	role := me.InlineRole
	if role == nil || len(role.Permissions) == 0 {
		return Grant{}, false
	}
	return Grant{
		Role:        RoleStaff,
		RoleID:      role.ID,
		RoleName:    role.Label(),
		Permissions: NewPermissionSet(ParsePermissions(role.Permissions)...),
		Source:      SourceInlineRole,
	}, true
}

// RoleByIDStrategy 按角色ID请求后端
type RoleByIDStrategy struct{}

func (RoleByIDStrategy) Name() string { return string(SourceRoleByID) }

func (RoleByIDStrategy) Resolve(ctx context.Context, pass *Pass) (Grant, bool) {
	roleID := pass.RoleID()
	if roleID == "" {
		return Grant{}, false
	}
	role, err := pass.GetRoleByID(ctx, roleID)
	if err != nil || role == nil {
		logger.Debug("获取角色失败", zap.String("roleId", roleID), zap.Error(err))
		return Grant{}, false
	}
	if len(role.Permissions) == 0 {
		return Grant{}, false
	}
	return Grant{
		Role:        RoleStaff,
		RoleID:      roleID,
		RoleName:    role.Label(),
		Permissions: NewPermissionSet(ParsePermissions(role.Permissions)...),
		Source:      SourceRoleByID,
	}, true
}

// DefaultStrategies 默认解析顺序：内联角色，按ID获取
func DefaultStrategies() []Strategy {
	return []Strategy{InlineRoleStrategy{}, RoleByIDStrategy{}}
}

// Resolver 角色解析器
type Resolver struct {
	backend    Backend
	strategies []Strategy
}

// NewResolver 创建解析器，未指定策略时使用默认顺序
func NewResolver(backend Backend, strategies ...Strategy) *Resolver {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Resolver{backend: backend, strategies: strategies}
}

// Resolve 计算身份对应的会话用户，nil 身份返回 nil
func (r *Resolver) Resolve(ctx context.Context, id *identity.Identity) (user *SessionUser) {
	if id == nil {
		return nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("角色解析异常，降级为最小权限",
				zap.String("userId", id.ID),
				zap.Any("panic", rec),
			)
			user = failClosed(id)
		}
	}()

	if isFullAccessRole(id.Role) {
		return newSessionUser(id, Grant{
			Role:        RoleSuperAdmin,
			RoleID:      id.RoleID,
			Permissions: builtinRoles[RoleSuperAdmin],
			Source:      SourceBuiltin,
		})
	}

	custom := id.Role == RoleStaff || id.RoleID != ""
	if custom && r.backend != nil {
		pass := &Pass{Identity: id, backend: r.backend}
		for _, s := range r.strategies {
			if grant, ok := s.Resolve(ctx, pass); ok {
				return newSessionUser(id, grant)
			}
		}
		logger.Warn("自定义角色解析失败，使用默认权限",
			zap.String("userId", id.ID),
			zap.String("role", id.Role),
			zap.String("roleId", pass.RoleID()),
		)
	}

	return fallback(id, custom)
}

func fallback(id *identity.Identity, attempted bool) *SessionUser {
	set, ok := BuiltinPermissions(id.Role)
	source := SourceBuiltin
	if !ok {
		// staff 或未知角色
		set = ViewerPermissions()
		source = SourceFallback
	} else if attempted {
		source = SourceFallback
	}
	return newSessionUser(id, Grant{
		Role:        id.Role,
		RoleID:      id.RoleID,
		Permissions: set,
		Source:      source,
	})
}

// failClosed 降级为最小权限，保留角色ID以便角色变更事件仍能命中该会话
func failClosed(id *identity.Identity) *SessionUser {
	return newSessionUser(id, Grant{
		Role:        RoleViewer,
		RoleID:      id.RoleID,
		Permissions: ViewerPermissions(),
		Source:      SourceFailClosed,
	})
}

func newSessionUser(id *identity.Identity, g Grant) *SessionUser {
	return &SessionUser{
		Identity:    *id,
		Role:        g.Role,
		RoleID:      g.RoleID,
		RoleName:    g.RoleName,
		Permissions: g.Permissions,
		Source:      g.Source,
	}
}
