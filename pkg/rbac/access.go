package rbac

// Access 基于会话用户的访问判断，无副作用
type Access struct {
	user   *SessionUser
	routes *RouteTable
}

// NewAccess 创建访问判断器，routes 为 nil 时使用默认路由表
func NewAccess(user *SessionUser, routes *RouteTable) Access {
	if routes == nil {
		routes = DefaultRoutes()
	}
	return Access{user: user, routes: routes}
}

// User 当前会话用户
func (a Access) User() *SessionUser {
	return a.user
}

// Authenticated 是否已登录
func (a Access) Authenticated() bool {
	return a.user != nil
}

// HasPermission 是否拥有权限
func (a Access) HasPermission(p Permission) bool {
	return a.user != nil && a.user.Permissions.Has(p)
}

// HasAnyPermission 是否拥有任一权限，空列表返回 false
func (a Access) HasAnyPermission(perms ...Permission) bool {
	for _, p := range perms {
		if a.HasPermission(p) {
			return true
		}
	}
	return false
}

// HasAllPermissions 是否拥有全部权限
func (a Access) HasAllPermissions(perms ...Permission) bool {
	if a.user == nil {
		return false
	}
	for _, p := range perms {
		if !a.user.Permissions.Has(p) {
			return false
		}
	}
	return true
}

// HasRole 角色是否完全一致
func (a Access) HasRole(role string) bool {
	return a.user != nil && a.user.Role == role
}

// HasAnyRole 角色是否属于集合
func (a Access) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if a.HasRole(r) {
			return true
		}
	}
	return false
}

// CanAccessRoute 是否可以访问路由
// 未登录时始终为 false，未配置的路由对已登录用户开放
func (a Access) CanAccessRoute(route string) bool {
	if a.user == nil {
		return false
	}
	required, ok := a.routes.Lookup(route)
	if !ok {
		return true
	}
	return a.HasAnyPermission(required...)
}
