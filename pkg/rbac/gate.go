package rbac

// Mode 多权限组合方式
type Mode string

const (
	ModeAny Mode = "any"
	ModeAll Mode = "all"
)

// GateSpec 内联权限门条件，所有给定条件同时满足才放行
type GateSpec struct {
	Show        *bool        `json:"show,omitempty"`
	Permission  Permission   `json:"permission,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
	Mode        Mode         `json:"mode,omitempty"` // 默认 any
	Role        string       `json:"role,omitempty"`
	Roles       []string     `json:"roles,omitempty"`
}

// Bool 返回布尔指针，用于 GateSpec.Show
func Bool(v bool) *bool {
	return &v
}

func (s GateSpec) hidden() bool {
	return s.Show != nil && !*s.Show
}

func (s GateSpec) permissionsPass(a Access) bool {
	if s.Permission != "" && !a.HasPermission(s.Permission) {
		return false
	}
	if len(s.Permissions) > 0 {
		if s.Mode == ModeAll {
			return a.HasAllPermissions(s.Permissions...)
		}
		return a.HasAnyPermission(s.Permissions...)
	}
	return true
}

func (s GateSpec) rolesPass(a Access) bool {
	if s.Role != "" && !a.HasRole(s.Role) {
		return false
	}
	if len(s.Roles) > 0 && !a.HasAnyRole(s.Roles...) {
		return false
	}
	return true
}

// CanRender 是否放行，未登录时始终拒绝
func CanRender(a Access, spec GateSpec) bool {
	if spec.hidden() || !a.Authenticated() {
		return false
	}
	return spec.permissionsPass(a) && spec.rolesPass(a)
}

// Render 放行时构造内容，否则返回 fallback
func Render[T any](a Access, spec GateSpec, children func() T, fallback T) T {
	if !CanRender(a, spec) {
		return fallback
	}
	return children()
}
