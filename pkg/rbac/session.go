package rbac

import "github.com/vaultadmin/pkg/identity"

// Source 会话权限的来源
type Source string

const (
	SourceBuiltin    Source = "builtin"
	SourceInlineRole Source = "inline_role"
	SourceRoleByID   Source = "role_by_id"
	SourceFallback   Source = "fallback"
	SourceFailClosed Source = "fail_closed"
)

// SessionUser 当前会话用户，解析完成后只读
type SessionUser struct {
	Identity    identity.Identity `json:"identity"`
	Role        string            `json:"role"`
	RoleID      string            `json:"roleId,omitempty"`
	RoleName    string            `json:"roleName,omitempty"`
	Permissions PermissionSet     `json:"permissions"`
	Source      Source            `json:"source"`
}

// Equal 两次解析结果是否一致
func (u *SessionUser) Equal(other *SessionUser) bool {
	if u == nil || other == nil {
		return u == other
	}
	return u.Identity == other.Identity &&
		u.Role == other.Role &&
		u.RoleID == other.RoleID &&
		u.RoleName == other.RoleName &&
		u.Source == other.Source &&
		u.Permissions.Equal(other.Permissions)
}
