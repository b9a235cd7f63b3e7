package rbac

// TopicRoleChanged 后端角色或用户角色分配变化时发布的跨服务主题
const TopicRoleChanged = "rbac.role_changed"

// 角色变化类型
const (
	RoleUpdated  = "updated"
	RoleDeleted  = "deleted"
	RoleAssigned = "assigned"
)

// RoleChanged 角色变化事件，assigned 时 UserID 非空
type RoleChanged struct {
	RoleID string `json:"roleId,omitempty"`
	UserID string `json:"userId,omitempty"`
	Action string `json:"action"`
}

// Affects 会话用户是否受该事件影响
func (e RoleChanged) Affects(u *SessionUser) bool {
	if u == nil {
		return false
	}
	if e.UserID != "" && u.Identity.ID == e.UserID {
		return true
	}
	return e.RoleID != "" && u.RoleID == e.RoleID
}
