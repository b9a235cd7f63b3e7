package rbac

// 内置角色
const (
	RoleSuperAdmin   = "super_admin"
	RoleAdmin        = "admin"
	RoleSupportAdmin = "support_admin"
	RoleModerator    = "moderator"
	RoleViewer       = "viewer"
)

// RoleStaff 持有自定义角色的员工身份（非内置角色）
const RoleStaff = "staff"

var builtinOrder = []string{RoleSuperAdmin, RoleAdmin, RoleSupportAdmin, RoleModerator, RoleViewer}

var builtinRoles = map[string]PermissionSet{
	// super_admin 始终等于完整目录
	RoleSuperAdmin: NewPermissionSet(AllPermissions()...),

	RoleAdmin: NewPermissionSet(AllPermissions()...).Without(PermManageAdminRoles, PermManageSettings),

	RoleSupportAdmin: NewPermissionSet(
		PermViewDashboard,
		PermViewUsers, PermEditUsers,
		PermViewFiles,
		PermViewDeliveries,
		PermViewNotifications, PermSendNotifications,
		PermViewSubscriptions,
		PermViewReferrals,
		PermViewSupportTickets, PermRespondSupportTickets,
	),

	RoleModerator: NewPermissionSet(
		PermViewDashboard,
		PermViewUsers,
		PermViewFiles, PermEditFiles,
		PermViewNotifications,
		PermViewSupportTickets, PermRespondSupportTickets,
	),

	RoleViewer: NewPermissionSet(
		PermViewDashboard,
		PermViewUsers,
		PermViewFiles,
		PermViewDeliveries,
		PermViewNotifications,
		PermViewSubscriptions,
		PermViewReferrals,
		PermViewSupportTickets,
	),
}

// BuiltinRoles 内置角色列表（按权限由高到低）
func BuiltinRoles() []string {
	return append([]string(nil), builtinOrder...)
}

// IsBuiltinRole 是否为内置角色
func IsBuiltinRole(role string) bool {
	_, ok := builtinRoles[role]
	return ok
}

// BuiltinPermissions 获取内置角色的权限集合
func BuiltinPermissions(role string) (PermissionSet, bool) {
	set, ok := builtinRoles[role]
	return set, ok
}

// ViewerPermissions 最小权限集合
func ViewerPermissions() PermissionSet {
	return builtinRoles[RoleViewer]
}

// isFullAccessRole 后端 admin 与 super_admin 都映射为前端 super_admin
func isFullAccessRole(role string) bool {
	return role == RoleAdmin || role == RoleSuperAdmin
}
