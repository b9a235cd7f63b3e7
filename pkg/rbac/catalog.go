package rbac

// Permission 权限标识，取自固定的权限目录
type Permission string

// 权限目录
const (
	PermViewDashboard Permission = "view_dashboard"
	PermViewAnalytics Permission = "view_analytics"

	PermViewUsers   Permission = "view_users"
	PermCreateUsers Permission = "create_users"
	PermEditUsers   Permission = "edit_users"
	PermDeleteUsers Permission = "delete_users"

	PermViewFiles   Permission = "view_files"
	PermEditFiles   Permission = "edit_files"
	PermDeleteFiles Permission = "delete_files"

	PermViewDeliveries   Permission = "view_deliveries"
	PermManageDeliveries Permission = "manage_deliveries"

	PermViewNotifications Permission = "view_notifications"
	PermSendNotifications Permission = "send_notifications"

	PermViewSubscriptions   Permission = "view_subscriptions"
	PermManageSubscriptions Permission = "manage_subscriptions"

	PermViewReferrals   Permission = "view_referrals"
	PermManageReferrals Permission = "manage_referrals"

	PermViewSupportTickets    Permission = "view_support_tickets"
	PermRespondSupportTickets Permission = "respond_support_tickets"

	PermViewAuditLogs    Permission = "view_audit_logs"
	PermManageSettings   Permission = "manage_settings"
	PermManageAdminRoles Permission = "manage_admin_roles"
)

// PermissionGroup 权限分组（角色编辑器展示用）
type PermissionGroup struct {
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
}

var catalog = []PermissionGroup{
	{Name: "dashboard", Permissions: []Permission{PermViewDashboard, PermViewAnalytics}},
	{Name: "users", Permissions: []Permission{PermViewUsers, PermCreateUsers, PermEditUsers, PermDeleteUsers}},
	{Name: "files", Permissions: []Permission{PermViewFiles, PermEditFiles, PermDeleteFiles}},
	{Name: "deliveries", Permissions: []Permission{PermViewDeliveries, PermManageDeliveries}},
	{Name: "notifications", Permissions: []Permission{PermViewNotifications, PermSendNotifications}},
	{Name: "subscriptions", Permissions: []Permission{PermViewSubscriptions, PermManageSubscriptions}},
	{Name: "referrals", Permissions: []Permission{PermViewReferrals, PermManageReferrals}},
	{Name: "support", Permissions: []Permission{PermViewSupportTickets, PermRespondSupportTickets}},
	{Name: "system", Permissions: []Permission{PermViewAuditLogs, PermManageSettings, PermManageAdminRoles}},
}

var known = func() map[Permission]struct{} {
	m := make(map[Permission]struct{})
	for _, g := range catalog {
		for _, p := range g.Permissions {
			m[p] = struct{}{}
		}
	}
	return m
}()

// AllPermissions 返回完整权限目录（按展示顺序，返回副本）
func AllPermissions() []Permission {
	all := make([]Permission, 0, len(known))
	for _, g := range catalog {
		all = append(all, g.Permissions...)
	}
	return all
}

// Groups 返回分组后的权限目录
func Groups() []PermissionGroup {
	groups := make([]PermissionGroup, len(catalog))
	for i, g := range catalog {
		groups[i] = PermissionGroup{
			Name:        g.Name,
			Permissions: append([]Permission(nil), g.Permissions...),
		}
	}
	return groups
}

// IsKnown 是否为目录内的权限
func IsKnown(p Permission) bool {
	_, ok := known[p]
	return ok
}

// ParsePermissions 将字符串列表转为权限列表
// 未知的权限字符串会被保留，它们不会匹配任何门控
func ParsePermissions(values []string) []Permission {
	perms := make([]Permission, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		perms = append(perms, Permission(v))
	}
	return perms
}

// Strings 权限列表转字符串列表
func Strings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}
