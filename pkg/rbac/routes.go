package rbac

import "strings"

// RouteRule 路由权限条目
type RouteRule struct {
	Route               string       `json:"route"`
	RequiredPermissions []Permission `json:"requiredPermissions"`
}

// RouteTable 路由权限表，构建后只读
type RouteTable struct {
	rules []RouteRule
	index map[string][]Permission
}

// NewRouteTable 创建路由权限表，重复路由以后者为准
func NewRouteTable(rules ...RouteRule) *RouteTable {
	t := &RouteTable{index: make(map[string][]Permission, len(rules))}
	for _, r := range rules {
		route := NormalizeRoute(r.Route)
		perms := append([]Permission(nil), r.RequiredPermissions...)
		if _, exists := t.index[route]; !exists {
			t.rules = append(t.rules, RouteRule{Route: route})
		}
		t.index[route] = perms
	}
	for i := range t.rules {
		t.rules[i].RequiredPermissions = t.index[t.rules[i].Route]
	}
	return t
}

var defaultRoutes = NewRouteTable(
	RouteRule{Route: "/dashboard", RequiredPermissions: []Permission{PermViewDashboard}},
	RouteRule{Route: "/analytics", RequiredPermissions: []Permission{PermViewAnalytics}},
	RouteRule{Route: "/users", RequiredPermissions: []Permission{PermViewUsers}},
	RouteRule{Route: "/users/new", RequiredPermissions: []Permission{PermCreateUsers}},
	RouteRule{Route: "/files", RequiredPermissions: []Permission{PermViewFiles}},
	RouteRule{Route: "/deliveries", RequiredPermissions: []Permission{PermViewDeliveries}},
	RouteRule{Route: "/notifications", RequiredPermissions: []Permission{PermViewNotifications}},
	RouteRule{Route: "/notifications/send", RequiredPermissions: []Permission{PermSendNotifications}},
	RouteRule{Route: "/subscriptions", RequiredPermissions: []Permission{PermViewSubscriptions}},
	RouteRule{Route: "/billing", RequiredPermissions: []Permission{PermManageSubscriptions}},
	RouteRule{Route: "/referrals", RequiredPermissions: []Permission{PermViewReferrals}},
	RouteRule{Route: "/support", RequiredPermissions: []Permission{PermViewSupportTickets}},
	RouteRule{Route: "/audit-logs", RequiredPermissions: []Permission{PermViewAuditLogs}},
	RouteRule{Route: "/settings", RequiredPermissions: []Permission{PermManageSettings}},
	RouteRule{Route: "/admin/roles", RequiredPermissions: []Permission{PermManageAdminRoles}},
	RouteRule{Route: "/admin/staff", RequiredPermissions: []Permission{PermManageAdminRoles, PermEditUsers}},
)

// DefaultRoutes 默认路由权限表
func DefaultRoutes() *RouteTable {
	return defaultRoutes
}

// Lookup 查询路由所需权限
func (t *RouteTable) Lookup(route string) ([]Permission, bool) {
	if t == nil {
		return nil, false
	}
	perms, ok := t.index[NormalizeRoute(route)]
	if !ok {
		return nil, false
	}
	return append([]Permission(nil), perms...), true
}

// Rules 所有条目（副本）
func (t *RouteTable) Rules() []RouteRule {
	if t == nil {
		return nil
	}
	out := make([]RouteRule, len(t.rules))
	for i, r := range t.rules {
		out[i] = RouteRule{Route: r.Route, RequiredPermissions: append([]Permission(nil), r.RequiredPermissions...)}
	}
	return out
}

// NormalizeRoute 规范化路由路径
func NormalizeRoute(route string) string {
	route = strings.TrimSpace(route)
	if i := strings.IndexAny(route, "?#"); i >= 0 {
		route = route[:i]
	}
	route = strings.TrimRight(route, "/")
	if route == "" {
		return "/"
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return route
}
