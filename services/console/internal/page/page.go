// Package page 控制台页面目录：每个页面的守卫条件与页内操作的权限门
package page

import (
	"sort"

	"github.com/vaultadmin/pkg/rbac"
)

// Action 页内操作（按钮、菜单项）
type Action struct {
	ID    string        `json:"id"`
	Label string        `json:"label"`
	Gate  rbac.GateSpec `json:"-"`
}

// Page 页面定义
type Page struct {
	Path    string         `json:"path"`
	Title   string         `json:"title"`
	Nav     bool           `json:"nav"`
	Guard   rbac.GuardSpec `json:"-"`
	Actions []Action       `json:"-"`
}

// Manifest 页面放行后返回给前端的清单
type Manifest struct {
	Path    string   `json:"path"`
	Title   string   `json:"title"`
	Actions []Action `json:"actions"`
}

// Catalog 页面目录，构建后只读
type Catalog struct {
	pages []Page
	index map[string]int
}

// NewCatalog 创建页面目录，路径重复时以后者为准
func NewCatalog(pages ...Page) *Catalog {
	c := &Catalog{index: make(map[string]int, len(pages))}
	for _, p := range pages {
		p.Path = rbac.NormalizeRoute(p.Path)
		if i, ok := c.index[p.Path]; ok {
			c.pages[i] = p
			continue
		}
		c.index[p.Path] = len(c.pages)
		c.pages = append(c.pages, p)
	}
	return c
}

func routeGuard(route string, perm rbac.Permission) rbac.GuardSpec {
	return rbac.GuardSpec{RequiredRoute: route, GateSpec: rbac.GateSpec{Permission: perm}}
}

func gate(perm rbac.Permission) rbac.GateSpec {
	return rbac.GateSpec{Permission: perm}
}

var defaultCatalog = NewCatalog(
	Page{Path: "/dashboard", Title: "仪表盘", Nav: true, Guard: routeGuard("/dashboard", rbac.PermViewDashboard), Actions: []Action{
		{ID: "analytics", Label: "查看分析", Gate: gate(rbac.PermViewAnalytics)},
	}},
	Page{Path: "/users", Title: "用户管理", Nav: true, Guard: routeGuard("/users", rbac.PermViewUsers), Actions: []Action{
		{ID: "create", Label: "新建用户", Gate: gate(rbac.PermCreateUsers)},
		{ID: "edit", Label: "编辑", Gate: gate(rbac.PermEditUsers)},
		{ID: "delete", Label: "删除", Gate: gate(rbac.PermDeleteUsers)},
		{ID: "assign_role", Label: "分配角色", Gate: gate(rbac.PermManageAdminRoles)},
	}},
	Page{Path: "/files", Title: "文件管理", Nav: true, Guard: routeGuard("/files", rbac.PermViewFiles), Actions: []Action{
		{ID: "edit", Label: "编辑", Gate: gate(rbac.PermEditFiles)},
		{ID: "delete", Label: "删除", Gate: gate(rbac.PermDeleteFiles)},
	}},
	Page{Path: "/deliveries", Title: "投递记录", Nav: true, Guard: routeGuard("/deliveries", rbac.PermViewDeliveries), Actions: []Action{
		{ID: "manage", Label: "管理投递", Gate: gate(rbac.PermManageDeliveries)},
	}},
	Page{Path: "/notifications", Title: "通知", Nav: true, Guard: routeGuard("/notifications", rbac.PermViewNotifications), Actions: []Action{
		{ID: "send", Label: "发送通知", Gate: gate(rbac.PermSendNotifications)},
	}},
	Page{Path: "/subscriptions", Title: "订阅", Nav: true, Guard: routeGuard("/subscriptions", rbac.PermViewSubscriptions), Actions: []Action{
		{ID: "manage", Label: "管理订阅", Gate: gate(rbac.PermManageSubscriptions)},
	}},
	Page{Path: "/referrals", Title: "推荐", Nav: true, Guard: routeGuard("/referrals", rbac.PermViewReferrals), Actions: []Action{
		{ID: "manage", Label: "管理推荐", Gate: gate(rbac.PermManageReferrals)},
	}},
	Page{Path: "/support", Title: "客服工单", Nav: true, Guard: routeGuard("/support", rbac.PermViewSupportTickets), Actions: []Action{
		{ID: "respond", Label: "回复工单", Gate: gate(rbac.PermRespondSupportTickets)},
	}},
	Page{Path: "/audit-logs", Title: "审计日志", Nav: true, Guard: routeGuard("/audit-logs", rbac.PermViewAuditLogs)},
	Page{Path: "/settings", Title: "系统设置", Nav: true, Guard: routeGuard("/settings", rbac.PermManageSettings)},
	Page{Path: "/admin/roles", Title: "角色管理", Nav: true, Guard: routeGuard("/admin/roles", rbac.PermManageAdminRoles), Actions: []Action{
		{ID: "create", Label: "新建角色", Gate: gate(rbac.PermManageAdminRoles)},
		{ID: "edit", Label: "编辑角色", Gate: gate(rbac.PermManageAdminRoles)},
		{ID: "delete", Label: "删除角色", Gate: gate(rbac.PermManageAdminRoles)},
	}},
	Page{Path: "/admin/staff", Title: "员工管理", Nav: true, Guard: rbac.GuardSpec{RequiredRoute: "/admin/staff"}, Actions: []Action{
		{ID: "assign_role", Label: "分配角色", Gate: gate(rbac.PermManageAdminRoles)},
		{ID: "edit", Label: "编辑员工", Gate: gate(rbac.PermEditUsers)},
	}},
	Page{Path: "/profile", Title: "个人资料"},
)

// Default 默认页面目录
func Default() *Catalog {
	return defaultCatalog
}

// Lookup 按路径查找页面
func (c *Catalog) Lookup(path string) (Page, bool) {
	i, ok := c.index[rbac.NormalizeRoute(path)]
	if !ok {
		return Page{}, false
	}
	return c.pages[i], true
}

// Pages 所有页面，按路径排序
func (c *Catalog) Pages() []Page {
	out := append([]Page(nil), c.pages...)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Evaluate 守卫页面；放行时返回过滤后的操作清单，拒绝时清单为 nil
func Evaluate(state rbac.SessionState, routes *rbac.RouteTable, p Page) (rbac.Decision, *Manifest) {
	decision := rbac.Guard(state, routes, p.Guard)
	if !decision.Allowed() {
		return decision, nil
	}

	access := rbac.NewAccess(state.User, routes)
	manifest := &Manifest{Path: p.Path, Title: p.Title, Actions: make([]Action, 0, len(p.Actions))}
	for _, a := range p.Actions {
		if rbac.CanRender(access, a.Gate) {
			manifest.Actions = append(manifest.Actions, a)
		}
	}
	return decision, manifest
}

// Nav 当前会话可见的导航项；加载中或未登录时为空
func (c *Catalog) Nav(state rbac.SessionState, routes *rbac.RouteTable) []Page {
	out := []Page{}
	if state.Loading || state.User == nil {
		return out
	}
	access := rbac.NewAccess(state.User, routes)
	for _, p := range c.pages {
		if p.Nav && access.CanAccessRoute(p.Path) {
			out = append(out, p)
		}
	}
	return out
}
