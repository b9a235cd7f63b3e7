package rbac

// DecisionKind 页面守卫结论
type DecisionKind string

const (
	DecisionAllowed          DecisionKind = "allowed"
	DecisionLoading          DecisionKind = "loading"
	DecisionUnauthenticated  DecisionKind = "unauthenticated"
	DecisionPermissionDenied DecisionKind = "permission_denied"
	DecisionRoleDenied       DecisionKind = "role_denied"
	DecisionRouteDenied      DecisionKind = "route_denied"
)

// Decision 页面守卫结果
type Decision struct {
	Kind    DecisionKind `json:"kind"`
	Title   string       `json:"title,omitempty"`
	Message string       `json:"message,omitempty"`
	Icon    string       `json:"icon,omitempty"`
}

// Allowed 是否放行
func (d Decision) Allowed() bool {
	return d.Kind == DecisionAllowed
}

var decisions = map[DecisionKind]Decision{
	DecisionAllowed:          {Kind: DecisionAllowed},
	DecisionLoading:          {Kind: DecisionLoading, Title: "加载中", Message: "正在加载权限信息", Icon: "spinner"},
	DecisionUnauthenticated:  {Kind: DecisionUnauthenticated, Title: "需要登录", Message: "请先登录后再访问此页面", Icon: "lock"},
	DecisionPermissionDenied: {Kind: DecisionPermissionDenied, Title: "访问被拒绝", Message: "您没有访问此页面所需的权限", Icon: "shield"},
	DecisionRoleDenied:       {Kind: DecisionRoleDenied, Title: "访问被拒绝", Message: "您的角色无权访问此页面", Icon: "user-x"},
	DecisionRouteDenied:      {Kind: DecisionRouteDenied, Title: "访问被拒绝", Message: "您没有访问该路由的权限", Icon: "ban"},
}

// SessionState 会话状态快照
type SessionState struct {
	User    *SessionUser `json:"user"`
	Loading bool         `json:"loading"`
}

// GuardSpec 页面守卫条件
type GuardSpec struct {
	GateSpec
	RequiredRoute string `json:"requiredRoute,omitempty"`
}

// Guard 判断整页是否可以展示，任何拒绝结论都不会渲染页面内容
func Guard(state SessionState, routes *RouteTable, spec GuardSpec) Decision {
	if state.Loading {
		return decisions[DecisionLoading]
	}
	if state.User == nil {
		return decisions[DecisionUnauthenticated]
	}
	if spec.hidden() {
		return decisions[DecisionPermissionDenied]
	}

	a := NewAccess(state.User, routes)
	if spec.RequiredRoute != "" && !a.CanAccessRoute(spec.RequiredRoute) {
		return decisions[DecisionRouteDenied]
	}
	if !spec.permissionsPass(a) {
		return decisions[DecisionPermissionDenied]
	}
	if !spec.rolesPass(a) {
		return decisions[DecisionRoleDenied]
	}
	return decisions[DecisionAllowed]
}
