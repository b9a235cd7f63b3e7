package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/vaultadmin/pkg/errors"
	"github.com/vaultadmin/pkg/rbac"
	"github.com/vaultadmin/pkg/response"
	"github.com/vaultadmin/pkg/router"
	"github.com/vaultadmin/services/console/internal/page"
)

// PageController 页面守卫控制器
type PageController struct {
	catalog *page.Catalog
}

// NewPageController 创建页面控制器
func NewPageController(catalog *page.Catalog) *PageController {
	if catalog == nil {
		catalog = page.Default()
	}
	return &PageController{catalog: catalog}
}

// Prefix 路由前缀
func (h *PageController) Prefix() string {
	return "/pages"
}

// Routes 路由表
func (h *PageController) Routes() []router.Route {
	return []router.Route{
		{Method: fiber.MethodGet, Path: "nav", Handler: h.Nav, Auth: true},
		{Method: fiber.MethodGet, Path: "*", Handler: h.Show},
	}
}

// Nav 导航菜单
// @Summary 当前会话可见的导航
// @Tags 页面
// @Param X-Session-ID header string true "会话ID"
// @Success 200 {object} response.Response
// @Router /pages/nav [get]
func (h *PageController) Nav(c *fiber.Ctx) error {
	s := GetSession(c)
	return response.Success(c, fiber.Map{"pages": h.catalog.Nav(s.State(), s.Routes())})
}

// Show 页面守卫
// 加载中返回 202，未登录 401，被拒绝 403（附带结论），放行时返回操作清单
// @Summary 打开页面
// @Tags 页面
// @Param X-Session-ID header string false "会话ID"
// @Param path path string true "页面路径"
// @Success 200 {object} response.Response
// @Router /pages/{path} [get]
func (h *PageController) Show(c *fiber.Ctx) error {
	p, ok := h.catalog.Lookup(c.Params("*"))
	if !ok {
		return response.FromError(c, errors.NotFound("页面"))
	}

	state := rbac.SessionState{}
	routes := rbac.DefaultRoutes()
	if s := GetSession(c); s != nil {
		state = s.State()
		routes = s.Routes()
	}

	decision, manifest := page.Evaluate(state, routes, p)
	switch decision.Kind {
	case rbac.DecisionAllowed:
		return response.Success(c, fiber.Map{"decision": decision, "page": manifest})
	case rbac.DecisionLoading:
		return response.Accepted(c, decision.Message, fiber.Map{"decision": decision})
	case rbac.DecisionUnauthenticated:
		return response.ErrorWithData(c, fiber.StatusUnauthorized, decision.Message, fiber.Map{"decision": decision})
	default:
		return response.ErrorWithData(c, fiber.StatusForbidden, decision.Message, fiber.Map{"decision": decision})
	}
}
