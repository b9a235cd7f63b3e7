// Package handler 控制台 HTTP 接口
package handler

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/vaultadmin/pkg/rbac"
	"github.com/vaultadmin/pkg/response"
	"github.com/vaultadmin/pkg/router"
	"github.com/vaultadmin/services/console/internal/session"
)

var validate = validator.New()

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SessionController 会话控制器
type SessionController struct {
	store *session.Store
}

// NewSessionController 创建会话控制器
func NewSessionController(store *session.Store) *SessionController {
	return &SessionController{store: store}
}

// Prefix 路由前缀
func (h *SessionController) Prefix() string {
	return "/session"
}

// Routes 路由表
func (h *SessionController) Routes() []router.Route {
	return []router.Route{
		{Method: fiber.MethodPost, Path: "login", Handler: h.Login},
		{Method: fiber.MethodPost, Path: "refresh", Handler: h.Refresh, Auth: true},
		{Method: fiber.MethodDelete, Path: "", Handler: h.Logout, Auth: true},
		{Method: fiber.MethodGet, Path: "me", Handler: h.Me, Auth: true},
		{Method: fiber.MethodGet, Path: "access", Handler: h.CanAccess, Auth: true},
		{Method: fiber.MethodPost, Path: "check", Handler: h.Check, Auth: true},
	}
}

// Login 登录并创建会话
// @Summary 操作员登录
// @Tags 会话
// @Accept json
// @Produce json
// @Param request body LoginRequest true "登录请求"
// @Success 201 {object} response.Response
// @Router /session/login [post]
func (h *SessionController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "请求格式错误")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(&req); err != nil {
		return response.Error(c, fiber.StatusUnprocessableEntity, "请输入有效的邮箱和密码")
	}

	s, err := h.store.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return response.FromError(c, err)
	}
	c.Set(session.Header, s.ID)
	return response.Created(c, "登录成功", fiber.Map{
		"sessionId": s.ID,
		"session":   s.State(),
	})
}

// Refresh 重新获取身份与权限
// @Summary 刷新会话
// @Tags 会话
// @Param X-Session-ID header string true "会话ID"
// @Success 200 {object} response.Response
// @Router /session/refresh [post]
func (h *SessionController) Refresh(c *fiber.Ctx) error {
	s := GetSession(c)
	if err := s.Refresh(c.UserContext()); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{"session": s.State()})
}

// Logout 登出
// @Summary 登出并销毁会话
// @Tags 会话
// @Param X-Session-ID header string true "会话ID"
// @Success 200 {object} response.Response
// @Router /session [delete]
func (h *SessionController) Logout(c *fiber.Ctx) error {
	h.store.Delete(GetSession(c).ID)
	return response.SuccessWithMessage(c, "已登出", nil)
}

// Me 当前会话用户
// @Summary 当前会话
// @Tags 会话
// @Param X-Session-ID header string true "会话ID"
// @Success 200 {object} response.Response
// @Router /session/me [get]
func (h *SessionController) Me(c *fiber.Ctx) error {
	s := GetSession(c)
	state := s.State()
	if state.Loading {
		return response.Accepted(c, "正在加载权限信息", fiber.Map{"session": state})
	}
	return response.Success(c, fiber.Map{"session": state})
}

// CanAccess 路由访问判断
// @Summary 判断能否访问路由
// @Tags 会话
// @Param X-Session-ID header string true "会话ID"
// @Param route query string true "路由"
// @Success 200 {object} response.Response
// @Router /session/access [get]
func (h *SessionController) CanAccess(c *fiber.Ctx) error {
	route := c.Query("route")
	if route == "" {
		return response.BadRequest(c, "缺少路由参数")
	}
	route = rbac.NormalizeRoute(route)
	return response.Success(c, fiber.Map{
		"route":   route,
		"allowed": GetSession(c).Access().CanAccessRoute(route),
	})
}

// Check 内联权限门判断
// @Summary 判断权限门是否放行
// @Tags 会话
// @Accept json
// @Param X-Session-ID header string true "会话ID"
// @Param request body rbac.GateSpec true "权限门条件"
// @Success 200 {object} response.Response
// @Router /session/check [post]
func (h *SessionController) Check(c *fiber.Ctx) error {
	var spec rbac.GateSpec
	if err := c.BodyParser(&spec); err != nil {
		return response.BadRequest(c, "请求格式错误")
	}
	return response.Success(c, fiber.Map{"allowed": rbac.CanRender(GetSession(c).Access(), spec)})
}
