package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/vaultadmin/pkg/logger"
	"github.com/vaultadmin/pkg/rbac"
	"github.com/vaultadmin/pkg/response"
	"github.com/vaultadmin/pkg/router"
	"github.com/vaultadmin/services/console/internal/session"
	"go.uber.org/zap"
)

// AdminController 角色管理控制器，以当前操作员的令牌转发到后端
type AdminController struct {
	store *session.Store
}

// NewAdminController 创建角色管理控制器
func NewAdminController(store *session.Store) *AdminController {
	return &AdminController{store: store}
}

// Prefix 路由前缀
func (h *AdminController) Prefix() string {
	return "/admin"
}

// Routes 路由表
func (h *AdminController) Routes() []router.Route {
	manage := string(rbac.PermManageAdminRoles)
	return []router.Route{
		{Method: fiber.MethodGet, Path: "permissions", Handler: h.Permissions, Permission: manage},
		{Method: fiber.MethodGet, Path: "roles", Handler: h.ListRoles, Permission: manage},
		{Method: fiber.MethodGet, Path: "roles/:id", Handler: h.GetRole, Permission: manage},
		{Method: fiber.MethodPost, Path: "roles", Handler: h.CreateRole, Permission: manage},
		{Method: fiber.MethodPut, Path: "roles/:id", Handler: h.UpdateRole, Permission: manage},
		{Method: fiber.MethodDelete, Path: "roles/:id", Handler: h.DeleteRole, Permission: manage},
		{Method: fiber.MethodPut, Path: "users/:id/role", Handler: h.AssignRole, Permission: manage},
	}
}

// Permissions 权限目录
// @Summary 权限目录（按分组）
// @Tags 角色管理
// @Success 200 {object} response.Response
// @Router /admin/permissions [get]
func (h *AdminController) Permissions(c *fiber.Ctx) error {
	return response.Success(c, fiber.Map{"groups": rbac.Groups()})
}

// ListRoles 角色列表
// @Summary 角色列表
// @Tags 角色管理
// @Success 200 {object} response.Response
// @Router /admin/roles [get]
func (h *AdminController) ListRoles(c *fiber.Ctx) error {
	roles, err := GetSession(c).Admin().List(c.UserContext())
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{"roles": roles})
}

// GetRole 角色详情
// @Summary 角色详情
// @Tags 角色管理
// @Param id path string true "角色ID"
// @Success 200 {object} response.Response
// @Router /admin/roles/{id} [get]
func (h *AdminController) GetRole(c *fiber.Ctx) error {
	role, err := GetSession(c).Admin().Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, fiber.Map{"role": role})
}

// CreateRole 创建角色
// @Summary 创建角色
// @Tags 角色管理
// @Accept json
// @Param request body rbac.RolePayload true "角色"
// @Success 201 {object} response.Response
// @Router /admin/roles [post]
func (h *AdminController) CreateRole(c *fiber.Ctx) error {
	var req rbac.RolePayload
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "请求格式错误")
	}
	role, err := GetSession(c).Admin().Create(c.UserContext(), req)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, "角色已创建", fiber.Map{"role": role})
}

// UpdateRole 更新角色
// @Summary 更新角色
// @Tags 角色管理
// @Accept json
// @Param id path string true "角色ID"
// @Param request body rbac.RolePayload true "角色"
// @Success 200 {object} response.Response
// @Router /admin/roles/{id} [put]
func (h *AdminController) UpdateRole(c *fiber.Ctx) error {
	var req rbac.RolePayload
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "请求格式错误")
	}
	role, err := GetSession(c).Admin().Update(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return response.FromError(c, err)
	}
	h.refresh(c.UserContext(), rbac.RoleChanged{RoleID: role.ID, Action: rbac.RoleUpdated})
	return response.SuccessWithMessage(c, "角色已更新", fiber.Map{"role": role})
}

// DeleteRole 删除角色，使用中或系统角色不会请求后端
// @Summary 删除角色
// @Tags 角色管理
// @Param id path string true "角色ID"
// @Success 200 {object} response.Response
// @Router /admin/roles/{id} [delete]
func (h *AdminController) DeleteRole(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := GetSession(c).Admin().DeleteByID(c.UserContext(), id); err != nil {
		return response.FromError(c, err)
	}
	h.refresh(c.UserContext(), rbac.RoleChanged{RoleID: id, Action: rbac.RoleDeleted})
	return response.SuccessWithMessage(c, "角色已删除", nil)
}

// AssignRole 分配用户角色
// @Summary 分配用户角色
// @Tags 角色管理
// @Accept json
// @Param id path string true "用户ID"
// @Param request body rbac.RoleAssignment true "角色分配"
// @Success 200 {object} response.Response
// @Router /admin/users/{id}/role [put]
func (h *AdminController) AssignRole(c *fiber.Ctx) error {
	var req rbac.RoleAssignment
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "请求格式错误")
	}
	userID := c.Params("id")
	if err := GetSession(c).Admin().AssignUserRole(c.UserContext(), userID, req); err != nil {
		return response.FromError(c, err)
	}
	h.refresh(c.UserContext(), rbac.RoleChanged{UserID: userID, Action: rbac.RoleAssigned})
	return response.SuccessWithMessage(c, "角色已分配", nil)
}

// refresh 变更成功后立即刷新本节点会话，不等待后端广播的事件
func (h *AdminController) refresh(ctx context.Context, ev rbac.RoleChanged) {
	if n := h.store.RefreshAffected(ctx, ev); n > 0 {
		logger.Info("已刷新受影响的会话", zap.String("action", ev.Action), zap.Int("sessions", n))
	}
}
