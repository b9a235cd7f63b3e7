package role

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/vaultadmin/pkg/auth"
	"github.com/vaultadmin/pkg/dal"
	"github.com/vaultadmin/pkg/errors"
	"github.com/vaultadmin/pkg/events"
	"github.com/vaultadmin/pkg/logger"
	"github.com/vaultadmin/pkg/rbac"
	"github.com/vaultadmin/pkg/response"
	"github.com/vaultadmin/pkg/router"
	"github.com/vaultadmin/services/rbac/internal/model"
	"go.uber.org/zap"
)

// Policy 角色权限策略，由 auth.PolicyStore 实现
type Policy interface {
	SetPermissions(subject string, permissions []string) error
	Permissions(subject string) ([]string, error)
	RemoveSubject(subject string) error
}

// Controller 角色控制器
type Controller struct {
	repo      Repository
	policy    Policy
	publisher events.Publisher
}

// NewController 创建角色控制器，publisher 可为 nil
func NewController(repo Repository, policy Policy, publisher events.Publisher) *Controller {
	return &Controller{
		repo:      repo,
		policy:    policy,
		publisher: publisher,
	}
}

// Prefix 路由前缀
func (c *Controller) Prefix() string {
	return "/roles"
}

// Routes 路由表
func (c *Controller) Routes() []router.Route {
	manage := string(rbac.PermManageAdminRoles)
	return []router.Route{
		{Method: fiber.MethodGet, Path: "", Handler: c.List, Auth: true},
		{Method: fiber.MethodGet, Path: ":id", Handler: c.Get, Auth: true},
		{Method: fiber.MethodPost, Path: "", Handler: c.Create, Permission: manage},
		{Method: fiber.MethodPut, Path: ":id", Handler: c.Update, Permission: manage},
		{Method: fiber.MethodDelete, Path: ":id", Handler: c.Delete, Permission: manage},
	}
}

// List 角色列表
// @Summary 角色列表
// @Tags 角色管理
// @Produce json
// @Success 200 {object} response.Response
// @Router /roles [get]
func (c *Controller) List(ctx *fiber.Ctx) error {
	roles, err := c.list(ctx.UserContext())
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, fiber.Map{"roles": roles})
}

// list 角色列表业务逻辑
func (c *Controller) list(ctx context.Context) ([]rbac.CustomRole, error) {
	roles, err := c.repo.FindAll(ctx, nil, dal.WithOrder("name"))
	if err != nil {
		return nil, err
	}
	counts, err := c.repo.UsageCounts(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]rbac.CustomRole, 0, len(roles))
	for i := range roles {
		view, err := c.view(&roles[i], counts[roles[i].ID])
		if err != nil {
			return nil, err
		}
		out = append(out, *view)
	}
	return out, nil
}

// Get 获取角色
// @Summary 获取角色详情
// @Tags 角色管理
// @Param id path string true "角色ID"
// @Success 200 {object} response.Response
// @Router /roles/{id} [get]
func (c *Controller) Get(ctx *fiber.Ctx) error {
	role, err := c.get(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, fiber.Map{"role": role})
}

// get 获取角色业务逻辑
func (c *Controller) get(ctx context.Context, id string) (*rbac.CustomRole, error) {
	role, err := c.find(ctx, id)
	if err != nil {
		return nil, err
	}
	usage, err := c.repo.UsageCount(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.view(role, usage)
}

// Create 创建角色
// @Summary 创建角色
// @Tags 角色管理
// @Accept json
// @Produce json
// @Param request body rbac.RolePayload true "创建角色请求"
// @Success 201 {object} response.Response
// @Router /roles [post]
func (c *Controller) Create(ctx *fiber.Ctx) error {
	var req rbac.RolePayload
	if err := ctx.BodyParser(&req); err != nil {
		return response.BadRequest(ctx, "请求格式错误")
	}

	role, err := c.create(ctx.UserContext(), req)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Created(ctx, "角色已创建", fiber.Map{"role": role})
}

// create 创建角色业务逻辑
func (c *Controller) create(ctx context.Context, req rbac.RolePayload) (*rbac.CustomRole, error) {
	if err := checkPayload(&req); err != nil {
		return nil, err
	}

	existing, err := c.repo.FindByName(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.Duplicate("角色名称")
	}

	role := &model.Role{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		Color:       req.Color,
	}
	if err := c.repo.Create(ctx, role); err != nil {
		return nil, err
	}
	subject := auth.RoleSubject(role.ID)
	if err := c.policy.SetPermissions(subject, req.Permissions); err != nil {
		// 权限写入失败时撤销角色记录
		if delErr := c.repo.Delete(ctx, role.ID); delErr != nil {
			logger.Error("撤销角色记录失败", zap.String("roleId", role.ID), zap.Error(delErr))
		}
		if rmErr := c.policy.RemoveSubject(subject); rmErr != nil {
			logger.Error("清理角色策略失败", zap.String("roleId", role.ID), zap.Error(rmErr))
		}
		return nil, errors.Wrap(err, 500, "保存角色权限失败")
	}

	logger.Info("角色已创建", zap.String("roleId", role.ID), zap.String("name", role.Name))
	return c.view(role, 0)
}

// Update 更新角色
// @Summary 更新角色
// @Tags 角色管理
// @Accept json
// @Produce json
// @Param id path string true "角色ID"
// @Param request body rbac.RolePayload true "更新角色请求"
// @Success 200 {object} response.Response
// @Router /roles/{id} [put]
func (c *Controller) Update(ctx *fiber.Ctx) error {
	var req rbac.RolePayload
	if err := ctx.BodyParser(&req); err != nil {
		return response.BadRequest(ctx, "请求格式错误")
	}

	role, err := c.update(ctx.UserContext(), ctx.Params("id"), req)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.SuccessWithMessage(ctx, "角色已更新", fiber.Map{"role": role})
}

// update 更新角色业务逻辑
func (c *Controller) update(ctx context.Context, id string, req rbac.RolePayload) (*rbac.CustomRole, error) {
	role, err := c.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkPayload(&req); err != nil {
		return nil, err
	}

	if req.Name != role.Name {
		if role.IsSystemRole {
			return nil, errors.Forbidden("系统角色不能重命名")
		}
		existing, err := c.repo.FindByName(ctx, req.Name)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, errors.Duplicate("角色名称")
		}
	}

	subject := auth.RoleSubject(role.ID)
	previous, err := c.policy.Permissions(subject)
	if err != nil {
		return nil, err
	}
	snapshot := *role

	role.Name = req.Name
	role.DisplayName = req.DisplayName
	role.Description = req.Description
	role.Color = req.Color
	if err := c.repo.Update(ctx, role); err != nil {
		return nil, err
	}
	if err := c.policy.SetPermissions(subject, req.Permissions); err != nil {
		// 恢复更新前的记录与权限
		if saveErr := c.repo.Update(ctx, &snapshot); saveErr != nil {
			logger.Error("恢复角色记录失败", zap.String("roleId", role.ID), zap.Error(saveErr))
		}
		if setErr := c.policy.SetPermissions(subject, previous); setErr != nil {
			logger.Error("恢复角色权限失败", zap.String("roleId", role.ID), zap.Error(setErr))
		}
		return nil, errors.Wrap(err, 500, "保存角色权限失败")
	}

	c.publish(ctx, rbac.RoleChanged{RoleID: role.ID, Action: rbac.RoleUpdated})

	usage, err := c.repo.UsageCount(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.view(role, usage)
}

// Delete 删除角色
// @Summary 删除角色
// @Tags 角色管理
// @Param id path string true "角色ID"
// @Success 200 {object} response.Response
// @Router /roles/{id} [delete]
func (c *Controller) Delete(ctx *fiber.Ctx) error {
	if err := c.delete(ctx.UserContext(), ctx.Params("id")); err != nil {
		return response.FromError(ctx, err)
	}
	return response.SuccessWithMessage(ctx, "角色已删除", nil)
}

// delete 删除角色业务逻辑
func (c *Controller) delete(ctx context.Context, id string) error {
	role, err := c.find(ctx, id)
	if err != nil {
		return err
	}
	usage, err := c.repo.UsageCount(ctx, id)
	if err != nil {
		return err
	}

	view, err := c.view(role, usage)
	if err != nil {
		return err
	}
	if err := rbac.CanDelete(view); err != nil {
		return err
	}

	if err := c.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := c.policy.RemoveSubject(auth.RoleSubject(id)); err != nil {
		logger.Error("清理角色策略失败", zap.String("roleId", id), zap.Error(err))
	}

	c.publish(ctx, rbac.RoleChanged{RoleID: id, Action: rbac.RoleDeleted})
	logger.Info("角色已删除", zap.String("roleId", id), zap.String("name", role.Name))
	return nil
}

func (c *Controller) find(ctx context.Context, id string) (*model.Role, error) {
	role, err := c.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, errors.NotFound("角色")
	}
	return role, nil
}

// view 组装对外的角色记录
func (c *Controller) view(role *model.Role, usage int) (*rbac.CustomRole, error) {
	perms, err := c.policy.Permissions(auth.RoleSubject(role.ID))
	if err != nil {
		return nil, err
	}
	return &rbac.CustomRole{
		ID:           role.ID,
		Name:         role.Name,
		DisplayName:  role.DisplayName,
		Description:  role.Description,
		Color:        role.Color,
		Permissions:  perms,
		IsSystemRole: role.IsSystemRole,
		UsageCount:   usage,
	}, nil
}

func (c *Controller) publish(ctx context.Context, ev rbac.RoleChanged) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, rbac.TopicRoleChanged, ev); err != nil {
		logger.Warn("发布角色变更事件失败", zap.String("roleId", ev.RoleID), zap.Error(err))
	}
}

// checkPayload 服务端校验，不接受内置角色名与未知权限
func checkPayload(req *rbac.RolePayload) error {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return err
	}
	if rbac.IsBuiltinRole(req.Name) || req.Name == rbac.RoleStaff {
		return errors.Validation("不能使用内置角色名称")
	}
	for _, p := range req.Permissions {
		if !rbac.IsKnown(rbac.Permission(p)) {
			return errors.Validation("未知权限: " + p)
		}
	}
	return nil
}
