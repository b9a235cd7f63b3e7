package user

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/vaultadmin/pkg/auth"
	"github.com/vaultadmin/pkg/errors"
	"github.com/vaultadmin/pkg/events"
	"github.com/vaultadmin/pkg/identity"
	"github.com/vaultadmin/pkg/logger"
	"github.com/vaultadmin/pkg/middleware"
	"github.com/vaultadmin/pkg/rbac"
	"github.com/vaultadmin/pkg/response"
	"github.com/vaultadmin/pkg/router"
	"github.com/vaultadmin/pkg/utils"
	"github.com/vaultadmin/services/rbac/internal/loginlog"
	"github.com/vaultadmin/services/rbac/internal/model"
	"github.com/vaultadmin/services/rbac/internal/role"
	"go.uber.org/zap"
)

var validate = validator.New()

// Controller 用户与认证控制器
type Controller struct {
	repo       Repository
	roles      role.Repository
	policy     *auth.PolicyStore
	jwtManager *auth.JWTManager
	publisher  events.Publisher
	logins     *loginlog.Recorder
}

// NewController 创建用户控制器，publisher 与 logins 可为 nil
func NewController(repo Repository, roles role.Repository, policy *auth.PolicyStore, jwtManager *auth.JWTManager, publisher events.Publisher, logins *loginlog.Recorder) *Controller {
	return &Controller{
		repo:       repo,
		roles:      roles,
		policy:     policy,
		jwtManager: jwtManager,
		publisher:  publisher,
		logins:     logins,
	}
}

// Prefix 路由前缀
func (c *Controller) Prefix() string {
	return "/auth"
}

// Routes 路由表
func (c *Controller) Routes() []router.Route {
	return []router.Route{
		{Method: fiber.MethodPost, Path: "login", Handler: c.Login},
		{Method: fiber.MethodGet, Path: "me", Handler: c.Me, Auth: true},
		{Method: fiber.MethodPut, Path: "/users/:id/role", Handler: c.AssignRole, Permission: string(rbac.PermManageAdminRoles)},
	}
}

// Login 登录
// @Summary 邮箱密码登录
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body LoginRequest true "登录请求"
// @Success 200 {object} response.Response
// @Router /auth/login [post]
func (c *Controller) Login(ctx *fiber.Ctx) error {
	var req LoginRequest
	if err := ctx.BodyParser(&req); err != nil {
		return response.BadRequest(ctx, "请求格式错误")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validate.Struct(&req); err != nil {
		return response.Error(ctx, fiber.StatusUnprocessableEntity, "请输入有效的邮箱和密码")
	}

	token, me, err := c.login(ctx.UserContext(), req.Email, req.Password)
	entry := loginlog.Entry{
		Email:     req.Email,
		IP:        ctx.IP(),
		UserAgent: ctx.Get(fiber.HeaderUserAgent),
		Err:       err,
	}
	if me != nil {
		entry.UserID = me.ID
	}
	c.logins.Record(ctx.UserContext(), entry)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, fiber.Map{"token": token, "user": me})
}

// login 登录业务逻辑
func (c *Controller) login(ctx context.Context, email, password string) (string, *identity.Me, error) {
	u, err := c.repo.FindByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}
	if u == nil || !auth.CheckPassword(password, u.PasswordHash) {
		return "", nil, errors.ErrInvalidCredential
	}

	token, err := c.jwtManager.GenerateToken(auth.Subject{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Role:   u.Role,
		RoleID: u.CustomRoleID(),
	})
	if err != nil {
		return "", nil, errors.Wrap(err, 500, "生成令牌失败")
	}

	logger.Info("用户登录", zap.String("userId", u.ID), zap.String("role", u.Role))
	return token, &identity.Me{Identity: toIdentity(u)}, nil
}

// Me 当前用户
// @Summary 当前用户，roleId 展开为角色对象
// @Tags 认证
// @Produce json
// @Success 200 {object} response.Response
// @Router /auth/me [get]
func (c *Controller) Me(ctx *fiber.Ctx) error {
	me, err := c.me(ctx.UserContext(), middleware.GetUserID(ctx))
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, fiber.Map{"user": me})
}

// me 当前用户业务逻辑
func (c *Controller) me(ctx context.Context, userID string) (*identity.Me, error) {
	u, err := c.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errors.Unauthorized("用户不存在")
	}

	me := &identity.Me{Identity: toIdentity(u)}
	if u.RoleID == nil {
		return me, nil
	}

	r, err := c.roles.FindByID(ctx, *u.RoleID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		// 角色已被删除，保留ID由调用方按回退处理
		return me, nil
	}
	perms, err := c.policy.Permissions(auth.RoleSubject(r.ID))
	if err != nil {
		return nil, err
	}
	me.InlineRole = &identity.Role{
		ID:           r.ID,
		Name:         r.Name,
		DisplayName:  r.DisplayName,
		Description:  r.Description,
		Color:        r.Color,
		Permissions:  perms,
		IsSystemRole: r.IsSystemRole,
	}
	return me, nil
}

// AssignRole 分配角色
// @Summary 为用户分配基础角色与自定义角色
// @Tags 用户管理
// @Accept json
// @Produce json
// @Param id path string true "用户ID"
// @Param request body rbac.RoleAssignment true "角色分配"
// @Success 200 {object} response.Response
// @Router /users/{id}/role [put]
func (c *Controller) AssignRole(ctx *fiber.Ctx) error {
	var req rbac.RoleAssignment
	if err := ctx.BodyParser(&req); err != nil {
		return response.BadRequest(ctx, "请求格式错误")
	}

	u, err := c.assignRole(ctx.UserContext(), ctx.Params("id"), req)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.SuccessWithMessage(ctx, "角色已分配", fiber.Map{"user": toIdentity(u)})
}

// assignRole 分配角色业务逻辑，同时调整策略分组
func (c *Controller) assignRole(ctx context.Context, userID string, req rbac.RoleAssignment) (*model.User, error) {
	req.Role = strings.TrimSpace(req.Role)
	req.RoleID = strings.TrimSpace(req.RoleID)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !rbac.IsBuiltinRole(req.Role) && req.Role != rbac.RoleStaff {
		return nil, errors.Validation("未知的基础角色: " + req.Role)
	}
	if req.Role == rbac.RoleStaff && req.RoleID == "" {
		return nil, errors.Validation("员工必须指定自定义角色")
	}

	u, err := c.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errors.NotFound("用户")
	}

	var roleID *string
	subject := auth.BuiltinSubject(req.Role)
	if req.RoleID != "" {
		r, err := c.roles.FindByID(ctx, req.RoleID)
		if err != nil {
			return nil, err
		}
		if r == nil {
			return nil, errors.NotFound("角色")
		}
		roleID = utils.Ptr(r.ID)
		subject = auth.RoleSubject(r.ID)
	}

	if err := c.repo.UpdateRole(ctx, u.ID, req.Role, roleID); err != nil {
		return nil, err
	}
	if err := c.policy.AssignUser(u.ID, subject); err != nil {
		return nil, errors.Wrap(err, 500, "更新权限分组失败")
	}
	u.Role, u.RoleID = req.Role, roleID

	if c.publisher != nil {
		ev := rbac.RoleChanged{UserID: u.ID, RoleID: req.RoleID, Action: rbac.RoleAssigned}
		if err := c.publisher.Publish(ctx, rbac.TopicRoleChanged, ev); err != nil {
			logger.Warn("发布角色变更事件失败", zap.String("userId", u.ID), zap.Error(err))
		}
	}
	return u, nil
}

func toIdentity(u *model.User) identity.Identity {
	return identity.Identity{
		ID:     u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Role:   u.Role,
		RoleID: u.CustomRoleID(),
	}
}
