// Package loginlog 登录审计日志
package loginlog

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/vaultadmin/pkg/errors"
	"github.com/vaultadmin/pkg/logger"
	"github.com/vaultadmin/pkg/rbac"
	"github.com/vaultadmin/pkg/response"
	"github.com/vaultadmin/pkg/router"
	"github.com/vaultadmin/pkg/utils"
	"github.com/vaultadmin/services/rbac/internal/model"
	"go.uber.org/zap"
)

// Controller 登录日志控制器
type Controller struct {
	repo Repository
}

// NewController 创建登录日志控制器
func NewController(repo Repository) *Controller {
	return &Controller{repo: repo}
}

// Prefix 路由前缀
func (c *Controller) Prefix() string {
	return "/audit-logs"
}

// Routes 路由表
func (c *Controller) Routes() []router.Route {
	return []router.Route{
		{Method: fiber.MethodGet, Path: "logins", Handler: c.List, Permission: string(rbac.PermViewAuditLogs)},
	}
}

// List 登录日志列表
// @Summary 登录日志列表
// @Tags 审计日志
// @Produce json
// @Param page query int false "页码"
// @Param pageSize query int false "每页数量"
// @Param email query string false "邮箱"
// @Param success query bool false "是否成功"
// @Success 200 {object} response.Response
// @Router /audit-logs/logins [get]
func (c *Controller) List(ctx *fiber.Ctx) error {
	var req ListRequest
	if err := ctx.QueryParser(&req); err != nil {
		return response.BadRequest(ctx, "查询参数错误")
	}
	req.normalize()

	items, total, err := c.repo.List(ctx.UserContext(), req)
	if err != nil {
		return response.FromError(ctx, err)
	}
	return response.Success(ctx, fiber.Map{
		"items":    items,
		"total":    total,
		"page":     req.Page,
		"pageSize": req.PageSize,
	})
}

// Recorder 登录结果记录器，写入失败只记日志不影响登录
type Recorder struct {
	repo Repository
}

// NewRecorder 创建记录器
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

// Entry 一次登录尝试
type Entry struct {
	UserID    string
	Email     string
	IP        string
	UserAgent string
	Err       error
}

// Record 记录登录尝试，r 为 nil 时忽略
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil {
		return
	}
	log := &model.LoginLog{
		UserID:    e.UserID,
		Email:     utils.Truncate(e.Email, 120),
		IP:        e.IP,
		UserAgent: utils.Truncate(e.UserAgent, 240),
		Success:   e.Err == nil,
		Message:   "登录成功",
	}
	if e.Err != nil {
		log.Message = utils.Truncate(errors.GetMessage(e.Err), 240)
	}
	if err := r.repo.Create(ctx, log); err != nil {
		logger.Warn("写入登录日志失败", zap.String("email", e.Email), zap.Error(err))
	}
}
