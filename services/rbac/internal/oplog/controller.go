// Package oplog 管理操作审计日志
package oplog

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/vaultadmin/pkg/errors"
	"github.com/vaultadmin/pkg/logger"
	"github.com/vaultadmin/pkg/middleware"
	"github.com/vaultadmin/pkg/rbac"
	"github.com/vaultadmin/pkg/response"
	"github.com/vaultadmin/pkg/router"
	"github.com/vaultadmin/pkg/utils"
	"github.com/vaultadmin/services/rbac/internal/model"
	"go.uber.org/zap"
)

// Controller 操作日志控制器
type Controller struct {
	repo Repository
}

// NewController 创建操作日志控制器
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
		{Method: fiber.MethodGet, Path: "operations", Handler: c.List, Permission: string(rbac.PermViewAuditLogs)},
	}
}

// List 操作日志列表
// @Summary 操作日志列表
// @Tags 审计日志
// @Produce json
// @Param page query int false "页码"
// @Param pageSize query int false "每页数量"
// @Param userId query string false "操作人"
// @Param module query string false "模块，如 roles、users"
// @Param success query bool false "是否成功"
// @Success 200 {object} response.Response
// @Router /audit-logs/operations [get]
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

// Middleware 记录已认证用户的写操作，读请求与匿名请求不记录
func Middleware(repo Repository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		switch c.Method() {
		case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete:
		default:
			return err
		}
		userID := middleware.GetUserID(c)
		if userID == "" {
			return err
		}

		status := c.Response().StatusCode()
		log := &model.OperationLog{
			UserID:   userID,
			Email:    middleware.GetEmail(c),
			Module:   module(c.Path()),
			Method:   c.Method(),
			Path:     utils.Truncate(c.Path(), 255),
			IP:       c.IP(),
			Status:   status,
			Success:  err == nil && status < fiber.StatusBadRequest,
			Duration: time.Since(start).Milliseconds(),
		}
		if err != nil {
			log.Status = errors.GetCode(err)
			log.ErrorMessage = utils.Truncate(errors.GetMessage(err), 255)
		}

		// 请求上下文在返回后失效
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if werr := repo.Create(ctx, log); werr != nil {
			logger.Warn("写入操作日志失败", zap.String("path", log.Path), zap.Error(werr))
		}
		return err
	}
}

// module 取路径第一段作为模块名
func module(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	return path
}
