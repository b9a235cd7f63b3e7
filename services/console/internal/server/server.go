// Package server 组装控制台服务
package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/vaultadmin/pkg/events"
	"github.com/vaultadmin/pkg/logger"
	"github.com/vaultadmin/pkg/middleware"
	"github.com/vaultadmin/pkg/rbac"
	"github.com/vaultadmin/pkg/router"
	"github.com/vaultadmin/services/console/internal/handler"
	"github.com/vaultadmin/services/console/internal/page"
	"github.com/vaultadmin/services/console/internal/session"
	"go.uber.org/zap"
)

// ServiceName 注册中心中的服务名
const ServiceName = "console-service"

// New 创建控制台 Fiber 应用
func New(store *session.Store, catalog *page.Catalog) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               ServiceName,
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler,
	})

	app.Use(middleware.Recovery())
	app.Use(middleware.Cors())
	app.Use(middleware.RequestID())
	app.Use(middleware.AccessLog())
	app.Use(handler.LoadSession(store))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":   "healthy",
			"service":  ServiceName,
			"sessions": store.Len(),
			"time":     time.Now().Format(time.RFC3339),
		})
	})

	mw := router.Middlewares{
		Auth:       handler.RequireSession(),
		Permission: handler.RequireGrant,
	}
	router.Register(app, mw,
		handler.NewSessionController(store),
		handler.NewPageController(catalog),
		handler.NewAdminController(store),
	)
	return app
}

// Subscribe 订阅后端广播的角色变更，刷新受影响的会话
func Subscribe(bridge *events.Bridge, store *session.Store, timeout time.Duration) {
	bridge.On(rbac.TopicRoleChanged, func(msg *events.Message) {
		var ev rbac.RoleChanged
		if err := msg.Decode(&ev); err != nil {
			logger.Warn("角色变更事件格式错误", zap.Error(err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		n := store.RefreshAffected(ctx, ev)
		logger.Debug("已处理角色变更事件",
			zap.String("roleId", ev.RoleID),
			zap.String("userId", ev.UserID),
			zap.String("action", ev.Action),
			zap.Int("sessions", n),
		)
	})
}
