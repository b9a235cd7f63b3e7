package gateway

import (
	"github.com/gofiber/fiber/v2"
	"github.com/vaultadmin/pkg/middleware"
)

// ServiceName 注册中心中的服务名
const ServiceName = "gateway-service"

// NewApp 创建网关 Fiber 应用
func NewApp(g *Gateway) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               ServiceName,
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler,
	})

	app.Use(middleware.Recovery())
	app.Use(middleware.Cors())
	app.Use(middleware.RequestID())
	app.Use(middleware.AccessLog())

	app.Get("/health", g.HealthCheck)
	app.Get("/services", g.ServicesStatus)
	app.Get("/metrics", g.metrics.handler())
	app.All(APIVersion+"/*", g.Handler())
	return app
}
