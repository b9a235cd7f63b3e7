package router

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Route 路由配置
type Route struct {
	Method      string          // HTTP方法
	Path        string          // 路径(相对路径，"/"为分组根路径，其余以/开头为绝对路径)
	Handler     fiber.Handler   // 处理函数
	Auth        bool            // 是否需要登录
	Permission  string          // 需要的权限，为空表示不校验
	Middlewares []fiber.Handler // 路由级中间件，在认证与权限之后执行
}

// Middlewares 注册时注入的公共中间件
type Middlewares struct {
	Auth       fiber.Handler
	Permission func(permission string) fiber.Handler
}

// Registrar 路由注册器接口
type Registrar interface {
	// Prefix 返回路由前缀
	Prefix() string
	// Routes 返回路由配置列表
	Routes() []Route
}

// Register 自动注册路由
func Register(app fiber.Router, mw Middlewares, controllers ...Registrar) {
	for _, ctrl := range controllers {
		prefix := ctrl.Prefix()
		g := app.Group(prefix)

		for _, route := range ctrl.Routes() {
			handlers := buildHandlers(route, mw)
			if isAbsolute(route.Path, prefix) {
				// 绝对路径,直接注册到app
				app.Add(route.Method, route.Path, handlers...)
			} else {
				g.Add(route.Method, route.Path, handlers...)
			}
		}
	}
}

// isAbsolute 以/开头且不在前缀下的路径视为绝对路径，单独的"/"表示分组根路径
func isAbsolute(path, prefix string) bool {
	if prefix == "" || path == "/" || !strings.HasPrefix(path, "/") {
		return false
	}
	return !strings.HasPrefix(path, prefix)
}

// buildHandlers 构建处理器链(认证 + 权限 + 中间件 + 处理函数)
func buildHandlers(route Route, mw Middlewares) []fiber.Handler {
	handlers := make([]fiber.Handler, 0, len(route.Middlewares)+3)
	if (route.Auth || route.Permission != "") && mw.Auth != nil {
		handlers = append(handlers, mw.Auth)
	}
	if route.Permission != "" && mw.Permission != nil {
		handlers = append(handlers, mw.Permission(route.Permission))
	}
	handlers = append(handlers, route.Middlewares...)
	return append(handlers, route.Handler)
}
