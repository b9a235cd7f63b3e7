package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/vaultadmin/pkg/errors"
	"github.com/vaultadmin/pkg/rbac"
	"github.com/vaultadmin/pkg/response"
	"github.com/vaultadmin/services/console/internal/session"
)

const localSession = "session"

// LoadSession 按请求头加载会话，不存在时继续处理
func LoadSession(store *session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if s, ok := store.Get(c.Get(session.Header)); ok {
			c.Locals(localSession, s)
		}
		return c.Next()
	}
}

// RequireSession 要求有效会话
func RequireSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if GetSession(c) == nil {
			return response.FromError(c, errors.ErrSessionNotFound)
		}
		return c.Next()
	}
}

// RequireGrant 要求会话持有指定权限；加载中按无权限处理
func RequireGrant(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s := GetSession(c)
		if s == nil {
			return response.FromError(c, errors.ErrSessionNotFound)
		}
		if !s.Access().HasPermission(rbac.Permission(permission)) {
			return response.Error(c, fiber.StatusForbidden, "没有访问权限")
		}
		return c.Next()
	}
}

// GetSession 获取当前请求的会话
func GetSession(c *fiber.Ctx) *session.Session {
	s, _ := c.Locals(localSession).(*session.Session)
	return s
}
