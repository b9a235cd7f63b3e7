package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/vaultadmin/pkg/auth"
	"github.com/vaultadmin/pkg/errors"
	"github.com/vaultadmin/pkg/logger"
	"github.com/vaultadmin/pkg/response"
	"go.uber.org/zap"
)

// 上下文键
const (
	localUserID    = "userId"
	localEmail     = "email"
	localRole      = "role"
	localRoleID    = "roleId"
	localClaims    = "claims"
	localRequestID = "requestId"
)

// BearerToken 从 Authorization 头或 token 参数中取出令牌
func BearerToken(c *fiber.Ctx) string {
	token := c.Get(fiber.HeaderAuthorization)
	if token == "" {
		token = c.Query("token")
	}
	return strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
}

// JWTAuth JWT认证中间件
func JWTAuth(jwtManager *auth.JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := BearerToken(c)
		if token == "" {
			return response.Unauthorized(c, "未提供认证令牌")
		}

		claims, err := jwtManager.ParseToken(token)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				return response.Unauthorized(c, errors.ErrTokenExpired.Message)
			}
			return response.Unauthorized(c, "无效的认证令牌")
		}

		c.Locals(localUserID, claims.UserID)
		c.Locals(localEmail, claims.Email)
		c.Locals(localRole, claims.Role)
		c.Locals(localRoleID, claims.RoleID)
		c.Locals(localClaims, claims)

		return c.Next()
	}
}

// RequirePermission 通过 casbin 策略校验当前用户是否持有权限
func RequirePermission(store *auth.PolicyStore, permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := GetUserID(c)
		if userID == "" {
			return response.Unauthorized(c, "未获取到用户信息")
		}

		ok, err := store.Allowed(userID, permission)
		if err != nil {
			logger.Error("权限校验失败", zap.Error(err), zap.String("userId", userID))
			return response.ServerError(c, "")
		}
		if !ok {
			logger.Debug("权限不足",
				zap.String("userId", userID),
				zap.String("permission", permission),
				zap.String("path", c.Path()),
			)
			return response.Error(c, fiber.StatusForbidden, "没有访问权限")
		}
		return c.Next()
	}
}

// Recovery 恢复中间件
func Recovery() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					zap.Any("error", r),
					zap.String("path", c.Path()),
					zap.String("method", c.Method()),
				)
				err = response.ServerError(c, "")
			}
		}()
		return c.Next()
	}
}

// Cors 跨域中间件
func Cors() fiber.Handler {
	return func(c *fiber.Ctx) error {
		origin := c.Get("Origin")

		if origin != "" {
			c.Set("Access-Control-Allow-Origin", origin)
			c.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			c.Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization, X-Session-ID")
			c.Set("Access-Control-Expose-Headers", "Content-Length, Content-Type, X-Request-ID, X-Session-ID")
			c.Set("Access-Control-Allow-Credentials", "true")
		}

		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}

		return c.Next()
	}
}

// RequestID 请求ID中间件
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Locals(localRequestID, requestID)
		c.Set("X-Request-ID", requestID)
		return c.Next()
	}
}

// AccessLog 请求日志
func AccessLog() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Debug("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
			zap.String("requestId", GetRequestID(c)),
		)
		return err
	}
}

// ErrorHandler 统一错误处理，作为 fiber.Config.ErrorHandler 使用
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return response.Error(c, fe.Code, fe.Message)
	}
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return response.Error(c, appErr.Code, appErr.Message)
	}
	logger.Error("unhandled error", zap.Error(err), zap.String("path", c.Path()))
	return response.ServerError(c, "")
}

func localString(c *fiber.Ctx, key string) string {
	v, _ := c.Locals(key).(string)
	return v
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *fiber.Ctx) string {
	return localString(c, localUserID)
}

// GetEmail 从上下文获取用户邮箱
func GetEmail(c *fiber.Ctx) string {
	return localString(c, localEmail)
}

// GetRole 从上下文获取基础角色
func GetRole(c *fiber.Ctx) string {
	return localString(c, localRole)
}

// GetRoleID 从上下文获取自定义角色ID
func GetRoleID(c *fiber.Ctx) string {
	return localString(c, localRoleID)
}

// GetRequestID 从上下文获取请求ID
func GetRequestID(c *fiber.Ctx) string {
	return localString(c, localRequestID)
}

// GetClaims 从上下文获取令牌声明
func GetClaims(c *fiber.Ctx) *auth.Claims {
	claims, _ := c.Locals(localClaims).(*auth.Claims)
	return claims
}
