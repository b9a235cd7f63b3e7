// Package server 组装后端 API 服务的路由与启动数据
package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/vaultadmin/pkg/auth"
	"github.com/vaultadmin/pkg/config"
	"github.com/vaultadmin/pkg/events"
	"github.com/vaultadmin/pkg/logger"
	"github.com/vaultadmin/pkg/middleware"
	"github.com/vaultadmin/pkg/rbac"
	"github.com/vaultadmin/pkg/router"
	"github.com/vaultadmin/services/rbac/internal/loginlog"
	"github.com/vaultadmin/services/rbac/internal/model"
	"github.com/vaultadmin/services/rbac/internal/oplog"
	"github.com/vaultadmin/services/rbac/internal/role"
	"github.com/vaultadmin/services/rbac/internal/user"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ServiceName 注册中心中的服务名
const ServiceName = "rbac-service"

// Deps 服务依赖
type Deps struct {
	DB        *gorm.DB
	Policy    *auth.PolicyStore
	JWT       *auth.JWTManager
	Publisher events.Publisher // 可为 nil
}

// New 创建 Fiber 应用并注册全部路由
func New(deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               ServiceName,
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler,
	})

	app.Use(middleware.Recovery())
	app.Use(middleware.Cors())
	app.Use(middleware.RequestID())
	app.Use(middleware.AccessLog())

	operations := oplog.NewRepository(deps.DB)
	app.Use(oplog.Middleware(operations))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "healthy",
			"service": ServiceName,
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	roles := role.NewRepository(deps.DB)
	users := user.NewRepository(deps.DB)
	logins := loginlog.NewRepository(deps.DB)

	mw := router.Middlewares{
		Auth: middleware.JWTAuth(deps.JWT),
		Permission: func(permission string) fiber.Handler {
			return middleware.RequirePermission(deps.Policy, permission)
		},
	}
	router.Register(app, mw,
		user.NewController(users, roles, deps.Policy, deps.JWT, deps.Publisher, loginlog.NewRecorder(logins)),
		role.NewController(roles, deps.Policy, deps.Publisher),
		loginlog.NewController(logins),
		oplog.NewController(operations),
	)
	return app
}

// Migrate 迁移数据表
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(model.All()...)
}

// SeedPolicies 写入内置角色的权限策略，每次启动覆盖
func SeedPolicies(store *auth.PolicyStore) error {
	for _, name := range rbac.BuiltinRoles() {
		set, _ := rbac.BuiltinPermissions(name)
		if err := store.SetPermissions(auth.BuiltinSubject(name), rbac.Strings(set.List())); err != nil {
			return err
		}
	}
	return nil
}

// SeedSuperAdmin 不存在时创建初始超级管理员并补齐策略分组
func SeedSuperAdmin(ctx context.Context, db *gorm.DB, store *auth.PolicyStore, cfg *config.SeedConfig) error {
	if cfg == nil || cfg.Email == "" || cfg.Password == "" {
		return nil
	}

	users := user.NewRepository(db)
	u, err := users.FindByEmail(ctx, cfg.Email)
	if err != nil {
		return err
	}
	if u == nil {
		hash, err := auth.HashPassword(cfg.Password)
		if err != nil {
			return err
		}
		u = &model.User{
			Email:        cfg.Email,
			Name:         cfg.Name,
			PasswordHash: hash,
			Role:         rbac.RoleSuperAdmin,
		}
		if err := users.Create(ctx, u); err != nil {
			return err
		}
		logger.Info("已创建初始超级管理员", zap.String("email", u.Email))
	}

	subject, err := store.SubjectOf(u.ID)
	if err != nil {
		return err
	}
	if subject == "" {
		return store.AssignUser(u.ID, auth.BuiltinSubject(u.Role))
	}
	return nil
}
