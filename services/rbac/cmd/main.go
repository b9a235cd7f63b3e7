package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vaultadmin/pkg/auth"
	"github.com/vaultadmin/pkg/config"
	"github.com/vaultadmin/pkg/database"
	"github.com/vaultadmin/pkg/events"
	"github.com/vaultadmin/pkg/lifecycle"
	"github.com/vaultadmin/pkg/logger"
	pkgRegistry "github.com/vaultadmin/pkg/registry"
	"github.com/vaultadmin/services/rbac/internal/server"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径")
	flag.Parse()

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	// 初始化日志
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// 初始化数据库
	if err := database.Init(&cfg.Database); err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}
	defer database.Close()
	db := database.Get()

	if err := database.InitRedis(&cfg.Redis); err != nil {
		logger.Fatal("初始化Redis失败", zap.Error(err))
	}
	defer database.CloseRedis()

	policy, err := auth.NewPolicyStore(db, &cfg.Casbin)
	if err != nil {
		logger.Fatal("初始化策略存储失败", zap.Error(err))
	}

	reg, err := pkgRegistry.New(&cfg.Registry, database.GetRedis())
	if err != nil {
		logger.Fatal("初始化注册中心失败", zap.Error(err))
	}

	builder := lifecycle.NewBuilder(server.ServiceName).
		WithVersion(cfg.App.Version).
		WithAddress(cfg.Server.HTTP.Addr()).
		WithRegistry(reg).
		WithMetadata(pkgRegistry.MetaBasePath, "rbac")
	bridge := events.NewBridge(builder.NodeID(), database.GetRedis())

	app := server.New(server.Deps{
		DB:        db,
		Policy:    policy,
		JWT:       auth.NewJWTManager(&cfg.JWT),
		Publisher: bridge,
	})

	err = builder.
		WithBridge(bridge).
		WithApp(app).
		OnStart(func(ctx context.Context) error {
			if err := server.Migrate(db); err != nil {
				return fmt.Errorf("数据库迁移失败: %w", err)
			}
			logger.Info("数据库迁移完成")

			if err := server.SeedPolicies(policy); err != nil {
				return fmt.Errorf("写入内置角色策略失败: %w", err)
			}
			seedCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return server.SeedSuperAdmin(seedCtx, db, policy, &cfg.Seed)
		}).
		OnReady(func(context.Context) error {
			logger.Info("RBAC服务就绪", zap.String("addr", cfg.Server.HTTP.Addr()))
			return nil
		}).
		Build().
		Run(context.Background())

	if err != nil {
		logger.Fatal("服务运行失败", zap.Error(err))
	}
}
