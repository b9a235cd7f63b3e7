package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vaultadmin/pkg/config"
	"github.com/vaultadmin/pkg/database"
	"github.com/vaultadmin/pkg/lifecycle"
	"github.com/vaultadmin/pkg/logger"
	pkgRegistry "github.com/vaultadmin/pkg/registry"
	"github.com/vaultadmin/services/gateway/internal/gateway"
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

	if err := database.InitRedis(&cfg.Redis); err != nil {
		logger.Fatal("初始化Redis失败", zap.Error(err))
	}
	defer database.CloseRedis()

	reg, err := pkgRegistry.New(&cfg.Registry, database.GetRedis())
	if err != nil {
		logger.Fatal("初始化注册中心失败", zap.Error(err))
	}

	gw := gateway.NewGateway(reg, &cfg.Gateway)

	err = lifecycle.NewBuilder(gateway.ServiceName).
		WithVersion(cfg.App.Version).
		WithAddress(cfg.Server.Gateway.Addr()).
		WithRegistry(reg).
		WithApp(gateway.NewApp(gw)).
		OnStart(func(context.Context) error {
			if err := gw.SyncRoutes(); err != nil {
				logger.Warn("首次同步服务路由失败", zap.Error(err))
			}
			gw.Watch(time.Duration(cfg.Gateway.SyncInterval) * time.Second)
			return nil
		}).
		OnReady(func(context.Context) error {
			logger.Info("API网关就绪",
				zap.String("addr", cfg.Server.Gateway.Addr()),
				zap.Int("routes", len(gw.Routes())),
			)
			return nil
		}).
		OnStop(func(context.Context) error {
			gw.Stop()
			return nil
		}).
		Build().
		Run(context.Background())

	if err != nil {
		logger.Fatal("服务运行失败", zap.Error(err))
	}
}
