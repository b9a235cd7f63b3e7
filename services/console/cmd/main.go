package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vaultadmin/pkg/apiclient"
	"github.com/vaultadmin/pkg/auth"
	"github.com/vaultadmin/pkg/config"
	"github.com/vaultadmin/pkg/database"
	"github.com/vaultadmin/pkg/events"
	"github.com/vaultadmin/pkg/lifecycle"
	"github.com/vaultadmin/pkg/logger"
	"github.com/vaultadmin/pkg/rbac"
	pkgRegistry "github.com/vaultadmin/pkg/registry"
	"github.com/vaultadmin/services/console/internal/page"
	"github.com/vaultadmin/services/console/internal/server"
	"github.com/vaultadmin/services/console/internal/session"
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

	// 后端地址未配置时通过注册中心发现
	timeout := time.Duration(cfg.Backend.Timeout) * time.Millisecond
	var api *apiclient.Client
	if cfg.Backend.BaseURL != "" {
		api = apiclient.New(cfg.Backend.BaseURL, timeout)
	} else {
		api = apiclient.NewDiscovered(reg, cfg.Backend.ServiceName, timeout)
	}

	store := session.NewStore(api,
		auth.NewJWTManager(&cfg.JWT),
		rbac.DefaultRoutes(),
		time.Duration(cfg.Session.TTL)*time.Second,
		time.Duration(cfg.Session.CleanupInterval)*time.Second,
	)

	builder := lifecycle.NewBuilder(server.ServiceName).
		WithVersion(cfg.App.Version).
		WithAddress(cfg.Server.Console.Addr()).
		WithRegistry(reg).
		WithMetadata(pkgRegistry.MetaBasePath, "console")
	bridge := events.NewBridge(builder.NodeID(), database.GetRedis())
	server.Subscribe(bridge, store, timeout)

	err = builder.
		WithBridge(bridge).
		WithApp(server.New(store, page.Default())).
		OnReady(func(context.Context) error {
			logger.Info("控制台服务就绪",
				zap.String("addr", cfg.Server.Console.Addr()),
				zap.String("backend", cfg.Backend.BaseURL),
			)
			return nil
		}).
		OnStop(func(context.Context) error {
			logger.Info("关闭控制台会话", zap.Int("sessions", store.Len()))
			store.Close()
			return nil
		}).
		Build().
		Run(context.Background())

	if err != nil {
		logger.Fatal("服务运行失败", zap.Error(err))
	}
}
