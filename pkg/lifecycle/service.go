package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/vaultadmin/pkg/events"
	"github.com/vaultadmin/pkg/logger"
	pkgRegistry "github.com/vaultadmin/pkg/registry"
	"go-micro.dev/v5/registry"
	"go.uber.org/zap"
)

// Options 服务配置选项
type Options struct {
	Name     string            // 服务名称
	Version  string            // 服务版本
	NodeID   string            // 节点ID
	Address  string            // 监听地址
	Metadata map[string]string // 注册到节点的元数据
	Registry registry.Registry // 服务注册中心，可为空
	Bridge   *events.Bridge    // 跨服务事件桥，可为空
}

// Service 微服务包装器
type Service struct {
	opts *Options
	app  *fiber.App

	mu       sync.Mutex
	listener net.Listener
	record   *registry.Service
	errCh    chan error

	onStart []Hook
	onReady []Hook
	onStop  []Hook
}

// NewService 创建微服务
func NewService(opts *Options, app *fiber.App) *Service {
	return &Service{
		opts:  opts,
		app:   app,
		errCh: make(chan error, 1),
	}
}

// App 获取Fiber应用
func (s *Service) App() *fiber.App {
	return s.app
}

// Addr 实际监听地址，未启动时返回配置地址
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.Address
}

// Start 执行启动钩子、开始监听并注册服务
func (s *Service) Start(ctx context.Context) error {
	if s.opts.Bridge != nil {
		if err := s.opts.Bridge.Start(); err != nil {
			return fmt.Errorf("start event bridge: %w", err)
		}
	}
	s.emit(ctx, EventStarting)

	for _, fn := range s.onStart {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("start hook: %w", err)
		}
	}

	ln, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Address, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		logger.Info("服务启动",
			zap.String("service", s.opts.Name),
			zap.String("address", ln.Addr().String()),
		)
		if err := s.app.Listener(ln); err != nil {
			s.errCh <- err
		}
	}()

	if s.opts.Registry != nil {
		s.record = pkgRegistry.NewServiceBuilder(s.opts.Name, s.opts.Version).
			WithNodeID(s.opts.NodeID).
			WithAddress(ln.Addr().String()).
			WithMetadataMap(s.opts.Metadata).
			Build()
		if err := s.opts.Registry.Register(s.record); err != nil {
			return fmt.Errorf("register service: %w", err)
		}
	}

	for _, fn := range s.onReady {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("ready hook: %w", err)
		}
	}
	s.emit(ctx, EventReady)
	return nil
}

// Run 启动服务并阻塞到收到退出信号或 ctx 结束
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		logger.Info("收到退出信号，正在关闭服务...")
	case <-ctx.Done():
	case err := <-s.errCh:
		_ = s.Shutdown()
		return fmt.Errorf("server error: %w", err)
	}
	return s.Shutdown()
}

// Shutdown 优雅关闭服务
func (s *Service) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.emit(ctx, EventStopping)

	var errs []error
	for _, fn := range s.onStop {
		if err := fn(ctx); err != nil {
			logger.Error("停止钩子执行失败", zap.Error(err))
			errs = append(errs, err)
		}
	}

	if s.opts.Registry != nil && s.record != nil {
		if err := s.opts.Registry.Deregister(s.record); err != nil {
			logger.Error("注销服务失败", zap.Error(err))
			errs = append(errs, err)
		}
	}

	if err := s.app.ShutdownWithContext(ctx); err != nil {
		logger.Error("关闭HTTP服务失败", zap.Error(err))
		errs = append(errs, err)
	}

	s.emit(ctx, EventStopped)
	if s.opts.Bridge != nil {
		if err := s.opts.Bridge.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	logger.Info("服务已关闭", zap.String("service", s.opts.Name))
	return errors.Join(errs...)
}
