// Package gateway API网关：按注册中心的 basePath 元数据把 /api/v1/{basePath}/* 转发到对应服务
package gateway

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/proxy"
	"github.com/vaultadmin/pkg/config"
	"github.com/vaultadmin/pkg/logger"
	pkgRegistry "github.com/vaultadmin/pkg/registry"
	"github.com/vaultadmin/pkg/response"
	"go-micro.dev/v5/registry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// APIVersion API版本前缀
const APIVersion = "/api/v1"

// DefaultMethods 默认允许转发的方法
var DefaultMethods = []string{
	fiber.MethodGet,
	fiber.MethodPost,
	fiber.MethodPut,
	fiber.MethodDelete,
	fiber.MethodPatch,
	fiber.MethodOptions,
}

// ServiceRoute 服务路由配置
type ServiceRoute struct {
	ServiceName string   `json:"service"` // 微服务名称
	PathPrefix  string   `json:"prefix"`  // 网关路径前缀，如 /api/v1/rbac
	Methods     []string `json:"methods"` // 允许的HTTP方法
}

// Gateway API网关
type Gateway struct {
	registry  registry.Registry
	timeout   time.Duration
	threshold int
	cooldown  time.Duration

	mu       sync.RWMutex
	routes   map[string]*ServiceRoute // key: 网关路径前缀
	breakers map[string]*CircuitBreaker

	syncs   singleflight.Group
	metrics *metrics

	stop     chan struct{}
	stopOnce sync.Once
}

// NewGateway 创建网关
func NewGateway(reg registry.Registry, cfg *config.GatewayConfig) *Gateway {
	return &Gateway{
		registry:  reg,
		timeout:   time.Duration(cfg.Timeout) * time.Millisecond,
		threshold: cfg.BreakerThreshold,
		cooldown:  time.Duration(cfg.BreakerTimeout) * time.Second,
		routes:    make(map[string]*ServiceRoute),
		breakers:  make(map[string]*CircuitBreaker),
		metrics:   newMetrics(),
		stop:      make(chan struct{}),
	}
}

// RegisterRoute 注册服务路由
func (g *Gateway) RegisterRoute(route *ServiceRoute) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if old, exists := g.routes[route.PathPrefix]; exists && old.ServiceName == route.ServiceName {
		return
	}
	g.routes[route.PathPrefix] = route
	logger.Info("注册路由",
		zap.String("service", route.ServiceName),
		zap.String("prefix", route.PathPrefix),
		zap.Strings("methods", route.Methods),
	)
}

// UnregisterRoute 注销服务路由
func (g *Gateway) UnregisterRoute(pathPrefix string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if route, exists := g.routes[pathPrefix]; exists {
		delete(g.routes, pathPrefix)
		logger.Info("注销路由",
			zap.String("service", route.ServiceName),
			zap.String("prefix", pathPrefix),
		)
	}
}

// SyncRoutes 从注册中心同步路由，已下线服务的路由被移除
func (g *Gateway) SyncRoutes() error {
	services, err := g.registry.ListServices()
	if err != nil {
		return err
	}

	live := make(map[string]bool)
	for _, svc := range services {
		details, err := g.registry.GetService(svc.Name)
		if err != nil {
			logger.Warn("获取服务详情失败", zap.String("service", svc.Name), zap.Error(err))
			continue
		}
		for _, s := range details {
			basePath := pkgRegistry.BasePath(s)
			if basePath == "" {
				continue
			}
			prefix := fmt.Sprintf("%s/%s", APIVersion, basePath)
			live[prefix] = true
			g.RegisterRoute(&ServiceRoute{
				ServiceName: s.Name,
				PathPrefix:  prefix,
				Methods:     DefaultMethods,
			})
		}
	}

	for prefix := range g.Routes() {
		if !live[prefix] {
			g.UnregisterRoute(prefix)
		}
	}
	return nil
}

// resync 合并并发的同步请求
func (g *Gateway) resync() {
	_, err, _ := g.syncs.Do("routes", func() (any, error) {
		return nil, g.SyncRoutes()
	})
	if err != nil {
		logger.Warn("同步服务路由失败", zap.Error(err))
	}
}

// Watch 定期同步路由，直到 Stop
func (g *Gateway) Watch(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.resync()
			case <-g.stop:
				return
			}
		}
	}()
	logger.Info("开始同步服务路由", zap.Duration("interval", interval))
}

// Stop 停止同步
func (g *Gateway) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
}

// Routes 获取所有已注册的路由（副本）
func (g *Gateway) Routes() map[string]*ServiceRoute {
	g.mu.RLock()
	defer g.mu.RUnlock()

	routes := make(map[string]*ServiceRoute, len(g.routes))
	for k, v := range g.routes {
		routes[k] = v
	}
	return routes
}

// match 最长前缀匹配
func (g *Gateway) match(path string) *ServiceRoute {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var matched *ServiceRoute
	for prefix, route := range g.routes {
		if path != prefix && !strings.HasPrefix(path, prefix+"/") {
			continue
		}
		if matched == nil || len(prefix) > len(matched.PathPrefix) {
			matched = route
		}
	}
	return matched
}

func (g *Gateway) breaker(service string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	cb, ok := g.breakers[service]
	if !ok {
		cb = NewCircuitBreaker(g.threshold, g.cooldown)
		g.breakers[service] = cb
	}
	return cb
}

// Handler 转发处理器
func (g *Gateway) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		route := g.match(c.Path())
		if route == nil {
			// 新上线的服务可能还未同步
			g.resync()
			route = g.match(c.Path())
		}
		if route == nil {
			g.metrics.reject("no_route")
			return response.Error(c, fiber.StatusNotFound, "服务未找到")
		}
		if !slices.Contains(route.Methods, c.Method()) {
			g.metrics.reject("method")
			return response.Error(c, fiber.StatusMethodNotAllowed, "方法不允许")
		}

		cb := g.breaker(route.ServiceName)
		if !cb.Allow() {
			g.metrics.reject("breaker_open")
			return response.Error(c, fiber.StatusServiceUnavailable, "服务暂时不可用")
		}

		target, err := pkgRegistry.Resolve(g.registry, route.ServiceName)
		if err != nil {
			g.metrics.reject("no_node")
			logger.Error("服务发现失败", zap.String("service", route.ServiceName), zap.Error(err))
			return response.Error(c, fiber.StatusServiceUnavailable, "服务不可用")
		}

		return g.proxyRequest(c, target, route, cb)
	}
}

// proxyRequest 去除网关前缀后转发，5xx 与网络错误计入熔断
func (g *Gateway) proxyRequest(c *fiber.Ctx, target string, route *ServiceRoute, cb *CircuitBreaker) error {
	path := strings.TrimPrefix(c.Path(), route.PathPrefix)
	if path == "" {
		path = "/"
	}
	url := target + path
	if query := c.Request().URI().QueryString(); len(query) > 0 {
		url += "?" + string(query)
	}

	clientIP := c.IP()
	c.Request().Header.Set(fiber.HeaderXForwardedFor, clientIP)
	c.Request().Header.Set("X-Real-IP", clientIP)
	c.Request().Header.Set(fiber.HeaderXForwardedProto, c.Protocol())
	c.Request().Header.Set(fiber.HeaderXForwardedHost, c.Hostname())

	g.metrics.inFlight.Inc()
	defer g.metrics.inFlight.Dec()
	start := time.Now()

	if err := proxy.DoTimeout(c, url, g.timeout); err != nil {
		cb.Failure()
		g.metrics.observe(route.ServiceName, c.Method(), fiber.StatusBadGateway, time.Since(start))
		logger.Error("代理请求失败",
			zap.String("service", route.ServiceName),
			zap.String("target", url),
			zap.Error(err),
		)
		return response.Error(c, fiber.StatusBadGateway, "代理请求失败")
	}

	status := c.Response().StatusCode()
	g.metrics.observe(route.ServiceName, c.Method(), status, time.Since(start))
	if status >= fiber.StatusInternalServerError {
		cb.Failure()
	} else {
		cb.Success()
	}
	return nil
}

// HealthCheck 健康检查
func (g *Gateway) HealthCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":  "healthy",
		"service": ServiceName,
		"time":    time.Now().Format(time.RFC3339),
	})
}

// ServiceStatus 服务状态
type ServiceStatus struct {
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	Nodes     int      `json:"nodes"`
	Addresses []string `json:"addresses,omitempty"`
	Breaker   string   `json:"breaker"`
}

// ServicesStatus 获取所有服务状态
func (g *Gateway) ServicesStatus(c *fiber.Ctx) error {
	services, err := g.registry.ListServices()
	if err != nil {
		return response.Error(c, fiber.StatusInternalServerError, "获取服务列表失败")
	}

	statuses := make([]ServiceStatus, 0, len(services))
	for _, svc := range services {
		status := ServiceStatus{Name: svc.Name, Status: "unknown", Breaker: g.breaker(svc.Name).State()}
		details, err := g.registry.GetService(svc.Name)
		if err == nil {
			for _, s := range details {
				for _, node := range s.Nodes {
					status.Addresses = append(status.Addresses, node.Address)
				}
			}
			status.Nodes = len(status.Addresses)
			status.Status = "unhealthy"
			if status.Nodes > 0 {
				status.Status = "healthy"
			}
		}
		statuses = append(statuses, status)
	}
	slices.SortFunc(statuses, func(a, b ServiceStatus) int { return strings.Compare(a.Name, b.Name) })
	return response.Success(c, fiber.Map{"services": statuses})
}
