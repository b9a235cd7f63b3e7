package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vaultadmin/pkg/logger"
	"go-micro.dev/v5/registry"
	"go.uber.org/zap"
)

const (
	// Redis key 前缀，完整格式 registry:service:<name>:<nodeId>
	servicePrefix = "registry:service:"
	defaultTTL    = 30 * time.Second
)

// RedisRegistry 基于 Redis 的服务注册中心，每个节点一个带过期时间的 key
type RedisRegistry struct {
	client    *redis.Client
	ttl       time.Duration
	mu        sync.Mutex
	heartbeat map[string]chan struct{}
}

// NewRedisRegistry 创建基于 Redis 的注册中心
func NewRedisRegistry(client *redis.Client, ttl time.Duration) registry.Registry {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisRegistry{
		client:    client,
		ttl:       ttl,
		heartbeat: make(map[string]chan struct{}),
	}
}

// Init 初始化
func (r *RedisRegistry) Init(opts ...registry.Option) error {
	return nil
}

// Options 获取选项
func (r *RedisRegistry) Options() registry.Options {
	return registry.Options{}
}

func nodeKey(service, nodeID string) string {
	return servicePrefix + service + ":" + nodeID
}

func (r *RedisRegistry) write(ctx context.Context, s *registry.Service, n *registry.Node) error {
	data, err := json.Marshal(&registry.Service{
		Name:     s.Name,
		Version:  s.Version,
		Metadata: s.Metadata,
		Nodes:    []*registry.Node{n},
	})
	if err != nil {
		return fmt.Errorf("marshal service: %w", err)
	}
	return r.client.Set(ctx, nodeKey(s.Name, n.Id), data, r.ttl).Err()
}

// Register 注册服务并启动心跳保活
func (r *RedisRegistry) Register(s *registry.Service, opts ...registry.RegisterOption) error {
	if s == nil || len(s.Nodes) == 0 {
		return fmt.Errorf("service or nodes cannot be empty")
	}

	ctx := context.Background()
	for _, n := range s.Nodes {
		if err := r.write(ctx, s, n); err != nil {
			return err
		}
		r.startHeartbeat(s, n)
	}

	logger.Debug("服务已注册",
		zap.String("service", s.Name),
		zap.Int("nodes", len(s.Nodes)),
	)
	return nil
}

// Deregister 注销服务
func (r *RedisRegistry) Deregister(s *registry.Service, opts ...registry.DeregisterOption) error {
	if s == nil {
		return fmt.Errorf("service cannot be nil")
	}

	keys := make([]string, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		key := nodeKey(s.Name, n.Id)
		r.stopHeartbeat(key)
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(context.Background(), keys...).Err()
}

// scan 读取匹配前缀的所有节点
func (r *RedisRegistry) scan(ctx context.Context, pattern string) (map[string]*registry.Service, error) {
	services := make(map[string]*registry.Service)

	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}

		var svc registry.Service
		if err := json.Unmarshal(data, &svc); err != nil {
			logger.Warn("解析服务注册信息失败", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}

		if existing, ok := services[svc.Name]; ok {
			existing.Nodes = append(existing.Nodes, svc.Nodes...)
		} else {
			services[svc.Name] = &svc
		}
	}
	return services, iter.Err()
}

// GetService 获取服务
func (r *RedisRegistry) GetService(name string, opts ...registry.GetOption) ([]*registry.Service, error) {
	services, err := r.scan(context.Background(), servicePrefix+name+":*")
	if err != nil {
		return nil, err
	}
	svc, ok := services[name]
	if !ok {
		return nil, registry.ErrNotFound
	}
	return []*registry.Service{svc}, nil
}

// ListServices 列出所有服务
func (r *RedisRegistry) ListServices(opts ...registry.ListOption) ([]*registry.Service, error) {
	services, err := r.scan(context.Background(), servicePrefix+"*")
	if err != nil {
		return nil, err
	}
	out := make([]*registry.Service, 0, len(services))
	for _, svc := range services {
		out = append(out, svc)
	}
	return out, nil
}

// Watch 不支持变更推送，Next 阻塞到 Stop
func (r *RedisRegistry) Watch(opts ...registry.WatchOption) (registry.Watcher, error) {
	return newStoppedWatcher(), nil
}

// String 返回注册中心名称
func (r *RedisRegistry) String() string {
	return "redis"
}

// startHeartbeat 启动心跳保活
func (r *RedisRegistry) startHeartbeat(s *registry.Service, n *registry.Node) {
	key := nodeKey(s.Name, n.Id)

	r.mu.Lock()
	if stop, ok := r.heartbeat[key]; ok {
		close(stop)
	}
	stop := make(chan struct{})
	r.heartbeat[key] = stop
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(r.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := r.write(context.Background(), s, n); err != nil {
					logger.Warn("服务心跳失败", zap.String("key", key), zap.Error(err))
				}
			}
		}
	}()
}

// stopHeartbeat 停止心跳
func (r *RedisRegistry) stopHeartbeat(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if stop, ok := r.heartbeat[key]; ok {
		close(stop)
		delete(r.heartbeat, key)
	}
}
