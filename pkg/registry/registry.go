package registry

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vaultadmin/pkg/config"
	"go-micro.dev/v5/registry"
)

// New 按配置创建注册中心，redis 模式需要传入客户端
func New(cfg *config.RegistryConfig, client *redis.Client) (registry.Registry, error) {
	switch cfg.Mode {
	case "", "memory":
		return NewMemoryRegistry(), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis registry requires a redis client")
		}
		ttl := time.Duration(cfg.TTL) * time.Second
		return NewRedisRegistry(client, ttl), nil
	default:
		return nil, fmt.Errorf("unsupported registry mode: %s", cfg.Mode)
	}
}

// MetaBasePath 节点元数据：网关路径前缀，/api/v1/{basePath}/* 转发到该服务
const MetaBasePath = "basePath"

// BasePath 读取服务声明的网关路径前缀
func BasePath(svc *registry.Service) string {
	for _, node := range svc.Nodes {
		if p := strings.Trim(node.Metadata[MetaBasePath], "/"); p != "" {
			return p
		}
	}
	return ""
}

// ServiceBuilder 服务注册信息构建器
type ServiceBuilder struct {
	name     string
	version  string
	nodeID   string
	address  string
	metadata map[string]string
}

// NewServiceBuilder 创建服务构建器
func NewServiceBuilder(name, version string) *ServiceBuilder {
	return &ServiceBuilder{
		name:     name,
		version:  version,
		nodeID:   name + "-" + uuid.NewString()[:8],
		metadata: map[string]string{},
	}
}

// WithNodeID 设置节点ID
func (b *ServiceBuilder) WithNodeID(nodeID string) *ServiceBuilder {
	b.nodeID = nodeID
	return b
}

// WithAddress 设置服务地址
func (b *ServiceBuilder) WithAddress(addr string) *ServiceBuilder {
	b.address = addr
	return b
}

// WithMetadata 添加节点元数据
func (b *ServiceBuilder) WithMetadata(key, value string) *ServiceBuilder {
	b.metadata[key] = value
	return b
}

// WithMetadataMap 批量添加节点元数据
func (b *ServiceBuilder) WithMetadataMap(metadata map[string]string) *ServiceBuilder {
	for k, v := range metadata {
		b.metadata[k] = v
	}
	return b
}

// Build 构建服务注册信息
func (b *ServiceBuilder) Build() *registry.Service {
	return &registry.Service{
		Name:    b.name,
		Version: b.version,
		Nodes: []*registry.Node{
			{
				Id:       b.nodeID,
				Address:  b.address,
				Metadata: b.metadata,
			},
		},
	}
}

// Resolve 从注册中心选取服务的一个节点地址，返回 http 基础地址
func Resolve(reg registry.Registry, name string) (string, error) {
	services, err := reg.GetService(name)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", name, err)
	}

	var nodes []*registry.Node
	for _, svc := range services {
		nodes = append(nodes, svc.Nodes...)
	}
	if len(nodes) == 0 {
		return "", fmt.Errorf("resolve %s: %w", name, registry.ErrNotFound)
	}

	addr := nodes[rand.IntN(len(nodes))].Address
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return addr, nil
}
