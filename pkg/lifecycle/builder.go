package lifecycle

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/vaultadmin/pkg/events"
	"go-micro.dev/v5/registry"
)

// Builder 服务构建器 - 链式调用创建服务
type Builder struct {
	opts    *Options
	app     *fiber.App
	onStart []Hook
	onReady []Hook
	onStop  []Hook
}

// NewBuilder 创建服务构建器
func NewBuilder(name string) *Builder {
	return &Builder{
		opts: &Options{
			Name:    name,
			Version: "1.0.0",
			NodeID:  name + "-" + uuid.NewString()[:8],
		},
	}
}

// WithNodeID 设置节点ID
func (b *Builder) WithNodeID(nodeID string) *Builder {
	b.opts.NodeID = nodeID
	return b
}

// WithVersion 设置服务版本
func (b *Builder) WithVersion(version string) *Builder {
	b.opts.Version = version
	return b
}

// WithAddress 设置服务地址
func (b *Builder) WithAddress(addr string) *Builder {
	b.opts.Address = addr
	return b
}

// WithMetadata 添加注册元数据
func (b *Builder) WithMetadata(key, value string) *Builder {
	if b.opts.Metadata == nil {
		b.opts.Metadata = map[string]string{}
	}
	b.opts.Metadata[key] = value
	return b
}

// WithRegistry 设置服务注册中心
func (b *Builder) WithRegistry(reg registry.Registry) *Builder {
	b.opts.Registry = reg
	return b
}

// WithBridge 设置事件桥
func (b *Builder) WithBridge(bridge *events.Bridge) *Builder {
	b.opts.Bridge = bridge
	return b
}

// WithApp 设置Fiber应用
func (b *Builder) WithApp(app *fiber.App) *Builder {
	b.app = app
	return b
}

// OnStart 添加启动钩子
func (b *Builder) OnStart(fn Hook) *Builder {
	b.onStart = append(b.onStart, fn)
	return b
}

// OnReady 添加就绪钩子
func (b *Builder) OnReady(fn Hook) *Builder {
	b.onReady = append(b.onReady, fn)
	return b
}

// OnStop 添加停止钩子
func (b *Builder) OnStop(fn Hook) *Builder {
	b.onStop = append(b.onStop, fn)
	return b
}

// NodeID 构建时使用的节点ID
func (b *Builder) NodeID() string {
	return b.opts.NodeID
}

// Build 构建服务
func (b *Builder) Build() *Service {
	app := b.app
	if app == nil {
		app = fiber.New(fiber.Config{DisableStartupMessage: true})
	}
	svc := NewService(b.opts, app)
	svc.onStart = append(svc.onStart, b.onStart...)
	svc.onReady = append(svc.onReady, b.onReady...)
	svc.onStop = append(svc.onStop, b.onStop...)
	return svc
}
