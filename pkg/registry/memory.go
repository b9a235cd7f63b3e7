package registry

import (
	"sync"

	"go-micro.dev/v5/registry"
)

// MemoryRegistry 进程内注册中心，同名服务的节点按ID合并
type MemoryRegistry struct {
	services map[string]map[string]*registry.Node
	versions map[string]string
	mu       sync.RWMutex
}

// NewMemoryRegistry 创建内存注册中心
func NewMemoryRegistry() registry.Registry {
	return &MemoryRegistry{
		services: make(map[string]map[string]*registry.Node),
		versions: make(map[string]string),
	}
}

// Init 初始化
func (r *MemoryRegistry) Init(opts ...registry.Option) error {
	return nil
}

// Options 获取选项
func (r *MemoryRegistry) Options() registry.Options {
	return registry.Options{}
}

// Register 注册服务节点
func (r *MemoryRegistry) Register(s *registry.Service, opts ...registry.RegisterOption) error {
	if s == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	nodes, ok := r.services[s.Name]
	if !ok {
		nodes = make(map[string]*registry.Node)
		r.services[s.Name] = nodes
	}
	for _, n := range s.Nodes {
		nodes[n.Id] = n
	}
	r.versions[s.Name] = s.Version
	return nil
}

// Deregister 注销服务节点
func (r *MemoryRegistry) Deregister(s *registry.Service, opts ...registry.DeregisterOption) error {
	if s == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	nodes := r.services[s.Name]
	for _, n := range s.Nodes {
		delete(nodes, n.Id)
	}
	if len(nodes) == 0 {
		delete(r.services, s.Name)
		delete(r.versions, s.Name)
	}
	return nil
}

// GetService 获取服务
func (r *MemoryRegistry) GetService(name string, opts ...registry.GetOption) ([]*registry.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes, ok := r.services[name]
	if !ok || len(nodes) == 0 {
		return nil, registry.ErrNotFound
	}
	return []*registry.Service{r.snapshot(name, nodes)}, nil
}

// ListServices 列出所有服务
func (r *MemoryRegistry) ListServices(opts ...registry.ListOption) ([]*registry.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	services := make([]*registry.Service, 0, len(r.services))
	for name, nodes := range r.services {
		services = append(services, r.snapshot(name, nodes))
	}
	return services, nil
}

func (r *MemoryRegistry) snapshot(name string, nodes map[string]*registry.Node) *registry.Service {
	svc := &registry.Service{Name: name, Version: r.versions[name]}
	for _, n := range nodes {
		svc.Nodes = append(svc.Nodes, n)
	}
	return svc
}

// Watch 不支持变更推送，Next 阻塞到 Stop
func (r *MemoryRegistry) Watch(opts ...registry.WatchOption) (registry.Watcher, error) {
	return newStoppedWatcher(), nil
}

// String 返回注册中心名称
func (r *MemoryRegistry) String() string {
	return "memory"
}

// idleWatcher 不产生事件的监听器
type idleWatcher struct {
	once sync.Once
	exit chan struct{}
}

func newStoppedWatcher() *idleWatcher {
	return &idleWatcher{exit: make(chan struct{})}
}

func (w *idleWatcher) Next() (*registry.Result, error) {
	<-w.exit
	return nil, registry.ErrWatcherStopped
}

func (w *idleWatcher) Stop() {
	w.once.Do(func() { close(w.exit) })
}
