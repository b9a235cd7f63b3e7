package rbac

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vaultadmin/pkg/events"
	"github.com/vaultadmin/pkg/identity"
)

// IdentitySource 身份来源，由认证服务实现
type IdentitySource interface {
	Current() *identity.Identity
	Subscribe(fn func(*identity.Identity)) func()
}

// RoleService 订阅身份变化，重新解析会话用户并通知下游
// 会话用户整体替换，不做局部修改
type RoleService struct {
	resolver *Resolver
	routes   *RouteTable

	state atomic.Pointer[SessionState]

	// pub 保证通知顺序与状态写入顺序一致，加锁顺序为 pub -> mu
	pub      sync.Mutex
	mu       sync.Mutex
	ctx      context.Context
	stop     context.CancelFunc
	gen      uint64
	cancel   context.CancelFunc
	done     chan struct{}
	identity *identity.Identity
	unbind   func()

	changes events.Topic[*SessionUser]
}

// NewRoleService 创建角色服务
func NewRoleService(resolver *Resolver, routes *RouteTable) *RoleService {
	if routes == nil {
		routes = DefaultRoutes()
	}
	ctx, stop := context.WithCancel(context.Background())
	s := &RoleService{
		resolver: resolver,
		routes:   routes,
		ctx:      ctx,
		stop:     stop,
	}
	s.state.Store(&SessionState{})
	return s
}

// Bind 绑定身份来源，并立即按当前身份解析一次
func (s *RoleService) Bind(src IdentitySource) {
	unbind := src.Subscribe(s.OnIdentityChanged)

	s.mu.Lock()
	prev := s.unbind
	s.unbind = unbind
	s.mu.Unlock()
	if prev != nil {
		prev()
	}

	s.OnIdentityChanged(src.Current())
}

// OnIdentityChanged 身份变化时触发重新解析，进行中的解析会被取消
func (s *RoleService) OnIdentityChanged(id *identity.Identity) {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.gen++
	gen := s.gen
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	done := make(chan struct{})
	s.done = done
	s.identity = id
	prev := s.state.Load().User

	if id == nil {
		s.state.Store(&SessionState{})
		s.mu.Unlock()
		close(done)
		if prev != nil {
			s.publish(gen, nil)
		}
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.cancel = cancel
	s.state.Store(&SessionState{User: prev, Loading: true})
	s.mu.Unlock()

	snapshot := *id
	go func() {
		defer close(done)
		defer cancel()

		user := s.resolver.Resolve(ctx, &snapshot)

		s.pub.Lock()
		defer s.pub.Unlock()

		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		s.state.Store(&SessionState{User: user})
		s.cancel = nil
		s.mu.Unlock()

		if !user.Equal(prev) {
			s.changes.Publish(user)
		}
	}()
}

// publish 仅在 gen 仍是最新一代时通知，过期的结果直接丢弃
func (s *RoleService) publish(gen uint64, user *SessionUser) {
	s.pub.Lock()
	defer s.pub.Unlock()

	s.mu.Lock()
	current := gen == s.gen
	s.mu.Unlock()
	if current {
		s.changes.Publish(user)
	}
}

// Reload 按当前身份重新解析（如后端角色已变更）
func (s *RoleService) Reload() {
	s.mu.Lock()
	id := s.identity
	s.mu.Unlock()
	s.OnIdentityChanged(id)
}

// Wait 等待当前解析完成
func (s *RoleService) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State 当前状态
func (s *RoleService) State() SessionState {
	return *s.state.Load()
}

// User 当前会话用户
func (s *RoleService) User() *SessionUser {
	return s.state.Load().User
}

// Access 基于当前会话用户的访问判断
func (s *RoleService) Access() Access {
	return NewAccess(s.User(), s.routes)
}

// Routes 路由权限表
func (s *RoleService) Routes() *RouteTable {
	return s.routes
}

// Subscribe 订阅会话用户变化，登出时收到 nil
// 回调按状态写入顺序串行执行，回调内不要同步触发登出
func (s *RoleService) Subscribe(fn func(*SessionUser)) func() {
	return s.changes.Subscribe(fn)
}

// Close 解除绑定并取消进行中的解析
func (s *RoleService) Close() {
	s.mu.Lock()
	unbind := s.unbind
	s.unbind = nil
	s.gen++
	s.mu.Unlock()

	if unbind != nil {
		unbind()
	}
	s.stop()
}
