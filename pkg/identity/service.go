package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vaultadmin/pkg/auth"
	"github.com/vaultadmin/pkg/events"
)

// ErrNotAuthenticated 未登录
var ErrNotAuthenticated = errors.New("not authenticated")

// TokenVerifier 令牌校验器
type TokenVerifier interface {
	ParseToken(token string) (*auth.Claims, error)
}

// Service 认证服务，持有当前身份并发布身份变化事件
// 每次变化都会发布新的 *Identity，订阅者只读
type Service struct {
	verifier TokenVerifier
	fetcher  Fetcher

	mu      sync.RWMutex
	current *Identity
	token   string

	changes events.Topic[*Identity]
}

// NewService 创建认证服务，fetcher 可为 nil（不支持 Refresh）
func NewService(verifier TokenVerifier, fetcher Fetcher) *Service {
	return &Service{verifier: verifier, fetcher: fetcher}
}

// Login 使用令牌登录
func (s *Service) Login(ctx context.Context, token string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.verifier == nil {
		return nil, fmt.Errorf("token verifier not configured")
	}
	claims, err := s.verifier.ParseToken(token)
	if err != nil {
		return nil, err
	}

	id := &Identity{
		ID:     claims.UserID,
		Email:  claims.Email,
		Name:   claims.Name,
		Role:   claims.Role,
		RoleID: claims.RoleID,
	}

	s.mu.Lock()
	s.token = token
	s.current = id
	s.mu.Unlock()

	s.changes.Publish(id)
	return id, nil
}

// SetIdentity 替换当前身份，nil 表示未登录
func (s *Service) SetIdentity(id *Identity) {
	var next *Identity
	if id != nil {
		cp := *id
		next = &cp
	}

	s.mu.Lock()
	s.current = next
	if next == nil {
		s.token = ""
	}
	s.mu.Unlock()

	s.changes.Publish(next)
}

// Refresh 从后端重新加载身份
func (s *Service) Refresh(ctx context.Context) error {
	if s.fetcher == nil {
		return fmt.Errorf("identity fetcher not configured")
	}
	if s.Current() == nil {
		return ErrNotAuthenticated
	}
	me, err := s.fetcher.GetMe(ctx)
	if err != nil {
		return err
	}
	s.SetIdentity(&me.Identity)
	return nil
}

// Logout 登出
func (s *Service) Logout() {
	s.SetIdentity(nil)
}

// Current 当前身份，未登录时为 nil
func (s *Service) Current() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Token 当前令牌
func (s *Service) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Subscribe 订阅身份变化
func (s *Service) Subscribe(fn func(*Identity)) func() {
	return s.changes.Subscribe(fn)
}
