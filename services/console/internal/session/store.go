package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vaultadmin/pkg/apiclient"
	"github.com/vaultadmin/pkg/cache"
	"github.com/vaultadmin/pkg/identity"
	"github.com/vaultadmin/pkg/logger"
	"github.com/vaultadmin/pkg/rbac"
	"go.uber.org/zap"
)

// Header 会话ID请求头
const Header = "X-Session-ID"

// Store 内存会话存储，空闲超过 TTL 的会话被回收
type Store struct {
	sessions *cache.Cache[*Session]
	api      *apiclient.Client
	verifier identity.TokenVerifier
	routes   *rbac.RouteTable
}

// NewStore 创建会话存储
func NewStore(api *apiclient.Client, verifier identity.TokenVerifier, routes *rbac.RouteTable, ttl, cleanup time.Duration) *Store {
	return &Store{
		sessions: cache.New(ttl,
			cache.WithCleanup[*Session](cleanup),
			cache.WithEvict(func(id string, s *Session) {
				logger.Debug("会话已回收", zap.String("sessionId", id))
				s.close()
			}),
		),
		api:      api,
		verifier: verifier,
		routes:   routes,
	}
}

// Login 创建会话并登录，失败时不保留会话
func (st *Store) Login(ctx context.Context, email, password string) (*Session, error) {
	s := newSession(uuid.NewString(), st.api, st.verifier, st.routes)
	if err := s.Login(ctx, email, password); err != nil {
		s.close()
		return nil, err
	}
	st.sessions.Set(s.ID, s)

	user := s.User()
	logger.Info("会话已创建",
		zap.String("sessionId", s.ID),
		zap.String("userId", user.Identity.ID),
		zap.String("role", user.Role),
		zap.String("source", string(user.Source)),
	)
	return s, nil
}

// Get 获取会话并顺延过期时间
func (st *Store) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	return st.sessions.Touch(id)
}

// Delete 登出并删除会话
func (st *Store) Delete(id string) {
	st.sessions.Delete(id)
}

// Len 会话数量
func (st *Store) Len() int {
	return st.sessions.Count()
}

// RefreshAffected 刷新受角色变化影响的会话，返回刷新数量
// 优先重新获取身份，失败时按原身份重新解析
func (st *Store) RefreshAffected(ctx context.Context, ev rbac.RoleChanged) int {
	var affected []*Session
	st.sessions.Range(func(_ string, s *Session) bool {
		if ev.Affects(s.User()) {
			affected = append(affected, s)
		}
		return true
	})

	for _, s := range affected {
		if err := s.Refresh(ctx); err != nil {
			logger.Warn("刷新会话身份失败，按原身份重新解析",
				zap.String("sessionId", s.ID),
				zap.String("roleId", ev.RoleID),
				zap.Error(err),
			)
			if err := s.Reload(ctx); err != nil {
				logger.Warn("重新解析会话失败", zap.String("sessionId", s.ID), zap.Error(err))
			}
		}
	}
	return len(affected)
}

// Close 关闭所有会话
func (st *Store) Close() {
	st.sessions.Close()
}
