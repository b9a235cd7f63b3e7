package auth

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/vaultadmin/pkg/config"
	"gorm.io/gorm"
)

// 权限策略模型：主体通过 g 继承角色，p 为 (主体, 权限)
const policyModel = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj
`

// RoleSubject 自定义角色主体
func RoleSubject(roleID string) string {
	return "role:" + roleID
}

// BuiltinSubject 内置角色主体
func BuiltinSubject(name string) string {
	return "builtin:" + name
}

// UserSubject 用户主体
func UserSubject(userID string) string {
	return "user:" + userID
}

// PolicyStore 角色权限策略存储
type PolicyStore struct {
	mu       sync.RWMutex
	enforcer *casbin.Enforcer
}

// NewPolicyStore 创建策略存储，db 为 nil 时仅保存在内存
func NewPolicyStore(db *gorm.DB, cfg *config.CasbinConfig) (*PolicyStore, error) {
	var (
		m   model.Model
		err error
	)
	if cfg != nil && cfg.ModelPath != "" {
		m, err = model.NewModelFromFile(cfg.ModelPath)
	} else {
		m, err = model.NewModelFromString(policyModel)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.Enforcer
	if db != nil {
		adapter, adapterErr := gormadapter.NewAdapterByDB(db)
		if adapterErr != nil {
			return nil, fmt.Errorf("failed to create casbin adapter: %w", adapterErr)
		}
		enforcer, err = casbin.NewEnforcer(m, adapter)
	} else {
		enforcer, err = casbin.NewEnforcer(m)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	if db != nil {
		if err := enforcer.LoadPolicy(); err != nil {
			return nil, fmt.Errorf("failed to load casbin policy: %w", err)
		}
	}

	return &PolicyStore{enforcer: enforcer}, nil
}

// SetPermissions 覆盖主体的权限
func (s *PolicyStore) SetPermissions(subject string, permissions []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.enforcer.DeletePermissionsForUser(subject); err != nil {
		return err
	}
	if len(permissions) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(permissions))
	rules := make([][]string, 0, len(permissions))
	for _, p := range permissions {
		if _, dup := seen[p]; dup || p == "" {
			continue
		}
		seen[p] = struct{}{}
		rules = append(rules, []string{subject, p})
	}
	_, err := s.enforcer.AddPolicies(rules)
	return err
}

// Permissions 主体直接拥有的权限（已排序）
func (s *PolicyStore) Permissions(subject string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	policies, err := s.enforcer.GetFilteredPolicy(0, subject)
	if err != nil {
		return nil, err
	}
	perms := make([]string, 0, len(policies))
	for _, p := range policies {
		if len(p) >= 2 {
			perms = append(perms, p[1])
		}
	}
	sort.Strings(perms)
	return perms, nil
}

// RemoveSubject 删除主体的权限及所有归属关系
func (s *PolicyStore) RemoveSubject(subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.enforcer.DeletePermissionsForUser(subject); err != nil {
		return err
	}
	_, err := s.enforcer.DeleteRole(subject)
	return err
}

// AssignUser 将用户归属到唯一的角色主体
func (s *PolicyStore) AssignUser(userID, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := UserSubject(userID)
	if _, err := s.enforcer.DeleteRolesForUser(user); err != nil {
		return err
	}
	if subject == "" {
		return nil
	}
	_, err := s.enforcer.AddGroupingPolicy(user, subject)
	return err
}

// SubjectOf 用户当前归属的角色主体
func (s *PolicyStore) SubjectOf(userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roles, err := s.enforcer.GetRolesForUser(UserSubject(userID))
	if err != nil || len(roles) == 0 {
		return "", err
	}
	return roles[0], nil
}

// UsersOf 归属到角色主体的用户ID
func (s *PolicyStore) UsersOf(subject string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users, err := s.enforcer.GetUsersForRole(subject)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		if id, ok := strings.CutPrefix(u, "user:"); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Allowed 用户是否拥有权限（经由角色继承）
func (s *PolicyStore) Allowed(userID, permission string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enforcer.Enforce(UserSubject(userID), permission)
}
