package rbac

import (
	"encoding/json"
	"sort"
)

// PermissionSet 不可变的权限集合
type PermissionSet struct {
	items map[Permission]struct{}
}

// NewPermissionSet 创建权限集合
func NewPermissionSet(perms ...Permission) PermissionSet {
	items := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		if p == "" {
			continue
		}
		items[p] = struct{}{}
	}
	return PermissionSet{items: items}
}

// Has 是否包含指定权限
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s.items[p]
	return ok
}

// Len 权限数量
func (s PermissionSet) Len() int {
	return len(s.items)
}

// List 排序后的权限列表
func (s PermissionSet) List() []Permission {
	out := make([]Permission, 0, len(s.items))
	for p := range s.items {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SubsetOf 是否为另一集合的子集
func (s PermissionSet) SubsetOf(other PermissionSet) bool {
	for p := range s.items {
		if !other.Has(p) {
			return false
		}
	}
	return true
}

// Equal 集合是否相等
func (s PermissionSet) Equal(other PermissionSet) bool {
	return s.Len() == other.Len() && s.SubsetOf(other)
}

// Without 返回去除指定权限后的新集合
func (s PermissionSet) Without(perms ...Permission) PermissionSet {
	drop := NewPermissionSet(perms...)
	kept := make([]Permission, 0, len(s.items))
	for p := range s.items {
		if !drop.Has(p) {
			kept = append(kept, p)
		}
	}
	return NewPermissionSet(kept...)
}

// MarshalJSON 序列化为有序字符串数组
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(Strings(s.List()))
}

// UnmarshalJSON 从字符串数组反序列化
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewPermissionSet(ParsePermissions(values)...)
	return nil
}
