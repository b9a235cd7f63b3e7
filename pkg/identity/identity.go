// Package identity 维护当前登录身份，并在身份变化时通知订阅者
package identity

import (
	"bytes"
	"context"
	"encoding/json"
)

// Identity 认证后的用户身份
type Identity struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`             // 基础角色
	RoleID string `json:"roleId,omitempty"` // 自定义角色ID
}

// Role 后端定义的角色记录
type Role struct {
	ID           string   `json:"_id"`
	Name         string   `json:"name"`
	DisplayName  string   `json:"displayName"`
	Description  string   `json:"description,omitempty"`
	Color        string   `json:"color,omitempty"`
	Permissions  []string `json:"permissions"`
	IsSystemRole bool     `json:"isSystemRole"`
	UsageCount   int      `json:"usageCount"`
}

// Label 显示名称，缺省时使用角色名
func (r *Role) Label() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return r.Name
}

// Me getMe 返回的身份记录
// roleId 字段在后端填充关联时为角色对象，否则为角色ID字符串
type Me struct {
	Identity
	InlineRole *Role `json:"-"`
}

type meJSON struct {
	ID     string          `json:"id"`
	Email  string          `json:"email"`
	Name   string          `json:"name"`
	Role   string          `json:"role"`
	RoleID json.RawMessage `json:"roleId,omitempty"`
}

// UnmarshalJSON 兼容 roleId 为字符串或角色对象两种形式
func (m *Me) UnmarshalJSON(data []byte) error {
	var aux meJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.Identity = Identity{ID: aux.ID, Email: aux.Email, Name: aux.Name, Role: aux.Role}
	m.InlineRole = nil

	raw := bytes.TrimSpace(aux.RoleID)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '"':
		if err := json.Unmarshal(raw, &m.RoleID); err != nil {
			return err
		}
	default:
		var role Role
		if err := json.Unmarshal(raw, &role); err != nil {
			return err
		}
		m.InlineRole = &role
		m.RoleID = role.ID
	}
	return nil
}

// MarshalJSON 填充了角色时输出角色对象
func (m Me) MarshalJSON() ([]byte, error) {
	aux := struct {
		ID     string `json:"id"`
		Email  string `json:"email"`
		Name   string `json:"name"`
		Role   string `json:"role"`
		RoleID any    `json:"roleId,omitempty"`
	}{ID: m.ID, Email: m.Email, Name: m.Name, Role: m.Role}

	if m.InlineRole != nil {
		aux.RoleID = m.InlineRole
	} else if m.RoleID != "" {
		aux.RoleID = m.RoleID
	}
	return json.Marshal(aux)
}

// Fetcher 获取当前身份记录
type Fetcher interface {
	GetMe(ctx context.Context) (*Me, error)
}
