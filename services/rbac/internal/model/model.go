package model

import (
	"github.com/vaultadmin/pkg/dal"
	"github.com/vaultadmin/pkg/utils"
)

// User 后台用户
type User struct {
	dal.Model
	Email        string  `gorm:"size:128;uniqueIndex;not null" json:"email"`
	Name         string  `gorm:"size:64" json:"name"`
	PasswordHash string  `gorm:"size:255;not null" json:"-"`
	Role         string  `gorm:"size:32;not null;default:viewer" json:"role"` // 基础角色
	RoleID       *string `gorm:"size:36;index" json:"roleId"`                 // 自定义角色
}

// TableName 表名
func (User) TableName() string {
	return "admin_user"
}

// CustomRoleID 自定义角色ID，未分配时为空串
func (u *User) CustomRoleID() string {
	return utils.Val(u.RoleID)
}

// Role 自定义角色，权限保存在策略存储中
type Role struct {
	dal.Model
	Name         string `gorm:"size:64;uniqueIndex;not null" json:"name"`
	DisplayName  string `gorm:"size:128;not null" json:"displayName"`
	Description  string `gorm:"size:512" json:"description"`
	Color        string `gorm:"size:16" json:"color"`
	IsSystemRole bool   `gorm:"default:false" json:"isSystemRole"`
}

// TableName 表名
func (Role) TableName() string {
	return "admin_role"
}

// LoginLog 登录日志
type LoginLog struct {
	dal.Model
	UserID    string `gorm:"size:36;index" json:"userId"`
	Email     string `gorm:"size:128;index" json:"email"`
	IP        string `gorm:"size:64" json:"ip"`
	UserAgent string `gorm:"size:255" json:"userAgent"`
	Success   bool   `gorm:"index" json:"success"`
	Message   string `gorm:"size:255" json:"message"`
}

// TableName 表名
func (LoginLog) TableName() string {
	return "admin_login_log"
}

// OperationLog 管理操作日志，记录已认证用户的写操作
type OperationLog struct {
	dal.Model
	UserID       string `gorm:"size:36;index" json:"userId"`
	Email        string `gorm:"size:128" json:"email"`
	Module       string `gorm:"size:32;index" json:"module"`
	Method       string `gorm:"size:10" json:"method"`
	Path         string `gorm:"size:255" json:"path"`
	IP           string `gorm:"size:64" json:"ip"`
	Status       int    `json:"status"` // HTTP 状态码
	Success      bool   `gorm:"index" json:"success"`
	ErrorMessage string `gorm:"size:255" json:"errorMessage"`
	Duration     int64  `json:"duration"` // 执行时长(ms)
}

// TableName 表名
func (OperationLog) TableName() string {
	return "admin_operation_log"
}

// All 需要迁移的模型
func All() []any {
	return []any{&User{}, &Role{}, &LoginLog{}, &OperationLog{}}
}
