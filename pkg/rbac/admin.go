package rbac

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vaultadmin/pkg/errors"
	"github.com/vaultadmin/pkg/identity"
)

// CustomRole 后端定义的自定义角色
type CustomRole = identity.Role

// RolePayload 创建/更新角色的请求体
type RolePayload struct {
	Name        string   `json:"name" validate:"required,max=64"`
	DisplayName string   `json:"displayName" validate:"required,max=128"`
	Description string   `json:"description" validate:"max=512"`
	Color       string   `json:"color" validate:"omitempty,hexcolor"`
	Permissions []string `json:"permissions" validate:"min=1,dive,required"`
}

// RoleAssignment 用户角色分配
type RoleAssignment struct {
	Role   string `json:"role" validate:"required"`
	RoleID string `json:"roleId,omitempty"`
}

var validate = validator.New()

var fieldLabels = map[string]string{
	"Name":        "角色名称",
	"DisplayName": "显示名称",
	"Description": "描述",
	"Color":       "颜色",
	"Permissions": "权限",
	"Role":        "角色",
}

// Normalize 去除首尾空白并对权限去重
func (p *RolePayload) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	p.Description = strings.TrimSpace(p.Description)
	p.Color = strings.TrimSpace(p.Color)

	seen := make(map[string]struct{}, len(p.Permissions))
	perms := make([]string, 0, len(p.Permissions))
	for _, perm := range p.Permissions {
		perm = strings.TrimSpace(perm)
		if perm == "" {
			continue
		}
		if _, ok := seen[perm]; ok {
			continue
		}
		seen[perm] = struct{}{}
		perms = append(perms, perm)
	}
	p.Permissions = perms
}

// Validate 校验请求体，返回第一条错误
func (p *RolePayload) Validate() error {
	return validateStruct(p)
}

// Validate 校验角色分配
func (a *RoleAssignment) Validate() error {
	return validateStruct(a)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(fieldErrs) == 0 {
		return errors.Validation(err.Error())
	}
	fe := fieldErrs[0]
	label := fieldLabels[fe.StructField()]
	if label == "" {
		label = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return errors.Validation(label + "不能为空")
	case "min":
		if fe.StructField() == "Permissions" {
			return errors.Validation("至少选择一个权限")
		}
		return errors.Validation(label + "长度不足")
	case "max":
		return errors.Validation(label + "过长")
	case "hexcolor":
		return errors.Validation(label + "格式无效")
	default:
		return errors.Validation(label + "无效")
	}
}

// CanDelete 客户端删除前检查，服务端仍然是最终裁决
func CanDelete(role *CustomRole) error {
	if role == nil {
		return errors.NotFound("角色")
	}
	if role.IsSystemRole {
		return errors.ErrSystemRole
	}
	if role.UsageCount > 0 {
		return errors.RoleInUse(role.UsageCount)
	}
	return nil
}

// RoleAPI 角色管理后端接口
type RoleAPI interface {
	GetRoles(ctx context.Context) ([]CustomRole, error)
	GetRoleByID(ctx context.Context, id string) (*CustomRole, error)
	CreateRole(ctx context.Context, payload RolePayload) (*CustomRole, error)
	UpdateRole(ctx context.Context, id string, payload RolePayload) (*CustomRole, error)
	DeleteRole(ctx context.Context, id string) error
	AssignUserRole(ctx context.Context, userID string, assignment RoleAssignment) error
}

// RoleManager 角色管理，失败时不在本地保留任何部分状态
type RoleManager struct {
	api RoleAPI
}

// NewRoleManager 创建角色管理
func NewRoleManager(api RoleAPI) *RoleManager {
	return &RoleManager{api: api}
}

// List 角色列表
func (a *RoleManager) List(ctx context.Context) ([]CustomRole, error) {
	return a.api.GetRoles(ctx)
}

// Get 角色详情
func (a *RoleManager) Get(ctx context.Context, id string) (*CustomRole, error) {
	return a.api.GetRoleByID(ctx, id)
}

// Create 创建角色
func (a *RoleManager) Create(ctx context.Context, payload RolePayload) (*CustomRole, error) {
	payload.Normalize()
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return a.api.CreateRole(ctx, payload)
}

// Update 更新角色
func (a *RoleManager) Update(ctx context.Context, id string, payload RolePayload) (*CustomRole, error) {
	if id == "" {
		return nil, errors.BadRequest("角色ID不能为空")
	}
	payload.Normalize()
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return a.api.UpdateRole(ctx, id, payload)
}

// Delete 删除角色，本地检查不通过时不会请求后端
func (a *RoleManager) Delete(ctx context.Context, role *CustomRole) error {
	if err := CanDelete(role); err != nil {
		return err
	}
	return a.api.DeleteRole(ctx, role.ID)
}

// DeleteByID 先获取角色再删除
func (a *RoleManager) DeleteByID(ctx context.Context, id string) error {
	role, err := a.api.GetRoleByID(ctx, id)
	if err != nil {
		return err
	}
	return a.Delete(ctx, role)
}

// AssignUserRole 修改用户角色
func (a *RoleManager) AssignUserRole(ctx context.Context, userID string, assignment RoleAssignment) error {
	if userID == "" {
		return errors.BadRequest("用户ID不能为空")
	}
	assignment.Role = strings.TrimSpace(assignment.Role)
	assignment.RoleID = strings.TrimSpace(assignment.RoleID)
	if err := assignment.Validate(); err != nil {
		return err
	}
	return a.api.AssignUserRole(ctx, userID, assignment)
}
