package user

import (
	"context"

	"github.com/vaultadmin/pkg/dal"
	"github.com/vaultadmin/services/rbac/internal/model"
	"gorm.io/gorm"
)

// Repository 用户仓储接口
type Repository interface {
	dal.Repository[model.User]
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateRole(ctx context.Context, id, role string, roleID *string) error
}

// repository 用户仓储实现
type repository struct {
	*dal.BaseRepository[model.User]
}

// NewRepository 创建用户仓储
func NewRepository(db *gorm.DB) Repository {
	return &repository{
		BaseRepository: dal.NewBaseRepository[model.User](db),
	}
}

// FindByEmail 根据邮箱查找
func (r *repository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.FindOne(ctx, map[string]interface{}{"email": email})
}

// UpdateRole 更新基础角色与自定义角色
func (r *repository) UpdateRole(ctx context.Context, id, role string, roleID *string) error {
	return r.UpdateFields(ctx, id, map[string]interface{}{"role": role, "role_id": roleID})
}
