package role

import (
	"context"

	"github.com/vaultadmin/pkg/dal"
	"github.com/vaultadmin/services/rbac/internal/model"
	"gorm.io/gorm"
)

// Repository 角色仓储接口
type Repository interface {
	dal.Repository[model.Role]
	FindByName(ctx context.Context, name string) (*model.Role, error)
	UsageCount(ctx context.Context, id string) (int, error)
	UsageCounts(ctx context.Context) (map[string]int, error)
}

// repository 角色仓储实现
type repository struct {
	*dal.BaseRepository[model.Role]
}

// NewRepository 创建角色仓储
func NewRepository(db *gorm.DB) Repository {
	return &repository{
		BaseRepository: dal.NewBaseRepository[model.Role](db),
	}
}

// FindByName 根据名称查找
func (r *repository) FindByName(ctx context.Context, name string) (*model.Role, error) {
	return r.FindOne(ctx, map[string]interface{}{"name": name})
}

// UsageCount 分配了该角色的用户数
func (r *repository) UsageCount(ctx context.Context, id string) (int, error) {
	var n int64
	err := r.DB().WithContext(ctx).Model(&model.User{}).Where("role_id = ?", id).Count(&n).Error
	return int(n), err
}

// UsageCounts 所有角色的用户数
func (r *repository) UsageCounts(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		RoleID string
		N      int
	}
	err := r.DB().WithContext(ctx).
		Model(&model.User{}).
		Select("role_id, count(*) as n").
		Where("role_id IS NOT NULL").
		Group("role_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.RoleID] = row.N
	}
	return counts, nil
}
