package loginlog

import (
	"context"
	"strings"

	"github.com/vaultadmin/pkg/dal"
	"github.com/vaultadmin/services/rbac/internal/model"
	"gorm.io/gorm"
)

// Repository 登录日志仓储接口
type Repository interface {
	dal.Repository[model.LoginLog]
	List(ctx context.Context, req ListRequest) ([]model.LoginLog, int64, error)
}

// repository 登录日志仓储实现
type repository struct {
	*dal.BaseRepository[model.LoginLog]
}

// NewRepository 创建登录日志仓储
func NewRepository(db *gorm.DB) Repository {
	return &repository{
		BaseRepository: dal.NewBaseRepository[model.LoginLog](db),
	}
}

// List 分页查询，按时间倒序
func (r *repository) List(ctx context.Context, req ListRequest) ([]model.LoginLog, int64, error) {
	req.normalize()

	query := r.DB().WithContext(ctx).Model(&model.LoginLog{})
	if email := strings.ToLower(strings.TrimSpace(req.Email)); email != "" {
		query = query.Where("email LIKE ?", "%"+email+"%")
	}
	if req.Success != nil {
		query = query.Where("success = ?", *req.Success)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []model.LoginLog
	err := query.Order("created_at DESC").
		Offset((req.Page - 1) * req.PageSize).
		Limit(req.PageSize).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
