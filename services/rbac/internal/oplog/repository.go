package oplog

import (
	"context"

	"github.com/vaultadmin/pkg/dal"
	"github.com/vaultadmin/services/rbac/internal/model"
	"gorm.io/gorm"
)

// Repository 操作日志仓储接口
type Repository interface {
	dal.Repository[model.OperationLog]
	List(ctx context.Context, req ListRequest) ([]model.OperationLog, int64, error)
}

type repository struct {
	*dal.BaseRepository[model.OperationLog]
}

// NewRepository 创建操作日志仓储
func NewRepository(db *gorm.DB) Repository {
	return &repository{
		BaseRepository: dal.NewBaseRepository[model.OperationLog](db),
	}
}

// List 分页查询，按时间倒序
func (r *repository) List(ctx context.Context, req ListRequest) ([]model.OperationLog, int64, error) {
	req.normalize()

	query := r.DB().WithContext(ctx).Model(&model.OperationLog{})
	if req.UserID != "" {
		query = query.Where("user_id = ?", req.UserID)
	}
	if req.Module != "" {
		query = query.Where("module = ?", req.Module)
	}
	if req.Success != nil {
		query = query.Where("success = ?", *req.Success)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []model.OperationLog
	err := query.Order("created_at DESC").
		Offset((req.Page - 1) * req.PageSize).
		Limit(req.PageSize).
		Find(&items).Error
	return items, total, err
}
