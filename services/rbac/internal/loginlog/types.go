package loginlog

// ListRequest 登录日志列表请求
type ListRequest struct {
	Page     int    `query:"page"`
	PageSize int    `query:"pageSize"`
	Email    string `query:"email"`
	Success  *bool  `query:"success"`
}

// 分页默认值
const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// normalize 修正分页参数
func (r *ListRequest) normalize() {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = defaultPageSize
	}
	if r.PageSize > maxPageSize {
		r.PageSize = maxPageSize
	}
}
