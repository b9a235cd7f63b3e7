package oplog

// ListRequest 操作日志列表请求
type ListRequest struct {
	Page     int    `query:"page"`
	PageSize int    `query:"pageSize"`
	UserID   string `query:"userId"`
	Module   string `query:"module"`
	Success  *bool  `query:"success"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

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
