package models

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// NewPagination derives page metadata from a limit/offset window.
func NewPagination(limit, offset, total int) *Pagination {
	if limit <= 0 {
		return &Pagination{Page: 1, PageSize: total, TotalCount: total}
	}
	return &Pagination{Page: offset/limit + 1, PageSize: limit, TotalCount: total}
}
