package core

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// Page is the requested window of a listing; Page is 1-based.
type Page struct {
	Page     int `query:"page"`
	PageSize int `query:"page_size"`
}

func (p *Page) Clean() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
}

func (p Page) Offset() int { return (p.Page - 1) * p.PageSize }

// Bounds returns the slice bounds of the page over `total` items.
func (p Page) Bounds(total int) (start, end int) {
	start = p.Offset()
	if start > total {
		start = total
	}
	end = start + p.PageSize
	if end > total {
		end = total
	}
	return start, end
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

func NewPagination(p Page, total int) Pagination {
	pages := 0
	if p.PageSize > 0 {
		pages = (total + p.PageSize - 1) / p.PageSize
	}
	return Pagination{Page: p.Page, PageSize: p.PageSize, TotalItems: total, TotalPages: pages}
}
