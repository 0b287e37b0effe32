package core

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

type Pagination struct {
	Page  int `query:"page"`
	Limit int `query:"limit"`
}

// Clean applies defaults and bounds.
func (p *Pagination) Clean() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
}

func (p Pagination) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Window returns the [start, end) bounds of the page over n items.
func (p Pagination) Window(n int) (int, int) {
	start := p.Offset()
	if start > n {
		start = n
	}
	end := start + p.Limit
	if p.Limit <= 0 || end > n {
		end = n
	}
	return start, end
}

type Page[T any] struct {
	Data  []T `json:"data"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

func NewPage[T any](data []T, p Pagination, total int) Page[T] {
	if data == nil {
		data = []T{}
	}
	return Page[T]{Data: data, Page: p.Page, Limit: p.Limit, Total: total}
}

// BulkResult reports how many rows a bulk operation changed.
type BulkResult struct {
	Affected int `json:"affected"`
}
