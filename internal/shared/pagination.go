package shared

// MaxPageButtons is the widest page window rendered by pagination controls.
const MaxPageButtons = 7

// Pagination contains metadata for zero-based paginated listings.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int64
	TotalPages int
}

// NewPagination normalises paging metadata reported by an upstream listing.
func NewPagination(page, perPage, totalPages int, total int64) Pagination {
	if totalPages < 0 {
		totalPages = 0
	}
	return Pagination{
		Page:       ClampPage(page, totalPages),
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	}
}

// ClampPage limits page to [0, totalPages-1], or 0 when totalPages is unknown.
func ClampPage(page, totalPages int) int {
	if totalPages <= 0 || page < 0 {
		return 0
	}
	if page > totalPages-1 {
		return totalPages - 1
	}
	return page
}

// Window returns at most maxButtons page indices centred on page where
// possible. It returns nil when there is at most one page.
func Window(page, totalPages, maxButtons int) []int {
	if totalPages <= 1 || maxButtons <= 0 {
		return nil
	}
	start := page - maxButtons/2
	if start < 0 {
		start = 0
	}
	end := start + maxButtons
	if end > totalPages {
		end = totalPages
		start = end - maxButtons
		if start < 0 {
			start = 0
		}
	}
	out := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, i)
	}
	return out
}

// Window returns the page buttons for p.
func (p Pagination) Window() []int {
	return Window(p.Page, p.TotalPages, MaxPageButtons)
}

// HasPrev reports whether a previous page exists.
func (p Pagination) HasPrev() bool {
	return p.Page > 0
}

// HasNext reports whether a next page exists.
func (p Pagination) HasNext() bool {
	return p.Page+1 < p.TotalPages
}
