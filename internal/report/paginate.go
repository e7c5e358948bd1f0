package report

// DefaultPageSize applies when callers pass a non-positive page size.
const DefaultPageSize = 10

type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
}

// Paginate returns the requested 1-based page, clamping out-of-range page
// numbers into [1, TotalPages]. TotalPages is at least 1.
func Paginate[T any](items []T, page, pageSize int) Page[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	total := len(items)
	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if end > total {
		end = total
	}

	slice := make([]T, 0, end-start)
	slice = append(slice, items[start:end]...)
	return Page[T]{
		Items:      slice,
		Total:      total,
		TotalPages: totalPages,
		Page:       page,
		PageSize:   pageSize,
	}
}
