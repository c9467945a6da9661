package listing

import "diagdesk/internal/models"

// Page is one slice of a filtered result set. Number is 1-based.
type Page[T any] struct {
	Items      []T `json:"items"`
	Number     int `json:"page"`
	Size       int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// From and To are the 1-based positions of the first and last row shown; both are 0 for an empty page.
func (p Page[T]) From() int {
	if len(p.Items) == 0 {
		return 0
	}
	return (p.Number-1)*p.Size + 1
}

func (p Page[T]) To() int {
	if len(p.Items) == 0 {
		return 0
	}
	return p.From() + len(p.Items) - 1
}

func (p Page[T]) HasPrev() bool { return p.Number > 1 }
func (p Page[T]) HasNext() bool { return p.Number < p.TotalPages }

// TotalPages is ceil(total/size), and at least 1 so an empty table still has a page.
func TotalPages(total, size int) int {
	if size <= 0 {
		size = models.DefaultPageSize
	}
	n := (total + size - 1) / size
	if n < 1 {
		n = 1
	}
	return n
}

// Paginate slices rows without copying or reordering. Out-of-range page numbers are clamped.
func Paginate[T any](rows []T, page, size int) Page[T] {
	if size <= 0 {
		size = models.DefaultPageSize
	}
	pages := TotalPages(len(rows), size)
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	start := (page - 1) * size
	end := start + size
	if end > len(rows) {
		end = len(rows)
	}

	return Page[T]{
		Items:      rows[start:end:end],
		Number:     page,
		Size:       size,
		Total:      len(rows),
		TotalPages: pages,
	}
}

// PageWindow returns the page-number strip shown under the reports table:
// up to four numbers starting one before the current page.
func PageWindow(current, totalPages int) []int {
	if totalPages < 1 {
		totalPages = 1
	}
	start := current - 1
	if start < 1 {
		start = 1
	}
	end := start + 3
	if end > totalPages {
		end = totalPages
	}

	var out []int
	for i := start; i <= end; i++ {
		out = append(out, i)
	}
	return out
}
