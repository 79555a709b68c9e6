package tool

import "math"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPage keeps page*size within int.
	MaxPage = math.MaxInt / MaxPageSize
)

// NormalizePage clamps 1-based page and size to sane bounds.
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

// PageBounds returns the [start, end) slice bounds of a page over total items.
func PageBounds(page, size, total int) (int, int) {
	page, size = NormalizePage(page, size)
	if total <= 0 || page-1 >= (total+size-1)/size {
		return max(total, 0), max(total, 0)
	}
	start := (page - 1) * size
	return start, min(start+size, total)
}
