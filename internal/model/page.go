package model

// Sort orders accepted by list queries.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// PaginationParams selects one page of a list result.
type PaginationParams struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// Normalize clamps page/pageSize to sane values. Page numbering starts at 1.
func (p PaginationParams) Normalize() PaginationParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 50
	}
	return p
}

// Offset returns the row offset for the normalized page.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// ListOptions is the uniform shape accepted by every list endpoint.
type ListOptions struct {
	PaginationParams
	SortBy          string            `json:"sortBy,omitempty"`
	SortOrder       string            `json:"sortOrder,omitempty"`
	Filter          map[string]string `json:"filter,omitempty"`
	Search          string            `json:"search,omitempty"`
	IncludeBranches bool              `json:"includeBranches,omitempty"`
}

// PaginatedResult is the uniform shape returned by every list endpoint.
type PaginatedResult[T any] struct {
	Items           []T  `json:"items"`
	Page            int  `json:"page"`
	PageSize        int  `json:"pageSize"`
	TotalItems      int  `json:"totalItems"`
	TotalPages      int  `json:"totalPages"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

// Paginate assembles a PaginatedResult from one page of items and the total
// row count.
func Paginate[T any](items []T, p PaginationParams, total int) PaginatedResult[T] {
	p = p.Normalize()
	pages := total / p.PageSize
	if total%p.PageSize != 0 {
		pages++
	}
	if items == nil {
		items = []T{}
	}
	return PaginatedResult[T]{
		Items:           items,
		Page:            p.Page,
		PageSize:        p.PageSize,
		TotalItems:      total,
		TotalPages:      pages,
		HasNextPage:     p.Page < pages,
		HasPreviousPage: p.Page > 1 && total > 0,
	}
}
