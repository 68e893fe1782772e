package model

// PageRequest selects one page of a listing. Index is zero-based and sorting
// is always ascending on SortBy.
type PageRequest struct {
	Index  int    `query:"index" validate:"gte=0"`
	Size   int    `query:"size" validate:"gte=1"`
	SortBy string `query:"sortBy" validate:"required"`
}

// Page is one bounded slice of a listing plus the total row count.
type Page[T any] struct {
	Items []T
	Total int64
	Index int
	Size  int
}
