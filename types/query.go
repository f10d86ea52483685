package types

// Sortable task fields accepted by TaskQuery.SortBy.
const (
	SortByTitle     = "title"
	SortByCreatedAt = "createdAt"
	SortByUpdatedAt = "updatedAt"
	SortByDueDate   = "dueDate"
	SortByPriority  = "priority"
)

// Sort directions accepted by TaskQuery.Order.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// TaskQuery describes a filtered, sorted, paginated task listing.
type TaskQuery struct {
	// Completed restricts the listing to completed or pending tasks when set.
	Completed *bool

	// Priority restricts the listing to a single priority when set.
	Priority *Priority

	// SortBy is one of the SortBy* constants.
	SortBy string

	// Order is OrderAsc or OrderDesc.
	Order string

	// Page is the 1-based page number.
	Page int

	// Limit is the page size.
	Limit int
}

// Offset returns the number of records skipped before the current page.
func (q TaskQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

// Descending reports whether results are sorted in descending order.
func (q TaskQuery) Descending() bool {
	return q.Order != OrderAsc
}
