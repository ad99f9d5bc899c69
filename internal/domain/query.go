package domain

// QueryState says whether catalog requests are narrowed by the user's categories.
type QueryState interface {
	isQueryState()
	// SearchQuery is empty for the unfiltered state.
	SearchQuery() string
}

// Unfiltered means the catalog's default popularity stream is used.
type Unfiltered struct{}

func (Unfiltered) isQueryState() {}
func (Unfiltered) SearchQuery() string { return "" }
func (Unfiltered) String() string { return "unfiltered" }

// Filtered carries the search query derived from the user's selection.
type Filtered struct {
	Query string
}

func (Filtered) isQueryState() {}
func (f Filtered) SearchQuery() string { return f.Query }
func (f Filtered) String() string { return "filtered: " + f.Query }

// IsFiltered reports whether s narrows the catalog.
func IsFiltered(s QueryState) bool {
	_, ok := s.(Filtered)
	return ok
}
