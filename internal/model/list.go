package model

// SortField selects the index field used to order list results.
type SortField string

const (
	SortByName      SortField = "name"
	SortByCreatedAt SortField = "createdAt"
	SortByUpdatedAt SortField = "updatedAt"
	SortByLastUsed  SortField = "lastUsed"
	SortByUseCount  SortField = "useCount"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListOptions controls pagination, sorting, and filtering of template
// listings. Zero values mean "first page, default limit, sort by name
// ascending, no filters, metadata-only projections".
type ListOptions struct {
	Page          int
	Limit         int
	SortBy        SortField
	SortOrder     SortOrder
	HasScheduling *bool
	Favorite      *bool
	Tags          []string
	Search        string
	// Hydrate loads the full template record for every matching id instead
	// of serving projections from the metadata index alone.
	Hydrate bool
}

// ListItem is one result row. Template is nil unless the query hydrated
// full records.
type ListItem struct {
	ID       string          `json:"id"`
	Summary  TemplateSummary `json:"summary"`
	Template *Template       `json:"template,omitempty"`
}

// ListResult is a page of template listings.
type ListResult struct {
	Items    []ListItem `json:"items"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"pageSize"`
	HasMore  bool       `json:"hasMore"`
}

// Preferences is the user preference record stored alongside templates.
// The storage core only reads and writes it whole.
type Preferences struct {
	DefaultCurrency string `json:"defaultCurrency,omitempty"`
	DefaultPageSize int    `json:"defaultPageSize,omitempty"`
	Notifications   bool   `json:"notifications"`
}
