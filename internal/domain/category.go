package domain

// CategoryNode is one entry of the product taxonomy. Level 0 is a vertical root.
type CategoryNode struct {
	ID       string         `json:"id"`
	Level    int            `json:"level"`
	Name     string         `json:"name"`
	FullName string         `json:"full_name,omitempty"` // Breadcrumb like "Apparel & Accessories > Clothing"
	ParentID string         `json:"parent_id,omitempty"`
	Children []CategoryNode `json:"children,omitempty"` // Only some subtrees are nested
}

// CategorySummary is the row shape used to populate the category picker.
type CategorySummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}
