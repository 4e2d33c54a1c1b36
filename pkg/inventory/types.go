package inventory

import "github.com/Sternrassler/srp-filter/pkg/filter"

// Vehicle is one catalog row.
type Vehicle struct {
	VIN           string   `json:"vin"`
	StockNumber   string   `json:"stock_number,omitempty"`
	Condition     string   `json:"condition"`
	Year          int      `json:"year"`
	Make          string   `json:"make"`
	Model         string   `json:"model"`
	Trim          string   `json:"trim,omitempty"`
	Body          string   `json:"body,omitempty"`
	FuelType      string   `json:"fuel_type,omitempty"`
	Transmission  string   `json:"transmission,omitempty"`
	Drivetrain    string   `json:"drivetrain,omitempty"`
	ExteriorColor string   `json:"exterior_color,omitempty"`
	Mileage       int      `json:"mileage"`
	Price         *float64 `json:"price,omitempty"`
	Dealer        string   `json:"dealer,omitempty"`
	InStock       bool     `json:"in_stock"`
	Photos        []string `json:"photos,omitempty"`
	URL           string   `json:"url,omitempty"`
}

// RowsRequest is the catalog-rows request body.
type RowsRequest struct {
	SiteID   string       `json:"site_id"`
	Filters  filter.State `json:"filters"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	SortBy   string       `json:"sort_by,omitempty"`
	Order    string       `json:"order,omitempty"`
}

// Page is one page of catalog rows.
type Page struct {
	Results     []Vehicle `json:"results"`
	Total       int       `json:"total"`
	TotalPages  int       `json:"total_pages"`
	CurrentPage int       `json:"current_page"`
	HasNextPage bool      `json:"has_next_page"`
}

// FacetsRequest is the facet request body.
type FacetsRequest struct {
	SiteID  string       `json:"site_id"`
	Filters filter.State `json:"filters"`
}

// FacetOption is one selectable value of a filter with its match count.
type FacetOption struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Facets are the filter options available for a filter state.
type Facets struct {
	Options  map[string][]FacetOption `json:"options"`
	Selected filter.State             `json:"selected"`
}
