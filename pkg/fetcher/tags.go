package fetcher

// Category is the resource class of an upstream request. It selects the default
// fetch tags.
type Category string

const (
	// CategoryInventory is the catalog rows resource.
	CategoryInventory Category = "inventory"

	// CategoryFacets is the available filter options resource.
	CategoryFacets Category = "facets"

	// CategoryVehicle is a single vehicle detail.
	CategoryVehicle Category = "vehicle"

	// CategoryDealer is dealer and site metadata.
	CategoryDealer Category = "dealer"

	// CategoryContent is CMS content. Caller tags replace the defaults.
	CategoryContent Category = "content"

	// CategoryCustom is any other resource. Caller tags replace the defaults.
	CategoryCustom Category = "custom"
)

var categoryTags = map[Category][]string{
	CategoryInventory: {"inventory", "srp"},
	CategoryFacets:    {"facets", "srp"},
	CategoryVehicle:   {"inventory", "vdp"},
	CategoryDealer:    {"dealer"},
	CategoryContent:   {"content"},
	CategoryCustom:    {"custom"},
}

// authoritative reports whether caller tags replace the category defaults.
func (c Category) authoritative() bool {
	return c == CategoryContent || c == CategoryCustom
}

// TagsFor returns the fetch tags for a request in category c with caller-supplied
// extra tags. Defaults come first, duplicates are dropped.
func TagsFor(c Category, extra []string) []string {
	var base []string
	if c.authoritative() && len(extra) > 0 {
		base = nil
	} else {
		base = categoryTags[c]
	}

	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, group := range [][]string{base, extra} {
		for _, tag := range group {
			if tag == "" {
				continue
			}
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}
