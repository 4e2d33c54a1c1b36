// Package inventory is the typed client for the two upstream resources behind a
// search-results view: catalog rows and filter facets.
package inventory

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Sternrassler/srp-filter/pkg/fetcher"
	"github.com/Sternrassler/srp-filter/pkg/filter"
	"github.com/Sternrassler/srp-filter/pkg/logging"
	"github.com/rs/zerolog"
)

// Upstream resource paths, relative to Config.BaseURL.
const (
	RowsPath   = "/v1/inventory/search"
	FacetsPath = "/v1/inventory/facets"
)

// Config holds the inventory client configuration.
type Config struct {
	// BaseURL of the inventory service
	BaseURL string

	// SiteID scopes every request to one tenant
	SiteID string

	// PageSize is used when a request does not set one
	PageSize int

	// Revalidate is the upstream cache freshness (0 disables caching)
	Revalidate time.Duration

	// Timeout bounds each upstream attempt
	Timeout time.Duration

	// Retries is the number of additional attempts on retryable failures (0: one attempt)
	Retries int
}

// DefaultConfig returns defaults for the given upstream and site.
func DefaultConfig(baseURL, siteID string) Config {
	return Config{
		BaseURL:    baseURL,
		SiteID:     siteID,
		PageSize:   24,
		Revalidate: 60 * time.Second,
		Timeout:    10 * time.Second,
		Retries:    3,
	}
}

// Client fetches catalog rows and facets through a fetcher.Fetcher.
type Client struct {
	fetcher *fetcher.Fetcher
	config  Config
	rowsURL string
	facURL  string
	logger  zerolog.Logger
}

// New creates an inventory client.
func New(f *fetcher.Fetcher, cfg Config) (*Client, error) {
	if f == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.SiteID == "" {
		return nil, fmt.Errorf("site id is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 24
	}

	root := strings.TrimRight(base.String(), "/")
	return &Client{
		fetcher: f,
		config:  cfg,
		rowsURL: root + RowsPath,
		facURL:  root + FacetsPath,
		logger:  logging.NewLogger("inventory"),
	}, nil
}

// SiteID returns the tenant the client is scoped to.
func (c *Client) SiteID() string {
	return c.config.SiteID
}

func (c *Client) options(category fetcher.Category) fetcher.Options {
	opts := fetcher.DefaultOptions(category)
	opts.Tags = []string{"site:" + c.config.SiteID}
	opts.Revalidate = c.config.Revalidate
	if c.config.Timeout > 0 {
		opts.Timeout = c.config.Timeout
	}
	opts.Retries = c.config.Retries
	opts.NoRetry = c.config.Retries == 0
	return opts
}

// Rows fetches one page of catalog rows. The site id always comes from the client
// configuration; filters are normalised before sending.
func (c *Client) Rows(ctx context.Context, req RowsRequest) (Page, error) {
	req.SiteID = c.config.SiteID
	req.Filters = req.Filters.Normalize()
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = c.config.PageSize
	}
	if req.SortBy == "" {
		req.Order = ""
	}

	page, err := fetcher.Fetch[Page](ctx, c.fetcher, c.rowsURL, req, c.options(fetcher.CategoryInventory))
	if err != nil {
		return Page{}, fmt.Errorf("fetch rows: %w", err)
	}
	if page.Results == nil {
		page.Results = []Vehicle{}
	}
	if page.CurrentPage == 0 {
		page.CurrentPage = req.Page
	}

	c.logger.Debug().
		Str("site_id", req.SiteID).
		Int("page", page.CurrentPage).
		Int("results", len(page.Results)).
		Int("total", page.Total).
		Msg("Fetched catalog rows")
	return page, nil
}

// Facets fetches the filter options available for filters.
func (c *Client) Facets(ctx context.Context, filters filter.State) (Facets, error) {
	req := FacetsRequest{SiteID: c.config.SiteID, Filters: filters.Normalize()}

	facets, err := fetcher.Fetch[Facets](ctx, c.fetcher, c.facURL, req, c.options(fetcher.CategoryFacets))
	if err != nil {
		return Facets{}, fmt.Errorf("fetch facets: %w", err)
	}
	if facets.Options == nil {
		facets.Options = map[string][]FacetOption{}
	}

	c.logger.Debug().
		Str("site_id", req.SiteID).
		Int("fields", len(facets.Options)).
		Msg("Fetched facets")
	return facets, nil
}
