package inventory_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/srp-filter/internal/testutil"
	"github.com/Sternrassler/srp-filter/pkg/fetcher"
	"github.com/Sternrassler/srp-filter/pkg/filter"
	"github.com/Sternrassler/srp-filter/pkg/inventory"
	"github.com/bytedance/sonic"
)

func newClient(t *testing.T, upstream *testutil.MockUpstream) *inventory.Client {
	t.Helper()

	fcfg := fetcher.DefaultConfig("srp-filter-test/1.0")
	fcfg.InitialBackoff = time.Millisecond
	f, err := fetcher.New(fcfg)
	if err != nil {
		t.Fatalf("fetcher.New() error = %v", err)
	}

	cfg := inventory.DefaultConfig(upstream.URL(), "demo-motors")
	cfg.PageSize = 12
	client, err := inventory.New(f, cfg)
	if err != nil {
		t.Fatalf("inventory.New() error = %v", err)
	}
	return client
}

func TestNew_Validation(t *testing.T) {
	f, err := fetcher.New(fetcher.DefaultConfig("srp/1.0"))
	if err != nil {
		t.Fatalf("fetcher.New() error = %v", err)
	}

	tests := []struct {
		name     string
		fetcher  *fetcher.Fetcher
		config   inventory.Config
		errorMsg string
	}{
		{"valid", f, inventory.DefaultConfig("https://inventory.example.com", "site"), ""},
		{"nil fetcher", nil, inventory.DefaultConfig("https://inventory.example.com", "site"), "fetcher is required"},
		{"missing site", f, inventory.DefaultConfig("https://inventory.example.com", ""), "site id is required"},
		{"relative url", f, inventory.DefaultConfig("/inventory", "site"), "invalid base url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := inventory.New(tt.fetcher, tt.config)
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("New() unexpected error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("New() error = %v, want containing %q", err, tt.errorMsg)
			}
		})
	}
}

func TestClient_Rows(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	client := newClient(t, upstream)

	var filters filter.State
	filters.Set(filter.FieldCondition, "used").Set(filter.FieldMake, "toyota", "ford")

	page, err := client.Rows(context.Background(), inventory.RowsRequest{
		SiteID:  "someone-else",
		Filters: filters,
		Page:    2,
		SortBy:  "price",
		Order:   "desc",
	})
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if len(page.Results) != 2 || page.CurrentPage != 2 || !page.HasNextPage {
		t.Errorf("Rows() = %+v", page)
	}

	var sent inventory.RowsRequest
	if err := sonic.Unmarshal(upstream.GetLastBody(), &sent); err != nil {
		t.Fatalf("decode sent body: %v", err)
	}
	if sent.SiteID != "demo-motors" {
		t.Errorf("sent site_id = %q, want configured demo-motors", sent.SiteID)
	}
	if sent.PageSize != 12 {
		t.Errorf("sent page_size = %d, want 12", sent.PageSize)
	}
	if got := sent.Filters.Values(filter.FieldCondition); len(got) != 2 {
		t.Errorf("sent condition = %v, want normalised [certified used]", got)
	}
	if tags := upstream.GetLastTags(); tags != "inventory,srp,site:demo-motors" {
		t.Errorf("tags = %q", tags)
	}
}

func TestClient_Facets(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	client := newClient(t, upstream)

	var filters filter.State
	filters.Set(filter.FieldMake, "ford")

	facets, err := client.Facets(context.Background(), filters)
	if err != nil {
		t.Fatalf("Facets() error = %v", err)
	}
	if len(facets.Options["make"]) != 3 {
		t.Errorf("make options = %v", facets.Options["make"])
	}
	if got := facets.Selected.Values(filter.FieldMake); len(got) != 1 || got[0] != "ford" {
		t.Errorf("selected make = %v", got)
	}
	if tags := upstream.GetLastTags(); tags != "facets,srp,site:demo-motors" {
		t.Errorf("tags = %q", tags)
	}
}

func TestClient_RowsRetriesServerErrors(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.Enqueue(inventory.RowsPath, testutil.NewServerErrorResponse(), testutil.NewServerErrorResponse())
	client := newClient(t, upstream)

	if _, err := client.Rows(context.Background(), inventory.RowsRequest{}); err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if got := upstream.GetPathCount(inventory.RowsPath); got != 3 {
		t.Errorf("rows requests = %d, want 3", got)
	}
}

func TestClient_FacetsClientError(t *testing.T) {
	upstream := testutil.NewMockUpstream()
	defer upstream.Close()
	upstream.SetResponse(inventory.FacetsPath, testutil.NewClientErrorResponse("bad filters"))
	client := newClient(t, upstream)

	_, err := client.Facets(context.Background(), filter.State{})
	if err == nil {
		t.Fatal("Facets() error = nil")
	}
	if fetcher.Class(err) != fetcher.ErrorClassClient {
		t.Errorf("class = %q, want client", fetcher.Class(err))
	}
	if errors.Is(err, fetcher.ErrRetryExhausted) {
		t.Error("client error should not be retried")
	}
	if got := upstream.GetPathCount(inventory.FacetsPath); got != 1 {
		t.Errorf("facets requests = %d, want 1", got)
	}
}
