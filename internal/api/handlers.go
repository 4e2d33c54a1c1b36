package api

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"time"

	"github.com/Sternrassler/srp-filter/pkg/address"
	"github.com/Sternrassler/srp-filter/pkg/filter"
	"github.com/Sternrassler/srp-filter/pkg/inventory"
	"github.com/Sternrassler/srp-filter/pkg/invalidation"
	"github.com/Sternrassler/srp-filter/pkg/logging"
	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
)

// SecretHeader carries the revalidation secret.
const SecretHeader = "X-Revalidate-Secret"

// MaxPageSize caps the page size a browser may request.
const MaxPageSize = 100

// InventoryRequest is the body of POST /api/inventory. A site id in the body is
// ignored; the site always comes from server configuration.
type InventoryRequest struct {
	Filters  filter.State `json:"filters"`
	Page     int          `json:"page,omitempty"`
	PageSize int          `json:"page_size,omitempty"`
	SortBy   string       `json:"sort_by,omitempty"`
	Order    string       `json:"order,omitempty"`
}

// ResolveResponse describes a parsed search-results address.
type ResolveResponse struct {
	Filters   filter.State    `json:"filters"`
	Sort      address.Sort    `json:"sort"`
	Page      int             `json:"page"`
	Address   address.Address `json:"address"`
	Canonical string          `json:"canonical"`
	Redirect  bool            `json:"redirect"`
}

// RevalidateResponse reports an applied revalidation.
type RevalidateResponse struct {
	Revalidated bool     `json:"revalidated"`
	Removed     int      `json:"removed"`
	Tags        []string `json:"tags"`
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request, v any) bool {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, CodeInvalidRequest, "request body too large")
		return false
	}
	if len(data) == 0 {
		data = []byte("{}")
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "malformed JSON body")
		return false
	}
	return true
}

// handleFacets returns the facets for a filter state body.
func (s *Server) handleFacets(w http.ResponseWriter, r *http.Request) {
	var state filter.State
	if !s.readBody(w, r, &state) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	facets, err := s.source.Facets(ctx, state)
	if err != nil {
		logging.FromContext(r.Context()).Error().Err(err).Msg("Facets refresh failed")
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, facets)
}

// handleInventory returns one page of catalog rows.
func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	var req InventoryRequest
	if !s.readBody(w, r, &req) {
		return
	}
	if req.Page < 0 || req.PageSize < 0 || req.PageSize > MaxPageSize {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "page and page_size out of range")
		return
	}
	if req.Order != "" && req.Order != address.OrderAsc && req.Order != address.OrderDesc {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "order must be asc or desc")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	page, err := s.source.Rows(ctx, inventory.RowsRequest{
		Filters:  req.Filters,
		Page:     req.Page,
		PageSize: req.PageSize,
		SortBy:   req.SortBy,
		Order:    req.Order,
	})
	if err != nil {
		logging.FromContext(r.Context()).Error().Err(err).Msg("Inventory refresh failed")
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleResolve parses an address such as /api/resolve/used-vehicles/ford/?sort_by=price.
// Invalid addresses answer 404; Redirect is set when the request is not canonical.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	path := "/" + chi.URLParam(r, "*")

	q, err := address.ParseURL(path, r.URL.Query())
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	addr := address.Build(q.State, q.Sort).WithPage(q.Page)
	requested := path
	if r.URL.RawQuery != "" {
		requested += "?" + r.URL.RawQuery
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	writeJSON(w, http.StatusOK, ResolveResponse{
		Filters:   addr.Normalized,
		Sort:      q.Sort,
		Page:      page,
		Address:   addr,
		Canonical: addr.String(),
		Redirect:  requested != addr.String(),
	})
}

// handleRevalidate drops cached upstream responses by tag.
func (s *Server) handleRevalidate(w http.ResponseWriter, r *http.Request) {
	if s.revalidator == nil || s.cfg.RevalidateSecret == "" {
		writeError(w, http.StatusNotFound, CodeNotFound, "revalidation is disabled")
		return
	}
	given := r.Header.Get(SecretHeader)
	if subtle.ConstantTimeCompare([]byte(given), []byte(s.cfg.RevalidateSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid revalidation secret")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, CodeInvalidRequest, "request body too large")
		return
	}
	ev, err := invalidation.Decode(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	removed, err := s.revalidator.Apply(r.Context(), "http", ev)
	if err != nil {
		writeError(w, http.StatusInternalServerError, CodeInternal, "revalidation failed")
		return
	}
	writeJSON(w, http.StatusOK, RevalidateResponse{Revalidated: true, Removed: removed, Tags: ev.Tags})
}

// handleHealth runs every dependency check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	body := map[string]any{"status": "ok", "checks": results}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	writeJSON(w, status, body)
}
