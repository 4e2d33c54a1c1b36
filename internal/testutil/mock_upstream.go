// Package testutil provides testing utilities for the search-results gateway.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/srp-filter/pkg/fetcher"
	"github.com/Sternrassler/srp-filter/pkg/filter"
	"github.com/Sternrassler/srp-filter/pkg/inventory"
	"github.com/bytedance/sonic"
)

// MockResponse defines the behavior for a mock upstream response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockUpstream is a configurable mock inventory service. Without overrides it answers
// the rows and facets resources with catalog data derived from the request filters.
type MockUpstream struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	queues   map[string][]MockResponse

	// Tracking
	RequestCount int
	PathCounts   map[string]int
	LastTags     string
	LastBody     []byte
}

// NewMockUpstream creates a new mock upstream server.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		handlers:   make(map[string]http.HandlerFunc),
		queues:     make(map[string][]MockResponse),
		PathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCounts[r.URL.Path]++
		mock.LastTags = r.Header.Get(fetcher.TagsHeader)
		mock.LastBody = body

		var queued *MockResponse
		if q := mock.queues[r.URL.Path]; len(q) > 0 {
			queued = &q[0]
			mock.queues[r.URL.Path] = q[1:]
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if queued != nil {
			writeResponse(w, *queued)
			return
		}
		if exists {
			handler(w, r)
			return
		}

		switch r.URL.Path {
		case inventory.RowsPath:
			mock.rowsHandler(w, body)
		case inventory.FacetsPath:
			mock.facetsHandler(w, body)
		default:
			http.NotFound(w, r)
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PathCounts = make(map[string]int)
	m.LastTags = ""
	m.LastBody = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockUpstream) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockUpstream) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// Enqueue queues one-shot responses for a path, served before any handler.
func (m *MockUpstream) Enqueue(path string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[path] = append(m.queues[path], responses...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockUpstream) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPathCount returns the number of requests made to path.
func (m *MockUpstream) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCounts[path]
}

// GetLastTags returns the fetch tags of the last request.
func (m *MockUpstream) GetLastTags() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastTags
}

// GetLastBody returns the body of the last request.
func (m *MockUpstream) GetLastBody() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]byte(nil), m.LastBody...)
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// rowsHandler answers with one vehicle per selected make (or a single default
// vehicle), echoing the requested page.
func (m *MockUpstream) rowsHandler(w http.ResponseWriter, body []byte) {
	var req inventory.RowsRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		writeResponse(w, NewClientErrorResponse("invalid body"))
		return
	}

	makes := req.Filters.Values(filter.FieldMake)
	if len(makes) == 0 {
		makes = []string{"toyota"}
	}
	page := inventory.Page{
		Results:     make([]inventory.Vehicle, 0, len(makes)),
		Total:       len(makes) * 3,
		TotalPages:  3,
		CurrentPage: req.Page,
		HasNextPage: req.Page < 3,
	}
	for i, mk := range makes {
		page.Results = append(page.Results, SampleVehicle(i, mk, req.Page))
	}

	writeJSON(w, page)
}

// facetsHandler answers with make options and echoes the selected filters.
func (m *MockUpstream) facetsHandler(w http.ResponseWriter, body []byte) {
	var req inventory.FacetsRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		writeResponse(w, NewClientErrorResponse("invalid body"))
		return
	}

	facets := inventory.Facets{
		Options: map[string][]inventory.FacetOption{
			string(filter.FieldMake): {
				{Value: "ford", Count: 12},
				{Value: "honda", Count: 9},
				{Value: "toyota", Count: 15},
			},
			string(filter.FieldCondition): {
				{Value: filter.ConditionCertified, Count: 4},
				{Value: filter.ConditionNew, Count: 20},
				{Value: filter.ConditionUsed, Count: 12},
			},
		},
		Selected: req.Filters,
	}
	writeJSON(w, facets)
}

// SampleVehicle builds a deterministic catalog row.
func SampleVehicle(i int, brand string, page int) inventory.Vehicle {
	price := float64(20000 + 1000*i)
	return inventory.Vehicle{
		VIN:       fmt.Sprintf("TEST%s%02d%04d", strings.ToUpper(brand[:min(3, len(brand))]), page, i),
		Condition: filter.ConditionUsed,
		Year:      2022 - i,
		Make:      brand,
		Model:     "model-" + brand,
		Mileage:   10000 * (i + 1),
		Price:     &price,
		InStock:   true,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	data, err := sonic.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// NewHealthyResponse creates a standard 200 OK JSON response.
func NewHealthyResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewClientErrorResponse creates a 400 Bad Request response.
func NewClientErrorResponse(message string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       fmt.Sprintf(`{"error": %q}`, message),
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error": "not found"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
