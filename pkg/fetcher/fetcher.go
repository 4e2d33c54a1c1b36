// Package fetcher performs tagged upstream HTTP fetches with a per-attempt timeout,
// exponential backoff on retryable failures, and an optional Redis response cache.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/Sternrassler/srp-filter/pkg/cache"
	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for upstream fetches.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "srp_upstream_requests_total",
		Help: "Total upstream request attempts by domain and outcome",
	}, []string{"domain", "outcome"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "srp_upstream_request_duration_seconds",
		Help:    "Upstream attempt duration in seconds by domain",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"domain"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "srp_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// TagsHeader carries the fetch tags of an outbound request.
const TagsHeader = "X-Cache-Tags"

const (
	defaultRetries = 3
	defaultTimeout = 10 * time.Second
)

// Options control a single logical fetch.
type Options struct {
	// Category selects the default tag set
	Category Category

	// Method overrides the HTTP method (default POST with a body, GET without)
	Method string

	// Tags are merged with (or, for content and custom, replace) the category tags
	Tags []string

	// Revalidate is the freshness interval of the cached response
	Revalidate time.Duration

	// CacheForever caches the response until its tags are invalidated
	CacheForever bool

	// Retries is the number of additional attempts after the first. Zero means the
	// default of three; set NoRetry for a single attempt.
	Retries int

	// NoRetry limits the fetch to one attempt
	NoRetry bool

	// Domain labels the request in logs and metrics
	Domain string

	// NotFoundAs404 turns a 404 into ErrNotFound without retrying
	NotFoundAs404 bool

	// EmptyOnError returns an empty value instead of a terminal failure (Fetch only)
	EmptyOnError bool

	// Timeout bounds each attempt
	Timeout time.Duration
}

// DefaultOptions returns options for category with three retries and a 10s timeout.
func DefaultOptions(category Category) Options {
	return Options{
		Category: category,
		Retries:  defaultRetries,
		Domain:   string(category),
		Timeout:  defaultTimeout,
	}
}

// Config holds the fetcher configuration.
type Config struct {
	// HTTPClient performs requests (default: http.Client without a global timeout)
	HTTPClient *http.Client

	// Cache stores tagged upstream responses. Optional.
	Cache *cache.Manager

	// UserAgent is sent with every request
	UserAgent string

	// InitialBackoff is the delay before the first retry
	InitialBackoff time.Duration
}

// DefaultConfig returns a configuration with the standard backoff schedule.
func DefaultConfig(userAgent string) Config {
	return Config{
		HTTPClient:     &http.Client{},
		UserAgent:      userAgent,
		InitialBackoff: DefaultInitialBackoff,
	}
}

// Fetcher performs resilient upstream requests.
type Fetcher struct {
	httpClient *http.Client
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
	wait       waitFunc
}

// New creates a new Fetcher.
func New(cfg Config) (*Fetcher, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.InitialBackoff < 0 {
		return nil, fmt.Errorf("initial_backoff must be >= 0 (got %s)", cfg.InitialBackoff)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	return &Fetcher{
		httpClient: cfg.HTTPClient,
		cache:      cfg.Cache,
		config:     cfg,
		logger:     log.With().Str("component", "fetcher").Logger(),
		wait:       sleep,
	}, nil
}

// Do performs one logical fetch and returns the raw 2xx response body. body, when
// non-nil, is JSON encoded.
func (f *Fetcher) Do(ctx context.Context, target string, body any, opts Options) ([]byte, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	switch {
	case opts.NoRetry || opts.Retries < 0:
		opts.Retries = 0
	case opts.Retries == 0:
		opts.Retries = defaultRetries
	}
	if opts.Domain == "" {
		opts.Domain = string(opts.Category)
	}

	var payload []byte
	if body != nil {
		encoded, err := sonic.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		payload = encoded
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
		if payload != nil {
			method = http.MethodPost
		}
	}

	tags := TagsFor(opts.Category, opts.Tags)
	key := cache.RequestKey{Method: method, URL: target, Body: payload}
	cacheable := f.cache != nil && (opts.CacheForever || opts.Revalidate > 0)

	if cacheable {
		entry, err := f.cache.Get(ctx, key)
		switch {
		case err == nil:
			f.logger.Debug().
				Str("domain", opts.Domain).
				Str("cache_key", key.String()).
				Msg("Upstream cache hit")
			return entry.Data, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			f.logger.Warn().Err(err).Str("domain", opts.Domain).Msg("Upstream cache get error")
		}
	}

	path := target
	if u, err := url.Parse(target); err == nil {
		path = u.Path
	}

	var data []byte
	err := retryWithBackoff(ctx, opts.Retries+1, f.config.InitialBackoff, f.wait, func(attempt int) (ErrorClass, error) {
		var class ErrorClass
		var attemptErr error
		start := time.Now()
		data, class, attemptErr = f.attempt(ctx, method, target, payload, tags, opts)
		f.observe(opts.Domain, path, attempt, time.Since(start), class, attemptErr)
		return class, attemptErr
	})
	if err != nil {
		return nil, err
	}

	if cacheable {
		freshness := opts.Revalidate
		if opts.CacheForever {
			freshness = 0
		}
		if err := f.cache.Set(ctx, key, cache.NewEntry(data, tags, freshness)); err != nil {
			f.logger.Warn().Err(err).Str("domain", opts.Domain).Msg("Failed to cache upstream response")
		}
	}

	return data, nil
}

// attempt performs one HTTP round-trip under the per-attempt timeout.
func (f *Fetcher) attempt(
	ctx context.Context,
	method, target string,
	payload []byte,
	tags []string,
	opts Options,
) ([]byte, ErrorClass, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, target, reader)
	if err != nil {
		return nil, ErrorClassTransport, &Error{
			Class: ErrorClassTransport, Domain: opts.Domain, URL: target,
			Message: "create request", Err: err,
		}
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(tags) > 0 {
		req.Header.Set(TagsHeader, strings.Join(tags, ","))
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		class := classifyTransportError(err)
		return nil, class, &Error{
			Class: class, Domain: opts.Domain, URL: target,
			Message: "request failed", Err: err,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		class := classifyTransportError(err)
		return nil, class, &Error{
			StatusCode: resp.StatusCode, Class: class, Domain: opts.Domain, URL: target,
			Message: "read response body", Err: err,
		}
	}

	class := classifyStatus(resp.StatusCode, opts.NotFoundAs404)
	if class == "" {
		return data, "", nil
	}
	return nil, class, &Error{
		StatusCode: resp.StatusCode,
		Class:      class,
		Domain:     opts.Domain,
		URL:        target,
		Message:    resp.Status,
	}
}

// classifyStatus maps an HTTP status to an error class; 2xx yields "".
func classifyStatus(status int, notFoundAs404 bool) ErrorClass {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status == http.StatusNotFound && notFoundAs404:
		return ErrorClassNotFound
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// observe logs and records one attempt. 5xx and exhausted transport failures log at
// error, 4xx at info, success at debug.
func (f *Fetcher) observe(domain, path string, attempt int, elapsed time.Duration, class ErrorClass, err error) {
	upstreamRequestDuration.WithLabelValues(domain).Observe(elapsed.Seconds())

	outcome := "ok"
	if err != nil {
		outcome = string(class)
		upstreamErrorsTotal.WithLabelValues(string(class)).Inc()
	}
	upstreamRequestsTotal.WithLabelValues(domain, outcome).Inc()

	var evt *zerolog.Event
	switch class {
	case "":
		evt = f.logger.Debug()
	case ErrorClassServer:
		evt = f.logger.Error()
	case ErrorClassClient, ErrorClassNotFound:
		evt = f.logger.Info()
	default:
		evt = f.logger.Warn()
	}

	evt = evt.
		Str("domain", domain).
		Str("path", path).
		Int("attempt", attempt).
		Dur("elapsed", elapsed).
		Str("outcome", outcome)

	var fetchErr *Error
	if errors.As(err, &fetchErr) && fetchErr.StatusCode != 0 {
		evt = evt.Int("status_code", fetchErr.StatusCode)
	}
	if err != nil {
		evt = evt.Err(err)
	}
	evt.Msg("Upstream attempt")
}

// Fetch performs a fetch and decodes the JSON body into T. With opts.EmptyOnError a
// failed fetch yields Empty[T]() instead of an error, except for cancellation and
// ErrNotFound which are always returned.
func Fetch[T any](ctx context.Context, f *Fetcher, target string, body any, opts Options) (T, error) {
	var out T

	data, err := f.Do(ctx, target, body, opts)
	if err == nil {
		if decodeErr := sonic.Unmarshal(data, &out); decodeErr != nil {
			upstreamErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
			err = &Error{
				StatusCode: http.StatusOK,
				Class:      ErrorClassDecode,
				Domain:     opts.Domain,
				URL:        target,
				Message:    "decode response",
				Err:        decodeErr,
			}
		}
	}
	if err == nil {
		return out, nil
	}

	if opts.EmptyOnError && !errors.Is(err, ErrCancelled) && !errors.Is(err, ErrNotFound) {
		f.logger.Warn().
			Err(err).
			Str("domain", opts.Domain).
			Msg("Fetch failed, returning empty value")
		return Empty[T](), nil
	}
	var zero T
	return zero, err
}

// Empty returns the empty value of T: an empty non-nil slice or map, a pointer to a
// zero value, or the zero value otherwise.
func Empty[T any]() T {
	var out T
	t := reflect.TypeOf((*T)(nil)).Elem()
	switch t.Kind() {
	case reflect.Slice:
		reflect.ValueOf(&out).Elem().Set(reflect.MakeSlice(t, 0, 0))
	case reflect.Map:
		reflect.ValueOf(&out).Elem().Set(reflect.MakeMap(t))
	case reflect.Pointer:
		reflect.ValueOf(&out).Elem().Set(reflect.New(t.Elem()))
	}
	return out
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var fetchErr *Error
	if errors.As(err, &fetchErr) {
		return fetchErr.StatusCode
	}
	return 0
}

// Class returns the error class carried by err, or "".
func Class(err error) ErrorClass {
	var fetchErr *Error
	if errors.As(err, &fetchErr) {
		return fetchErr.Class
	}
	return ""
}
