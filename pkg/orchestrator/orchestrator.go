// Package orchestrator keeps the filter state, the canonical address and the fetched
// result set of one search-results session in sync.
//
// Every filter change writes the address and the optimistic filter state before any
// network activity. Result sets already seen are served from a FIFO result cache;
// otherwise rows and facets are fetched concurrently. A newer change supersedes any
// sequence still in flight: its results are dropped without being published, cached
// or written to the address. A failed sequence restores the last successfully
// applied state together with its address.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/srp-filter/pkg/address"
	"github.com/Sternrassler/srp-filter/pkg/filter"
	"github.com/Sternrassler/srp-filter/pkg/inventory"
	"github.com/Sternrassler/srp-filter/pkg/logging"
	"github.com/Sternrassler/srp-filter/pkg/resultcache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "srp_orchestrator_outcomes_total",
		Help: "Total filter changes by outcome",
	}, []string{"outcome"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "srp_orchestrator_fetch_duration_seconds",
		Help:    "Duration of the correlated rows and facets fetch",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})
)

// Outcome is the result of one filter change.
type Outcome string

const (
	// OutcomeCacheHit means the result set came from the result cache.
	OutcomeCacheHit Outcome = "cache_hit"

	// OutcomeFetched means rows and facets were fetched and published.
	OutcomeFetched Outcome = "fetched"

	// OutcomeSuperseded means a newer change (or the caller) cancelled the sequence.
	// Nothing was published.
	OutcomeSuperseded Outcome = "superseded"

	// OutcomeFailed means the fetch failed and the last good state was restored.
	OutcomeFailed Outcome = "failed"
)

// FailureMessage is published when a filter change could not be loaded.
const FailureMessage = "We couldn't update the results. Showing your previous selection."

// Source fetches the two correlated resources of a result set.
type Source interface {
	Rows(ctx context.Context, req inventory.RowsRequest) (inventory.Page, error)
	Facets(ctx context.Context, filters filter.State) (inventory.Facets, error)
}

// ResultCache is the per-session result cache.
type ResultCache = resultcache.Cache[inventory.Page, inventory.Facets]

// NewResultCache creates a result cache holding capacity result sets.
func NewResultCache(capacity int) (*ResultCache, error) {
	return resultcache.New[inventory.Page, inventory.Facets](resultcache.Config{Capacity: capacity})
}

// Config holds the orchestrator dependencies.
type Config struct {
	// Source fetches rows and facets
	Source Source

	// Store holds the visible address
	Store AddressStore

	// Cache is the session result cache (default: resultcache.DefaultCapacity entries)
	Cache *ResultCache

	// PageSize is sent with every rows request (0 leaves it to the source)
	PageSize int
}

// Initial is the server-rendered state the session starts from.
type Initial struct {
	Filters filter.State
	Sort    address.Sort
	Page    int
	Rows    inventory.Page
	Facets  inventory.Facets
}

// ApplyOptions modify a filter change. Nil fields keep the current value.
type ApplyOptions struct {
	// ResetPage returns to the first page
	ResetPage bool

	// Page selects a page explicitly; it wins over ResetPage
	Page int

	// Sort replaces the current sort
	Sort *address.Sort

	// Search replaces the free-text search of the new state
	Search *string
}

// Snapshot is the externally visible state.
type Snapshot struct {
	// Version increases with every published snapshot
	Version uint64

	// Filters is the optimistic filter state, updated before fetching
	Filters filter.State
	Sort    address.Sort
	Page    int
	Address address.Address

	// Applied is the filter state the published rows and facets belong to
	Applied filter.State
	Rows    inventory.Page
	Facets  inventory.Facets

	Loading bool
	Error   string
}

// view is one filter selection with its derived address.
type view struct {
	filters filter.State
	sort    address.Sort
	page    int
	addr    address.Address
}

func newView(state filter.State, sort address.Sort, page int) view {
	if page < 1 {
		page = 1
	}
	if sort.By == "" {
		sort.Order = ""
	} else if sort.Order == "" {
		sort.Order = address.DefaultOrder
	}
	addr := address.Build(state, sort).WithPage(page)
	return view{filters: addr.Normalized, sort: sort, page: page, addr: addr}
}

func (v view) key() resultcache.Key {
	return resultcache.NewKey(v.filters, v.sort.By, v.sort.Order, v.page)
}

// Orchestrator coordinates filter changes for one session. It is safe for concurrent
// use; only the most recent ApplyFilters sequence can publish.
type Orchestrator struct {
	source   Source
	store    AddressStore
	cache    *ResultCache
	pageSize int
	logger   zerolog.Logger

	mu      sync.Mutex
	current view
	applied view
	rows    inventory.Page
	facets  inventory.Facets
	loading bool
	errMsg  string
	gen     uint64
	cancel  context.CancelFunc
	version uint64

	subMu     sync.Mutex
	subs      map[int]func(Snapshot)
	nextSub   int
	published uint64
}

// New creates an orchestrator starting from the server-rendered initial state. The
// result cache is seeded with the initial result and the store receives its address
// if it differs.
func New(cfg Config, initial Initial) (*Orchestrator, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("address store is required")
	}
	if cfg.Cache == nil {
		c, err := NewResultCache(resultcache.DefaultCapacity)
		if err != nil {
			return nil, err
		}
		cfg.Cache = c
	}

	v := newView(initial.Filters, initial.Sort, initial.Page)
	o := &Orchestrator{
		source:   cfg.Source,
		store:    cfg.Store,
		cache:    cfg.Cache,
		pageSize: cfg.PageSize,
		logger:   logging.NewLogger("orchestrator"),
		current:  v,
		applied:  v,
		rows:     initial.Rows,
		facets:   initial.Facets,
		subs:     make(map[int]func(Snapshot)),
	}

	o.cache.Seed(v.key(), initial.Rows, initial.Facets)
	if !o.store.Read().Equal(v.addr) {
		o.store.Write(v.addr)
	}
	return o, nil
}

// ApplyFilters applies a new filter state. The address and the optimistic filters are
// updated before it returns or blocks. It returns OutcomeSuperseded with a nil error
// when a newer call (or cancellation of ctx) ended the sequence, and OutcomeFailed
// with the fetch error after restoring the last good state.
func (o *Orchestrator) ApplyFilters(ctx context.Context, state filter.State, opts ApplyOptions) (Outcome, error) {
	o.mu.Lock()

	sort := o.current.sort
	if opts.Sort != nil {
		sort = *opts.Sort
	}
	state = state.Clone()
	if opts.Search != nil {
		state.Search = *opts.Search
	}
	page := o.current.page
	switch {
	case opts.Page > 0:
		page = opts.Page
	case opts.ResetPage:
		page = 1
	}

	next := newView(state, sort, page)
	o.store.Write(next.addr)
	o.current = next
	o.errMsg = ""

	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.gen++
	gen := o.gen
	key := next.key()

	if entry, ok := o.cache.Get(key); ok {
		o.rows, o.facets = entry.Rows, entry.Facets
		o.applied = next
		o.loading = false
		snap := o.snapshotLocked()
		o.mu.Unlock()

		o.publish(snap)
		o.record(OutcomeCacheHit, gen, key)
		return OutcomeCacheHit, nil
	}

	seqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.cancel = cancel
	o.loading = true
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.publish(snap)

	start := time.Now()
	rows, facets, err := o.fetch(seqCtx, next)
	fetchDuration.Observe(time.Since(start).Seconds())

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		o.record(OutcomeSuperseded, gen, key)
		return OutcomeSuperseded, nil
	}
	o.cancel = nil
	o.loading = false

	if err != nil {
		callerCancelled := ctx.Err() != nil
		o.current = o.applied
		if !callerCancelled {
			o.errMsg = FailureMessage
		}
		o.store.Write(o.applied.addr)
		snap := o.snapshotLocked()
		o.mu.Unlock()
		o.publish(snap)

		if callerCancelled {
			o.record(OutcomeSuperseded, gen, key)
			return OutcomeSuperseded, nil
		}
		o.logger.Error().
			Err(err).
			Uint64("generation", gen).
			Str("cache_key", key.Digest()).
			Str("address", next.addr.String()).
			Msg("Filter change failed, restored last good state")
		o.record(OutcomeFailed, gen, key)
		return OutcomeFailed, err
	}

	o.cache.Set(key, rows, facets)
	o.rows, o.facets = rows, facets
	o.applied = next
	if !o.store.Read().Equal(next.addr) {
		o.store.Write(next.addr)
	}
	snap = o.snapshotLocked()
	o.mu.Unlock()
	o.publish(snap)

	o.record(OutcomeFetched, gen, key)
	return OutcomeFetched, nil
}

// GoToPage re-applies the current filters on another page.
func (o *Orchestrator) GoToPage(ctx context.Context, page int) (Outcome, error) {
	if page < 1 {
		return OutcomeFailed, fmt.Errorf("page must be >= 1 (got %d)", page)
	}
	o.mu.Lock()
	filters := o.current.filters.Clone()
	o.mu.Unlock()
	return o.ApplyFilters(ctx, filters, ApplyOptions{Page: page})
}

// fetch loads rows and facets concurrently. Both must succeed.
func (o *Orchestrator) fetch(ctx context.Context, v view) (inventory.Page, inventory.Facets, error) {
	var rows inventory.Page
	var facets inventory.Facets

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := o.source.Rows(gctx, inventory.RowsRequest{
			Filters:  v.filters,
			Page:     v.page,
			PageSize: o.pageSize,
			SortBy:   v.sort.By,
			Order:    v.sort.Order,
		})
		if err != nil {
			return fmt.Errorf("rows: %w", err)
		}
		rows = p
		return nil
	})
	g.Go(func() error {
		f, err := o.source.Facets(gctx, v.filters)
		if err != nil {
			return fmt.Errorf("facets: %w", err)
		}
		facets = f
		return nil
	})

	if err := g.Wait(); err != nil {
		return inventory.Page{}, inventory.Facets{}, err
	}
	if err := ctx.Err(); err != nil {
		return inventory.Page{}, inventory.Facets{}, err
	}
	return rows, facets, nil
}

func (o *Orchestrator) record(outcome Outcome, gen uint64, key resultcache.Key) {
	outcomesTotal.WithLabelValues(string(outcome)).Inc()
	o.logger.Debug().
		Str("outcome", string(outcome)).
		Uint64("generation", gen).
		Str("cache_key", key.Digest()).
		Msg("Filter change finished")
}

// Snapshot returns the current externally visible state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buildSnapshot(o.version)
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	o.version++
	return o.buildSnapshot(o.version)
}

func (o *Orchestrator) buildSnapshot(version uint64) Snapshot {
	return Snapshot{
		Version: version,
		Filters: o.current.filters.Clone(),
		Sort:    o.current.sort,
		Page:    o.current.page,
		Address: o.current.addr,
		Applied: o.applied.filters.Clone(),
		Rows:    o.rows,
		Facets:  o.facets,
		Loading: o.loading,
		Error:   o.errMsg,
	}
}

// Subscribe registers fn for every published snapshot and returns a function that
// removes it. Snapshots older than one already delivered are skipped. fn must not
// block.
func (o *Orchestrator) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	return func() {
		o.subMu.Lock()
		defer o.subMu.Unlock()
		delete(o.subs, id)
	}
}

func (o *Orchestrator) publish(snap Snapshot) {
	o.subMu.Lock()
	if snap.Version <= o.published {
		o.subMu.Unlock()
		return
	}
	o.published = snap.Version
	fns := make([]func(Snapshot), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
