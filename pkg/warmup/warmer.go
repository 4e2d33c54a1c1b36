// Package warmup pre-fetches result sets for a list of search-results addresses so
// that the tagged upstream cache is populated before traffic arrives.
package warmup

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/Sternrassler/srp-filter/pkg/address"
	"github.com/Sternrassler/srp-filter/pkg/filter"
	"github.com/Sternrassler/srp-filter/pkg/inventory"
	"github.com/Sternrassler/srp-filter/pkg/logging"
	"github.com/rs/zerolog"
)

// Config holds warmer configuration
type Config struct {
	// Concurrency is the number of parallel workers
	Concurrency int

	// Timeout per job (rows and facets of one page)
	Timeout time.Duration

	// MaxPages limits how many pages of each address are warmed (1 = first page only)
	MaxPages int
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Concurrency: 4,
		Timeout:     15 * time.Second,
		MaxPages:    1,
	}
}

// Source fetches rows and facets. *inventory.Client implements it.
type Source interface {
	Rows(ctx context.Context, req inventory.RowsRequest) (inventory.Page, error)
	Facets(ctx context.Context, filters filter.State) (inventory.Facets, error)
}

// Report summarises one warmup run.
type Report struct {
	Warmed   int
	Failed   int
	Duration time.Duration
	Errors   map[string]error
}

type job struct {
	target string
	query  address.Query
	page   int
	facets bool
}

type result struct {
	job        job
	totalPages int
	err        error
}

// Warmer runs warmup jobs on a worker pool.
type Warmer struct {
	source Source
	config Config
	logger zerolog.Logger
}

// New creates a warmer.
func New(source Source, config Config) (*Warmer, error) {
	if source == nil {
		return nil, errors.New("source is required")
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.MaxPages <= 0 {
		config.MaxPages = 1
	}
	return &Warmer{source: source, config: config, logger: logging.NewLogger("warmup")}, nil
}

// Warm fetches every target address. Targets are SRP addresses such as
// "/used-vehicles/ford/?sort_by=price". The first page of each target is fetched
// with its facets; further pages up to MaxPages follow once the page count is known.
// Failed targets are reported and do not stop the run.
func (w *Warmer) Warm(ctx context.Context, targets []string) (Report, error) {
	start := time.Now()
	report := Report{Errors: make(map[string]error)}

	first := make([]job, 0, len(targets))
	for _, target := range targets {
		q, err := parseTarget(target)
		if err != nil {
			report.Failed++
			report.Errors[target] = err
			w.logger.Warn().Err(err).Str("target", target).Msg("Skipping invalid warmup target")
			continue
		}
		page := q.Page
		if page < 1 {
			page = 1
		}
		first = append(first, job{target: target, query: q, page: page, facets: true})
	}

	w.logger.Info().
		Int("targets", len(first)).
		Int("concurrency", w.config.Concurrency).
		Msg("Starting cache warmup")

	var rest []job
	for _, res := range w.run(ctx, first) {
		if !w.collect(&report, res) {
			continue
		}
		last := min(res.totalPages, res.job.page+w.config.MaxPages-1)
		for p := res.job.page + 1; p <= last; p++ {
			rest = append(rest, job{target: res.job.target, query: res.job.query, page: p})
		}
	}
	for _, res := range w.run(ctx, rest) {
		w.collect(&report, res)
	}

	report.Duration = time.Since(start)
	w.logger.Info().
		Int("warmed", report.Warmed).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("Cache warmup complete")

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("warmup interrupted: %w", err)
	}
	if report.Failed > 0 {
		return report, fmt.Errorf("warmup incomplete: %d of %d jobs failed", report.Failed, report.Failed+report.Warmed)
	}
	return report, nil
}

func (w *Warmer) collect(report *Report, res result) bool {
	if res.err != nil {
		report.Failed++
		report.Errors[fmt.Sprintf("%s#%d", res.job.target, res.job.page)] = res.err
		return false
	}
	report.Warmed++
	return true
}

// run executes jobs on the worker pool and returns their results in completion order.
func (w *Warmer) run(ctx context.Context, jobs []job) []result {
	if len(jobs) == 0 {
		return nil
	}

	queue := make(chan job, len(jobs))
	for _, j := range jobs {
		queue <- j
	}
	close(queue)

	results := make(chan result, len(jobs))
	var wg sync.WaitGroup
	for i := 0; i < min(w.config.Concurrency, len(jobs)); i++ {
		wg.Add(1)
		go w.worker(ctx, queue, results, &wg, i)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]result, 0, len(jobs))
	for res := range results {
		out = append(out, res)
	}
	return out
}

// worker processes jobs from the queue
func (w *Warmer) worker(ctx context.Context, queue <-chan job, results chan<- result, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for j := range queue {
		if err := ctx.Err(); err != nil {
			results <- result{job: j, err: err}
			continue
		}

		jobCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
		total, err := w.fetch(jobCtx, j)
		cancel()

		if err != nil {
			w.logger.Warn().
				Err(err).
				Int("worker_id", workerID).
				Str("target", j.target).
				Int("page", j.page).
				Msg("Warmup job failed")
		}
		results <- result{job: j, totalPages: total, err: err}
		processed++
	}

	w.logger.Debug().
		Int("worker_id", workerID).
		Int("jobs_processed", processed).
		Msg("Worker completed")
}

func (w *Warmer) fetch(ctx context.Context, j job) (int, error) {
	page, err := w.source.Rows(ctx, inventory.RowsRequest{
		Filters: j.query.State,
		Page:    j.page,
		SortBy:  j.query.Sort.By,
		Order:   j.query.Sort.Order,
	})
	if err != nil {
		return 0, err
	}
	if j.facets {
		if _, err := w.source.Facets(ctx, j.query.State); err != nil {
			return 0, err
		}
	}
	return page.TotalPages, nil
}

func parseTarget(target string) (address.Query, error) {
	u, err := url.Parse(target)
	if err != nil {
		return address.Query{}, fmt.Errorf("%w: %v", address.ErrInvalidAddress, err)
	}
	return address.ParseURL(u.Path, u.Query())
}
