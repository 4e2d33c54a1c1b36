// Package invalidation applies inventory-change events to the upstream response
// cache. Events name fetch tags; every cached response indexed under one of them is
// removed. Events arrive over Kafka, AMQP or the revalidate endpoint.
package invalidation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/srp-filter/pkg/logging"
	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "srp_invalidation_events_total",
		Help: "Total invalidation events by source and result",
	}, []string{"source", "result"})

	invalidationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "srp_invalidation_duration_seconds",
		Help:    "Time to apply one invalidation event by source",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"source"})
)

// ErrInvalidEvent is returned for events that cannot be decoded or carry no tags.
// Such events are dropped rather than retried.
var ErrInvalidEvent = errors.New("invalid invalidation event")

// Event asks for every response under Tags to be dropped.
type Event struct {
	Tags   []string  `json:"tags"`
	SiteID string    `json:"site_id,omitempty"`
	Reason string    `json:"reason,omitempty"`
	TS     time.Time `json:"ts,omitempty"`
}

// Decode parses an event and drops blank tags.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := sonic.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	tags := ev.Tags[:0]
	for _, tag := range ev.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	ev.Tags = tags
	if len(ev.Tags) == 0 {
		return Event{}, fmt.Errorf("%w: no tags", ErrInvalidEvent)
	}
	return ev, nil
}

// Invalidator removes cached responses by tag. *cache.Manager implements it.
type Invalidator interface {
	InvalidateTags(ctx context.Context, tags ...string) (int, error)
}

// Handler applies events to an Invalidator.
type Handler struct {
	inv    Invalidator
	logger zerolog.Logger
}

// NewHandler creates a handler.
func NewHandler(inv Invalidator) *Handler {
	return &Handler{inv: inv, logger: logging.NewLogger("invalidation")}
}

// Apply invalidates the tags of ev and returns the number of responses removed.
func (h *Handler) Apply(ctx context.Context, source string, ev Event) (int, error) {
	start := time.Now()
	removed, err := h.inv.InvalidateTags(ctx, ev.Tags...)
	invalidationDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		eventsTotal.WithLabelValues(source, "error").Inc()
		h.logger.Error().
			Err(err).
			Str("source", source).
			Strs("tags", ev.Tags).
			Msg("Invalidation failed")
		return removed, fmt.Errorf("invalidate tags: %w", err)
	}

	eventsTotal.WithLabelValues(source, "ok").Inc()
	h.logger.Info().
		Str("source", source).
		Strs("tags", ev.Tags).
		Str("site_id", ev.SiteID).
		Str("reason", ev.Reason).
		Int("removed", removed).
		Msg("Invalidated cached responses")
	return removed, nil
}

// Handle decodes a raw event and applies it.
func (h *Handler) Handle(ctx context.Context, source string, data []byte) (int, error) {
	ev, err := Decode(data)
	if err != nil {
		eventsTotal.WithLabelValues(source, "invalid").Inc()
		h.logger.Warn().Err(err).Str("source", source).Msg("Dropping invalid event")
		return 0, err
	}
	return h.Apply(ctx, source, ev)
}
