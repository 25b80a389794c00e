// Package metrics exposes sync counters on a private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the clubsync collectors. A nil *Registry is valid and
// records nothing.
type Registry struct {
	reg           *prometheus.Registry
	RowsWritten   *prometheus.CounterVec
	SyncFailures  *prometheus.CounterVec
	WebhookEvents *prometheus.CounterVec
	FetchedItems  *prometheus.CounterVec
	SkippedItems  *prometheus.CounterVec
	SyncDuration  *prometheus.HistogramVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clubsync_rows_written_total",
		Help: "Rows written to report tables.",
	}, []string{"report"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clubsync_sync_failures_total",
		Help: "Report syncs that ended in error.",
	}, []string{"report"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clubsync_webhook_events_total",
		Help: "Appointment webhook events by action and outcome.",
	}, []string{"action", "outcome"})
	fetched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clubsync_fetched_items_total",
		Help: "Raw items read from upstream APIs.",
	}, []string{"source"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clubsync_skipped_items_total",
		Help: "Malformed items skipped during normalization.",
	}, []string{"source"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clubsync_sync_duration_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	r.MustRegister(rows, failures, events, fetched, skipped, duration)
	return &Registry{
		reg:           r,
		RowsWritten:   rows,
		SyncFailures:  failures,
		WebhookEvents: events,
		FetchedItems:  fetched,
		SkippedItems:  skipped,
		SyncDuration:  duration,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

func (r *Registry) AddRows(report string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.RowsWritten.WithLabelValues(report).Add(float64(n))
}

func (r *Registry) Failure(report string) {
	if r == nil {
		return
	}
	r.SyncFailures.WithLabelValues(report).Inc()
}

func (r *Registry) Event(action, outcome string) {
	if r == nil {
		return
	}
	r.WebhookEvents.WithLabelValues(action, outcome).Inc()
}

func (r *Registry) Fetched(source string, n, skipped int) {
	if r == nil {
		return
	}
	r.FetchedItems.WithLabelValues(source).Add(float64(n))
	if skipped > 0 {
		r.SkippedItems.WithLabelValues(source).Add(float64(skipped))
	}
}

func (r *Registry) ObserveSync(source string, d time.Duration) {
	if r == nil {
		return
	}
	r.SyncDuration.WithLabelValues(source).Observe(d.Seconds())
}
