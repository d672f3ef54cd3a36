// Package metrics counts emitted records and dispatch outcomes. Each process
// run is a batch job, so the counters are pushed to a Prometheus Pushgateway
// at the end of the run instead of being scraped.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Dispatch outcomes.
const (
	OutcomeDone    = "done"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Options configure the Pushgateway export.
type Options struct {
	PushgatewayURL string
	Job            string
}

// Recorder holds the run's collectors on a private registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	opts     Options
	registry *prometheus.Registry

	RecordsEmitted   prometheus.Counter
	ItemsDispatched  *prometheus.CounterVec
	FinalizeWarnings *prometheus.CounterVec
	PushDuration     *prometheus.HistogramVec
}

// NewRecorder registers the collectors on a fresh registry.
func NewRecorder(opts Options) *Recorder {
	if opts.Job == "" {
		opts.Job = "raterelay"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		opts:     opts,
		registry: reg,
		RecordsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "raterelay_records_emitted_total",
			Help: "Rate records handed to the work-item queue",
		}),
		ItemsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "raterelay_items_dispatched_total",
			Help: "Work items processed by the dispatch loop, by outcome",
		}, []string{"sink", "outcome"}),
		FinalizeWarnings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "raterelay_finalize_warnings_total",
			Help: "Sink finalize calls that returned an error",
		}, []string{"sink"}),
		PushDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "raterelay_push_duration_seconds",
			Help:    "Time spent in a single sink push",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"sink"}),
	}
}

// Emitted counts one record created on the queue.
func (r *Recorder) Emitted() {
	if r == nil {
		return
	}
	r.RecordsEmitted.Inc()
}

// Dispatched counts one acknowledged item.
func (r *Recorder) Dispatched(sink, outcome string) {
	if r == nil {
		return
	}
	r.ItemsDispatched.WithLabelValues(sink, outcome).Inc()
}

// ObservePush records how long a push took.
func (r *Recorder) ObservePush(sink string, d time.Duration) {
	if r == nil {
		return
	}
	r.PushDuration.WithLabelValues(sink).Observe(d.Seconds())
}

// FinalizeWarning counts a failed finalize.
func (r *Recorder) FinalizeWarning(sink string) {
	if r == nil {
		return
	}
	r.FinalizeWarnings.WithLabelValues(sink).Inc()
}

// Registry exposes the underlying registry, mostly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Push sends the collected metrics to the Pushgateway. It is a no-op when no
// gateway is configured.
func (r *Recorder) Push(ctx context.Context) error {
	if r == nil || r.opts.PushgatewayURL == "" {
		return nil
	}
	err := push.New(r.opts.PushgatewayURL, r.opts.Job).
		Gatherer(r.registry).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
