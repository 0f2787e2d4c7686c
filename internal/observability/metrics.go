// Package observability provides Prometheus metrics for the engine.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus instruments for the engine.
type Metrics struct {
	registry *prometheus.Registry

	// Evaluation
	TicksTotal         prometheus.Counter
	SnapshotsEvaluated prometheus.Counter
	SnapshotsDropped   prometheus.Counter
	EvalLatency        prometheus.Histogram

	// Gating
	AlertsFired      *prometheus.CounterVec
	AlertsSuppressed *prometheus.CounterVec
	AlertsResolved   prometheus.Counter
	GateEntries      prometheus.Gauge

	// Persistence
	HistoryRowsWritten prometheus.Counter
	StoreRetries       prometheus.Counter
	DispatchDropped    prometheus.Counter

	// Source
	SourceErrors prometheus.Counter
}

// NewMetrics creates a Metrics instance backed by its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "tokenhealth"
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		TicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Evaluation ticks executed",
		}),
		SnapshotsEvaluated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_evaluated_total",
			Help:      "Metric snapshots run through the evaluator",
		}),
		SnapshotsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_dropped_total",
			Help:      "Snapshots dropped for out-of-order timestamps",
		}),
		EvalLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Per-snapshot evaluation latency",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),

		AlertsFired: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_fired_total",
			Help:      "Alerts fired by rule",
		}, []string{"rule"}),
		AlertsSuppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "True conditions suppressed by the gate, by rule and reason",
		}, []string{"rule", "reason"}),
		AlertsResolved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_resolved_total",
			Help:      "Alerts resolved after their condition cleared",
		}),
		GateEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gate_entries",
			Help:      "Tracked (entity, rule) gate pairs",
		}),

		HistoryRowsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_history_rows_total",
			Help:      "Score history points written",
		}),
		StoreRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_retries_total",
			Help:      "Retried persistence calls",
		}),
		DispatchDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_dropped_total",
			Help:      "Alerts dropped because the dispatch queue was full",
		}),

		SourceErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Metrics source fetch failures",
		}),
	}
}

// Handler returns the scrape handler for this metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs a metrics HTTP server until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
