package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the broadcast pipeline.
type Metrics struct {
	// Scheduler and coordinator.
	Ticks          *prometheus.CounterVec   // labels: feed, outcome={success,error}
	TickDuration   *prometheus.HistogramVec // labels: feed
	EventsNew      *prometheus.CounterVec   // labels: feed
	EventsDup      *prometheus.CounterVec   // labels: feed
	SchedulerAlive prometheus.Gauge

	// External calls.
	Generation   *prometheus.CounterVec // labels: provider, outcome={success,error,config_missing}
	Dispatch     *prometheus.CounterVec // labels: outcome={success,error,skipped}
	AuditPublish *prometheus.CounterVec // labels: outcome={success,error}

	// Forecast cache.
	ForecastCache   *prometheus.CounterVec // labels: result={hit,refresh,stale,mirror}
	ForecastRefresh prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Ticks,
		m.TickDuration,
		m.EventsNew,
		m.EventsDup,
		m.SchedulerAlive,
		m.Generation,
		m.Dispatch,
		m.AuditPublish,
		m.ForecastCache,
		m.ForecastRefresh,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_broadcast",
			Name:      "ticks_total",
			Help:      "Feed ticks by feed and outcome.",
		}, []string{"feed", "outcome"}),
		TickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "weather_broadcast",
			Name:      "tick_duration_seconds",
			Help:      "Duration of one feed tick, including generation and dispatch.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"feed"}),
		EventsNew: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_broadcast",
			Name:      "events_new_total",
			Help:      "Events seen for the first time and persisted.",
		}, []string{"feed"}),
		EventsDup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_broadcast",
			Name:      "events_duplicate_total",
			Help:      "Events skipped because the ledger already holds them.",
		}, []string{"feed"}),
		SchedulerAlive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weather_broadcast",
			Name:      "scheduler_running",
			Help:      "1 when the scheduler is active, 0 when shut down.",
		}),
		Generation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_broadcast",
			Name:      "generation_total",
			Help:      "Text-generation calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		Dispatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_broadcast",
			Name:      "dispatch_total",
			Help:      "Speech dispatches by outcome.",
		}, []string{"outcome"}),
		AuditPublish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_broadcast",
			Name:      "audit_publish_total",
			Help:      "Records published to the audit topic by outcome.",
		}, []string{"outcome"}),
		ForecastCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_broadcast",
			Name:      "forecast_cache_total",
			Help:      "Forecast cache lookups by result.",
		}, []string{"result"}),
		ForecastRefresh: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weather_broadcast",
			Name:      "forecast_refresh_duration_seconds",
			Help:      "Duration of a forecast fetch and generation round trip.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
	}
}
