// Package monitoring holds the kernel's Prometheus metrics.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Scheduling metrics
	ThreadsScheduled *prometheus.CounterVec
	ThreadMigrations prometheus.Counter
	CoreIdles        *prometheus.CounterVec
	TimerExpiries    *prometheus.CounterVec

	// System-call metrics
	SystemCalls *prometheus.CounterVec

	// Memory metrics
	PageFaults   *prometheus.CounterVec
	TokenCommits prometheus.Counter

	// Resource gauges
	ThreadsLive   prometheus.Gauge
	InstancesLive prometheus.Gauge
}

// NewMetrics creates a metrics collector registered on reg. Passing a fresh
// registry per kernel keeps tests independent.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ThreadsScheduled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nucleus_threads_scheduled_total",
				Help: "Total thread selections, per core",
			},
			[]string{"core"},
		),
		ThreadMigrations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nucleus_thread_migrations_total",
				Help: "Total first-claim thread migrations",
			},
		),
		CoreIdles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nucleus_core_idles_total",
				Help: "Total scheduling decisions that found no runnable thread, per core",
			},
			[]string{"core"},
		),
		TimerExpiries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nucleus_timer_expiries_total",
				Help: "Total time-slice expiries, per core",
			},
			[]string{"core"},
		),
		SystemCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nucleus_system_calls_total",
				Help: "Total dispatched system calls, by resolution",
			},
			[]string{"resolution"},
		),
		PageFaults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nucleus_page_faults_total",
				Help: "Total user page faults, by outcome",
			},
			[]string{"outcome"},
		),
		TokenCommits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nucleus_token_commits_total",
				Help: "Total token pages committed on fault",
			},
		),
		ThreadsLive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "nucleus_threads_live",
				Help: "Threads currently registered",
			},
		),
		InstancesLive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "nucleus_instances_live",
				Help: "Instances currently registered",
			},
		),
	}
}

// System-call resolution label values.
const (
	ResolutionImmediate = "immediate"
	ResolutionDeferred  = "deferred"
)

// Page-fault outcome label values.
const (
	FaultCommitted = "committed"
	FaultFatal     = "fatal"
)
