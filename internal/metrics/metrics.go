// Package metrics exposes alert run metrics to Prometheus.
package metrics

import (
	"net/http"

	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/model"
	"github.com/ogulcanaydogan/Cloud-Cost-Guardian/pkg/tracker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ccg"

// Collector records alert runs. It implements tracker.RunRecorder.
type Collector struct {
	registry *prometheus.Registry

	runs               *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	budgetsProcessed   *prometheus.GaugeVec
	alertsTriggered    *prometheus.CounterVec
	notifications      *prometheus.CounterVec
	lastSuccessfulRun  *prometheus.GaugeVec
	budgetUtilization  *prometheus.GaugeVec
	schedulerLockSkips prometheus.Counter
}

var _ tracker.RunRecorder = (*Collector)(nil)

// NewCollector creates a collector. If registry is nil a new one is created
// with the Go and process collectors registered.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &Collector{
		registry: registry,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Alert runs by mode and result",
		}, []string{"mode", "result"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Alert run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"mode"}),
		budgetsProcessed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "budgets_processed",
			Help:      "Budgets processed by the last run of each mode",
		}, []string{"mode"}),
		alertsTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_triggered_total",
			Help:      "Alerts triggered by type and severity",
		}, []string{"alert_type", "severity"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Channel deliveries by channel and result",
		}, []string{"channel", "result"}),
		lastSuccessfulRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_run_timestamp_seconds",
			Help:      "Unix time of the last successful run of each mode",
		}, []string{"mode"}),
		budgetUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "budget_utilization_percent",
			Help:      "Budget utilization seen by the last scheduled run",
		}, []string{"budget_id", "budget_name"}),
		schedulerLockSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_lock_skips_total",
			Help:      "Scheduled runs skipped because another instance held the lock",
		}),
	}

	registry.MustRegister(
		c.runs,
		c.runDuration,
		c.budgetsProcessed,
		c.alertsTriggered,
		c.notifications,
		c.lastSuccessfulRun,
		c.budgetUtilization,
		c.schedulerLockSkips,
	)
	return c
}

// RecordRun records a finished run. summary may be partial when err is set.
func (c *Collector) RecordRun(mode string, summary *model.RunSummary, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.runs.WithLabelValues(mode, result).Inc()

	if summary == nil {
		return
	}
	c.runDuration.WithLabelValues(mode).Observe(float64(summary.ProcessingTimeMs) / 1000)
	if err != nil {
		return
	}

	c.budgetsProcessed.WithLabelValues(mode).Set(float64(summary.BudgetsProcessed))
	c.lastSuccessfulRun.WithLabelValues(mode).SetToCurrentTime()

	for _, a := range summary.Alerts {
		c.alertsTriggered.WithLabelValues(string(a.AlertType), string(a.Severity)).Inc()
	}
	for _, d := range summary.Notifications {
		for ch, res := range d.Channels {
			if !res.Attempted {
				continue
			}
			outcome := "success"
			if !res.Success {
				outcome = "failure"
			}
			c.notifications.WithLabelValues(string(ch), outcome).Inc()
		}
	}

	if mode == tracker.ModeScheduled {
		c.budgetUtilization.Reset()
		for _, b := range summary.Budgets {
			c.budgetUtilization.WithLabelValues(b.BudgetID, b.BudgetName).Set(b.CurrentUtilization)
		}
	}
}

// RecordLockSkip counts a scheduled run skipped for a held lock.
func (c *Collector) RecordLockSkip() {
	c.schedulerLockSkips.Inc()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
