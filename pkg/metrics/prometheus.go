package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	scanDuration  *prometheus.HistogramVec
	recordsTotal  *prometheus.CounterVec
	alertsTotal   *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	pressureScore *prometheus.GaugeVec
	queueDepth    prometheus.Gauge
}

// New registers the watchdog collectors on reg. A nil reg means the default
// Prometheus registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		scanDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "watchdog_scan_duration_seconds",
				Help:    "Duration of one detector scan",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
			[]string{"detector", "symbol"},
		),
		recordsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchdog_records_total",
				Help: "Records emitted by detectors",
			},
			[]string{"detector", "symbol"},
		),
		alertsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchdog_alerts_total",
				Help: "Alerts handled by the router by outcome",
			},
			[]string{"status", "priority"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchdog_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		pressureScore: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "watchdog_pressure_score",
				Help: "Latest market pressure score per symbol",
			},
			[]string{"symbol"},
		),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "watchdog_alert_queue_depth",
			Help: "Alerts waiting in the router catch-up queue",
		}),
	}
}

func (r *Recorder) RecordScan(detector, symbol string, d time.Duration) {
	r.scanDuration.WithLabelValues(detector, symbol).Observe(d.Seconds())
}

func (r *Recorder) RecordRecords(detector, symbol string, n int) {
	if n <= 0 {
		return
	}
	r.recordsTotal.WithLabelValues(detector, symbol).Add(float64(n))
}

// RecordAlert counts one router outcome. An empty priority is reported as "none".
func (r *Recorder) RecordAlert(status, priority string) {
	if priority == "" {
		priority = "none"
	}
	r.alertsTotal.WithLabelValues(status, priority).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) SetPressureScore(symbol string, score float64) {
	r.pressureScore.WithLabelValues(symbol).Set(score)
}

func (r *Recorder) SetQueueDepth(n int) {
	r.queueDepth.Set(float64(n))
}
