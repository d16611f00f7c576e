package updater

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes per-cycle counters and gauges. A nil *Metrics is a no-op,
// so components can run without a registry in tests.
type Metrics struct {
	cyclesTotal     *prometheus.CounterVec
	recordsFetched  prometheus.Counter
	recordsCleaned  prometheus.Counter
	recordsInserted prometheus.Counter
	recordsSkipped  prometheus.Counter
	cycleDuration   prometheus.Histogram
	lastRunUnix     prometheus.Gauge
	lastSuccessUnix prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		cyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_cycles_total",
			Help: "Completed sync cycles by result.",
		}, []string{"result"}),
		recordsFetched: f.NewCounter(prometheus.CounterOpts{
			Name: "sync_records_fetched_total",
			Help: "Raw records fetched from the catalog.",
		}),
		recordsCleaned: f.NewCounter(prometheus.CounterOpts{
			Name: "sync_records_cleaned_total",
			Help: "Records surviving normalization.",
		}),
		recordsInserted: f.NewCounter(prometheus.CounterOpts{
			Name: "sync_records_inserted_total",
			Help: "Records durably appended to the store.",
		}),
		recordsSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "sync_records_skipped_total",
			Help: "Records skipped by per-record write fallback.",
		}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sync_cycle_duration_seconds",
			Help:    "Wall time of one sync cycle.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		lastRunUnix: f.NewGauge(prometheus.GaugeOpts{
			Name: "sync_last_run_timestamp_seconds",
			Help: "Unix time the last cycle finished.",
		}),
		lastSuccessUnix: f.NewGauge(prometheus.GaugeOpts{
			Name: "sync_last_success_timestamp_seconds",
			Help: "Unix time the last successful cycle finished.",
		}),
	}
}

// Observe records a finished cycle.
func (m *Metrics) Observe(r Report) {
	if m == nil {
		return
	}
	result := "failure"
	if r.Success {
		result = "success"
	}
	m.cyclesTotal.WithLabelValues(result).Inc()
	m.recordsFetched.Add(float64(r.RecordsFetched))
	m.recordsCleaned.Add(float64(r.RecordsCleaned))
	m.recordsInserted.Add(float64(r.RecordsInserted))
	m.recordsSkipped.Add(float64(r.RecordsSkipped))
	m.cycleDuration.Observe(r.EndTime.Sub(r.StartTime).Seconds())
	m.lastRunUnix.Set(float64(r.EndTime.Unix()))
	if r.Success {
		m.lastSuccessUnix.Set(float64(r.EndTime.Unix()))
	}
}
