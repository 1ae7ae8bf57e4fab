package metrics

import "github.com/prometheus/client_golang/prometheus"

// ExportMetrics exposes counters/histograms for the conversion feed.
type ExportMetrics struct {
	runsTotal    *prometheus.CounterVec
	rowsEmitted  prometheus.Counter
	leadsDropped *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
}

func NewExportMetrics(reg prometheus.Registerer) *ExportMetrics {
	m := &ExportMetrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schoolleads",
			Subsystem: "export",
			Name:      "runs_total",
			Help:      "Total conversion export runs",
		}, []string{"status"}),
		rowsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "schoolleads",
			Subsystem: "export",
			Name:      "rows_emitted_total",
			Help:      "Total conversion rows written to the feed",
		}),
		leadsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schoolleads",
			Subsystem: "export",
			Name:      "leads_dropped_total",
			Help:      "Leads excluded from the feed during filtering",
		}, []string{"reason"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "schoolleads",
			Subsystem: "export",
			Name:      "run_duration_seconds",
			Help:      "Duration of conversion export runs",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.runsTotal, m.rowsEmitted, m.leadsDropped, m.runDuration)
	return m
}

func (m *ExportMetrics) ObserveRun(status string, seconds float64) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(seconds)
}

func (m *ExportMetrics) AddRowsEmitted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rowsEmitted.Add(float64(n))
}

func (m *ExportMetrics) AddDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.leadsDropped.WithLabelValues(reason).Add(float64(n))
}
