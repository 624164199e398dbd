// Package metrics exposes import activity as Prometheus series.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/salesboard/internal/core"
)

const namespace = "sales"

// Metrics records finished imports. It satisfies core.Recorder.
type Metrics struct {
	imports  *prometheus.CounterVec
	rows     *prometheus.CounterVec
	lines    *prometheus.CounterVec
	duration prometheus.Histogram

	gatherer prometheus.Gatherer
}

var _ core.Recorder = (*Metrics)(nil)

// New registers the import series on a fresh registry, plus Go runtime and
// process collectors. active reports the number of running imports.
func New(active func() int) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg, active)
}

// NewWithRegistry registers on reg and serves from g.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer, active func() int) *Metrics {
	m := &Metrics{
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Finished imports by status.",
		}, []string{"status"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_total",
			Help:      "CSV rows seen by imports, by outcome.",
		}, []string{"outcome"}),
		lines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_bill_lines_total",
			Help:      "Bill lines reconciled by imports, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_duration_seconds",
			Help:      "Wall time of finished imports.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}),
		gatherer: g,
	}
	reg.MustRegister(m.imports, m.rows, m.lines, m.duration)

	if active != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "imports_active",
			Help:      "Imports currently holding a slot.",
		}, func() float64 { return float64(active()) }))
	}
	return m
}

// ImportFinished implements core.Recorder. A nil *Metrics does nothing.
func (m *Metrics) ImportFinished(status string, result *core.ImportResult, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.imports.WithLabelValues(status).Inc()
	m.duration.Observe(elapsed.Seconds())

	if result == nil {
		return
	}
	m.rows.WithLabelValues("read").Add(float64(result.RowsRead))
	m.rows.WithLabelValues("skipped").Add(float64(result.RowsSkipped))
	m.lines.WithLabelValues("written").Add(float64(result.LinesWritten))
	m.lines.WithLabelValues("skipped").Add(float64(result.LinesSkipped))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
