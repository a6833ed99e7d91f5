package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authkit "github.com/tunedeck/authkit"
	"github.com/tunedeck/authkit/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() authkit.MetricsSnapshot
	AuditDropped() uint64
}

type counterDesc struct {
	id   authkit.MetricID
	desc *prometheus.Desc
}

type histogramDesc struct {
	id   authkit.MetricID
	desc *prometheus.Desc
}

// PrometheusExporter adapts engine snapshots into a client_golang
// [prometheus.Collector] registered on a private registry.
type PrometheusExporter struct {
	source       metricsSource
	registry     *prometheus.Registry
	counters     []counterDesc
	histograms   []histogramDesc
	auditDropped *prometheus.Desc
}

var _ prometheus.Collector = (*PrometheusExporter)(nil)

// NewPrometheusExporter creates a Prometheus exporter reading from the
// given [authkit.Engine].
func NewPrometheusExporter(engine *authkit.Engine) *PrometheusExporter {
	return NewPrometheusExporterFromSource(engine)
}

// NewPrometheusExporterFromSource creates a Prometheus exporter from a
// custom snapshot source.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	e := &PrometheusExporter{
		source:     source,
		registry:   prometheus.NewRegistry(),
		counters:   make([]counterDesc, 0, len(internaldefs.CounterDefs)),
		histograms: make([]histogramDesc, 0, len(internaldefs.HistogramDefs)),
	}

	for _, def := range internaldefs.CounterDefs {
		e.counters = append(e.counters, counterDesc{
			id:   def.ID,
			desc: prometheus.NewDesc(def.Name, def.Help, nil, nil),
		})
	}
	for _, def := range internaldefs.HistogramDefs {
		e.histograms = append(e.histograms, histogramDesc{
			id:   def.ID,
			desc: prometheus.NewDesc(def.Name, def.Help, nil, nil),
		})
	}
	e.auditDropped = prometheus.NewDesc(
		"authkit_audit_dropped_total",
		"Audit events dropped by dispatcher backpressure.",
		nil, nil,
	)

	e.registry.MustRegister(e)
	return e
}

// Describe implements [prometheus.Collector].
func (p *PrometheusExporter) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range p.counters {
		ch <- c.desc
	}
	for _, h := range p.histograms {
		ch <- h.desc
	}
	ch <- p.auditDropped
}

// Collect implements [prometheus.Collector]. One snapshot per scrape, so
// every series in a scrape reads from the same instant.
func (p *PrometheusExporter) Collect(ch chan<- prometheus.Metric) {
	if p == nil || p.source == nil {
		return
	}

	snapshot := p.source.MetricsSnapshot()

	for _, c := range p.counters {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(snapshot.Counters[c.id]))
	}

	for _, h := range p.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[h.id]))

		buckets := make(map[float64]uint64, len(internaldefs.HistogramBoundValues)-1)
		for i := 0; i < len(internaldefs.HistogramBoundValues)-1; i++ {
			buckets[internaldefs.HistogramBoundValues[i]] = cumulative[i]
		}
		count := cumulative[len(cumulative)-1]

		// Core snapshots carry bucket counts only; the sum stays zero.
		ch <- prometheus.MustNewConstHistogram(h.desc, count, 0, buckets)
	}

	ch <- prometheus.MustNewConstMetric(p.auditDropped, prometheus.CounterValue, float64(p.source.AuditDropped()))
}

// Handler returns an http.Handler that serves the exporter's registry in
// text exposition format.
func (p *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry returns the exporter's private registry so callers can mount
// additional collectors beside the engine's.
func (p *PrometheusExporter) Registry() *prometheus.Registry {
	return p.registry
}
