package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusExporter mirrors the global aggregate into Prometheus gauges
// at ReflectLocal time, not per-increment, matching spec.md §4.3's
// distinction between the lock-free hot path and the periodic fold.
// Grounded on the gauge-per-metric registration idiom in
// cuemby-warren/pkg/metrics/metrics.go.
type PrometheusExporter struct {
	gauges      [numCounters]prometheus.Gauge
	bufferHit   prometheus.Gauge
}

// NewPrometheusExporter creates and registers one gauge per counter plus
// the derived buffer-hit-ratio gauge, under the xqe_stats namespace.
func NewPrometheusExporter(reg prometheus.Registerer) *PrometheusExporter {
	e := &PrometheusExporter{}
	for i := range e.gauges {
		c := Counter(i)
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "xqe",
			Subsystem: "stats",
			Name:      c.String(),
			Help:      "Global aggregate for " + c.String(),
		})
		reg.MustRegister(g)
		e.gauges[i] = g
	}
	e.bufferHit = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "xqe",
		Subsystem: "stats",
		Name:      "buffer_hit_ratio_x10000",
		Help:      "Buffer-hit ratio, stored x10000 for integer precision",
	})
	reg.MustRegister(e.bufferHit)
	return e
}

// Export pushes a Block's current values into the registered gauges.
// Call after Registry.ReflectLocal folds a transaction into the global
// aggregate.
func (e *PrometheusExporter) Export(b Block) {
	for i := range e.gauges {
		e.gauges[i].Set(float64(b.Get(Counter(i))))
	}
	e.bufferHit.Set(float64(b.BufferHitRatioX10000()))
}
