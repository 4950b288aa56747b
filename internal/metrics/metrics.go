package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"
)

type Registry struct {
	reg            *prometheus.Registry
	Files          *prometheus.CounterVec
	Orders         *prometheus.CounterVec
	RowsSkipped    prometheus.Counter
	QueueDepth     prometheus.Gauge
	ConversionSecs prometheus.Histogram
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	files := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "buyback_ingest_files_total"}, []string{"result"})
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "buyback_ingest_orders_total"}, []string{"mode"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "buyback_ingest_rows_skipped_total"})
	depth := prometheus.NewGauge(prometheus.GaugeOpts{Name: "buyback_ingest_queue_depth"})
	secs := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "buyback_ingest_conversion_seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	r.MustRegister(files, orders, skipped, depth, secs)
	return &Registry{
		reg:            r,
		Files:          files,
		Orders:         orders,
		RowsSkipped:    skipped,
		QueueDepth:     depth,
		ConversionSecs: secs,
	}
}

func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
