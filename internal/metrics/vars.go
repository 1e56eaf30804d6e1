package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Cycles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chainarb_detection_cycles_total",
		Help: "Number of completed detection cycles",
	})

	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chainarb_detection_cycle_seconds",
		Help:    "Wall time of one detection cycle",
		Buckets: prometheus.DefBuckets,
	})

	Opportunities = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chainarb_opportunities",
		Help: "Opportunities found in the last cycle",
	})

	SourceFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chainarb_source_failures_total",
		Help: "Price fetches excluded from a cycle",
	}, []string{"venue", "kind"})

	QuoteLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chainarb_quote_latency_seconds",
		Help:    "Time to obtain a single venue quote",
		Buckets: prometheus.DefBuckets,
	}, []string{"venue"})

	GasFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chainarb_gas_fallback_total",
		Help: "Venues scored with the default gas entry",
	}, []string{"venue"})

	AssetFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chainarb_asset_failures_total",
		Help: "Assets whose processing failed within a cycle",
	})
)

func init() {
	prometheus.MustRegister(
		Cycles,
		CycleDuration,
		Opportunities,
		SourceFailures,
		QuoteLatency,
		GasFallbacks,
		AssetFailures,
	)
}
