package persist

import "github.com/prometheus/client_golang/prometheus"

var (
	flushCtr = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "persist_flushes_total",
		Help: "history flushes by result",
	}, []string{"result"})
	flushDur = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "persist_flush_duration_seconds",
		Help:    "history flush latency",
		Buckets: prometheus.DefBuckets,
	})
	pendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "persist_pending_appends",
		Help: "appends since the last scheduled flush",
	})
)

func init() {
	prometheus.MustRegister(flushCtr, flushDur, pendingGauge)
}
