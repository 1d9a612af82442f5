package stream

import "github.com/prometheus/client_golang/prometheus"

var (
	subsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stream_subscribers",
		Help: "active subscribers",
	})
	rejectedCtr = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stream_rejected_subscriptions_total",
		Help: "subscriptions rejected at capacity",
	})
	evictionsCtr = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_evictions_total",
		Help: "subscribers evicted by the registry",
	}, []string{"reason"})
	deliveredCtr = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stream_delivered_frames_total",
		Help: "frames queued to subscribers",
	})
	sessionsCtr = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_sessions_closed_total",
		Help: "push sessions closed, by reason",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(subsGauge, rejectedCtr, evictionsCtr, deliveredCtr, sessionsCtr)
}
