package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	postsCtr = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_posts_total",
		Help: "posted messages by result",
	}, []string{"result"})
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_snapshot_cache_hits_total",
		Help: "history reads served from the cache",
	})
	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_snapshot_cache_misses_total",
		Help: "history reads that rebuilt the payload",
	})
)

func init() {
	prometheus.MustRegister(postsCtr, cacheHits, cacheMisses)
}
