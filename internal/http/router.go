package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatrelay/internal/config"
	"chatrelay/internal/stream"
)

func Router(cfg *config.Config, svc ChatService) http.Handler {
	r := chi.NewRouter()

	r.Use(Recoverer, RequestID, SecureHeaders, Logger, Rate(600, time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	opts := StreamOptions{
		Session: stream.SessionOptions{
			PingInterval: cfg.PingInterval,
			MaxLifetime:  cfg.MaxLifetime,
			Retry:        cfg.SSERetry,
		},
		SendQueue: cfg.SendQueue,
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) })

	r.Group(func(g chi.Router) {
		g.Use(BasicAuth(cfg.MetricsUser, cfg.MetricsPass))
		g.Method("GET", "/metrics", promhttp.Handler())
	})

	r.Route("/api/chat", func(api chi.Router) {
		api.Get("/messages", getMessages(svc))
		api.Get("/poll", pollMessages(svc))
		api.Get("/uuid", newUUID)
		api.Get("/events", SSE(svc, opts))
		api.Get("/ws", WS(cfg.AllowedOrigins, svc, opts))

		api.Group(func(g chi.Router) {
			g.Use(BodyLimit(4<<10), Rate(120, time.Minute))
			g.Post("/message", postMessage(svc))
		})
	})

	return r
}
