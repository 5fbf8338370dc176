package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bytefuck/model-hub/internal/api"
	"github.com/bytefuck/model-hub/internal/config"
	"github.com/bytefuck/model-hub/internal/controlplane"
)

// New constructs the controller HTTP handler: the internal worker surface
// guarded by the worker key, the public completion surface guarded by the
// API key, plus health and metrics.
func New(reg *controlplane.Registry, breakers *controlplane.BreakerBoard, rt *controlplane.Router, cfg config.ControllerConfig) http.Handler {
	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	for _, m := range api.MiddlewareChain() {
		r.Use(m)
	}

	r.Route("/internal/workers", func(ir chi.Router) {
		ir.Use(api.BearerAuthMiddleware(cfg.WorkerKey))
		ir.Post("/register", api.RegisterWorkerHandler(reg))
		ir.Post("/heartbeat", api.HeartbeatHandler(reg))
		ir.Get("/", api.ListWorkersHandler(reg, breakers, cfg.HeartbeatTimeout))
		ir.Delete("/{worker_id}", api.EvictWorkerHandler(reg))
	})

	r.Group(func(g chi.Router) {
		g.Use(api.BearerAuthMiddleware(cfg.APIKey))
		g.Post("/v1/chat/completions", api.ChatCompletionsHandler(rt, cfg.RequestTimeout))
		g.Get("/v1/models", api.ListModelsHandler(reg))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", promhttp.Handler())

	return r
}
