package worker

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bytefuck/model-hub/internal/api"
	"github.com/bytefuck/model-hub/internal/logx"
)

// NewRouter constructs the worker HTTP handler: the forwarded completion
// endpoint, the health passthrough the controller probes, a status page,
// and metrics.
func NewRouter(state *State, proxy *Proxy) http.Handler {
	r := chi.NewRouter()
	for _, m := range api.MiddlewareChain() {
		r.Use(m)
	}
	r.Post("/v1/chat/completions", proxy.ChatCompletions)
	r.Get("/health", proxy.Health)
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(state.Get()); err != nil {
			logx.Log.Error().Err(err).Msg("write status")
		}
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
