package controlplane

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bytefuck/model-hub/internal/logx"
	"github.com/bytefuck/model-hub/internal/metrics"
)

// HealthChecker evicts workers whose heartbeats have gone stale. Before a
// final eviction it may probe the worker's serving address to tell a dead
// process from a network partition; a successful probe defers eviction for
// one more sweep, up to probeRetryLimit times. Probing happens only on this
// background path, never during routing. Eviction leaves breaker state
// untouched.
type HealthChecker struct {
	reg              *Registry
	heartbeatTimeout time.Duration
	checkInterval    time.Duration
	probeRetryLimit  int
	client           *http.Client
	deferrals        map[string]int
	now              func() time.Time
}

func NewHealthChecker(reg *Registry, heartbeatTimeout, checkInterval time.Duration, probeRetryLimit int) *HealthChecker {
	return &HealthChecker{
		reg:              reg,
		heartbeatTimeout: heartbeatTimeout,
		checkInterval:    checkInterval,
		probeRetryLimit:  probeRetryLimit,
		client:           &http.Client{Timeout: 5 * time.Second},
		deferrals:        make(map[string]int),
		now:              time.Now,
	}
}

// Run sweeps the registry on a fixed interval until ctx is cancelled.
func (h *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.checkInterval)
	defer ticker.Stop()
	logx.Log.Info().Dur("interval", h.checkInterval).Dur("timeout", h.heartbeatTimeout).Msg("health checker started")
	for {
		select {
		case <-ctx.Done():
			logx.Log.Info().Msg("health checker stopped")
			return
		case <-ticker.C:
			h.CheckOnce(ctx)
		}
	}
}

// CheckOnce performs a single sweep over all registered workers.
func (h *HealthChecker) CheckOnce(ctx context.Context) {
	now := h.now()
	for _, rec := range h.reg.List("") {
		if now.Sub(rec.LastHeartbeat) <= h.heartbeatTimeout {
			delete(h.deferrals, rec.WorkerID)
			continue
		}
		h.handleStale(ctx, rec)
	}
}

func (h *HealthChecker) handleStale(ctx context.Context, rec WorkerRecord) {
	logx.Log.Warn().Str("worker_id", rec.WorkerID).Time("last_heartbeat", rec.LastHeartbeat).Msg("worker heartbeat timeout")
	if h.deferrals[rec.WorkerID] < h.probeRetryLimit && h.probe(ctx, rec.BackendURL) {
		h.deferrals[rec.WorkerID]++
		logx.Log.Info().Str("worker_id", rec.WorkerID).Int("deferrals", h.deferrals[rec.WorkerID]).Msg("probe succeeded; eviction deferred")
		return
	}
	delete(h.deferrals, rec.WorkerID)
	if h.reg.Evict(rec.WorkerID) {
		metrics.RecordEviction(rec.ModelID)
	}
}

func (h *HealthChecker) probe(ctx context.Context, baseURL string) bool {
	url := strings.TrimRight(baseURL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := h.client.Do(req)
	if err != nil {
		logx.Log.Debug().Err(err).Str("url", url).Msg("liveness probe failed")
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}
