package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bytefuck/model-hub/internal/controlplane"
	"github.com/bytefuck/model-hub/internal/logx"
	"github.com/bytefuck/model-hub/internal/metrics"
)

// RegisterRequest is the body of POST /internal/workers/register.
type RegisterRequest struct {
	WorkerID   string `json:"worker_id"`
	ModelID    string `json:"model_id"`
	BackendURL string `json:"backend_url"`
	Capacity   int    `json:"capacity"`
}

// HeartbeatRequest is the body of POST /internal/workers/heartbeat.
type HeartbeatRequest struct {
	WorkerID    string `json:"worker_id"`
	CurrentLoad int    `json:"current_load"`
}

// WorkerInfo is one entry of GET /internal/workers.
type WorkerInfo struct {
	WorkerID      string    `json:"worker_id"`
	ModelID       string    `json:"model_id"`
	BackendURL    string    `json:"backend_url"`
	Capacity      int       `json:"capacity"`
	CurrentLoad   int       `json:"current_load"`
	Status        string    `json:"status"`
	CircuitState  string    `json:"circuit_state"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// WorkerListResponse is the body of GET /internal/workers.
type WorkerListResponse struct {
	Workers []WorkerInfo `json:"workers"`
	Total   int          `json:"total"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Log.Error().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{"code": code, "message": message},
	})
}

// RegisterWorkerHandler inserts or replaces a worker record.
func RegisterWorkerHandler(reg *controlplane.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
			return
		}
		if req.WorkerID == "" || req.ModelID == "" || req.BackendURL == "" {
			writeError(w, http.StatusBadRequest, "bad_request", "worker_id, model_id and backend_url are required")
			return
		}
		if req.Capacity <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "capacity must be positive")
			return
		}
		reg.Register(controlplane.WorkerRecord{
			WorkerID:   req.WorkerID,
			ModelID:    req.ModelID,
			BackendURL: req.BackendURL,
			Capacity:   req.Capacity,
		})
		metrics.SetWorkersRegistered(len(reg.List("")))
		writeJSON(w, http.StatusOK, map[string]string{"worker_id": req.WorkerID, "status": "registered"})
	}
}

// HeartbeatHandler refreshes a worker's liveness and load. Unknown ids get a
// 404 so the worker restarts its registration sequence.
func HeartbeatHandler(reg *controlplane.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req HeartbeatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
			return
		}
		if req.WorkerID == "" || req.CurrentLoad < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "worker_id required and current_load must be non-negative")
			return
		}
		if err := reg.Heartbeat(req.WorkerID, req.CurrentLoad); err != nil {
			if errors.Is(err, controlplane.ErrUnknownWorker) {
				writeError(w, http.StatusNotFound, "unknown_worker", "worker is not registered")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ListWorkersHandler returns a point-in-time snapshot, optionally filtered
// by model_id.
func ListWorkersHandler(reg *controlplane.Registry, breakers *controlplane.BreakerBoard, heartbeatTimeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		records := reg.List(r.URL.Query().Get("model_id"))
		infos := make([]WorkerInfo, 0, len(records))
		for _, rec := range records {
			infos = append(infos, WorkerInfo{
				WorkerID:      rec.WorkerID,
				ModelID:       rec.ModelID,
				BackendURL:    rec.BackendURL,
				Capacity:      rec.Capacity,
				CurrentLoad:   rec.CurrentLoad,
				Status:        string(rec.Status(now, heartbeatTimeout)),
				CircuitState:  string(breakers.Snapshot(rec.WorkerID).State),
				LastHeartbeat: rec.LastHeartbeat,
			})
		}
		writeJSON(w, http.StatusOK, WorkerListResponse{Workers: infos, Total: len(infos)})
	}
}

// EvictWorkerHandler removes a worker on operator request. Breaker history
// is kept.
func EvictWorkerHandler(reg *controlplane.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workerID := chi.URLParam(r, "worker_id")
		if !reg.Evict(workerID) {
			writeError(w, http.StatusNotFound, "unknown_worker", "worker is not registered")
			return
		}
		metrics.SetWorkersRegistered(len(reg.List("")))
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
