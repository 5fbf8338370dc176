package controlplane

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bytefuck/model-hub/internal/logx"
)

// ErrUnknownWorker is returned for heartbeats from ids that were never
// registered or have been evicted; the worker must re-register.
var ErrUnknownWorker = errors.New("unknown worker")

// Registry is the concurrency-safe membership table. It performs no I/O;
// eviction policy lives in the health checker.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*WorkerRecord
	byModel map[string]map[string]*WorkerRecord
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		byID:    make(map[string]*WorkerRecord),
		byModel: make(map[string]map[string]*WorkerRecord),
		now:     time.Now,
	}
}

// Register inserts rec or atomically replaces any record with the same id.
// The heartbeat clock starts (or restarts) at registration time.
func (r *Registry) Register(rec WorkerRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if prev, ok := r.byID[rec.WorkerID]; ok {
		r.removeFromModelLocked(prev)
	}
	rec.LastHeartbeat = now
	rec.RegisteredAt = now
	stored := rec
	r.byID[rec.WorkerID] = &stored
	models, ok := r.byModel[rec.ModelID]
	if !ok {
		models = make(map[string]*WorkerRecord)
		r.byModel[rec.ModelID] = models
	}
	models[rec.WorkerID] = &stored
	logx.Log.Info().Str("worker_id", rec.WorkerID).Str("model_id", rec.ModelID).Str("backend_url", rec.BackendURL).Int("capacity", rec.Capacity).Msg("worker registered")
}

// Heartbeat refreshes the liveness timestamp and last-reported load.
func (r *Registry) Heartbeat(workerID string, currentLoad int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[workerID]
	if !ok {
		return ErrUnknownWorker
	}
	rec.LastHeartbeat = r.now()
	rec.CurrentLoad = currentLoad
	logx.Log.Debug().Str("worker_id", workerID).Int("current_load", currentLoad).Msg("heartbeat")
	return nil
}

// Get returns a snapshot of a single record.
func (r *Registry) Get(workerID string) (WorkerRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[workerID]
	if !ok {
		return WorkerRecord{}, false
	}
	return *rec, true
}

// List returns point-in-time snapshots, filtered by model when modelID is
// non-empty, ordered by worker id.
func (r *Registry) List(modelID string) []WorkerRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var res []WorkerRecord
	if modelID != "" {
		for _, rec := range r.byModel[modelID] {
			res = append(res, *rec)
		}
	} else {
		for _, rec := range r.byID {
			res = append(res, *rec)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].WorkerID < res[j].WorkerID })
	return res
}

// Models returns the distinct model ids with at least one registered worker.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var models []string
	for m, workers := range r.byModel {
		if len(workers) > 0 {
			models = append(models, m)
		}
	}
	sort.Strings(models)
	return models
}

// Evict removes a record. It reports whether the id was present.
func (r *Registry) Evict(workerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[workerID]
	if !ok {
		return false
	}
	delete(r.byID, workerID)
	r.removeFromModelLocked(rec)
	logx.Log.Info().Str("worker_id", workerID).Str("model_id", rec.ModelID).Msg("worker evicted")
	return true
}

func (r *Registry) removeFromModelLocked(rec *WorkerRecord) {
	if models, ok := r.byModel[rec.ModelID]; ok {
		delete(models, rec.WorkerID)
		if len(models) == 0 {
			delete(r.byModel, rec.ModelID)
		}
	}
}
