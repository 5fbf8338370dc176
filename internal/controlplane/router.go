package controlplane

import (
	"fmt"
	"time"

	"github.com/bytefuck/model-hub/internal/logx"
)

// ReasonNoHealthyWorker is the only routing failure reason: the model has no
// registered, healthy, breaker-admitted worker.
const ReasonNoHealthyWorker = "no_healthy_worker"

// RoutingError reports a failed selection. It is surfaced to clients as a
// 503 with the model id so they can decide whether to retry.
type RoutingError struct {
	Reason  string
	ModelID string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("%s: model %q", e.Reason, e.ModelID)
}

// Router picks a worker for a model. Selection is a pure in-memory
// computation over registry snapshots and breaker state; no I/O happens
// here.
type Router struct {
	reg              *Registry
	breakers         *BreakerBoard
	heartbeatTimeout time.Duration
	now              func() time.Time
}

func NewRouter(reg *Registry, breakers *BreakerBoard, heartbeatTimeout time.Duration) *Router {
	return &Router{reg: reg, breakers: breakers, heartbeatTimeout: heartbeatTimeout, now: time.Now}
}

// Select returns the healthy worker with the lowest load ratio for the
// model, along with the breaker admission the caller must resolve; ties go
// to the lexicographically smallest worker id. Workers with an open breaker
// are excluded; a half-open worker is eligible only if the single trial
// slot can be claimed. Load is a hint, not a limit: an at-capacity worker
// is still selectable.
func (r *Router) Select(modelID string) (WorkerRecord, Admission, error) {
	now := r.now()
	var candidates []WorkerRecord
	for _, rec := range r.reg.List(modelID) {
		if rec.Status(now, r.heartbeatTimeout) != StatusHealthy {
			continue
		}
		candidates = append(candidates, rec)
	}

	// List is id-ordered, so the first minimum wins ties deterministically.
	for len(candidates) > 0 {
		best := 0
		for i := 1; i < len(candidates); i++ {
			if candidates[i].LoadRatio() < candidates[best].LoadRatio() {
				best = i
			}
		}
		picked := candidates[best]
		if adm, ok := r.breakers.Admit(picked.WorkerID); ok {
			logx.Log.Debug().Str("worker_id", picked.WorkerID).Str("model_id", modelID).Float64("load_ratio", picked.LoadRatio()).Msg("worker selected")
			return picked, adm, nil
		}
		candidates = append(candidates[:best], candidates[best+1:]...)
	}
	return WorkerRecord{}, Admission{}, &RoutingError{Reason: ReasonNoHealthyWorker, ModelID: modelID}
}
