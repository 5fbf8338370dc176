package controlplane

import (
	"math"
	"time"
)

// WorkerStatus is derived from heartbeat age, never stored.
type WorkerStatus string

const (
	StatusHealthy WorkerStatus = "healthy"
	StatusStale   WorkerStatus = "stale"
)

// WorkerRecord is one registered worker. The registry owns the canonical
// copy; everything handed out is a value snapshot.
type WorkerRecord struct {
	WorkerID      string
	ModelID       string
	BackendURL    string
	Capacity      int
	CurrentLoad   int
	LastHeartbeat time.Time
	RegisteredAt  time.Time
}

// LoadRatio compares workers of heterogeneous capacity fairly. A worker
// advertising no capacity sorts last.
func (w WorkerRecord) LoadRatio() float64 {
	if w.Capacity <= 0 {
		return math.Inf(1)
	}
	return float64(w.CurrentLoad) / float64(w.Capacity)
}

// Status derives the routing status from heartbeat age.
func (w WorkerRecord) Status(now time.Time, timeout time.Duration) WorkerStatus {
	if now.Sub(w.LastHeartbeat) > timeout {
		return StatusStale
	}
	return StatusHealthy
}
