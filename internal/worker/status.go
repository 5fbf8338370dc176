package worker

import (
	"sync"
	"time"
)

// Snapshot is the worker's self-reported status, served on GET /status.
type Snapshot struct {
	WorkerID      string    `json:"worker_id"`
	ModelID       string    `json:"model_id"`
	Capacity      int       `json:"capacity"`
	CurrentLoad   int       `json:"current_load"`
	Registered    bool      `json:"registered"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	LastError     string    `json:"last_error,omitempty"`
}

// State tracks the worker's in-flight load and registration status. The
// in-flight counter is the value reported in the next heartbeat; it is
// never pushed to the controller synchronously.
type State struct {
	mu   sync.RWMutex
	data Snapshot
}

func NewState(workerID, modelID string, capacity int) *State {
	return &State{data: Snapshot{WorkerID: workerID, ModelID: modelID, Capacity: capacity}}
}

// IncJobs claims one in-flight slot.
func (s *State) IncJobs() {
	s.mu.Lock()
	s.data.CurrentLoad++
	cur := s.data.CurrentLoad
	s.mu.Unlock()
	setCurrentJobs(cur)
}

// DecJobs releases one in-flight slot. The counter never goes negative.
func (s *State) DecJobs() {
	s.mu.Lock()
	if s.data.CurrentLoad > 0 {
		s.data.CurrentLoad--
	}
	cur := s.data.CurrentLoad
	s.mu.Unlock()
	setCurrentJobs(cur)
}

// CurrentLoad returns the in-flight count as of now.
func (s *State) CurrentLoad() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.CurrentLoad
}

func (s *State) SetRegistered(v bool) {
	s.mu.Lock()
	s.data.Registered = v
	s.mu.Unlock()
	setRegistered(v)
}

func (s *State) SetLastHeartbeat(t time.Time) {
	s.mu.Lock()
	s.data.LastHeartbeat = t
	s.mu.Unlock()
}

func (s *State) SetLastError(msg string) {
	s.mu.Lock()
	s.data.LastError = msg
	s.mu.Unlock()
}

// Get returns a copy of the current status.
func (s *State) Get() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}
