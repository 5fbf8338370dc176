package worker

import (
	"sync"
	"testing"
)

func TestStateConcurrentLoadTracking(t *testing.T) {
	s := NewState("w1", "m", 10)
	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			s.IncJobs()
			if s.CurrentLoad() < 1 {
				t.Errorf("load must be positive while a job is in flight")
			}
			s.DecJobs()
		}()
	}
	wg.Wait()
	if got := s.CurrentLoad(); got != 0 {
		t.Fatalf("expected zero load after all jobs finished, got %d", got)
	}
}

func TestStateDecJobsNeverNegative(t *testing.T) {
	s := NewState("w1", "m", 10)
	s.DecJobs()
	s.DecJobs()
	if got := s.CurrentLoad(); got != 0 {
		t.Fatalf("expected floor at zero, got %d", got)
	}
}

func TestStateSnapshotIsACopy(t *testing.T) {
	s := NewState("w1", "m", 4)
	s.SetLastError("boom")
	snap := s.Get()
	snap.LastError = "mutated"
	if got := s.Get().LastError; got != "boom" {
		t.Fatalf("snapshot mutation leaked into state: %q", got)
	}
	if snap.WorkerID != "w1" || snap.Capacity != 4 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
