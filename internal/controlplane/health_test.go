package controlplane

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthCheckerEvictsStaleWorker(t *testing.T) {
	reg := NewRegistry()
	base := time.Now()
	reg.now = func() time.Time { return base }
	reg.Register(WorkerRecord{WorkerID: "w1", ModelID: "m", BackendURL: "http://127.0.0.1:1", Capacity: 1})

	h := NewHealthChecker(reg, time.Minute, time.Second, 3)
	h.now = func() time.Time { return base.Add(2 * time.Minute) }
	h.client.Timeout = 100 * time.Millisecond
	h.CheckOnce(context.Background())

	if _, ok := reg.Get("w1"); ok {
		t.Fatalf("expected stale worker evicted")
	}
}

func TestHealthCheckerKeepsFreshWorker(t *testing.T) {
	reg := NewRegistry()
	base := time.Now()
	reg.now = func() time.Time { return base }
	reg.Register(WorkerRecord{WorkerID: "w1", ModelID: "m", BackendURL: "http://127.0.0.1:1", Capacity: 1})

	h := NewHealthChecker(reg, time.Minute, time.Second, 3)
	h.now = func() time.Time { return base.Add(30 * time.Second) }
	h.CheckOnce(context.Background())

	if _, ok := reg.Get("w1"); !ok {
		t.Fatalf("fresh worker must not be evicted")
	}
}

func TestHealthCheckerProbeDefersEviction(t *testing.T) {
	probe := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected probe path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer probe.Close()

	reg := NewRegistry()
	base := time.Now()
	reg.now = func() time.Time { return base }
	reg.Register(WorkerRecord{WorkerID: "w1", ModelID: "m", BackendURL: probe.URL, Capacity: 1})

	h := NewHealthChecker(reg, time.Minute, time.Second, 2)
	h.now = func() time.Time { return base.Add(2 * time.Minute) }

	// Two sweeps deferred by successful probes, the third evicts anyway.
	h.CheckOnce(context.Background())
	if _, ok := reg.Get("w1"); !ok {
		t.Fatalf("first successful probe must defer eviction")
	}
	h.CheckOnce(context.Background())
	if _, ok := reg.Get("w1"); !ok {
		t.Fatalf("second successful probe must defer eviction")
	}
	h.CheckOnce(context.Background())
	if _, ok := reg.Get("w1"); ok {
		t.Fatalf("deferral cap reached; worker must be evicted")
	}
}

func TestHealthCheckerHeartbeatResetsDeferrals(t *testing.T) {
	probe := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer probe.Close()

	reg := NewRegistry()
	base := time.Now()
	reg.now = func() time.Time { return base }
	reg.Register(WorkerRecord{WorkerID: "w1", ModelID: "m", BackendURL: probe.URL, Capacity: 1})

	h := NewHealthChecker(reg, time.Minute, time.Second, 1)
	h.now = func() time.Time { return base.Add(2 * time.Minute) }
	h.CheckOnce(context.Background())
	if _, ok := reg.Get("w1"); !ok {
		t.Fatalf("expected deferral")
	}

	// A heartbeat arrives; the worker is fresh again and deferrals clear.
	reg.now = func() time.Time { return base.Add(2 * time.Minute) }
	if err := reg.Heartbeat("w1", 0); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	h.CheckOnce(context.Background())
	if _, ok := reg.Get("w1"); !ok {
		t.Fatalf("fresh worker must survive the sweep")
	}
	if h.deferrals["w1"] != 0 {
		t.Fatalf("deferral counter must reset on recovery")
	}
}

func TestHealthCheckerEvictionKeepsBreakerState(t *testing.T) {
	reg := NewRegistry()
	base := time.Now()
	reg.now = func() time.Time { return base }
	reg.Register(WorkerRecord{WorkerID: "w1", ModelID: "m", BackendURL: "http://127.0.0.1:1", Capacity: 1})

	breakers := NewBreakerBoard(1, time.Minute)
	failTimes(t, breakers, "w1", 1)

	h := NewHealthChecker(reg, time.Minute, time.Second, 3)
	h.now = func() time.Time { return base.Add(2 * time.Minute) }
	h.client.Timeout = 100 * time.Millisecond
	h.CheckOnce(context.Background())

	if s := breakers.Snapshot("w1"); s.State != BreakerOpen {
		t.Fatalf("eviction must not clear breaker state, got %+v", s)
	}
}
