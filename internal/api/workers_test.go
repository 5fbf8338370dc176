package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bytefuck/model-hub/internal/controlplane"
)

func newWorkersRouter(reg *controlplane.Registry, breakers *controlplane.BreakerBoard) http.Handler {
	r := chi.NewRouter()
	r.Post("/internal/workers/register", RegisterWorkerHandler(reg))
	r.Post("/internal/workers/heartbeat", HeartbeatHandler(reg))
	r.Get("/internal/workers", ListWorkersHandler(reg, breakers, time.Minute))
	r.Delete("/internal/workers/{worker_id}", EvictWorkerHandler(reg))
	return r
}

func TestRegisterWorker(t *testing.T) {
	reg := controlplane.NewRegistry()
	breakers := controlplane.NewBreakerBoard(5, time.Second)
	srv := httptest.NewServer(newWorkersRouter(reg, breakers))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/internal/workers/register", "application/json",
		strings.NewReader(`{"worker_id":"w1","model_id":"m","backend_url":"http://w1:8081","capacity":4}`))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if rec, ok := reg.Get("w1"); !ok || rec.Capacity != 4 {
		t.Fatalf("expected registered record, got %+v ok=%v", rec, ok)
	}
}

func TestRegisterWorkerRejectsBadInput(t *testing.T) {
	reg := controlplane.NewRegistry()
	breakers := controlplane.NewBreakerBoard(5, time.Second)
	srv := httptest.NewServer(newWorkersRouter(reg, breakers))
	defer srv.Close()

	cases := []string{
		`{`,
		`{"worker_id":"","model_id":"m","backend_url":"http://x","capacity":1}`,
		`{"worker_id":"w","model_id":"m","backend_url":"http://x","capacity":0}`,
		`{"worker_id":"w","model_id":"m","backend_url":"","capacity":1}`,
	}
	for _, body := range cases {
		resp, err := http.Post(srv.URL+"/internal/workers/register", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, resp.StatusCode)
		}
	}
	if len(reg.List("")) != 0 {
		t.Fatalf("malformed registrations must not create records")
	}
}

func TestHeartbeatUnknownWorkerReturns404(t *testing.T) {
	reg := controlplane.NewRegistry()
	breakers := controlplane.NewBreakerBoard(5, time.Second)
	srv := httptest.NewServer(newWorkersRouter(reg, breakers))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/internal/workers/heartbeat", "application/json",
		strings.NewReader(`{"worker_id":"ghost","current_load":1}`))
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if len(reg.List("")) != 0 {
		t.Fatalf("heartbeat must not create a record")
	}
}

func TestListWorkersReportsStatusAndCircuit(t *testing.T) {
	reg := controlplane.NewRegistry()
	breakers := controlplane.NewBreakerBoard(1, time.Minute)
	reg.Register(controlplane.WorkerRecord{WorkerID: "w1", ModelID: "m", BackendURL: "http://w1", Capacity: 2})
	adm, _ := breakers.Admit("w1")
	adm.Failure()

	srv := httptest.NewServer(newWorkersRouter(reg, breakers))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/internal/workers?model_id=m")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer resp.Body.Close()
	var list WorkerListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Total != 1 || len(list.Workers) != 1 {
		t.Fatalf("expected one worker, got %+v", list)
	}
	w := list.Workers[0]
	if w.Status != "healthy" || w.CircuitState != "open" {
		t.Fatalf("unexpected worker info: %+v", w)
	}
}

func TestEvictWorkerEndpoint(t *testing.T) {
	reg := controlplane.NewRegistry()
	breakers := controlplane.NewBreakerBoard(5, time.Second)
	reg.Register(controlplane.WorkerRecord{WorkerID: "w1", ModelID: "m", BackendURL: "http://w1", Capacity: 2})

	srv := httptest.NewServer(newWorkersRouter(reg, breakers))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/internal/workers/w1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("evict: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("evict again: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on missing worker, got %d", resp.StatusCode)
	}
}

func TestBearerAuthMiddleware(t *testing.T) {
	handler := BearerAuthMiddleware("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get with token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
}
