package worker

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytefuck/model-hub/internal/logx"
)

// Proxy forwards completion requests to the backend model server while
// tracking in-flight load. The counter is held for the full duration of a
// streamed response and released unconditionally, including on backend
// errors and client disconnects.
type Proxy struct {
	backendURL string
	client     *http.Client
	state      *State
}

func NewProxy(backendURL string, timeout time.Duration, state *State) *Proxy {
	return &Proxy{
		backendURL: strings.TrimRight(backendURL, "/"),
		client:     &http.Client{Timeout: timeout},
		state:      state,
	}
}

// ChatCompletions handles POST /v1/chat/completions on the worker.
func (p *Proxy) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	p.state.IncJobs()
	start := time.Now()
	success := false
	defer func() {
		p.state.DecJobs()
		jobCompleted(success, time.Since(start))
	}()

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, p.backendURL+"/v1/chat/completions", r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if v := r.Header.Get("Accept"); v != "" {
		req.Header.Set("Accept", v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		logx.Log.Error().Err(err).Msg("backend request failed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		if _, werr := w.Write([]byte(`{"error":"backend_unreachable"}`)); werr != nil {
			logx.Log.Error().Err(werr).Msg("write backend error")
		}
		return
	}
	defer func() { _ = resp.Body.Close() }()

	for k, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				// Client went away; the deferred decrement still runs.
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				success = resp.StatusCode < http.StatusInternalServerError
			} else {
				logx.Log.Error().Err(rerr).Msg("backend stream failed")
			}
			return
		}
	}
}

// Health handles GET /health by probing the backend. The controller's
// active liveness probe consumes this endpoint.
func (p *Proxy) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	ok, reason := p.checkBackend(ctx)
	setBackendUp(ok)
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte(`{"status":"unhealthy","reason":"` + reason + `"}`)); err != nil {
			logx.Log.Error().Err(err).Msg("write health")
		}
		return
	}
	if _, err := w.Write([]byte(`{"status":"healthy"}`)); err != nil {
		logx.Log.Error().Err(err).Msg("write health")
	}
}

func (p *Proxy) checkBackend(ctx context.Context) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.backendURL+"/health", nil)
	if err != nil {
		return false, "bad backend url"
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, "backend unreachable"
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false, "backend unhealthy"
	}
	return true, ""
}
