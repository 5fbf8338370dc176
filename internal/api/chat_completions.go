package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/bytefuck/model-hub/internal/controlplane"
	"github.com/bytefuck/model-hub/internal/logx"
	"github.com/bytefuck/model-hub/internal/metrics"
)

// ChatCompletionsHandler routes POST /v1/chat/completions to the least
// loaded worker for the requested model and forwards the body byte for
// byte, streaming chunk by chunk when the client asked for a stream. The
// payload is opaque except for the model and stream fields. The breaker
// admission returned by Select is resolved from the observed outcome; the
// handler never retries against a different worker.
func ChatCompletionsHandler(rt *controlplane.Router, requestTimeout time.Duration) http.HandlerFunc {
	client := &http.Client{}
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "unreadable body")
			return
		}
		var meta struct {
			Model  string `json:"model"`
			Stream bool   `json:"stream"`
		}
		_ = json.Unmarshal(body, &meta)
		if meta.Model == "" {
			writeError(w, http.StatusBadRequest, "bad_request", "model is required")
			return
		}

		worker, adm, err := rt.Select(meta.Model)
		if err != nil {
			var rerr *controlplane.RoutingError
			if errors.As(err, &rerr) {
				metrics.RecordRoutingFailure(meta.Model)
				writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
					"error": map[string]string{"code": rerr.Reason, "message": rerr.Error(), "model": rerr.ModelID},
				})
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		reqID := chiMiddleware.GetReqID(r.Context())
		logx.Log.Info().Str("request_id", reqID).Str("worker_id", worker.WorkerID).Str("model", meta.Model).Bool("stream", meta.Stream).Msg("dispatch")

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		url := strings.TrimRight(worker.BackendURL, "/") + "/v1/chat/completions"
		upReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			adm.Failure()
			writeError(w, http.StatusBadGateway, "backend_failure", err.Error())
			return
		}
		upReq.Header.Set("Content-Type", "application/json")
		if v := r.Header.Get("Accept"); v != "" {
			upReq.Header.Set("Accept", v)
		}
		upReq.Header.Set("X-Request-Id", reqID)

		start := time.Now()
		resp, err := client.Do(upReq)
		if err != nil {
			// Connection errors and timeouts count against the breaker;
			// a vanished client does not.
			if r.Context().Err() != nil {
				adm.Release()
				return
			}
			adm.Failure()
			metrics.RecordModelRequest(meta.Model, false)
			logx.Log.Error().Err(err).Str("worker_id", worker.WorkerID).Msg("worker request failed")
			writeError(w, http.StatusBadGateway, "backend_failure", err.Error())
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
		var upstreamErr, clientErr error
		buf := make([]byte, 32*1024)
		for {
			n, rerr := resp.Body.Read(buf)
			if n > 0 {
				if _, werr := w.Write(buf[:n]); werr != nil {
					clientErr = werr
					break
				}
				if meta.Stream && flusher != nil {
					flusher.Flush()
				}
			}
			if rerr != nil {
				if rerr != io.EOF {
					upstreamErr = rerr
				}
				break
			}
		}

		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			adm.Failure()
			metrics.RecordModelRequest(meta.Model, false)
		case upstreamErr != nil && r.Context().Err() == nil:
			adm.Failure()
			metrics.RecordModelRequest(meta.Model, false)
			logx.Log.Error().Err(upstreamErr).Str("worker_id", worker.WorkerID).Msg("stream from worker failed")
		case clientErr != nil || r.Context().Err() != nil:
			adm.Release()
		default:
			adm.Success()
			metrics.RecordModelRequest(meta.Model, true)
		}
		metrics.ObserveRequestDuration(worker.WorkerID, meta.Model, time.Since(start))
	}
}
