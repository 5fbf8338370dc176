package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytefuck/model-hub/internal/config"
	"github.com/bytefuck/model-hub/internal/logx"
)

// maxRetryDelay caps the registration backoff.
const maxRetryDelay = 60 * time.Second

// retryDelay doubles the initial delay per attempt, capped at maxRetryDelay.
// The curve is a policy knob; the only hard requirement is that it never
// decreases.
func retryDelay(attempt int, initial time.Duration) time.Duration {
	d := initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}

// Registration registers the worker with the controller and keeps the
// heartbeat alive. The controller's health checker is the sole authority on
// eviction; a missed heartbeat here is only logged.
type Registration struct {
	cfg    config.WorkerConfig
	state  *State
	client *http.Client
	base   string
}

func NewRegistration(cfg config.WorkerConfig, state *State) *Registration {
	return &Registration{
		cfg:    cfg,
		state:  state,
		client: &http.Client{Timeout: 10 * time.Second},
		base:   strings.TrimRight(cfg.ControllerURL, "/"),
	}
}

// Register announces the worker to the controller, retrying up to
// RetryCount times with backoff after the initial attempt fails.
// Exhausting the retries is fatal to worker startup.
func (c *Registration) Register(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt-1, c.cfg.RetryDelay)
			logx.Log.Warn().Err(lastErr).Dur("backoff", delay).Int("attempt", attempt).Msg("registration failed; retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if lastErr = c.register(ctx); lastErr == nil {
			c.state.SetRegistered(true)
			c.state.SetLastError("")
			logx.Log.Info().Str("worker_id", c.cfg.WorkerID).Str("model_id", c.cfg.ModelID).Msg("registered with controller")
			return nil
		}
		c.state.SetLastError(lastErr.Error())
	}
	return fmt.Errorf("registration failed after %d retries: %w", c.cfg.RetryCount, lastErr)
}

// RunHeartbeat sends the current self-measured load every HeartbeatInterval
// until ctx is cancelled. A 404 means the controller no longer knows this
// worker; the full registration sequence restarts, and only an exhausted
// re-registration is fatal.
func (c *Registration) RunHeartbeat(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticker.C:
			err := c.heartbeat(ctx)
			switch {
			case err == nil:
				c.state.SetLastHeartbeat(t)
			case isUnknownWorker(err):
				logx.Log.Warn().Str("worker_id", c.cfg.WorkerID).Msg("controller dropped registration; re-registering")
				c.state.SetRegistered(false)
				if rerr := c.Register(ctx); rerr != nil {
					return rerr
				}
			default:
				logx.Log.Warn().Err(err).Msg("heartbeat failed")
				c.state.SetLastError(err.Error())
			}
		}
	}
}

type statusError int

func (e statusError) Error() string { return fmt.Sprintf("unexpected status %d", int(e)) }

func isUnknownWorker(err error) bool {
	se, ok := err.(statusError)
	return ok && int(se) == http.StatusNotFound
}

func (c *Registration) register(ctx context.Context) error {
	body := map[string]interface{}{
		"worker_id":   c.cfg.WorkerID,
		"model_id":    c.cfg.ModelID,
		"backend_url": c.cfg.EffectiveAdvertiseURL(),
		"capacity":    c.cfg.Capacity,
	}
	return c.post(ctx, "/internal/workers/register", body)
}

func (c *Registration) heartbeat(ctx context.Context) error {
	body := map[string]interface{}{
		"worker_id":    c.cfg.WorkerID,
		"current_load": c.state.CurrentLoad(),
	}
	return c.post(ctx, "/internal/workers/heartbeat", body)
}

func (c *Registration) post(ctx context.Context, path string, body interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.WorkerKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.WorkerKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode)
	}
	return nil
}
