package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WorkerConfig holds configuration for the model-hub worker.
type WorkerConfig struct {
	WorkerID      string `yaml:"worker_id"`
	ModelID       string `yaml:"model_id"`
	ControllerURL string `yaml:"controller_url"`
	BackendURL    string `yaml:"backend_url"`
	AdvertiseURL  string `yaml:"advertise_url"`
	ListenPort    int    `yaml:"listen_port"`
	Capacity      int    `yaml:"capacity"`
	WorkerKey     string `yaml:"worker_key"`
	LogLevel      string `yaml:"log_level"`
	ConfigFile    string `yaml:"-"`

	RequestTimeout    time.Duration `yaml:"request_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	RetryCount        int           `yaml:"registry_retry_count"`
	RetryDelay        time.Duration `yaml:"registry_retry_delay"`
}

// SetDefaults initializes c with built-in defaults. The worker id falls back
// to a random identity so multiple unnamed workers never collide.
func (c *WorkerConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.WorkerID == "" {
		c.WorkerID = "worker-" + uuid.NewString()[:8]
	}
	if c.ControllerURL == "" {
		c.ControllerURL = "http://localhost:8080"
	}
	if c.ListenPort == 0 {
		c.ListenPort = 8081
	}
	if c.Capacity == 0 {
		c.Capacity = 10
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 120 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
	if c.RetryCount == 0 {
		c.RetryCount = 30
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 5 * time.Second
	}
}

// EffectiveAdvertiseURL is the address registered with the controller; it
// defaults to the local listen port when not configured.
func (c *WorkerConfig) EffectiveAdvertiseURL() string {
	if c.AdvertiseURL != "" {
		return c.AdvertiseURL
	}
	return fmt.Sprintf("http://localhost:%d", c.ListenPort)
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *WorkerConfig) ApplyEnv() {
	if v := getEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("WORKER_ID", ""); v != "" {
		c.WorkerID = v
	}
	if v := getEnv("MODEL_ID", ""); v != "" {
		c.ModelID = v
	}
	if v := getEnv("CONTROLLER_URL", ""); v != "" {
		c.ControllerURL = v
	}
	if v := getEnv("BACKEND_URL", ""); v != "" {
		c.BackendURL = v
	}
	if v := getEnv("ADVERTISE_URL", ""); v != "" {
		c.AdvertiseURL = v
	}
	if v := getEnv("WORKER_KEY", ""); v != "" {
		c.WorkerKey = v
	}
	c.ListenPort = envInt("LISTEN_PORT", c.ListenPort)
	c.Capacity = envInt("CAPACITY", c.Capacity)
	c.RequestTimeout = envDuration("REQUEST_TIMEOUT", c.RequestTimeout)
	c.HeartbeatInterval = envDuration("HEARTBEAT_INTERVAL", c.HeartbeatInterval)
	c.RetryCount = envInt("REGISTRY_RETRY_COUNT", c.RetryCount)
	c.RetryDelay = envDuration("REGISTRY_RETRY_DELAY", c.RetryDelay)
}

// LoadFile overlays values from a YAML config file.
func (c *WorkerConfig) LoadFile(path string) error {
	return loadYAML(path, c)
}

// BindFlags binds command line flags using the current config values as defaults.
func (c *WorkerConfig) BindFlags() {
	flag.StringVar(&c.ConfigFile, "config", c.ConfigFile, "worker config file path")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	flag.StringVar(&c.WorkerID, "worker-id", c.WorkerID, "worker identifier")
	flag.StringVar(&c.ModelID, "model-id", c.ModelID, "logical model this worker serves")
	flag.StringVar(&c.ControllerURL, "controller-url", c.ControllerURL, "controller base URL")
	flag.StringVar(&c.BackendURL, "backend-url", c.BackendURL, "backend model service URL")
	flag.StringVar(&c.AdvertiseURL, "advertise-url", c.AdvertiseURL, "address the controller should use to reach this worker; defaults to the listen port on localhost")
	flag.IntVar(&c.ListenPort, "port", c.ListenPort, "worker HTTP listen port")
	flag.IntVar(&c.Capacity, "capacity", c.Capacity, "maximum concurrent requests advertised to the controller")
	flag.StringVar(&c.WorkerKey, "worker-key", c.WorkerKey, "shared key presented on internal controller endpoints")
	flag.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "maximum duration of a proxied backend request")
	flag.DurationVar(&c.HeartbeatInterval, "heartbeat-interval", c.HeartbeatInterval, "interval between heartbeats to the controller")
	flag.IntVar(&c.RetryCount, "registry-retry-count", c.RetryCount, "registration retries after the initial attempt before startup fails")
	flag.DurationVar(&c.RetryDelay, "registry-retry-delay", c.RetryDelay, "initial delay between registration attempts")
}

// Validate reports whether the worker has the identity fields required to register.
func (c *WorkerConfig) Validate() error {
	if c.ModelID == "" {
		return errMissing("model-id")
	}
	if c.BackendURL == "" {
		return errMissing("backend-url")
	}
	return nil
}

type missingFieldError string

func errMissing(field string) error { return missingFieldError(field) }

func (e missingFieldError) Error() string { return "missing required option: " + string(e) }
