package config

import (
	"flag"
	"time"
)

// ControllerConfig holds configuration for the model-hub controller.
type ControllerConfig struct {
	Port           int           `yaml:"port"`
	APIKey         string        `yaml:"api_key"`
	WorkerKey      string        `yaml:"worker_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	LogLevel       string        `yaml:"log_level"`
	ConfigFile     string        `yaml:"-"`

	HeartbeatTimeout       time.Duration `yaml:"heartbeat_timeout"`
	HeartbeatCheckInterval time.Duration `yaml:"heartbeat_check_interval"`
	ProbeRetryLimit        int           `yaml:"probe_retry_limit"`

	BreakerFailureThreshold int           `yaml:"breaker_failure_threshold"`
	BreakerCooldown         time.Duration `yaml:"breaker_cooldown"`
}

// SetDefaults initializes c with built-in defaults.
func (c *ControllerConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 120 * time.Second
	}
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = 60 * time.Second
	}
	if c.HeartbeatCheckInterval == 0 {
		c.HeartbeatCheckInterval = 10 * time.Second
	}
	if c.ProbeRetryLimit == 0 {
		c.ProbeRetryLimit = 3
	}
	if c.BreakerFailureThreshold == 0 {
		c.BreakerFailureThreshold = 5
	}
	if c.BreakerCooldown == 0 {
		c.BreakerCooldown = 30 * time.Second
	}
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *ControllerConfig) ApplyEnv() {
	if v := getEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	c.Port = envInt("PORT", c.Port)
	if v := getEnv("API_KEY", ""); v != "" {
		c.APIKey = v
	}
	if v := getEnv("WORKER_KEY", ""); v != "" {
		c.WorkerKey = v
	}
	c.RequestTimeout = envDuration("REQUEST_TIMEOUT", c.RequestTimeout)
	c.HeartbeatTimeout = envDuration("HEARTBEAT_TIMEOUT", c.HeartbeatTimeout)
	c.HeartbeatCheckInterval = envDuration("HEARTBEAT_CHECK_INTERVAL", c.HeartbeatCheckInterval)
	c.ProbeRetryLimit = envInt("PROBE_RETRY_LIMIT", c.ProbeRetryLimit)
	c.BreakerFailureThreshold = envInt("BREAKER_FAILURE_THRESHOLD", c.BreakerFailureThreshold)
	c.BreakerCooldown = envDuration("BREAKER_COOLDOWN", c.BreakerCooldown)
}

// LoadFile overlays values from a YAML config file.
func (c *ControllerConfig) LoadFile(path string) error {
	return loadYAML(path, c)
}

// BindFlags binds command line flags using the current config values as defaults.
func (c *ControllerConfig) BindFlags() {
	flag.StringVar(&c.ConfigFile, "config", c.ConfigFile, "controller config file path")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	flag.IntVar(&c.Port, "port", c.Port, "HTTP listen port for the public API")
	flag.StringVar(&c.APIKey, "api-key", c.APIKey, "client API key required for HTTP requests; leave empty to disable auth")
	flag.StringVar(&c.WorkerKey, "worker-key", c.WorkerKey, "shared key workers must present on internal endpoints")
	flag.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "maximum duration to process a client request")
	flag.DurationVar(&c.HeartbeatTimeout, "heartbeat-timeout", c.HeartbeatTimeout, "age after which a worker without heartbeats is considered stale")
	flag.DurationVar(&c.HeartbeatCheckInterval, "heartbeat-check-interval", c.HeartbeatCheckInterval, "interval between health checker sweeps")
	flag.IntVar(&c.ProbeRetryLimit, "probe-retry-limit", c.ProbeRetryLimit, "number of successful liveness probes that may defer an eviction")
	flag.IntVar(&c.BreakerFailureThreshold, "breaker-failure-threshold", c.BreakerFailureThreshold, "consecutive failures before a worker circuit opens")
	flag.DurationVar(&c.BreakerCooldown, "breaker-cooldown", c.BreakerCooldown, "time an open circuit waits before admitting a trial request")
}
