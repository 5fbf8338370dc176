package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bytefuck/model-hub/internal/config"
	"github.com/bytefuck/model-hub/internal/controlplane"
	"github.com/bytefuck/model-hub/internal/logx"
	"github.com/bytefuck/model-hub/internal/metrics"
	"github.com/bytefuck/model-hub/internal/server"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.ControllerConfig
	cfg.SetDefaults()
	// Overlay order: defaults, file, env, flags.
	if path := config.ConfigFilePath(os.Args[1:]); path != "" {
		cfg.ConfigFile = path
		if err := cfg.LoadFile(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", path).Msg("load config")
		}
	}
	cfg.ApplyEnv()
	cfg.BindFlags()
	flag.Parse()
	if *showVersion {
		fmt.Printf("modelhub version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	logx.Configure(cfg.LogLevel)

	metrics.Register(prometheus.DefaultRegisterer)
	metrics.SetBuildInfo(version, buildSHA, buildDate)

	reg := controlplane.NewRegistry()
	breakers := controlplane.NewBreakerBoard(cfg.BreakerFailureThreshold, cfg.BreakerCooldown)
	rt := controlplane.NewRouter(reg, breakers, cfg.HeartbeatTimeout)
	checker := controlplane.NewHealthChecker(reg, cfg.HeartbeatTimeout, cfg.HeartbeatCheckInterval, cfg.ProbeRetryLimit)

	handler := server.New(reg, breakers, rt, cfg)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: handler}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go checker.Run(ctx)
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	if cfg.APIKey != "" {
		logx.Log.Info().Msg("API key auth enabled")
	}
	if cfg.WorkerKey != "" {
		logx.Log.Info().Msg("worker key required on internal endpoints")
	}
	logx.Log.Info().Int("port", cfg.Port).Msg("controller starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logx.Log.Fatal().Err(err).Msg("server error")
	}
}
