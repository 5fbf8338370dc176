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
	"github.com/bytefuck/model-hub/internal/logx"
	"github.com/bytefuck/model-hub/internal/worker"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.WorkerConfig
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
		fmt.Printf("modelhub-worker version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	logx.Configure(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logx.Log.Fatal().Err(err).Msg("invalid worker configuration")
	}

	worker.RegisterMetrics(prometheus.DefaultRegisterer)

	state := worker.NewState(cfg.WorkerID, cfg.ModelID, cfg.Capacity)
	proxy := worker.NewProxy(cfg.BackendURL, cfg.RequestTimeout, state)
	registration := worker.NewRegistration(cfg, state)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.ListenPort), Handler: worker.NewRouter(state, proxy)}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Log.Fatal().Err(err).Msg("server error")
		}
	}()

	logx.Log.Info().Str("worker_id", cfg.WorkerID).Str("model_id", cfg.ModelID).Int("port", cfg.ListenPort).Msg("worker starting")
	if err := registration.Register(ctx); err != nil {
		logx.Log.Fatal().Err(err).Msg("registration failed")
	}
	if err := registration.RunHeartbeat(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logx.Log.Fatal().Err(err).Msg("heartbeat loop failed")
	}
}
