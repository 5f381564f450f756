package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ecovision/api/internal/bootstrap"
	"ecovision/api/internal/config"
	"ecovision/api/internal/httpserver"
	"ecovision/api/internal/logging"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logging.New("ecovision-api", "info").Error("dotenv", "error", err)
	}
	cfg := config.Load()
	log := logging.New("ecovision-api", cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Build(ctx, cfg, log, "ecovision-api")
	if err != nil {
		log.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer rt.Close()
	go rt.Sessions.RunJanitor(ctx, cfg.SessionIdleTTL)

	h := httpserver.NewRouter(httpserver.Deps{
		Sessions:       rt.Sessions,
		Catalog:        rt.Catalog,
		Metrics:        rt.Metrics,
		Log:            log,
		Health:         rt.Health,
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})
	log.Info("analysis providers", "default", rt.Registry.Default().Name(), "available", rt.Registry.Names())

	if err := httpserver.Serve(ctx, ":"+cfg.Port, h, log); err != nil {
		log.Error("http server failed", "error", err)
		os.Exit(1)
	}
}
