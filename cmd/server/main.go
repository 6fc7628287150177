package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gabrielsolarenergy/server/internal/app"
	"github.com/gabrielsolarenergy/server/internal/config"
	"github.com/gabrielsolarenergy/server/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	runtime, err := observability.InitRuntime(ctx, cfg)
	if err != nil {
		log.Fatalf("init observability: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := runtime.Shutdown(shutdownCtx); err != nil {
			runtime.Logger.Error("observability shutdown", "error", err)
		}
	}()

	a, err := app.New(ctx, cfg, runtime)
	if err != nil {
		runtime.Logger.Error("startup failed", "error", err)
		return
	}

	if err := a.Run(ctx); err != nil {
		runtime.Logger.Error("server exited", "error", err)
	}
}
