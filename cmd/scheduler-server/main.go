package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Strob0t/CodeForge/internal/adapter/coordinatorclient"
	"github.com/Strob0t/CodeForge/internal/config"
	"github.com/Strob0t/CodeForge/internal/logger"
	"github.com/Strob0t/CodeForge/internal/resilience"
	"github.com/Strob0t/CodeForge/internal/service/scheduler"
)

// cmd/scheduler-server runs the matching algorithm out of process against a
// remote coordinator's /internal/scheduler/* surface, for deployments that
// want the scheduling loop scaled or restarted independently of the RPC
// front door in cmd/coordinator.
func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	client := coordinatorclient.New(cfg.Agent.CoordinatorURL)
	client.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	sched := scheduler.New(client, client, client, cfg.Coordinator.SchedulerTickRPS, cfg.Coordinator.SchedulerTickBurst)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("scheduler-server starting", "coordinator_url", cfg.Agent.CoordinatorURL)
	sched.Run(ctx, nil)
	return nil
}
