package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Strob0t/CodeForge/internal/adapter/coordinatorclient"
	"github.com/Strob0t/CodeForge/internal/adapter/gitlocal"
	"github.com/Strob0t/CodeForge/internal/adapter/k8srunner"
	"github.com/Strob0t/CodeForge/internal/adapter/subprocessrunner"
	"github.com/Strob0t/CodeForge/internal/config"
	"github.com/Strob0t/CodeForge/internal/git"
	"github.com/Strob0t/CodeForge/internal/logger"
	"github.com/Strob0t/CodeForge/internal/port/containerrunner"
	"github.com/Strob0t/CodeForge/internal/port/gitprovider"
	"github.com/Strob0t/CodeForge/internal/service/agentloop"
)

var _ agentloop.Client = (*coordinatorclient.Client)(nil)

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

	agentID := cfg.Agent.ID
	if agentID == "" {
		agentID = "agent-" + randomHex(8)
	}

	var runner containerrunner.Runner
	if cfg.Agent.UseKubernetes {
		runner, err = k8srunner.New(k8srunner.Config{
			InCluster:  cfg.K8s.InCluster,
			Kubeconfig: cfg.K8s.Kubeconfig,
			Namespace:  cfg.K8s.Namespace,
		})
		if err != nil {
			return fmt.Errorf("k8s runner: %w", err)
		}
	} else {
		runner = subprocessrunner.New()
	}

	gitPool := git.NewPool(cfg.Git.MaxConcurrent)
	var gitResolver gitprovider.Provider = gitlocal.NewProvider(gitPool)

	client := coordinatorclient.New(cfg.Agent.CoordinatorURL)

	loop := agentloop.New(agentloop.Config{
		AgentID:      agentID,
		Totals:       cfg.Agent.Totals,
		JobAffinity:  cfg.Agent.JobAffinity,
		PollInterval: cfg.Agent.PollInterval,
		WorkDir:      cfg.Agent.WorkDir,
	}, client, runner, gitResolver, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("agent starting", "agent_id", agentID, "coordinator_url", cfg.Agent.CoordinatorURL)
	return loop.Run(ctx)
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
