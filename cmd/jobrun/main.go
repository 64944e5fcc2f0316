// Command jobrun submits one COMMAND job to a coordinator and polls its
// state until terminal, for smoke-testing a deployment without standing up
// a full agent.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Strob0t/CodeForge/internal/adapter/coordinatorclient"
	"github.com/Strob0t/CodeForge/internal/domain/job"
	"github.com/Strob0t/CodeForge/internal/domain/resource"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		coordinatorURL = flag.String("coordinator", "http://localhost:8080", "coordinator base URL")
		jobID          = flag.String("id", "", "job id (required)")
		priority       = flag.Float64("priority", 1.0, "scheduling priority")
		interpreter    = flag.String("interpreter", "/usr/bin/env", "SERVER_AVAILABLE_INTERPRETER path")
		codeFolder     = flag.String("code-folder", "/tmp", "SERVER_AVAILABLE_FOLDER path")
		cpu            = flag.Float64("cpu", 1, "cpu resource requirement")
		memoryGiB      = flag.Float64("memory-gib", 1, "memory (GiB) resource requirement")
		pollInterval   = flag.Duration("poll-interval", 2*time.Second, "state poll interval")
		timeout        = flag.Duration("timeout", 5*time.Minute, "overall timeout")
		args           = flag.String("args", "", "comma-separated command args")
	)
	flag.Parse()

	if *jobID == "" {
		return fmt.Errorf("-id is required")
	}

	var cmdArgs []string
	if *args != "" {
		cmdArgs = strings.Split(*args, ",")
	}

	j := job.Job{
		ID:                    *jobID,
		Priority:              *priority,
		CodeDeployment:        job.CodeDeployment{Kind: job.CodeServerAvailableFolder, Paths: []string{*codeFolder}},
		InterpreterDeployment: job.InterpreterDeployment{Kind: job.InterpreterServerAvailable, InterpreterPath: *interpreter},
		ResourceRequirement:   resource.Vector{"cpu": *cpu, "memory_gib": *memoryGiB},
		Spec:                  job.Spec{Kind: job.SpecCommand, Args: cmdArgs},
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := coordinatorclient.New(*coordinatorURL)

	result, err := client.AddJob(ctx, j)
	if err != nil {
		return fmt.Errorf("add_job: %w", err)
	}
	fmt.Printf("add_job(%s) -> %s\n", j.ID, result)

	ticker := time.NewTicker(*pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for job %s to reach a terminal state", j.ID)
		case <-ticker.C:
			states, err := client.GetSimpleJobStates(ctx, []string{j.ID})
			if err != nil {
				return fmt.Errorf("get_simple_job_states: %w", err)
			}
			state, ok := states[j.ID]
			if !ok {
				continue
			}
			fmt.Printf("job %s: %s\n", j.ID, state)
			if state.IsTerminal() {
				if state != job.StateSucceeded {
					return fmt.Errorf("job %s finished in %s", j.ID, state)
				}
				return nil
			}
		}
	}
}
