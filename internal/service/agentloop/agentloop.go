// Package agentloop implements the agent-side register/poll/execute/report
// cycle (§4.6): register once, then repeatedly ask the coordinator for work,
// launch it through a containerrunner.Runner, and report outcomes back.
package agentloop

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Strob0t/CodeForge/internal/domain/gridtask"
	"github.com/Strob0t/CodeForge/internal/domain/job"
	"github.com/Strob0t/CodeForge/internal/domain/resource"
	"github.com/Strob0t/CodeForge/internal/port/containerrunner"
	"github.com/Strob0t/CodeForge/internal/port/gitprovider"
	"github.com/Strob0t/CodeForge/internal/service/coordinator"
)

// Client is everything the loop needs from the coordinator. cmd/agent
// satisfies it with an HTTP client against a remote coordinator; tests
// satisfy it in-process.
type Client interface {
	RegisterAgent(ctx context.Context, agentID string, totals resource.Vector, jobAffinity string) error
	GetNextJobs(ctx context.Context, agentID, jobAffinity string) ([]coordinator.JobToRun, error)
	UpdateJobStates(ctx context.Context, agentID string, updates []coordinator.StateUpdate) error
	UpdateGridTaskStateAndGetNext(ctx context.Context, jobID, workerID string, taskID int, outcome job.ProcessOutcome) (gridtask.Task, error)
}

// JobToRun.InterpreterCredentials is resolved by the coordinator but not
// consumed here: containerrunner.Runner has no per-launch auth hook, so
// registry authentication is left to the runtime environment (a
// pre-authenticated docker daemon, or k8s imagePullSecrets configured
// alongside the cluster itself) rather than plumbed through Spec.

// Config parameterizes one Loop instance.
type Config struct {
	AgentID      string
	Totals       resource.Vector
	JobAffinity  string // restricts this agent to one job id; empty for general-purpose agents
	PollInterval time.Duration
	WorkDir      string // scratch root for cloned code and log files
}

// Loop drives one agent's lifecycle against a Client.
type Loop struct {
	cfg     Config
	client  Client
	runner  containerrunner.Runner
	git     gitprovider.Provider
	log     *slog.Logger
	wg      sync.WaitGroup
	running sync.Map // job id (or worker id) -> struct{}, dedupes concurrent delivery
}

// New creates a Loop. git may be nil if no GIT_REPO_* deployments are used.
func New(cfg Config, client Client, runner containerrunner.Runner, git gitprovider.Provider, log *slog.Logger) *Loop {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Loop{cfg: cfg, client: client, runner: runner, git: git, log: log}
}

// Run registers the agent and polls until ctx is cancelled, blocking until
// every in-flight job/worker goroutine it launched has returned.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.client.RegisterAgent(ctx, l.cfg.AgentID, l.cfg.Totals, l.cfg.JobAffinity); err != nil {
		return err
	}
	l.log.InfoContext(ctx, "agent registered", "agent_id", l.cfg.AgentID)

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.wg.Wait()
			return nil
		case <-ticker.C:
			l.pollOnce(ctx)
		}
	}
}

func (l *Loop) pollOnce(ctx context.Context) {
	assignments, err := l.client.GetNextJobs(ctx, l.cfg.AgentID, l.cfg.JobAffinity)
	if err != nil {
		l.log.ErrorContext(ctx, "get_next_jobs failed", "error", err)
		return
	}
	for _, a := range assignments {
		a := a
		key := a.Job.ID
		if a.GridWorkerID != "" {
			key = a.Job.ID + "/" + a.GridWorkerID
		}
		if _, already := l.running.LoadOrStore(key, struct{}{}); already {
			continue
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer l.running.Delete(key)

			if a.GridWorkerID != "" {
				l.runGridWorker(ctx, a)
			} else {
				l.runJob(ctx, a)
			}
		}()
	}
}
