// Package coordinator implements the network-facing grid coordinator: it
// serializes mutations through the job registry, grid-task registry, and
// resource ledger, and exposes the client- and agent-facing RPC surface
// described by the coordinator RPCs. It also implements the scheduler's
// JobSource/AgentSource/Assigner interfaces so the same matching algorithm
// runs embedded in this process.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Strob0t/CodeForge/internal/adapter/jobschema"
	"github.com/Strob0t/CodeForge/internal/adapter/otel"
	"github.com/Strob0t/CodeForge/internal/auditlog"
	"github.com/Strob0t/CodeForge/internal/domain/credential"
	"github.com/Strob0t/CodeForge/internal/domain/gridtask"
	"github.com/Strob0t/CodeForge/internal/domain/job"
	"github.com/Strob0t/CodeForge/internal/domain/resource"
	"github.com/Strob0t/CodeForge/internal/port/credentialstore"
	"github.com/Strob0t/CodeForge/internal/port/gridregistry"
	"github.com/Strob0t/CodeForge/internal/port/heartbeat"
	"github.com/Strob0t/CodeForge/internal/port/jobregistry"
	"github.com/Strob0t/CodeForge/internal/port/ledger"
	"github.com/Strob0t/CodeForge/internal/port/messagequeue"
	"github.com/Strob0t/CodeForge/internal/port/resultstore"
	"github.com/Strob0t/CodeForge/internal/resilience"
)

// GitResolver resolves a branch/tag deployment referent to a concrete
// commit or digest at add_job time.
type GitResolver interface {
	ResolveCommit(ctx context.Context, repoURL, ref string) (string, error)
}

// Deps bundles every port the coordinator delegates to.
type Deps struct {
	Jobs          jobregistry.Registry
	Grid          gridregistry.Registry
	Ledger        ledger.Ledger
	Credentials   credentialstore.Store
	Heartbeat     heartbeat.Monitor
	Queue         messagequeue.Queue
	Results       resultstore.Store
	Schema        *jobschema.Validator
	Audit         *auditlog.Recorder
	Git           GitResolver
	SecretBreaker *resilience.Breaker
	S3Breaker     *resilience.Breaker
	Log           *slog.Logger
}

// Coordinator is the concrete implementation of every coordinator RPC.
// Job state mutations are serialized per job id via the keyLocks helper,
// never behind one global lock (§4.5); agent capacity changes go through
// the ledger, which does its own locking.
type Coordinator struct {
	jobs        jobregistry.Registry
	grid        gridregistry.Registry
	ledger      ledger.Ledger
	credentials credentialstore.Store
	heartbeat   heartbeat.Monitor
	queue       messagequeue.Queue
	results     resultstore.Store
	schema      *jobschema.Validator
	audit       *auditlog.Recorder
	git         GitResolver

	secretBreaker *resilience.Breaker
	s3Breaker     *resilience.Breaker

	log *slog.Logger

	locks    keyLocks
	dispatch *dispatchState
}

// New wires a Coordinator from deps.
func New(d Deps) *Coordinator {
	return &Coordinator{
		jobs:          d.Jobs,
		grid:          d.Grid,
		ledger:        d.Ledger,
		credentials:   d.Credentials,
		heartbeat:     d.Heartbeat,
		queue:         d.Queue,
		results:       d.Results,
		schema:        d.Schema,
		audit:         d.Audit,
		git:           d.Git,
		secretBreaker: d.SecretBreaker,
		s3Breaker:     d.S3Breaker,
		log:           d.Log,
		locks:         newKeyLocks(),
		dispatch:      newDispatchState(),
	}
}

// keyLocks is a set of per-key mutexes, so job mutations serialize per job
// id instead of behind one global lock.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyLocks() keyLocks {
	return keyLocks{locks: make(map[string]*sync.Mutex)}
}

func (k *keyLocks) with(key string, fn func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	defer l.Unlock()
	fn()
}

// AddJob validates and inserts a job, resolving branch/tag deployments to a
// concrete commit or digest before storage (§9 open question, resolved at
// add_job time).
func (c *Coordinator) AddJob(ctx context.Context, j job.Job) (job.AddResult, error) {
	ctx, span := otel.StartRPCSpan(ctx, "add_job")
	defer span.End()

	if c.schema != nil {
		raw, err := json.Marshal(j)
		if err != nil {
			return "", fmt.Errorf("add_job: marshal for schema check: %w", err)
		}
		if err := c.schema.Validate(raw); err != nil {
			return "", fmt.Errorf("add_job: %w", err)
		}
	}
	if err := j.Validate(); err != nil {
		return "", fmt.Errorf("add_job: %w", err)
	}

	if err := c.resolveDeployments(ctx, &j); err != nil {
		return "", fmt.Errorf("add_job: %w", err)
	}

	j.SubmittedAt = timeNow()

	var result job.AddResult
	var addErr error
	c.locks.with(j.ID, func() {
		result, addErr = c.jobs.Add(j)
	})
	if addErr != nil {
		return "", fmt.Errorf("add_job: %w", addErr)
	}

	if result == job.AddResultAdded {
		if j.Spec.IsGrid() {
			c.grid.Register(j.ID)
		}
		c.audit.Record(j.ID, "add_job", "", string(result))
		c.publish(ctx, messagequeue.SubjectJobSubmitted, j.ID)
	}
	return result, nil
}

// resolveDeployments resolves GIT_REPO_BRANCH code deployments and
// CONTAINER_AT_TAG interpreter deployments to a concrete commit/digest,
// mutating j in place. SERVER_AVAILABLE_* and already-resolved deployments
// are left untouched.
func (c *Coordinator) resolveDeployments(ctx context.Context, j *job.Job) error {
	if j.CodeDeployment.Kind == job.CodeGitRepoBranch && c.git != nil {
		commit, err := c.git.ResolveCommit(ctx, j.CodeDeployment.RepoURL, j.CodeDeployment.Ref)
		if err != nil {
			return fmt.Errorf("resolve branch %s: %w", j.CodeDeployment.Ref, err)
		}
		j.CodeDeployment.Commit = commit
	}
	// CONTAINER_AT_TAG digest resolution requires a registry client, which
	// is out of scope for the local git-backed resolver; tags are dispatched
	// as submitted and re-resolved by the agent's pull at launch time.
	return nil
}

// AddTasksToGridJob appends tasks to jobID's queue, closing it if
// allTasksAdded is true (invariant 4, monotonic latch enforced by the
// registry).
func (c *Coordinator) AddTasksToGridJob(ctx context.Context, jobID string, tasks []gridtask.Task, allTasksAdded bool) (job.AddResult, error) {
	ctx, span := otel.StartRPCSpan(ctx, "add_tasks_to_grid_job")
	defer span.End()

	if !c.grid.IsGrid(jobID) {
		return "", fmt.Errorf("add_tasks_to_grid_job: %s is not a grid job", jobID)
	}

	var err error
	c.locks.with(jobID, func() {
		err = c.grid.AppendTasks(jobID, tasks, allTasksAdded)
	})
	if err != nil {
		return "", fmt.Errorf("add_tasks_to_grid_job: %w", err)
	}

	c.audit.Record(jobID, "add_tasks_to_grid_job", "", fmt.Sprintf("added=%d closed=%v", len(tasks), allTasksAdded))
	c.publish(ctx, messagequeue.SubjectJobSubmitted, jobID)
	return job.AddResultAdded, nil
}

// GetSimpleJobStates returns each id's process state, synthesizing the
// aggregate for grid job ids (§4.3).
func (c *Coordinator) GetSimpleJobStates(_ context.Context, ids []string) map[string]job.State {
	out := c.jobs.States(ids)
	for _, id := range ids {
		if c.grid.IsGrid(id) {
			out[id] = c.grid.SyntheticJobState(id)
		}
	}
	return out
}

// GetGridTaskStates returns jobID's per-task states, excluding ignore.
func (c *Coordinator) GetGridTaskStates(_ context.Context, jobID string, ignore map[int]bool) []gridregistry.TaskState {
	return c.grid.States(jobID, ignore)
}

// AddCredentials registers a credential source.
func (c *Coordinator) AddCredentials(_ context.Context, source credential.Source) error {
	if err := source.Validate(); err != nil {
		return fmt.Errorf("add_credentials: %w", err)
	}
	if err := c.credentials.Add(source); err != nil {
		return fmt.Errorf("add_credentials: %w", err)
	}
	return nil
}

// GetAgentStates returns a point-in-time snapshot of every agent's
// capacity.
func (c *Coordinator) GetAgentStates(_ context.Context) []AgentSnapshot {
	snaps := c.ledger.Snapshot()
	out := make([]AgentSnapshot, len(snaps))
	for i, s := range snaps {
		out[i] = AgentSnapshot{AgentID: s.AgentID, Totals: s.Totals, Available: s.Available}
	}
	return out
}

// AgentSnapshot is the get_agent_states response shape.
type AgentSnapshot struct {
	AgentID   string          `json:"agent_id"`
	Totals    resource.Vector `json:"totals"`
	Available resource.Vector `json:"available"`
}

func (c *Coordinator) publish(ctx context.Context, subject, payload string) {
	if c.queue == nil {
		return
	}
	if err := c.queue.Publish(ctx, subject, []byte(payload)); err != nil {
		c.log.WarnContext(ctx, "publish failed", "subject", subject, "error", err)
	}
}

var timeNow = func() time.Time { return time.Now().UTC() }
