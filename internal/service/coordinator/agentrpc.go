package coordinator

import (
	"context"
	"fmt"

	"github.com/Strob0t/CodeForge/internal/adapter/otel"
	"github.com/Strob0t/CodeForge/internal/domain/credential"
	"github.com/Strob0t/CodeForge/internal/domain/gridtask"
	"github.com/Strob0t/CodeForge/internal/domain/job"
	"github.com/Strob0t/CodeForge/internal/domain/resource"
	"github.com/Strob0t/CodeForge/internal/port/messagequeue"
	"github.com/Strob0t/CodeForge/internal/port/resultstore"
	"github.com/Strob0t/CodeForge/internal/resilience"
)

// JobToRun is one assignment handed back to an agent's poll, carrying
// whatever credentials its deployments require.
type JobToRun struct {
	Job                   job.Job          `json:"job"`
	GridWorkerID          string           `json:"grid_worker_id,omitempty"`
	CodeCredentials       *credential.Resolved `json:"code_credentials,omitempty"`
	InterpreterCredentials *credential.Resolved `json:"interpreter_credentials,omitempty"`
}

// StateUpdate is one entry of an agent's update_job_states batch.
type StateUpdate struct {
	JobID        string             `json:"job_id"`
	GridWorkerID string             `json:"grid_worker_id,omitempty"`
	Outcome      job.ProcessOutcome `json:"outcome"`
}

// RegisterAgent records agentID's capacity (or re-registers it, resetting
// available and releasing prior reservations per §4.2) and refreshes its
// heartbeat.
func (c *Coordinator) RegisterAgent(ctx context.Context, agentID string, totals resource.Vector, jobAffinity string) error {
	ctx, span := otel.StartRPCSpan(ctx, "register_agent")
	defer span.End()

	if err := c.ledger.Register(agentID, totals, jobAffinity); err != nil {
		return fmt.Errorf("register_agent: %w", err)
	}
	if err := c.heartbeat.Touch(ctx, agentID); err != nil {
		return fmt.Errorf("register_agent: heartbeat: %w", err)
	}
	c.publish(ctx, messagequeue.SubjectAgentRegistered, agentID)
	return nil
}

// GetNextJobs refreshes agentID's heartbeat and returns every assignment
// the scheduler has made for it since the last poll: the dispatch queue is
// populated by Assigner.AssignJob/AssignGridWorker (see scheduling.go) and
// drained here.
func (c *Coordinator) GetNextJobs(ctx context.Context, agentID string, jobAffinity string) ([]JobToRun, error) {
	ctx, span := otel.StartRPCSpan(ctx, "get_next_jobs")
	defer span.End()

	if err := c.heartbeat.Touch(ctx, agentID); err != nil {
		return nil, fmt.Errorf("get_next_jobs: heartbeat: %w", err)
	}

	assignments := c.drainDispatchQueue(agentID)
	out := make([]JobToRun, 0, len(assignments))
	for _, a := range assignments {
		jtr, err := c.buildJobToRun(ctx, a)
		if err != nil {
			c.log.ErrorContext(ctx, "build job to run failed", "job_id", a.jobID, "error", err)
			continue
		}
		out = append(out, jtr)
	}
	return out, nil
}

func (c *Coordinator) buildJobToRun(ctx context.Context, a dispatchedAssignment) (JobToRun, error) {
	rec, ok := c.jobs.Get(a.jobID)
	if !ok {
		return JobToRun{}, fmt.Errorf("assigned job %s vanished from registry", a.jobID)
	}

	jtr := JobToRun{Job: rec.Job, GridWorkerID: a.workerID}

	if rec.Job.CodeDeployment.RepoURL != "" {
		cred, err := c.resolveCredential(ctx, credential.ServiceGit, rec.Job.CodeDeployment.RepoURL)
		if err != nil {
			return JobToRun{}, fmt.Errorf("resolve code credentials: %w", err)
		}
		jtr.CodeCredentials = cred
	}
	if rec.Job.InterpreterDeployment.UsesContainer() {
		cred, err := c.resolveCredential(ctx, credential.ServiceDocker, rec.Job.InterpreterDeployment.Repository)
		if err != nil {
			return JobToRun{}, fmt.Errorf("resolve interpreter credentials: %w", err)
		}
		jtr.InterpreterCredentials = cred
	}
	return jtr, nil
}

// resolveCredential resolves against the credential store, breaker-wrapped
// since the store's secret-manager reference kind crosses a real network
// boundary (§4.5); a missing match is not an error, just no credentials.
func (c *Coordinator) resolveCredential(ctx context.Context, service credential.Service, url string) (*credential.Resolved, error) {
	if url == "" {
		return nil, nil
	}
	var resolved credential.Resolved
	var found bool
	err := c.secretBreaker.Execute(func() error {
		r, ok, err := c.credentials.Resolve(ctx, service, url)
		if err != nil {
			return err
		}
		resolved, found = r, ok
		return nil
	})
	if err != nil {
		if err == resilience.ErrCircuitOpen {
			c.log.WarnContext(ctx, "credential resolution circuit open, dispatching without credentials", "service", service)
			return nil, nil
		}
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &resolved, nil
}

// UpdateJobStates applies a batch of agent-reported state transitions.
// Terminal states of non-grid jobs release the agent's reservation
// immediately; updates for grid jobs release nothing here (see
// releaseNonGridReservation).
func (c *Coordinator) UpdateJobStates(ctx context.Context, agentID string, updates []StateUpdate) error {
	ctx, span := otel.StartRPCSpan(ctx, "update_job_states")
	defer span.End()

	if err := c.heartbeat.Touch(ctx, agentID); err != nil {
		return fmt.Errorf("update_job_states: heartbeat: %w", err)
	}

	for _, u := range updates {
		c.applyJobStateUpdate(ctx, agentID, u)
	}
	return nil
}

func (c *Coordinator) applyJobStateUpdate(ctx context.Context, agentID string, u StateUpdate) {
	c.offloadLargeResult(ctx, u.JobID, &u.Outcome)

	c.locks.with(u.JobID, func() {
		c.jobs.UpdateState(u.JobID, u.Outcome)
		c.audit.Record(u.JobID, "update_job_states", agentID, string(u.Outcome.State))

		if u.Outcome.State.IsTerminal() {
			c.releaseNonGridReservation(ctx, u.JobID, agentID)
		}
	})
}

// offloadLargeResult moves outcome.ResultPickle to blob storage, breaker
// wrapped since it crosses a real network boundary, replacing the inline
// bytes with a reference once it exceeds resultstore.InlineThresholdBytes.
// A breaker trip or upload failure leaves the pickle inline rather than
// failing the whole state update.
func (c *Coordinator) offloadLargeResult(ctx context.Context, jobID string, outcome *job.ProcessOutcome) {
	if c.results == nil || len(outcome.ResultPickle) <= resultstore.InlineThresholdBytes {
		return
	}
	key := fmt.Sprintf("%s/%d", jobID, len(outcome.ResultPickle))
	var ref string
	err := c.s3Breaker.Execute(func() error {
		r, err := c.results.Put(ctx, key, outcome.ResultPickle)
		if err != nil {
			return err
		}
		ref = r
		return nil
	})
	if err != nil {
		c.log.WarnContext(ctx, "result offload failed, keeping inline", "job_id", jobID, "error", err)
		return
	}
	outcome.ResultBlobRef = ref
	outcome.ResultPickle = nil
}

// releaseNonGridReservation releases a non-grid job's reservation on
// terminal state and publishes a state-updated event; no-op for jobs the grid registry
// owns, whose release is driven by dequeue-closed-empty instead.
func (c *Coordinator) releaseNonGridReservation(ctx context.Context, jobID, agentID string) {
	if c.grid.IsGrid(jobID) {
		return
	}
	rec, ok := c.jobs.Get(jobID)
	if !ok {
		return
	}
	if err := c.ledger.Release(agentID, rec.Job.ResourceRequirement); err != nil {
		c.log.ErrorContext(ctx, "release reservation failed", "job_id", jobID, "agent_id", agentID, "error", err)
		return
	}
	c.publish(ctx, messagequeue.SubjectStateUpdated, jobID)
}

// UpdateGridTaskStateAndGetNext reports taskID's outcome (skipped when
// taskID is negative, i.e. the worker's first call) and returns the next
// task for workerID. A returned task with TaskID -1 signals the queue is
// closed; the agent then exits the worker loop and the coordinator releases
// its reservation.
func (c *Coordinator) UpdateGridTaskStateAndGetNext(ctx context.Context, jobID, workerID string, taskID int, outcome job.ProcessOutcome) (gridtask.Task, error) {
	ctx, span := otel.StartGridTaskSpan(ctx, jobID, taskID)
	defer span.End()

	if taskID >= 0 {
		c.offloadLargeResult(ctx, jobID, &outcome)
		c.grid.UpdateTask(jobID, taskID, outcome)
		c.audit.Record(jobID, "update_grid_task_state_and_get_next", workerID, fmt.Sprintf("task=%d state=%s", taskID, outcome.State))
	}

	next, ok, closed := c.grid.Dequeue(jobID, workerID)
	if ok {
		return next, nil
	}

	if closed {
		c.releaseGridWorker(ctx, jobID, workerID)
		return gridtask.Task{TaskID: -1}, nil
	}
	return gridtask.Task{TaskID: -1}, nil
}

// releaseGridWorker drops workerID's bookkeeping and releases its agent's
// reservation once dequeue has signaled the queue is closed and drained.
func (c *Coordinator) releaseGridWorker(ctx context.Context, jobID, workerID string) {
	agentID := c.agentForWorker(jobID, workerID)
	if agentID == "" {
		return
	}
	c.grid.RemoveWorker(jobID, agentID)

	rec, ok := c.jobs.Get(jobID)
	if !ok {
		return
	}
	if err := c.ledger.Release(agentID, rec.Job.ResourceRequirement); err != nil {
		c.log.ErrorContext(ctx, "release grid worker reservation failed", "job_id", jobID, "worker_id", workerID, "error", err)
		return
	}
	c.publish(ctx, messagequeue.SubjectStateUpdated, jobID)
}

// AgentLost handles a heartbeat-timeout eviction (§5, scenario 6): every
// job/task the agent owned moves to ERROR_GETTING_STATE, its reservations
// are dropped with the ledger entry itself, and the agent is removed.
func (c *Coordinator) AgentLost(ctx context.Context, agentID string) {
	c.log.WarnContext(ctx, "agent lost", "agent_id", agentID)

	for _, rec := range c.jobsAssignedTo(agentID) {
		c.locks.with(rec.Job.ID, func() {
			if rec.Outcome.State.IsTerminal() {
				return
			}
			c.jobs.UpdateState(rec.Job.ID, job.ProcessOutcome{State: job.StateErrorGettingState})
			c.audit.Record(rec.Job.ID, "agent_lost", agentID, "")
		})
	}

	for _, ref := range c.grid.WorkersByAgent(agentID) {
		for _, taskID := range c.grid.OrphanWorkerTasks(ref.JobID, ref.WorkerID) {
			c.grid.UpdateTask(ref.JobID, taskID, job.ProcessOutcome{State: job.StateErrorGettingState})
		}
		c.grid.RemoveWorker(ref.JobID, agentID)
	}

	if err := c.ledger.Remove(agentID); err != nil {
		c.log.ErrorContext(ctx, "remove lost agent failed", "agent_id", agentID, "error", err)
	}
	if err := c.heartbeat.Forget(ctx, agentID); err != nil {
		c.log.ErrorContext(ctx, "forget lost agent heartbeat failed", "agent_id", agentID, "error", err)
	}
	c.publish(ctx, messagequeue.SubjectAgentLost, agentID)
}

func (c *Coordinator) jobsAssignedTo(agentID string) []job.Record {
	var out []job.Record
	for _, id := range c.jobs.AllIDs() {
		rec, ok := c.jobs.Get(id)
		if ok && rec.AssignedAgent == agentID {
			out = append(out, rec)
		}
	}
	return out
}

// WatchLostAgents forwards heartbeat.Monitor's Lost channel to AgentLost
// until ctx is cancelled.
func (c *Coordinator) WatchLostAgents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-c.heartbeat.Lost():
			if !ok {
				return
			}
			c.AgentLost(ctx, id)
		}
	}
}
