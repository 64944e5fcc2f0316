package coordinator

import (
	"sync"

	"github.com/Strob0t/CodeForge/internal/domain/job"
	"github.com/Strob0t/CodeForge/internal/domain/resource"
	"github.com/Strob0t/CodeForge/internal/service/scheduler"
)

// dispatchedAssignment is one scheduler decision waiting to be delivered on
// an agent's next poll.
type dispatchedAssignment struct {
	jobID    string
	workerID string // empty for non-grid jobs
}

type workerKey struct {
	jobID    string
	workerID string
}

// dispatchState holds everything AssignJob/AssignGridWorker/GetNextJobs
// need that the job/grid registries themselves don't track: per-agent
// delivery queues and the worker-id -> agent-id reverse index.
type dispatchState struct {
	mu           sync.Mutex
	queues       map[string][]dispatchedAssignment // agent id -> pending deliveries
	workerOwners map[workerKey]string              // (job id, worker id) -> agent id
}

func newDispatchState() *dispatchState {
	return &dispatchState{
		queues:       make(map[string][]dispatchedAssignment),
		workerOwners: make(map[workerKey]string),
	}
}

func (d *dispatchState) enqueue(agentID string, a dispatchedAssignment) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queues[agentID] = append(d.queues[agentID], a)
}

func (d *dispatchState) drain(agentID string) []dispatchedAssignment {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.queues[agentID]
	delete(d.queues, agentID)
	return out
}

func (d *dispatchState) setWorkerOwner(jobID, workerID, agentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.workerOwners[workerKey{jobID, workerID}] = agentID
}

func (d *dispatchState) ownerOf(jobID, workerID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.workerOwners[workerKey{jobID, workerID}]
}

func (c *Coordinator) drainDispatchQueue(agentID string) []dispatchedAssignment {
	return c.dispatch.drain(agentID)
}

func (c *Coordinator) agentForWorker(jobID, workerID string) string {
	return c.dispatch.ownerOf(jobID, workerID)
}

// PendingDemand implements scheduler.JobSource: one Demand per unassigned
// non-grid job, plus one Demand per open grid job that excludes the agents
// already holding a worker on it.
func (c *Coordinator) PendingDemand() ([]scheduler.Demand, error) {
	var demand []scheduler.Demand

	for _, rec := range c.jobs.Pending() {
		if rec.Job.Spec.IsGrid() {
			continue // grid demand is handled below
		}
		demand = append(demand, scheduler.Demand{
			JobID:       rec.Job.ID,
			Priority:    rec.Job.Priority,
			SubmittedAt: rec.Job.SubmittedAt,
			Resource:    rec.Job.ResourceRequirement,
		})
	}

	// A grid job offers one unit of demand, excluding whichever agents
	// already hold a worker on it, as long as the queue isn't both closed
	// and fully drained (SyntheticJobState reads SUCCEEDED at that point).
	agents := c.ledger.Snapshot()
	for _, id := range c.jobs.AllIDs() {
		if !c.grid.IsGrid(id) {
			continue
		}
		rec, ok := c.jobs.Get(id)
		if !ok || rec.Outcome.State.IsTerminal() || c.grid.SyntheticJobState(id) == job.StateSucceeded {
			continue
		}

		excluded := make(map[string]bool)
		for _, a := range agents {
			if c.grid.HasWorker(id, a.AgentID) {
				excluded[a.AgentID] = true
			}
		}
		demand = append(demand, scheduler.Demand{
			JobID:          id,
			Priority:       rec.Job.Priority,
			SubmittedAt:    rec.Job.SubmittedAt,
			Resource:       rec.Job.ResourceRequirement,
			IsGrid:         true,
			ExcludedAgents: excluded,
		})
	}
	return demand, nil
}

// Agents implements scheduler.AgentSource.
func (c *Coordinator) Agents() ([]scheduler.Agent, error) {
	snaps := c.ledger.Snapshot()
	out := make([]scheduler.Agent, len(snaps))
	for i, s := range snaps {
		rec, _ := c.ledger.Get(s.AgentID)
		out[i] = scheduler.Agent{ID: s.AgentID, Available: s.Available, JobAffinity: rec.JobAffinity}
	}
	return out, nil
}

// Reserve implements scheduler.Assigner.
func (c *Coordinator) Reserve(agentID string, requirement resource.Vector) (bool, error) {
	return c.ledger.Reserve(agentID, requirement)
}

// AssignJob implements scheduler.Assigner for non-grid jobs. The job stays
// in RUN_REQUESTED until the agent itself reports RUNNING via
// update_job_states; AssignAgent alone is enough to drop it from Pending.
func (c *Coordinator) AssignJob(jobID, agentID string) error {
	if err := c.jobs.AssignAgent(jobID, agentID); err != nil {
		return err
	}
	c.dispatch.enqueue(agentID, dispatchedAssignment{jobID: jobID})
	c.audit.Record(jobID, "scheduler.assign", agentID, "")
	return nil
}

// AssignGridWorker implements scheduler.Assigner for grid jobs.
func (c *Coordinator) AssignGridWorker(jobID, agentID string) (string, error) {
	workerID, _ := c.grid.EnsureWorker(jobID, agentID)
	c.dispatch.setWorkerOwner(jobID, workerID, agentID)
	c.dispatch.enqueue(agentID, dispatchedAssignment{jobID: jobID, workerID: workerID})
	c.audit.Record(jobID, "scheduler.assign_grid_worker", agentID, workerID)
	return workerID, nil
}

// MarkUnschedulable implements scheduler.Assigner.
func (c *Coordinator) MarkUnschedulable(jobID string, _ resource.Vector) error {
	c.locks.with(jobID, func() {
		c.jobs.UpdateState(jobID, job.ProcessOutcome{State: job.StateResourcesNotAvailable})
	})
	c.audit.Record(jobID, "scheduler.mark_unschedulable", "", "")
	return nil
}

// FitsSomeAgent implements scheduler.Assigner.
func (c *Coordinator) FitsSomeAgent(requirement resource.Vector) bool {
	return c.ledger.FitsSomeAgent(requirement)
}
