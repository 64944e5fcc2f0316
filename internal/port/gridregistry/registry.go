// Package gridregistry defines the grid-task-registry port: the per-grid-job
// ordered task queue, worker bookkeeping, and synthetic aggregate state.
package gridregistry

import (
	"github.com/Strob0t/CodeForge/internal/domain/gridtask"
	"github.com/Strob0t/CodeForge/internal/domain/job"
)

// Registry is the port interface for grid-task storage.
type Registry interface {
	// AppendTasks appends tasks in arrival order. Rejects (returns an error)
	// if all_added was already latched true for jobID. If allAdded is true,
	// the queue closes after this call — invariant 4, monotonic latch.
	AppendTasks(jobID string, tasks []gridtask.Task, allAdded bool) error

	// Dequeue pops the next unassigned task for jobID, marks it
	// RUN_REQUESTED, and records workerID as its owner. Returns (task, true)
	// on success; (zero, false) if the queue is empty. Closed reports
	// whether the queue was closed at the moment of the empty return, so the
	// caller knows whether to keep polling or exit.
	Dequeue(jobID, workerID string) (t gridtask.Task, ok bool, closed bool)

	// UpdateTask transitions a task's state. Write-once once terminal
	// (invariant 3); unknown (jobID, taskID) pairs are logged and ignored.
	UpdateTask(jobID string, taskID int, outcome job.ProcessOutcome)

	// States returns every task's state for jobID except those whose id is
	// in ignore — supports incremental polling with a growing ignore set.
	States(jobID string, ignore map[int]bool) []TaskState

	// SyntheticJobState computes the aggregate grid-job state per §4.3:
	// SUCCEEDED iff closed and every task SUCCEEDED; terminal-failure
	// reporting is deferred (aggregate reads RUNNING) while workers remain;
	// RUNNING otherwise.
	SyntheticJobState(jobID string) job.State

	// EnsureWorker registers agentID as running a worker for jobID if it
	// doesn't already have one, minting a new worker id. Returns the worker
	// id and whether it was newly created.
	EnsureWorker(jobID, agentID string) (workerID string, created bool)

	// HasWorker reports whether agentID already runs a worker for jobID
	// (invariant 7: at most one worker per agent per grid job).
	HasWorker(jobID, agentID string) bool

	// RemoveWorker drops the bookkeeping entry once dequeue signals closed,
	// so the scheduler can release the agent's reservation.
	RemoveWorker(jobID, agentID string)

	// WorkersByAgent returns (jobID, workerID) pairs owned by agentID, for
	// agent-lost cleanup: every outstanding task they hold moves to
	// ERROR_GETTING_STATE.
	WorkersByAgent(agentID string) []WorkerRef

	// OrphanWorkerTasks returns the task ids jobID's workerID currently owns
	// in a non-terminal state, for agent-lost cleanup. It does not itself
	// change any task's state.
	OrphanWorkerTasks(jobID, workerID string) []int

	// IsGrid reports whether jobID was ever registered as a grid job here.
	IsGrid(jobID string) bool

	// Register marks jobID as a grid job, called once at add_job time.
	Register(jobID string)
}

// TaskState is a (task id, state) pair returned by States.
type TaskState struct {
	TaskID int       `json:"task_id"`
	State  job.State `json:"state"`
}

// WorkerRef identifies one worker owned by an agent.
type WorkerRef struct {
	JobID    string
	WorkerID string
}
