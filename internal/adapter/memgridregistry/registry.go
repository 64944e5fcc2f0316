// Package memgridregistry implements the gridregistry.Registry port as an
// in-process, mutex-guarded map keyed by grid job id.
package memgridregistry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Strob0t/CodeForge/internal/domain/gridtask"
	"github.com/Strob0t/CodeForge/internal/domain/job"
	"github.com/Strob0t/CodeForge/internal/port/gridregistry"
)

type gridJob struct {
	tasks       map[int]*gridtask.Task
	order       []int // arrival order, for FIFO dequeue
	dequeueHead int    // index into order of the next candidate to dequeue
	allAdded    bool

	workers   map[string]string // agent id -> worker id
	workerSeq int
}

// Registry is the in-memory implementation of gridregistry.Registry.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*gridJob
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{jobs: make(map[string]*gridJob)}
}

// Register marks jobID as a grid job.
func (r *Registry) Register(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensure(jobID)
}

func (r *Registry) ensure(jobID string) *gridJob {
	g, ok := r.jobs[jobID]
	if !ok {
		g = &gridJob{
			tasks:   make(map[int]*gridtask.Task),
			workers: make(map[string]string),
		}
		r.jobs[jobID] = g
	}
	return g
}

// IsGrid reports whether jobID was ever registered here.
func (r *Registry) IsGrid(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[jobID]
	return ok
}

// AppendTasks appends tasks in arrival order, each starting in
// RUN_REQUESTED (submission-time state, consistent with non-grid jobs).
// Rejects if the queue was already latched closed.
func (r *Registry) AppendTasks(jobID string, tasks []gridtask.Task, allAdded bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := r.ensure(jobID)
	if g.allAdded {
		return fmt.Errorf("memgridregistry: job %s: task list already closed", jobID)
	}

	for i := range tasks {
		t := tasks[i]
		if _, exists := g.tasks[t.TaskID]; exists {
			return fmt.Errorf("memgridregistry: job %s: duplicate task id %d", jobID, t.TaskID)
		}
		t.State = job.ProcessOutcome{State: job.StateRunRequested}
		t.WorkerID = ""
		stored := t
		g.tasks[t.TaskID] = &stored
		g.order = append(g.order, t.TaskID)
	}

	if allAdded {
		g.allAdded = true
	}
	return nil
}

// Dequeue pops the next unassigned task for jobID and records workerID as
// its owner.
func (r *Registry) Dequeue(jobID, workerID string) (gridtask.Task, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.jobs[jobID]
	if !ok {
		return gridtask.Task{}, false, true
	}

	for g.dequeueHead < len(g.order) {
		id := g.order[g.dequeueHead]
		t := g.tasks[id]
		g.dequeueHead++
		if t.WorkerID != "" {
			continue // already claimed, e.g. by a prior call before a retry
		}
		t.WorkerID = workerID
		return *t, true, g.allAdded
	}
	return gridtask.Task{}, false, g.allAdded
}

// UpdateTask transitions a task's state, write-once once terminal.
func (r *Registry) UpdateTask(jobID string, taskID int, outcome job.ProcessOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.jobs[jobID]
	if !ok {
		slog.Warn("memgridregistry: update task for unknown job", "job_id", jobID, "task_id", taskID)
		return
	}
	t, ok := g.tasks[taskID]
	if !ok {
		slog.Warn("memgridregistry: update unknown task", "job_id", jobID, "task_id", taskID)
		return
	}
	if t.State.State.IsTerminal() {
		slog.Warn("memgridregistry: ignoring state update past terminal state",
			"job_id", jobID, "task_id", taskID, "terminal_state", t.State.State)
		return
	}
	t.State = outcome
}

// States returns every task's state for jobID except those in ignore.
func (r *Registry) States(jobID string, ignore map[int]bool) []gridregistry.TaskState {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.jobs[jobID]
	if !ok {
		return nil
	}
	out := make([]gridregistry.TaskState, 0, len(g.tasks))
	for _, id := range g.order {
		if ignore[id] {
			continue
		}
		out = append(out, gridregistry.TaskState{TaskID: id, State: g.tasks[id].State.State})
	}
	return out
}

// SyntheticJobState computes the aggregate grid-job state: SUCCEEDED iff
// the queue is closed and every task SUCCEEDED; RUNNING otherwise — terminal
// failure reporting is deferred while any worker could still be retried by
// the caller's scheduling layer.
func (r *Registry) SyntheticJobState(jobID string) job.State {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.jobs[jobID]
	if !ok {
		return job.StateUnknown
	}
	if !g.allAdded {
		return job.StateRunning
	}
	for _, id := range g.order {
		if g.tasks[id].State.State != job.StateSucceeded {
			return job.StateRunning
		}
	}
	return job.StateSucceeded
}

// EnsureWorker registers agentID as running a worker for jobID if it
// doesn't already have one.
func (r *Registry) EnsureWorker(jobID, agentID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := r.ensure(jobID)
	if id, ok := g.workers[agentID]; ok {
		return id, false
	}
	g.workerSeq++
	workerID := fmt.Sprintf("%s-worker-%d", jobID, g.workerSeq)
	g.workers[agentID] = workerID
	return workerID, true
}

// HasWorker reports whether agentID already runs a worker for jobID.
func (r *Registry) HasWorker(jobID, agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.jobs[jobID]
	if !ok {
		return false
	}
	_, ok = g.workers[agentID]
	return ok
}

// RemoveWorker drops the bookkeeping entry for agentID on jobID.
func (r *Registry) RemoveWorker(jobID, agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.jobs[jobID]; ok {
		delete(g.workers, agentID)
	}
}

// WorkersByAgent returns (jobID, workerID) pairs owned by agentID.
func (r *Registry) WorkersByAgent(agentID string) []gridregistry.WorkerRef {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []gridregistry.WorkerRef
	for jobID, g := range r.jobs {
		if workerID, ok := g.workers[agentID]; ok {
			out = append(out, gridregistry.WorkerRef{JobID: jobID, WorkerID: workerID})
		}
	}
	return out
}

// OrphanWorkerTasks returns the non-terminal task ids jobID's workerID
// currently holds.
func (r *Registry) OrphanWorkerTasks(jobID, workerID string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.jobs[jobID]
	if !ok {
		return nil
	}
	var out []int
	for _, id := range g.order {
		t := g.tasks[id]
		if t.WorkerID == workerID && !t.State.State.IsTerminal() {
			out = append(out, id)
		}
	}
	return out
}
