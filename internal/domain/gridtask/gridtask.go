// Package gridtask defines the per-task record tracked inside a grid job's
// append-only queue.
package gridtask

import "github.com/Strob0t/CodeForge/internal/domain/job"

// Task is one unit of work inside a grid job's queue.
type Task struct {
	TaskID    int    `json:"task_id"` // nonneg, unique within its grid job
	Argument  []byte `json:"argument"` // opaque serialized argument blob
	State     job.ProcessOutcome
	WorkerID  string `json:"worker_id,omitempty"` // set once dequeued
}

// Worker is a coordinator-minted logical identity for an agent's execution
// context on one grid job. It is never a host process id (§9 design note).
type Worker struct {
	WorkerID string
	AgentID  string
	JobID    string
}
