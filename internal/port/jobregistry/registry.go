// Package jobregistry defines the job-registry port: the canonical,
// id-keyed store of submitted jobs and their process states.
package jobregistry

import (
	"github.com/Strob0t/CodeForge/internal/domain/job"
)

// Registry is the port interface for job storage and state transitions.
// Implementations enforce id uniqueness (invariant 1) and write-once
// terminal states (invariant 3).
type Registry interface {
	// Add inserts job with state RUN_REQUESTED. Returns IS_DUPLICATE without
	// altering existing state if id is already known.
	Add(j job.Job) (job.AddResult, error)

	// Get returns the full record for id, or false if unknown.
	Get(id string) (job.Record, bool)

	// States returns the raw process state for each id; unknown ids map to
	// StateUnknown. Grid job ids are returned as their own recorded state
	// (RUN_REQUESTED until a worker exists) — synthesizing the aggregate
	// grid state from task completion is the grid registry's job, composed
	// on top of this by the caller (§4.3).
	States(ids []string) map[string]job.State

	// UpdateState transitions id to outcome.State. A transition out of a
	// terminal state, or targeting an unknown id, is a no-op that the
	// implementation logs rather than errors on (so a slow/duplicate agent
	// report never fails the RPC).
	UpdateState(id string, outcome job.ProcessOutcome)

	// AssignAgent records that id was dispatched to agentID (non-grid jobs
	// only, invariant 7).
	AssignAgent(id, agentID string) error

	// Pending returns every job in RUN_REQUESTED with no agent assignment
	// yet, ordered by submission time (earliest first) — scheduler input.
	Pending() []job.Record

	// AllIDs returns every known job id, for iteration by callers that need
	// to sweep for lost-agent cleanup.
	AllIDs() []string
}
