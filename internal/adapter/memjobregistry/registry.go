// Package memjobregistry implements the jobregistry.Registry port as an
// in-process, mutex-guarded map keyed by job id.
package memjobregistry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Strob0t/CodeForge/internal/domain/job"
)

// Registry is the in-memory implementation of jobregistry.Registry.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*job.Record
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{records: make(map[string]*job.Record)}
}

// Add inserts j with state RUN_REQUESTED, or reports IS_DUPLICATE if the id
// is already known (invariant 1: resubmission is a no-op, not an error).
func (r *Registry) Add(j job.Job) (job.AddResult, error) {
	if err := j.Validate(); err != nil {
		return "", fmt.Errorf("memjobregistry: add %s: %w", j.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[j.ID]; exists {
		return job.AddResultIsDuplicate, nil
	}

	r.records[j.ID] = &job.Record{
		Job:     j,
		Outcome: job.ProcessOutcome{State: job.StateRunRequested},
	}
	return job.AddResultAdded, nil
}

// Get returns the full record for id.
func (r *Registry) Get(id string) (job.Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return job.Record{}, false
	}
	return *rec, true
}

// States returns the raw process state for each id; unknown ids map to
// StateUnknown.
func (r *Registry) States(ids []string) map[string]job.State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]job.State, len(ids))
	for _, id := range ids {
		if rec, ok := r.records[id]; ok {
			out[id] = rec.Outcome.State
		} else {
			out[id] = job.StateUnknown
		}
	}
	return out
}

// UpdateState transitions id to outcome.State. Out-of-terminal transitions
// and unknown ids are logged and dropped rather than erroring (invariant 3:
// terminal states are write-once; a late/duplicate agent report must never
// fail the RPC that carries it).
func (r *Registry) UpdateState(id string, outcome job.ProcessOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		slog.Warn("memjobregistry: update state for unknown job", "job_id", id)
		return
	}
	if rec.Outcome.State.IsTerminal() {
		slog.Warn("memjobregistry: ignoring state update past terminal state",
			"job_id", id, "terminal_state", rec.Outcome.State, "attempted_state", outcome.State)
		return
	}
	rec.Outcome = outcome
}

// AssignAgent records that id was dispatched to agentID.
func (r *Registry) AssignAgent(id, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return fmt.Errorf("memjobregistry: assign agent: unknown job %q", id)
	}
	rec.AssignedAgent = agentID
	return nil
}

// Pending returns every non-grid job in RUN_REQUESTED with no agent
// assignment yet, ordered by submission time (earliest first). Grid jobs
// are dispatched per-task by the grid registry, not per-job, so they never
// appear here.
func (r *Registry) Pending() []job.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []job.Record
	for _, rec := range r.records {
		if rec.Job.Spec.IsGrid() {
			continue
		}
		if rec.Outcome.State == job.StateRunRequested && rec.AssignedAgent == "" {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Job.SubmittedAt.Before(out[j].Job.SubmittedAt)
	})
	return out
}

// AllIDs returns every known job id.
func (r *Registry) AllIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.records))
	for id := range r.records {
		out = append(out, id)
	}
	return out
}
