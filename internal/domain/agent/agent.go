// Package agent defines the Agent domain entity: a worker host's identity,
// total resource capacity, and optional job affinity.
package agent

import (
	"time"

	"github.com/Strob0t/CodeForge/internal/domain/resource"
)

// Record is what register_agent captures. Available capacity is not stored
// here — it is runtime state owned by the resource ledger (internal/port/ledger)
// and derived from Total minus active reservations.
type Record struct {
	ID           string
	Total        resource.Vector
	JobAffinity  string // if set, this agent serves only this job id
	RegisteredAt time.Time
}

// AllowsJob reports whether the job with the given id is eligible for this
// agent on affinity grounds alone (capacity is checked separately against
// the ledger's live availability).
func (a Record) AllowsJob(jobID string) bool {
	return a.JobAffinity == "" || a.JobAffinity == jobID
}

// Snapshot is a read-only view of an agent's capacity for get_agent_states.
type Snapshot struct {
	AgentID   string          `json:"agent_id"`
	Totals    resource.Vector `json:"totals"`
	Available resource.Vector `json:"available"`
}
