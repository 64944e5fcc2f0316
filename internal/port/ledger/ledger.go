// Package ledger defines the resource-ledger port: the in-memory record of
// agents, their total and free resource vectors, and reservation arithmetic.
package ledger

import (
	"github.com/Strob0t/CodeForge/internal/domain/agent"
	"github.com/Strob0t/CodeForge/internal/domain/resource"
)

// Ledger tracks agent capacity and reservations. Implementations must make
// Reserve/Release atomic with respect to each other for a given agent.
type Ledger interface {
	// Register records or re-registers an agent. Re-registering an id with
	// possibly different totals resets available to totals and releases any
	// prior reservations for that agent (agent-restart semantics, §4.2).
	Register(agentID string, totals resource.Vector, jobAffinity string) error

	// Reserve atomically subtracts requirement from the agent's available
	// vector, succeeding only if every component fits. Returns false without
	// mutating state if it does not fit.
	Reserve(agentID string, requirement resource.Vector) (bool, error)

	// Release adds requirement back to the agent's available vector. It is a
	// bug (returns an error) if this would push available above total.
	Release(agentID string, requirement resource.Vector) error

	// Remove deletes an agent from the ledger entirely (explicit teardown or
	// heartbeat-timeout eviction).
	Remove(agentID string) error

	// Get returns the agent's current record, or false if unknown.
	Get(agentID string) (agent.Record, bool)

	// Snapshot returns a point-in-time view of every agent's totals and
	// availability, for get_agent_states.
	Snapshot() []agent.Snapshot

	// FitsSomeAgent reports whether requirement could ever be satisfied by
	// any currently-registered agent's totals, regardless of current usage —
	// used to detect permanently-unschedulable jobs (RESOURCES_NOT_AVAILABLE).
	FitsSomeAgent(requirement resource.Vector) bool
}
