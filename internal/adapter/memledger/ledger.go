// Package memledger implements the ledger.Ledger port as an in-process,
// mutex-guarded map. It is the coordinator's authoritative record of agent
// capacity and reservations; there is no durable backing store (§4.2
// Non-goals — ledger state does not survive a coordinator restart).
package memledger

import (
	"fmt"
	"sync"

	"github.com/Strob0t/CodeForge/internal/domain/agent"
	"github.com/Strob0t/CodeForge/internal/domain/resource"
)

type entry struct {
	record    agent.Record
	available resource.Vector
}

// Ledger is the in-memory implementation of ledger.Ledger.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty Ledger.
func New() *Ledger {
	return &Ledger{entries: make(map[string]*entry)}
}

// Register records or re-registers an agent, resetting available to totals.
func (l *Ledger) Register(agentID string, totals resource.Vector, jobAffinity string) error {
	if err := totals.Validate(); err != nil {
		return fmt.Errorf("memledger: register %s: %w", agentID, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[agentID] = &entry{
		record: agent.Record{
			ID:          agentID,
			Total:       totals.Clone(),
			JobAffinity: jobAffinity,
		},
		available: totals.Clone(),
	}
	return nil
}

// Reserve atomically subtracts requirement from the agent's available
// vector if it fits; otherwise it leaves state untouched and returns false.
func (l *Ledger) Reserve(agentID string, requirement resource.Vector) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[agentID]
	if !ok {
		return false, fmt.Errorf("memledger: unknown agent %q", agentID)
	}
	if !requirement.Fits(e.available) {
		return false, nil
	}
	e.available = e.available.Sub(requirement)
	return true, nil
}

// Release adds requirement back to the agent's available vector.
func (l *Ledger) Release(agentID string, requirement resource.Vector) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[agentID]
	if !ok {
		return fmt.Errorf("memledger: unknown agent %q", agentID)
	}
	next := e.available.Add(requirement)
	if next.Exceeds(e.record.Total) {
		return fmt.Errorf("memledger: release of %v on agent %q would exceed total capacity %v", requirement, agentID, e.record.Total)
	}
	e.available = next
	return nil
}

// Remove deletes an agent from the ledger entirely.
func (l *Ledger) Remove(agentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, agentID)
	return nil
}

// Get returns the agent's current record.
func (l *Ledger) Get(agentID string) (agent.Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[agentID]
	if !ok {
		return agent.Record{}, false
	}
	return e.record, true
}

// Snapshot returns a point-in-time view of every agent's totals and
// availability.
func (l *Ledger) Snapshot() []agent.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]agent.Snapshot, 0, len(l.entries))
	for id, e := range l.entries {
		out = append(out, agent.Snapshot{
			AgentID:   id,
			Totals:    e.record.Total.Clone(),
			Available: e.available.Clone(),
		})
	}
	return out
}

// FitsSomeAgent reports whether requirement could ever be satisfied by any
// currently-registered agent's totals, ignoring current usage.
func (l *Ledger) FitsSomeAgent(requirement resource.Vector) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, e := range l.entries {
		if requirement.FitsEver(e.record.Total) {
			return true
		}
	}
	return false
}
