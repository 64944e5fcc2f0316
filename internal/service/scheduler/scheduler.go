// Package scheduler implements the priority-weighted fair-share matching
// algorithm: candidate jobs per agent, weighted-random selection by
// priority, reservation, and grid-worker lifecycle. It depends only on the
// small JobSource/AgentSource/Assigner interfaces below so the same
// matching code runs embedded in the coordinator process (cmd/coordinator)
// or standalone against a remote coordinator (cmd/scheduler-server), per
// the coordinator's own RPC surface.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/Strob0t/CodeForge/internal/domain/resource"
)

// Demand is one unit of pending work a job offers to the scheduler: either
// a non-grid job awaiting its single assignment, or an open grid job
// offering one more worker slot. ExcludedAgents lists agents that already
// hold a worker for this grid job (meaningless, and left nil, for non-grid
// demand).
type Demand struct {
	JobID          string          `json:"job_id"`
	Priority       float64         `json:"priority"`
	SubmittedAt    time.Time       `json:"submitted_at"`
	Resource       resource.Vector `json:"resource"`
	IsGrid         bool            `json:"is_grid"`
	ExcludedAgents map[string]bool `json:"excluded_agents,omitempty"`
}

// Agent is one agent's live capacity snapshot. JobAffinity, if set,
// restricts this agent to serving only that one job id.
type Agent struct {
	ID          string          `json:"id"`
	Available   resource.Vector `json:"available"`
	JobAffinity string          `json:"job_affinity,omitempty"`
}

// JobSource supplies the current pending demand. For non-grid jobs this is
// one Demand per unassigned job; for grid jobs, one Demand per open job
// (ExcludedAgents holding whichever agents already have a worker on it), as
// long as the queue isn't known to be both closed and fully drained.
type JobSource interface {
	PendingDemand() ([]Demand, error)
}

// AgentSource supplies the current agent roster and free capacity.
type AgentSource interface {
	Agents() ([]Agent, error)
}

// Assigner carries out a scheduling decision: reserving resources and
// recording the assignment.
type Assigner interface {
	// Reserve attempts to reserve requirement against agentID. false means
	// another tick's assignment already consumed the capacity between
	// candidate-set construction and this call (benign race, retry next
	// tick).
	Reserve(agentID string, requirement resource.Vector) (bool, error)

	// AssignJob records a non-grid job's agent assignment.
	AssignJob(jobID, agentID string) error

	// AssignGridWorker mints or reuses a worker for (jobID, agentID).
	AssignGridWorker(jobID, agentID string) (workerID string, err error)

	// MarkUnschedulable transitions jobID to RESOURCES_NOT_AVAILABLE. Called
	// when requirement cannot ever fit any agent's total capacity.
	MarkUnschedulable(jobID string, requirement resource.Vector) error

	// FitsSomeAgent reports whether requirement could ever be satisfied by
	// some agent's totals, regardless of current usage.
	FitsSomeAgent(requirement resource.Vector) bool
}

// Scheduler runs one matching tick at a time, rate-limited so a burst of
// state-update RPCs cannot spin the loop arbitrarily fast.
type Scheduler struct {
	jobs     JobSource
	agents   AgentSource
	assigner Assigner
	limiter  *rate.Limiter
	rng      *rand.Rand
}

// New creates a Scheduler paced at ticksPerSecond with the given burst.
func New(jobs JobSource, agents AgentSource, assigner Assigner, ticksPerSecond float64, burst int) *Scheduler {
	return &Scheduler{
		jobs:     jobs,
		agents:   agents,
		assigner: assigner,
		limiter:  rate.NewLimiter(rate.Limit(ticksPerSecond), burst),
		rng:      rand.New(rand.NewSource(1)),
	}
}

// Run blocks, firing Tick once per limiter-paced interval until ctx is
// cancelled. After each tick it takes at most one pending value from wake
// without blocking; a value on wake does not start an extra tick or skip
// the limiter wait.
func (s *Scheduler) Run(ctx context.Context, wake <-chan struct{}) {
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		if err := s.Tick(ctx); err != nil {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-wake:
		default:
		}
	}
}

// Tick runs one matching pass: build the candidate set per agent, weighted
// selection, reservation, assignment. Jobs that can never fit any agent are
// marked RESOURCES_NOT_AVAILABLE.
func (s *Scheduler) Tick(_ context.Context) error {
	demand, err := s.jobs.PendingDemand()
	if err != nil {
		return fmt.Errorf("scheduler: pending demand: %w", err)
	}
	if len(demand) == 0 {
		return nil
	}

	agents, err := s.agents.Agents()
	if err != nil {
		return fmt.Errorf("scheduler: agents: %w", err)
	}

	unschedulable := map[string]resource.Vector{}
	for _, d := range demand {
		if !s.assigner.FitsSomeAgent(d.Resource) {
			unschedulable[d.JobID] = d.Resource
		}
	}
	for jobID, req := range unschedulable {
		if err := s.assigner.MarkUnschedulable(jobID, req); err != nil {
			return fmt.Errorf("scheduler: mark unschedulable %s: %w", jobID, err)
		}
	}

	for _, a := range agents {
		candidates := candidatesFor(a, demand, unschedulable)
		if len(candidates) == 0 {
			continue
		}
		picked := weightedPick(s.rng, candidates)
		if err := s.assign(a.ID, picked); err != nil {
			return err
		}
	}
	return nil
}

func candidatesFor(a Agent, demand []Demand, unschedulable map[string]resource.Vector) []Demand {
	var out []Demand
	for _, d := range demand {
		if _, skip := unschedulable[d.JobID]; skip {
			continue
		}
		if a.JobAffinity != "" && a.JobAffinity != d.JobID {
			continue
		}
		if d.ExcludedAgents[a.ID] {
			continue
		}
		if !d.Resource.Fits(a.Available) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// weightedPick chooses among candidates with probability proportional to
// Priority, ties in the random draw broken by earliest SubmittedAt (the
// candidates are pre-sorted so equal-weight draws still favor the oldest).
func weightedPick(rng *rand.Rand, candidates []Demand) Demand {
	if len(candidates) == 1 {
		return candidates[0]
	}

	sorted := append([]Demand(nil), candidates...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].SubmittedAt.Before(sorted[j-1].SubmittedAt); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	var total float64
	for _, d := range sorted {
		total += d.Priority
	}
	if total <= 0 {
		return sorted[0]
	}

	r := rng.Float64() * total
	var cum float64
	for _, d := range sorted {
		cum += d.Priority
		if r < cum {
			return d
		}
	}
	return sorted[len(sorted)-1]
}

func (s *Scheduler) assign(agentID string, d Demand) error {
	ok, err := s.assigner.Reserve(agentID, d.Resource)
	if err != nil {
		return fmt.Errorf("scheduler: reserve %s on %s: %w", d.JobID, agentID, err)
	}
	if !ok {
		return nil
	}

	if d.IsGrid {
		if _, err := s.assigner.AssignGridWorker(d.JobID, agentID); err != nil {
			return fmt.Errorf("scheduler: assign grid worker %s on %s: %w", d.JobID, agentID, err)
		}
		return nil
	}
	if err := s.assigner.AssignJob(d.JobID, agentID); err != nil {
		return fmt.Errorf("scheduler: assign job %s on %s: %w", d.JobID, agentID, err)
	}
	return nil
}
