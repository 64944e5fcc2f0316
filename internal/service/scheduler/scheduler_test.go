package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/CodeForge/internal/domain/resource"
	"github.com/Strob0t/CodeForge/internal/service/scheduler"
)

type fakeSource struct {
	demand []scheduler.Demand
	agents []scheduler.Agent
}

func (f *fakeSource) PendingDemand() ([]scheduler.Demand, error) { return f.demand, nil }
func (f *fakeSource) Agents() ([]scheduler.Agent, error)         { return f.agents, nil }

type call struct {
	kind    string
	jobID   string
	agentID string
}

type fakeAssigner struct {
	fits      map[string]bool
	reserveOK map[string]bool
	calls     []call
	workerSeq int
}

func (f *fakeAssigner) Reserve(agentID string, requirement resource.Vector) (bool, error) {
	f.calls = append(f.calls, call{kind: "reserve", agentID: agentID})
	if f.reserveOK == nil {
		return true, nil
	}
	ok, set := f.reserveOK[agentID]
	if !set {
		return true, nil
	}
	return ok, nil
}

func (f *fakeAssigner) AssignJob(jobID, agentID string) error {
	f.calls = append(f.calls, call{kind: "assign_job", jobID: jobID, agentID: agentID})
	return nil
}

func (f *fakeAssigner) AssignGridWorker(jobID, agentID string) (string, error) {
	f.workerSeq++
	f.calls = append(f.calls, call{kind: "assign_grid_worker", jobID: jobID, agentID: agentID})
	return "worker-" + agentID, nil
}

func (f *fakeAssigner) MarkUnschedulable(jobID string, _ resource.Vector) error {
	f.calls = append(f.calls, call{kind: "mark_unschedulable", jobID: jobID})
	return nil
}

func (f *fakeAssigner) FitsSomeAgent(requirement resource.Vector) bool {
	if f.fits == nil {
		return true
	}
	for k, v := range requirement {
		if f.fits[k+"_never_fits"] && v > 0 {
			return false
		}
	}
	return true
}

func TestTick_NoDemandIsNoop(t *testing.T) {
	s := scheduler.New(&fakeSource{}, &fakeSource{}, &fakeAssigner{}, 1000, 1000)
	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
}

func TestTick_AssignsSoleCandidateToSoleAgent(t *testing.T) {
	src := &fakeSource{
		demand: []scheduler.Demand{
			{JobID: "job-1", Priority: 1, Resource: resource.Vector{"cpu": 1}},
		},
		agents: []scheduler.Agent{
			{ID: "agent-1", Available: resource.Vector{"cpu": 4}},
		},
	}
	asn := &fakeAssigner{}
	s := scheduler.New(src, src, asn, 1000, 1000)

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	var assigned bool
	for _, c := range asn.calls {
		if c.kind == "assign_job" && c.jobID == "job-1" && c.agentID == "agent-1" {
			assigned = true
		}
	}
	if !assigned {
		t.Fatalf("expected job-1 assigned to agent-1, calls: %+v", asn.calls)
	}
}

func TestTick_GridDemandUsesAssignGridWorker(t *testing.T) {
	src := &fakeSource{
		demand: []scheduler.Demand{
			{JobID: "grid-1", Priority: 1, Resource: resource.Vector{"cpu": 1}, IsGrid: true},
		},
		agents: []scheduler.Agent{
			{ID: "agent-1", Available: resource.Vector{"cpu": 4}},
		},
	}
	asn := &fakeAssigner{}
	s := scheduler.New(src, src, asn, 1000, 1000)

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	var gridAssigned bool
	for _, c := range asn.calls {
		if c.kind == "assign_grid_worker" && c.jobID == "grid-1" {
			gridAssigned = true
		}
	}
	if !gridAssigned {
		t.Fatalf("expected grid-1 assigned via AssignGridWorker, calls: %+v", asn.calls)
	}
}

func TestTick_ExcludesAgentAlreadyHoldingGridWorker(t *testing.T) {
	src := &fakeSource{
		demand: []scheduler.Demand{
			{JobID: "grid-1", Priority: 1, Resource: resource.Vector{"cpu": 1}, IsGrid: true,
				ExcludedAgents: map[string]bool{"agent-1": true}},
		},
		agents: []scheduler.Agent{
			{ID: "agent-1", Available: resource.Vector{"cpu": 4}},
		},
	}
	asn := &fakeAssigner{}
	s := scheduler.New(src, src, asn, 1000, 1000)

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	for _, c := range asn.calls {
		if c.kind == "assign_grid_worker" {
			t.Fatalf("expected agent-1 to be excluded from grid-1, but it was assigned: %+v", asn.calls)
		}
	}
}

func TestTick_JobAffinityRestrictsCandidates(t *testing.T) {
	src := &fakeSource{
		demand: []scheduler.Demand{
			{JobID: "job-1", Priority: 1, Resource: resource.Vector{"cpu": 1}},
		},
		agents: []scheduler.Agent{
			{ID: "agent-1", Available: resource.Vector{"cpu": 4}, JobAffinity: "job-2"},
		},
	}
	asn := &fakeAssigner{}
	s := scheduler.New(src, src, asn, 1000, 1000)

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	for _, c := range asn.calls {
		if c.kind == "assign_job" {
			t.Fatalf("expected no assignment, agent-1 is affinitized to job-2: %+v", asn.calls)
		}
	}
}

func TestTick_ResourceMismatchExcludesCandidate(t *testing.T) {
	src := &fakeSource{
		demand: []scheduler.Demand{
			{JobID: "job-1", Priority: 1, Resource: resource.Vector{"cpu": 8}},
		},
		agents: []scheduler.Agent{
			{ID: "agent-1", Available: resource.Vector{"cpu": 4}},
		},
	}
	asn := &fakeAssigner{fits: map[string]bool{}}
	s := scheduler.New(src, src, asn, 1000, 1000)

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	for _, c := range asn.calls {
		if c.kind == "assign_job" {
			t.Fatalf("expected no assignment, requirement exceeds agent's available: %+v", asn.calls)
		}
	}
}

func TestTick_MarksUnschedulableWhenNoAgentCouldEverFit(t *testing.T) {
	src := &fakeSource{
		demand: []scheduler.Demand{
			{JobID: "job-1", Priority: 1, Resource: resource.Vector{"gpu": 1}},
		},
		agents: []scheduler.Agent{
			{ID: "agent-1", Available: resource.Vector{"cpu": 4}},
		},
	}
	asn := &fakeAssigner{fits: map[string]bool{"gpu_never_fits": true}}
	s := scheduler.New(src, src, asn, 1000, 1000)

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	var marked bool
	for _, c := range asn.calls {
		if c.kind == "mark_unschedulable" && c.jobID == "job-1" {
			marked = true
		}
	}
	if !marked {
		t.Fatalf("expected job-1 marked unschedulable, calls: %+v", asn.calls)
	}
}

func TestTick_ReserveRaceLossSkipsAssignment(t *testing.T) {
	src := &fakeSource{
		demand: []scheduler.Demand{
			{JobID: "job-1", Priority: 1, Resource: resource.Vector{"cpu": 1}},
		},
		agents: []scheduler.Agent{
			{ID: "agent-1", Available: resource.Vector{"cpu": 4}},
		},
	}
	asn := &fakeAssigner{reserveOK: map[string]bool{"agent-1": false}}
	s := scheduler.New(src, src, asn, 1000, 1000)

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	for _, c := range asn.calls {
		if c.kind == "assign_job" {
			t.Fatalf("expected no assignment after Reserve returned false: %+v", asn.calls)
		}
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	src := &fakeSource{}
	asn := &fakeAssigner{}
	s := scheduler.New(src, src, asn, 1000, 1000)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
