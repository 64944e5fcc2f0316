package memjobregistry_test

import (
	"testing"
	"time"

	"github.com/Strob0t/CodeForge/internal/adapter/memjobregistry"
	"github.com/Strob0t/CodeForge/internal/domain/job"
	"github.com/Strob0t/CodeForge/internal/domain/resource"
	"github.com/Strob0t/CodeForge/internal/port/jobregistry"
)

var _ jobregistry.Registry = (*memjobregistry.Registry)(nil)

func validJob(id string, submittedAt time.Time) job.Job {
	return job.Job{
		ID:       id,
		Priority: 1,
		CodeDeployment: job.CodeDeployment{
			Kind:  job.CodeServerAvailableFolder,
			Paths: []string{"/srv/code"},
		},
		InterpreterDeployment: job.InterpreterDeployment{
			Kind:            job.InterpreterServerAvailable,
			InterpreterPath: "/usr/bin/python3",
		},
		ResourceRequirement: resource.Vector{"cpu": 1},
		Spec:                job.Spec{Kind: job.SpecCommand, Args: []string{"echo", "hi"}},
		SubmittedAt:         submittedAt,
	}
}

func TestAdd_DuplicateIsNoOp(t *testing.T) {
	r := memjobregistry.New()
	j := validJob("job-1", time.Unix(0, 0))

	res, err := r.Add(j)
	if err != nil || res != job.AddResultAdded {
		t.Fatalf("expected ADDED, got %v err=%v", res, err)
	}

	res, err = r.Add(j)
	if err != nil || res != job.AddResultIsDuplicate {
		t.Fatalf("expected IS_DUPLICATE, got %v err=%v", res, err)
	}
}

func TestUpdateState_TerminalIsWriteOnce(t *testing.T) {
	r := memjobregistry.New()
	j := validJob("job-1", time.Unix(0, 0))
	if _, err := r.Add(j); err != nil {
		t.Fatal(err)
	}

	r.UpdateState("job-1", job.ProcessOutcome{State: job.StateSucceeded})
	r.UpdateState("job-1", job.ProcessOutcome{State: job.StateRunning})

	rec, _ := r.Get("job-1")
	if rec.Outcome.State != job.StateSucceeded {
		t.Fatalf("expected terminal state to stick, got %v", rec.Outcome.State)
	}
}

func TestUpdateState_UnknownJobIsNoOp(t *testing.T) {
	r := memjobregistry.New()
	r.UpdateState("ghost", job.ProcessOutcome{State: job.StateRunning})
	if _, ok := r.Get("ghost"); ok {
		t.Fatal("expected unknown job to remain absent")
	}
}

func TestStates_UnknownIDsMapToUnknown(t *testing.T) {
	r := memjobregistry.New()
	j := validJob("job-1", time.Unix(0, 0))
	_, _ = r.Add(j)

	states := r.States([]string{"job-1", "ghost"})
	if states["job-1"] != job.StateRunRequested {
		t.Fatalf("expected RUN_REQUESTED, got %v", states["job-1"])
	}
	if states["ghost"] != job.StateUnknown {
		t.Fatalf("expected UNKNOWN, got %v", states["ghost"])
	}
}

func TestPending_OrderedBySubmissionTime_ExcludesAssignedAndGrid(t *testing.T) {
	r := memjobregistry.New()
	later := validJob("job-late", time.Unix(100, 0))
	earlier := validJob("job-early", time.Unix(1, 0))
	assigned := validJob("job-assigned", time.Unix(2, 0))
	grid := validJob("job-grid", time.Unix(3, 0))
	grid.Spec = job.Spec{Kind: job.SpecGrid, GridFunctionModule: "m", GridFunctionName: "f"}

	for _, j := range []job.Job{later, earlier, assigned, grid} {
		if _, err := r.Add(j); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.AssignAgent("job-assigned", "agent-1"); err != nil {
		t.Fatal(err)
	}

	pending := r.Pending()
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending jobs, got %d: %+v", len(pending), pending)
	}
	if pending[0].Job.ID != "job-early" || pending[1].Job.ID != "job-late" {
		t.Fatalf("expected pending ordered by submission time, got %v, %v", pending[0].Job.ID, pending[1].Job.ID)
	}
}

func TestAssignAgent_UnknownJob(t *testing.T) {
	r := memjobregistry.New()
	if err := r.AssignAgent("ghost", "agent-1"); err == nil {
		t.Fatal("expected error assigning agent to unknown job")
	}
}

func TestAllIDs(t *testing.T) {
	r := memjobregistry.New()
	_, _ = r.Add(validJob("job-1", time.Unix(0, 0)))
	_, _ = r.Add(validJob("job-2", time.Unix(0, 0)))

	ids := r.AllIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}
}
