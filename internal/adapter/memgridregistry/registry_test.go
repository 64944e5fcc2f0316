package memgridregistry_test

import (
	"testing"

	"github.com/Strob0t/CodeForge/internal/adapter/memgridregistry"
	"github.com/Strob0t/CodeForge/internal/domain/gridtask"
	"github.com/Strob0t/CodeForge/internal/domain/job"
	"github.com/Strob0t/CodeForge/internal/port/gridregistry"
)

var _ gridregistry.Registry = (*memgridregistry.Registry)(nil)

func TestAppendTasks_RejectsAfterClose(t *testing.T) {
	r := memgridregistry.New()
	r.Register("grid-1")

	if err := r.AppendTasks("grid-1", []gridtask.Task{{TaskID: 0, Argument: []byte("a")}}, true); err != nil {
		t.Fatal(err)
	}
	if err := r.AppendTasks("grid-1", []gridtask.Task{{TaskID: 1, Argument: []byte("b")}}, false); err == nil {
		t.Fatal("expected error appending after queue closed")
	}
}

func TestDequeue_FIFOAndEmpty(t *testing.T) {
	r := memgridregistry.New()
	r.Register("grid-1")
	_ = r.AppendTasks("grid-1", []gridtask.Task{
		{TaskID: 0, Argument: []byte("a")},
		{TaskID: 1, Argument: []byte("b")},
	}, true)

	first, ok, closed := r.Dequeue("grid-1", "worker-a")
	if !ok || first.TaskID != 0 {
		t.Fatalf("expected task 0 first, got %+v ok=%v", first, ok)
	}
	if closed != true {
		t.Fatalf("expected closed true since allAdded was latched, got %v", closed)
	}

	second, ok, _ := r.Dequeue("grid-1", "worker-b")
	if !ok || second.TaskID != 1 {
		t.Fatalf("expected task 1 second, got %+v", second)
	}

	_, ok, closed = r.Dequeue("grid-1", "worker-c")
	if ok {
		t.Fatal("expected empty dequeue once all tasks claimed")
	}
	if !closed {
		t.Fatal("expected closed=true on empty dequeue of a closed queue")
	}
}

func TestDequeue_EmptyButOpenQueue(t *testing.T) {
	r := memgridregistry.New()
	r.Register("grid-1")
	_ = r.AppendTasks("grid-1", nil, false)

	_, ok, closed := r.Dequeue("grid-1", "worker-a")
	if ok {
		t.Fatal("expected no task available yet")
	}
	if closed {
		t.Fatal("expected closed=false since more tasks may still arrive")
	}
}

func TestUpdateTask_TerminalIsWriteOnce(t *testing.T) {
	r := memgridregistry.New()
	r.Register("grid-1")
	_ = r.AppendTasks("grid-1", []gridtask.Task{{TaskID: 0, Argument: []byte("a")}}, true)
	_, _, _ = r.Dequeue("grid-1", "worker-a")

	r.UpdateTask("grid-1", 0, job.ProcessOutcome{State: job.StateSucceeded})
	r.UpdateTask("grid-1", 0, job.ProcessOutcome{State: job.StateRunning})

	states := r.States("grid-1", nil)
	if len(states) != 1 || states[0].State != job.StateSucceeded {
		t.Fatalf("expected terminal state to stick, got %+v", states)
	}
}

func TestSyntheticJobState(t *testing.T) {
	r := memgridregistry.New()
	r.Register("grid-1")
	_ = r.AppendTasks("grid-1", []gridtask.Task{
		{TaskID: 0, Argument: []byte("a")},
		{TaskID: 1, Argument: []byte("b")},
	}, false)

	if got := r.SyntheticJobState("grid-1"); got != job.StateRunning {
		t.Fatalf("expected RUNNING while queue open, got %v", got)
	}

	_ = r.AppendTasks("grid-1", nil, true) // latch closed, no new tasks
	r.UpdateTask("grid-1", 0, job.ProcessOutcome{State: job.StateSucceeded})
	if got := r.SyntheticJobState("grid-1"); got != job.StateRunning {
		t.Fatalf("expected RUNNING with one task still pending, got %v", got)
	}

	r.UpdateTask("grid-1", 1, job.ProcessOutcome{State: job.StateSucceeded})
	if got := r.SyntheticJobState("grid-1"); got != job.StateSucceeded {
		t.Fatalf("expected SUCCEEDED once closed and all tasks succeeded, got %v", got)
	}
}

func TestWorkerLifecycle(t *testing.T) {
	r := memgridregistry.New()
	r.Register("grid-1")

	id1, created := r.EnsureWorker("grid-1", "agent-a")
	if !created || id1 == "" {
		t.Fatalf("expected a new worker, got id=%q created=%v", id1, created)
	}

	id2, created := r.EnsureWorker("grid-1", "agent-a")
	if created || id2 != id1 {
		t.Fatalf("expected same worker on re-ensure, got id=%q created=%v", id2, created)
	}

	if !r.HasWorker("grid-1", "agent-a") {
		t.Fatal("expected HasWorker true")
	}

	refs := r.WorkersByAgent("agent-a")
	if len(refs) != 1 || refs[0].JobID != "grid-1" || refs[0].WorkerID != id1 {
		t.Fatalf("unexpected worker refs: %+v", refs)
	}

	r.RemoveWorker("grid-1", "agent-a")
	if r.HasWorker("grid-1", "agent-a") {
		t.Fatal("expected HasWorker false after removal")
	}
}

func TestIsGrid(t *testing.T) {
	r := memgridregistry.New()
	if r.IsGrid("unknown") {
		t.Fatal("expected unregistered job to report false")
	}
	r.Register("grid-1")
	if !r.IsGrid("grid-1") {
		t.Fatal("expected registered job to report true")
	}
}
