package coordinatorclient_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/CodeForge/internal/adapter/coordinatorclient"
	gridhttp "github.com/Strob0t/CodeForge/internal/adapter/http"
	"github.com/Strob0t/CodeForge/internal/adapter/memgridregistry"
	"github.com/Strob0t/CodeForge/internal/adapter/memjobregistry"
	"github.com/Strob0t/CodeForge/internal/adapter/memledger"
	"github.com/Strob0t/CodeForge/internal/auditlog"
	"github.com/Strob0t/CodeForge/internal/domain/job"
	"github.com/Strob0t/CodeForge/internal/domain/resource"
	"github.com/Strob0t/CodeForge/internal/port/messagequeue"
	"github.com/Strob0t/CodeForge/internal/resilience"
	"github.com/Strob0t/CodeForge/internal/service/coordinator"
	"github.com/Strob0t/CodeForge/internal/service/scheduler"
)

type fakeHeartbeat struct{ lost chan string }

func newFakeHeartbeat() *fakeHeartbeat { return &fakeHeartbeat{lost: make(chan string)} }
func (f *fakeHeartbeat) Touch(context.Context, string) error  { return nil }
func (f *fakeHeartbeat) Forget(context.Context, string) error { return nil }
func (f *fakeHeartbeat) Lost() <-chan string                  { return f.lost }
func (f *fakeHeartbeat) Start(context.Context)                {}

type fakeQueue struct{}

func (fakeQueue) Publish(context.Context, string, []byte) error { return nil }
func (fakeQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}
func (fakeQueue) Drain() error      { return nil }
func (fakeQueue) Close() error      { return nil }
func (fakeQueue) IsConnected() bool { return true }

type fakeResults struct{}

func (fakeResults) Put(context.Context, string, []byte) (string, error) { return "", nil }
func (fakeResults) Get(context.Context, string) ([]byte, error)         { return nil, nil }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	coord := coordinator.New(coordinator.Deps{
		Jobs:          memjobregistry.New(),
		Grid:          memgridregistry.New(),
		Ledger:        memledger.New(),
		Heartbeat:     newFakeHeartbeat(),
		Queue:         fakeQueue{},
		Results:       fakeResults{},
		Audit:         auditlog.NewRecorder(16),
		SecretBreaker: resilience.NewBreaker(5, time.Second),
		S3Breaker:     resilience.NewBreaker(5, time.Second),
		Log:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	r := chi.NewRouter()
	h := gridhttp.NewHandlers(coord)
	gridhttp.MountRoutes(r, h, func(next http.Handler) http.Handler { return next })
	gridhttp.MountSchedulerRoutes(r, h)

	return httptest.NewServer(r)
}

func testJob(id string) job.Job {
	return job.Job{
		ID:                    id,
		Priority:              1,
		CodeDeployment:        job.CodeDeployment{Kind: job.CodeServerAvailableFolder, Paths: []string{"/tmp"}},
		InterpreterDeployment: job.InterpreterDeployment{Kind: job.InterpreterServerAvailable, InterpreterPath: "/usr/bin/true"},
		ResourceRequirement:   resource.Vector{"cpu": 1},
		Spec:                  job.Spec{Kind: job.SpecCommand, Args: []string{"true"}},
	}
}

func TestClient_AddJobAndGetSimpleJobStates(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	client := coordinatorclient.New(srv.URL)
	ctx := context.Background()

	result, err := client.AddJob(ctx, testJob("job-1"))
	if err != nil {
		t.Fatalf("add_job: %v", err)
	}
	if result != job.AddResultAdded {
		t.Fatalf("expected ADDED, got %s", result)
	}

	states, err := client.GetSimpleJobStates(ctx, []string{"job-1"})
	if err != nil {
		t.Fatalf("get_simple_job_states: %v", err)
	}
	if states["job-1"] != job.StateRunRequested {
		t.Fatalf("expected RUN_REQUESTED, got %s", states["job-1"])
	}
}

func TestClient_AddJobDuplicate(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	client := coordinatorclient.New(srv.URL)
	ctx := context.Background()

	j := testJob("job-dup")
	if _, err := client.AddJob(ctx, j); err != nil {
		t.Fatalf("add_job: %v", err)
	}

	result, err := client.AddJob(ctx, j)
	if err != nil {
		t.Fatalf("add_job (dup): %v", err)
	}
	if result != job.AddResultIsDuplicate {
		t.Fatalf("expected IS_DUPLICATE, got %s", result)
	}
}

func TestClient_RegisterAgentAndGetNextJobs(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	client := coordinatorclient.New(srv.URL)
	ctx := context.Background()

	if _, err := client.AddJob(ctx, testJob("job-2")); err != nil {
		t.Fatalf("add_job: %v", err)
	}

	if err := client.RegisterAgent(ctx, "agent-1", resource.Vector{"cpu": 4}, ""); err != nil {
		t.Fatalf("register_agent: %v", err)
	}

	// GetNextJobs only drains assignments the scheduler has made, so run one
	// matching pass over the client's own internal scheduler surface first.
	if err := scheduler.New(client, client, client, 1000, 1000).Tick(ctx); err != nil {
		t.Fatalf("scheduler tick: %v", err)
	}

	jobs, err := client.GetNextJobs(ctx, "agent-1", "")
	if err != nil {
		t.Fatalf("get_next_jobs: %v", err)
	}
	found := false
	for _, jr := range jobs {
		if jr.Job.ID == "job-2" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected job-2 among next jobs, got %+v", jobs)
	}
}

func TestClient_SchedulerSurface(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	client := coordinatorclient.New(srv.URL)
	ctx := context.Background()

	if err := client.RegisterAgent(ctx, "agent-1", resource.Vector{"cpu": 4}, ""); err != nil {
		t.Fatalf("register_agent: %v", err)
	}

	if !client.FitsSomeAgent(resource.Vector{"cpu": 2}) {
		t.Fatal("expected requirement to fit agent-1's totals")
	}

	agents, err := client.Agents()
	if err != nil {
		t.Fatalf("agents: %v", err)
	}
	if len(agents) != 1 || agents[0].ID != "agent-1" {
		t.Fatalf("expected one agent agent-1, got %+v", agents)
	}

	ok, err := client.Reserve("agent-1", resource.Vector{"cpu": 2})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !ok {
		t.Fatal("expected reservation to succeed")
	}
}

func TestClient_AddJobRejectsInvalidJob(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	client := coordinatorclient.New(srv.URL)
	ctx := context.Background()

	_, err := client.AddJob(ctx, job.Job{})
	if err == nil {
		t.Fatal("expected error for empty job")
	}
}
