// Package coordinatorclient implements an HTTP client against the
// coordinator's chi-routed §6 RPC surface (internal/adapter/http), for use
// by cmd/agent, cmd/scheduler-server, and cmd/jobrun. It satisfies
// agentloop.Client, the scheduler.JobSource/AgentSource/Assigner triple,
// and a small add_job/get_simple_job_states pair for one-shot submission.
package coordinatorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Strob0t/CodeForge/internal/domain/credential"
	"github.com/Strob0t/CodeForge/internal/domain/gridtask"
	"github.com/Strob0t/CodeForge/internal/domain/job"
	"github.com/Strob0t/CodeForge/internal/domain/resource"
	"github.com/Strob0t/CodeForge/internal/port/gridregistry"
	"github.com/Strob0t/CodeForge/internal/resilience"
	"github.com/Strob0t/CodeForge/internal/service/coordinator"
	"github.com/Strob0t/CodeForge/internal/service/scheduler"
)

// Client talks to a remote coordinator over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// New creates a Client against baseURL (e.g. "http://coordinator:8080").
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var result []byte
	call := func() error {
		var reader io.Reader
		if body != nil {
			encoded, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("marshal request: %w", err)
			}
			reader = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return fmt.Errorf("coordinator returned %d: %s", resp.StatusCode, string(data))
		}

		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}
	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}

func decode[T any](data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

// --- §6 client/agent RPC surface ---

// AddJob submits a job and returns its add result.
func (c *Client) AddJob(ctx context.Context, j job.Job) (job.AddResult, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "/jobs/", j)
	if err != nil {
		return "", fmt.Errorf("add_job: %w", err)
	}
	wrapped, err := decode[map[string]job.AddResult](data)
	if err != nil {
		return "", fmt.Errorf("add_job: decode: %w", err)
	}
	return wrapped["result"], nil
}

// GetSimpleJobStates fetches the terminal/non-terminal state of each job id.
func (c *Client) GetSimpleJobStates(ctx context.Context, ids []string) (map[string]job.State, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "/jobs/states", map[string][]string{"ids": ids})
	if err != nil {
		return nil, fmt.Errorf("get_simple_job_states: %w", err)
	}
	return decode[map[string]job.State](data)
}

// AddCredentials registers a git/docker credential source.
func (c *Client) AddCredentials(ctx context.Context, source credential.Source) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/credentials", source)
	if err != nil {
		return fmt.Errorf("add_credentials: %w", err)
	}
	return nil
}

// RegisterAgent implements agentloop.Client.
func (c *Client) RegisterAgent(ctx context.Context, agentID string, totals resource.Vector, jobAffinity string) error {
	req := map[string]any{
		"agent_id":     agentID,
		"totals":       totals,
		"job_affinity": jobAffinity,
	}
	_, err := c.doRequest(ctx, http.MethodPost, "/agent/register", req)
	if err != nil {
		return fmt.Errorf("register_agent: %w", err)
	}
	return nil
}

// GetNextJobs implements agentloop.Client.
func (c *Client) GetNextJobs(ctx context.Context, agentID, jobAffinity string) ([]coordinator.JobToRun, error) {
	req := map[string]string{"agent_id": agentID, "job_affinity": jobAffinity}
	data, err := c.doRequest(ctx, http.MethodPost, "/agent/next-jobs", req)
	if err != nil {
		return nil, fmt.Errorf("get_next_jobs: %w", err)
	}
	return decode[[]coordinator.JobToRun](data)
}

// UpdateJobStates implements agentloop.Client.
func (c *Client) UpdateJobStates(ctx context.Context, agentID string, updates []coordinator.StateUpdate) error {
	req := map[string]any{"agent_id": agentID, "updates": updates}
	_, err := c.doRequest(ctx, http.MethodPost, "/agent/job-states", req)
	if err != nil {
		return fmt.Errorf("update_job_states: %w", err)
	}
	return nil
}

// UpdateGridTaskStateAndGetNext implements agentloop.Client.
func (c *Client) UpdateGridTaskStateAndGetNext(ctx context.Context, jobID, workerID string, taskID int, outcome job.ProcessOutcome) (gridtask.Task, error) {
	req := map[string]any{
		"job_id":    jobID,
		"worker_id": workerID,
		"task_id":   taskID,
		"outcome":   outcome,
	}
	data, err := c.doRequest(ctx, http.MethodPost, "/agent/grid-task-state", req)
	if err != nil {
		return gridtask.Task{}, fmt.Errorf("update_grid_task_state_and_get_next: %w", err)
	}
	return decode[gridtask.Task](data)
}

// --- scheduler.JobSource / AgentSource / Assigner, against
// /internal/scheduler/* (cmd/scheduler-server's out-of-process mode) ---

var (
	_ scheduler.JobSource   = (*Client)(nil)
	_ scheduler.AgentSource = (*Client)(nil)
	_ scheduler.Assigner    = (*Client)(nil)
)

// PendingDemand implements scheduler.JobSource.
func (c *Client) PendingDemand() ([]scheduler.Demand, error) {
	data, err := c.doRequest(context.Background(), http.MethodGet, "/internal/scheduler/demand", nil)
	if err != nil {
		return nil, fmt.Errorf("pending_demand: %w", err)
	}
	return decode[[]scheduler.Demand](data)
}

// Agents implements scheduler.AgentSource.
func (c *Client) Agents() ([]scheduler.Agent, error) {
	data, err := c.doRequest(context.Background(), http.MethodGet, "/internal/scheduler/agents", nil)
	if err != nil {
		return nil, fmt.Errorf("agents: %w", err)
	}
	return decode[[]scheduler.Agent](data)
}

// Reserve implements scheduler.Assigner.
func (c *Client) Reserve(agentID string, requirement resource.Vector) (bool, error) {
	req := map[string]any{"agent_id": agentID, "requirement": requirement}
	data, err := c.doRequest(context.Background(), http.MethodPost, "/internal/scheduler/reserve", req)
	if err != nil {
		return false, fmt.Errorf("reserve: %w", err)
	}
	wrapped, err := decode[map[string]bool](data)
	if err != nil {
		return false, fmt.Errorf("reserve: decode: %w", err)
	}
	return wrapped["ok"], nil
}

// AssignJob implements scheduler.Assigner.
func (c *Client) AssignJob(jobID, agentID string) error {
	req := map[string]string{"job_id": jobID, "agent_id": agentID}
	_, err := c.doRequest(context.Background(), http.MethodPost, "/internal/scheduler/assign-job", req)
	if err != nil {
		return fmt.Errorf("assign_job: %w", err)
	}
	return nil
}

// AssignGridWorker implements scheduler.Assigner.
func (c *Client) AssignGridWorker(jobID, agentID string) (string, error) {
	req := map[string]string{"job_id": jobID, "agent_id": agentID}
	data, err := c.doRequest(context.Background(), http.MethodPost, "/internal/scheduler/assign-grid-worker", req)
	if err != nil {
		return "", fmt.Errorf("assign_grid_worker: %w", err)
	}
	wrapped, err := decode[map[string]string](data)
	if err != nil {
		return "", fmt.Errorf("assign_grid_worker: decode: %w", err)
	}
	return wrapped["worker_id"], nil
}

// MarkUnschedulable implements scheduler.Assigner.
func (c *Client) MarkUnschedulable(jobID string, requirement resource.Vector) error {
	req := map[string]any{"job_id": jobID, "requirement": requirement}
	_, err := c.doRequest(context.Background(), http.MethodPost, "/internal/scheduler/mark-unschedulable", req)
	if err != nil {
		return fmt.Errorf("mark_unschedulable: %w", err)
	}
	return nil
}

// FitsSomeAgent implements scheduler.Assigner. A transport or decode
// failure is treated as "fits" so a flaky internal call never wedges a job
// in RESOURCES_NOT_AVAILABLE by false-negative; callers relying on this
// signal should prefer the in-process coordinator.Coordinator where possible.
func (c *Client) FitsSomeAgent(requirement resource.Vector) bool {
	req := map[string]any{"requirement": requirement}
	data, err := c.doRequest(context.Background(), http.MethodPost, "/internal/scheduler/fits", req)
	if err != nil {
		return true
	}
	wrapped, decodeErr := decode[map[string]bool](data)
	if decodeErr != nil {
		return true
	}
	return wrapped["fits"]
}

// GetGridTaskStates fetches grid task states for jobID, skipping any task
// id present in ignore.
func (c *Client) GetGridTaskStates(ctx context.Context, jobID string, ignore map[int]bool) ([]gridregistry.TaskState, error) {
	var ids []string
	for id := range ignore {
		ids = append(ids, strconv.Itoa(id))
	}
	path := fmt.Sprintf("/jobs/%s/grid-tasks/states", jobID)
	if len(ids) > 0 {
		path += "?ignore=" + strings.Join(ids, ",")
	}
	data, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("get_grid_task_states: %w", err)
	}
	return decode[[]gridregistry.TaskState](data)
}
