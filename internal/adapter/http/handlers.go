// Package http wires the coordinator's ten RPCs (add_job,
// add_tasks_to_grid_job, get_simple_job_states, get_grid_task_states,
// add_credentials, get_agent_states, register_agent, get_next_jobs,
// update_job_states, update_grid_task_state_and_get_next) behind a
// chi-routed JSON surface, and the scheduler's JobSource/AgentSource/
// Assigner ports behind an internal-only surface for cmd/scheduler-server.
package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Strob0t/CodeForge/internal/domain/credential"
	"github.com/Strob0t/CodeForge/internal/domain/gridtask"
	"github.com/Strob0t/CodeForge/internal/domain/job"
	"github.com/Strob0t/CodeForge/internal/domain/resource"
	"github.com/Strob0t/CodeForge/internal/service/coordinator"
)

// Handlers adapts Coord's Go methods to HTTP.
type Handlers struct {
	Coord *coordinator.Coordinator
}

// NewHandlers creates a Handlers wrapping coord.
func NewHandlers(coord *coordinator.Coordinator) *Handlers {
	return &Handlers{Coord: coord}
}

// HandleAddJob implements add_job.
func (h *Handlers) HandleAddJob(w http.ResponseWriter, r *http.Request) {
	j, ok := readJSON[job.Job](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	result, err := h.Coord.AddJob(r.Context(), j)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]job.AddResult{"result": result})
}

type addTasksRequest struct {
	Tasks         []gridtask.Task `json:"tasks"`
	AllTasksAdded bool            `json:"all_tasks_added"`
}

// HandleAddTasksToGridJob implements add_tasks_to_grid_job.
func (h *Handlers) HandleAddTasksToGridJob(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[addTasksRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	jobID := urlParam(r, "id")
	result, err := h.Coord.AddTasksToGridJob(r.Context(), jobID, req.Tasks, req.AllTasksAdded)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]job.AddResult{"result": result})
}

type jobIDsRequest struct {
	IDs []string `json:"ids"`
}

// HandleGetSimpleJobStates implements get_simple_job_states.
func (h *Handlers) HandleGetSimpleJobStates(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[jobIDsRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Coord.GetSimpleJobStates(r.Context(), req.IDs))
}

// HandleGetGridTaskStates implements get_grid_task_states.
func (h *Handlers) HandleGetGridTaskStates(w http.ResponseWriter, r *http.Request) {
	jobID := urlParam(r, "id")
	ignore := parseIgnoreSet(r.URL.Query().Get("ignore"))
	writeJSON(w, http.StatusOK, h.Coord.GetGridTaskStates(r.Context(), jobID, ignore))
}

func parseIgnoreSet(csv string) map[int]bool {
	if csv == "" {
		return nil
	}
	out := make(map[int]bool)
	for _, s := range strings.Split(csv, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			out[n] = true
		}
	}
	return out
}

// HandleAddCredentials implements add_credentials.
func (h *Handlers) HandleAddCredentials(w http.ResponseWriter, r *http.Request) {
	source, ok := readJSON[credential.Source](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if err := h.Coord.AddCredentials(r.Context(), source); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleGetAgentStates implements get_agent_states.
func (h *Handlers) HandleGetAgentStates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Coord.GetAgentStates(r.Context()))
}

type registerAgentRequest struct {
	AgentID     string          `json:"agent_id"`
	Totals      resource.Vector `json:"totals"`
	JobAffinity string          `json:"job_affinity,omitempty"`
}

// HandleRegisterAgent implements register_agent.
func (h *Handlers) HandleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[registerAgentRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}
	if err := h.Coord.RegisterAgent(r.Context(), req.AgentID, req.Totals, req.JobAffinity); err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type getNextJobsRequest struct {
	AgentID     string `json:"agent_id"`
	JobAffinity string `json:"job_affinity,omitempty"`
}

// HandleGetNextJobs implements get_next_jobs.
func (h *Handlers) HandleGetNextJobs(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[getNextJobsRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	jobs, err := h.Coord.GetNextJobs(r.Context(), req.AgentID, req.JobAffinity)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

type updateJobStatesRequest struct {
	AgentID string                    `json:"agent_id"`
	Updates []coordinator.StateUpdate `json:"updates"`
}

// HandleUpdateJobStates implements update_job_states.
func (h *Handlers) HandleUpdateJobStates(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[updateJobStatesRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if err := h.Coord.UpdateJobStates(r.Context(), req.AgentID, req.Updates); err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type updateGridTaskRequest struct {
	JobID    string            `json:"job_id"`
	WorkerID string            `json:"worker_id"`
	TaskID   int               `json:"task_id"`
	Outcome  job.ProcessOutcome `json:"outcome"`
}

// HandleUpdateGridTaskStateAndGetNext implements
// update_grid_task_state_and_get_next.
func (h *Handlers) HandleUpdateGridTaskStateAndGetNext(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[updateGridTaskRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	task, err := h.Coord.UpdateGridTaskStateAndGetNext(r.Context(), req.JobID, req.WorkerID, req.TaskID, req.Outcome)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}
