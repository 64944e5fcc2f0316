package http

import (
	"net/http"

	"github.com/Strob0t/CodeForge/internal/domain/resource"
)

// The handlers in this file expose the coordinator's scheduler.JobSource/
// AgentSource/Assigner implementation over HTTP under /internal/scheduler,
// so cmd/scheduler-server can run the matching algorithm out of process
// against a remote coordinator instead of embedded in cmd/coordinator.
// None of these routes are part of the client/agent §6 RPC surface.

// HandlePendingDemand implements scheduler.JobSource.PendingDemand.
func (h *Handlers) HandlePendingDemand(w http.ResponseWriter, _ *http.Request) {
	demand, err := h.Coord.PendingDemand()
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, demand)
}

// HandleAgents implements scheduler.AgentSource.Agents.
func (h *Handlers) HandleAgents(w http.ResponseWriter, _ *http.Request) {
	agents, err := h.Coord.Agents()
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

type reserveRequest struct {
	AgentID     string          `json:"agent_id"`
	Requirement resource.Vector `json:"requirement"`
}

// HandleReserve implements scheduler.Assigner.Reserve.
func (h *Handlers) HandleReserve(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[reserveRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	ok2, err := h.Coord.Reserve(req.AgentID, req.Requirement)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": ok2})
}

type assignJobRequest struct {
	JobID   string `json:"job_id"`
	AgentID string `json:"agent_id"`
}

// HandleAssignJob implements scheduler.Assigner.AssignJob.
func (h *Handlers) HandleAssignJob(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[assignJobRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if err := h.Coord.AssignJob(req.JobID, req.AgentID); err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleAssignGridWorker implements scheduler.Assigner.AssignGridWorker.
func (h *Handlers) HandleAssignGridWorker(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[assignJobRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	workerID, err := h.Coord.AssignGridWorker(req.JobID, req.AgentID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"worker_id": workerID})
}

type markUnschedulableRequest struct {
	JobID       string          `json:"job_id"`
	Requirement resource.Vector `json:"requirement"`
}

// HandleMarkUnschedulable implements scheduler.Assigner.MarkUnschedulable.
func (h *Handlers) HandleMarkUnschedulable(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[markUnschedulableRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if err := h.Coord.MarkUnschedulable(req.JobID, req.Requirement); err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type fitsRequest struct {
	Requirement resource.Vector `json:"requirement"`
}

// HandleFitsSomeAgent implements scheduler.Assigner.FitsSomeAgent.
func (h *Handlers) HandleFitsSomeAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[fitsRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"fits": h.Coord.FitsSomeAgent(req.Requirement)})
}
