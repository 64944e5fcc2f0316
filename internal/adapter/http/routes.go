package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/CodeForge/internal/middleware"
)

// MountRoutes registers the client- and agent-facing §6 RPC surface on r.
// idempotency wraps add_job only, the one mutation a client retries blind
// after a timeout; every other route is naturally idempotent or
// agent-private.
func MountRoutes(r chi.Router, h *Handlers, idempotency func(http.Handler) http.Handler) {
	r.Route("/jobs", func(r chi.Router) {
		r.With(idempotency).Post("/", h.HandleAddJob)
		r.Post("/states", h.HandleGetSimpleJobStates)
		r.Post("/{id}/grid-tasks", h.HandleAddTasksToGridJob)
		r.Get("/{id}/grid-tasks/states", h.HandleGetGridTaskStates)
	})

	r.Post("/credentials", h.HandleAddCredentials)
	r.Get("/agents", h.HandleGetAgentStates)

	r.Route("/agent", func(r chi.Router) {
		r.Post("/register", h.HandleRegisterAgent)
		r.Post("/next-jobs", h.HandleGetNextJobs)
		r.Post("/job-states", h.HandleUpdateJobStates)
		r.Post("/grid-task-state", h.HandleUpdateGridTaskStateAndGetNext)
	})
}

// MountSchedulerRoutes registers the internal-only scheduler surface that
// lets cmd/scheduler-server run the matching algorithm against a remote
// coordinator (§6's public RPCs never expose Reserve/Assign directly).
// Callers should keep this mount unreachable from outside the cluster,
// e.g. behind a separate listener or network policy.
func MountSchedulerRoutes(r chi.Router, h *Handlers) {
	r.Route("/internal/scheduler", func(r chi.Router) {
		r.Get("/demand", h.HandlePendingDemand)
		r.Get("/agents", h.HandleAgents)
		r.Post("/reserve", h.HandleReserve)
		r.Post("/assign-job", h.HandleAssignJob)
		r.Post("/assign-grid-worker", h.HandleAssignGridWorker)
		r.Post("/mark-unschedulable", h.HandleMarkUnschedulable)
		r.Post("/fits", h.HandleFitsSomeAgent)
	})
}

// RequestID re-exports internal/middleware.RequestID so cmd/coordinator
// doesn't need a second import alongside this package's own middleware.
var RequestID = middleware.RequestID
