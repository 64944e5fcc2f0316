package messagequeue

// JobSubmittedPayload is the schema for grid.job.submitted messages.
type JobSubmittedPayload struct {
	JobID    string  `json:"job_id"`
	Priority float64 `json:"priority"`
	IsGrid   bool    `json:"is_grid"`
}

// AgentRegisteredPayload is the schema for grid.agent.registered messages.
type AgentRegisteredPayload struct {
	AgentID     string  `json:"agent_id"`
	JobAffinity string  `json:"job_affinity,omitempty"`
}

// StateUpdatedPayload is the schema for grid.state.updated messages.
type StateUpdatedPayload struct {
	JobID   string `json:"job_id"`
	TaskID  *int   `json:"task_id,omitempty"`
	AgentID string `json:"agent_id"`
	State   string `json:"state"`
}

// AgentLostPayload is the schema for grid.agent.lost messages.
type AgentLostPayload struct {
	AgentID string `json:"agent_id"`
}

// TaskOutputPayload is the schema for grid.task.output messages.
type TaskOutputPayload struct {
	JobID   string `json:"job_id"`
	TaskID  *int   `json:"task_id,omitempty"`
	AgentID string `json:"agent_id"`
	Stream  string `json:"stream"` // "stdout" or "stderr"
	Line    string `json:"line"`
}
