// Package job defines the Job domain entity: identity, deployments, spec
// variants, and the process-state lifecycle shared by jobs and grid tasks.
package job

// State is the lifecycle of a job or grid task's process.
type State string

const (
	StateRunRequested          State = "RUN_REQUESTED"
	StateRunning               State = "RUNNING"
	StateSucceeded             State = "SUCCEEDED"
	StateRunRequestFailed      State = "RUN_REQUEST_FAILED"
	StatePythonException       State = "PYTHON_EXCEPTION"
	StateNonZeroReturnCode     State = "NON_ZERO_RETURN_CODE"
	StateResourcesNotAvailable State = "RESOURCES_NOT_AVAILABLE"
	StateErrorGettingState     State = "ERROR_GETTING_STATE"
	StateCancelled             State = "CANCELLED"
	StateUnknown               State = "UNKNOWN"
)

// terminal is the set of states from which no further transition is allowed.
var terminal = map[State]bool{
	StateSucceeded:             true,
	StateRunRequestFailed:      true,
	StatePythonException:       true,
	StateNonZeroReturnCode:     true,
	StateResourcesNotAvailable: true,
	StateErrorGettingState:     true,
	StateCancelled:             true,
}

// IsTerminal reports whether s admits no further transitions.
func (s State) IsTerminal() bool {
	return terminal[s]
}

// ProcessOutcome carries the terminal detail attached to a state transition:
// pid/container id while running, and the result once finished.
type ProcessOutcome struct {
	State         State  `json:"state"`
	PID           int    `json:"pid,omitempty"`
	ContainerID   string `json:"container_id,omitempty"`
	LogFileName   string `json:"log_file_name,omitempty"`
	ResultPickle  []byte `json:"result_pickle,omitempty"`
	ResultBlobRef string `json:"result_blob_ref,omitempty"` // set instead of ResultPickle when offloaded to S3
	ReturnCode    *int   `json:"return_code,omitempty"`
	ExceptionType string `json:"exception_type,omitempty"`
	ExceptionMsg  string `json:"exception_message,omitempty"`
	Traceback     string `json:"traceback,omitempty"`
}
