package job

import (
	"fmt"
	"regexp"
	"time"

	"github.com/Strob0t/CodeForge/internal/domain/resource"
)

// SpecKind is the closed set of job body variants.
type SpecKind string

const (
	SpecCommand  SpecKind = "COMMAND"
	SpecFunction SpecKind = "FUNCTION"
	SpecGrid     SpecKind = "GRID"
)

// Spec is a tagged union carrying the code to run.
type Spec struct {
	Kind SpecKind `json:"kind"`

	// COMMAND
	Args []string `json:"args,omitempty"`

	// FUNCTION
	FunctionModule string `json:"function_module,omitempty"`
	FunctionName   string `json:"function_name,omitempty"`
	FunctionArgs   []byte `json:"function_args,omitempty"` // opaque serialized payload, never inspected

	// GRID: the function to apply to each task's argument blob; the task
	// list itself lives in the grid-task registry, not here.
	GridFunctionModule string `json:"grid_function_module,omitempty"`
	GridFunctionName   string `json:"grid_function_name,omitempty"`
}

func (s Spec) Validate() error {
	switch s.Kind {
	case SpecCommand:
		if len(s.Args) == 0 {
			return fmt.Errorf("command spec: at least one arg required")
		}
	case SpecFunction:
		if s.FunctionModule == "" || s.FunctionName == "" {
			return fmt.Errorf("function spec: module and name required")
		}
	case SpecGrid:
		if s.GridFunctionModule == "" || s.GridFunctionName == "" {
			return fmt.Errorf("grid spec: module and name required")
		}
	default:
		return fmt.Errorf("job spec: unknown kind %q", s.Kind)
	}
	return nil
}

// IsGrid reports whether this spec drives a grid job.
func (s Spec) IsGrid() bool { return s.Kind == SpecGrid }

// idPattern restricts job ids to letters, digits, '.', '-', '_'.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateID checks the job id charset.
func ValidateID(id string) error {
	if id == "" || !idPattern.MatchString(id) {
		return fmt.Errorf("job id %q: must be non-empty and match [A-Za-z0-9._-]+", id)
	}
	return nil
}

// Job is immutable after Add: every field here is set at submission time and
// never mutated. Runtime state lives alongside it in the job registry.
type Job struct {
	ID                        string                 `json:"id"`
	Name                      string                 `json:"name"`
	Priority                  float64                `json:"priority"`
	InterruptionProbability   float64                `json:"interruption_probability_threshold"` // 0 means on-demand only
	CodeDeployment            CodeDeployment         `json:"code_deployment"`
	InterpreterDeployment     InterpreterDeployment  `json:"interpreter_deployment"`
	Environment               map[string]string      `json:"environment_variables,omitempty"`
	ResourceRequirement       resource.Vector         `json:"resource_requirement"`
	ResultPickleProtocolLimit int                    `json:"result_pickle_protocol_ceiling"`
	Spec                      Spec                   `json:"spec"`
	SubmittedAt               time.Time              `json:"submitted_at"`
}

// Validate checks everything add_job must confirm before insertion:
// id charset, resource nonneg, deployment oneofs, priority positivity.
func (j Job) Validate() error {
	if err := ValidateID(j.ID); err != nil {
		return err
	}
	if j.Priority <= 0 {
		return fmt.Errorf("job %s: priority must be positive, got %v", j.ID, j.Priority)
	}
	if err := j.ResourceRequirement.Validate(); err != nil {
		return fmt.Errorf("job %s: %w", j.ID, err)
	}
	if err := j.CodeDeployment.Validate(); err != nil {
		return fmt.Errorf("job %s: %w", j.ID, err)
	}
	if err := j.InterpreterDeployment.Validate(); err != nil {
		return fmt.Errorf("job %s: %w", j.ID, err)
	}
	if err := j.Spec.Validate(); err != nil {
		return fmt.Errorf("job %s: %w", j.ID, err)
	}
	return nil
}

// Record pairs an immutable Job with its mutable runtime state. For grid
// jobs, Outcome and AssignedAgent are unused — synthetic state and worker
// assignment live in the grid-task registry instead (§4.3).
type Record struct {
	Job           Job
	Outcome       ProcessOutcome
	AssignedAgent string // agent id; empty until scheduled (non-grid jobs only)
}

// AddResult is the outcome of a job-registry Add call.
type AddResult string

const (
	AddResultAdded       AddResult = "ADDED"
	AddResultIsDuplicate AddResult = "IS_DUPLICATE"
)
