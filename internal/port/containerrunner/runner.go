// Package containerrunner defines the port an agent uses to launch a job's
// interpreter deployment, whether as a local process/container or as a
// Kubernetes Job.
package containerrunner

import (
	"context"

	"github.com/Strob0t/CodeForge/internal/domain/job"
)

// Spec is everything a runner needs to launch one job or grid-worker
// process.
type Spec struct {
	JobID       string
	Interpreter job.InterpreterDeployment
	Code        job.CodeDeployment
	Args        []string
	Environment map[string]string
	LogFileName string
}

// Handle identifies a launched process/container so the agent can wait on
// it and report its outcome.
type Handle struct {
	PID         int
	ContainerID string
}

// Runner launches and waits on interpreter deployments.
type Runner interface {
	// Launch starts the process/container described by spec and returns a
	// handle. A launch failure (image pull, exec, k8s API error) is
	// returned as an error, which the agent reports as RUN_REQUEST_FAILED.
	Launch(ctx context.Context, spec Spec) (Handle, error)

	// Wait blocks until the launched process/container exits, returning its
	// return code.
	Wait(ctx context.Context, h Handle) (returnCode int, err error)
}
