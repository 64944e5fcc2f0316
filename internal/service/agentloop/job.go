package agentloop

import (
	"context"
	"os"
	"path/filepath"

	"github.com/Strob0t/CodeForge/internal/domain/credential"
	"github.com/Strob0t/CodeForge/internal/domain/job"
	"github.com/Strob0t/CodeForge/internal/port/containerrunner"
	"github.com/Strob0t/CodeForge/internal/service/coordinator"
)

// runJob launches a non-grid job end to end: resolve its code deployment,
// launch the interpreter, report RUNNING with the launched handle, wait,
// then report whichever terminal state the return code implies.
func (l *Loop) runJob(ctx context.Context, a coordinator.JobToRun) {
	j := a.Job

	spec, cleanup, err := l.buildSpec(ctx, j, a.CodeCredentials)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		l.report(ctx, j.ID, job.ProcessOutcome{
			State:         job.StateRunRequestFailed,
			ExceptionType: "DeploymentResolutionError",
			ExceptionMsg:  err.Error(),
		})
		return
	}

	h, err := l.runner.Launch(ctx, spec)
	if err != nil {
		l.report(ctx, j.ID, job.ProcessOutcome{
			State:         job.StateRunRequestFailed,
			ExceptionType: "LaunchError",
			ExceptionMsg:  err.Error(),
		})
		return
	}
	l.report(ctx, j.ID, job.ProcessOutcome{
		State:       job.StateRunning,
		PID:         h.PID,
		ContainerID: h.ContainerID,
		LogFileName: spec.LogFileName,
	})

	code, err := l.runner.Wait(ctx, h)
	if err != nil {
		l.report(ctx, j.ID, job.ProcessOutcome{
			State:         job.StateErrorGettingState,
			ExceptionType: "WaitError",
			ExceptionMsg:  err.Error(),
		})
		return
	}
	l.report(ctx, j.ID, returnCodeOutcome(code))
}

func returnCodeOutcome(code int) job.ProcessOutcome {
	if code == 0 {
		return job.ProcessOutcome{State: job.StateSucceeded, ReturnCode: &code}
	}
	return job.ProcessOutcome{State: job.StateNonZeroReturnCode, ReturnCode: &code}
}

func (l *Loop) report(ctx context.Context, jobID string, outcome job.ProcessOutcome) {
	err := l.client.UpdateJobStates(ctx, l.cfg.AgentID, []coordinator.StateUpdate{
		{JobID: jobID, Outcome: outcome},
	})
	if err != nil {
		l.log.ErrorContext(ctx, "update_job_states failed", "job_id", jobID, "state", outcome.State, "error", err)
	}
}

// buildSpec resolves a job's code and interpreter deployments into a
// containerrunner.Spec. The returned cleanup removes any scratch files
// written for function argument passing.
func (l *Loop) buildSpec(ctx context.Context, j job.Job, codeCred *credential.Resolved) (containerrunner.Spec, func(), error) {
	cwd, err := l.resolveCode(ctx, j.ID, j.CodeDeployment, codeCred)
	if err != nil {
		return containerrunner.Spec{}, nil, err
	}

	env := make(map[string]string, len(j.Environment)+2)
	for k, v := range j.Environment {
		env[k] = v
	}

	var args []string
	var cleanup func()

	switch j.Spec.Kind {
	case job.SpecCommand:
		args = j.Spec.Args

	case job.SpecFunction:
		env["GRID_FUNCTION_MODULE"] = j.Spec.FunctionModule
		env["GRID_FUNCTION_NAME"] = j.Spec.FunctionName
		argFile, c, err := writeArgFile(l.cfg.WorkDir, j.ID, j.Spec.FunctionArgs)
		if err != nil {
			return containerrunner.Spec{}, nil, err
		}
		env["GRID_FUNCTION_ARGS_FILE"] = argFile
		cleanup = c

	default:
		// grid jobs never reach runJob; they go through runGridWorker.
	}

	logFile := filepath.Join(l.cfg.WorkDir, j.ID+".log")
	spec := containerrunner.Spec{
		JobID:       j.ID,
		Interpreter: j.InterpreterDeployment,
		Code:        j.CodeDeployment,
		Args:        args,
		Environment: env,
		LogFileName: logFile,
	}
	if cwd != "" {
		spec.Environment["GRID_WORKDIR"] = cwd
	}
	return spec, cleanup, nil
}

func writeArgFile(workDir, jobID string, data []byte) (string, func(), error) {
	dir := filepath.Join(workDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, err
	}
	path := filepath.Join(dir, "args.bin")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", nil, err
	}
	return path, func() { os.Remove(path) }, nil
}
