package agentloop

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/Strob0t/CodeForge/internal/domain/gridtask"
	"github.com/Strob0t/CodeForge/internal/domain/job"
	"github.com/Strob0t/CodeForge/internal/port/containerrunner"
	"github.com/Strob0t/CodeForge/internal/service/coordinator"
)

// runGridWorker drives one grid worker's loop: fetch the first task with a
// sentinel call (taskID -1, no outcome to report), then repeatedly run a
// task and immediately report-and-fetch-next in the same call, until the
// coordinator signals the queue closed (TaskID -1 again) per §4.3.
func (l *Loop) runGridWorker(ctx context.Context, a coordinator.JobToRun) {
	j := a.Job
	workerID := a.GridWorkerID

	cwd, err := l.resolveCode(ctx, j.ID, j.CodeDeployment, a.CodeCredentials)
	if err != nil {
		l.log.ErrorContext(ctx, "grid worker code resolution failed", "job_id", j.ID, "worker_id", workerID, "error", err)
		return
	}

	task, err := l.client.UpdateGridTaskStateAndGetNext(ctx, j.ID, workerID, -1, job.ProcessOutcome{})
	if err != nil {
		l.log.ErrorContext(ctx, "update_grid_task_state_and_get_next failed", "job_id", j.ID, "worker_id", workerID, "error", err)
		return
	}

	for task.TaskID >= 0 {
		outcome := l.runTask(ctx, j, cwd, task)

		next, err := l.client.UpdateGridTaskStateAndGetNext(ctx, j.ID, workerID, task.TaskID, outcome)
		if err != nil {
			l.log.ErrorContext(ctx, "update_grid_task_state_and_get_next failed", "job_id", j.ID, "worker_id", workerID, "task_id", task.TaskID, "error", err)
			return
		}
		task = next
	}
}

func (l *Loop) runTask(ctx context.Context, j job.Job, cwd string, task gridtask.Task) job.ProcessOutcome {
	argFile, cleanup, err := writeArgFile(l.cfg.WorkDir, j.ID, task.Argument)
	if err != nil {
		return job.ProcessOutcome{State: job.StateRunRequestFailed, ExceptionType: "ArgWriteError", ExceptionMsg: err.Error()}
	}
	defer cleanup()

	env := make(map[string]string, len(j.Environment)+3)
	for k, v := range j.Environment {
		env[k] = v
	}
	env["GRID_FUNCTION_MODULE"] = j.Spec.GridFunctionModule
	env["GRID_FUNCTION_NAME"] = j.Spec.GridFunctionName
	env["GRID_FUNCTION_ARGS_FILE"] = argFile
	if cwd != "" {
		env["GRID_WORKDIR"] = cwd
	}

	spec := containerrunner.Spec{
		JobID:       j.ID,
		Interpreter: j.InterpreterDeployment,
		Code:        j.CodeDeployment,
		Environment: env,
		LogFileName: filepath.Join(l.cfg.WorkDir, j.ID, taskLogName(task.TaskID)),
	}

	h, err := l.runner.Launch(ctx, spec)
	if err != nil {
		return job.ProcessOutcome{State: job.StateRunRequestFailed, ExceptionType: "LaunchError", ExceptionMsg: err.Error(), LogFileName: spec.LogFileName}
	}

	code, err := l.runner.Wait(ctx, h)
	if err != nil {
		return job.ProcessOutcome{State: job.StateErrorGettingState, ExceptionType: "WaitError", ExceptionMsg: err.Error(), LogFileName: spec.LogFileName}
	}
	outcome := returnCodeOutcome(code)
	outcome.LogFileName = spec.LogFileName
	return outcome
}

func taskLogName(taskID int) string {
	return "task-" + strconv.Itoa(taskID) + ".log"
}
