// Package subprocessrunner implements the containerrunner.Runner port by
// exec'ing the interpreter directly on the agent host — the path taken for
// SERVER_AVAILABLE_INTERPRETER and SERVER_AVAILABLE_CONTAINER deployments
// where no scheduler (k8s) mediates the workload.
package subprocessrunner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/Strob0t/CodeForge/internal/port/containerrunner"
)

// Runner launches processes directly via os/exec.
type Runner struct {
	mu      sync.Mutex
	running map[int]*exec.Cmd
}

// New creates a Runner.
func New() *Runner {
	return &Runner{running: make(map[int]*exec.Cmd)}
}

var _ containerrunner.Runner = (*Runner)(nil)

// Launch starts spec.Interpreter.InterpreterPath with spec.Args and returns
// its PID as the handle.
func (r *Runner) Launch(ctx context.Context, spec containerrunner.Spec) (containerrunner.Handle, error) {
	if spec.Interpreter.InterpreterPath == "" {
		return containerrunner.Handle{}, fmt.Errorf("subprocessrunner: no interpreter path in spec")
	}

	args := append([]string{}, spec.Args...)
	cmd := exec.CommandContext(ctx, spec.Interpreter.InterpreterPath, args...)
	cmd.Env = os.Environ()
	for k, v := range spec.Environment {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	if spec.LogFileName != "" {
		logFile, err := os.Create(spec.LogFileName)
		if err != nil {
			return containerrunner.Handle{}, fmt.Errorf("subprocessrunner: create log file %s: %w", spec.LogFileName, err)
		}
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		return containerrunner.Handle{}, fmt.Errorf("subprocessrunner: start %s: %w", spec.Interpreter.InterpreterPath, err)
	}

	r.mu.Lock()
	r.running[cmd.Process.Pid] = cmd
	r.mu.Unlock()

	return containerrunner.Handle{PID: cmd.Process.Pid}, nil
}

// Wait blocks until the process identified by h.PID exits.
func (r *Runner) Wait(ctx context.Context, h containerrunner.Handle) (int, error) {
	r.mu.Lock()
	cmd, ok := r.running[h.PID]
	r.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("subprocessrunner: no tracked process with pid %d", h.PID)
	}

	err := cmd.Wait()

	r.mu.Lock()
	delete(r.running, h.PID)
	r.mu.Unlock()

	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return 0, fmt.Errorf("subprocessrunner: wait pid %d: %w", h.PID, err)
}
