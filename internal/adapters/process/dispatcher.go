// Package process spawns delegated workers as detached local processes.
package process

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"syscall"
	"time"

	"github.com/aretw0/foreman/pkg/domain"
)

// Dispatcher implements ports.Dispatcher by spawning the command in a new
// process session. All three standard streams are redirected to /dev/null so
// the parent can never block on pipe buffers, and the dispatcher returns as
// soon as the worker has started.
type Dispatcher struct {
	dir    string
	env    map[string]string
	logger *slog.Logger
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithDir sets the working directory for spawned workers.
func WithDir(dir string) Option {
	return func(d *Dispatcher) { d.dir = dir }
}

// WithEnv adds environment overrides for spawned workers, on top of the
// parent environment.
func WithEnv(env map[string]string) Option {
	return func(d *Dispatcher) { d.env = env }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// New creates a direct Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch starts the command and reports the outcome. Spawn-time errors
// (binary not found, permission denied, resource exhaustion) are caught and
// reported as a failed result, never raised.
func (d *Dispatcher) Dispatch(ctx context.Context, command, workItemID string) domain.DispatchResult {
	return d.DispatchWithEnv(ctx, command, workItemID, nil)
}

// DispatchWithEnv is Dispatch with per-call environment additions. The pool
// dispatcher uses it to inject claim-identifying variables.
func (d *Dispatcher) DispatchWithEnv(ctx context.Context, command, workItemID string, extraEnv map[string]string) domain.DispatchResult {
	result := domain.DispatchResult{
		Command:    command,
		WorkItemID: workItemID,
		Timestamp:  time.Now().UTC(),
	}

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return failed(result, fmt.Sprintf("cannot open %s: %v", os.DevNull, err))
	}
	// The child inherits its own copies of the descriptor; ours closes after Start.
	defer devnull.Close()

	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Dir = d.dir
	cmd.Stdin = devnull
	cmd.Stdout = devnull
	cmd.Stderr = devnull
	// New session: the worker survives the dispatcher and never shares the
	// controlling terminal.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Env = append(cmd.Environ(), flattenEnv(d.env)...)
	cmd.Env = append(cmd.Env, flattenEnv(extraEnv)...)

	if err := cmd.Start(); err != nil {
		d.logger.Error("worker spawn failed", "err", err, "work_item", workItemID)
		return failed(result, fmt.Sprintf("spawn failed: %v", err))
	}

	pid := cmd.Process.Pid
	result.Success = true
	result.PID = &pid
	d.logger.Info("worker dispatched", "pid", pid, "work_item", workItemID)

	// Fire-and-forget: release our handle, the OS owns the worker now.
	_ = cmd.Process.Release()
	return result
}

func failed(result domain.DispatchResult, msg string) domain.DispatchResult {
	result.Success = false
	result.Error = &msg
	return result
}

func flattenEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(env))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return out
}
