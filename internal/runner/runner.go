// Package runner executes shell command strings and classifies the outcome.
// Failures of any kind are returned as data on Result; Run never returns an
// error and never panics on a bad command.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of a single command run.
type Result struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
	Status   Status
	Duration time.Duration

	// Message is the classified text: trimmed stdout on success, trimmed
	// stderr on a non-zero exit, or the fault description otherwise.
	Message string

	// NotStarted is set when the process could not be started at all.
	NotStarted bool
}

func (r *Result) Failed() bool {
	return r == nil || r.Status != StatusSuccess
}

// Output renders the result the way it is shown to the user.
func (r *Result) Output() string {
	if r == nil {
		return ""
	}
	switch {
	case r.Status == StatusSuccess:
		return r.Message
	case r.Status == StatusTimeout:
		return "Command failed with error: " + r.Message
	case r.NotStarted:
		return "An unexpected error occurred: " + r.Message
	default:
		return "Command failed with error: " + r.Message
	}
}

// Executor runs one command string.
type Executor interface {
	Run(ctx context.Context, command string) *Result
}

type Options struct {
	// Shell is the interpreter used with -c. Defaults to /bin/sh (cmd on Windows).
	Shell string
	// Timeout bounds each run. Zero disables the bound.
	Timeout time.Duration
	Env     []string
	Logger  *zap.Logger
}

// ShellExecutor runs commands through a shell in their own process group.
type ShellExecutor struct {
	shell   string
	timeout time.Duration
	env     []string
	log     *zap.Logger
}

func NewShellExecutor(opts Options) *ShellExecutor {
	shell := strings.TrimSpace(opts.Shell)
	if shell == "" {
		shell = defaultShell
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &ShellExecutor{
		shell:   shell,
		timeout: opts.Timeout,
		env:     opts.Env,
		log:     log,
	}
}

func (e *ShellExecutor) Run(ctx context.Context, command string) *Result {
	start := time.Now()
	res := &Result{Command: command, ExitCode: -1}

	if strings.TrimSpace(command) == "" {
		res.Status = StatusFailure
		res.NotStarted = true
		res.Message = "no command provided"
		e.log.Error("An unexpected error occurred", zap.String("command", command), zap.String("error", res.Message))
		return res
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmd := shellCommand(ctx, e.shell, command)
	if len(e.env) > 0 {
		cmd.Env = append(cmd.Environ(), e.env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = strings.TrimSpace(stdout.String())
	res.Stderr = strings.TrimSpace(stderr.String())
	res.NotStarted = cmd.ProcessState == nil

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Status = StatusSuccess
		res.ExitCode = 0
		res.Message = res.Stdout
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Status = StatusTimeout
		res.ExitCode = exitCode(cmd)
		res.Message = e.timeoutMessage()
		e.log.Error("Command timed out", zap.String("command", command), zap.Duration("timeout", e.timeout))
	case errors.Is(ctx.Err(), context.Canceled):
		res.Status = StatusFailure
		res.ExitCode = exitCode(cmd)
		res.Message = "command cancelled"
		e.log.Error("Command cancelled", zap.String("command", command))
	case errors.As(err, &exitErr):
		res.Status = StatusFailure
		res.ExitCode = exitErr.ExitCode()
		res.Message = res.Stderr
		if res.Message == "" {
			res.Message = err.Error()
		}
		e.log.Error("Command failed with error", zap.String("command", command), zap.String("stderr", res.Stderr), zap.Int("exit_code", res.ExitCode))
	default:
		res.Status = StatusFailure
		res.Message = err.Error()
		e.log.Error("An unexpected error occurred", zap.String("command", command), zap.Error(err))
	}
	return res
}

func (e *ShellExecutor) timeoutMessage() string {
	if e.timeout > 0 {
		return fmt.Sprintf("command timed out after %s", e.timeout)
	}
	return "command timed out"
}

func exitCode(cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}
