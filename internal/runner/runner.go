// Package runner executes external tool processes with bounded timeouts.
// Every subprocess relay starts goes through a Runner, so tests can
// substitute a scripted fake.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Result is the outcome of one external invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Failed reports whether the invocation should be treated as unsuccessful.
// A timeout is handled identically to a non-zero exit.
func (r Result) Failed() bool {
	return r.TimedOut || r.ExitCode != 0
}

// Runner resolves and invokes external tools.
type Runner interface {
	// LookPath resolves the executable for name. A false return means the
	// tool is not installed.
	LookPath(name string) (string, bool)

	// Run invokes path with args, killing the process when timeout elapses.
	// The error is non-nil only when the process could not be started;
	// non-zero exits and timeouts are reported through the Result.
	Run(ctx context.Context, path string, args []string, timeout time.Duration) (Result, error)
}

// ExecRunner is the os/exec-backed Runner used in production.
type ExecRunner struct{}

// LookPath resolves name on PATH.
func (ExecRunner) LookPath(name string) (string, bool) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", false
	}
	return path, true
}

// Run invokes the process and waits for it, subject to the timeout.
func (ExecRunner) Run(ctx context.Context, path string, args []string, timeout time.Duration) (Result, error) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("start %s: %w", path, err)
	}
	return res, nil
}

// ErrInvocationRejected marks a run-time refusal of a chosen argument
// recipe. Match with errors.Is; inspect details via errors.As on
// *RejectedError.
var ErrInvocationRejected = errors.New("invocation rejected")

// RejectedError reports that a tool refused a concrete argument recipe.
type RejectedError struct {
	Tool     string
	Format   string
	ExitCode int
	Stderr   string
}

func (e *RejectedError) Error() string {
	msg := fmt.Sprintf("%s rejected %s recipe (exit %d)", e.Tool, e.Format, e.ExitCode)
	if tail := lastLine(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

// Is makes errors.Is(err, ErrInvocationRejected) match.
func (e *RejectedError) Is(target error) bool {
	return target == ErrInvocationRejected
}

// lastLine returns the final non-blank line of s, truncated for display.
func lastLine(s string) string {
	var last string
	for _, line := range bytes.Split([]byte(s), []byte("\n")) {
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			last = string(trimmed)
		}
	}
	const max = 200
	if len(last) > max {
		last = last[:max-3] + "..."
	}
	return last
}
