package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// writeScript creates an executable shell script in dir and returns its path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures require a POSIX shell")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestRunCapturesOutput(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "ok.sh", `echo "1.2.3"; echo "warn" >&2`)

	res, err := ExecRunner{}.Run(context.Background(), path, nil, 5*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Failed() {
		t.Errorf("Failed = true for zero exit (code %d, timed out %v)", res.ExitCode, res.TimedOut)
	}
	if strings.TrimSpace(res.Stdout) != "1.2.3" {
		t.Errorf("Stdout = %q", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "warn" {
		t.Errorf("Stderr = %q", res.Stderr)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "fail.sh", `echo "bad flag" >&2; exit 2`)

	res, err := ExecRunner{}.Run(context.Background(), path, []string{"--bogus"}, 5*time.Second)
	if err != nil {
		t.Fatalf("Run returned infrastructure error for non-zero exit: %v", err)
	}
	if res.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", res.ExitCode)
	}
	if !res.Failed() {
		t.Error("Failed should be true for non-zero exit")
	}
}

func TestRunTimeout(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "slow.sh", `sleep 10`)

	res, err := ExecRunner{}.Run(context.Background(), path, nil, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.TimedOut {
		t.Error("TimedOut should be true")
	}
	if !res.Failed() {
		t.Error("timeout must count as failure")
	}
}

func TestRunStartFailure(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), filepath.Join(t.TempDir(), "nope"), nil, time.Second)
	if err == nil {
		t.Fatal("expected error for missing executable")
	}
}

func TestLookPath(t *testing.T) {
	if _, ok := (ExecRunner{}).LookPath("relay-test-definitely-not-installed"); ok {
		t.Error("LookPath found a nonexistent binary")
	}
}

func TestRejectedError(t *testing.T) {
	err := error(&RejectedError{Tool: "alpha", Format: "p-flag", ExitCode: 2, Stderr: "usage: alpha [opts]\nunknown flag -p\n"})

	if !errors.Is(err, ErrInvocationRejected) {
		t.Error("errors.Is(ErrInvocationRejected) should match")
	}
	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatal("errors.As should extract RejectedError")
	}
	msg := err.Error()
	if !strings.Contains(msg, "alpha") || !strings.Contains(msg, "unknown flag -p") {
		t.Errorf("Error() = %q, missing tool or stderr tail", msg)
	}
}
