// Package integration exercises the full routing pipeline against fake
// tool binaries: shell scripts on PATH that answer version and help
// probes and accept or reject prompts.
package integration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/relaycli/relay/internal/capability"
	"github.com/relaycli/relay/internal/format"
	"github.com/relaycli/relay/internal/model"
	"github.com/relaycli/relay/internal/router"
	"github.com/relaycli/relay/internal/runner"
	"github.com/relaycli/relay/internal/store"
	"github.com/relaycli/relay/internal/tool"
)

// installTool writes an executable script named name into binDir.
func installTool(t *testing.T, binDir, name, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures require a POSIX shell")
	}
	path := filepath.Join(binDir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
}

// flagTool answers probes and requires -p for one-shot prompts.
const flagTool = `
case "$1" in
  --version) echo "alpha 1.0.0"; exit 0 ;;
  --help)
    echo "Usage: alpha [options]"
    echo ""
    echo "Options:"
    echo "  -p, --prompt <text>   run once with the given prompt and exit"
    echo "  -h, --help            show help"
    exit 0 ;;
  -p) echo "alpha handled: $2"; exit 0 ;;
  *) echo "unknown arguments" >&2; exit 2 ;;
esac
`

// brokenTool probes fine but rejects every invocation shape.
const brokenTool = `
case "$1" in
  --version) echo "beta 0.3.0"; exit 0 ;;
  --help) echo "Usage: beta [prompt]"; exit 0 ;;
  *) echo "refused" >&2; exit 1 ;;
esac
`

// positionalTool accepts any bare prompt.
const positionalTool = `
case "$1" in
  --version) echo "gamma 2.1.0"; exit 0 ;;
  --help) echo "Usage: gamma [prompt]"; exit 0 ;;
  *) echo "gamma handled: $*"; exit 0 ;;
esac
`

type env struct {
	router *router.Router
	store  store.Store
	reg    *tool.Registry
}

func newEnv(t *testing.T, names ...string) *env {
	t.Helper()
	binDir := t.TempDir()
	scripts := map[string]string{
		"alpha": flagTool,
		"beta":  brokenTool,
		"gamma": positionalTool,
	}
	for _, name := range names {
		installTool(t, binDir, name, scripts[name])
	}
	t.Setenv("PATH", binDir)

	st, err := store.New(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	reg := tool.NewRegistry()
	for _, name := range []string{"alpha", "beta", "gamma"} {
		err := reg.Register(tool.Definition{
			Identity: model.ToolIdentity{
				Name:        name,
				VersionArgs: []string{"--version"},
				HelpArgs:    []string{"--help"},
			},
		})
		if err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}

	r := runner.ExecRunner{}
	analyzer := capability.New(st, r, reg, nil)
	resolver := format.NewResolver(nil, nil)
	return &env{
		router: router.New(reg, analyzer, resolver, r, st, nil),
		store:  st,
		reg:    reg,
	}
}

func TestPipelineFlagDialect(t *testing.T) {
	e := newEnv(t, "alpha")
	ctx := context.Background()

	exec, err := e.router.ExecuteWithFallback(ctx, "use alpha to fix the parser", router.ExecOptions{})
	if err != nil {
		t.Fatalf("ExecuteWithFallback: %v", err)
	}
	if exec.Tool != "alpha" {
		t.Fatalf("tool = %q", exec.Tool)
	}
	if exec.Format != "dialect" {
		t.Errorf("format = %q, want the inferred dialect first", exec.Format)
	}
	if !strings.Contains(exec.Output, "alpha handled: fix the parser") {
		t.Errorf("output = %q", exec.Output)
	}

	// The analysis is cached.
	rec, err := e.store.GetCapability(ctx, "alpha")
	if err != nil {
		t.Fatalf("GetCapability: %v", err)
	}
	if rec == nil || rec.Pattern != model.PatternFlag || rec.PromptFlag != "-p" {
		t.Errorf("cached record = %+v", rec)
	}
	if rec.SourceVersion != "1.0.0" {
		t.Errorf("cached version = %q", rec.SourceVersion)
	}
}

func TestPipelineFallbackAcrossTools(t *testing.T) {
	e := newEnv(t, "beta", "gamma")
	if err := e.reg.SetDefault("gamma"); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	exec, err := e.router.ExecuteWithFallback(ctx, "ask beta to summarize the changelog", router.ExecOptions{})
	if err != nil {
		t.Fatalf("ExecuteWithFallback: %v", err)
	}
	if exec.Tool != "gamma" {
		t.Fatalf("tool = %q, want fallback to gamma", exec.Tool)
	}
	if !strings.Contains(exec.Output, "gamma handled") {
		t.Errorf("output = %q", exec.Output)
	}

	// Beta's rejections were logged.
	attempts, err := e.store.ListAttempts(ctx, store.AttemptOpts{Tool: "beta", FailOnly: true})
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(attempts) == 0 {
		t.Error("no failed attempts recorded for beta")
	}
}

func TestPipelineExhaustion(t *testing.T) {
	e := newEnv(t, "beta")
	ctx := context.Background()

	_, err := e.router.ExecuteWithFallback(ctx, "use beta to do anything", router.ExecOptions{})
	if !errors.Is(err, router.ErrRoutingExhausted) {
		t.Fatalf("err = %v, want ErrRoutingExhausted", err)
	}
	var ex *router.ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatal("not an *ExhaustedError")
	}
	if _, ok := ex.Reasons["beta"]; !ok {
		t.Errorf("reasons = %+v", ex.Reasons)
	}
}

func TestPipelineUninstalledTool(t *testing.T) {
	e := newEnv(t, "alpha")

	// gamma is registered but not on PATH; the explicit mention is
	// skipped and no candidate remains above the floor except the
	// default, which is alpha.
	exec, err := e.router.ExecuteWithFallback(context.Background(), "use gamma to summarize", router.ExecOptions{})
	if err != nil {
		t.Fatalf("ExecuteWithFallback: %v", err)
	}
	if exec.Tool != "alpha" {
		t.Errorf("tool = %q, want default alpha", exec.Tool)
	}
}
