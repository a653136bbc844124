// Package capability discovers how an installed CLI tool wants to be
// invoked. It probes the binary with version and help commands, infers
// the invocation dialect from the help text, and caches the result so
// repeated lookups cost nothing until the tool's version changes.
package capability

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/relaycli/relay/internal/helptext"
	"github.com/relaycli/relay/internal/model"
	"github.com/relaycli/relay/internal/runner"
	"github.com/relaycli/relay/internal/store"
	"github.com/relaycli/relay/internal/tool"
)

// ErrNotInstalled reports that the tool binary is not on PATH.
var ErrNotInstalled = errors.New("tool not installed")

// ErrUnresponsive reports that the tool is on PATH but its probe
// invocations failed or timed out, and no cached record is available.
var ErrUnresponsive = errors.New("tool unresponsive")

const (
	// probeTimeout bounds each version/help invocation.
	probeTimeout = 5 * time.Second
	// failureCooldown is how long a tool sits out after a failed probe.
	failureCooldown = time.Hour
	// cacheFreshness is the age under which a version-matched record is
	// trusted without re-running the help probe.
	cacheFreshness = 24 * time.Hour
)

// Origin describes where an analysis result came from.
type Origin string

const (
	// OriginCache means the stored record was fresh and returned as-is.
	OriginCache Origin = "cache"
	// OriginFresh means the tool was probed and the record rebuilt.
	OriginFresh Origin = "fresh"
	// OriginStaleCache means probing failed and an older record was
	// returned as a fallback.
	OriginStaleCache Origin = "stale-cache"
)

// Options adjusts a single Analyze call.
type Options struct {
	// ForceRefresh bypasses the cache and any active cooldown.
	ForceRefresh bool
}

// Analyzer probes installed tools and maintains their capability records.
type Analyzer struct {
	store  store.Store
	runner runner.Runner
	tools  *tool.Registry
	clock  func() time.Time
	logger *zap.Logger
}

// New creates an Analyzer. A nil logger disables logging.
func New(st store.Store, r runner.Runner, tools *tool.Registry, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		store:  st,
		runner: r,
		tools:  tools,
		clock:  time.Now,
		logger: logger,
	}
}

// SetClock overrides the time source, for tests.
func (a *Analyzer) SetClock(clock func() time.Time) { a.clock = clock }

// identity returns the probe identity for name. Tools absent from the
// registry get the conventional --version/--help arguments.
func (a *Analyzer) identity(name string) model.ToolIdentity {
	if def, ok := a.tools.Get(name); ok {
		return def.Identity
	}
	return model.ToolIdentity{
		Name:        name,
		VersionArgs: []string{"--version"},
		HelpArgs:    []string{"--help"},
	}
}

// Analyze returns the capability record for the named tool, probing the
// binary only when the cache cannot answer. The returned Origin reports
// whether the record came from the cache, a fresh probe, or a stale
// fallback after a probe failure.
func (a *Analyzer) Analyze(ctx context.Context, name string, opts Options) (*model.CapabilityRecord, Origin, error) {
	id := a.identity(name)
	now := a.clock()

	path, ok := a.runner.LookPath(id.Name)
	if !ok {
		return nil, "", fmt.Errorf("%s: %w", id.Name, ErrNotInstalled)
	}

	cached, err := a.store.GetCapability(ctx, id.Name)
	if err != nil {
		return nil, "", fmt.Errorf("reading cached capability: %w", err)
	}

	if !opts.ForceRefresh {
		failure, err := a.store.GetFailure(ctx, id.Name)
		if err != nil {
			return nil, "", fmt.Errorf("reading failure record: %w", err)
		}
		if failure.Active(now) {
			if cached != nil {
				a.logger.Debug("cooldown active, serving cached record",
					zap.String("tool", id.Name),
					zap.Time("cooldown_until", failure.CooldownUntil))
				return cached, OriginStaleCache, nil
			}
			return nil, "", fmt.Errorf("%s in cooldown until %s: %w",
				id.Name, failure.CooldownUntil.Format(time.RFC3339), ErrUnresponsive)
		}
	}

	version, err := a.probeVersion(ctx, path, id)
	if err != nil {
		a.recordFailure(ctx, id.Name, now)
		if cached != nil {
			a.logger.Debug("version probe failed, serving cached record",
				zap.String("tool", id.Name), zap.Error(err))
			return cached, OriginStaleCache, nil
		}
		return nil, "", fmt.Errorf("%s: %v: %w", id.Name, err, ErrUnresponsive)
	}

	if !opts.ForceRefresh && cached != nil && !cached.Stale(version) &&
		now.Sub(cached.AnalyzedAt) < cacheFreshness {
		return cached, OriginCache, nil
	}

	text, err := a.probeHelp(ctx, path, id)
	if err != nil {
		a.recordFailure(ctx, id.Name, now)
		if cached != nil {
			return cached, OriginStaleCache, nil
		}
		return nil, "", fmt.Errorf("%s: %v: %w", id.Name, err, ErrUnresponsive)
	}

	rec, err := helptext.Classify(id.Name, text)
	if errors.Is(err, helptext.ErrParseIncomplete) {
		// The tool answers probes but its help text gave us nothing;
		// fall back to passing the prompt as a positional argument.
		a.logger.Debug("help text unparseable, assuming argument-based",
			zap.String("tool", id.Name))
		rec = &model.CapabilityRecord{
			Tool:    id.Name,
			Vendor:  helptext.DetectVendor(text),
			Pattern: model.PatternArgument,
		}
	} else if err != nil {
		return nil, "", fmt.Errorf("classifying %s help text: %w", id.Name, err)
	}

	rec.SourceVersion = version
	rec.AnalyzedAt = now

	if err := a.store.PutCapability(ctx, *rec); err != nil {
		return nil, "", fmt.Errorf("storing capability record: %w", err)
	}
	a.clearFailure(ctx, id.Name, now)

	a.logger.Debug("analyzed tool",
		zap.String("tool", id.Name),
		zap.String("version", version),
		zap.String("pattern", string(rec.Pattern)))
	return rec, OriginFresh, nil
}

// AnalyzeEnhanced runs Analyze and overlays registry metadata (context
// window, subagent and skill support) onto a copy of the result. The
// stored record is never mutated.
func (a *Analyzer) AnalyzeEnhanced(ctx context.Context, name string, opts Options) (*model.CapabilityRecord, Origin, error) {
	rec, origin, err := a.Analyze(ctx, name, opts)
	if err != nil {
		return nil, origin, err
	}
	def, ok := a.tools.Get(name)
	if !ok || def.Metadata == nil {
		return rec, origin, nil
	}
	out := rec.Clone()
	m := *def.Metadata
	out.Metadata = &m
	return out, origin, nil
}

// probeVersion runs the version invocation and extracts a version string.
func (a *Analyzer) probeVersion(ctx context.Context, path string, id model.ToolIdentity) (string, error) {
	res, err := a.runner.Run(ctx, path, id.VersionArgs, probeTimeout)
	if err != nil {
		return "", fmt.Errorf("version probe: %w", err)
	}
	if res.TimedOut {
		return "", fmt.Errorf("version probe timed out after %s", probeTimeout)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("version probe exited %d", res.ExitCode)
	}
	return ParseVersion(res.Stdout), nil
}

// probeHelp runs the help invocation. Some tools print help to stderr,
// and some exit non-zero on --help; any non-empty output counts.
func (a *Analyzer) probeHelp(ctx context.Context, path string, id model.ToolIdentity) (string, error) {
	res, err := a.runner.Run(ctx, path, id.HelpArgs, probeTimeout)
	if err != nil {
		return "", fmt.Errorf("help probe: %w", err)
	}
	if res.TimedOut {
		return "", fmt.Errorf("help probe timed out after %s", probeTimeout)
	}
	text := res.Stdout
	if strings.TrimSpace(text) == "" {
		text = res.Stderr
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("help probe produced no output (exit %d)", res.ExitCode)
	}
	return text, nil
}

func (a *Analyzer) recordFailure(ctx context.Context, tool string, now time.Time) {
	rec := model.FailureRecord{
		Tool:          tool,
		LastFailure:   now,
		CooldownUntil: now.Add(failureCooldown),
	}
	if err := a.store.PutFailure(ctx, rec); err != nil {
		a.logger.Warn("recording probe failure", zap.String("tool", tool), zap.Error(err))
	}
}

// clearFailure expires any active cooldown after a successful analysis.
func (a *Analyzer) clearFailure(ctx context.Context, tool string, now time.Time) {
	failure, err := a.store.GetFailure(ctx, tool)
	if err != nil || !failure.Active(now) {
		return
	}
	failure.CooldownUntil = now
	if err := a.store.PutFailure(ctx, *failure); err != nil {
		a.logger.Warn("clearing cooldown", zap.String("tool", tool), zap.Error(err))
	}
}

var reVersion = regexp.MustCompile(`\d+\.\d+(?:\.\d+)?(?:[-+][0-9A-Za-z.-]+)?`)

// ParseVersion extracts a semver-ish token from version output, looking
// at the first non-blank line only. Returns the whole trimmed line when
// no numeric token is present.
func ParseVersion(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := reVersion.FindString(line); m != "" {
			return m
		}
		return line
	}
	return ""
}
