// Package router picks which installed assistant tool should handle a
// free-text request, and drives execution with fallback when the chosen
// tool rejects every argument recipe.
package router

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/relaycli/relay/internal/capability"
	"github.com/relaycli/relay/internal/format"
	"github.com/relaycli/relay/internal/model"
	"github.com/relaycli/relay/internal/runner"
	"github.com/relaycli/relay/internal/store"
	"github.com/relaycli/relay/internal/tool"
)

const (
	// fallbackDiscount shrinks a candidate's score for every tool that
	// has already failed this request.
	fallbackDiscount = 0.7
	// minCompatibility is the floor below which a candidate is not
	// worth attempting.
	minCompatibility = 0.15
	// defaultToolScore is the confidence assigned to the configured
	// default when nothing in the prompt points at a tool.
	defaultToolScore = 0.25

	// batchConcurrency caps concurrent scoring in ScoreBatch.
	batchConcurrency = 3

	// subcommandAffinity is the strength assigned to a prompt word that
	// matches a tool's discovered subcommand rather than a curated
	// affinity keyword.
	subcommandAffinity = 0.5

	// maxTotalAttempts hard-caps invocation attempts per request, so a
	// retry-history reset can never loop.
	maxTotalAttempts = 12

	// defaultMaxRetries bounds fallback hops when ExecOptions does not.
	defaultMaxRetries = 3

	// defaultRunTimeout bounds a routed tool invocation.
	defaultRunTimeout = 120 * time.Second
)

// directiveWords are stripped from a prompt together with an explicit
// tool mention, so "use claude to fix it" routes the bare "fix it".
var directiveWords = map[string]bool{
	"use": true, "using": true, "with": true, "ask": true,
	"please": true, "let": true, "have": true, "the": true,
}

// connectiveWords follow a stripped mention ("claude to fix it").
var connectiveWords = map[string]bool{
	"to": true, "for": true,
}

// ErrRoutingExhausted reports that every candidate tool failed.
var ErrRoutingExhausted = errors.New("all candidate tools failed")

// ExhaustedError carries the per-tool failure reasons after a fully
// failed execution.
type ExhaustedError struct {
	Prompt  string
	Reasons map[string]string
}

func (e *ExhaustedError) Error() string {
	tools := make([]string, 0, len(e.Reasons))
	for t := range e.Reasons {
		tools = append(tools, t)
	}
	sort.Strings(tools)
	return fmt.Sprintf("all candidate tools failed (%s)", strings.Join(tools, ", "))
}

// Is makes errors.Is(err, ErrRoutingExhausted) match.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrRoutingExhausted
}

// Router scores tools against prompts and executes routed requests.
type Router struct {
	tools      *tool.Registry
	analyzer   *capability.Analyzer
	resolver   *format.Resolver
	runner     runner.Runner
	store      store.Store
	logger     *zap.Logger
	runTimeout time.Duration
}

// New creates a Router. A nil logger disables logging.
func New(tools *tool.Registry, analyzer *capability.Analyzer, resolver *format.Resolver, r runner.Runner, st store.Store, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		tools:      tools,
		analyzer:   analyzer,
		resolver:   resolver,
		runner:     r,
		store:      st,
		logger:     logger,
		runTimeout: defaultRunTimeout,
	}
}

// SetRunTimeout overrides the per-invocation timeout.
func (r *Router) SetRunTimeout(d time.Duration) {
	if d > 0 {
		r.runTimeout = d
	}
}

// ShouldRoute reports whether the prompt explicitly names a known tool,
// by name or alias.
func (r *Router) ShouldRoute(prompt string) bool {
	_, _, ok := r.matchExplicit(prompt)
	return ok
}

// Route returns the single best candidate for a prompt. With at least
// one registered tool there is always one: the registry default
// backstops prompts that point nowhere. An empty registry yields a
// zero candidate.
func (r *Router) Route(prompt string) model.RouteCandidate {
	if cands := r.RouteEnhanced(prompt); len(cands) > 0 {
		return cands[0]
	}
	return model.RouteCandidate{Prompt: prompt}
}

// RouteEnhanced scores every registered tool against the prompt and
// returns the best candidate plus up to two alternates, best-first. An
// explicit mention scores 1.0 and has the mention stripped from the
// routed prompt; otherwise the score blends keyword hits with the
// tool's task affinities. The registry default is always a candidate of
// last resort.
func (r *Router) RouteEnhanced(prompt string) []model.RouteCandidate {
	var candidates []model.RouteCandidate

	if name, stripped, ok := r.matchExplicit(prompt); ok {
		candidates = append(candidates, model.RouteCandidate{
			Tool:    name,
			Score:   1.0,
			Reasons: []string{fmt.Sprintf("prompt names %q", name)},
			Prompt:  stripped,
		})
	}

	for _, name := range r.tools.Names() {
		if len(candidates) > 0 && candidates[0].Tool == name {
			continue
		}
		if c, ok := r.scoreKeywords(name, prompt); ok {
			candidates = append(candidates, c)
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].Score > candidates[b].Score
	})

	if def := r.tools.Default(); def != "" && !containsTool(candidates, def) {
		candidates = append(candidates, model.RouteCandidate{
			Tool:    def,
			Score:   defaultToolScore,
			Reasons: []string{"default tool"},
			Prompt:  stripDirectives(prompt),
		})
	}

	if len(candidates) > 3 {
		candidates = candidates[:3]
	}
	return candidates
}

// matchExplicit looks for a registered tool name or alias in the
// prompt. On a match it returns the tool and the prompt with the
// mention, any leading directive words, and a trailing connective
// stripped.
func (r *Router) matchExplicit(prompt string) (tool string, stripped string, ok bool) {
	words := strings.Fields(prompt)
	lower := make([]string, len(words))
	for i, w := range words {
		lower[i] = strings.ToLower(strings.Trim(w, ".,!?:;\"'"))
	}

	for _, name := range r.tools.Names() {
		def, _ := r.tools.Get(name)
		terms := append([]string{name}, def.Aliases...)
		for _, term := range terms {
			termWords := strings.Fields(strings.ToLower(term))
			if idx := findPhrase(lower, termWords); idx >= 0 {
				return name, stripMention(words, lower, idx, len(termWords)), true
			}
		}
	}
	return "", "", false
}

// findPhrase locates a word sequence within lower-cased tokens.
func findPhrase(tokens, phrase []string) int {
	if len(phrase) == 0 {
		return -1
	}
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		match := true
		for j, p := range phrase {
			if tokens[i+j] != p {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// stripMention removes tokens [idx, idx+n) plus surrounding directive
// and connective words, returning the remaining prompt.
func stripMention(words, lower []string, idx, n int) string {
	start, end := idx, idx+n
	for start > 0 && directiveWords[lower[start-1]] {
		start--
	}
	if end < len(words) && connectiveWords[lower[end]] {
		end++
	}
	remaining := append(append([]string{}, words[:start]...), words[end:]...)
	return strings.Join(remaining, " ")
}

// stripDirectives drops the leading run of directive words from a
// prompt, so "please fix it" routes the bare "fix it". A prompt made
// entirely of directive words passes through unchanged.
func stripDirectives(prompt string) string {
	words := strings.Fields(prompt)
	i := 0
	for i < len(words) && directiveWords[strings.ToLower(strings.Trim(words[i], ".,!?:;\"'"))] {
		i++
	}
	if i == 0 || i == len(words) {
		return prompt
	}
	return strings.Join(words[i:], " ")
}

// scoreKeywords scores a tool by its affinity keywords found in the
// prompt, plus any subcommand names learned from its cached capability
// record: 60% how many keywords hit, 40% how strong the best hit is.
func (r *Router) scoreKeywords(name, prompt string) (model.RouteCandidate, bool) {
	def, ok := r.tools.Get(name)
	if !ok {
		return model.RouteCandidate{}, false
	}
	lower := " " + strings.ToLower(prompt) + " "

	hits := 0
	best := 0.0
	var matched []string
	match := func(keyword string, affinity float64) {
		if strings.Contains(lower, " "+keyword+" ") || strings.Contains(lower, " "+keyword) {
			hits++
			matched = append(matched, keyword)
			if affinity > best {
				best = affinity
			}
		}
	}
	for keyword, affinity := range def.Affinities {
		match(keyword, affinity)
	}
	for _, sub := range r.cachedSubcommands(name) {
		if sub == name {
			continue
		}
		match(sub, subcommandAffinity)
	}
	if hits == 0 {
		return model.RouteCandidate{}, false
	}

	keywordScore := math.Min(1, float64(hits)/2)
	score := 0.6*keywordScore + 0.4*best
	sort.Strings(matched)
	return model.RouteCandidate{
		Tool:    name,
		Score:   score,
		Reasons: []string{fmt.Sprintf("keywords: %s", strings.Join(matched, ", "))},
		Prompt:  stripDirectives(prompt),
	}, true
}

// cachedSubcommands reads a tool's discovered subcommands from the
// store, if any. Routing stays best-effort: store errors read as none.
func (r *Router) cachedSubcommands(name string) []string {
	if r.store == nil {
		return nil
	}
	rec, err := r.store.GetCapability(context.Background(), name)
	if err != nil || rec == nil {
		return nil
	}
	return rec.Subcommands
}

func containsTool(cands []model.RouteCandidate, name string) bool {
	for _, c := range cands {
		if c.Tool == name {
			return true
		}
	}
	return false
}

// Execution is the outcome of a successfully routed request.
type Execution struct {
	Tool     string        `json:"tool"`
	Format   string        `json:"format"`
	Args     []string      `json:"args"`
	Prompt   string        `json:"prompt"`
	Score    float64       `json:"score"`
	Output   string        `json:"output"`
	Duration time.Duration `json:"duration"`
	Attempts int           `json:"attempts"`
}

// ExecOptions adjusts a single ExecuteWithFallback call.
type ExecOptions struct {
	// Tool forces a specific tool instead of routing.
	Tool string
	// MaxRetries bounds how many fallback hops to other tools are
	// allowed after the first candidate fails. Zero means the default.
	MaxRetries int
}

// ExecuteWithFallback routes the prompt and runs the chosen tool,
// falling back to the next candidate when a tool rejects every recipe.
// Each fallback hop discounts the remaining candidates' scores; a
// candidate whose discounted score drops below the compatibility floor
// is not attempted, and at most MaxRetries fallback hops are taken.
// Tools whose analysis fails (not installed, in cooldown) are skipped
// without counting as a fallback hop.
func (r *Router) ExecuteWithFallback(ctx context.Context, prompt string, opts ExecOptions) (*Execution, error) {
	var candidates []model.RouteCandidate
	if opts.Tool != "" {
		candidates = []model.RouteCandidate{{
			Tool:    opts.Tool,
			Score:   1.0,
			Reasons: []string{"forced by flag"},
			Prompt:  prompt,
		}}
	} else {
		candidates = r.RouteEnhanced(prompt)
	}

	retries := opts.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}

	failed := 0
	attempts := 0
	tried := make(map[string]bool)
	reasons := make(map[string]string)

	for _, cand := range candidates {
		if tried[cand.Tool] {
			continue
		}
		tried[cand.Tool] = true

		if failed > retries {
			reasons[cand.Tool] = fmt.Sprintf("fallback budget (%d) spent", retries)
			continue
		}
		if attempts >= maxTotalAttempts {
			reasons[cand.Tool] = "attempt budget exhausted"
			continue
		}

		effective := cand.Score * math.Pow(fallbackDiscount, float64(failed))
		if effective < minCompatibility {
			reasons[cand.Tool] = fmt.Sprintf("score %.2f below floor after %d fallback(s)", effective, failed)
			continue
		}

		rec, _, err := r.analyzer.AnalyzeEnhanced(ctx, cand.Tool, capability.Options{})
		if err != nil {
			// Not a rejection; the tool never got a chance.
			reasons[cand.Tool] = err.Error()
			r.logger.Debug("skipping candidate", zap.String("tool", cand.Tool), zap.Error(err))
			continue
		}

		path, ok := r.runner.LookPath(cand.Tool)
		if !ok {
			reasons[cand.Tool] = "not on PATH"
			continue
		}

		exec, n, err := r.tryInvocations(ctx, cand, path, rec)
		attempts += n
		if err == nil {
			exec.Score = effective
			exec.Attempts = attempts
			return exec, nil
		}
		reasons[cand.Tool] = err.Error()
		failed++
		r.logger.Debug("candidate exhausted",
			zap.String("tool", cand.Tool), zap.Error(err))
	}

	return nil, &ExhaustedError{Prompt: prompt, Reasons: reasons}
}

// tryInvocations runs each resolved recipe until one succeeds. Every
// run is recorded as an attempt, and recipe outcomes feed the retry
// history.
func (r *Router) tryInvocations(ctx context.Context, cand model.RouteCandidate, path string, rec *model.CapabilityRecord) (*Execution, int, error) {
	invs := r.resolver.Resolve(cand.Tool, rec, cand.Prompt)
	var lastErr error
	for i, inv := range invs {
		start := time.Now()
		res, err := r.runner.Run(ctx, path, inv.Args, r.runTimeout)
		elapsed := time.Since(start)

		if err != nil {
			r.recordAttempt(ctx, cand.Tool, inv, false, -1, err.Error(), elapsed)
			lastErr = err
			continue
		}
		if res.Failed() {
			reason := "non-zero exit"
			if res.TimedOut {
				reason = "timed out"
			}
			r.resolver.History().RecordFailure(cand.Tool, inv.Format)
			r.recordAttempt(ctx, cand.Tool, inv, false, res.ExitCode, reason, elapsed)
			lastErr = &runner.RejectedError{
				Tool:     cand.Tool,
				Format:   inv.Format,
				ExitCode: res.ExitCode,
				Stderr:   res.Stderr,
			}
			continue
		}

		r.resolver.History().RecordSuccess(cand.Tool, inv.Format)
		r.recordAttempt(ctx, cand.Tool, inv, true, 0, "", elapsed)
		return &Execution{
			Tool:     cand.Tool,
			Format:   inv.Format,
			Args:     inv.Args,
			Prompt:   cand.Prompt,
			Output:   res.Stdout,
			Duration: elapsed,
		}, i + 1, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no invocation recipes for %s", cand.Tool)
	}
	return nil, len(invs), lastErr
}

func (r *Router) recordAttempt(ctx context.Context, toolName string, inv format.Invocation, ok bool, exitCode int, reason string, elapsed time.Duration) {
	if r.store == nil {
		return
	}
	a := model.Attempt{
		ID:         uuid.NewString(),
		Tool:       toolName,
		Format:     inv.Format,
		Args:       inv.Args,
		OK:         ok,
		ExitCode:   exitCode,
		Reason:     reason,
		DurationMS: elapsed.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
	if err := r.store.RecordAttempt(ctx, a); err != nil {
		r.logger.Warn("recording attempt", zap.String("tool", toolName), zap.Error(err))
	}
}

// ScoreBatch routes many prompts concurrently, bounded to a small
// worker count, and returns the best candidate per prompt in input
// order.
func (r *Router) ScoreBatch(ctx context.Context, prompts []string) ([]model.RouteCandidate, error) {
	sem := semaphore.NewWeighted(batchConcurrency)
	out := make([]model.RouteCandidate, len(prompts))
	for i, p := range prompts {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("scoring batch: %w", err)
		}
		go func(i int, p string) {
			defer sem.Release(1)
			out[i] = r.Route(p)
		}(i, p)
	}
	// Draining the full weight waits for every worker.
	if err := sem.Acquire(ctx, batchConcurrency); err != nil {
		return nil, fmt.Errorf("scoring batch: %w", err)
	}
	return out, nil
}
