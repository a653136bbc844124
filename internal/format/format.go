// Package format turns a capability record into ordered argument-list
// recipes for one-shot invocations, and remembers which recipes a tool
// has rejected so retries try something different.
package format

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/relaycli/relay/internal/model"
	"github.com/relaycli/relay/internal/skillindex"
)

const (
	// dialectPriority ranks the recipe derived from the tool's own help
	// text above every generic fallback.
	dialectPriority = 100
	// preferThreshold marks recipes trusted enough to lead skill and
	// agent prompts even after a rejection.
	preferThreshold = 80

	positionalPriority = 30
	promptFlagPriority = 20
	runSubPriority     = 10

	// skillMatchThreshold is the minimum similarity for a prompt to be
	// rewritten as an explicit skill or agent invocation.
	skillMatchThreshold = 0.6
)

// ParameterFormat is one way of passing a prompt to a tool.
type ParameterFormat struct {
	Name     string
	Priority int
	Build    func(prompt string) []string
}

// Invocation is a concrete argument list ready to execute.
type Invocation struct {
	Format string   `json:"format"`
	Args   []string `json:"args"`
}

// CandidateFormats derives the recipes to try for a tool, best-first.
// The record's inferred dialect leads; generic fallbacks follow, minus
// any that would duplicate the dialect's argument shape.
func CandidateFormats(rec *model.CapabilityRecord) []ParameterFormat {
	var out []ParameterFormat
	if d, ok := dialectFormat(rec); ok {
		out = append(out, d)
	}

	fallbacks := []ParameterFormat{
		{Name: "positional", Priority: positionalPriority, Build: func(p string) []string {
			return []string{p}
		}},
		{Name: "prompt-flag", Priority: promptFlagPriority, Build: func(p string) []string {
			return []string{"-p", p}
		}},
		{Name: "run-subcommand", Priority: runSubPriority, Build: func(p string) []string {
			return []string{"run", p}
		}},
	}
	for _, f := range fallbacks {
		if len(out) > 0 && sameShape(out[0], f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// dialectFormat builds the recipe the help text asked for.
func dialectFormat(rec *model.CapabilityRecord) (ParameterFormat, bool) {
	if rec == nil {
		return ParameterFormat{}, false
	}
	f := ParameterFormat{Name: "dialect", Priority: dialectPriority}
	switch rec.Pattern {
	case model.PatternFlag:
		prompt := rec.PromptFlag
		mode := rec.NonInteractiveFlag
		switch {
		case prompt != "" && mode != "":
			f.Build = func(p string) []string { return []string{mode, prompt, p} }
		case prompt != "":
			f.Build = func(p string) []string { return []string{prompt, p} }
		case mode != "":
			f.Build = func(p string) []string { return []string{mode, p} }
		default:
			return ParameterFormat{}, false
		}
	case model.PatternSubcommand:
		verb := runVerb(rec.Subcommands)
		if verb == "" {
			return ParameterFormat{}, false
		}
		f.Build = func(p string) []string { return []string{verb, p} }
	case model.PatternArgument:
		f.Build = func(p string) []string { return []string{p} }
	default:
		return ParameterFormat{}, false
	}
	return f, true
}

var runVerbs = []string{"run", "exec", "ask", "prompt", "chat", "query"}

func runVerb(subs []string) string {
	for _, verb := range runVerbs {
		for _, s := range subs {
			if s == verb {
				return verb
			}
		}
	}
	return ""
}

// sameShape reports whether two formats produce identical argument
// lists, probed with a marker prompt.
func sameShape(a, b ParameterFormat) bool {
	const marker = "\x00probe"
	x, y := a.Build(marker), b.Build(marker)
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// RetryHistory tracks which recipes each tool has rejected. When every
// candidate for a tool has failed, the tool's slate is wiped so the
// best recipe leads again.
type RetryHistory struct {
	mu     sync.Mutex
	failed map[string]map[string]bool
}

// NewRetryHistory creates an empty history.
func NewRetryHistory() *RetryHistory {
	return &RetryHistory{failed: make(map[string]map[string]bool)}
}

// RecordFailure marks a recipe as rejected by a tool.
func (h *RetryHistory) RecordFailure(tool, format string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failed[tool] == nil {
		h.failed[tool] = make(map[string]bool)
	}
	h.failed[tool][format] = true
}

// RecordSuccess clears a tool's slate: a working recipe means past
// rejections were transient or version-specific.
func (h *RetryHistory) RecordSuccess(tool, format string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.failed, tool)
}

// Failed reports whether a recipe has been rejected by a tool.
func (h *RetryHistory) Failed(tool, format string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failed[tool][format]
}

// order sorts candidates for a tool: untried recipes by priority, then
// previously rejected ones. If everything has failed, history for the
// tool resets first.
func (h *RetryHistory) order(tool string, candidates []ParameterFormat) []ParameterFormat {
	h.mu.Lock()
	defer h.mu.Unlock()

	failed := h.failed[tool]
	all := len(failed) > 0
	for _, c := range candidates {
		if !failed[c.Name] {
			all = false
			break
		}
	}
	if all {
		delete(h.failed, tool)
		failed = nil
	}

	out := make([]ParameterFormat, 0, len(candidates))
	for _, c := range candidates {
		if !failed[c.Name] {
			out = append(out, c)
		}
	}
	for _, c := range candidates {
		if failed[c.Name] {
			out = append(out, c)
		}
	}
	return out
}

// Resolver builds ready-to-run invocations for a prompt, folding in
// retry history and skill-aware prompt rewriting.
type Resolver struct {
	history *RetryHistory
	index   *skillindex.Index
	logger  *zap.Logger
}

// NewResolver creates a Resolver. The index may be nil to disable skill
// detection; a nil logger disables logging.
func NewResolver(index *skillindex.Index, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		history: NewRetryHistory(),
		index:   index,
		logger:  logger,
	}
}

// History exposes the retry history for recording run outcomes.
func (r *Resolver) History() *RetryHistory { return r.history }

// Resolve returns the ordered invocations to attempt for a prompt
// against a tool. Recipes the tool previously rejected sink to the end;
// when everything has been rejected, history resets so the dialect
// recipe leads again. When the prompt was rewritten for a skill or
// agent, high-priority dialect recipes lead regardless of history:
// generic fallbacks are not trusted to carry delegation prompts.
func (r *Resolver) Resolve(tool string, rec *model.CapabilityRecord, prompt string) []Invocation {
	rewritten := r.RewritePrompt(prompt, rec)
	candidates := r.history.order(tool, CandidateFormats(rec))
	if rewritten != prompt {
		candidates = preferTrusted(candidates)
	}
	out := make([]Invocation, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, Invocation{Format: c.Name, Args: c.Build(rewritten)})
	}
	return out
}

// preferTrusted moves recipes at or above the trust threshold to the
// front, keeping relative order within each group.
func preferTrusted(candidates []ParameterFormat) []ParameterFormat {
	out := make([]ParameterFormat, 0, len(candidates))
	for _, c := range candidates {
		if c.Priority >= preferThreshold {
			out = append(out, c)
		}
	}
	for _, c := range candidates {
		if c.Priority < preferThreshold {
			out = append(out, c)
		}
	}
	return out
}

// RewritePrompt turns a prompt that names an installed skill or agent
// into an explicit instruction, but only for tools that support them.
// Detection is two-stage: a keyword check gates the index lookup.
func (r *Resolver) RewritePrompt(prompt string, rec *model.CapabilityRecord) string {
	if r.index == nil || rec == nil || rec.Metadata == nil {
		return prompt
	}
	if !skillindex.QuickDetect(prompt) {
		return prompt
	}
	if rec.Metadata.SupportsSkills {
		if m, ok := bestMatch(r.index.MatchSkills(prompt)); ok {
			r.logger.Debug("rewriting prompt for skill",
				zap.String("skill", m.Name),
				zap.Float64("score", m.Score))
			return fmt.Sprintf("Use the %s skill: %s", m.Name, prompt)
		}
	}
	if rec.Metadata.SupportsSubagents && mentionsAgent(prompt) {
		if m, ok := bestMatch(r.index.MatchAgents(prompt)); ok {
			r.logger.Debug("rewriting prompt for agent",
				zap.String("agent", m.Name),
				zap.Float64("score", m.Score))
			return fmt.Sprintf("Use the %s subagent: %s", m.Name, prompt)
		}
	}
	return prompt
}

func bestMatch(matches []skillindex.Match) (skillindex.Match, bool) {
	if len(matches) == 0 || matches[0].Score < skillMatchThreshold {
		return skillindex.Match{}, false
	}
	return matches[0], true
}

func mentionsAgent(prompt string) bool {
	lower := strings.ToLower(prompt)
	return strings.Contains(lower, "agent")
}
