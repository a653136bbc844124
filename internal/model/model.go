// Package model defines core types for relay: tool identities, inferred
// invocation dialects (capability records), failure cooldowns, and routing
// candidates.
package model

import "time"

// ToolIdentity describes how a registered assistant tool is probed.
// Immutable once configured.
type ToolIdentity struct {
	// Name is the unique tool identifier and the binary name on PATH.
	Name string `json:"name"`
	// VersionArgs are the arguments for the version-check invocation.
	VersionArgs []string `json:"version_args"`
	// HelpArgs are the arguments for the help invocation.
	HelpArgs []string `json:"help_args"`
}

// ExecutionPattern is the categorical shape of a tool's non-interactive
// invocation.
type ExecutionPattern string

const (
	// PatternInteractive means the tool starts a REPL by default and the
	// prompt is passed positionally, hoping for a one-shot response.
	PatternInteractive ExecutionPattern = "interactive-default"
	// PatternFlag means a flag puts the tool into run-once mode.
	PatternFlag ExecutionPattern = "flag-based"
	// PatternSubcommand means a verb subcommand runs a single prompt.
	PatternSubcommand ExecutionPattern = "subcommand-based"
	// PatternArgument means the prompt is the sole positional argument.
	PatternArgument ExecutionPattern = "argument-based"
)

// Valid reports whether p is one of the known execution patterns.
func (p ExecutionPattern) Valid() bool {
	switch p {
	case PatternInteractive, PatternFlag, PatternSubcommand, PatternArgument:
		return true
	}
	return false
}

// CapabilityRecord is the inferred invocation dialect of one tool.
// A record is valid only while SourceVersion matches the installed version;
// otherwise it is stale and must be regenerated regardless of age.
type CapabilityRecord struct {
	Tool               string           `json:"tool"`
	Vendor             string           `json:"vendor,omitempty"`
	Pattern            ExecutionPattern `json:"pattern"`
	PromptFlag         string           `json:"prompt_flag,omitempty"`
	NonInteractiveFlag string           `json:"non_interactive_flag,omitempty"`
	Subcommands        []string         `json:"subcommands,omitempty"`
	Examples           []string         `json:"examples,omitempty"`
	SourceVersion      string           `json:"source_version"`
	AnalyzedAt         time.Time        `json:"analyzed_at"`

	// Metadata holds fixed per-tool capabilities not derivable from help
	// text. It is merged onto a copy of the record by the enhanced analyzer
	// and is never persisted.
	Metadata *ToolMetadata `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the record.
func (r *CapabilityRecord) Clone() *CapabilityRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Subcommands = append([]string(nil), r.Subcommands...)
	out.Examples = append([]string(nil), r.Examples...)
	if r.Metadata != nil {
		m := *r.Metadata
		out.Metadata = &m
	}
	return &out
}

// Stale reports whether the record was generated from a different installed
// version than the one given.
func (r *CapabilityRecord) Stale(installedVersion string) bool {
	return r.SourceVersion != installedVersion
}

// ToolMetadata holds static per-tool capabilities maintained as data in the
// tool registry.
type ToolMetadata struct {
	SupportsSubagents bool `json:"supports_subagents,omitempty"`
	SupportsSkills    bool `json:"supports_skills,omitempty"`
	ContextWindow     int  `json:"context_window,omitempty"`
}

// FailureRecord tracks a failed analysis and its cooldown window. While the
// cooldown is active no fresh external invocation is attempted for the tool.
type FailureRecord struct {
	Tool          string    `json:"tool"`
	LastFailure   time.Time `json:"last_failure"`
	CooldownUntil time.Time `json:"cooldown_until"`
}

// Active reports whether the cooldown is still in effect at now.
// An elapsed cooldown is treated as expired-and-ignorable, never deleted.
func (f *FailureRecord) Active(now time.Time) bool {
	return f != nil && now.Before(f.CooldownUntil)
}

// RouteCandidate is one tool considered for a request, with its
// compatibility score and human-readable reasons.
type RouteCandidate struct {
	Tool    string   `json:"tool"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons,omitempty"`
	Prompt  string   `json:"prompt"`
}

// Attempt is one recorded invocation attempt: which tool, which argument
// recipe, and how it went.
type Attempt struct {
	ID         string    `json:"id"`
	Tool       string    `json:"tool"`
	Format     string    `json:"format"`
	Args       []string  `json:"args,omitempty"`
	OK         bool      `json:"ok"`
	ExitCode   int       `json:"exit_code"`
	Reason     string    `json:"reason,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}
