// Package helptext classifies free-form --help output into a structured
// invocation dialect. Classification is pure (text in, record out) and
// heuristic: it keys on substrings of flag descriptions and on the shape of
// command listings, so an unseen tool's dialect can be misclassified. The
// keyword sets below are calibrated against real help text fixtures; do not
// tune them without new fixtures.
package helptext

import (
	"errors"
	"regexp"
	"strings"

	"github.com/relaycli/relay/internal/argv"
	"github.com/relaycli/relay/internal/model"
)

// ErrParseIncomplete reports that help text yielded no usable dialect at all:
// no flags, no subcommands, no examples. Callers fall back to generic
// argument recipes.
var ErrParseIncomplete = errors.New("help text yielded no usable dialect")

// vendorSignatures maps fixed signature terms to a vendor label. First match
// wins, so more specific terms come first.
var vendorSignatures = []struct {
	vendor string
	terms  []string
}{
	{"anthropic", []string{"claude", "anthropic"}},
	{"openai", []string{"codex", "openai", "chatgpt"}},
	{"google", []string{"gemini", "google ai"}},
	{"aider", []string{"aider"}},
	{"block", []string{"goose"}},
	{"cursor", []string{"cursor"}},
}

// nonInteractiveTerms match flag descriptions with run-once semantics.
var nonInteractiveTerms = []string{
	"non-interactive",
	"noninteractive",
	"print response",
	"print the response",
	"run once",
	"one-shot",
	"one shot",
	"headless",
	"exit after",
	"and exit",
	"single prompt",
	"without entering",
}

// promptFlagNames are long flag names that by themselves signal run-once
// prompt passing.
var promptFlagNames = map[string]bool{
	"prompt":          true,
	"print":           true,
	"exec":            true,
	"message":         true,
	"non-interactive": true,
	"headless":        true,
}

// runVerbs are subcommand names recognized as "run one prompt" verbs.
var runVerbs = map[string]bool{
	"run":    true,
	"exec":   true,
	"ask":    true,
	"prompt": true,
	"chat":   true,
	"query":  true,
}

// noiseSubcommands are common listing entries that are not useful dialect
// or routing signals.
var noiseSubcommands = map[string]bool{
	"help":       true,
	"version":    true,
	"completion": true,
	"commands":   true,
	"options":    true,
	"usage":      true,
	"examples":   true,
	"flags":      true,
}

var (
	reSectionHeader  = regexp.MustCompile(`(?i)^(available )?(commands|subcommands)\s*:?\s*$`)
	reOtherHeader    = regexp.MustCompile(`(?i)^(usage|options|flags|arguments|examples|environment)\b.*:?\s*$`)
	reSubcommandName = regexp.MustCompile(`^[a-z][a-z0-9-]{1,19}$`)
	rePlaceholder    = regexp.MustCompile(`<[^>]+>|\[[^\]]+\]|\b[A-Z]{2,}\b`)
)

// flagSpec is one parsed flag line: short and long spellings, whether it
// takes a value, and its description.
type flagSpec struct {
	Short       string
	Long        string
	TakesValue  bool
	Description string
}

// Classify parses help text for tool and infers its invocation dialect.
// The returned record has Pattern, PromptFlag, NonInteractiveFlag,
// Subcommands, Examples, and Vendor populated; versioning fields are the
// caller's responsibility.
func Classify(tool, text string) (*model.CapabilityRecord, error) {
	flags := extractFlags(text)
	subs := extractSubcommands(text)
	examples := extractExamples(tool, text)

	rec := &model.CapabilityRecord{
		Tool:        tool,
		Vendor:      DetectVendor(text),
		Subcommands: subs,
		Examples:    examples,
	}

	if f, ok := findNonInteractiveFlag(flags); ok {
		rec.Pattern = model.PatternFlag
		if f.TakesValue {
			rec.PromptFlag = preferShort(f)
		} else {
			rec.NonInteractiveFlag = preferLong(f)
			// A separate flag may carry the prompt text itself.
			if pf, ok := findPromptValueFlag(flags, f); ok {
				rec.PromptFlag = preferShort(pf)
			}
		}
		return rec, nil
	}

	if sub := firstRunVerb(subs); sub != "" {
		rec.Pattern = model.PatternSubcommand
		return rec, nil
	}

	if len(flags) == 0 && len(subs) == 0 && len(examples) == 0 {
		return nil, ErrParseIncomplete
	}

	// No run-once flag and no run verb: pass the prompt positionally.
	rec.Pattern = model.PatternArgument
	return rec, nil
}

// DetectVendor scans the text for fixed signature terms.
func DetectVendor(text string) string {
	lower := strings.ToLower(text)
	for _, sig := range vendorSignatures {
		for _, term := range sig.terms {
			if strings.Contains(lower, term) {
				return sig.vendor
			}
		}
	}
	return ""
}

// extractFlags collects flag tokens with their descriptions from lines that
// start with a dash. The first spelling of a flag wins.
func extractFlags(text string) []flagSpec {
	var flags []flagSpec
	seen := make(map[string]bool)

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "-") {
			continue
		}
		spec, desc := splitFlagLine(trimmed)
		f := parseFlagSpec(spec)
		if f.Short == "" && f.Long == "" {
			continue
		}
		key := f.Long
		if key == "" {
			key = f.Short
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		f.Description = desc
		flags = append(flags, f)
	}
	return flags
}

// splitFlagLine separates the flag spelling from its description on the
// first run of two or more spaces.
func splitFlagLine(line string) (spec, desc string) {
	if idx := strings.Index(line, "  "); idx >= 0 {
		return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx:])
	}
	return line, ""
}

// parseFlagSpec parses "-p, --prompt <text>" style spellings.
func parseFlagSpec(spec string) flagSpec {
	var f flagSpec
	for _, raw := range strings.FieldsFunc(spec, func(r rune) bool { return r == ',' || r == ' ' }) {
		tok := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(tok, "--"):
			// Strip =VALUE suffixes.
			if eq := strings.IndexByte(tok, '='); eq >= 0 {
				f.TakesValue = true
				tok = tok[:eq]
			}
			if f.Long == "" && len(tok) > 2 {
				f.Long = tok
			}
		case strings.HasPrefix(tok, "-") && len(tok) == 2:
			if f.Short == "" {
				f.Short = tok
			}
		default:
			if rePlaceholder.MatchString(tok) {
				f.TakesValue = true
			}
		}
	}
	return f
}

// findNonInteractiveFlag returns the flag whose semantics look like
// "run once and exit". Flags whose long name itself is prompt-like are
// preferred over description matches.
func findNonInteractiveFlag(flags []flagSpec) (flagSpec, bool) {
	var descHit flagSpec
	var haveDescHit bool
	for _, f := range flags {
		if promptish(f) {
			return f, true
		}
		if !haveDescHit && descMatchesNonInteractive(f.Description) {
			descHit = f
			haveDescHit = true
		}
	}
	return descHit, haveDescHit
}

// findPromptValueFlag returns a value-taking flag that carries the prompt
// text, other than already-chosen.
func findPromptValueFlag(flags []flagSpec, chosen flagSpec) (flagSpec, bool) {
	for _, f := range flags {
		if f.Long == chosen.Long && f.Short == chosen.Short {
			continue
		}
		if f.TakesValue && promptish(f) {
			return f, true
		}
	}
	return flagSpec{}, false
}

func promptish(f flagSpec) bool {
	return promptFlagNames[strings.TrimPrefix(f.Long, "--")]
}

func descMatchesNonInteractive(desc string) bool {
	lower := strings.ToLower(desc)
	if lower == "" {
		return false
	}
	for _, term := range nonInteractiveTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func preferShort(f flagSpec) string {
	if f.Short != "" {
		return f.Short
	}
	return f.Long
}

func preferLong(f flagSpec) string {
	if f.Long != "" {
		return f.Long
	}
	return f.Short
}

// extractSubcommands collects leading-word subcommand tokens. Lines inside a
// "Commands:" section always count; elsewhere an indented lowercase word
// followed by a two-space gap and a description counts.
func extractSubcommands(text string) []string {
	var subs []string
	seen := make(map[string]bool)
	inCommands := false

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			inCommands = false
			continue
		}
		if reSectionHeader.MatchString(trimmed) {
			inCommands = true
			continue
		}
		if reOtherHeader.MatchString(trimmed) {
			inCommands = false
			continue
		}
		if strings.HasPrefix(trimmed, "-") {
			continue
		}

		indented := line != trimmed
		name := argv.FirstWord(trimmed)
		if !reSubcommandName.MatchString(name) || noiseSubcommands[name] {
			continue
		}
		rest := strings.TrimPrefix(trimmed, name)
		hasGap := strings.HasPrefix(rest, "  ") || strings.HasPrefix(rest, "\t")
		if inCommands || (indented && hasGap) {
			if !seen[name] {
				seen[name] = true
				subs = append(subs, name)
			}
		}
	}
	return subs
}

// extractExamples collects invocation lines that begin with the tool's own
// name.
func extractExamples(tool, text string) []string {
	var examples []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		trimmed = strings.TrimPrefix(trimmed, "$ ")
		if argv.FirstWord(trimmed) == tool {
			examples = append(examples, trimmed)
		}
	}
	return examples
}

// firstRunVerb returns the first subcommand recognized as a run verb.
func firstRunVerb(subs []string) string {
	for _, s := range subs {
		if runVerbs[s] {
			return s
		}
	}
	return ""
}
