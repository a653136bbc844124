package tool

import "github.com/relaycli/relay/internal/model"

// Builtin returns a registry pre-populated with the assistant CLIs relay
// knows about out of the box. The first entry (claude) is the default; the
// default can be overridden via config.
func Builtin() *Registry {
	r := NewRegistry()
	for _, d := range builtinDefs {
		// Builtin definitions are static and unique; Register cannot fail.
		_ = r.Register(d)
	}
	return r
}

var builtinDefs = []Definition{
	{
		Identity: model.ToolIdentity{
			Name:        "claude",
			VersionArgs: []string{"--version"},
			HelpArgs:    []string{"--help"},
		},
		Aliases: []string{"claude code", "anthropic", "cc"},
		Affinities: map[string]float64{
			"refactor": 0.9,
			"review":   0.8,
			"test":     0.7,
			"debug":    0.7,
			"explain":  0.6,
		},
		Metadata: &model.ToolMetadata{
			SupportsSubagents: true,
			SupportsSkills:    true,
			ContextWindow:     200000,
		},
	},
	{
		Identity: model.ToolIdentity{
			Name:        "codex",
			VersionArgs: []string{"--version"},
			HelpArgs:    []string{"--help"},
		},
		Aliases: []string{"codex cli", "openai"},
		Affinities: map[string]float64{
			"generate": 0.8,
			"script":   0.7,
			"fix":      0.6,
			"patch":    0.6,
		},
		Metadata: &model.ToolMetadata{
			SupportsSkills: true,
			ContextWindow:  192000,
		},
	},
	{
		Identity: model.ToolIdentity{
			Name:        "gemini",
			VersionArgs: []string{"--version"},
			HelpArgs:    []string{"--help"},
		},
		Aliases: []string{"google", "gemini cli"},
		Affinities: map[string]float64{
			"summarize": 0.8,
			"research":  0.8,
			"explain":   0.7,
			"translate": 0.6,
		},
		Metadata: &model.ToolMetadata{
			ContextWindow: 1000000,
		},
	},
	{
		Identity: model.ToolIdentity{
			Name:        "cursor-agent",
			VersionArgs: []string{"--version"},
			HelpArgs:    []string{"--help"},
		},
		Aliases: []string{"cursor"},
		Affinities: map[string]float64{
			"edit":  0.7,
			"apply": 0.6,
		},
	},
	{
		Identity: model.ToolIdentity{
			Name:        "aider",
			VersionArgs: []string{"--version"},
			HelpArgs:    []string{"--help"},
		},
		Aliases: []string{"pair"},
		Affinities: map[string]float64{
			"commit": 0.7,
			"diff":   0.6,
			"git":    0.6,
		},
	},
	{
		Identity: model.ToolIdentity{
			Name:        "goose",
			VersionArgs: []string{"--version"},
			HelpArgs:    []string{"--help"},
		},
		Aliases: []string{"block goose"},
		Affinities: map[string]float64{
			"automate": 0.6,
			"workflow": 0.5,
		},
	},
}
