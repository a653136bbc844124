package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/relaycli/relay/internal/capability"
	"github.com/relaycli/relay/internal/model"
)

var analyzeRefresh bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <tool>",
	Short: "Probe a tool and show its inferred invocation dialect",
	Long: `Run a tool's version and help commands, parse the help text, and show
the inferred invocation dialect: whether the tool takes a prompt via a
flag, a subcommand, or a bare argument.

Results are cached per tool and reused until the installed version
changes or the record goes stale. Use --refresh to bypass the cache and
any failure cooldown.`,
	Example: `  relay analyze claude
  relay analyze codex --refresh
  relay analyze gemini --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		a := buildAnalyzer(s)
		rec, origin, err := a.AnalyzeEnhanced(context.Background(), args[0], capability.Options{
			ForceRefresh: analyzeRefresh,
		})
		if err != nil {
			cmd.SilenceUsage = true
			return err
		}

		if jsonOutput {
			out := struct {
				*model.CapabilityRecord
				Origin string `json:"origin"`
			}{rec, string(origin)}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
		printRecord(cmd, rec, origin)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeRefresh, "refresh", false, "bypass the cache and re-probe the tool")
	rootCmd.AddCommand(analyzeCmd)
}

func printRecord(cmd *cobra.Command, rec *model.CapabilityRecord, origin capability.Origin) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s (version %s, analyzed %s, %s)\n",
		rec.Tool, orDash(rec.SourceVersion), humanizeTime(rec.AnalyzedAt), origin)
	fmt.Fprintf(w, "  pattern:              %s\n", rec.Pattern)
	fmt.Fprintf(w, "  vendor:               %s\n", orDash(rec.Vendor))
	fmt.Fprintf(w, "  prompt flag:          %s\n", orDash(rec.PromptFlag))
	fmt.Fprintf(w, "  non-interactive flag: %s\n", orDash(rec.NonInteractiveFlag))
	if len(rec.Subcommands) > 0 {
		fmt.Fprintf(w, "  subcommands:          %s\n", strings.Join(rec.Subcommands, ", "))
	}
	if len(rec.Examples) > 0 {
		fmt.Fprintf(w, "  examples:\n")
		for _, e := range rec.Examples {
			fmt.Fprintf(w, "    %s\n", e)
		}
	}
	if rec.Metadata != nil {
		fmt.Fprintf(w, "  skills: %t  subagents: %t  context window: %s\n",
			rec.Metadata.SupportsSkills, rec.Metadata.SupportsSubagents,
			humanize.Comma(int64(rec.Metadata.ContextWindow)))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func humanizeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}
