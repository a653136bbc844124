package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relaycli/relay/internal/capability"
	"github.com/relaycli/relay/internal/format"
)

var formatsCmd = &cobra.Command{
	Use:   "formats <tool>",
	Short: "Show the argument recipes relay would try for a tool",
	Long: `List the ordered argument-list recipes derived from a tool's cached
capability record. The recipe inferred from the tool's own help text
leads; generic fallbacks follow. Each recipe is shown with a sample
argument list for the placeholder prompt <prompt>.

The tool is analyzed first if no cached record exists.`,
	Example: `  relay formats claude
  relay formats codex --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		a := buildAnalyzer(s)
		rec, _, err := a.Analyze(context.Background(), args[0], capability.Options{})
		if err != nil {
			cmd.SilenceUsage = true
			return err
		}

		formats := format.CandidateFormats(rec)
		if jsonOutput {
			type row struct {
				Name     string   `json:"name"`
				Priority int      `json:"priority"`
				Args     []string `json:"args"`
			}
			rows := make([]row, 0, len(formats))
			for _, f := range formats {
				rows = append(rows, row{f.Name, f.Priority, f.Build("<prompt>")})
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}

		t := NewTable(cmd.OutOrStdout(), "RECIPE", "PRIORITY", "ARGUMENTS")
		for _, f := range formats {
			t.Row(f.Name, fmt.Sprintf("%d", f.Priority),
				args[0]+" "+strings.Join(f.Build("<prompt>"), " "))
		}
		return t.Flush()
	},
}

func init() {
	rootCmd.AddCommand(formatsCmd)
}
