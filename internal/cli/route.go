package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relaycli/relay/internal/model"
)

var routeAll bool

var routeCmd = &cobra.Command{
	Use:   "route <prompt>...",
	Short: "Show where a request would be routed, without running it",
	Long: `Score the registered tools against a prompt and print the winner, or
all candidates with --all. Nothing is executed and no tool is probed;
this is a dry run of the selection logic only.`,
	Example: `  relay route "use claude to fix the parser"
  relay route "review this diff" --all
  relay route "translate the README" --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.Join(args, " ")

		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		r := buildRouter(s)
		candidates := r.RouteEnhanced(prompt)
		if !routeAll {
			candidates = candidates[:1]
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(candidates)
		}
		return printCandidates(cmd, candidates)
	},
}

func init() {
	routeCmd.Flags().BoolVar(&routeAll, "all", false, "show alternate candidates, not just the winner")
	rootCmd.AddCommand(routeCmd)
}

func printCandidates(cmd *cobra.Command, candidates []model.RouteCandidate) error {
	t := NewTable(cmd.OutOrStdout(), "TOOL", "SCORE", "WHY", "ROUTED PROMPT")
	for _, c := range candidates {
		t.Row(c.Tool,
			fmt.Sprintf("%.2f", c.Score),
			strings.Join(c.Reasons, "; "),
			truncate(c.Prompt, 50))
	}
	return t.Flush()
}
