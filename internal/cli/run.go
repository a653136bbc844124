package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relaycli/relay/internal/router"
)

var (
	runTool    string
	runRetries int
)

var runCmd = &cobra.Command{
	Use:   "run <prompt>...",
	Short: "Route a request to the best installed tool and run it",
	Long: `Route a free-text request to an installed assistant CLI and execute it
non-interactively. The tool is chosen from the prompt itself: an explicit
mention ("use claude to ...") wins, task keywords come next, and the
configured default tool backstops everything else.

If the chosen tool rejects the generated argument list, relay retries
with alternative recipes, then falls back to the next-best tool. Every
attempt is recorded and visible via relay history.`,
	Example: `  relay run "use claude to refactor parser.go"
  relay run fix the failing test in store_test.go
  relay run --tool codex "review this diff"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.Join(args, " ")

		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		r := buildRouter(s)
		exec, err := r.ExecuteWithFallback(context.Background(), prompt, router.ExecOptions{
			Tool:       runTool,
			MaxRetries: runRetries,
		})
		if err != nil {
			var ex *router.ExhaustedError
			if errors.As(err, &ex) {
				printExhausted(ex)
			}
			cmd.SilenceUsage = true
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(exec)
		}
		fmt.Fprint(cmd.OutOrStdout(), exec.Output)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runTool, "tool", "", "force a specific tool instead of routing")
	runCmd.Flags().IntVar(&runRetries, "retries", 0, "max fallback hops to other tools (default 3)")
	rootCmd.AddCommand(runCmd)
}

// printExhausted reports every tool that was considered and why it
// could not serve the request.
func printExhausted(ex *router.ExhaustedError) {
	fmt.Fprintln(os.Stderr, "no tool could handle the request:")
	tools := make([]string, 0, len(ex.Reasons))
	for t := range ex.Reasons {
		tools = append(tools, t)
	}
	sort.Strings(tools)
	for _, t := range tools {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", t, ex.Reasons[t])
	}
}
