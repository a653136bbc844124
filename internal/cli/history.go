package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/relaycli/relay/internal/store"
)

var (
	historySince  string
	historyTool   string
	historyFailed bool
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded tool invocations, newest first",
	Long: `Show past routed invocations with their tool, recipe, outcome, and
duration. Filter with --tool, --failed, and --since (a duration like
24h or 7d).`,
	Example: `  relay history
  relay history --failed --since 7d
  relay history --tool claude --limit 20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := store.AttemptOpts{
			Tool:     historyTool,
			FailOnly: historyFailed,
			Limit:    historyLimit,
		}
		if historySince != "" {
			d, err := parseSince(historySince)
			if err != nil {
				return err
			}
			opts.Since = time.Now().Add(-d)
		}

		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		attempts, err := s.ListAttempts(context.Background(), opts)
		if err != nil {
			return fmt.Errorf("list attempts: %w", err)
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(attempts)
		}

		t := NewTable(cmd.OutOrStdout(), "WHEN", "TOOL", "RECIPE", "OK", "EXIT", "DURATION", "REASON")
		for _, a := range attempts {
			ok := "yes"
			if !a.OK {
				ok = "no"
			}
			t.Row(humanizeTime(a.Timestamp), a.Tool, a.Format, ok,
				strconv.Itoa(a.ExitCode),
				fmt.Sprintf("%dms", a.DurationMS),
				truncate(a.Reason, 40))
		}
		return t.Flush()
	},
}

func init() {
	historyCmd.Flags().StringVar(&historySince, "since", "", "only attempts newer than this duration (e.g. 24h, 7d)")
	historyCmd.Flags().StringVar(&historyTool, "tool", "", "only attempts for this tool")
	historyCmd.Flags().BoolVar(&historyFailed, "failed", false, "only failed attempts")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum number of attempts to show")
	rootCmd.AddCommand(historyCmd)
}

// parseSince parses durations like "24h" or "7d". Days are not a
// time.ParseDuration unit, so they are handled here.
func parseSince(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || days < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}
