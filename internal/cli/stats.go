package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show summary statistics about routed invocations",
	Long: `Display a summary of relay data: analyzed tools, tools in cooldown,
total and rejected invocation counts, the most-used tools, and recent
activity windows.`,
	Example: `  relay stats
  relay stats --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		st, err := s.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Analyzed tools:    %d\n", st.Capabilities)
		fmt.Fprintf(w, "In cooldown:       %d\n", st.ActiveFailures)
		fmt.Fprintf(w, "Total attempts:    %d\n", st.TotalAttempts)
		fmt.Fprintf(w, "Rejected attempts: %d\n", st.RejectedCount)
		fmt.Fprintf(w, "Last 24h:          %d\n", st.Last24h)
		fmt.Fprintf(w, "Last 7d:           %d\n", st.Last7d)
		if !st.Earliest.IsZero() {
			fmt.Fprintf(w, "First attempt:     %s\n", humanizeTime(st.Earliest))
			fmt.Fprintf(w, "Latest attempt:    %s\n", humanizeTime(st.Latest))
		}
		if len(st.TopTools) > 0 {
			fmt.Fprintln(w, "\nTop tools:")
			for _, nc := range st.TopTools {
				fmt.Fprintf(w, "  %-16s %d\n", nc.Name, nc.Count)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
