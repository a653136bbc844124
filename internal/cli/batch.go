package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Score many prompts from stdin, one per line",
	Long: `Read prompts from stdin (one per line) and print the tool each would
route to, with its confidence score. Scoring runs concurrently but
nothing is executed.`,
	Example: `  cat requests.txt | relay batch
  printf 'fix the parser\nreview this diff\n' | relay batch --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var prompts []string
		sc := bufio.NewScanner(cmd.InOrStdin())
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line != "" {
				prompts = append(prompts, line)
			}
		}
		if err := sc.Err(); err != nil {
			return fmt.Errorf("reading prompts: %w", err)
		}
		if len(prompts) == 0 {
			return fmt.Errorf("no prompts on stdin")
		}

		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		r := buildRouter(s)
		results, err := r.ScoreBatch(context.Background(), prompts)
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}

		t := NewTable(cmd.OutOrStdout(), "TOOL", "SCORE", "PROMPT")
		for i, c := range results {
			t.Row(c.Tool, fmt.Sprintf("%.2f", c.Score), truncate(prompts[i], 60))
		}
		return t.Flush()
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)
}
