package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/relaycli/relay/internal/model"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List known tools and their analysis status",
	Long: `List every registered tool with its install status, cached invocation
pattern, analyzed version, record age, and any active probe cooldown.
The default tool is marked with an asterisk.`,
	Example: `  relay tools
  relay tools --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer s.Close()

		reg := buildRegistry()
		ctx := context.Background()
		now := time.Now()

		type toolStatus struct {
			Name      string                  `json:"name"`
			Default   bool                    `json:"default"`
			Installed bool                    `json:"installed"`
			Record    *model.CapabilityRecord `json:"record,omitempty"`
			Cooldown  *time.Time              `json:"cooldown_until,omitempty"`
		}

		var statuses []toolStatus
		for _, name := range reg.Names() {
			ts := toolStatus{Name: name, Default: name == reg.Default()}
			_, lookErr := exec.LookPath(name)
			ts.Installed = lookErr == nil

			rec, err := s.GetCapability(ctx, name)
			if err != nil {
				return fmt.Errorf("reading capability for %s: %w", name, err)
			}
			ts.Record = rec

			failure, err := s.GetFailure(ctx, name)
			if err != nil {
				return fmt.Errorf("reading failure for %s: %w", name, err)
			}
			if failure.Active(now) {
				ts.Cooldown = &failure.CooldownUntil
			}
			statuses = append(statuses, ts)
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(statuses)
		}

		t := NewTable(cmd.OutOrStdout(), "TOOL", "INSTALLED", "PATTERN", "VERSION", "ANALYZED", "COOLDOWN")
		for _, ts := range statuses {
			name := ts.Name
			if ts.Default {
				name += " *"
			}
			installed := "no"
			if ts.Installed {
				installed = "yes"
			}
			pattern, version, analyzed := "-", "-", "-"
			if ts.Record != nil {
				pattern = string(ts.Record.Pattern)
				version = ts.Record.SourceVersion
				analyzed = humanizeTime(ts.Record.AnalyzedAt)
			}
			cooldown := "-"
			if ts.Cooldown != nil {
				cooldown = "until " + humanizeTime(*ts.Cooldown)
			}
			t.Row(name, installed, pattern, version, analyzed, cooldown)
		}
		return t.Flush()
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}
