package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/relaycli/relay/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Show or modify configuration",
	Long: `View or change relay configuration stored in ~/.relay/config.toml.

With no arguments, shows all configuration settings.
With one argument, shows the value of that key.
With two arguments, sets the key to the given value.

Settings:
  db_path         Path to the SQLite database
  default_tool    Tool to use when a prompt names nothing
  default_format  Default output format: "table" or "json"
  store_mode      "local" or "remote"
  remote_url      Base URL of a relay serve instance
  run_timeout     Per-invocation timeout in seconds
  skill_roots     Comma-separated directories scanned for skills
  agent_roots     Comma-separated directories scanned for agents`,
	Example: `  relay config
  relay config default_tool
  relay config default_tool codex
  relay config skill_roots ~/.claude/skills,/opt/skills
  relay config default_format json`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFrom(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		switch len(args) {
		case 0:
			return showConfig(cfg)
		case 1:
			return getConfig(cfg, args[0])
		default:
			return setConfig(cfg, args[0], args[1])
		}
	},
}

// configPath is the path to the config file, settable for testing.
var configPath = config.Path()

func init() {
	rootCmd.AddCommand(configCmd)
}

func showConfig(cfg *config.Config) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tVALUE")
	for _, key := range config.ValidKeys() {
		val, _ := cfg.Get(key)
		if val == "" {
			val = "(not set)"
		}
		fmt.Fprintf(w, "%s\t%s\n", key, val)
	}
	return w.Flush()
}

func getConfig(cfg *config.Config, key string) error {
	val, err := cfg.Get(key)
	if err != nil {
		return err
	}
	if val == "" {
		return nil
	}
	fmt.Println(val)
	return nil
}

func setConfig(cfg *config.Config, key, value string) error {
	if err := cfg.Set(key, value); err != nil {
		return err
	}
	if err := cfg.SaveTo(configPath); err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", key, value)
	return nil
}
