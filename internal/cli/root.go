// Package cli defines the cobra command tree for the relay CLI.
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/relaycli/relay/internal/capability"
	"github.com/relaycli/relay/internal/config"
	"github.com/relaycli/relay/internal/format"
	"github.com/relaycli/relay/internal/router"
	"github.com/relaycli/relay/internal/runner"
	"github.com/relaycli/relay/internal/skillindex"
	"github.com/relaycli/relay/internal/store"
	"github.com/relaycli/relay/internal/tool"
)

var (
	dbPath     string
	jsonOutput bool
	verbose    bool
	storeMode  string
	remoteURL  string

	appCfg = &config.Config{}
	logger = zap.NewNop()
)

// rootCmd is the top-level relay command.
var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay - route free-text requests to installed AI assistant CLIs",
	Long: `relay takes a plain request like "use claude to fix the parser" and runs
it against the right installed assistant CLI. It learns each tool's
invocation dialect by probing its version and help commands, caches what
it finds in a SQLite database, and retries with alternative argument
shapes when a tool rejects the first attempt.

Data is stored at ~/.relay/relay.db (configurable via --db flag or
relay config db_path). All output commands support --json for
machine-readable output.`,
	Example: `  # Run a request, letting relay pick the tool
  relay run "use claude to refactor parser.go"

  # See where a request would go without running anything
  relay route "review this diff" --all

  # Inspect how a tool wants to be invoked
  relay analyze claude
  relay formats codex

  # Review past invocations
  relay history --failed --since 7d`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initLogger(); err != nil {
			return err
		}
		cfg, err := config.LoadFrom(configPath)
		if err != nil {
			return nil
		}
		appCfg = cfg
		if cfg.DBPath != "" && !cmd.Flags().Changed("db") {
			dbPath = cfg.DBPath
		}
		if cfg.DefaultFormat == "json" && !cmd.Flags().Changed("json") {
			jsonOutput = true
		}
		if cfg.StoreMode != "" && storeMode == "" {
			storeMode = cfg.StoreMode
		}
		if cfg.RemoteURL != "" && remoteURL == "" {
			remoteURL = cfg.RemoteURL
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", config.DefaultDBPath(), "path to SQLite database")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.Path(), "path to config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func initLogger() error {
	if !verbose {
		logger = zap.NewNop()
		return nil
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	logger = l
	return nil
}

// openStore returns a store.Store based on the current configuration.
// When store_mode is "remote", it returns a RemoteStore pointing at
// remote_url. Otherwise it opens the local SQLite database.
func openStore() (store.Store, error) {
	if storeMode == "remote" {
		if remoteURL == "" {
			return nil, fmt.Errorf("store_mode is \"remote\" but remote_url is not set; use: relay config set remote_url <url>")
		}
		return store.NewRemote(remoteURL), nil
	}
	return store.New(dbPath)
}

// buildRegistry returns the builtin tool registry with the configured
// default applied.
func buildRegistry() *tool.Registry {
	reg := tool.Builtin()
	if appCfg.DefaultTool != "" {
		_ = reg.SetDefault(appCfg.DefaultTool)
	}
	return reg
}

func buildAnalyzer(st store.Store) *capability.Analyzer {
	return capability.New(st, runner.ExecRunner{}, buildRegistry(), logger)
}

// buildRouter assembles the full routing stack over an open store.
func buildRouter(st store.Store) *router.Router {
	reg := buildRegistry()
	analyzer := capability.New(st, runner.ExecRunner{}, reg, logger)
	index := skillindex.NewIndex(appCfg.SkillRoots, appCfg.AgentRoots, logger)
	resolver := format.NewResolver(index, logger)
	r := router.New(reg, analyzer, resolver, runner.ExecRunner{}, st, logger)
	if appCfg.RunTimeout > 0 {
		r.SetRunTimeout(time.Duration(appCfg.RunTimeout) * time.Second)
	}
	return r
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
