package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relaycli/relay/internal/server"
	"github.com/relaycli/relay/internal/store"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an HTTP server exposing the relay store",
	Long: `Start an HTTP server that wraps the local SQLite store and exposes it
over HTTP, so multiple relay instances can share one capability cache
and attempt history.

The server provides a JSON API at /api/v1/ with endpoints for
capabilities, failures, attempts, and stats. A health check is
available at /api/v1/health.

Use relay config to set store_mode=remote and remote_url to point
other relay instances at this server instead of a local database.`,
	Example: `  # Start server on default port
  relay serve

  # Start on a custom address
  relay serve --addr :9090

  # Start with a specific database
  relay serve --db /path/to/relay.db --addr localhost:7420`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.New(dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		srv := server.New(s, logger)

		// Listen first so we can report the actual address.
		ln, err := net.Listen("tcp", serveAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", serveAddr, err)
		}

		fmt.Fprintf(os.Stderr, "relay serve listening on %s\n", ln.Addr())

		// Graceful shutdown on SIGINT/SIGTERM.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Serve(ln)
		}()

		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "shutting down...")
			return srv.Shutdown(context.Background())
		case err := <-errCh:
			return err
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":7420", "address to listen on (host:port)")
	rootCmd.AddCommand(serveCmd)
}
