package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cosmicds/cosmicds/internal/api"
	"github.com/cosmicds/cosmicds/internal/store"
	"github.com/cosmicds/cosmicds/internal/telemetry"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr     string
	Database string

	// Listener replaces listening on Addr. Tests use it to serve on an
	// ephemeral port.
	Listener net.Listener
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference remote store",
		Long: `Serve the story-state protocol from a SQLite database.

The database is created if it does not exist. The server stops on
SIGINT or SIGTERM after in-flight requests finish.

Example:
  cosmicds serve --addr :8080 --db ./cosmicds.db
  COSMICDS_OTEL_ENABLED=true COSMICDS_OTEL_ENDPOINT=localhost:4318 cosmicds serve`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default $COSMICDS_LISTEN_ADDR)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default $COSMICDS_DB_PATH)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logger := opts.logger()
	addr := firstNonEmpty(opts.Addr, opts.Config.ListenAddr, ":8080")
	dbPath := firstNonEmpty(opts.Database, opts.Config.DBPath)
	if dbPath == "" {
		return NewExitError(ExitCommandError, "no database: pass --db or set COSMICDS_DB_PATH")
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.Config.TracingEnabled() {
		shutdown, err := telemetry.Setup(ctx, opts.Config.ServiceName, opts.Config.OTelEndpoint)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to set up tracing", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("tracing shutdown", "error", err)
			}
		}()
	}

	logger.Info("opening database", "path", dbPath)
	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	l := opts.Listener
	if l == nil {
		if l, err = net.Listen("tcp", addr); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to listen on %s", addr), err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s. Press Ctrl-C to stop.\n", l.Addr())
	srv := api.NewServer(st, api.WithLogger(logger))
	if err := srv.Serve(ctx, l); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
