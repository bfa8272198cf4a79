package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/syncache/internal/server"
	"github.com/roach88/syncache/internal/store"
)

// shutdownTimeout bounds graceful shutdown of the demo server.
const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	DB   string
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo record server",
		Long: `Serve collections from a SQLite database over HTTP.

Routes:
  GET    /v1/collections/{name}/records
  POST   /v1/collections/{name}/records
  GET    /v1/collections/{name}/records/{id}
  PATCH  /v1/collections/{name}/records/{id}
  DELETE /v1/collections/{name}/records/{id}
  GET    /v1/realtime?collection={name}   (websocket)
  GET    /healthz
  GET    /metrics

Examples:
  syncache serve
  syncache serve --db ./todos.db --addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "SQLite database path (default from config)")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from config)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.logger(cmd, cfg)

	dbPath := opts.DB
	if dbPath == "" {
		dbPath = cfg.Server.DB
	}
	addr := opts.Addr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "open store", err)
	}
	defer st.Close()

	srv, err := server.New(server.Config{Addr: addr, Logger: logger}, st)
	if err != nil {
		return WrapExitError(ExitCommandError, "create server", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bound, err := srv.Start()
	if err != nil {
		return WrapExitError(ExitCommandError, "start server", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "listening on %s (db %s)\n", bound, dbPath)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown", err)
	}
	return nil
}
