package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/dbtlineage/internal/config"
	"github.com/leapstack-labs/dbtlineage/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the lineage API over HTTP",
		Long: `Start a JSON API over the loaded dbt artifacts.

With --watch the catalog and manifest are watched; after dbt rewrites them
the registry is reloaded and swapped in. A reload that fails keeps serving
the previous artifacts.`,
		Example: `  # Serve on the default address
  dbtlineage serve

  # Serve on all interfaces and reload when artifacts change
  dbtlineage serve --host 0.0.0.0 --port 9000 --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}

	cmd.Flags().String("host", config.DefaultHost, "Address to bind")
	cmd.Flags().Int("port", config.DefaultPort, "Port to listen on")
	cmd.Flags().Bool("watch", false, "Reload when catalog.json or manifest.json change")
	cmd.Flags().StringSlice("cors-origin", nil, "Allowed CORS origin (repeatable, default *)")

	return cmd
}

func runServe(cmd *cobra.Command) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	ctx, stop := notifyContext(cmd.Context())
	defer stop()

	srv := server.New(cmdCtx.Registry, server.Options{
		Config:   cmdCtx.Cfg.Server,
		Registry: cmdCtx.Cfg.RegistryOptions(cmdCtx.Logger),
		Logger:   cmdCtx.Logger,
	})

	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// notifyContext cancels the serve context on SIGINT or SIGTERM.
var notifyContext = func(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
