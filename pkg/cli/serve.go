package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/getmockd/webmocket/pkg/logging"
	"github.com/getmockd/webmocket/pkg/server"
)

func newServeCommand(sf *serveFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the WebSocket mock server (default command)",
		Long: `Start the WebSocket mock server.

Routes:
  GET    /messages   List messages received from clients
  POST   /messages   Send the request body to every client as a text frame
  DELETE /messages   Clear received messages
  POST   /ping       Send a ping frame to every client
  POST   /pong       Send a pong frame to every client
  GET    /ws         WebSocket upgrade (see --ws-path)`,
		Example: `  # Start with defaults (127.0.0.1:3000, /ws)
  webmocket serve

  # Listen on all interfaces with a custom upgrade path
  webmocket serve --address 0.0.0.0 --port 3001 --ws-path /socket`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, sf)
		},
	}
	sf.bind(cmd.Flags())
	return cmd
}

func runServe(cmd *cobra.Command, sf *serveFlags) error {
	cfg, err := resolveConfig(cmd, sf)
	if err != nil {
		return err
	}

	lc := cfg.Logging()
	lc.Output = cmd.ErrOrStderr()
	logger := logging.New(lc)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.New(cfg, logger).Run(ctx)
}
