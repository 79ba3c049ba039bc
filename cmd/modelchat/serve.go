package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/manash/modelchat/internal/server"
)

var flagAddr string

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve modelling sessions over a websocket",
		Long: `Serve starts an HTTP server with:

  GET /ws       websocket; one independent session per connection
  GET /healthz  liveness probe
  GET /metrics  Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), app)
		},
	}
	cmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(parent context.Context, app *App) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	e, err := app.loadEnv()
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()

	if flagAddr != "" {
		e.cfg.Server.Addr = flagAddr
	}

	b, err := app.buildBackends(e)
	if err != nil {
		return err
	}

	srv := server.New(e.cfg.Server, b.studioFactory(e), b.saver,
		server.WithLogger(e.logger),
		server.WithGatherer(app.Gatherer),
	)
	e.logger.Info("serving sessions", zap.String("addr", e.cfg.Server.Addr))
	return srv.Run(ctx)
}
