package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/manash/modelchat/internal/display"
	"github.com/manash/modelchat/internal/repl"
)

var flagInline string

func newChatCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive modelling session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), app)
		},
	}
	cmd.Flags().StringVar(&flagInline, "inline", "", "inline previews: auto, always or never")
	return cmd
}

func runChat(parent context.Context, app *App) error {
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

	if flagInline != "" {
		e.cfg.Display.Inline = flagInline
		if err := e.cfg.Validate(); err != nil {
			return err
		}
	}

	b, err := app.buildBackends(e)
	if err != nil {
		return err
	}
	st, err := b.studioFactory(e)()
	if err != nil {
		return err
	}
	defer st.Close()

	var displayer *display.Displayer
	if display.Enabled(e.cfg.Display.Inline, app.TermFd, app.GetEnv) {
		displayer = display.New(app.Out, b.saver)
	}

	r := repl.New(&repl.Config{
		In:        app.In,
		Out:       app.Out,
		Err:       app.Err,
		Studio:    st,
		Displayer: displayer,
		Saver:     b.saver,
	})
	return r.Run(ctx)
}
