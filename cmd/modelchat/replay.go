package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/manash/modelchat/internal/script"
)

var (
	flagOutputDir   string
	flagStopOnError bool
)

func newReplayCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Replay a scripted session from a .txt or .json file",
		Long: `Replay runs every step of a script against one session.

Text scripts hold one step per line:
  futuristic city
  refine: make it night-time
  submit

JSON scripts are a list of steps:
  [{"action": "describe", "text": "futuristic city"}, {"action": "submit"}]`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), args[0], app)
		},
	}
	cmd.Flags().StringVarP(&flagOutputDir, "output-dir", "o", "", "directory to save each preview in")
	cmd.Flags().BoolVar(&flagStopOnError, "stop-on-error", false, "stop at the first failing step")
	return cmd
}

func runReplay(parent context.Context, path string, app *App) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	steps, err := script.ParseFile(path)
	if err != nil {
		return err
	}

	e, err := app.loadEnv()
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()

	b, err := app.buildBackends(e)
	if err != nil {
		return err
	}
	st, err := b.studioFactory(e)()
	if err != nil {
		return err
	}
	defer st.Close()

	player := script.NewPlayer(st, b.saver, app.Out, app.Err)
	results, err := player.Replay(ctx, steps, &script.Options{
		OutputDir:   flagOutputDir,
		StopOnError: flagStopOnError,
	})
	player.PrintSummary(results)
	return err
}
