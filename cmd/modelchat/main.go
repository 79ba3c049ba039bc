package main

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/manash/modelchat/internal/backend"
	"github.com/manash/modelchat/internal/backend/openai"
	"github.com/manash/modelchat/internal/keys"
	"github.com/manash/modelchat/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagConfig   string
	flagLogLevel string
	flagAPIKey   string
)

type App struct {
	In       io.Reader
	Out      io.Writer
	Err      io.Writer
	GetEnv   func(string) string
	Registry *models.ModelRegistry
	// TermFd is checked for an interactive terminal when inline display is "auto".
	TermFd      int
	Registerer  prometheus.Registerer
	Gatherer    prometheus.Gatherer
	NewOpenAI   func(cfg *backend.Config, registry *models.ModelRegistry, opts ...openai.Option) (*openai.Backend, error)
	NewKeyStore func(getenv func(string) string) (*keys.Store, error)
}

func DefaultApp() *App {
	return &App{
		In:          os.Stdin,
		Out:         os.Stdout,
		Err:         os.Stderr,
		GetEnv:      os.Getenv,
		Registry:    models.DefaultRegistry(),
		TermFd:      int(os.Stdout.Fd()),
		Registerer:  prometheus.DefaultRegisterer,
		Gatherer:    prometheus.DefaultGatherer,
		NewOpenAI:   openai.New,
		NewKeyStore: keys.NewStore,
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// a missing .env is fine
	_ = godotenv.Load()

	app := DefaultApp()
	rootCmd := newRootCmd(app)
	return rootCmd.Execute()
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modelchat",
		Short: "Describe a 3D model, preview it, refine it and submit it to HunYuan",
		Long: `modelchat is a chat-driven front end for 3D model generation.

Describe the model you want, look at the generated preview, ask for
adjustments until it looks right, then submit the whole conversation
to HunYuan for processing.

Examples:
  modelchat chat
  modelchat serve --addr :9000
  modelchat replay session.txt --output-dir previews
  modelchat keys set openai sk-...`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(app.Out)
	cmd.SetErr(app.Err)
	cmd.SetIn(app.In)

	cmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "OpenAI API key (defaults to stored key or OPENAI_API_KEY)")

	cmd.AddCommand(
		newChatCmd(app),
		newServeCmd(app),
		newReplayCmd(app),
		newKeysCmd(app),
		newVersionCmd(app),
	)
	return cmd
}

func newVersionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(app.Out, "modelchat %s (commit: %s)\n", version, commit)
		},
	}
}
