package main

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/manash/modelchat/internal/backend"
	"github.com/manash/modelchat/internal/backend/dataset"
	"github.com/manash/modelchat/internal/backend/hunyuan"
	"github.com/manash/modelchat/internal/backend/openai"
	"github.com/manash/modelchat/internal/backend/placeholder"
	"github.com/manash/modelchat/internal/config"
	"github.com/manash/modelchat/internal/keys"
	"github.com/manash/modelchat/internal/logging"
	"github.com/manash/modelchat/internal/metrics"
	"github.com/manash/modelchat/internal/preview"
	"github.com/manash/modelchat/internal/studio"
	"github.com/manash/modelchat/pkg/models"
)

const openAIKeyEnv = "OPENAI_API_KEY"

// env is what every subcommand needs once flags and config are resolved.
type env struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Collector
}

func (a *App) loadEnv() (*env, error) {
	cfg, err := config.NewLoader().
		WithConfigPath(flagConfig).
		WithGetenv(a.GetEnv).
		Load()
	if err != nil {
		return nil, err
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	logger := logging.New(cfg.Log)
	return &env{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewCollector(cfg.Metrics.Namespace, a.Registerer, logger),
	}, nil
}

// backends is the resolved generator chain, refiner and submitter.
type backends struct {
	generator backend.Generator
	refiner   backend.Refiner
	submitter backend.Submitter
	saver     *preview.Saver
}

// buildBackends registers every backend that can be built and resolves the
// configured chain against them. Without an OpenAI key the openai generator
// is dropped from the chain and refinement falls back to the placeholder.
func (a *App) buildBackends(e *env) (*backends, error) {
	cfg := e.cfg
	factory := backend.NewFactory()
	available := map[string]bool{}

	factory.RegisterGenerator(dataset.New(cfg.Dataset.Dir, cfg.Dataset.Entries))
	available[string(models.BackendDataset)] = true

	ph := placeholder.New(placeholder.Config{Width: cfg.Placeholder.Width, Height: cfg.Placeholder.Height})
	factory.RegisterGenerator(ph)
	factory.RegisterRefiner(ph)
	available[string(models.BackendPlaceholder)] = true

	oa, err := a.buildOpenAI(e)
	switch {
	case err == nil:
		factory.RegisterGenerator(oa)
		factory.RegisterRefiner(oa)
		available[string(models.BackendOpenAI)] = true
		e.logger.Debug("OpenAI backend enabled", zap.String("model", oa.Model()))
	case errors.Is(err, keys.ErrNoAPIKey):
		e.logger.Warn("OpenAI backend disabled", zap.Error(err))
	default:
		return nil, fmt.Errorf("failed to create OpenAI backend: %w", err)
	}

	var chain []string
	for _, name := range cfg.Generation.Chain {
		if !available[name] {
			e.logger.Warn("skipping unavailable generator", zap.String("backend", name))
			continue
		}
		chain = append(chain, name)
	}
	gen, err := factory.Generator(chain...)
	if err != nil {
		return nil, err
	}

	refinerName := cfg.Generation.Refiner
	if !available[refinerName] {
		e.logger.Warn("refiner unavailable, using placeholder", zap.String("backend", refinerName))
		refinerName = string(models.BackendPlaceholder)
	}
	ref, err := factory.Refiner(refinerName)
	if err != nil {
		return nil, err
	}

	registered := make([]string, 0, len(available))
	for _, name := range factory.ListGenerators() {
		registered = append(registered, string(name))
	}
	e.logger.Debug("backends ready",
		zap.Strings("registered", registered),
		zap.Strings("chain", chain),
		zap.String("refiner", refinerName),
	)

	return &backends{
		generator: gen,
		refiner:   ref,
		submitter: hunyuan.New(hunyuan.WithLogger(e.logger)),
		saver:     preview.NewSaver(),
	}, nil
}

func (a *App) buildOpenAI(e *env) (*openai.Backend, error) {
	cfg := e.cfg.OpenAI

	explicit := flagAPIKey
	if explicit == "" {
		explicit = cfg.APIKey
	}

	var store *keys.Store
	if a.NewKeyStore != nil {
		s, err := a.NewKeyStore(a.GetEnv)
		if err != nil {
			e.logger.Debug("key store unavailable", zap.Error(err))
		} else {
			store = s
		}
	}

	resolved, err := keys.Resolve(explicit, string(models.BackendOpenAI), openAIKeyEnv, store, a.GetEnv)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("using OpenAI key", zap.String("source", resolved.Source))

	opts := []openai.Option{openai.WithLogger(e.logger)}
	if cfg.RequestsPerMinute > 0 {
		opts = append(opts, openai.WithLimiter(rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)))
	}

	return a.NewOpenAI(&backend.Config{
		APIKey:     resolved.Key,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Size:       cfg.Size,
		TimeoutSec: int(cfg.Timeout / time.Second),
		Verbose:    cfg.Verbose,
	}, a.Registry, opts...)
}

func (b *backends) studioFactory(e *env) func() (*studio.Studio, error) {
	return func() (*studio.Studio, error) {
		return studio.New(studio.Config{
			Generator: b.generator,
			Refiner:   b.refiner,
			Submitter: b.submitter,
			Logger:    e.logger,
			Metrics:   e.metrics,
			Timeout:   e.cfg.Generation.Timeout,
		})
	}
}
