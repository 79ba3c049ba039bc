package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/manash/modelchat/internal/history"
	"github.com/manash/modelchat/pkg/models"
)

var (
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrNotFound           = errors.New("no matching artifact")
	ErrMalformedArtifact  = errors.New("artifact is not a previewable image")
	ErrNoPreview          = errors.New("no preview to refine")
	ErrBackendNotFound    = errors.New("backend not found")
	ErrAPIKeyRequired     = errors.New("API key is required")
)

// Generator turns free text into a preview artifact.
type Generator interface {
	Name() models.BackendType
	Generate(ctx context.Context, prompt string) (*models.Preview, error)
}

// Refiner produces a new artifact from the previous one and an instruction.
// previous may be nil when nothing has been generated yet.
type Refiner interface {
	Name() models.BackendType
	Refine(ctx context.Context, previous *models.Preview, instruction string) (*models.Preview, error)
}

// Submitter hands a session snapshot off for final processing.
type Submitter interface {
	Name() models.BackendType
	Submit(ctx context.Context, snap history.Snapshot) (*models.SubmissionResult, error)
}

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Size       string
	TimeoutSec int
	Verbose    bool
}

const BackendChain models.BackendType = "chain"

// Chain tries generators in order. ErrNotFound moves on to the next one; any
// other error ends the chain.
type Chain struct {
	generators []Generator
}

func NewChain(generators ...Generator) *Chain {
	return &Chain{generators: generators}
}

func (c *Chain) Name() models.BackendType {
	return BackendChain
}

func (c *Chain) Len() int {
	return len(c.generators)
}

func (c *Chain) Generate(ctx context.Context, prompt string) (*models.Preview, error) {
	for _, gen := range c.generators {
		preview, err := gen.Generate(ctx, prompt)
		if err == nil {
			return preview, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", gen.Name(), err)
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, prompt)
}

type Factory struct {
	generators map[models.BackendType]Generator
	refiners   map[models.BackendType]Refiner
}

func NewFactory() *Factory {
	return &Factory{
		generators: make(map[models.BackendType]Generator),
		refiners:   make(map[models.BackendType]Refiner),
	}
}

func (f *Factory) RegisterGenerator(gen Generator) {
	f.generators[gen.Name()] = gen
}

func (f *Factory) RegisterRefiner(ref Refiner) {
	f.refiners[ref.Name()] = ref
}

// Generator builds a chain from the named generators, in order.
func (f *Factory) Generator(names ...string) (*Chain, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: empty generator chain", ErrBackendNotFound)
	}
	gens := make([]Generator, 0, len(names))
	for _, name := range names {
		gen, ok := f.generators[models.BackendType(name)]
		if !ok {
			return nil, fmt.Errorf("%w: generator %s", ErrBackendNotFound, name)
		}
		gens = append(gens, gen)
	}
	return NewChain(gens...), nil
}

func (f *Factory) Refiner(name string) (Refiner, error) {
	ref, ok := f.refiners[models.BackendType(name)]
	if !ok {
		return nil, fmt.Errorf("%w: refiner %s", ErrBackendNotFound, name)
	}
	return ref, nil
}

func (f *Factory) ListGenerators() []models.BackendType {
	types := make([]models.BackendType, 0, len(f.generators))
	for t := range f.generators {
		types = append(types, t)
	}
	return types
}
