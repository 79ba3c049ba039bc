package placeholder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"time"

	"github.com/google/uuid"

	"github.com/manash/modelchat/pkg/models"
)

const (
	DefaultWidth  = 512
	DefaultHeight = 512
)

type Config struct {
	Width  int
	Height int
	Fill   color.Color
}

func DefaultConfig() Config {
	return Config{
		Width:  DefaultWidth,
		Height: DefaultHeight,
		Fill:   color.White,
	}
}

// Backend stands in for a real text-to-image model: every prompt and every
// adjustment yields the same blank canvas.
type Backend struct {
	cfg Config
}

func New(cfg Config) *Backend {
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultHeight
	}
	if cfg.Fill == nil {
		cfg.Fill = color.White
	}
	return &Backend{cfg: cfg}
}

func (b *Backend) Name() models.BackendType {
	return models.BackendPlaceholder
}

func (b *Backend) Generate(ctx context.Context, prompt string) (*models.Preview, error) {
	return b.render(ctx, prompt)
}

func (b *Backend) Refine(ctx context.Context, _ *models.Preview, instruction string) (*models.Preview, error) {
	return b.render(ctx, instruction)
}

func (b *Backend) render(ctx context.Context, prompt string) (*models.Preview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, b.cfg.Width, b.cfg.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: b.cfg.Fill}, image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode placeholder: %w", err)
	}

	return &models.Preview{
		ID:        uuid.New().String(),
		Source:    models.BackendPlaceholder,
		Prompt:    prompt,
		Data:      buf.Bytes(),
		Format:    models.FormatPNG,
		Width:     b.cfg.Width,
		Height:    b.cfg.Height,
		CreatedAt: time.Now(),
	}, nil
}
