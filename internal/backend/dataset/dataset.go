package dataset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/manash/modelchat/internal/backend"
	"github.com/manash/modelchat/internal/preview"
	"github.com/manash/modelchat/pkg/models"
)

// DefaultEntries maps the stock prompts to their reference images.
func DefaultEntries() map[string]string {
	return map[string]string{
		"futuristic city": "futuristic_city.jpg",
		"fantasy castle":  "fantasy_castle.jpg",
		"robot warrior":   "robot_warrior.jpg",
		"alien landscape": "alien_landscape.jpg",
	}
}

// Backend serves pre-rendered images for prompts that match an entry exactly
// (case-insensitive). Anything else is ErrNotFound so a chain can fall back.
type Backend struct {
	dir     string
	entries map[string]string
}

func New(dir string, entries map[string]string) *Backend {
	if entries == nil {
		entries = DefaultEntries()
	}
	normalized := make(map[string]string, len(entries))
	for prompt, file := range entries {
		normalized[strings.ToLower(prompt)] = file
	}
	return &Backend{dir: dir, entries: normalized}
}

func (b *Backend) Name() models.BackendType {
	return models.BackendDataset
}

// Lookup returns the file path registered for prompt, if any.
func (b *Backend) Lookup(prompt string) (string, bool) {
	file, ok := b.entries[strings.ToLower(prompt)]
	if !ok {
		return "", false
	}
	if filepath.IsAbs(file) || b.dir == "" {
		return file, true
	}
	return filepath.Join(b.dir, file), true
}

func (b *Backend) Generate(ctx context.Context, prompt string) (*models.Preview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, ok := b.Lookup(prompt)
	if !ok {
		return nil, fmt.Errorf("%w: %q not in dataset", backend.ErrNotFound, prompt)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s missing", backend.ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", backend.ErrBackendUnavailable, err)
	}

	p, err := preview.FromBytes(uuid.New().String(), models.BackendDataset, prompt, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.Path = path
	return p, nil
}
