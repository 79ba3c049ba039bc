package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/manash/modelchat/internal/backend"
	"github.com/manash/modelchat/internal/security"
	"github.com/manash/modelchat/pkg/models"
)

// MaxImageBytes bounds a downloaded preview.
const MaxImageBytes = 32 << 20

var ErrTooLarge = errors.New("response exceeds size limit")

// ReadLimited reads r to EOF, failing with ErrTooLarge past limit bytes.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return data, nil
}

// Info describes a decoded image header.
type Info struct {
	Width  int
	Height int
	Format models.OutputFormat
}

// Inspect decodes just enough of data to prove it is a previewable image.
func Inspect(data []byte) (Info, error) {
	if len(data) == 0 {
		return Info{}, fmt.Errorf("%w: empty data", backend.ErrMalformedArtifact)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", backend.ErrMalformedArtifact, err)
	}
	return Info{
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: models.OutputFormat(format),
	}, nil
}

// FromBytes builds a preview from encoded image bytes, rejecting anything
// that does not decode.
func FromBytes(id string, source models.BackendType, prompt string, data []byte) (*models.Preview, error) {
	info, err := Inspect(data)
	if err != nil {
		return nil, err
	}
	return &models.Preview{
		ID:        id,
		Source:    source,
		Prompt:    prompt,
		Data:      data,
		Format:    info.Format,
		Width:     info.Width,
		Height:    info.Height,
		CreatedAt: time.Now(),
	}, nil
}

type Saver struct {
	httpClient *http.Client
	maxBytes   int64
}

func NewSaver() *Saver {
	return &Saver{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		maxBytes: MaxImageBytes,
	}
}

// Bytes returns the encoded image behind p, reading or downloading it if needed.
func (s *Saver) Bytes(ctx context.Context, p *models.Preview) ([]byte, error) {
	switch {
	case p == nil:
		return nil, backend.ErrNoPreview
	case p.HasData():
		return p.Data, nil
	case p.Path != "":
		return os.ReadFile(p.Path)
	case p.URL != "":
		data, err := s.downloadFromURL(ctx, p.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to download preview: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("no preview data available")
	}
}

func (s *Saver) Save(ctx context.Context, p *models.Preview, path string) error {
	data, err := s.Bytes(ctx, p)
	if err != nil {
		return err
	}

	if err := s.ensureDir(path); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

func (s *Saver) downloadFromURL(ctx context.Context, url string) ([]byte, error) {
	if err := security.ValidateImageURL(url, false); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	return ReadLimited(resp.Body, s.maxBytes)
}

func (s *Saver) ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

// DefaultFilename names a saved preview after its creation time.
func DefaultFilename(p *models.Preview) string {
	format := models.FormatPNG
	created := time.Now()
	if p != nil {
		if p.Format != "" {
			format = p.Format
		}
		if !p.CreatedAt.IsZero() {
			created = p.CreatedAt
		}
	}
	return FilenameWithTime(format, created)
}

func FilenameWithTime(format models.OutputFormat, t time.Time) string {
	ext := format.String()
	if format == models.FormatJPEG {
		ext = "jpg"
	}
	return fmt.Sprintf("preview-%s.%s", t.Format("20060102-150405"), ext)
}
