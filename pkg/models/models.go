package models

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	ErrEmptyPrompt      = errors.New("prompt cannot be empty")
	ErrInvalidSize      = errors.New("invalid size for model")
	ErrInvalidFormat    = errors.New("output format not supported by model")
	ErrEditNotSupported = errors.New("image editing not supported by model")
	ErrNoImageData      = errors.New("image data is required for editing")
)

type BackendType string

const (
	BackendDataset     BackendType = "dataset"
	BackendOpenAI      BackendType = "openai"
	BackendPlaceholder BackendType = "placeholder"
	BackendHunyuan     BackendType = "hunyuan"
)

type OutputFormat string

const (
	FormatPNG  OutputFormat = "png"
	FormatJPEG OutputFormat = "jpeg"
	FormatGIF  OutputFormat = "gif"
)

func ValidFormats() []OutputFormat {
	return []OutputFormat{FormatPNG, FormatJPEG, FormatGIF}
}

func (f OutputFormat) IsValid() bool {
	return slices.Contains(ValidFormats(), f)
}

func (f OutputFormat) String() string {
	return string(f)
}

func (f OutputFormat) MIMEType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatGIF:
		return "image/gif"
	default:
		return "image/png"
	}
}

// Preview is the opaque handle to the most recently produced visual artifact.
// Exactly one of Data, URL or Path is expected to locate the artifact.
type Preview struct {
	ID        string
	Source    BackendType
	Prompt    string
	Data      []byte
	URL       string
	Path      string
	Format    OutputFormat
	Width     int
	Height    int
	Cost      float64
	CreatedAt time.Time
}

func (p *Preview) MIMEType() string {
	return p.Format.MIMEType()
}

func (p *Preview) HasData() bool {
	return p != nil && len(p.Data) > 0
}

func (p *Preview) Dimensions() string {
	if p == nil || p.Width == 0 || p.Height == 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

// SubmissionResult is the acknowledgment returned by a submission backend.
type SubmissionResult struct {
	Status          string `json:"status"`
	Message         string `json:"message"`
	TrackingID      string `json:"tracking_id,omitempty"`
	PreviewIncluded bool   `json:"preview_included"`
}

const (
	SubmissionSuccess = "success"
	SubmissionError   = "error"
)

func (r *SubmissionResult) OK() bool {
	return r != nil && r.Status == SubmissionSuccess
}

type Request struct {
	Prompt string
	Model  string
	Size   string
	Format OutputFormat
}

func NewRequest(prompt string) *Request {
	return &Request{
		Prompt: prompt,
		Format: FormatPNG,
	}
}

type EditRequest struct {
	Image  []byte
	Prompt string
	Model  string
	Size   string
	Format OutputFormat
}

func NewEditRequest(image []byte, prompt string) *EditRequest {
	return &EditRequest{
		Image:  image,
		Prompt: prompt,
		Format: FormatPNG,
	}
}

func (r *EditRequest) Validate() error {
	if len(r.Image) == 0 {
		return ErrNoImageData
	}
	if r.Prompt == "" {
		return ErrEmptyPrompt
	}
	return nil
}

type ModelCapabilities struct {
	Name           string
	Backend        BackendType
	SupportedSizes []string
	DefaultSize    string
	SupportsEdit   bool
	OutputFormats  []OutputFormat
}

func (c *ModelCapabilities) Validate(req *Request) error {
	if req.Prompt == "" {
		return ErrEmptyPrompt
	}

	if req.Size != "" && !slices.Contains(c.SupportedSizes, req.Size) {
		return fmt.Errorf("%w: %q not in %v", ErrInvalidSize, req.Size, c.SupportedSizes)
	}

	if req.Format != "" && len(c.OutputFormats) > 0 && !slices.Contains(c.OutputFormats, req.Format) {
		return fmt.Errorf("%w: %q not in %v", ErrInvalidFormat, req.Format, c.OutputFormats)
	}

	return nil
}

func (c *ModelCapabilities) ApplyDefaults(req *Request) {
	if req.Size == "" {
		req.Size = c.DefaultSize
	}
	if req.Model == "" {
		req.Model = c.Name
	}
	if req.Format == "" {
		req.Format = FormatPNG
	}
}

type ModelRegistry struct {
	models map[string]*ModelCapabilities
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		models: make(map[string]*ModelCapabilities),
	}
}

func (r *ModelRegistry) Register(cap *ModelCapabilities) {
	r.models[cap.Name] = cap
}

func (r *ModelRegistry) Get(name string) (*ModelCapabilities, bool) {
	cap, ok := r.models[name]
	return cap, ok
}

func (r *ModelRegistry) List() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *ModelRegistry) ListByBackend(backend BackendType) []string {
	var names []string
	for name, cap := range r.models {
		if cap.Backend == backend {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

func DefaultRegistry() *ModelRegistry {
	r := NewModelRegistry()

	r.Register(&ModelCapabilities{
		Name:           "dall-e-2",
		Backend:        BackendOpenAI,
		SupportedSizes: []string{"256x256", "512x512", "1024x1024"},
		DefaultSize:    "1024x1024",
		SupportsEdit:   true,
		OutputFormats:  []OutputFormat{FormatPNG},
	})

	r.Register(&ModelCapabilities{
		Name:           "gpt-image-1",
		Backend:        BackendOpenAI,
		SupportedSizes: []string{"1024x1024", "1536x1024", "1024x1536", "auto"},
		DefaultSize:    "1024x1024",
		SupportsEdit:   true,
		OutputFormats:  []OutputFormat{FormatPNG, FormatJPEG},
	})

	return r
}
