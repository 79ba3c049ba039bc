package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/manash/modelchat/internal/backend"
	"github.com/manash/modelchat/internal/cost"
	"github.com/manash/modelchat/internal/preview"
	"github.com/manash/modelchat/pkg/models"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "dall-e-2"
	defaultSize    = "1024x1024"
	defaultTimeout = 120 * time.Second

	// base64 inflates image payloads by a third
	maxResponseBytes = 2 * preview.MaxImageBytes
)

type apiRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
	OutputFormat   string `json:"output_format,omitempty"`
}

type apiResponse struct {
	Created int64       `json:"created"`
	Data    []imageData `json:"data"`
	Error   *apiError   `json:"error,omitempty"`
}

type imageData struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Backend generates previews with the OpenAI images API and refines them
// through the edits endpoint.
type Backend struct {
	apiKey     string
	baseURL    string
	model      string
	size       string
	httpClient *http.Client
	registry   *models.ModelRegistry
	limiter    *rate.Limiter
	logger     *zap.Logger
	calc       *cost.Calculator
	saver      *preview.Saver
	maxBody    int64
	verbose    bool
}

type Option func(*Backend)

func WithLogger(logger *zap.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// WithLimiter throttles outgoing API calls. A nil limiter disables throttling.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(b *Backend) {
		b.limiter = limiter
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(b *Backend) {
		b.httpClient = client
	}
}

func New(cfg *backend.Config, registry *models.ModelRegistry, opts ...Option) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, backend.ErrAPIKeyRequired
	}
	if registry == nil {
		registry = models.DefaultRegistry()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	if _, ok := registry.Get(model); !ok {
		return nil, fmt.Errorf("%w: unknown model %q", backend.ErrBackendNotFound, model)
	}
	size := cfg.Size
	if size == "" {
		size = defaultSize
	}

	timeout := defaultTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	b := &Backend{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		size:    size,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		registry: registry,
		logger:   zap.NewNop(),
		calc:     cost.NewCalculator(),
		saver:    preview.NewSaver(),
		maxBody:  maxResponseBytes,
		verbose:  cfg.Verbose,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Backend) Name() models.BackendType {
	return models.BackendOpenAI
}

func (b *Backend) Model() string {
	return b.model
}

func (b *Backend) Generate(ctx context.Context, prompt string) (*models.Preview, error) {
	req := models.NewRequest(prompt)
	req.Model = b.model
	req.Size = b.size

	caps, _ := b.registry.Get(b.model)
	caps.ApplyDefaults(req)
	if err := caps.Validate(req); err != nil {
		return nil, err
	}

	jsonData, err := json.Marshal(b.buildAPIRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := b.baseURL + "/images/generations"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	b.logRequest(http.MethodPost, url, httpReq.Header, jsonData)

	apiResp, err := b.do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	return b.buildPreview(ctx, apiResp, req)
}

func (b *Backend) buildAPIRequest(req *models.Request) *apiRequest {
	apiReq := &apiRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		N:      1,
		Size:   req.Size,
	}

	switch req.Model {
	case "gpt-image-1":
		apiReq.OutputFormat = req.Format.String()
	default:
		apiReq.ResponseFormat = "b64_json"
	}

	return apiReq
}

// do sends an authorized request and decodes the API envelope. Transport and
// API failures are ErrBackendUnavailable; an unreadable body is ErrMalformedArtifact.
func (b *Backend) do(ctx context.Context, httpReq *http.Request) (*apiResponse, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", backend.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := preview.ReadLimited(resp.Body, b.maxBody)
	if errors.Is(err, preview.ErrTooLarge) {
		return nil, fmt.Errorf("%w: %v", backend.ErrMalformedArtifact, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", backend.ErrBackendUnavailable, err)
	}

	b.logResponse(resp.StatusCode, body)

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: status %d", backend.ErrBackendUnavailable, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: failed to parse response: %v", backend.ErrMalformedArtifact, err)
	}

	if apiResp.Error != nil {
		return nil, fmt.Errorf("%w: %s", backend.ErrBackendUnavailable, apiResp.Error.Message)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", backend.ErrBackendUnavailable, resp.StatusCode)
	}

	return &apiResp, nil
}

func (b *Backend) buildPreview(ctx context.Context, apiResp *apiResponse, req *models.Request) (*models.Preview, error) {
	if len(apiResp.Data) == 0 {
		return nil, fmt.Errorf("%w: response contained no images", backend.ErrMalformedArtifact)
	}
	first := apiResp.Data[0]

	var data []byte
	switch {
	case first.B64JSON != "":
		decoded, err := base64.StdEncoding.DecodeString(first.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decode image: %v", backend.ErrMalformedArtifact, err)
		}
		data = decoded
	case first.URL != "":
		downloaded, err := b.saver.Bytes(ctx, &models.Preview{URL: first.URL})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", backend.ErrBackendUnavailable, err)
		}
		data = downloaded
	default:
		return nil, fmt.Errorf("%w: image has neither data nor URL", backend.ErrMalformedArtifact)
	}

	p, err := preview.FromBytes(uuid.New().String(), models.BackendOpenAI, req.Prompt, data)
	if err != nil {
		return nil, err
	}
	p.URL = first.URL
	p.Cost = b.calc.PerImage(models.BackendOpenAI, req.Model, req.Size)

	if first.RevisedPrompt != "" {
		b.logger.Debug("prompt revised by API", zap.String("revised_prompt", first.RevisedPrompt))
	}
	return p, nil
}

func (b *Backend) logRequest(method, url string, headers http.Header, body []byte) {
	if !b.verbose {
		return
	}
	b.logger.Debug("openai request",
		zap.String("method", method),
		zap.String("url", url),
		zap.Any("headers", redactHeaders(headers)),
		zap.ByteString("body", body),
	)
}

func (b *Backend) logResponse(statusCode int, body []byte) {
	if !b.verbose {
		return
	}
	b.logger.Debug("openai response",
		zap.Int("status", statusCode),
		zap.ByteString("body", truncateBase64InJSON(body)),
	)
}

func redactHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for key, values := range headers {
		value := strings.Join(values, ", ")
		if strings.EqualFold(key, "authorization") {
			value = "[REDACTED]"
		}
		out[key] = value
	}
	return out
}

func truncateBase64InJSON(body []byte) []byte {
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return body
	}

	truncateBase64Fields(data)

	result, err := json.Marshal(data)
	if err != nil {
		return body
	}
	return result
}

func truncateBase64Fields(data map[string]interface{}) {
	for key, value := range data {
		switch v := value.(type) {
		case string:
			if key == "b64_json" && len(v) > 100 {
				data[key] = v[:100] + "... [truncated]"
			}
		case map[string]interface{}:
			truncateBase64Fields(v)
		case []interface{}:
			for _, item := range v {
				if m, ok := item.(map[string]interface{}); ok {
					truncateBase64Fields(m)
				}
			}
		}
	}
}
