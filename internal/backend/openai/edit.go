package openai

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"mime/multipart"
	"net/http"

	"go.uber.org/zap"

	"github.com/manash/modelchat/internal/backend"
	"github.com/manash/modelchat/pkg/models"
)

func (b *Backend) SupportsEdit() bool {
	caps, ok := b.registry.Get(b.model)
	if !ok {
		return false
	}
	return caps.SupportsEdit && caps.Backend == models.BackendOpenAI
}

// Refine sends the previous preview to the edits endpoint with instruction
// as the prompt. The edits API only takes PNG, so other formats are re-encoded.
func (b *Backend) Refine(ctx context.Context, previous *models.Preview, instruction string) (*models.Preview, error) {
	if previous == nil {
		return nil, backend.ErrNoPreview
	}
	if !b.SupportsEdit() {
		return nil, fmt.Errorf("%w: %s", models.ErrEditNotSupported, b.model)
	}

	data, err := b.saver.Bytes(ctx, previous)
	if err != nil {
		return nil, err
	}
	pngData, err := toRGBAPNG(data)
	if err != nil {
		return nil, err
	}

	req := models.NewEditRequest(pngData, instruction)
	req.Model = b.model
	req.Size = b.size
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	imagePart, err := writer.CreateFormFile("image", "image.png")
	if err != nil {
		return nil, fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := imagePart.Write(req.Image); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}

	fields := [][2]string{
		{"prompt", req.Prompt},
		{"model", req.Model},
		{"size", req.Size},
		{"n", "1"},
	}
	if req.Model == "gpt-image-1" {
		fields = append(fields, [2]string{"output_format", models.FormatPNG.String()})
	} else {
		fields = append(fields, [2]string{"response_format", "b64_json"})
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f[0], err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	url := b.baseURL + "/images/edits"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	b.logMultipartRequest(url, req)

	apiResp, err := b.do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	return b.buildPreview(ctx, apiResp, &models.Request{Prompt: instruction, Model: req.Model, Size: req.Size})
}

// toRGBAPNG decodes any supported image and encodes it as a non-paletted PNG.
func toRGBAPNG(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrMalformedArtifact, err)
	}

	rgba := image.NewNRGBA(src.Bounds())
	draw.Draw(rgba, rgba.Bounds(), src, src.Bounds().Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (b *Backend) logMultipartRequest(url string, req *models.EditRequest) {
	if !b.verbose {
		return
	}
	b.logger.Debug("openai edit request",
		zap.String("url", url),
		zap.String("model", req.Model),
		zap.String("prompt", req.Prompt),
		zap.String("size", req.Size),
		zap.Int("image_bytes", len(req.Image)),
	)
}
