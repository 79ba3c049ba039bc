package cost

import (
	"math"
	"testing"

	"github.com/manash/modelchat/pkg/models"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCalculator_PerImage(t *testing.T) {
	c := NewCalculator()

	tests := []struct {
		name    string
		backend models.BackendType
		model   string
		size    string
		want    float64
	}{
		{"dall-e-2 small", models.BackendOpenAI, "dall-e-2", "256x256", 0.016},
		{"dall-e-2 large", models.BackendOpenAI, "dall-e-2", "1024x1024", 0.020},
		{"dall-e-2 unknown size falls back", models.BackendOpenAI, "dall-e-2", "999x999", 0.020},
		{"gpt-image-1 square", models.BackendOpenAI, "gpt-image-1", "1024x1024", 0.042},
		{"gpt-image-1 landscape", models.BackendOpenAI, "gpt-image-1", "1536x1024", 0.063},
		{"unknown openai model", models.BackendOpenAI, "mystery", "1024x1024", 0},
		{"dataset is free", models.BackendDataset, "", "", 0},
		{"placeholder is free", models.BackendPlaceholder, "", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.PerImage(tt.backend, tt.model, tt.size); !almostEqual(got, tt.want) {
				t.Errorf("PerImage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculator_Total(t *testing.T) {
	c := NewCalculator()

	if got := c.Total(models.BackendOpenAI, "dall-e-2", "512x512", 3); !almostEqual(got, 0.054) {
		t.Errorf("Total() = %v, want 0.054", got)
	}
	if got := c.Total(models.BackendOpenAI, "dall-e-2", "512x512", 0); got != 0 {
		t.Errorf("Total() with zero count = %v, want 0", got)
	}
}

func TestGetOpenAIPrice(t *testing.T) {
	if _, ok := GetOpenAIPrice("dall-e-3", "1024x1024"); ok {
		t.Error("GetOpenAIPrice(dall-e-3) ok = true, want false")
	}
	price, ok := GetOpenAIPrice("gpt-image-1", "auto")
	if !ok || !almostEqual(price, 0.042) {
		t.Errorf("GetOpenAIPrice(gpt-image-1, auto) = %v, %v", price, ok)
	}
}
