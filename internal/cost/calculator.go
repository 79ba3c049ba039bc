package cost

import "github.com/manash/modelchat/pkg/models"

const (
	CurrencyUSD = "USD"
)

type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// PerImage estimates what one preview from backend costs. Local backends are free.
func (c *Calculator) PerImage(backend models.BackendType, model, size string) float64 {
	switch backend {
	case models.BackendOpenAI:
		return c.openAI(model, size)
	default:
		return 0
	}
}

func (c *Calculator) Total(backend models.BackendType, model, size string, count int) float64 {
	if count < 1 {
		return 0
	}
	return c.PerImage(backend, model, size) * float64(count)
}

func (c *Calculator) openAI(model, size string) float64 {
	if price, ok := GetOpenAIPrice(model, size); ok {
		return price
	}

	switch model {
	case "gpt-image-1":
		return 0.042
	case "dall-e-2":
		return 0.020
	default:
		return 0
	}
}
