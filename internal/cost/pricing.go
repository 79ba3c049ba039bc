package cost

// OpenAI image pricing (USD per image).
// Source: https://openai.com/api/pricing/

type PricingKey struct {
	Model string
	Size  string
}

// gpt-image-1 entries are the medium-quality tier, which is what the
// generations endpoint bills when no quality is requested.
var openAIPricing = map[PricingKey]float64{
	{Model: "dall-e-2", Size: "256x256"}:   0.016,
	{Model: "dall-e-2", Size: "512x512"}:   0.018,
	{Model: "dall-e-2", Size: "1024x1024"}: 0.020,

	{Model: "gpt-image-1", Size: "1024x1024"}: 0.042,
	{Model: "gpt-image-1", Size: "1536x1024"}: 0.063,
	{Model: "gpt-image-1", Size: "1024x1536"}: 0.063,
	{Model: "gpt-image-1", Size: "auto"}:      0.042,
}

func GetOpenAIPrice(model, size string) (float64, bool) {
	price, ok := openAIPricing[PricingKey{Model: model, Size: size}]
	return price, ok
}
