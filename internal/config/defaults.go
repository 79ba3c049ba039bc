package config

import "time"

func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			OutputPaths: []string{"stderr"},
		},
		Generation: GenerationConfig{
			Chain:   []string{"dataset", "openai", "placeholder"},
			Refiner: "openai",
			Timeout: 2 * time.Minute,
		},
		Dataset: DatasetConfig{
			Dir: "dataset",
		},
		OpenAI: OpenAIConfig{
			Model:             "dall-e-2",
			Size:              "1024x1024",
			Timeout:           2 * time.Minute,
			RequestsPerMinute: 5,
		},
		Placeholder: PlaceholderConfig{
			Width:  512,
			Height: 512,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxMessageBytes: 1 << 20,
		},
		Display: DisplayConfig{
			Inline: "auto",
		},
		Metrics: MetricsConfig{
			Namespace: "modelchat",
		},
	}
}
