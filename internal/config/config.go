// Package config loads modelchat settings. Sources are applied in order:
// defaults, then the YAML file, then MODELCHAT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const EnvPrefix = "MODELCHAT"

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Log         LogConfig         `yaml:"log" env:"LOG"`
	Generation  GenerationConfig  `yaml:"generation" env:"GENERATION"`
	Dataset     DatasetConfig     `yaml:"dataset" env:"DATASET"`
	OpenAI      OpenAIConfig      `yaml:"openai" env:"OPENAI"`
	Placeholder PlaceholderConfig `yaml:"placeholder" env:"PLACEHOLDER"`
	Server      ServerConfig      `yaml:"server" env:"SERVER"`
	Display     DisplayConfig     `yaml:"display" env:"DISPLAY"`
	Metrics     MetricsConfig     `yaml:"metrics" env:"METRICS"`
}

type LogConfig struct {
	// debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// json or console
	Format       string   `yaml:"format" env:"FORMAT"`
	OutputPaths  []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

type GenerationConfig struct {
	// Chain lists generators tried in order for a description.
	Chain   []string      `yaml:"chain" env:"CHAIN"`
	Refiner string        `yaml:"refiner" env:"REFINER"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type DatasetConfig struct {
	Dir string `yaml:"dir" env:"DIR"`
	// Entries maps prompts to files under Dir. Empty means the stock set.
	Entries map[string]string `yaml:"entries" env:"-"`
}

type OpenAIConfig struct {
	APIKey            string        `yaml:"api_key" env:"API_KEY"`
	BaseURL           string        `yaml:"base_url" env:"BASE_URL"`
	Model             string        `yaml:"model" env:"MODEL"`
	Size              string        `yaml:"size" env:"SIZE"`
	Timeout           time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RequestsPerMinute int           `yaml:"requests_per_minute" env:"REQUESTS_PER_MINUTE"`
	Verbose           bool          `yaml:"verbose" env:"VERBOSE"`
}

type PlaceholderConfig struct {
	Width  int `yaml:"width" env:"WIDTH"`
	Height int `yaml:"height" env:"HEIGHT"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// MaxMessageBytes caps an inbound websocket frame.
	MaxMessageBytes int64 `yaml:"max_message_bytes" env:"MAX_MESSAGE_BYTES"`
}

type DisplayConfig struct {
	// auto, always or never
	Inline string `yaml:"inline" env:"INLINE"`
}

type MetricsConfig struct {
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

var (
	validGenerators = []string{"dataset", "openai", "placeholder"}
	validRefiners   = []string{"openai", "placeholder"}
	validInline     = []string{"auto", "always", "never"}
	validLevels     = []string{"debug", "info", "warn", "error"}
	validFormats    = []string{"json", "console"}
)

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLevels, c.Log.Level) {
		errs = append(errs, fmt.Sprintf("log.level %q must be one of %v", c.Log.Level, validLevels))
	}
	if !slices.Contains(validFormats, c.Log.Format) {
		errs = append(errs, fmt.Sprintf("log.format %q must be one of %v", c.Log.Format, validFormats))
	}

	if len(c.Generation.Chain) == 0 {
		errs = append(errs, "generation.chain must name at least one generator")
	}
	for _, name := range c.Generation.Chain {
		if !slices.Contains(validGenerators, name) {
			errs = append(errs, fmt.Sprintf("generation.chain: unknown generator %q", name))
		}
	}
	if !slices.Contains(validRefiners, c.Generation.Refiner) {
		errs = append(errs, fmt.Sprintf("generation.refiner %q must be one of %v", c.Generation.Refiner, validRefiners))
	}
	if c.Generation.Timeout < 0 {
		errs = append(errs, "generation.timeout cannot be negative")
	}

	if c.OpenAI.RequestsPerMinute < 0 {
		errs = append(errs, "openai.requests_per_minute cannot be negative")
	}
	if c.Placeholder.Width <= 0 || c.Placeholder.Height <= 0 {
		errs = append(errs, "placeholder width and height must be positive")
	}
	if c.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}
	if !slices.Contains(validInline, c.Display.Inline) {
		errs = append(errs, fmt.Sprintf("display.inline %q must be one of %v", c.Display.Inline, validInline))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// Loader builds a Config from defaults, an optional YAML file and the environment.
type Loader struct {
	configPath string
	envPrefix  string
	getenv     func(string) string
}

func NewLoader() *Loader {
	return &Loader{
		envPrefix: EnvPrefix,
		getenv:    os.Getenv,
	}
}

func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

func (l *Loader) WithGetenv(getenv func(string) string) *Loader {
	l.getenv = getenv
	return l
}

// Load returns a validated Config. A missing config file is not an error.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := l.getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

// setFieldValue parses value into one of the kinds Config uses.
func setFieldValue(field reflect.Value, value string) error {
	var err error
	switch ptr := field.Addr().Interface().(type) {
	case *string:
		*ptr = value
	case *bool:
		*ptr, err = strconv.ParseBool(value)
	case *int:
		*ptr, err = strconv.Atoi(value)
	case *int64:
		*ptr, err = strconv.ParseInt(value, 10, 64)
	case *time.Duration:
		*ptr, err = time.ParseDuration(value)
	case *[]string:
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		*ptr = parts
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return err
}
