package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Council  CouncilConfig  `yaml:"council"`
	Provider ProviderConfig `yaml:"provider"`
	Telegram TelegramConfig `yaml:"telegram"`
	NATS     NATSConfig     `yaml:"nats"`
	Store    StoreConfig    `yaml:"store"`
	Web      WebConfig      `yaml:"web"`
}

// CouncilConfig is the roster and role assignment shared by every council type.
type CouncilConfig struct {
	Models        []string `yaml:"models"`
	ChairmanModel string   `yaml:"chairman_model"`
	FallbackModel string   `yaml:"fallback_model"`
	TitleModel    string   `yaml:"title_model"`
	Iterations    int      `yaml:"iterations"`
	DefaultType   string   `yaml:"default_type"`
}

type ProviderConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	AnthropicAPIKey   string        `yaml:"anthropic_api_key"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxTokens         int64         `yaml:"max_tokens"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

type TelegramConfig struct {
	Token     string  `yaml:"token"`
	AllowFrom []int64 `yaml:"allow_from"`
}

type NATSConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type WebConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Port         int      `yaml:"port"`
	Auth         string   `yaml:"auth"`
	AllowOrigins []string `yaml:"allow_origins"`
}

func defaults() Config {
	return Config{
		Council: CouncilConfig{
			Models: []string{
				"deepseek/deepseek-r1-0528:free",
				"meta-llama/llama-3.3-70b-instruct:free",
				"mistralai/mistral-small-3.1-24b-instruct:free",
				"allenai/olmo-3.1-32b-think:free",
			},
			ChairmanModel: "meta-llama/llama-3.1-405b-instruct:free",
			FallbackModel: "mistralai/mistral-small-3.1-24b-instruct:free",
			TitleModel:    "mistralai/mistral-small-3.1-24b-instruct:free",
			Iterations:    2,
			DefaultType:   "default",
		},
		Provider: ProviderConfig{
			BaseURL:           "https://openrouter.ai/api/v1",
			Timeout:           120 * time.Second,
			MaxTokens:         4096,
			RequestsPerSecond: 5,
			Burst:             10,
		},
		NATS: NATSConfig{
			Enabled: true,
			Port:    4222,
		},
		Store: StoreConfig{
			Path: "data/council.db",
		},
		Web: WebConfig{
			Enabled:      true,
			Port:         8001,
			AllowOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("COUNCIL_CONFIG")
	if path == "" {
		path = "config/council.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the fields every council type depends on.
func (c *Config) Validate() error {
	var errs []error
	if c.Council.ChairmanModel == "" {
		errs = append(errs, errors.New("council.chairman_model is required"))
	}
	if c.Council.FallbackModel == "" {
		errs = append(errs, errors.New("council.fallback_model is required"))
	}
	if c.Council.Iterations < 1 {
		errs = append(errs, fmt.Errorf("council.iterations must be >= 1, got %d", c.Council.Iterations))
	}
	seen := make(map[string]bool, len(c.Council.Models))
	for _, m := range c.Council.Models {
		if seen[m] {
			errs = append(errs, fmt.Errorf("council.models lists %q twice", m))
		}
		seen[m] = true
	}
	if c.Provider.BaseURL == "" {
		errs = append(errs, errors.New("provider.base_url is required"))
	}
	return errors.Join(errs...)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Provider.AnthropicAPIKey = v
	}
	if v := os.Getenv("COUNCIL_PROVIDER_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("COUNCIL_MODELS"); v != "" {
		var models []string
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				models = append(models, m)
			}
		}
		cfg.Council.Models = models
	}
	if v := os.Getenv("COUNCIL_CHAIRMAN_MODEL"); v != "" {
		cfg.Council.ChairmanModel = v
	}
	if v := os.Getenv("COUNCIL_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("COUNCIL_WEB_PASSWORD"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("COUNCIL_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("COUNCIL_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("COUNCIL_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
}
