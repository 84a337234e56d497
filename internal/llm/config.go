package llm

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config holds LLM provider configuration. The LLM is optional: with
// Provider empty or "none", answers are graded by exact match only.
type Config struct {
	// Provider selects which LLM provider to use.
	// Values: "anthropic", "openai", "gemini", "fake", "none"
	Provider string `mapstructure:"provider"`

	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Fake      FakeConfig      `mapstructure:"fake"`
	Retry     RetryConfig     `mapstructure:"retry"`
}

// FakeConfig configures the offline provider used for demos and local
// runs.
type FakeConfig struct {
	// Reply is the JSON returned for every request. Empty means every
	// request fails as unavailable.
	Reply string `mapstructure:"reply"`
}

// AnthropicConfig holds Anthropic-specific configuration.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"` // Default: "claude-haiku"
}

// OpenAIConfig holds OpenAI-specific configuration.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`    // Default: "gpt-4o-mini"
	BaseURL string `mapstructure:"base_url"` // Optional, for compatible APIs.
}

// GeminiConfig holds Gemini-specific configuration.
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"` // Default: "gemini-flash"
}

// RetryConfig configures retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	InitialWait time.Duration `mapstructure:"initial_wait"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

// DefaultConfig returns a Config with the LLM disabled and provider
// defaults filled in.
func DefaultConfig() Config {
	return Config{
		Provider: "none",
		Anthropic: AnthropicConfig{
			Model: "claude-haiku",
		},
		OpenAI: OpenAIConfig{
			Model: "gpt-4o-mini",
		},
		Gemini: GeminiConfig{
			Model: "gemini-flash",
		},
		Retry: RetryConfig{
			MaxAttempts: 2,
			InitialWait: 500 * time.Millisecond,
			MaxWait:     4 * time.Second,
			Multiplier:  2.0,
		},
	}
}

// Enabled reports whether a provider is configured.
func (c Config) Enabled() bool {
	return c.Provider != "" && c.Provider != "none"
}

// DiscoverKeys fills a missing API key for the selected provider from the
// vendor's standard environment variable.
func (c *Config) DiscoverKeys() {
	switch c.Provider {
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			c.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	case "gemini":
		if c.Gemini.APIKey == "" {
			c.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
}

// Validate checks that the selected provider has its required API key set.
func (c Config) Validate() error {
	switch c.Provider {
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("llm.anthropic.api_key is required for the anthropic provider")
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("llm.openai.api_key is required for the openai provider")
		}
	case "gemini":
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("llm.gemini.api_key is required for the gemini provider")
		}
	case "fake":
		if c.Fake.Reply != "" && !json.Valid([]byte(c.Fake.Reply)) {
			return fmt.Errorf("llm.fake.reply must be JSON")
		}
	case "none", "":
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	return nil
}
