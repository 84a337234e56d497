package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/abhisek/zapquiz/internal/store"
)

// NewProvider builds the configured provider behind retry and request
// logging. It returns nil, nil when the LLM is disabled.
func NewProvider(ctx context.Context, cfg Config, events store.EventRepo, log logrus.FieldLogger) (Provider, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		base Provider
		err  error
	)
	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "fake":
		f := NewFake()
		if cfg.Fake.Reply != "" {
			f.WithFallback(Reply{Content: json.RawMessage(cfg.Fake.Reply)})
		}
		base = f
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s provider: %w", cfg.Provider, err)
	}

	// Each retry is logged as its own request.
	return WithRetry(WithLogging(base, cfg.Provider, events, log), cfg.Retry), nil
}
