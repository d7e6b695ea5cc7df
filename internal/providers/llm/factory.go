package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sandevgo/formpilot/internal/config"
	"github.com/sandevgo/formpilot/internal/core"
	"github.com/sandevgo/formpilot/pkg/log"
)

// NewProvider creates the configured AIProvider. The API key comes from the
// vault first, then from the environment; Ollama and custom endpoints may
// run keyless.
func NewProvider(ctx context.Context, cfg *config.ProviderConfig, keys core.KeySource) (core.AIProvider, error) {
	apiKey, err := resolveKey(ctx, cfg, keys)
	if err != nil {
		return nil, err
	}

	log.FromCtx(ctx).Info().
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Msg("starting llm provider")

	return New(cfg, cfg.Provider, apiKey, cfg.Model)
}

// New builds a provider adapter for an explicit provider/key/model triple.
func New(cfg *config.ProviderConfig, provider, apiKey, model string) (core.AIProvider, error) {
	switch provider {
	case "openai":
		return NewOpenAI(apiKey, model), nil
	case "anthropic":
		return NewAnthropic(apiKey, model), nil
	case "openrouter":
		return NewOpenRouter(apiKey, model), nil
	case "ollama":
		return NewOllama(cfg.OllamaBaseURL, apiKey, model), nil
	case "custom":
		return NewCustomOpenAI(cfg.CustomBaseURL, apiKey, model), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", provider)
	}
}

func resolveKey(ctx context.Context, cfg *config.ProviderConfig, keys core.KeySource) (string, error) {
	if keys != nil {
		key, err := keys.GetKey(ctx, cfg.Provider)
		if err == nil && key != "" {
			return key, nil
		}
		if err != nil && !errors.Is(err, core.ErrNoKey) {
			return "", fmt.Errorf("resolve key: %w", err)
		}
	}

	if key := cfg.EnvKey(cfg.Provider); key != "" {
		return key, nil
	}

	// Keyless is fine for local endpoints.
	if cfg.Provider == "ollama" || cfg.Provider == "custom" {
		return "", nil
	}
	return "", fmt.Errorf("%w for provider %s", core.ErrNoKey, cfg.Provider)
}
