package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/formpilot/pkg/log"
)

// ProviderConfig selects the LLM backend used for matching and
// categorization. API keys are not configured here: they come from the
// encrypted vault, with the env variables below as a fallback for headless
// setups.
type ProviderConfig struct {
	Provider string `env:"FORMPILOT_PROVIDER" envDefault:"openai"`
	Model    string `env:"FORMPILOT_MODEL" envDefault:"gpt-4o-mini"`

	OpenAIAPIKey     string `env:"FORMPILOT_OPENAI_API_KEY"`
	AnthropicAPIKey  string `env:"FORMPILOT_ANTHROPIC_API_KEY"`
	OpenRouterAPIKey string `env:"FORMPILOT_OPENROUTER_API_KEY"`
	OllamaAPIKey     string `env:"FORMPILOT_OLLAMA_API_KEY"`
	OllamaBaseURL    string `env:"FORMPILOT_OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	CustomBaseURL    string `env:"FORMPILOT_CUSTOM_BASE_URL"`
	CustomAPIKey     string `env:"FORMPILOT_CUSTOM_API_KEY"`
}

func NewProviderConfig(ctx context.Context) *ProviderConfig {
	c := &ProviderConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Provider config")
	}
	return c
}

// EnvKey returns the env-configured API key for a provider, empty when the
// vault should be the only source.
func (c ProviderConfig) EnvKey(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "openrouter":
		return c.OpenRouterAPIKey
	case "ollama":
		return c.OllamaAPIKey
	case "custom":
		return c.CustomAPIKey
	}
	return ""
}
