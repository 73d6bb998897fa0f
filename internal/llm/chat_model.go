package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/ollama/ollama/api"
)

// Supported chat model providers
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderDeepSeek   = "deepseek"
	ProviderOllama     = "ollama"
	ProviderArk        = "ark"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// Config describes the chat model backing every completion
type Config struct {
	Provider    string        `yaml:"provider" envconfig:"LLM_PROVIDER"`
	Model       string        `yaml:"model" envconfig:"LLM_MODEL"`
	APIKey      string        `yaml:"api_key" envconfig:"LLM_API_KEY"`
	BaseURL     string        `yaml:"base_url" envconfig:"LLM_BASE_URL"`
	MaxTokens   int           `yaml:"max_tokens" envconfig:"LLM_MAX_TOKENS"`
	Temperature float32       `yaml:"temperature" envconfig:"LLM_TEMPERATURE"`
	Timeout     time.Duration `yaml:"timeout" envconfig:"LLM_TIMEOUT"`
}

// DefaultConfig returns the default chat model settings
func DefaultConfig() Config {
	return Config{
		Provider:    ProviderOpenRouter,
		Model:       "openai/gpt-4o-mini",
		MaxTokens:   1024,
		Temperature: 0.1,
		Timeout:     60 * time.Second,
	}
}

// NeedsAPIKey reports whether the provider authenticates with an API key
func (c Config) NeedsAPIKey() bool {
	return strings.ToLower(c.Provider) != ProviderOllama
}

// NewChatModel builds the eino chat model for the configured provider
func NewChatModel(ctx context.Context, cfg Config) (model.BaseChatModel, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, ProviderOpenRouter:
		baseURL := cfg.BaseURL
		if baseURL == "" && strings.ToLower(cfg.Provider) == ProviderOpenRouter {
			baseURL = openRouterBaseURL
		}
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     baseURL,
			Model:       cfg.Model,
			MaxTokens:   &cfg.MaxTokens,
			Temperature: &cfg.Temperature,
			Timeout:     cfg.Timeout,
		})

	case ProviderDeepSeek:
		return deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})

	case ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: baseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
			Options: &api.Options{
				Temperature: cfg.Temperature,
				NumPredict:  cfg.MaxTokens,
			},
		})

	case ProviderArk:
		timeout := cfg.Timeout
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   &cfg.MaxTokens,
			Temperature: &cfg.Temperature,
			Timeout:     &timeout,
		})
	}
	return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
}
