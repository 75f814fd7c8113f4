// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"fmt"
	"strings"

	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/option"

	"github.com/firoagni/ai-development-tutorials/internal/config"
)

const (
	defaultOllamaBaseURL   = "http://localhost:11434/v1"
	defaultAzureAPIVersion = "2024-10-21"
	// Azure serves the responses API from the preview versions onwards.
	defaultAzureResponsesAPIVersion = "2025-03-01-preview"
)

// NewChatProvider builds the appropriate ChatProvider based on cfg.AI.Provider.
func NewChatProvider(cfg *config.Config) (ChatProvider, error) {
	provider := strings.ToLower(cfg.AI.Provider)

	// The SDKs retry failed calls on their own unless told otherwise.
	opts := []option.RequestOption{option.WithMaxRetries(cfg.AI.MaxRetries)}
	if cfg.AI.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.AI.RequestTimeout))
	}

	if strings.EqualFold(cfg.AI.API, "responses") {
		return newResponsesProvider(cfg, provider, opts)
	}

	switch provider {
	case "anthropic":
		apiKey := cfg.AI.AnthropicAPIKey
		if apiKey == "" {
			apiKey = cfg.AI.APIKey
		}
		if apiKey == "" {
			return nil, fmt.Errorf("Anthropic API key is not set in configuration")
		}
		return NewAnthropicProvider(apiKey, anthropicOptions(cfg)...), nil
	case "azure":
		if cfg.AI.AzureEndpoint == "" {
			return nil, fmt.Errorf("Azure OpenAI endpoint is not set in configuration")
		}
		if cfg.AI.APIKey == "" {
			return nil, fmt.Errorf("Azure OpenAI API key is not set in configuration")
		}
		version := cfg.AI.APIVersion
		if version == "" {
			version = defaultAzureAPIVersion
		}
		return NewAzureProvider(cfg.AI.AzureEndpoint, version, cfg.AI.APIKey, opts...), nil
	case "ollama":
		baseURL := cfg.AI.BaseURL
		if baseURL == "" {
			baseURL = defaultOllamaBaseURL
		}
		// Ollama ignores the key but the client insists on one.
		return NewOpenAIProvider("ollama", baseURL, opts...).WithName("ollama"), nil
	case "openai", "":
		apiKey := cfg.AI.OpenAIAPIKey
		if apiKey == "" {
			apiKey = cfg.AI.APIKey
		}
		if apiKey == "" {
			return nil, fmt.Errorf("OpenAI API key is not set in configuration")
		}
		return NewOpenAIProvider(apiKey, cfg.AI.BaseURL, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.AI.Provider)
	}
}

func newResponsesProvider(cfg *config.Config, provider string, opts []option.RequestOption) (ChatProvider, error) {
	var p *ResponsesProvider
	switch provider {
	case "azure":
		if cfg.AI.AzureEndpoint == "" {
			return nil, fmt.Errorf("Azure OpenAI endpoint is not set in configuration")
		}
		if cfg.AI.APIKey == "" {
			return nil, fmt.Errorf("Azure OpenAI API key is not set in configuration")
		}
		version := cfg.AI.APIVersion
		if version == "" {
			version = defaultAzureResponsesAPIVersion
		}
		p = NewAzureResponsesProvider(cfg.AI.AzureEndpoint, version, cfg.AI.APIKey, opts...)
	case "openai", "":
		apiKey := cfg.AI.OpenAIAPIKey
		if apiKey == "" {
			apiKey = cfg.AI.APIKey
		}
		if apiKey == "" {
			return nil, fmt.Errorf("OpenAI API key is not set in configuration")
		}
		p = NewResponsesProvider(apiKey, cfg.AI.BaseURL, opts...)
	default:
		return nil, fmt.Errorf("the responses API is not available for provider %s", cfg.AI.Provider)
	}
	if cfg.AI.CodeInterpreter {
		p = p.WithCodeInterpreter()
	}
	return p, nil
}

func anthropicOptions(cfg *config.Config) []anthropicoption.RequestOption {
	opts := []anthropicoption.RequestOption{anthropicoption.WithMaxRetries(cfg.AI.MaxRetries)}
	if cfg.AI.RequestTimeout > 0 {
		opts = append(opts, anthropicoption.WithRequestTimeout(cfg.AI.RequestTimeout))
	}
	if cfg.AI.BaseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(cfg.AI.BaseURL))
	}
	return opts
}

// SettingsFromConfig returns the generation settings configured in cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	temperature := cfg.AI.Temperature
	return Settings{
		Model:           cfg.AI.Model,
		Temperature:     &temperature,
		MaxTokens:       cfg.Chat.MaxResponseTokens,
		Seed:            cfg.AI.Seed,
		ReasoningEffort: cfg.AI.ReasoningEffort,
	}
}
