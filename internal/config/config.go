// SPDX-License-Identifier: AGPL-3.0-only
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	AI      AIConfig      `yaml:"ai"`
	Chat    ChatConfig    `yaml:"chat"`
	Store   StoreConfig   `yaml:"store"`
}

// ServerConfig holds the MCP build server configuration
type ServerConfig struct {
	Name          string `yaml:"name"`
	Version       string `yaml:"version"`
	TransportMode string `yaml:"transport"` // stdio, http or sse
	Address       string `yaml:"address"`
	Port          int    `yaml:"port"`
	Path          string `yaml:"path"` // HTTP mount path, e.g. /mcp
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level"`
	FilePath string `yaml:"file"`
}

// AIConfig holds the model provider configuration
type AIConfig struct {
	// Provider is one of openai, azure, anthropic or ollama.
	Provider string `yaml:"provider"`
	// API selects the OpenAI endpoint family: chat (completions) or
	// responses. Only openai and azure serve the responses API.
	API string `yaml:"api"`

	APIKey          string `yaml:"api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`

	// BaseURL points the OpenAI client at any compatible server.
	BaseURL string `yaml:"base_url"`

	// AzureEndpoint and APIVersion are only used by the azure provider.
	AzureEndpoint string `yaml:"azure_endpoint"`
	APIVersion    string `yaml:"api_version"`

	// Model is the model name, or the deployment name on Azure.
	Model string `yaml:"model"`

	Temperature     float64       `yaml:"temperature"`
	Seed            *int64        `yaml:"seed"`
	ReasoningEffort string        `yaml:"reasoning_effort"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	// MaxRetries is handed to the SDK. Zero keeps failures visible instead
	// of retrying silently.
	MaxRetries int `yaml:"max_retries"`

	MaxToolIterations int    `yaml:"max_tool_iterations"`
	MCPConfigFilePath string `yaml:"mcp_config"`
	// CodeInterpreter offers the hosted code interpreter tool on the
	// responses API.
	CodeInterpreter bool `yaml:"code_interpreter"`
}

// ChatConfig holds the conversation settings
type ChatConfig struct {
	DeveloperPrompt   string `yaml:"developer_prompt"`
	TokenLimit        int    `yaml:"token_limit"`
	MaxResponseTokens int    `yaml:"max_response_tokens"`
	DocumentPath      string `yaml:"document"`
	Stream            bool   `yaml:"stream"`
	// ServerSide keeps the conversation on the provider, chaining turns by
	// previous response id instead of resending the transcript.
	ServerSide bool `yaml:"server_side"`
}

// StoreConfig holds the exchange log configuration
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:          "build-server",
			Version:       "0.1.0",
			TransportMode: "stdio",
			Address:       "0.0.0.0",
			Port:          8000,
			Path:          "/mcp",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		AI: AIConfig{
			Provider:          "openai",
			Model:             "gpt-4o-mini",
			Temperature:       0.7,
			MaxToolIterations: 20,
		},
		Chat: ChatConfig{
			DeveloperPrompt:   "You are a sarcastic AI assistant. You are proud of your amazing memory",
			TokenLimit:        4096,
			MaxResponseTokens: 1000,
		},
		Store: StoreConfig{
			DBPath: defaultDBPath(),
		},
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".aichat", "exchanges.db")
	}
	return filepath.Join(home, ".aichat", "exchanges.db")
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("stat %s: %w", p, err)
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values.
func LoadFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// FromEnv overlays environment variables onto cfg
func FromEnv(cfg *Config) {
	// The Azure names are the ones the tutorials' .env files use.
	if v := os.Getenv("AZURE_OPENAI_ENDPOINT"); v != "" {
		cfg.AI.AzureEndpoint = v
		cfg.AI.Provider = "azure"
	}
	if v := os.Getenv("AZURE_OPENAI_MODEL"); v != "" {
		cfg.AI.Model = v
	}
	if v := firstEnv("AZURE_OPENAI_VERSION", "AZURE_OPENAI_API_VERSION"); v != "" {
		cfg.AI.APIVersion = v
	}
	if v := os.Getenv("AZURE_OPENAI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.AI.OpenAIAPIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.AI.AnthropicAPIKey = v
	}

	// AICHAT_* variables take precedence over the provider-specific ones.
	setString(&cfg.AI.Provider, "AICHAT_AI_PROVIDER")
	setString(&cfg.AI.API, "AICHAT_AI_API")
	setString(&cfg.AI.APIKey, "AICHAT_AI_API_KEY")
	setString(&cfg.AI.BaseURL, "AICHAT_AI_BASE_URL")
	setString(&cfg.AI.Model, "AICHAT_AI_MODEL")
	setString(&cfg.AI.ReasoningEffort, "AICHAT_AI_REASONING_EFFORT")
	setString(&cfg.AI.MCPConfigFilePath, "AICHAT_MCP_CONFIG_PATH")
	setFloat(&cfg.AI.Temperature, "AICHAT_AI_TEMPERATURE")
	setInt(&cfg.AI.MaxToolIterations, "AICHAT_AI_MAX_TOOL_ITERATIONS")
	setInt(&cfg.AI.MaxRetries, "AICHAT_AI_MAX_RETRIES")
	setDuration(&cfg.AI.RequestTimeout, "AICHAT_AI_REQUEST_TIMEOUT")
	if v := os.Getenv("AICHAT_AI_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.AI.Seed = &seed
		}
	}

	setBool(&cfg.AI.CodeInterpreter, "AICHAT_AI_CODE_INTERPRETER")

	setString(&cfg.Chat.DeveloperPrompt, "AICHAT_DEVELOPER_PROMPT")
	setString(&cfg.Chat.DocumentPath, "AICHAT_DOCUMENT")
	setInt(&cfg.Chat.TokenLimit, "AICHAT_TOKEN_LIMIT")
	setInt(&cfg.Chat.MaxResponseTokens, "AICHAT_MAX_RESPONSE_TOKENS")

	setBool(&cfg.Chat.ServerSide, "AICHAT_SERVER_SIDE")

	setString(&cfg.Logging.Level, "AICHAT_LOG_LEVEL")
	setString(&cfg.Logging.FilePath, "AICHAT_LOG_FILE")

	setString(&cfg.Server.TransportMode, "AICHAT_SERVER_TRANSPORT")
	setString(&cfg.Server.Address, "AICHAT_SERVER_ADDRESS")
	setInt(&cfg.Server.Port, "AICHAT_SERVER_PORT")

	setString(&cfg.Store.DBPath, "AICHAT_DB_PATH")
	setBool(&cfg.Store.Enabled, "AICHAT_STORE_ENABLED")
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	switch strings.ToLower(c.AI.Provider) {
	case "openai", "anthropic", "ollama", "":
	case "azure":
		if c.AI.AzureEndpoint == "" {
			return fmt.Errorf("azure provider requires an endpoint (AZURE_OPENAI_ENDPOINT)")
		}
		if c.AI.APIVersion == "" {
			return fmt.Errorf("azure provider requires an API version (AZURE_OPENAI_VERSION)")
		}
	default:
		return fmt.Errorf("unsupported AI provider: %s", c.AI.Provider)
	}
	switch strings.ToLower(c.AI.API) {
	case "", "chat":
		if c.Chat.ServerSide {
			return fmt.Errorf("server-side conversations require the responses API")
		}
		if c.AI.CodeInterpreter {
			return fmt.Errorf("the code interpreter requires the responses API")
		}
	case "responses":
		switch strings.ToLower(c.AI.Provider) {
		case "openai", "azure", "":
		default:
			return fmt.Errorf("the responses API is not available for provider %s", c.AI.Provider)
		}
	default:
		return fmt.Errorf("unsupported AI API: %s", c.AI.API)
	}
	if c.AI.Model == "" {
		return fmt.Errorf("AI model must be set")
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", c.AI.Temperature)
	}
	if c.AI.MaxToolIterations < 1 {
		return fmt.Errorf("max tool iterations must be at least 1")
	}
	if c.AI.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	if c.Chat.TokenLimit <= 0 {
		return fmt.Errorf("token limit must be positive")
	}
	if c.Chat.MaxResponseTokens <= 0 {
		return fmt.Errorf("max response tokens must be positive")
	}
	if c.Chat.MaxResponseTokens >= c.Chat.TokenLimit {
		return fmt.Errorf("max response tokens (%d) must be below the token limit (%d)",
			c.Chat.MaxResponseTokens, c.Chat.TokenLimit)
	}
	switch c.Server.TransportMode {
	case "stdio", "http", "sse":
	default:
		return fmt.Errorf("unsupported transport mode: %s", c.Server.TransportMode)
	}
	if c.Server.TransportMode != "stdio" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Store.Enabled && c.Store.DBPath == "" {
		return fmt.Errorf("store enabled but no database path set")
	}
	return nil
}
