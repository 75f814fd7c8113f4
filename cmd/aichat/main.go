// SPDX-License-Identifier: AGPL-3.0-only
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/firoagni/ai-development-tutorials/internal/agent"
	"github.com/firoagni/ai-development-tutorials/internal/config"
	"github.com/firoagni/ai-development-tutorials/internal/logging"
	"github.com/firoagni/ai-development-tutorials/internal/tokens"
)

const version = "0.1.0"

// Replaced in tests.
var (
	newProvider = agent.NewChatProvider
	newCounter  = func(logger *logging.Logger) tokens.Counter { return tokens.NewTiktokenCounter(logger) }
)

const usageText = `Usage: aichat [flags] [mode] [args...]

Modes:
  chat             interactive conversation (default)
  ask QUESTION     ask a single question
  tools            answer the build questions using function calling
  extract [TEXT]   extract calendar events as structured output
  seed             compare generations with and without a fixed seed
  analyze [FILE]   analyze a JSON build report with the code interpreter
                   (responses API)
  serve            run the build tools as an MCP server

Flags:
`

// options are the command line settings that are not part of config.Config.
type options struct {
	mode        string
	args        []string
	configPath  string
	envFile     string
	showVersion bool
	useTools    bool
	fewShot     bool
	showUsage   bool
	runs        int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, opts, err := parseArgs(args, stderr)
	if err == pflag.ErrHelp {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "aichat: %v\n", err)
		return 2
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "aichat version %s\n", version)
		return 0
	}

	app, err := createApp(cfg, opts, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "aichat: %v\n", err)
		return 1
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		app.logger.Errorf("%s failed: %v", opts.mode, err)
		return 1
	}
	return 0
}

// parseArgs builds the configuration. Later sources win: defaults, the YAML
// file, .env and the environment, then flags.
func parseArgs(args []string, stderr io.Writer) (*config.Config, *options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("aichat", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usageText)
		fs.PrintDefaults()
	}

	fs.StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML configuration file")
	fs.StringVar(&opts.envFile, "env-file", ".env", "Path to a .env file (skipped when missing)")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information and exit")
	fs.BoolVar(&opts.useTools, "tools", false, "Offer the build tools (and MCP tools) in chat and ask modes")
	fs.BoolVar(&opts.fewShot, "few-shot", false, "Start the chat with few-shot examples instead of the developer prompt")
	fs.BoolVar(&opts.showUsage, "usage", true, "Print token usage after every answer")
	fs.IntVar(&opts.runs, "runs", 3, "Generations per variant in seed mode")

	provider := fs.String("provider", "", "AI provider: openai, azure, anthropic or ollama")
	model := fs.StringP("model", "m", "", "Model name (deployment name on Azure)")
	baseURL := fs.String("base-url", "", "Base URL of an OpenAI-compatible server")
	api := fs.String("api", "", "OpenAI endpoint family: chat or responses")
	serverSide := fs.Bool("server-side", false, "Keep the conversation on the provider (responses API)")
	codeInterpreter := fs.Bool("code-interpreter", false, "Offer the hosted code interpreter (responses API)")
	reasoningEffort := fs.String("reasoning-effort", "", "Thinking level for reasoning models: low, medium or high")
	temperature := fs.Float64("temperature", 0, "Sampling temperature")
	seed := fs.Int64("seed", 0, "Seed for reproducible outputs")
	maxIterations := fs.Int("max-iterations", 0, "Maximum model calls per question when tools are used")
	mcpConfig := fs.String("mcp-config", "", "Path to an mcpServers JSON file whose tools are offered to the model")
	tokenLimit := fs.Int("token-limit", 0, "Token limit for prompt plus response")
	maxResponse := fs.Int("max-response-tokens", 0, "Tokens reserved for the response")
	prompt := fs.String("prompt", "", "Developer prompt that starts every conversation")
	document := fs.String("document", "", "Reference file the assistant must answer from")
	stream := fs.Bool("stream", false, "Stream answers as they are generated")
	logLevel := fs.String("log-level", "", "Logging level: debug, info, warn, error, fatal")
	logFile := fs.String("log-file", "", "Log file path (default: stderr)")
	dbPath := fs.String("db-path", "", "Path to the SQLite exchange log")
	storeEnabled := fs.Bool("store", false, "Record every exchange in the SQLite log")
	transport := fs.String("transport", "", "MCP server transport: stdio, http or sse")
	address := fs.String("address", "", "The address to bind the MCP server to")
	port := fs.Int("port", 0, "The port to bind the MCP server to")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	opts.mode = "chat"
	if fs.NArg() > 0 {
		opts.mode = fs.Arg(0)
		opts.args = fs.Args()[1:]
	}
	if opts.showVersion {
		return config.DefaultConfig(), opts, nil
	}

	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		if err := config.LoadFile(cfg, opts.configPath); err != nil {
			return nil, nil, err
		}
	}
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, nil, err
	}
	config.FromEnv(cfg)

	changed := fs.Changed
	if changed("provider") {
		cfg.AI.Provider = *provider
	}
	if changed("model") {
		cfg.AI.Model = *model
	}
	if changed("base-url") {
		cfg.AI.BaseURL = *baseURL
	}
	if changed("api") {
		cfg.AI.API = *api
	}
	if changed("server-side") {
		cfg.Chat.ServerSide = *serverSide
	}
	if changed("code-interpreter") {
		cfg.AI.CodeInterpreter = *codeInterpreter
	}
	if changed("reasoning-effort") {
		cfg.AI.ReasoningEffort = *reasoningEffort
	}
	if changed("temperature") {
		cfg.AI.Temperature = *temperature
	}
	if changed("seed") {
		cfg.AI.Seed = seed
	}
	if changed("max-iterations") {
		cfg.AI.MaxToolIterations = *maxIterations
	}
	if changed("mcp-config") {
		cfg.AI.MCPConfigFilePath = *mcpConfig
	}
	if changed("token-limit") {
		cfg.Chat.TokenLimit = *tokenLimit
	}
	if changed("max-response-tokens") {
		cfg.Chat.MaxResponseTokens = *maxResponse
	}
	if changed("prompt") {
		cfg.Chat.DeveloperPrompt = *prompt
	}
	if changed("document") {
		cfg.Chat.DocumentPath = *document
	}
	if changed("stream") {
		cfg.Chat.Stream = *stream
	}
	if changed("log-level") {
		cfg.Logging.Level = *logLevel
	}
	if changed("log-file") {
		cfg.Logging.FilePath = *logFile
	}
	if changed("db-path") {
		cfg.Store.DBPath = *dbPath
	}
	if changed("store") {
		cfg.Store.Enabled = *storeEnabled
	}
	if changed("transport") {
		cfg.Server.TransportMode = *transport
	}
	if changed("address") {
		cfg.Server.Address = *address
	}
	if changed("port") {
		cfg.Server.Port = *port
	}

	// The code interpreter only exists on the responses API.
	if opts.mode == "analyze" {
		if cfg.AI.API == "" {
			cfg.AI.API = "responses"
		}
		cfg.AI.CodeInterpreter = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, opts, nil
}
