// SPDX-License-Identifier: AGPL-3.0-only
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/firoagni/ai-development-tutorials/internal/agent"
	"github.com/firoagni/ai-development-tutorials/internal/chat"
	"github.com/firoagni/ai-development-tutorials/internal/config"
	"github.com/firoagni/ai-development-tutorials/internal/errors"
	"github.com/firoagni/ai-development-tutorials/internal/extract"
	"github.com/firoagni/ai-development-tutorials/internal/history"
	"github.com/firoagni/ai-development-tutorials/internal/logging"
	"github.com/firoagni/ai-development-tutorials/internal/model"
	"github.com/firoagni/ai-development-tutorials/internal/server"
	"github.com/firoagni/ai-development-tutorials/internal/session"
	"github.com/firoagni/ai-development-tutorials/internal/store"
	"github.com/firoagni/ai-development-tutorials/internal/tools"
)

// Application represents the running application
type Application struct {
	cfg    *config.Config
	opts   *options
	stdin  io.Reader
	stdout io.Writer
	logger *logging.Logger

	// Set up lazily by the modes that need them.
	provider agent.ChatProvider
	store    model.ExchangeStore
	mcpTools *tools.MCPTools
}

// createApp creates a new application instance
func createApp(cfg *config.Config, opts *options, stdin io.Reader, stdout, stderr io.Writer) (*Application, error) {
	app := &Application{cfg: cfg, opts: opts, stdin: stdin, stdout: stdout}

	// serve picks its own logger: stdout belongs to the JSON-RPC stream.
	if opts.mode == "serve" {
		app.logger = logging.GetDefaultLogger()
		return app, nil
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	if cfg.Logging.FilePath != "" {
		logger, err := logging.FileLogger(cfg.Logging.FilePath, level)
		if err != nil {
			return nil, err
		}
		app.logger = logger
	} else {
		app.logger = logging.New(logging.Options{Output: stderr, Level: level})
	}
	logging.SetDefaultLogger(app.logger)
	return app, nil
}

// Run dispatches to the selected mode.
func (a *Application) Run(ctx context.Context) error {
	switch a.opts.mode {
	case "serve":
		return a.serve(ctx)
	case "chat", "ask", "tools", "extract", "seed", "analyze":
	default:
		return errors.InvalidInput(fmt.Sprintf("unknown mode %q", a.opts.mode))
	}

	provider, err := newProvider(a.cfg)
	if err != nil {
		return err
	}
	a.provider = provider
	a.logger.Debugf("Using %s provider with model %s", provider.Name(), a.cfg.AI.Model)

	switch a.opts.mode {
	case "chat":
		return a.chat(ctx)
	case "ask":
		return a.ask(ctx)
	case "tools":
		return a.tools(ctx)
	case "extract":
		return a.extract(ctx)
	case "analyze":
		return a.analyze(ctx)
	default:
		return a.seed(ctx)
	}
}

// Close releases the exchange log, MCP sessions and a file-backed logger.
func (a *Application) Close() {
	if a.mcpTools != nil {
		_ = a.mcpTools.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warnf("Error closing exchange log: %v", err)
		}
	}
	_ = a.logger.Close()
}

// openStore opens the exchange log when enabled. A log held by another
// process is not fatal: the conversation continues unrecorded.
func (a *Application) openStore() {
	if !a.cfg.Store.Enabled {
		return
	}
	s, err := store.NewSQLiteStore(a.cfg.Store.DBPath)
	if err != nil {
		if errors.Is(err, store.ErrLocked) {
			a.logger.Warnf("Exchange log disabled: %v", err)
		} else {
			a.logger.Errorf("Failed to open exchange log: %v", err)
		}
		return
	}
	a.store = s
}

// registry returns the build tools plus any tools from the MCP config.
func (a *Application) registry(ctx context.Context) (*tools.Registry, error) {
	r := tools.NewRegistry()
	if err := tools.RegisterBuildTools(r); err != nil {
		return nil, err
	}
	if path := a.cfg.AI.MCPConfigFilePath; path != "" {
		m, err := tools.LoadMCPTools(ctx, path, r, a.logger)
		if err != nil {
			return nil, err
		}
		a.mcpTools = m
	}
	return r, nil
}

func (a *Application) newSession(ctx context.Context, withTools bool, preamble ...model.Message) (*session.Session, error) {
	a.openStore()
	opts := session.Options{
		Provider:      a.provider,
		Settings:      agent.SettingsFromConfig(a.cfg),
		MaxIterations: a.cfg.AI.MaxToolIterations,
		Trimmer: history.NewTrimmer(newCounter(a.logger), a.cfg.AI.Model, history.Budget{
			MaxResponseTokens: a.cfg.Chat.MaxResponseTokens,
			TokenLimit:        a.cfg.Chat.TokenLimit,
		}, a.logger),
		Store:      a.store,
		Logger:     a.logger,
		ServerSide: a.cfg.Chat.ServerSide,
	}
	if withTools {
		r, err := a.registry(ctx)
		if err != nil {
			return nil, err
		}
		opts.Registry = r
	}
	return session.New(opts, preamble...), nil
}

// preamble is the opening of a chat: a reference document, few-shot
// examples or the configured developer prompt.
func (a *Application) preamble() ([]model.Message, error) {
	switch {
	case a.cfg.Chat.DocumentPath != "":
		doc, err := session.LoadDocument(a.cfg.Chat.DocumentPath)
		if err != nil {
			return nil, err
		}
		return []model.Message{session.DocumentInstruction(doc)}, nil
	case a.opts.fewShot:
		return session.FewShot(fewShotInstruction, fewShotExamples...), nil
	default:
		return []model.Message{model.Developer(a.cfg.Chat.DeveloperPrompt)}, nil
	}
}

func (a *Application) chat(ctx context.Context) error {
	preamble, err := a.preamble()
	if err != nil {
		return err
	}
	stream := a.cfg.Chat.Stream
	if stream && a.opts.useTools {
		a.logger.Warnf("Streaming answers do not use tools, ignoring --tools")
	}
	s, err := a.newSession(ctx, a.opts.useTools && !stream, preamble...)
	if err != nil {
		return err
	}
	a.logger.Infof("Started session %s", s.ID())

	repl := chat.New(s, a.stdin, a.stdout, chat.Options{
		Stream:       stream,
		ShowUsage:    a.opts.showUsage,
		ShowTrimming: true,
	})
	if err := repl.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	if a.cfg.Chat.ServerSide && s.ResponseID() != "" {
		a.dropStoredConversation(s)
	}
	return nil
}

// dropStoredConversation shows what the provider kept for the conversation
// and deletes the last stored response.
func (a *Application) dropStoredConversation(s *session.Session) {
	// The chat context may already be cancelled by the signal that ended it.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	id := s.ResponseID()
	items, err := s.StoredInput(ctx)
	if err != nil {
		a.logger.Warnf("Could not list stored input of response %s: %v", id, err)
	} else {
		fmt.Fprintf(a.stdout, "Response %s stored %d input items:\n", id, len(items))
		for _, item := range items {
			fmt.Fprintln(a.stdout, item)
		}
	}
	if err := s.Forget(ctx); err != nil {
		a.logger.Warnf("Could not delete response %s: %v", id, err)
		return
	}
	fmt.Fprintf(a.stdout, "Deleted response %s\n", id)
}

func (a *Application) ask(ctx context.Context) error {
	question := strings.TrimSpace(strings.Join(a.opts.args, " "))
	if question == "" {
		return errors.InvalidInput("ask needs a question")
	}
	s, err := a.newSession(ctx, a.opts.useTools, model.Developer(a.cfg.Chat.DeveloperPrompt))
	if err != nil {
		return err
	}
	var out session.Outcome
	if a.cfg.Chat.Stream && !a.opts.useTools {
		out = s.AskStream(ctx, question, func(c agent.Chunk) {
			if c.Kind == agent.ChunkTextDelta {
				fmt.Fprint(a.stdout, c.Text)
			}
		})
		fmt.Fprintln(a.stdout)
	} else {
		out = s.Ask(ctx, question)
		if out.Err == nil {
			fmt.Fprintln(a.stdout, out.Answer)
		}
	}
	if out.Err != nil {
		return out.Err
	}
	a.logger.Infof("Tokens used: input=%d output=%d total=%d",
		out.Usage.InputTokens, out.Usage.OutputTokens, out.Usage.TotalTokens)
	return nil
}

// tools runs the chained function calling questions in one conversation.
func (a *Application) tools(ctx context.Context) error {
	questions := a.opts.args
	if len(questions) == 0 {
		questions = buildQuestions
	}
	s, err := a.newSession(ctx, true, model.System(toolsInstruction))
	if err != nil {
		return err
	}
	repl := chat.New(s, nil, a.stdout, chat.Options{ShowUsage: a.opts.showUsage})
	if failed := repl.RunBatch(ctx, questions); failed > 0 {
		return fmt.Errorf("%d of %d questions failed", failed, len(questions))
	}
	return nil
}

// analyze has the model write and run code over a JSON build report,
// streaming the generated code, the interpreter progress and the answer.
func (a *Application) analyze(ctx context.Context) error {
	path := a.cfg.Chat.DocumentPath
	if len(a.opts.args) > 0 {
		path = a.opts.args[0]
	}
	if path == "" {
		path = defaultBuildReport
	}
	report, err := session.LoadDocument(path)
	if err != nil {
		return err
	}
	s, err := a.newSession(ctx, false, model.Developer(fmt.Sprintf(analysisInstruction, report)))
	if err != nil {
		return err
	}
	repl := chat.New(s, nil, a.stdout, chat.Options{Stream: true, ShowUsage: a.opts.showUsage})
	if failed := repl.RunBatch(ctx, []string{analysisQuestion}); failed > 0 {
		return fmt.Errorf("analysis of %s failed", path)
	}
	return nil
}

func (a *Application) extract(ctx context.Context) error {
	inputs := a.opts.args
	if len(inputs) == 0 {
		inputs = eventInputs
	}
	x := extract.NewExtractor(a.provider, agent.SettingsFromConfig(a.cfg), a.logger)

	failed := 0
	for _, input := range inputs {
		fmt.Fprintf(a.stdout, "Input: %s\n", input)
		var event extract.CalendarEventWithConfidence
		usage, err := x.Extract(ctx, input, &event)
		if err != nil {
			var refusal *errors.RefusalError
			if errors.As(err, &refusal) {
				fmt.Fprintf(a.stdout, "Refused: %s\n\n", refusal.Refusal)
				continue
			}
			failed++
			fmt.Fprintf(a.stdout, "Error: %v\n\n", err)
			continue
		}
		b, err := json.MarshalIndent(event, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "%s\n", b)
		a.logger.Debugf("Extraction used %d tokens", usage.TotalTokens)
		fmt.Fprintln(a.stdout)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d extractions failed", failed, len(inputs))
	}
	return nil
}

// seed generates the same story several times without and then with a
// fixed seed so the outputs can be compared.
func (a *Application) seed(ctx context.Context) error {
	temperature := seedTemperature
	fixed := int64(seedValue)
	if a.cfg.AI.Seed != nil {
		fixed = *a.cfg.AI.Seed
	}
	variants := []struct {
		title string
		seed  *int64
	}{
		{"Without seed", nil},
		{fmt.Sprintf("With seed %d", fixed), &fixed},
	}

	for _, v := range variants {
		fmt.Fprintf(a.stdout, "%s:\n", v.title)
		for i := 1; i <= a.opts.runs; i++ {
			turn, err := a.provider.Generate(ctx, agent.Request{
				Settings: agent.Settings{
					Model:       a.cfg.AI.Model,
					Temperature: &temperature,
					MaxTokens:   seedMaxTokens,
					Seed:        v.seed,
				},
				Messages: []model.Message{model.System(seedInstruction), model.User(seedQuestion)},
			})
			if err != nil {
				return &errors.ProviderError{Provider: a.provider.Name(), Err: err}
			}
			fmt.Fprintf(a.stdout, "Run %d: %s\n", i, turn.Message.Content)
		}
		fmt.Fprintln(a.stdout)
	}
	return nil
}

// serve runs the build tools as an MCP server until a signal arrives or
// the transport closes.
func (a *Application) serve(ctx context.Context) error {
	r := tools.NewRegistry()
	if err := tools.RegisterBuildTools(r); err != nil {
		return err
	}
	srv, err := server.NewMCPServer(a.cfg, r, nil)
	if err != nil {
		return err
	}
	a.logger = logging.GetDefaultLogger()

	if err := srv.Start(ctx); err != nil {
		return err
	}
	a.logger.Infof("MCP server started")

	select {
	case <-ctx.Done():
		a.logger.Infof("Received termination signal, shutting down...")
	case <-srv.Done():
		a.logger.Infof("Server transport exited, shutting down...")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- srv.Stop() }()
	select {
	case err := <-stopped:
		if err != nil {
			return err
		}
		a.logger.Infof("Graceful shutdown completed")
	case <-time.After(5 * time.Second):
		a.logger.Warnf("Shutdown timed out")
	}
	return nil
}
