// SPDX-License-Identifier: AGPL-3.0-only

// Package session owns one conversation: its transcript, the trimming
// applied before every request and the exchange log.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/firoagni/ai-development-tutorials/internal/agent"
	"github.com/firoagni/ai-development-tutorials/internal/history"
	"github.com/firoagni/ai-development-tutorials/internal/logging"
	"github.com/firoagni/ai-development-tutorials/internal/model"
	"github.com/firoagni/ai-development-tutorials/internal/tools"
)

// Options wires a Session to its collaborators. Only Provider is required.
type Options struct {
	Provider agent.ChatProvider
	Settings agent.Settings
	// Registry offers tools to the model. Nil means plain chat.
	Registry      *tools.Registry
	MaxIterations int
	// Trimmer keeps the transcript under budget. Nil disables trimming.
	Trimmer *history.Trimmer
	// Store receives one Exchange per question. Nil disables the log.
	Store  model.ExchangeStore
	Logger *logging.Logger
	// ServerSide keeps the conversation on the provider: every question
	// is sent with the preamble and the previous response id instead of the
	// transcript. The Trimmer is not used. Requires a provider with stored
	// responses.
	ServerSide bool
}

// Outcome is the result of one question.
type Outcome struct {
	Answer     string
	Err        error
	Usage      model.Usage
	ModelCalls int
	ToolCalls  int
	Trim       history.Report
	Duration   time.Duration
	// Reasoning is the model's thinking, when the model exposes it.
	Reasoning string
	// ResponseID is the stored response the next question continues.
	ResponseID string
}

// Session is a single conversation. It is not safe for concurrent use.
type Session struct {
	id         string
	opts       Options
	preamble   model.Transcript
	transcript model.Transcript
	responseID string
	logger     *logging.Logger
}

// New starts a session whose transcript begins with preamble: the
// instruction message, optionally followed by few-shot examples.
func New(opts Options, preamble ...model.Message) *Session {
	id := ulid.Make().String()
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Session{
		id:         id,
		opts:       opts,
		preamble:   model.Transcript(preamble).Clone(),
		transcript: model.Transcript(preamble).Clone(),
		logger:     logger.WithField("session_id", id),
	}
}

// ID returns the session's ULID.
func (s *Session) ID() string {
	return s.id
}

// Transcript returns a copy of the current transcript. In server-side
// mode it is a local record only; the provider holds the context.
func (s *Session) Transcript() model.Transcript {
	return s.transcript.Clone()
}

// ResponseID returns the id of the last stored response, empty until a
// server-side question succeeded.
func (s *Session) ResponseID() string {
	return s.responseID
}

// StoredInput lists the input items the provider keeps for the last
// response.
func (s *Session) StoredInput(ctx context.Context) ([]string, error) {
	keeper, err := s.keeper()
	if err != nil {
		return nil, err
	}
	return keeper.InputItems(ctx, s.responseID)
}

// Forget deletes the last stored response. The next question starts a new
// server-side conversation.
func (s *Session) Forget(ctx context.Context) error {
	keeper, err := s.keeper()
	if err != nil {
		return err
	}
	if err := keeper.DeleteResponse(ctx, s.responseID); err != nil {
		return err
	}
	s.logger.Infof("Deleted stored response %s", s.responseID)
	s.responseID = ""
	return nil
}

func (s *Session) keeper() (agent.ResponseKeeper, error) {
	keeper, ok := s.opts.Provider.(agent.ResponseKeeper)
	if !ok {
		return nil, fmt.Errorf("%s provider does not store responses", s.opts.Provider.Name())
	}
	if s.responseID == "" {
		return nil, fmt.Errorf("no stored response yet")
	}
	return keeper, nil
}

// Ask appends question, trims, asks the model (running any tools it
// requests) and appends the answer. On failure the transcript is left as it
// was before the question and the error is reported in the Outcome.
func (s *Session) Ask(ctx context.Context, question string) Outcome {
	start := time.Now()
	working, report := s.prepare(question)

	orch := &agent.Orchestrator{
		Provider:      s.opts.Provider,
		Registry:      s.opts.Registry,
		Settings:      s.opts.Settings,
		MaxIterations: s.opts.MaxIterations,
		Logger:        s.logger,
		ServerSide:    s.opts.ServerSide,
	}
	if s.opts.ServerSide {
		orch.PreviousResponseID = s.responseID
	}
	res, err := orch.Run(ctx, working)

	out := Outcome{Err: err, Trim: report}
	if res != nil {
		out.Usage = res.Usage
		out.ModelCalls = res.ModelCalls
		out.ToolCalls = res.ToolCalls
	}
	if err == nil {
		out.Answer = res.Answer
		out.Reasoning = res.Reasoning
		s.commit(res.Transcript, res.ResponseID)
		out.ResponseID = s.responseID
	} else {
		s.logger.Errorf("Question failed, conversation left unchanged: %v", err)
	}
	return s.finish(question, start, out)
}

// AskStream is Ask without tools, passing every streamed chunk other than
// the completion to onChunk as it arrives: answer text, thinking and code
// interpreter progress. A stream that fails midway returns the partial
// answer with the error and leaves the transcript unchanged.
func (s *Session) AskStream(ctx context.Context, question string, onChunk func(agent.Chunk)) Outcome {
	start := time.Now()
	working, report := s.prepare(question)
	out := Outcome{Trim: report, ModelCalls: 1}

	req := agent.Request{
		Settings: s.opts.Settings,
		Messages: working,
	}
	if s.opts.ServerSide {
		req.PreviousResponseID = s.responseID
	}
	stream, err := s.opts.Provider.Stream(ctx, req)
	if err != nil {
		out.Err = err
		s.logger.Errorf("Streaming request failed: %v", err)
		return s.finish(question, start, out)
	}

	text, turn, err := agent.Drain(stream, onChunk)
	out.Answer = text
	if turn != nil {
		out.Usage = turn.Usage
		out.Reasoning = turn.Reasoning
	}
	if err != nil {
		out.Err = err
		s.logger.Errorf("Stream ended with an error, conversation left unchanged: %v", err)
		return s.finish(question, start, out)
	}
	s.commit(append(working, model.Assistant(text)), turn.ResponseID)
	out.ResponseID = s.responseID
	return s.finish(question, start, out)
}

// prepare returns a trimmed copy of the transcript with question appended.
// In server-side mode it is the preamble and the question only. The
// session's own transcript is not touched until the answer is known.
func (s *Session) prepare(question string) (model.Transcript, history.Report) {
	if s.opts.ServerSide {
		return append(s.preamble.Clone(), model.User(question)), history.Report{}
	}
	working := append(s.transcript.Clone(), model.User(question))
	if s.opts.Trimmer == nil {
		return working, history.Report{}
	}
	return s.opts.Trimmer.Trim(working)
}

// commit records a successful answer. working is what was sent plus the
// turns produced for it.
func (s *Session) commit(working model.Transcript, responseID string) {
	if !s.opts.ServerSide {
		s.transcript = working
		return
	}
	s.transcript = append(s.transcript, working[len(s.preamble):]...)
	s.responseID = responseID
	s.logger.Debugf("Conversation continues from response %s", responseID)
}

func (s *Session) finish(question string, start time.Time, out Outcome) Outcome {
	end := time.Now()
	out.Duration = end.Sub(start)

	e := &model.Exchange{
		SessionID:  s.id,
		Question:   question,
		Answer:     out.Answer,
		Model:      s.opts.Settings.Model,
		ModelCalls: out.ModelCalls,
		ToolCalls:  out.ToolCalls,
		Trimmed:    len(out.Trim.Evicted),
		Usage:      out.Usage,
		StartTime:  start,
		EndTime:    end,
		Duration:   out.Duration.String(),
	}
	if out.Err != nil {
		e.Error = out.Err.Error()
	}
	model.PersistAndLogExchange(s.opts.Store, e, s.logger)
	return out
}
