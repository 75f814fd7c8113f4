// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"fmt"

	"github.com/firoagni/ai-development-tutorials/internal/errors"
	"github.com/firoagni/ai-development-tutorials/internal/logging"
	"github.com/firoagni/ai-development-tutorials/internal/model"
	"github.com/firoagni/ai-development-tutorials/internal/tools"
)

// DefaultMaxIterations bounds the number of model calls per question.
const DefaultMaxIterations = 20

// State is the orchestrator's position in the tool-calling loop.
type State string

const (
	StateAwaitingModel  State = "awaiting_model"
	StateExecutingTools State = "executing_tools"
	StateDone           State = "done"
)

func (s State) String() string {
	return string(s)
}

// RunResult describes one completed (or aborted) question.
type RunResult struct {
	Answer string
	// Transcript is the input plus every assistant turn and tool result
	// produced while answering.
	Transcript model.Transcript
	ModelCalls int
	ToolCalls  int
	Usage      model.Usage
	State      State
	// ResponseID is the id of the last stored response when running
	// server-side.
	ResponseID string
	// Reasoning is the thinking text of the final turn.
	Reasoning string
}

// Orchestrator drives the exchange between a model and the tool registry
// until the model produces a final text answer.
type Orchestrator struct {
	Provider ChatProvider
	// Registry may be nil when no tools are offered.
	Registry      *tools.Registry
	Settings      Settings
	MaxIterations int
	Logger        *logging.Logger

	// ServerSide sends each request as a continuation of the previous
	// stored response: only the leading instructions and the messages the
	// provider has not seen yet go over the wire.
	ServerSide bool
	// PreviousResponseID continues an earlier question's response. Only
	// used with ServerSide.
	PreviousResponseID string
}

// Run answers the question at the end of transcript. The input is not
// modified.
//
// Every tool call of a turn is resolved before any is executed; an
// unregistered name aborts the question with *errors.UnknownToolError and no
// further model call. Results are appended in request order directly after
// the assistant turn that requested them. A provider failure aborts with
// *errors.ProviderError. The partial result is returned alongside any error.
func (o *Orchestrator) Run(ctx context.Context, transcript model.Transcript) (*RunResult, error) {
	logger := o.Logger
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	maxIterations := o.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	var defs []tools.Definition
	if o.Registry != nil {
		defs = o.Registry.Definitions()
	}

	res := &RunResult{Transcript: transcript.Clone(), State: StateAwaitingModel}
	res.ResponseID = o.PreviousResponseID
	sent := 0
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if res.ModelCalls >= maxIterations {
			logger.Errorf("Tool loop exceeded maximum iterations (%d)", maxIterations)
			return res, fmt.Errorf("%w (%d)", errors.ErrMaxIterations, maxIterations)
		}

		res.State = StateAwaitingModel
		logger.Debugf("Model call %d with %d messages", res.ModelCalls+1, len(res.Transcript))
		req := Request{
			Settings: o.Settings,
			Messages: res.Transcript,
			Tools:    defs,
		}
		if o.ServerSide {
			req.Messages = unsent(res.Transcript, sent)
			req.PreviousResponseID = res.ResponseID
		}
		turn, err := o.Provider.Generate(ctx, req)
		res.ModelCalls++
		if err != nil {
			logger.Errorf("Chat completion failed on model call %d: %v", res.ModelCalls, err)
			return res, &errors.ProviderError{Provider: o.Provider.Name(), Err: err}
		}
		res.Usage.Add(turn.Usage)
		res.Transcript = append(res.Transcript, turn.Message)
		res.Reasoning = turn.Reasoning
		if o.ServerSide {
			if turn.ResponseID == "" {
				logger.Warnf("%s returned no response id, the next request starts a new conversation", o.Provider.Name())
			}
			res.ResponseID = turn.ResponseID
			sent = len(res.Transcript)
		}

		if !turn.WantsTools() {
			res.State = StateDone
			res.Answer = turn.Message.Content
			if res.Answer == "" && turn.Refusal != "" {
				res.Answer = turn.Refusal
			}
			logger.Debugf("Answer ready after %d model calls and %d tool calls", res.ModelCalls, res.ToolCalls)
			return res, nil
		}

		res.State = StateExecutingTools
		calls := turn.Message.ToolCalls
		if err := o.resolveAll(calls); err != nil {
			logger.Errorf("Model requested an unregistered tool: %v", err)
			return res, err
		}
		logger.Debugf("Processing %d tool calls", len(calls))
		for i, call := range calls {
			logger.Debugf("Tool call %d: %s(%s)", i+1, call.Name, call.Arguments)
			result, err := o.Registry.Execute(ctx, call)
			if err != nil {
				return res, err
			}
			if result.IsError {
				logger.Warnf("Tool %s failed: %s", call.Name, result.Output)
			}
			res.ToolCalls++
			res.Transcript = append(res.Transcript, result.Message())
		}
	}
}

// unsent returns the leading instructions of t followed by the messages
// from index sent on. Instructions are not part of a stored response and
// accompany every request.
func unsent(t model.Transcript, sent int) []model.Message {
	n := 0
	for n < len(t) && t[n].Role.IsInstruction() {
		n++
	}
	if sent < n {
		sent = n
	}
	out := make([]model.Message, 0, n+len(t)-sent)
	out = append(out, t[:n]...)
	return append(out, t[sent:]...)
}

func (o *Orchestrator) resolveAll(calls []model.ToolCall) error {
	for _, call := range calls {
		if o.Registry == nil {
			return &errors.UnknownToolError{Name: call.Name}
		}
		if _, err := o.Registry.Resolve(call.Name); err != nil {
			return err
		}
	}
	return nil
}
