// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"fmt"
	"strings"

	"github.com/firoagni/ai-development-tutorials/internal/model"
)

// ChunkKind classifies a streamed chunk.
type ChunkKind string

const (
	// ChunkCreated is emitted once when the model starts responding.
	ChunkCreated ChunkKind = "created"
	// ChunkTextDelta carries a fragment of the answer text.
	ChunkTextDelta ChunkKind = "text_delta"
	// ChunkReasoningDelta carries a fragment of the model's thinking.
	ChunkReasoningDelta ChunkKind = "reasoning_delta"
	// ChunkToolCodeDelta carries a fragment of code the model writes for
	// the hosted code interpreter.
	ChunkToolCodeDelta ChunkKind = "tool_code_delta"
	// ChunkToolCallInterpreting is emitted while the code interpreter runs.
	ChunkToolCallInterpreting ChunkKind = "tool_call_interpreting"
	// ChunkFunctionCallStarted is emitted when the model starts a function
	// call. ToolCall carries its id and name.
	ChunkFunctionCallStarted ChunkKind = "function_call_started"
	// ChunkFunctionArgsDelta carries a fragment of function call arguments.
	ChunkFunctionArgsDelta ChunkKind = "function_args_delta"
	// ChunkToolCallCompleted ends a tool call. ToolCall is set for function
	// calls and nil for the code interpreter.
	ChunkToolCallCompleted ChunkKind = "tool_call_completed"
	// ChunkCompleted carries the complete turn including usage.
	ChunkCompleted ChunkKind = "completed"
	// ChunkError is terminal.
	ChunkError ChunkKind = "error"
)

func (k ChunkKind) String() string {
	return string(k)
}

// Chunk is one streamed event.
type Chunk struct {
	Kind     ChunkKind
	Text     string
	ToolCall *model.ToolCall
	Turn     *model.Turn
	Err      error
}

// Stream is a pull iterator over chunks. Callers must Close it.
type Stream interface {
	Next() bool
	Chunk() Chunk
	Err() error
	Close() error
}

// Collect drains s, passing every text delta to onDelta (which may be nil).
// It returns the concatenated text in arrival order and the completed turn.
// An error chunk ends consumption: the text received so far is returned
// together with the error.
func Collect(s Stream, onDelta func(string)) (string, *model.Turn, error) {
	return Drain(s, func(c Chunk) {
		if c.Kind == ChunkTextDelta && onDelta != nil {
			onDelta(c.Text)
		}
	})
}

// Drain is Collect for callers that also render thinking, code and tool
// progress: every chunk other than completed and error is passed to
// onChunk (which may be nil).
func Drain(s Stream, onChunk func(Chunk)) (string, *model.Turn, error) {
	defer func() { _ = s.Close() }()

	var sb strings.Builder
	var turn *model.Turn
	for s.Next() {
		c := s.Chunk()
		switch c.Kind {
		case ChunkCompleted:
			turn = c.Turn
			continue
		case ChunkError:
			err := c.Err
			if err == nil {
				err = fmt.Errorf("stream error")
			}
			return sb.String(), turn, err
		case ChunkTextDelta:
			sb.WriteString(c.Text)
		}
		if onChunk != nil {
			onChunk(c)
		}
	}
	if err := s.Err(); err != nil {
		return sb.String(), turn, err
	}
	if turn == nil {
		return sb.String(), nil, fmt.Errorf("stream ended without a completed response")
	}
	return sb.String(), turn, nil
}
