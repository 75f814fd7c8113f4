// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"fmt"
	"strings"
	"testing"

	"github.com/firoagni/ai-development-tutorials/internal/model"
)

type sliceStream struct {
	chunks []Chunk
	i      int
	closed bool
}

func (s *sliceStream) Next() bool {
	if s.i >= len(s.chunks) {
		return false
	}
	s.i++
	return true
}

func (s *sliceStream) Chunk() Chunk { return s.chunks[s.i-1] }
func (s *sliceStream) Err() error   { return nil }

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

func TestCollectConcatenatesInArrivalOrder(t *testing.T) {
	final := &model.Turn{Message: model.Assistant("Hello, world")}
	s := &sliceStream{chunks: []Chunk{
		{Kind: ChunkCreated},
		{Kind: ChunkTextDelta, Text: "Hello"},
		{Kind: ChunkTextDelta, Text: ", "},
		{Kind: ChunkTextDelta, Text: "world"},
		{Kind: ChunkCompleted, Turn: final},
	}}

	var n int
	text, turn, err := Collect(s, func(string) { n++ })
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if text != "Hello, world" {
		t.Errorf("Expected 'Hello, world', got '%s'", text)
	}
	if n != 3 {
		t.Errorf("Expected 3 deltas, got %d", n)
	}
	if turn != final {
		t.Error("Expected the completed turn to be returned")
	}
	if !s.closed {
		t.Error("Expected stream to be closed")
	}
}

func TestCollectStopsAtErrorChunk(t *testing.T) {
	s := &sliceStream{chunks: []Chunk{
		{Kind: ChunkCreated},
		{Kind: ChunkTextDelta, Text: "partial"},
		{Kind: ChunkError, Err: fmt.Errorf("content filter")},
		{Kind: ChunkTextDelta, Text: " ignored"},
	}}

	text, turn, err := Collect(s, nil)
	if err == nil || err.Error() != "content filter" {
		t.Fatalf("Expected content filter error, got %v", err)
	}
	if text != "partial" {
		t.Errorf("Expected 'partial', got '%s'", text)
	}
	if turn != nil {
		t.Error("Expected no completed turn")
	}
}

func TestCollectWithoutCompletion(t *testing.T) {
	s := &sliceStream{chunks: []Chunk{{Kind: ChunkTextDelta, Text: "cut"}}}

	if _, _, err := Collect(s, nil); err == nil {
		t.Error("Expected error when the stream ends without completion")
	}
}

func TestDrainPassesProgressChunks(t *testing.T) {
	s := &sliceStream{chunks: []Chunk{
		{Kind: ChunkCreated},
		{Kind: ChunkReasoningDelta, Text: "counting builds"},
		{Kind: ChunkToolCodeDelta, Text: "len(results)"},
		{Kind: ChunkToolCallInterpreting},
		{Kind: ChunkToolCallCompleted},
		{Kind: ChunkTextDelta, Text: "12 builds"},
		{Kind: ChunkCompleted, Turn: &model.Turn{Message: model.Assistant("12 builds")}},
	}}

	var kinds []string
	text, turn, err := Drain(s, func(c Chunk) { kinds = append(kinds, c.Kind.String()) })
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if text != "12 builds" {
		t.Errorf("Expected '12 builds', got '%s'", text)
	}
	if turn == nil {
		t.Fatal("Expected a completed turn")
	}
	want := "created,reasoning_delta,tool_code_delta,tool_call_interpreting,tool_call_completed,text_delta"
	if got := strings.Join(kinds, ","); got != want {
		t.Errorf("Expected chunks %s, got %s", want, got)
	}
}
