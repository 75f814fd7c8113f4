// SPDX-License-Identifier: AGPL-3.0-only
package model

import (
	"errors"
	"testing"

	"github.com/firoagni/ai-development-tutorials/internal/logging"
)

func TestTranscriptClone(t *testing.T) {
	original := Transcript{
		Developer("be terse"),
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_1", Name: "get_last_build", Arguments: `{}`}}},
	}

	clone := original.Clone()
	clone[0].Content = "changed"
	clone[1].ToolCalls[0].Name = "changed"

	if original[0].Content != "be terse" {
		t.Errorf("Expected original content to be untouched, got '%s'", original[0].Content)
	}
	if original[1].ToolCalls[0].Name != "get_last_build" {
		t.Errorf("Expected original tool call to be untouched, got '%s'", original[1].ToolCalls[0].Name)
	}
	if Transcript(nil).Clone() != nil {
		t.Error("Expected nil clone of nil transcript")
	}
}

func TestTranscriptLast(t *testing.T) {
	if _, ok := (Transcript{}).Last(); ok {
		t.Error("Expected no last message on empty transcript")
	}
	tr := Transcript{System("sys"), User("hi")}
	last, ok := tr.Last()
	if !ok || last.Content != "hi" {
		t.Errorf("Expected last message 'hi', got '%s'", last.Content)
	}
}

func TestToolResultMessage(t *testing.T) {
	res := ToolResult{CallID: "call_9", Name: "get_last_build", Output: `{"build_id":"12345"}`}
	msg := res.Message()

	if msg.Role != RoleTool {
		t.Errorf("Expected role 'tool', got '%s'", msg.Role)
	}
	if msg.ToolCallID != "call_9" {
		t.Errorf("Expected tool call ID 'call_9', got '%s'", msg.ToolCallID)
	}
	if msg.Content != `{"build_id":"12345"}` {
		t.Errorf("Unexpected content '%s'", msg.Content)
	}
}

func TestToolResultMessageKeepsErrorFlag(t *testing.T) {
	res := ToolResult{CallID: "call_3", Name: "get_build_information", Output: "ERROR: build_id is required", IsError: true}
	msg := res.Message()

	if !msg.IsError {
		t.Error("Expected IsError to be carried onto the tool message")
	}
	if clone := (Transcript{msg}).Clone(); !clone[0].IsError {
		t.Error("Expected Clone to keep IsError")
	}
}

func TestRoleIsInstruction(t *testing.T) {
	if !RoleDeveloper.IsInstruction() || !RoleSystem.IsInstruction() {
		t.Error("Expected developer and system to be instruction roles")
	}
	if RoleUser.IsInstruction() || RoleAssistant.IsInstruction() || RoleTool.IsInstruction() {
		t.Error("Expected user, assistant and tool to not be instruction roles")
	}
}

func TestUsageAdd(t *testing.T) {
	u := Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}
	u.Add(Usage{InputTokens: 3, OutputTokens: 2, TotalTokens: 5})
	if u.InputTokens != 13 || u.OutputTokens != 7 || u.TotalTokens != 20 {
		t.Errorf("Unexpected usage after Add: %+v", u)
	}
}

type recordingStore struct {
	saved []*Exchange
	err   error
}

func (s *recordingStore) SaveExchange(e *Exchange) error {
	s.saved = append(s.saved, e)
	return s.err
}

func (s *recordingStore) GetExchanges(string, int) ([]*Exchange, error) { return s.saved, nil }

func (s *recordingStore) Close() error { return nil }

func TestPersistAndLogExchange(t *testing.T) {
	store := &recordingStore{}
	e := &Exchange{SessionID: "s1", Question: "hi", Answer: "hello"}

	PersistAndLogExchange(store, e, logging.Discard())
	if len(store.saved) != 1 || store.saved[0] != e {
		t.Fatalf("Expected exchange to be saved once, got %d", len(store.saved))
	}

	// Store failures are logged, not propagated.
	failing := &recordingStore{err: errors.New("disk full")}
	PersistAndLogExchange(failing, e, logging.Discard())

	// A nil store is allowed.
	PersistAndLogExchange(nil, e, logging.Discard())
}
