// SPDX-License-Identifier: AGPL-3.0-only
package model

// Role identifies who authored a Message.
type Role string

const (
	RoleDeveloper Role = "developer"
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// IsInstruction reports whether the role carries the leading
// developer/system instruction.
func (r Role) IsInstruction() bool {
	return r == RoleDeveloper || r == RoleSystem
}

// ToolCall is a single function invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON-encoded object
}

// Message is one turn of a conversation.
type Message struct {
	Role       Role       `json:"role"`
	Name       string     `json:"name,omitempty"` // few-shot example label
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // set on assistant turns that request tools
	ToolCallID string     `json:"tool_call_id,omitempty"` // set when Role == RoleTool
	IsError    bool       `json:"is_error,omitempty"`     // tool result reports a failure
}

// Developer returns a developer instruction message.
func Developer(content string) Message {
	return Message{Role: RoleDeveloper, Content: content}
}

// System returns a system instruction message.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User returns a user message.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant returns a plain assistant reply.
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResult is the output of one resolved ToolCall.
type ToolResult struct {
	CallID  string
	Name    string
	Output  string
	IsError bool
}

// Message converts the result into the tool message appended to a
// transcript.
func (r ToolResult) Message() Message {
	return Message{Role: RoleTool, Content: r.Output, ToolCallID: r.CallID, IsError: r.IsError}
}

// Transcript is an ordered conversation. Insertion order is conversational
// order; index 0 is conventionally the instruction message.
type Transcript []Message

// Clone returns an independent copy of the transcript.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	for i, m := range t {
		out[i] = m
		if m.ToolCalls != nil {
			out[i].ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
		}
	}
	return out
}

// Last returns the newest message, or false when the transcript is empty.
func (t Transcript) Last() (Message, bool) {
	if len(t) == 0 {
		return Message{}, false
	}
	return t[len(t)-1], true
}

// Usage holds the token counters a provider reports for one call.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// Add accumulates u2 into u.
func (u *Usage) Add(u2 Usage) {
	u.InputTokens += u2.InputTokens
	u.OutputTokens += u2.OutputTokens
	u.TotalTokens += u2.TotalTokens
}

// Turn is one model response: either a final text answer or a non-empty
// list of tool calls on Message.
type Turn struct {
	Message      Message
	Usage        Usage
	FinishReason string
	Refusal      string
	// Reasoning is the thinking text of reasoning models, when exposed.
	Reasoning string
	// ResponseID identifies the stored response on backends that keep
	// conversation state server-side.
	ResponseID string
}

// WantsTools reports whether the model requested at least one tool call.
func (t *Turn) WantsTools() bool {
	return len(t.Message.ToolCalls) > 0
}
