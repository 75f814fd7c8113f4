// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/firoagni/ai-development-tutorials/internal/model"
	"github.com/firoagni/ai-development-tutorials/internal/tools"
)

const sarcasticPrompt = "You are a sarcastic AI assistant. You are proud of your amazing memory"

func responsesBody(t *testing.T, req Request) map[string]interface{} {
	t.Helper()
	b, err := json.Marshal(toResponsesParams(req))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(b, &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return body
}

func TestToResponsesParams(t *testing.T) {
	temperature := 0.7
	body := responsesBody(t, Request{
		Settings: Settings{
			Model:           "gpt-4o-mini",
			Temperature:     &temperature,
			MaxTokens:       1000,
			ReasoningEffort: "low",
		},
		Messages:           []model.Message{model.Developer(sarcasticPrompt), model.User("What is my name?")},
		PreviousResponseID: "resp_1",
	})

	if body["instructions"] != sarcasticPrompt {
		t.Errorf("Expected the developer prompt as instructions, got %v", body["instructions"])
	}
	if body["previous_response_id"] != "resp_1" {
		t.Errorf("Expected previous_response_id resp_1, got %v", body["previous_response_id"])
	}
	if body["max_output_tokens"] != float64(1000) {
		t.Errorf("Expected max_output_tokens 1000, got %v", body["max_output_tokens"])
	}
	if body["temperature"] != 0.7 {
		t.Errorf("Expected temperature 0.7, got %v", body["temperature"])
	}
	reasoning, _ := body["reasoning"].(map[string]interface{})
	if reasoning["effort"] != "low" {
		t.Errorf("Expected reasoning effort low, got %v", body["reasoning"])
	}
	input, _ := body["input"].([]interface{})
	if len(input) != 1 {
		t.Fatalf("Expected only the question as input, got %v", body["input"])
	}
	first, _ := input[0].(map[string]interface{})
	if first["role"] != "user" || first["content"] != "What is my name?" {
		t.Errorf("Unexpected input item %v", first)
	}
	if _, ok := body["tools"]; ok {
		t.Error("Expected tools to be omitted")
	}
}

func TestToResponsesParamsToolLoop(t *testing.T) {
	r := tools.NewRegistry()
	if err := tools.RegisterBuildTools(r); err != nil {
		t.Fatalf("RegisterBuildTools: %v", err)
	}
	call := model.ToolCall{ID: "call_1", Name: "get_last_build", Arguments: `{"product_name":"XYZ","branch_name":"XYZ_1_2_MAIN"}`}
	body := responsesBody(t, Request{
		Settings: Settings{Model: "gpt-4o-mini"},
		Messages: []model.Message{
			model.Developer("You are a build assistant."),
			model.User("What is the last build of XYZ 1.2?"),
			{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{call}},
			model.ToolResult{CallID: "call_1", Name: "get_last_build", Output: `{"build_id":"1234"}`}.Message(),
		},
		Tools: r.Definitions(),
	})

	input, _ := body["input"].([]interface{})
	if len(input) != 3 {
		t.Fatalf("Expected 3 input items, got %d", len(input))
	}
	fc, _ := input[1].(map[string]interface{})
	if fc["type"] != "function_call" || fc["call_id"] != "call_1" || fc["name"] != "get_last_build" {
		t.Errorf("Unexpected function call item %v", fc)
	}
	out, _ := input[2].(map[string]interface{})
	if out["type"] != "function_call_output" || out["call_id"] != "call_1" || out["output"] != `{"build_id":"1234"}` {
		t.Errorf("Unexpected function call output item %v", out)
	}
	sent, _ := body["tools"].([]interface{})
	if len(sent) != 2 {
		t.Fatalf("Expected 2 tools, got %d", len(sent))
	}
	tool, _ := sent[0].(map[string]interface{})
	if tool["type"] != "function" || tool["name"] != "get_last_build" {
		t.Errorf("Unexpected tool %v", tool)
	}
}

func TestSplitInstructionsLabelsExamples(t *testing.T) {
	msgs := []model.Message{
		model.System("You are a helpful assistant."),
		{Role: model.RoleSystem, Name: "example_user", Content: "Hi"},
		{Role: model.RoleSystem, Name: "example_assistant", Content: "Namaste"},
		model.User("Good morning"),
	}

	instructions, input := splitInstructions(msgs)

	want := "You are a helpful assistant.\n\nexample_user: Hi\n\nexample_assistant: Namaste"
	if instructions != want {
		t.Errorf("Expected instructions %q, got %q", want, instructions)
	}
	if len(input) != 1 || input[0].Content != "Good morning" {
		t.Errorf("Expected only the user message as input, got %+v", input)
	}
}

const completedResponse = `{
	"id": "resp_2", "object": "response", "created_at": 1, "status": "completed", "model": "gpt-4o-mini",
	"output": [
		{"type": "reasoning", "id": "rs_1", "summary": [{"type": "summary_text", "text": "They told me their name earlier."}]},
		{"type": "message", "id": "msg_1", "role": "assistant", "status": "completed",
			"content": [{"type": "output_text", "text": "Your name is Agni. I never forget.", "annotations": []}]}
	],
	"usage": {"input_tokens": 30, "output_tokens": 10, "total_tokens": 40,
		"input_tokens_details": {"cached_tokens": 0}, "output_tokens_details": {"reasoning_tokens": 4}},
	"parallel_tool_calls": true, "tool_choice": "auto", "tools": [], "error": null,
	"incomplete_details": null, "instructions": null, "metadata": {}
}`

// newResponsesServer serves the Responses API routes used by the provider
// and records every request.
func newResponsesServer(t *testing.T, handle func(w http.ResponseWriter, r *http.Request, body map[string]interface{})) *ResponsesProvider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/responses") {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		body := map[string]interface{}{}
		_ = json.Unmarshal(raw, &body)
		handle(w, r, body)
	}))
	t.Cleanup(srv.Close)
	return NewResponsesProvider("test-key", srv.URL, option.WithMaxRetries(0))
}

func TestResponsesGenerate(t *testing.T) {
	var last map[string]interface{}
	p := newResponsesServer(t, func(w http.ResponseWriter, _ *http.Request, body map[string]interface{}) {
		last = body
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completedResponse)
	})

	turn, err := p.Generate(context.Background(), Request{
		Settings:           Settings{Model: "gpt-4o-mini"},
		Messages:           []model.Message{model.Developer(sarcasticPrompt), model.User("What is my name?")},
		PreviousResponseID: "resp_1",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if turn.Message.Content != "Your name is Agni. I never forget." {
		t.Errorf("Unexpected answer '%s'", turn.Message.Content)
	}
	if turn.ResponseID != "resp_2" {
		t.Errorf("Expected response id resp_2, got '%s'", turn.ResponseID)
	}
	if turn.Reasoning != "They told me their name earlier." {
		t.Errorf("Unexpected reasoning '%s'", turn.Reasoning)
	}
	if turn.Usage.InputTokens != 30 || turn.Usage.OutputTokens != 10 || turn.Usage.TotalTokens != 40 {
		t.Errorf("Unexpected usage %+v", turn.Usage)
	}
	if last["previous_response_id"] != "resp_1" {
		t.Errorf("Expected previous_response_id in request, got %v", last["previous_response_id"])
	}
	if _, ok := last["tools"]; ok {
		t.Error("Expected no tools without the code interpreter")
	}
}

func TestResponsesGenerateFunctionCall(t *testing.T) {
	p := newResponsesServer(t, func(w http.ResponseWriter, _ *http.Request, _ map[string]interface{}) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "resp_3", "object": "response", "created_at": 1, "status": "completed", "model": "gpt-4o-mini",
			"output": [{"type": "function_call", "id": "fc_1", "call_id": "call_1", "name": "get_last_build",
				"arguments": "{\"product_name\":\"XYZ\",\"branch_name\":\"XYZ_1_2_MAIN\"}", "status": "completed"}],
			"usage": {"input_tokens": 50, "output_tokens": 20, "total_tokens": 70},
			"parallel_tool_calls": true, "tool_choice": "auto", "tools": [], "error": null, "metadata": {}
		}`)
	})

	turn, err := p.Generate(context.Background(), Request{
		Settings: Settings{Model: "gpt-4o-mini"},
		Messages: []model.Message{model.User("What is the last build of XYZ 1.2?")},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if !turn.WantsTools() {
		t.Fatal("Expected a tool call")
	}
	call := turn.Message.ToolCalls[0]
	if call.ID != "call_1" || call.Name != "get_last_build" {
		t.Errorf("Unexpected tool call %+v", call)
	}
	if turn.Message.Content != "" {
		t.Errorf("Expected no answer text, got '%s'", turn.Message.Content)
	}
}

func TestResponsesCodeInterpreterTool(t *testing.T) {
	var last map[string]interface{}
	p := newResponsesServer(t, func(w http.ResponseWriter, _ *http.Request, body map[string]interface{}) {
		last = body
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completedResponse)
	}).WithCodeInterpreter()

	if _, err := p.Generate(context.Background(), Request{
		Settings: Settings{Model: "gpt-4o-mini"},
		Messages: []model.Message{model.User("Provide total builds.")},
	}); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	sent, _ := last["tools"].([]interface{})
	if len(sent) != 1 {
		t.Fatalf("Expected the code interpreter tool, got %v", last["tools"])
	}
	tool, _ := sent[0].(map[string]interface{})
	container, _ := tool["container"].(map[string]interface{})
	if tool["type"] != "code_interpreter" || container["type"] != "auto" {
		t.Errorf("Unexpected tool %v", tool)
	}
}

func TestResponsesGenerateProviderError(t *testing.T) {
	p := newResponsesServer(t, func(w http.ResponseWriter, _ *http.Request, _ map[string]interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error": {"message": "Previous response with id 'resp_x' not found.", "type": "invalid_request_error"}}`)
	})

	_, err := p.Generate(context.Background(), Request{
		Settings:           Settings{Model: "gpt-4o-mini"},
		Messages:           []model.Message{model.User("hi")},
		PreviousResponseID: "resp_x",
	})
	if err == nil {
		t.Fatal("Expected error for 400 response")
	}
}

func TestResponsesInputItemsAndDelete(t *testing.T) {
	var deleted string
	p := newResponsesServer(t, func(w http.ResponseWriter, r *http.Request, _ map[string]interface{}) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/responses/resp_2/input_items"):
			_, _ = io.WriteString(w, `{"object": "list", "first_id": "msg_1", "last_id": "msg_2", "has_more": false, "data": [
				{"type": "message", "id": "msg_1", "role": "user", "status": "completed", "content": [{"type": "input_text", "text": "My name is Agni"}]},
				{"type": "message", "id": "msg_2", "role": "user", "status": "completed", "content": [{"type": "input_text", "text": "What is my name?"}]}
			]}`)
		case r.Method == http.MethodDelete && strings.HasSuffix(r.URL.Path, "/responses/resp_2"):
			deleted = "resp_2"
			_, _ = io.WriteString(w, `{"id": "resp_2", "object": "response", "deleted": true}`)
		default:
			http.NotFound(w, r)
		}
	})

	items, err := p.InputItems(context.Background(), "resp_2")
	if err != nil {
		t.Fatalf("InputItems: %v", err)
	}
	if len(items) != 2 || !strings.Contains(items[1], "What is my name?") {
		t.Errorf("Unexpected input items %v", items)
	}
	if err := p.DeleteResponse(context.Background(), "resp_2"); err != nil {
		t.Fatalf("DeleteResponse: %v", err)
	}
	if deleted != "resp_2" {
		t.Error("Expected the response to be deleted")
	}
}

func TestResponsesStreamOverSSE(t *testing.T) {
	p := newResponsesServer(t, func(w http.ResponseWriter, _ *http.Request, body map[string]interface{}) {
		if body["stream"] != true {
			t.Errorf("Expected a streaming request, got %v", body["stream"])
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, data := range []string{
			`{"type":"response.created","sequence_number":0,"response":{"id":"resp_2","object":"response","status":"in_progress","output":[]}}`,
			`{"type":"response.output_text.delta","sequence_number":1,"item_id":"msg_1","output_index":0,"content_index":0,"delta":"Your name "}`,
			`{"type":"response.output_text.delta","sequence_number":2,"item_id":"msg_1","output_index":0,"content_index":0,"delta":"is Agni."}`,
			`{"type":"response.output_text.done","sequence_number":3,"item_id":"msg_1","output_index":0,"content_index":0,"text":"Your name is Agni."}`,
			`{"type":"response.completed","sequence_number":4,"response":` + strings.Join(strings.Fields(strings.Replace(completedResponse, "Your name is Agni. I never forget.", "Your name is Agni.", 1)), " ") + `}`,
		} {
			var ev struct {
				Type string `json:"type"`
			}
			_ = json.Unmarshal([]byte(data), &ev)
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		}
	})

	s, err := p.Stream(context.Background(), Request{
		Settings: Settings{Model: "gpt-4o-mini"},
		Messages: []model.Message{model.Developer(sarcasticPrompt), model.User("What is my name?")},
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var deltas []string
	text, turn, err := Collect(s, func(d string) { deltas = append(deltas, d) })
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if text != "Your name is Agni." || strings.Join(deltas, "|") != "Your name |is Agni." {
		t.Errorf("Unexpected text %q from deltas %v", text, deltas)
	}
	if turn.ResponseID != "resp_2" {
		t.Errorf("Expected response id resp_2, got '%s'", turn.ResponseID)
	}
	if turn.Usage.TotalTokens != 40 {
		t.Errorf("Expected 40 total tokens, got %d", turn.Usage.TotalTokens)
	}
}

type fakeEventSource struct {
	events []responses.ResponseStreamEventUnion
	i      int
	err    error
	closed bool
}

func (f *fakeEventSource) Next() bool {
	if f.i >= len(f.events) {
		return false
	}
	f.i++
	return true
}

func (f *fakeEventSource) Current() responses.ResponseStreamEventUnion { return f.events[f.i-1] }

func (f *fakeEventSource) Err() error {
	if f.i >= len(f.events) {
		return f.err
	}
	return nil
}

func (f *fakeEventSource) Close() error {
	f.closed = true
	return nil
}

func mustEvents(t *testing.T, raws ...string) []responses.ResponseStreamEventUnion {
	t.Helper()
	out := make([]responses.ResponseStreamEventUnion, len(raws))
	for i, raw := range raws {
		if err := json.Unmarshal([]byte(raw), &out[i]); err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
	}
	return out
}

func streamKinds(t *testing.T, s Stream) ([]string, []Chunk) {
	t.Helper()
	var kinds []string
	var chunks []Chunk
	for s.Next() {
		c := s.Chunk()
		kinds = append(kinds, c.Kind.String())
		chunks = append(chunks, c)
	}
	return kinds, chunks
}

func TestResponsesStreamCodeInterpreterEvents(t *testing.T) {
	src := &fakeEventSource{events: mustEvents(t,
		`{"type":"response.created","sequence_number":0,"response":{"id":"resp_4","status":"in_progress","output":[]}}`,
		`{"type":"response.reasoning_summary_text.delta","sequence_number":1,"item_id":"rs_1","output_index":0,"summary_index":0,"delta":"Count by build_status."}`,
		`{"type":"response.code_interpreter_call_code.delta","sequence_number":2,"item_id":"ci_1","output_index":1,"delta":"import json\n"}`,
		`{"type":"response.code_interpreter_call_code.delta","sequence_number":3,"item_id":"ci_1","output_index":1,"delta":"len(data['results'])"}`,
		`{"type":"response.code_interpreter_call_code.done","sequence_number":4,"item_id":"ci_1","output_index":1,"code":"import json\nlen(data['results'])"}`,
		`{"type":"response.code_interpreter_call.interpreting","sequence_number":5,"item_id":"ci_1","output_index":1}`,
		`{"type":"response.code_interpreter_call.completed","sequence_number":6,"item_id":"ci_1","output_index":1}`,
		`{"type":"response.output_text.delta","sequence_number":7,"item_id":"msg_1","output_index":2,"content_index":0,"delta":"Total builds: 12"}`,
		`{"type":"response.completed","sequence_number":8,"response":{"id":"resp_4","object":"response","status":"completed","output":[
			{"type":"reasoning","id":"rs_1","summary":[{"type":"summary_text","text":"Count by build_status."}]},
			{"type":"message","id":"msg_1","role":"assistant","status":"completed","content":[{"type":"output_text","text":"Total builds: 12","annotations":[]}]}],
			"usage":{"input_tokens":900,"output_tokens":100,"total_tokens":1000}}}`,
	)}
	s := newResponsesStream(src)

	kinds, chunks := streamKinds(t, s)

	want := "created,reasoning_delta,tool_code_delta,tool_code_delta,tool_call_interpreting,tool_call_completed,text_delta,completed"
	if strings.Join(kinds, ",") != want {
		t.Fatalf("Expected chunk kinds %s, got %s", want, strings.Join(kinds, ","))
	}
	if chunks[2].Text != "import json\n" {
		t.Errorf("Expected code delta 'import json\\n', got %q", chunks[2].Text)
	}
	if chunks[5].ToolCall != nil {
		t.Error("Expected no function call on a code interpreter completion")
	}
	turn := chunks[len(chunks)-1].Turn
	if turn.Message.Content != "Total builds: 12" || turn.Reasoning != "Count by build_status." {
		t.Errorf("Unexpected completed turn %+v", turn)
	}
	if turn.Usage.TotalTokens != 1000 {
		t.Errorf("Expected 1000 total tokens, got %d", turn.Usage.TotalTokens)
	}
	if err := s.Close(); err != nil || !src.closed {
		t.Error("Expected the source to be closed")
	}
}

func TestResponsesStreamFunctionCallEvents(t *testing.T) {
	src := &fakeEventSource{events: mustEvents(t,
		`{"type":"response.created","sequence_number":0,"response":{"id":"resp_5","status":"in_progress","output":[]}}`,
		`{"type":"response.output_item.added","sequence_number":1,"output_index":0,"item":{"type":"function_call","id":"fc_1","call_id":"call_1","name":"get_last_build","arguments":"","status":"in_progress"}}`,
		`{"type":"response.function_call_arguments.delta","sequence_number":2,"item_id":"fc_1","output_index":0,"delta":"{\"product_name\":"}`,
		`{"type":"response.function_call_arguments.delta","sequence_number":3,"item_id":"fc_1","output_index":0,"delta":"\"XYZ\"}"}`,
		`{"type":"response.output_item.done","sequence_number":4,"output_index":0,"item":{"type":"function_call","id":"fc_1","call_id":"call_1","name":"get_last_build","arguments":"{\"product_name\":\"XYZ\"}","status":"completed"}}`,
		`{"type":"response.completed","sequence_number":5,"response":{"id":"resp_5","status":"completed","output":[
			{"type":"function_call","id":"fc_1","call_id":"call_1","name":"get_last_build","arguments":"{\"product_name\":\"XYZ\"}","status":"completed"}],
			"usage":{"input_tokens":50,"output_tokens":20,"total_tokens":70}}}`,
	)}

	kinds, chunks := streamKinds(t, newResponsesStream(src))

	want := "created,function_call_started,function_args_delta,function_args_delta,tool_call_completed,completed"
	if strings.Join(kinds, ",") != want {
		t.Fatalf("Expected chunk kinds %s, got %s", want, strings.Join(kinds, ","))
	}
	if chunks[1].ToolCall == nil || chunks[1].ToolCall.Name != "get_last_build" {
		t.Errorf("Expected the started call to name get_last_build, got %+v", chunks[1].ToolCall)
	}
	if chunks[4].ToolCall == nil || chunks[4].ToolCall.Arguments != `{"product_name":"XYZ"}` {
		t.Errorf("Expected assembled arguments, got %+v", chunks[4].ToolCall)
	}
	if !chunks[5].Turn.WantsTools() {
		t.Error("Expected the completed turn to request the tool")
	}
}

func TestResponsesStreamErrorEvent(t *testing.T) {
	src := &fakeEventSource{events: mustEvents(t,
		`{"type":"response.created","sequence_number":0,"response":{"id":"resp_6","status":"in_progress","output":[]}}`,
		`{"type":"response.output_text.delta","sequence_number":1,"item_id":"msg_1","output_index":0,"content_index":0,"delta":"Once upon"}`,
		`{"type":"error","sequence_number":2,"code":"server_error","message":"The server had an error","param":null}`,
		`{"type":"response.output_text.delta","sequence_number":3,"item_id":"msg_1","output_index":0,"content_index":0,"delta":" ignored"}`,
	)}

	text, turn, err := Collect(newResponsesStream(src), nil)
	if err == nil || err.Error() != "The server had an error" {
		t.Fatalf("Expected the server error, got %v", err)
	}
	if text != "Once upon" {
		t.Errorf("Expected partial text 'Once upon', got '%s'", text)
	}
	if turn != nil {
		t.Error("Expected no completed turn")
	}
	if !src.closed {
		t.Error("Expected the source to be closed")
	}
}

func TestResponsesStreamFailedResponse(t *testing.T) {
	src := &fakeEventSource{events: mustEvents(t,
		`{"type":"response.created","sequence_number":0,"response":{"id":"resp_7","status":"in_progress","output":[]}}`,
		`{"type":"response.failed","sequence_number":1,"response":{"id":"resp_7","status":"failed","output":[],"error":{"code":"server_error","message":"container expired"}}}`,
	)}

	_, _, err := Collect(newResponsesStream(src), nil)
	if err == nil || err.Error() != "container expired" {
		t.Errorf("Expected 'container expired', got %v", err)
	}
}

func TestResponsesStreamTransportError(t *testing.T) {
	src := &fakeEventSource{
		events: mustEvents(t, `{"type":"response.created","sequence_number":0,"response":{"id":"resp_8","status":"in_progress","output":[]}}`),
		err:    fmt.Errorf("connection reset"),
	}

	_, _, err := Collect(newResponsesStream(src), nil)
	if err == nil || err.Error() != "connection reset" {
		t.Errorf("Expected 'connection reset', got %v", err)
	}
}
