// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"github.com/firoagni/ai-development-tutorials/internal/model"
	"github.com/firoagni/ai-development-tutorials/internal/tools"
)

// ResponsesProvider implements ChatProvider on the OpenAI Responses API.
// Besides resending the transcript like chat completions, it can continue a
// conversation the provider stored: a request with PreviousResponseID only
// carries the instructions and the new input.
type ResponsesProvider struct {
	name            string
	client          *openai.Client
	codeInterpreter bool
}

// NewResponsesProvider creates a Responses API provider for OpenAI or a
// compatible server at baseURL.
func NewResponsesProvider(apiKey string, baseURL string, opts ...option.RequestOption) *ResponsesProvider {
	all := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		all = append(all, option.WithBaseURL(baseURL))
	}
	all = append(all, opts...)
	client := openai.NewClient(all...)
	return &ResponsesProvider{name: "openai-responses", client: &client}
}

// NewAzureResponsesProvider creates a Responses API provider for an Azure
// OpenAI resource.
func NewAzureResponsesProvider(endpoint, apiVersion, apiKey string, opts ...option.RequestOption) *ResponsesProvider {
	all := []option.RequestOption{
		azure.WithEndpoint(endpoint, apiVersion),
		azure.WithAPIKey(apiKey),
	}
	all = append(all, opts...)
	client := openai.NewClient(all...)
	return &ResponsesProvider{name: "azure-responses", client: &client}
}

// WithCodeInterpreter returns a copy that offers the hosted code
// interpreter, running in an automatically created container, on every
// request.
func (p *ResponsesProvider) WithCodeInterpreter() *ResponsesProvider {
	return &ResponsesProvider{name: p.name, client: p.client, codeInterpreter: true}
}

func (p *ResponsesProvider) Name() string {
	return p.name
}

func (p *ResponsesProvider) Generate(ctx context.Context, req Request) (*model.Turn, error) {
	resp, err := p.client.Responses.New(ctx, toResponsesParams(req), p.requestOptions()...)
	if err != nil {
		return nil, err
	}
	if resp.Status == "failed" {
		return nil, fmt.Errorf("response %s failed: %s", resp.ID, resp.Error.Message)
	}
	return fromResponse(resp), nil
}

func (p *ResponsesProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	src := p.client.Responses.NewStreaming(ctx, toResponsesParams(req), p.requestOptions()...)
	if err := src.Err(); err != nil {
		_ = src.Close()
		return nil, err
	}
	return newResponsesStream(src), nil
}

// InputItems lists the input items stored for responseID.
func (p *ResponsesProvider) InputItems(ctx context.Context, responseID string) ([]string, error) {
	iter := p.client.Responses.InputItems.ListAutoPaging(ctx, responseID, responses.InputItemListParams{})
	var items []string
	for iter.Next() {
		items = append(items, iter.Current().RawJSON())
	}
	if err := iter.Err(); err != nil {
		return items, err
	}
	return items, nil
}

// DeleteResponse removes a stored response.
func (p *ResponsesProvider) DeleteResponse(ctx context.Context, responseID string) error {
	return p.client.Responses.Delete(ctx, responseID)
}

func (p *ResponsesProvider) requestOptions() []option.RequestOption {
	if !p.codeInterpreter {
		return nil
	}
	return []option.RequestOption{option.WithJSONSet("tools.-1", map[string]interface{}{
		"type":      "code_interpreter",
		"container": map[string]interface{}{"type": "auto"},
	})}
}

func toResponsesParams(req Request) responses.ResponseNewParams {
	instructions, input := splitInstructions(req.Messages)
	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(req.Model),
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: toResponsesInput(input)},
	}
	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}
	if req.PreviousResponseID != "" {
		params.PreviousResponseID = openai.String(req.PreviousResponseID)
	}
	if len(req.Tools) > 0 {
		params.Tools = toResponsesTools(req.Tools)
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxTokens))
	}
	// The Responses API has no seed parameter.
	if req.ReasoningEffort != "" {
		params.Reasoning = shared.ReasoningParam{
			Effort:  shared.ReasoningEffort(req.ReasoningEffort),
			Summary: shared.ReasoningSummaryAuto,
		}
	}
	if f := req.Format; f != nil {
		format := responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:   f.Name,
			Schema: f.Schema,
			Strict: openai.Bool(f.Strict),
		}
		if f.Description != "" {
			format.Description = openai.String(f.Description)
		}
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{OfJSONSchema: &format},
		}
	}
	return params
}

// splitInstructions moves the leading developer and system messages into
// the instructions string, which is not carried over by previous response
// ids and so must accompany every request. Input messages have no names:
// few-shot examples become labelled paragraphs.
func splitInstructions(msgs []model.Message) (string, []model.Message) {
	var parts []string
	i := 0
	for ; i < len(msgs) && msgs[i].Role.IsInstruction(); i++ {
		m := msgs[i]
		if m.Name != "" {
			parts = append(parts, m.Name+": "+m.Content)
			continue
		}
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n\n"), msgs[i:]
}

func toResponsesInput(msgs []model.Message) responses.ResponseInputParam {
	items := make(responses.ResponseInputParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case model.RoleTool:
			items = append(items, responses.ResponseInputItemUnionParam{
				OfFunctionCallOutput: &responses.ResponseInputItemFunctionCallOutputParam{
					CallID: m.ToolCallID,
					Output: m.Content,
				},
			})
		case model.RoleAssistant:
			if m.Content != "" {
				items = append(items, easyInputMessage(responses.EasyInputMessageRoleAssistant, m.Content))
			}
			for _, tc := range m.ToolCalls {
				items = append(items, responses.ResponseInputItemUnionParam{
					OfFunctionCall: &responses.ResponseFunctionToolCallParam{
						CallID:    tc.ID,
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
		case model.RoleDeveloper:
			items = append(items, easyInputMessage(responses.EasyInputMessageRoleDeveloper, m.Content))
		case model.RoleSystem:
			items = append(items, easyInputMessage(responses.EasyInputMessageRoleSystem, m.Content))
		default:
			items = append(items, easyInputMessage(responses.EasyInputMessageRoleUser, m.Content))
		}
	}
	return items
}

func easyInputMessage(role responses.EasyInputMessageRole, content string) responses.ResponseInputItemUnionParam {
	return responses.ResponseInputItemUnionParam{
		OfMessage: &responses.EasyInputMessageParam{
			Role:    role,
			Content: responses.EasyInputMessageContentUnionParam{OfString: openai.String(content)},
		},
	}
}

func toResponsesTools(defs []tools.Definition) []responses.ToolUnionParam {
	out := make([]responses.ToolUnionParam, len(defs))
	for i, t := range defs {
		fn := responses.FunctionToolParam{
			Name:       t.Name,
			Parameters: t.Parameters,
			Strict:     openai.Bool(false),
		}
		if t.Description != "" {
			fn.Description = openai.String(t.Description)
		}
		out[i] = responses.ToolUnionParam{OfFunction: &fn}
	}
	return out
}

// fromResponse converts a finished response. Function calls become tool
// calls, reasoning summaries the turn's Reasoning.
func fromResponse(resp *responses.Response) *model.Turn {
	turn := &model.Turn{
		Message: model.Message{Role: model.RoleAssistant, Content: resp.OutputText()},
		Usage: model.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		FinishReason: string(resp.Status),
		ResponseID:   resp.ID,
	}
	var thinking []string
	for _, item := range resp.Output {
		switch item.Type {
		case "function_call":
			fc := item.AsFunctionCall()
			turn.Message.ToolCalls = append(turn.Message.ToolCalls, model.ToolCall{
				ID:        fc.CallID,
				Name:      fc.Name,
				Arguments: fc.Arguments,
			})
		case "reasoning":
			for _, s := range item.AsReasoning().Summary {
				thinking = append(thinking, s.Text)
			}
		case "message":
			for _, c := range item.AsMessage().Content {
				if c.Type == "refusal" {
					turn.Refusal = c.Refusal
				}
			}
		}
	}
	turn.Reasoning = strings.Join(thinking, "\n\n")
	return turn
}

// responseEventSource is the part of ssestream.Stream the adapter needs.
type responseEventSource interface {
	Next() bool
	Current() responses.ResponseStreamEventUnion
	Err() error
	Close() error
}

// responseEvent holds the fields of the stream events the adapter maps.
type responseEvent struct {
	Delta   string `json:"delta"`
	Message string `json:"message"`
	Item    struct {
		Type      string `json:"type"`
		CallID    string `json:"call_id"`
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"item"`
	Response *responses.Response `json:"response"`
}

// responsesStream maps typed Responses API events onto Chunks. Events it
// does not render, like output_text.done, are skipped.
type responsesStream struct {
	src     responseEventSource
	queue   []Chunk
	current Chunk
	done    bool
	err     error
}

func newResponsesStream(src responseEventSource) *responsesStream {
	return &responsesStream{src: src}
}

func (s *responsesStream) Next() bool {
	for len(s.queue) == 0 {
		if s.done {
			return false
		}
		s.pull()
	}
	s.current = s.queue[0]
	s.queue = s.queue[1:]
	return true
}

func (s *responsesStream) pull() {
	if !s.src.Next() {
		s.done = true
		if err := s.src.Err(); err != nil {
			s.fail(err)
		}
		return
	}

	ev := s.src.Current()
	var e responseEvent
	if err := json.Unmarshal([]byte(ev.RawJSON()), &e); err != nil {
		s.done = true
		s.fail(fmt.Errorf("decode %s event: %w", ev.Type, err))
		return
	}

	switch ev.Type {
	case "response.created":
		s.push(Chunk{Kind: ChunkCreated})
	case "response.output_text.delta":
		s.push(Chunk{Kind: ChunkTextDelta, Text: e.Delta})
	case "response.reasoning_summary_text.delta", "response.reasoning_text.delta":
		s.push(Chunk{Kind: ChunkReasoningDelta, Text: e.Delta})
	case "response.output_item.added":
		if e.Item.Type == "function_call" {
			s.push(Chunk{Kind: ChunkFunctionCallStarted, ToolCall: &model.ToolCall{ID: e.Item.CallID, Name: e.Item.Name}})
		}
	case "response.function_call_arguments.delta":
		s.push(Chunk{Kind: ChunkFunctionArgsDelta, Text: e.Delta})
	case "response.output_item.done":
		if e.Item.Type == "function_call" {
			s.push(Chunk{Kind: ChunkToolCallCompleted, ToolCall: &model.ToolCall{
				ID:        e.Item.CallID,
				Name:      e.Item.Name,
				Arguments: e.Item.Arguments,
			}})
		}
	case "response.code_interpreter_call_code.delta":
		s.push(Chunk{Kind: ChunkToolCodeDelta, Text: e.Delta})
	case "response.code_interpreter_call.interpreting":
		s.push(Chunk{Kind: ChunkToolCallInterpreting})
	case "response.code_interpreter_call.completed":
		s.push(Chunk{Kind: ChunkToolCallCompleted})
	case "response.completed", "response.incomplete":
		s.done = true
		if e.Response == nil {
			s.fail(fmt.Errorf("%s event without a response", ev.Type))
			return
		}
		s.push(Chunk{Kind: ChunkCompleted, Turn: fromResponse(e.Response)})
	case "response.failed":
		s.done = true
		msg := "response failed"
		if e.Response != nil && e.Response.Error.Message != "" {
			msg = e.Response.Error.Message
		}
		s.fail(fmt.Errorf("%s", msg))
	case "error", "response.error":
		s.done = true
		s.fail(fmt.Errorf("%s", e.Message))
	}
}

func (s *responsesStream) push(c Chunk) {
	s.queue = append(s.queue, c)
}

func (s *responsesStream) fail(err error) {
	s.err = err
	s.push(Chunk{Kind: ChunkError, Err: err})
}

func (s *responsesStream) Chunk() Chunk {
	return s.current
}

func (s *responsesStream) Err() error {
	return s.err
}

func (s *responsesStream) Close() error {
	return s.src.Close()
}
