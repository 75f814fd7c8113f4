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
	"github.com/openai/openai-go/shared"

	"github.com/firoagni/ai-development-tutorials/internal/errors"
	"github.com/firoagni/ai-development-tutorials/internal/model"
	"github.com/firoagni/ai-development-tutorials/internal/tools"
)

// OpenAIProvider implements ChatProvider using the OpenAI SDK.
// It supports any OpenAI-compatible endpoint (OpenAI, Azure OpenAI, Ollama,
// vLLM, Groq, etc.) via a configurable base URL.
type OpenAIProvider struct {
	name   string
	client *openai.Client
}

// NewOpenAIProvider creates a new OpenAI-backed ChatProvider.
// If baseURL is non-empty it overrides the default API endpoint, which allows
// pointing at any OpenAI-compatible server.
func NewOpenAIProvider(apiKey string, baseURL string, opts ...option.RequestOption) *OpenAIProvider {
	all := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		all = append(all, option.WithBaseURL(baseURL))
	}
	all = append(all, opts...)
	client := openai.NewClient(all...)
	return &OpenAIProvider{name: "openai", client: &client}
}

// NewAzureProvider creates a ChatProvider for an Azure OpenAI resource. The
// model name of each request is the deployment name.
func NewAzureProvider(endpoint, apiVersion, apiKey string, opts ...option.RequestOption) *OpenAIProvider {
	all := []option.RequestOption{
		azure.WithEndpoint(endpoint, apiVersion),
		azure.WithAPIKey(apiKey),
	}
	all = append(all, opts...)
	client := openai.NewClient(all...)
	return &OpenAIProvider{name: "azure", client: &client}
}

// WithName returns the provider relabelled for logs, e.g. "ollama".
func (p *OpenAIProvider) WithName(name string) *OpenAIProvider {
	return &OpenAIProvider{name: name, client: p.client}
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (*model.Turn, error) {
	if req.PreviousResponseID != "" {
		return nil, errors.ErrNoServerState
	}
	resp, err := p.client.Chat.Completions.New(ctx, toOpenAIParams(req))
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("response contained no choices")
	}
	choice := resp.Choices[0]
	return &model.Turn{
		Message:      fromOpenAIMessage(choice.Message),
		Usage:        fromOpenAIUsage(resp.Usage),
		FinishReason: choice.FinishReason,
		Refusal:      choice.Message.Refusal,
		Reasoning:    reasoningOf(choice.Message.RawJSON()),
	}, nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	if req.PreviousResponseID != "" {
		return nil, errors.ErrNoServerState
	}
	params := toOpenAIParams(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}
	src := p.client.Chat.Completions.NewStreaming(ctx, params)
	if err := src.Err(); err != nil {
		_ = src.Close()
		return nil, err
	}
	return newOpenAIStream(src), nil
}

func toOpenAIParams(req Request) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, toOpenAIMessage(m))
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
	}
	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Seed != nil {
		params.Seed = openai.Int(*req.Seed)
	}
	if req.ReasoningEffort != "" {
		params.ReasoningEffort = shared.ReasoningEffort(req.ReasoningEffort)
	}
	if f := req.Format; f != nil {
		schema := shared.ResponseFormatJSONSchemaJSONSchemaParam{
			Name:   f.Name,
			Schema: f.Schema,
			Strict: openai.Bool(f.Strict),
		}
		if f.Description != "" {
			schema.Description = openai.String(f.Description)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{JSONSchema: schema},
		}
	}
	return params
}

// toOpenAITools converts provider-agnostic tool definitions to the OpenAI SDK
// representation.
func toOpenAITools(defs []tools.Definition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, len(defs))
	for i, t := range defs {
		out[i] = openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  shared.FunctionParameters(t.Parameters),
			},
		}
	}
	return out
}

// toOpenAIMessage converts a provider-agnostic Message to an OpenAI SDK message
// union. Names are kept so few-shot examples stay labelled.
func toOpenAIMessage(m model.Message) openai.ChatCompletionMessageParamUnion {
	switch m.Role {
	case model.RoleTool:
		return openai.ToolMessage(m.Content, m.ToolCallID)
	case model.RoleDeveloper:
		dev := openai.ChatCompletionDeveloperMessageParam{
			Content: openai.ChatCompletionDeveloperMessageParamContentUnion{OfString: openai.String(m.Content)},
		}
		if m.Name != "" {
			dev.Name = openai.String(m.Name)
		}
		return openai.ChatCompletionMessageParamUnion{OfDeveloper: &dev}
	case model.RoleSystem:
		sys := openai.ChatCompletionSystemMessageParam{
			Content: openai.ChatCompletionSystemMessageParamContentUnion{OfString: openai.String(m.Content)},
		}
		if m.Name != "" {
			sys.Name = openai.String(m.Name)
		}
		return openai.ChatCompletionMessageParamUnion{OfSystem: &sys}
	case model.RoleUser:
		user := openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{OfString: openai.String(m.Content)},
		}
		if m.Name != "" {
			user.Name = openai.String(m.Name)
		}
		return openai.ChatCompletionMessageParamUnion{OfUser: &user}
	default: // assistant
		asst := openai.ChatCompletionAssistantMessageParam{}
		if m.Content != "" {
			asst.Content.OfString = openai.String(m.Content)
		}
		if m.Name != "" {
			asst.Name = openai.String(m.Name)
		}
		if len(m.ToolCalls) > 0 {
			asst.ToolCalls = make([]openai.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				asst.ToolCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				}
			}
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: &asst}
	}
}

// fromOpenAIMessage converts an OpenAI SDK response message to the
// provider-agnostic Message type.
func fromOpenAIMessage(m openai.ChatCompletionMessage) model.Message {
	msg := model.Message{
		Role:    model.RoleAssistant,
		Content: m.Content,
	}
	if len(m.ToolCalls) > 0 {
		msg.ToolCalls = make([]model.ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			msg.ToolCalls[i] = model.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}
		}
	}
	return msg
}

// reasoningOf extracts the thinking text that Ollama and other compatible
// servers add to a message or delta as "reasoning" or "reasoning_content".
func reasoningOf(raw string) string {
	if raw == "" {
		return ""
	}
	var extra struct {
		Reasoning        string `json:"reasoning"`
		ReasoningContent string `json:"reasoning_content"`
	}
	if err := json.Unmarshal([]byte(raw), &extra); err != nil {
		return ""
	}
	if extra.Reasoning != "" {
		return extra.Reasoning
	}
	return extra.ReasoningContent
}

func fromOpenAIUsage(u openai.CompletionUsage) model.Usage {
	return model.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
}

// chunkSource is the part of ssestream.Stream the adapter needs.
type chunkSource interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
	Close() error
}

// openAIStream turns raw completion chunks into Chunks. The SDK accumulator
// assembles the final message and reports finished tool calls.
type openAIStream struct {
	src       chunkSource
	acc       openai.ChatCompletionAccumulator
	usage     model.Usage
	reasoning strings.Builder
	queue     []Chunk
	current   Chunk
	started   bool
	done      bool
	err       error
}

func newOpenAIStream(src chunkSource) *openAIStream {
	return &openAIStream{src: src}
}

func (s *openAIStream) Next() bool {
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

func (s *openAIStream) pull() {
	if !s.src.Next() {
		s.done = true
		if err := s.src.Err(); err != nil {
			s.err = err
			s.queue = append(s.queue, Chunk{Kind: ChunkError, Err: err})
			return
		}
		turn := s.turn()
		s.queue = append(s.queue, Chunk{Kind: ChunkCompleted, Turn: turn})
		return
	}

	chunk := s.src.Current()
	if !s.started {
		s.started = true
		s.queue = append(s.queue, Chunk{Kind: ChunkCreated})
	}
	s.acc.AddChunk(chunk)
	// With include_usage the counters arrive on a final chunk without choices.
	if chunk.Usage.TotalTokens > 0 {
		s.usage = fromOpenAIUsage(chunk.Usage)
	}

	if tc, ok := s.acc.JustFinishedToolCall(); ok {
		s.queue = append(s.queue, Chunk{
			Kind:     ChunkToolCallCompleted,
			ToolCall: &model.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments},
		})
	}
	if len(chunk.Choices) == 0 {
		return
	}
	delta := chunk.Choices[0].Delta
	if r := reasoningOf(delta.RawJSON()); r != "" {
		s.reasoning.WriteString(r)
		s.queue = append(s.queue, Chunk{Kind: ChunkReasoningDelta, Text: r})
	}
	if delta.Content != "" {
		s.queue = append(s.queue, Chunk{Kind: ChunkTextDelta, Text: delta.Content})
	}
	for _, tc := range delta.ToolCalls {
		if tc.Function.Name != "" {
			s.queue = append(s.queue, Chunk{
				Kind:     ChunkFunctionCallStarted,
				ToolCall: &model.ToolCall{ID: tc.ID, Name: tc.Function.Name},
			})
		}
		if tc.Function.Arguments != "" {
			s.queue = append(s.queue, Chunk{Kind: ChunkFunctionArgsDelta, Text: tc.Function.Arguments})
		}
	}
}

func (s *openAIStream) turn() *model.Turn {
	turn := &model.Turn{
		Message:   model.Message{Role: model.RoleAssistant},
		Usage:     s.usage,
		Reasoning: s.reasoning.String(),
	}
	if len(s.acc.Choices) > 0 {
		choice := s.acc.Choices[0]
		turn.Message = fromOpenAIMessage(choice.Message)
		turn.FinishReason = choice.FinishReason
		turn.Refusal = choice.Message.Refusal
	}
	return turn
}

func (s *openAIStream) Chunk() Chunk {
	return s.current
}

func (s *openAIStream) Err() error {
	return s.err
}

func (s *openAIStream) Close() error {
	return s.src.Close()
}
