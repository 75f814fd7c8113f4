// SPDX-License-Identifier: AGPL-3.0-only
package agent

import (
	"context"

	"github.com/firoagni/ai-development-tutorials/internal/model"
	"github.com/firoagni/ai-development-tutorials/internal/tools"
)

// Settings are the per-call generation parameters shared by every request
// of a session.
type Settings struct {
	Model string
	// Temperature is omitted from the request when nil.
	Temperature *float64
	// MaxTokens caps the response length. Zero leaves it to the provider.
	MaxTokens int
	// Seed asks for best-effort reproducible sampling.
	Seed            *int64
	ReasoningEffort string
}

// JSONSchemaFormat asks the model to answer with JSON matching Schema.
type JSONSchemaFormat struct {
	Name        string
	Description string
	Schema      map[string]interface{}
	Strict      bool
}

// Request is a single chat completion request.
type Request struct {
	Settings
	Messages []model.Message
	Tools    []tools.Definition
	Format   *JSONSchemaFormat
	// PreviousResponseID continues a conversation stored by the provider.
	// Messages then hold only the instructions and the new input. Providers
	// without server-side state reject it.
	PreviousResponseID string
}

// ChatProvider abstracts a chat-completion backend so the orchestrator can
// work with any LLM provider.
type ChatProvider interface {
	// Name identifies the backend in logs and errors.
	Name() string
	// Generate sends the request and returns the complete assistant turn.
	Generate(ctx context.Context, req Request) (*model.Turn, error)
	// Stream sends the request and returns the response as a chunk stream.
	Stream(ctx context.Context, req Request) (Stream, error)
}

// ResponseKeeper is implemented by providers that store responses
// server-side and let callers inspect and remove them.
type ResponseKeeper interface {
	// InputItems returns the raw JSON input items recorded for a response,
	// oldest first.
	InputItems(ctx context.Context, responseID string) ([]string, error)
	DeleteResponse(ctx context.Context, responseID string) error
}
