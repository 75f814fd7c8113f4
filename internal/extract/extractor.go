// SPDX-License-Identifier: AGPL-3.0-only

// Package extract turns free text into typed values using structured
// outputs.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/firoagni/ai-development-tutorials/internal/agent"
	"github.com/firoagni/ai-development-tutorials/internal/errors"
	"github.com/firoagni/ai-development-tutorials/internal/logging"
	"github.com/firoagni/ai-development-tutorials/internal/model"
	"github.com/firoagni/ai-development-tutorials/internal/tools"
)

// DefaultInstruction is the developer message sent ahead of every input.
const DefaultInstruction = "Extract the event information from the provided user input"

// Extractor asks the model for JSON matching the schema of a Go type.
type Extractor struct {
	Provider    agent.ChatProvider
	Settings    agent.Settings
	Instruction string
	Logger      *logging.Logger
}

// NewExtractor returns an Extractor that samples at temperature 0.
func NewExtractor(p agent.ChatProvider, settings agent.Settings, logger *logging.Logger) *Extractor {
	zero := 0.0
	settings.Temperature = &zero
	return &Extractor{
		Provider:    p,
		Settings:    settings,
		Instruction: DefaultInstruction,
		Logger:      logger,
	}
}

// Extract fills out, which must be a pointer to a struct, from input. A
// refusal is returned as *errors.RefusalError. The response is validated
// against the schema before it is decoded.
func (e *Extractor) Extract(ctx context.Context, input string, out interface{}) (model.Usage, error) {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return model.Usage{}, errors.InvalidInput(fmt.Sprintf("extract target must be a pointer to a struct, got %T", out))
	}

	schema := tools.BuildStrictSchema(out)
	compiled, err := tools.CompileSchema(schema)
	if err != nil {
		return model.Usage{}, errors.Internal(err)
	}
	name := schemaName(rv.Elem().Type())

	logger := e.Logger
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	logger.Debugf("Extracting %s from %q", name, input)

	turn, err := e.Provider.Generate(ctx, agent.Request{
		Settings: e.Settings,
		Messages: []model.Message{
			model.Developer(e.Instruction),
			model.User(input),
		},
		Format: &agent.JSONSchemaFormat{Name: name, Schema: schema, Strict: true},
	})
	if err != nil {
		return model.Usage{}, &errors.ProviderError{Provider: e.Provider.Name(), Err: err}
	}
	if turn.Refusal != "" {
		return turn.Usage, &errors.RefusalError{Refusal: turn.Refusal}
	}
	if turn.FinishReason == "length" {
		return turn.Usage, fmt.Errorf("response truncated before the JSON was complete")
	}

	content := strings.TrimSpace(turn.Message.Content)
	if content == "" {
		return turn.Usage, fmt.Errorf("model returned no content")
	}
	var doc interface{}
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return turn.Usage, fmt.Errorf("response is not JSON: %w", err)
	}
	if err := compiled.Validate(doc); err != nil {
		return turn.Usage, fmt.Errorf("response does not match schema: %v", err)
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return turn.Usage, fmt.Errorf("decode response: %w", err)
	}
	return turn.Usage, nil
}

// schemaName converts a Go type name to the snake_case schema name, e.g.
// CalendarEvent -> calendar_event.
func schemaName(t reflect.Type) string {
	var sb strings.Builder
	for i, r := range t.Name() {
		if unicode.IsUpper(r) {
			if i > 0 {
				sb.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		sb.WriteRune(r)
	}
	if sb.Len() == 0 {
		return "response"
	}
	return sb.String()
}
