// SPDX-License-Identifier: AGPL-3.0-only

// Package tools maps tool names advertised to the model onto local
// handlers.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/firoagni/ai-development-tutorials/internal/errors"
	"github.com/firoagni/ai-development-tutorials/internal/model"
)

// Definition is a provider-agnostic description of a tool offered to the
// model.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Handler executes a tool with its JSON-encoded argument object and returns
// the serialized output.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// Tool is a registered tool.
type Tool struct {
	Definition Definition
	Handler    Handler

	schema *jsonschema.Schema
}

// Func builds a Tool whose arguments decode into T. The parameter schema is
// derived from T's json and description tags. String results are returned
// as-is, anything else is JSON-encoded.
func Func[T any](name, description string, fn func(ctx context.Context, args T) (interface{}, error)) Tool {
	var zero T
	return Tool{
		Definition: Definition{
			Name:        name,
			Description: description,
			Parameters:  BuildSchema(zero),
		},
		Handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args T
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", fmt.Errorf("decode arguments: %w", err)
			}
			out, err := fn(ctx, args)
			if err != nil {
				return "", err
			}
			return stringify(out)
		},
	}
}

func stringify(v interface{}) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case nil:
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(b), nil
}

// Registry is the explicit name -> handler table built at startup.
// Definitions are returned in registration order.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(t Tool) error {
	if t.Definition.Name == "" {
		return errors.InvalidInput("tool name is required")
	}
	if t.Handler == nil {
		return errors.InvalidInput(fmt.Sprintf("tool %s has no handler", t.Definition.Name))
	}
	schema, err := CompileSchema(t.Definition.Parameters)
	if err != nil {
		return fmt.Errorf("tool %s schema: %w", t.Definition.Name, err)
	}
	t.schema = schema

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Definition.Name]; exists {
		return errors.AlreadyExists("tool", t.Definition.Name)
	}
	r.tools[t.Definition.Name] = t
	r.order = append(r.order, t.Definition.Name)
	return nil
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Definitions returns the schemas to advertise to the model.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Definition)
	}
	return out
}

// Resolve looks up a tool by name.
func (r *Registry) Resolve(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return Tool{}, &errors.UnknownToolError{Name: name}
	}
	return t, nil
}

// Execute resolves call to exactly one ToolResult.
//
// An unregistered name is returned as *errors.UnknownToolError: the model
// was offered a schema nobody can serve. Every other failure (arguments
// that are not a JSON object, arguments violating the schema, a handler
// error or panic) becomes an error ToolResult so the model can see what went
// wrong and recover.
func (r *Registry) Execute(ctx context.Context, call model.ToolCall) (model.ToolResult, error) {
	t, err := r.Resolve(call.Name)
	if err != nil {
		return model.ToolResult{}, err
	}

	result := model.ToolResult{CallID: call.ID, Name: call.Name}

	raw := json.RawMessage(call.Arguments)
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorResult(result, fmt.Errorf("failed to unmarshal arguments: %w", err)), nil
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	if err := t.schema.Validate(args); err != nil {
		return errorResult(result, fmt.Errorf("arguments do not match schema: %v", err)), nil
	}

	out, err := safeCall(ctx, t.Handler, raw)
	if err != nil {
		return errorResult(result, err), nil
	}
	result.Output = out
	return result, nil
}

func safeCall(ctx context.Context, h Handler, raw json.RawMessage) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tool panicked: %v", p)
		}
	}()
	return h(ctx, raw)
}

func errorResult(r model.ToolResult, err error) model.ToolResult {
	r.Output = "ERROR: " + err.Error()
	r.IsError = true
	return r
}
