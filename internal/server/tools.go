// SPDX-License-Identifier: AGPL-3.0-only
package server

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/firoagni/ai-development-tutorials/internal/model"
)

// ToolDefinition represents a tool that can be registered with the MCP server
type ToolDefinition struct {
	// Name is the name of the tool
	Name string

	// Description is a brief description of what the tool does
	Description string

	// Handler is the function that will be called when the tool is invoked
	Handler mcp.ToolHandler

	// InputSchema is the JSON schema of the tool's arguments
	InputSchema map[string]interface{}
}

// registerTools exposes every tool in the registry over MCP.
func (s *MCPServer) registerTools() {
	defs := s.registry.Definitions()
	tools := make([]ToolDefinition, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Handler:     s.handleToolCall(d.Name),
			InputSchema: d.Parameters,
		})
	}

	for _, tool := range tools {
		registerTool(s.server, tool)
	}
	s.logger.Infof("Registered %d tools", len(tools))
}

// registerTool registers a tool with the MCP server
func registerTool(srv *mcp.Server, def ToolDefinition) {
	srv.AddTool(&mcp.Tool{
		Name:        def.Name,
		Description: def.Description,
		InputSchema: def.InputSchema,
	}, def.Handler)
}

// handleToolCall runs the named registry tool. Tool failures are reported
// in-band with IsError set, the same way the chat loop feeds them back to
// the model.
func (s *MCPServer) handleToolCall(name string) mcp.ToolHandler {
	return func(ctx context.Context, request *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.logger.Debugf("Handling %s request", name)

		var args string
		if request.Params != nil {
			args = string(request.Params.Arguments)
		}
		result, err := s.registry.Execute(ctx, model.ToolCall{ID: name, Name: name, Arguments: args})
		if err != nil {
			return nil, err
		}
		if result.IsError {
			s.logger.Warnf("Tool %s failed: %s", name, result.Output)
		}
		return &mcp.CallToolResult{
			IsError: result.IsError,
			Content: []mcp.Content{&mcp.TextContent{Text: result.Output}},
		}, nil
	}
}
