// SPDX-License-Identifier: AGPL-3.0-only
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/firoagni/ai-development-tutorials/internal/errors"
	"github.com/firoagni/ai-development-tutorials/internal/logging"
)

// MCPServerSpec is one entry of an mcpServers config file.
type MCPServerSpec struct {
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
}

// MCPConfig is the mcpServers JSON file format shared with desktop clients.
type MCPConfig struct {
	Servers map[string]MCPServerSpec `json:"mcpServers"`
}

// ReadMCPConfig parses the mcpServers file at path.
func ReadMCPConfig(path string) (*MCPConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg MCPConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Transport picks the client transport for a server entry: a command runs
// over stdio, a URL ending in /sse uses the SSE transport and any other URL
// the streamable HTTP transport.
func (s MCPServerSpec) Transport() (mcp.Transport, bool) {
	switch {
	case s.Command != "":
		cmd := exec.Command(s.Command, s.Args...)
		if len(s.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range s.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		return &mcp.CommandTransport{Command: cmd}, true
	case strings.HasSuffix(strings.TrimRight(s.URL, "/"), "/sse"):
		return &mcp.SSEClientTransport{Endpoint: s.URL}, true
	case s.URL != "":
		return &mcp.StreamableClientTransport{Endpoint: s.URL}, true
	default:
		return nil, false
	}
}

// MCPTools holds the client sessions backing tools registered from MCP
// servers.
type MCPTools struct {
	sessions map[string]*mcp.ClientSession
	logger   *logging.Logger
}

// Close closes every server session.
func (m *MCPTools) Close() error {
	var firstErr error
	for name, s := range m.sessions {
		if err := s.Close(); err != nil {
			m.logger.Warnf("Failed to close MCP session %s: %v", name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// LoadMCPTools connects to every server listed in the config file at path and
// registers its tools in r. Servers that cannot be reached are logged and
// skipped; tools whose names are already registered are skipped too.
func LoadMCPTools(ctx context.Context, path string, r *Registry, logger *logging.Logger) (*MCPTools, error) {
	cfg, err := ReadMCPConfig(path)
	if err != nil {
		return nil, err
	}
	return ConnectMCPServers(ctx, cfg, r, logger), nil
}

// ConnectMCPServers is LoadMCPTools for an already parsed config.
func ConnectMCPServers(ctx context.Context, cfg *MCPConfig, r *Registry, logger *logging.Logger) *MCPTools {
	m := &MCPTools{sessions: map[string]*mcp.ClientSession{}, logger: logger}

	// Deterministic registration order regardless of map iteration.
	names := make([]string, 0, len(cfg.Servers))
	for name := range cfg.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		tp, ok := cfg.Servers[name].Transport()
		if !ok {
			logger.Warnf("MCP server %s has neither command nor url, skipping", name)
			continue
		}
		cli := mcp.NewClient(&mcp.Implementation{Name: "aichat", Version: "1.0.0"}, nil)
		session, err := cli.Connect(ctx, tp, nil)
		if err != nil {
			logger.Warnf("Failed to connect to MCP server %s: %v", name, err)
			continue
		}
		m.sessions[name] = session
		if n, err := RegisterSessionTools(ctx, name, session, r, logger); err != nil {
			logger.Warnf("Failed to list tools for MCP server %s: %v", name, err)
		} else {
			logger.Infof("Registered %d tools from MCP server %s", n, name)
		}
	}
	return m
}

// RegisterSessionTools registers the tools of an already connected session
// and returns how many were added.
func RegisterSessionTools(ctx context.Context, server string, session *mcp.ClientSession, r *Registry, logger *logging.Logger) (int, error) {
	resp, err := session.ListTools(ctx, nil)
	if err != nil {
		return 0, err
	}
	registered := 0
	for _, tl := range resp.Tools {
		params, err := schemaMap(tl.InputSchema)
		if err != nil {
			logger.Warnf("Skipping tool %s from %s: %v", tl.Name, server, err)
			continue
		}
		err = r.Register(Tool{
			Definition: Definition{Name: tl.Name, Description: tl.Description, Parameters: params},
			Handler:    remoteHandler(session, tl.Name),
		})
		if err != nil {
			logger.Warnf("Skipping tool %s from %s: %v", tl.Name, server, err)
			continue
		}
		registered++
	}
	return registered, nil
}

// schemaMap normalizes an MCP input schema into the map form providers
// expect.
func schemaMap(schema interface{}) (map[string]interface{}, error) {
	params := map[string]interface{}{}
	if schema != nil {
		b, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("marshal input schema: %w", err)
		}
		if err := json.Unmarshal(b, &params); err != nil {
			return nil, fmt.Errorf("unmarshal input schema: %w", err)
		}
	}
	if params["type"] == nil {
		params["type"] = "object"
	}
	if params["properties"] == nil {
		params["properties"] = map[string]interface{}{}
	}
	return params, nil
}

func remoteHandler(session *mcp.ClientSession, name string) Handler {
	return func(ctx context.Context, raw json.RawMessage) (string, error) {
		var args map[string]interface{}
		if err := json.Unmarshal(raw, &args); err != nil {
			return "", fmt.Errorf("failed to unmarshal arguments: %w", err)
		}
		res, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		})
		if err != nil {
			return "", err
		}
		out := flattenContent(res.Content)
		if res.IsError {
			return "", errors.New(out)
		}
		return out, nil
	}
}

// flattenContent joins text content and JSON-encodes everything else.
func flattenContent(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
			continue
		}
		if b, err := json.Marshal(c); err == nil {
			parts = append(parts, string(b))
		}
	}
	return strings.Join(parts, "\n")
}
