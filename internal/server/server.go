// SPDX-License-Identifier: AGPL-3.0-only

// Package server exposes a tool registry as an MCP server.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/firoagni/ai-development-tutorials/internal/config"
	"github.com/firoagni/ai-development-tutorials/internal/errors"
	"github.com/firoagni/ai-development-tutorials/internal/logging"
	"github.com/firoagni/ai-development-tutorials/internal/tools"
)

// Make os.OpenFile mockable for testing
var osOpenFile = os.OpenFile

// MCPServer serves the tools of a registry over stdio, streamable HTTP or SSE.
type MCPServer struct {
	registry       *tools.Registry
	server         *mcp.Server
	httpServer     *http.Server
	cancel         context.CancelFunc
	address        string
	port           int
	stopCh         chan struct{}
	wg             sync.WaitGroup
	config         *config.Config
	logger         *logging.Logger
	ownsLogger     bool
	shutdownMutex  sync.Mutex
	isShuttingDown bool
}

// NewMCPServer creates a server for registry. A nil logger is derived from
// the logging config; under stdio it writes to a file so the JSON-RPC
// stream on stdout stays clean.
func NewMCPServer(cfg *config.Config, registry *tools.Registry, logger *logging.Logger) (*MCPServer, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if registry == nil {
		return nil, errors.InvalidInput("tool registry is required")
	}

	ownsLogger := logger == nil
	if ownsLogger {
		var err error
		logger, err = serverLogger(cfg)
		if err != nil {
			return nil, err
		}
		logging.SetDefaultLogger(logger)
	}

	switch cfg.Server.TransportMode {
	case "stdio":
		logger.Infof("Using stdio transport")
	case "http":
		logger.Infof("Using streamable HTTP transport on %s:%d%s", cfg.Server.Address, cfg.Server.Port, cfg.Server.Path)
	case "sse":
		logger.Infof("Using SSE transport on %s:%d", cfg.Server.Address, cfg.Server.Port)
	default:
		return nil, errors.InvalidInput(fmt.Sprintf("unsupported transport mode: %s", cfg.Server.TransportMode))
	}

	mcpSrv := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Server.Name,
		Version: cfg.Server.Version,
	}, nil)

	s := &MCPServer{
		registry: registry,
		server:   mcpSrv,
		address:  cfg.Server.Address,
		port:     cfg.Server.Port,
		stopCh:   make(chan struct{}),
		config:   cfg,
		logger:   logger,

		ownsLogger: ownsLogger,
	}
	s.registerTools()
	return s, nil
}

func serverLogger(cfg *config.Config) (*logging.Logger, error) {
	level := logging.ParseLevel(cfg.Logging.Level)
	if cfg.Logging.FilePath != "" {
		logger, err := logging.FileLogger(cfg.Logging.FilePath, level)
		if err != nil {
			return nil, fmt.Errorf("failed to create file logger: %w", err)
		}
		return logger, nil
	}
	if cfg.Server.TransportMode != "stdio" {
		return logging.New(logging.Options{Level: level}), nil
	}

	execPath, err := os.Executable()
	if err != nil {
		execPath = cfg.Server.Name
	}
	logPath := filepath.Join(filepath.Dir(execPath), cfg.Server.Name+".log")
	logFile, err := osOpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		// Fall back to stderr to avoid corrupting stdout
		return logging.New(logging.Options{Output: os.Stderr, Level: level}), nil
	}
	return logging.New(logging.Options{Output: logFile, Level: level, NoColor: true, CloseOutput: true}), nil
}

// Start serves in the background until ctx is canceled or Stop is called.
func (s *MCPServer) Start(ctx context.Context) error {
	switch s.config.Server.TransportMode {
	case "stdio":
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.server.Run(runCtx, &mcp.StdioTransport{}); err != nil && runCtx.Err() == nil {
				s.logger.Errorf("Error running MCP server: %v", err)
			}
			// stdin closed: the client is gone
			go func() { _ = s.Stop() }()
		}()
	case "http", "sse":
		addr := fmt.Sprintf("%s:%d", s.address, s.port)
		s.httpServer = &http.Server{Addr: addr, Handler: s.httpHandler()}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Errorf("Error running MCP server: %v", err)
			}
		}()
	}

	// Listen for context cancellation
	go func() {
		select {
		case <-ctx.Done():
			if err := s.Stop(); err != nil {
				s.logger.Errorf("Error stopping MCP server: %v", err)
			}
		case <-s.stopCh:
		}
	}()

	return nil
}

// httpHandler returns the handler for the http and sse transports.
func (s *MCPServer) httpHandler() http.Handler {
	getServer := func(_ *http.Request) *mcp.Server {
		return s.server
	}
	if s.config.Server.TransportMode == "sse" {
		return mcp.NewSSEHandler(getServer, nil)
	}

	path := s.config.Server.Path
	if path == "" {
		path = "/mcp"
	}
	mux := http.NewServeMux()
	mux.Handle(path, mcp.NewStreamableHTTPHandler(getServer, nil))
	return mux
}

// Done is closed once the server has stopped.
func (s *MCPServer) Done() <-chan struct{} {
	return s.stopCh
}

// Stop stops the MCP server
func (s *MCPServer) Stop() error {
	s.shutdownMutex.Lock()
	defer s.shutdownMutex.Unlock()

	// Return early if server is already being shut down
	if s.isShuttingDown {
		s.logger.Debugf("Stop called but server is already shutting down, ignoring")
		return nil
	}

	s.isShuttingDown = true

	if s.cancel != nil {
		s.cancel()
	}

	var shutdownErr error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			shutdownErr = errors.Internal(fmt.Errorf("error shutting down MCP server: %w", err))
		}
	}

	s.wg.Wait()
	close(s.stopCh)
	s.logger.Infof("MCP server stopped")
	if s.ownsLogger {
		_ = s.logger.Close()
	}
	return shutdownErr
}
