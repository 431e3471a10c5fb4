// Package mcpserver exposes a Toolset over the Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcpgo "github.com/felixgeelhaar/mcp-go"
	mcpserver "github.com/felixgeelhaar/mcp-go/server"

	"github.com/yourorg/qbmcp/internal/tools"
)

const defaultInstructions = "Tools for the QuickBooks Online accounting API of one company. " +
	"Look up an entity schema with " + tools.EntitySchemaTool + " before writing a query for " + tools.QueryTool + ". " +
	"Reports from " + tools.ReportTool + " come back as flat rows; page through large results with next_page_token."

// Config configures an MCP server.
type Config struct {
	Name         string
	Version      string
	Instructions string
	Tools        *tools.Toolset
	Logger       *slog.Logger
}

// Server wraps an mcp-go server whose tools all delegate to one Toolset.
type Server struct {
	srv    *mcpgo.Server
	tools  *tools.Toolset
	logger *slog.Logger
}

func New(cfg Config) (*Server, error) {
	if cfg.Tools == nil {
		return nil, fmt.Errorf("mcpserver: toolset is nil")
	}
	instructions := cfg.Instructions
	if instructions == "" {
		instructions = defaultInstructions
	}
	info := mcpgo.ServerInfo{
		Name:        cfg.Name,
		Version:     cfg.Version,
		Description: "QuickBooks Online accounting tools",
		Capabilities: mcpgo.Capabilities{
			Tools: true,
		},
	}
	s := &Server{
		srv:    mcpgo.NewServer(info, mcpgo.WithInstructions(instructions)),
		tools:  cfg.Tools,
		logger: cfg.Logger,
	}
	s.srv.Use(serverMiddleware(mcpgo.Recover()), serverMiddleware(mcpgo.RequestID()))
	for _, t := range cfg.Tools.List() {
		desc, err := Advertised(t)
		if err != nil {
			return nil, err
		}
		s.register(t, desc)
	}
	return s, nil
}

// serverMiddleware converts an mcp-go middleware to the server package's
// identically shaped Middleware type accepted by Server.Use.
func serverMiddleware(m mcpgo.Middleware) mcpserver.Middleware {
	return func(next mcpserver.HandlerFunc) mcpserver.HandlerFunc {
		return mcpserver.HandlerFunc(m(mcpgo.MiddlewareHandlerFunc(next)))
	}
}

// register annotates t and binds it to a handler whose input type gives
// mcp-go an object schema to advertise. The built-ins have fixed
// arguments and get a typed schema; operation tools only get "object".
func (s *Server) register(t tools.Tool, desc string) {
	b := s.srv.Tool(t.Name).Description(desc)
	switch {
	case t.ReadOnly:
		b.ReadOnly()
	case t.Destructive:
		b.Destructive()
	}
	call := s.handler(t.Name)
	switch t.Name {
	case tools.EntitySchemaTool:
		b.Handler(func(ctx context.Context, in entitySchemaArgs) (string, error) { return call(ctx, in.raw) })
	case tools.QueryTool:
		b.Handler(func(ctx context.Context, in queryArgs) (string, error) { return call(ctx, in.raw) })
	case tools.ReportTool:
		b.Handler(func(ctx context.Context, in reportArgs) (string, error) { return call(ctx, in.raw) })
	default:
		b.Handler(func(ctx context.Context, in operationArgs) (string, error) { return call(ctx, in.raw) })
	}
}

func (s *Server) handler(name string) func(ctx context.Context, input json.RawMessage) (string, error) {
	return func(ctx context.Context, input json.RawMessage) (string, error) {
		return s.tools.Call(ctx, name, input)
	}
}

// Advertised is the description sent to clients: the tool description
// followed by its input schema, so argument names and types reach the agent.
func Advertised(t tools.Tool) (string, error) {
	if t.InputSchema == nil || len(t.InputSchema.Properties) == 0 {
		return t.Description, nil
	}
	data, err := json.Marshal(t.InputSchema)
	if err != nil {
		return "", fmt.Errorf("tool %s: marshal input schema: %w", t.Name, err)
	}
	return t.Description + "\n\nInput schema: " + string(data), nil
}

// Server returns the underlying mcp-go server.
func (s *Server) Server() *mcpgo.Server {
	return s.srv
}

// ServeStdio runs the server over stdin/stdout.
func (s *Server) ServeStdio(ctx context.Context) error {
	if s.logger != nil {
		s.logger.Info("serving MCP over stdio", "tools", s.tools.Len())
	}
	return mcpgo.ServeStdio(ctx, s.srv)
}

// ServeHTTP runs the server over HTTP.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	if s.logger != nil {
		s.logger.Info("serving MCP over HTTP", "addr", addr, "tools", s.tools.Len())
	}
	return mcpgo.ServeHTTP(ctx, s.srv, addr)
}
