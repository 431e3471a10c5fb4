// Package tools turns compiled operations and the built-in report, query
// and entity helpers into callable tools.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/yourorg/qbmcp/pkg/types"
)

// Handler runs one tool call. The result is marshaled to JSON.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is one advertised, callable tool.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
	Handler     Handler
	// ReadOnly tools never change the company file; Destructive ones may
	// remove data from it.
	ReadOnly    bool
	Destructive bool
}

// UnknownToolError is returned when a call names no registered tool.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// Toolset holds tools in registration order.
type Toolset struct {
	tools  []Tool
	index  map[string]int
	logger *slog.Logger
}

func NewToolset(logger *slog.Logger) *Toolset {
	return &Toolset{index: make(map[string]int), logger: logger}
}

// Add registers a tool. Names must be unique.
func (s *Toolset) Add(t Tool) error {
	if t.Handler == nil {
		return fmt.Errorf("tool %s has no handler", t.Name)
	}
	if _, ok := s.index[t.Name]; ok {
		return fmt.Errorf("tool %s registered twice", t.Name)
	}
	if t.InputSchema == nil {
		t.InputSchema = &jsonschema.Schema{Type: "object"}
	}
	s.index[t.Name] = len(s.tools)
	s.tools = append(s.tools, t)
	return nil
}

// Lookup returns a registered tool.
func (s *Toolset) Lookup(name string) (Tool, bool) {
	i, ok := s.index[name]
	if !ok {
		return Tool{}, false
	}
	return s.tools[i], true
}

// List returns tools in registration order.
func (s *Toolset) List() []Tool {
	return append([]Tool(nil), s.tools...)
}

func (s *Toolset) Len() int {
	return len(s.tools)
}

// Catalog returns the advertised descriptors.
func (s *Toolset) Catalog() ([]types.ToolDescriptor, error) {
	out := make([]types.ToolDescriptor, 0, len(s.tools))
	for _, t := range s.tools {
		schemaJSON, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("marshal input schema for %s: %w", t.Name, err)
		}
		out = append(out, types.ToolDescriptor{Name: t.Name, Description: t.Description, InputSchema: schemaJSON})
	}
	return out, nil
}

// Call decodes raw arguments, runs the named tool and returns its JSON result.
func (s *Toolset) Call(ctx context.Context, name string, input json.RawMessage) (string, error) {
	t, ok := s.Lookup(name)
	if !ok {
		return "", &UnknownToolError{Name: name}
	}
	args, err := DecodeArgs(input)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	if s.logger != nil {
		s.logger.Debug("tool call", "tool", name, "args", len(args))
	}
	result, err := t.Handler(ctx, args)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("tool call failed", "tool", name, "error", err)
		}
		return "", fmt.Errorf("error executing %s: %w", name, err)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("%s: encode result: %w", name, err)
	}
	return string(data), nil
}

// DecodeArgs reads a flat argument object. Numbers stay json.Number so ids
// and amounts pass through unchanged. A lone "kwargs" string of the form
// "key=value", sent by some clients, is unpacked into one argument.
func DecodeArgs(input json.RawMessage) (map[string]any, error) {
	args := make(map[string]any)
	trimmed := bytes.TrimSpace(input)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return args, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if kw, ok := args["kwargs"].(string); ok && len(args) == 1 {
		if key, value, found := strings.Cut(kw, "="); found && strings.TrimSpace(key) != "" {
			return map[string]any{strings.TrimSpace(key): value}, nil
		}
	}
	return args, nil
}
