package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yourorg/qbmcp/internal/binder"
	"github.com/yourorg/qbmcp/internal/dispatch"
	"github.com/yourorg/qbmcp/internal/entity"
	"github.com/yourorg/qbmcp/internal/registry"
	"github.com/yourorg/qbmcp/pkg/types"
)

// Dispatcher is the part of dispatch.Dispatcher the tools use.
type Dispatcher interface {
	Dispatch(ctx context.Context, req types.Request) (dispatch.Response, error)
	Fetch(ctx context.Context, req types.Request) ([]byte, error)
}

// Options wires a Toolset.
type Options struct {
	Registry   *registry.Registry
	Dispatcher Dispatcher
	Entities   *entity.Catalog
	RealmID    string
	// Overrides is an optional tools.json document.
	Overrides []byte
	Logger    *slog.Logger
}

// Build registers the built-in tools followed by one tool per registered
// operation, in registry order.
func Build(opts Options) (*Toolset, error) {
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("tools: dispatcher is required")
	}
	set := NewToolset(opts.Logger)
	builtins := []Tool{
		entitySchemaTool(opts.Entities),
		queryTool(opts.Dispatcher),
		reportTool(opts.Dispatcher, opts.RealmID),
	}
	for _, t := range builtins {
		if err := set.Add(t); err != nil {
			return nil, err
		}
	}
	if opts.Registry != nil {
		for _, e := range opts.Registry.List() {
			if err := set.Add(OperationTool(e, opts.Dispatcher)); err != nil {
				return nil, err
			}
		}
	}
	if len(opts.Overrides) > 0 {
		if err := set.ApplyOverrides(opts.Overrides); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// OperationTool is the single generic handler used for every compiled
// operation.
func OperationTool(e registry.Entry, d Dispatcher) Tool {
	op := e.Descriptor
	return Tool{
		Name:        e.Name,
		Description: Describe(e.Name, op),
		InputSchema: InputSchema(op),
		ReadOnly:    strings.EqualFold(op.Method, "get"),
		Destructive: strings.EqualFold(op.Method, "delete"),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			req, err := binder.Bind(op, args)
			if err != nil {
				return nil, err
			}
			req.Operation = e.Name
			resp, err := d.Dispatch(ctx, req)
			if err != nil {
				return nil, err
			}
			return resp.Body, nil
		},
	}
}

type overrideFile struct {
	Tools []types.ToolDescriptor `json:"tools"`
}

// ApplyOverrides replaces descriptions and input schemas from a tools.json
// document. Entries without a registered tool are skipped with a warning.
func (s *Toolset) ApplyOverrides(data []byte) error {
	var f overrideFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode tool overrides: %w", err)
	}
	for _, d := range f.Tools {
		i, ok := s.index[d.Name]
		if !ok {
			if s.logger != nil {
				s.logger.Warn("tool override has no handler, skipping", "tool", d.Name)
			}
			continue
		}
		if d.Description != "" {
			s.tools[i].Description = d.Description
		}
		if len(d.InputSchema) > 0 {
			in, err := decodeSchema(d.InputSchema)
			if err != nil {
				return fmt.Errorf("tool %s: %w", d.Name, err)
			}
			s.tools[i].InputSchema = in
		}
	}
	return nil
}
