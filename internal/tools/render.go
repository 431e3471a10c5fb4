package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/yourorg/qbmcp/pkg/types"
)

// RenderMarkdown writes outputDir/tools.md.
func RenderMarkdown(catalog []types.ToolDescriptor, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	data, err := Markdown(catalog)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, "tools.md"), data, 0o644)
}

// Markdown renders the catalogue as one section per tool.
func Markdown(catalog []types.ToolDescriptor) ([]byte, error) {
	b := &strings.Builder{}
	fmt.Fprintln(b, "# QuickBooks Tools")
	fmt.Fprintf(b, "\n%d tools.\n", len(catalog))
	for _, t := range catalog {
		fmt.Fprintf(b, "\n## %s\n\n", t.Name)
		fmt.Fprintf(b, "%s\n", t.Description)
		in, err := decodeSchema(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", t.Name, err)
		}
		if len(in.Properties) > 0 {
			fmt.Fprintln(b, "\n### Arguments")
			b.WriteString(renderArgs(in))
		}
	}
	return []byte(b.String()), nil
}

func renderArgs(s *jsonschema.Schema) string {
	required := make(map[string]bool, len(s.Required))
	for _, r := range s.Required {
		required[r] = true
	}
	b := &strings.Builder{}
	for _, name := range orderedProperties(s) {
		p := s.Properties[name]
		req := "optional"
		if required[name] {
			req = "required"
		}
		typ := p.Type
		if typ == "" && len(p.Types) > 0 {
			typ = strings.Join(p.Types, "|")
		}
		if typ == "" {
			typ = "any"
		}
		fmt.Fprintf(b, "- %s (%s, %s): %s\n", name, typ, req, p.Description)
	}
	return b.String()
}

// orderedProperties follows PropertyOrder, then the remaining names sorted.
func orderedProperties(s *jsonschema.Schema) []string {
	seen := make(map[string]bool, len(s.Properties))
	var out []string
	for _, name := range s.PropertyOrder {
		if _, ok := s.Properties[name]; ok && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	var rest []string
	for name := range s.Properties {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// RenderJSON writes outputDir/tools.json in the shape ApplyOverrides reads.
func RenderJSON(catalog []types.ToolDescriptor, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(overrideFile{Tools: catalog}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, "tools.json"), append(data, '\n'), 0o644)
}

func decodeSchema(raw json.RawMessage) (*jsonschema.Schema, error) {
	s := &jsonschema.Schema{}
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("decode input schema: %w", err)
	}
	return s, nil
}
