package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/yourorg/qbmcp/internal/binder"
	"github.com/yourorg/qbmcp/internal/schema"
	"github.com/yourorg/qbmcp/pkg/types"
)

type paramDoc struct {
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Type        string `json:"type"`
	In          string `json:"in"`
}

// Describe builds the tool description for an operation: summary, the
// success outcome when it is not plain "OK", the body structure and the
// caller-visible parameters.
func Describe(name string, op types.OperationDescriptor) string {
	var b strings.Builder
	summary := strings.TrimSpace(op.Summary)
	if summary == "" {
		summary = titleFromName(name)
	}
	b.WriteString(strings.TrimSuffix(summary, "."))
	b.WriteString(". ")
	if op.ResponseDescription != "" && op.ResponseDescription != "OK" {
		fmt.Fprintf(&b, "If successful, the outcome will be %q. ", op.ResponseDescription)
	}
	if len(op.RequestBody) > 0 {
		data, _ := json.Marshal(op.RequestBody.Map())
		fmt.Fprintf(&b, "The request body should be a JSON object with the following structure: %s. ", data)
	}
	params := make(map[string]paramDoc)
	for _, p := range visibleParams(op) {
		params[p.Name] = paramDoc{Description: p.Description, Required: p.Required, Type: p.Type, In: p.Location}
	}
	if len(params) > 0 {
		data, _ := json.MarshalIndent(params, "", "  ")
		fmt.Fprintf(&b, "Parameters: %s. ", data)
	}
	return strings.TrimSpace(b.String())
}

// titleFromName turns "get_bill_billId" into "Get bill billId".
func titleFromName(name string) string {
	words := strings.Fields(strings.ReplaceAll(name, "_", " "))
	if len(words) == 0 {
		return name
	}
	words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	return strings.Join(words, " ")
}

func visibleParams(op types.OperationDescriptor) []types.ParameterDescriptor {
	var out []types.ParameterDescriptor
	for _, p := range op.Parameters {
		if p.Name == schema.TenantParam {
			continue
		}
		out = append(out, p)
	}
	return out
}

// InputSchema derives the argument schema of an operation tool. Path
// placeholders are required; other required flags are advisory and only
// listed when the parameter is bindable.
func InputSchema(op types.OperationDescriptor) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema),
	}
	placeholders := make(map[string]bool)
	for _, name := range binder.Placeholders(schema.StripTenantScope(op.Route)) {
		placeholders[name] = true
	}
	for _, p := range visibleParams(op) {
		if !p.Bindable() {
			continue
		}
		prop := &jsonschema.Schema{Description: p.Description}
		prop.Type, prop.Format = inferType(p.Type)
		if p.Location == types.LocationPath {
			prop.Type = ""
			prop.Types = []string{"string", "integer"}
		}
		s.Properties[p.Name] = prop
		s.PropertyOrder = append(s.PropertyOrder, p.Name)
		if placeholders[p.Name] || (p.Required && p.Location == types.LocationPath) {
			s.Required = append(s.Required, p.Name)
		}
	}
	if binder.HasBody(op.Method) {
		for _, f := range op.RequestBody {
			if _, ok := s.Properties[f.Field]; ok {
				continue
			}
			s.Properties[f.Field] = &jsonschema.Schema{Description: f.Description}
			s.PropertyOrder = append(s.PropertyOrder, f.Field)
		}
	}
	return s
}

// inferType maps a declared parameter type onto a JSON Schema type and
// format. Unknown types are left open.
func inferType(t string) (string, string) {
	lt := strings.ToLower(t)
	switch {
	case strings.Contains(lt, "datetime"), strings.Contains(lt, "date-time"):
		return "string", "date-time"
	case lt == "date":
		return "string", "date"
	case strings.Contains(lt, "integer"):
		return "integer", ""
	case strings.Contains(lt, "number"):
		return "number", ""
	case strings.Contains(lt, "boolean"):
		return "boolean", ""
	case strings.Contains(lt, "array"):
		return "array", ""
	case strings.Contains(lt, "object"):
		return "object", ""
	case strings.Contains(lt, "string"):
		return "string", ""
	default:
		return "", ""
	}
}
