package schema

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yourorg/qbmcp/pkg/types"
)

// SchemaError reports a malformed interface description. It is fatal at startup.
type SchemaError struct {
	Route  string
	Method string
	Key    string
	Reason string
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("schema")
	if e.Route != "" {
		fmt.Fprintf(&b, ": %s %s", strings.ToUpper(e.Method), e.Route)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Key != "" {
		fmt.Fprintf(&b, " %q", e.Key)
	}
	return b.String()
}

// Load parses and compiles an interface description.
func Load(data []byte) ([]types.OperationDescriptor, error) {
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Compile(doc)
}

// Compile turns every (route, method) pair into an OperationDescriptor, in
// path-then-method document order.
func Compile(doc *Document) ([]types.OperationDescriptor, error) {
	if doc == nil {
		return nil, &SchemaError{Reason: "document is nil"}
	}
	var ops []types.OperationDescriptor
	for _, item := range doc.Paths {
		for _, op := range item.Operations {
			d, err := compileOperation(doc, item.Route, op)
			if err != nil {
				return nil, err
			}
			ops = append(ops, d)
		}
	}
	return ops, nil
}

func compileOperation(doc *Document, route string, op Operation) (types.OperationDescriptor, error) {
	desc, err := successDescription(route, op)
	if err != nil {
		return types.OperationDescriptor{}, err
	}
	body, err := compileBody(doc, route, op)
	if err != nil {
		return types.OperationDescriptor{}, err
	}
	params := make([]types.ParameterDescriptor, 0, len(op.Parameters))
	for _, p := range op.Parameters {
		params = append(params, compileParameter(p))
	}
	return types.OperationDescriptor{
		Route:               route,
		Method:              op.Method,
		Summary:             op.Summary,
		Parameters:          params,
		RequestBody:         body,
		ResponseDescription: desc,
	}, nil
}

// successDescription prefers "200", then the first 2xx, then the first 3xx.
func successDescription(route string, op Operation) (string, error) {
	for _, r := range op.Responses {
		if r.Code == "200" {
			return r.Description, nil
		}
	}
	for _, prefix := range []string{"2", "3"} {
		for _, r := range op.Responses {
			if strings.HasPrefix(r.Code, prefix) {
				return r.Description, nil
			}
		}
	}
	return "", &SchemaError{Route: route, Method: op.Method, Reason: "no 2xx or 3xx response declared"}
}

func compileBody(doc *Document, route string, op Operation) (types.RequestBody, error) {
	if op.RequestBody == nil {
		return nil, nil
	}
	content := members(lookup(op.RequestBody, "content"))
	if len(content) == 0 {
		return nil, &SchemaError{Route: route, Method: op.Method, Reason: "request body declares no content"}
	}
	s := lookup(content[0].value, "schema")
	if s == nil {
		return nil, &SchemaError{Route: route, Method: op.Method, Key: content[0].key, Reason: "request body has no schema for media type"}
	}

	if props := lookup(s, "properties"); len(members(props)) > 0 {
		return describeProperties(props), nil
	}
	typ, hasType := scalar(lookup(s, "type"))
	desc, hasDesc := scalar(lookup(s, "description"))
	if hasType && hasDesc {
		return types.RequestBody{{Field: typ, Description: desc}}, nil
	}

	var body types.RequestBody
	for _, m := range members(s) {
		if m.key != "$ref" {
			return nil, &SchemaError{Route: route, Method: op.Method, Key: m.key, Reason: "unrecognized request body schema key"}
		}
		ref, _ := scalar(m.value)
		name := ref[strings.LastIndex(ref, "/")+1:]
		target, ok := doc.Schemas[name]
		if !ok {
			return nil, &SchemaError{Route: route, Method: op.Method, Key: ref, Reason: "unresolved schema reference"}
		}
		props := lookup(target, "properties")
		if len(members(props)) == 0 {
			return nil, &SchemaError{Route: route, Method: op.Method, Key: ref, Reason: "referenced schema has no properties"}
		}
		body = describeProperties(props)
	}
	return body, nil
}

func describeProperties(props *yaml.Node) types.RequestBody {
	ms := members(props)
	body := make(types.RequestBody, 0, len(ms))
	for _, m := range ms {
		desc, ok := scalar(lookup(m.value, "description"))
		if !ok {
			desc = types.NoDescription
		}
		body = append(body, types.BodyField{Field: m.key, Description: desc})
	}
	return body
}

func compileParameter(n *yaml.Node) types.ParameterDescriptor {
	p := types.ParameterDescriptor{
		Name:        "Unnamed",
		Location:    types.LocationUnknown,
		Type:        "unknown",
		Description: types.NoDescription,
	}
	if v, ok := scalar(lookup(n, "name")); ok {
		p.Name = v
	}
	if v, ok := scalar(lookup(n, "in")); ok {
		p.Location = v
	}
	if v, ok := scalar(lookup(n, "required")); ok {
		p.Required, _ = strconv.ParseBool(v)
	}
	if v, ok := scalar(lookup(lookup(n, "schema"), "type")); ok {
		p.Type = v
	}
	if v, ok := scalar(lookup(n, "description")); ok {
		p.Description = v
	}
	return p
}
