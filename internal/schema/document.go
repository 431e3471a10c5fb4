package schema

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tenant scope. Every QuickBooks route is prefixed by the company segment,
// which the dispatcher supplies itself.
const (
	TenantParam  = "realmId"
	TenantPrefix = "/v3/company/{realmId}"
)

var httpMethods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true, "trace": true,
}

// Document is an interface description decoded in document order.
type Document struct {
	Paths   []PathItem
	Schemas map[string]*yaml.Node
}

// PathItem holds the operations declared under one route.
type PathItem struct {
	Route      string
	Operations []Operation
}

// Operation is one undecoded method entry.
type Operation struct {
	Method      string
	Summary     string
	Responses   []Response
	RequestBody *yaml.Node
	Parameters  []*yaml.Node
}

// Response is one declared status code.
type Response struct {
	Code        string
	Description string
}

// StripTenantScope removes the company segment from a route template.
func StripTenantScope(route string) string {
	return strings.ReplaceAll(route, TenantPrefix, "")
}

// Parse decodes a JSON or YAML interface description. Mapping order is
// preserved so compilation is deterministic for a given document.
func Parse(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse interface description: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, &SchemaError{Reason: "empty document"}
	}
	top := resolve(root.Content[0])
	if top.Kind != yaml.MappingNode {
		return nil, &SchemaError{Reason: "document root is not a mapping"}
	}

	paths := lookup(top, "paths")
	if paths == nil {
		return nil, &SchemaError{Reason: "document has no paths"}
	}
	doc := &Document{Schemas: make(map[string]*yaml.Node)}
	for _, p := range members(paths) {
		item := PathItem{Route: p.key}
		for _, m := range members(p.value) {
			method := strings.ToLower(m.key)
			if !httpMethods[method] {
				continue
			}
			item.Operations = append(item.Operations, parseOperation(method, m.value))
		}
		doc.Paths = append(doc.Paths, item)
	}

	if schemas := lookup(lookup(top, "components"), "schemas"); schemas != nil {
		for _, s := range members(schemas) {
			doc.Schemas[s.key] = s.value
		}
	}
	return doc, nil
}

func parseOperation(method string, n *yaml.Node) Operation {
	op := Operation{Method: method}
	op.Summary, _ = scalar(lookup(n, "summary"))
	for _, r := range members(lookup(n, "responses")) {
		desc, _ := scalar(lookup(r.value, "description"))
		op.Responses = append(op.Responses, Response{Code: r.key, Description: desc})
	}
	op.RequestBody = lookup(n, "requestBody")
	if params := lookup(n, "parameters"); params != nil && params.Kind == yaml.SequenceNode {
		for _, p := range params.Content {
			op.Parameters = append(op.Parameters, resolve(p))
		}
	}
	return op
}

type member struct {
	key   string
	value *yaml.Node
}

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func members(n *yaml.Node) []member {
	n = resolve(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	out := make([]member, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		out = append(out, member{key: n.Content[i].Value, value: resolve(n.Content[i+1])})
	}
	return out
}

func lookup(n *yaml.Node, key string) *yaml.Node {
	for _, m := range members(n) {
		if m.key == key {
			return m.value
		}
	}
	return nil
}

// scalar returns a present, non-null scalar value.
func scalar(n *yaml.Node) (string, bool) {
	n = resolve(n)
	if n == nil || n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return "", false
	}
	return n.Value, true
}
