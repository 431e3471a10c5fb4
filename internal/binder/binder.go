// Package binder maps flat tool arguments onto a compiled operation.
package binder

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/yourorg/qbmcp/internal/schema"
	"github.com/yourorg/qbmcp/pkg/types"
)

// BindingError names a route placeholder that had no value.
type BindingError struct {
	Placeholder string
	Route       string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("missing path parameter %q for route %s", e.Placeholder, e.Route)
}

var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

// Placeholders lists the {name} segments of a route in order.
func Placeholders(route string) []string {
	var out []string
	for _, m := range placeholderRe.FindAllStringSubmatch(route, -1) {
		out = append(out, m[1])
	}
	return out
}

// HasBody reports whether unconsumed arguments travel as the request body.
func HasBody(method string) bool {
	switch strings.ToUpper(method) {
	case "POST", "PUT", "PATCH":
		return true
	}
	return false
}

// Bind classifies args into path, query and body slots and resolves the
// route. Required-ness is not enforced; only route placeholders are.
func Bind(op types.OperationDescriptor, args map[string]any) (types.Request, error) {
	route := schema.StripTenantScope(op.Route)
	path := make(map[string]string)
	query := make(map[string]any)
	consumed := map[string]bool{schema.TenantParam: true}

	for _, p := range op.Parameters {
		if p.Name == schema.TenantParam || !p.Bindable() {
			continue
		}
		v, ok := args[p.Name]
		if !ok || v == nil {
			continue
		}
		consumed[p.Name] = true
		switch p.Location {
		case types.LocationPath:
			path[p.Name] = fmt.Sprint(v)
		case types.LocationQuery:
			query[p.Name] = v
		}
	}

	var body map[string]any
	if HasBody(op.Method) {
		for k, v := range args {
			if consumed[k] || v == nil {
				continue
			}
			if body == nil {
				body = make(map[string]any)
			}
			body[k] = v
		}
	}

	for _, name := range Placeholders(route) {
		if _, ok := path[name]; !ok {
			return types.Request{}, &BindingError{Placeholder: name, Route: route}
		}
	}
	resolved := placeholderRe.ReplaceAllStringFunc(route, func(m string) string {
		return url.PathEscape(path[m[1:len(m)-1]])
	})

	return types.Request{
		Route:  resolved,
		Method: strings.ToUpper(op.Method),
		Query:  query,
		Body:   body,
	}, nil
}
