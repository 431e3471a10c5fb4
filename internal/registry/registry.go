package registry

import (
	"fmt"
	"strings"

	"github.com/yourorg/qbmcp/internal/schema"
	"github.com/yourorg/qbmcp/pkg/types"
)

// DuplicateOperationError reports two routes that normalize to one name.
type DuplicateOperationError struct {
	Name   string
	First  string
	Second string
}

func (e *DuplicateOperationError) Error() string {
	return fmt.Sprintf("duplicate operation %q: %s collides with %s", e.Name, e.Second, e.First)
}

// Entry is one registered operation.
type Entry struct {
	Name       string
	Descriptor types.OperationDescriptor
}

// Registry indexes compiled operations by name. It is read-only after New.
type Registry struct {
	entries []Entry
	index   map[string]int
}

var nameReplacer = strings.NewReplacer("/", "_", "-", "_", ":", "_", "{", "", "}", "")

// OperationName builds the public name: method followed by the normalized,
// tenant-stripped route.
func OperationName(method, route string) string {
	return method + nameReplacer.Replace(schema.StripTenantScope(route))
}

// New registers ops in the given order.
func New(ops []types.OperationDescriptor) (*Registry, error) {
	r := &Registry{
		entries: make([]Entry, 0, len(ops)),
		index:   make(map[string]int, len(ops)),
	}
	for _, op := range ops {
		name := OperationName(op.Method, op.Route)
		if i, ok := r.index[name]; ok {
			prev := r.entries[i].Descriptor
			return nil, &DuplicateOperationError{
				Name:   name,
				First:  strings.ToUpper(prev.Method) + " " + prev.Route,
				Second: strings.ToUpper(op.Method) + " " + op.Route,
			}
		}
		r.index[name] = len(r.entries)
		r.entries = append(r.entries, Entry{Name: name, Descriptor: op})
	}
	return r, nil
}

// List returns entries in registration order.
func (r *Registry) List() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Lookup finds an operation by name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	i, ok := r.index[name]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

func (r *Registry) Len() int {
	return len(r.entries)
}
