// Package entity serves the QuickBooks entity field catalogue.
package entity

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// NotFoundError is returned for an entity the catalogue does not know.
type NotFoundError struct {
	Name      string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("schema not found for entity %q; available entities: %s", e.Name, strings.Join(e.Available, ", "))
}

// Catalog maps entity names to their field descriptors. It is read-only.
type Catalog struct {
	schemas map[string]json.RawMessage
	names   []string
}

// Load decodes a {"Entity": {...fields...}} document.
func Load(data []byte) (*Catalog, error) {
	var schemas map[string]json.RawMessage
	if err := json.Unmarshal(data, &schemas); err != nil {
		return nil, fmt.Errorf("decode entity catalogue: %w", err)
	}
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Catalog{schemas: schemas, names: names}, nil
}

// Names lists entity names in sorted order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Describe returns the field descriptors of one entity.
func (c *Catalog) Describe(name string) (json.RawMessage, error) {
	s, ok := c.schemas[name]
	if !ok {
		return nil, &NotFoundError{Name: name, Available: c.Names()}
	}
	return append(json.RawMessage(nil), s...), nil
}
