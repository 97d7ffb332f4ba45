package metadata

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SchemaEntry names a component kind and the schema locator it is
// registered under.
type SchemaEntry struct {
	Name    string `yaml:"name"`
	Locator string `yaml:"locator"`
	Note    string `yaml:"note"`
}

// SchemaTable is the component table loaded at bootstrap.
type SchemaTable struct {
	entries []SchemaEntry
	byName  map[string]*SchemaEntry
}

// LoadSchemaTable loads components.yaml.
func LoadSchemaTable(path string) (*SchemaTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read component table: %w", err)
	}
	var entries []SchemaEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse component table: %w", err)
	}
	t := &SchemaTable{
		entries: entries,
		byName:  make(map[string]*SchemaEntry, len(entries)),
	}
	for i := range t.entries {
		e := &t.entries[i]
		if e.Name == "" || e.Locator == "" {
			return nil, fmt.Errorf("component table entry %d: name and locator required", i)
		}
		if _, dup := t.byName[e.Name]; dup {
			return nil, fmt.Errorf("component table: duplicate name %q", e.Name)
		}
		t.byName[e.Name] = e
	}
	return t, nil
}

// Get returns the entry for name, or nil if none.
func (t *SchemaTable) Get(name string) *SchemaEntry {
	return t.byName[name]
}

// Entries returns the entries in file order.
func (t *SchemaTable) Entries() []SchemaEntry {
	return t.entries
}

// Count returns the number of entries loaded.
func (t *SchemaTable) Count() int {
	return len(t.entries)
}
