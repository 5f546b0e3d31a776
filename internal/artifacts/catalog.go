package artifacts

import (
	"encoding/json"
	"os"
	"sort"
	"strings"
)

// Catalog is the subset of catalog.json lineage needs.
type Catalog struct {
	Nodes   map[string]CatalogEntry `json:"nodes"`
	Sources map[string]CatalogEntry `json:"sources"`
}

// CatalogEntry describes one relation in the warehouse.
type CatalogEntry struct {
	UniqueID string                   `json:"unique_id"`
	Metadata CatalogMetadata          `json:"metadata"`
	Columns  map[string]CatalogColumn `json:"columns"`
}

// CatalogMetadata holds relation level metadata.
type CatalogMetadata struct {
	Name     string `json:"name"`
	Schema   string `json:"schema"`
	Database string `json:"database"`
	Type     string `json:"type"`
	Comment  string `json:"comment"`
}

// CatalogColumn is one physical column.
type CatalogColumn struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Comment string `json:"comment"`
	Index   int    `json:"index"`
}

// ReadCatalog reads and decodes a catalog.json file.
func ReadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ArtifactError{Path: path, Err: err}
	}
	cat, err := ParseCatalog(data)
	if err != nil {
		return nil, &ArtifactError{Path: path, Err: err}
	}
	return cat, nil
}

// ParseCatalog decodes catalog.json content. Relation and column names are
// lower-cased.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, err
	}
	normalizeEntries(cat.Nodes)
	normalizeEntries(cat.Sources)
	return &cat, nil
}

func normalizeEntries(entries map[string]CatalogEntry) {
	for id, e := range entries {
		if e.UniqueID == "" {
			e.UniqueID = id
		}
		e.Metadata.Name = strings.ToLower(e.Metadata.Name)
		cols := make(map[string]CatalogColumn, len(e.Columns))
		for key, col := range e.Columns {
			if col.Name == "" {
				col.Name = key
			}
			col.Name = strings.ToLower(col.Name)
			cols[col.Name] = col
		}
		e.Columns = cols
		entries[id] = e
	}
}

// Entries returns catalog nodes followed by catalog sources, each sorted by
// unique id.
func (c *Catalog) Entries() []CatalogEntry {
	out := make([]CatalogEntry, 0, len(c.Nodes)+len(c.Sources))
	out = append(out, sortedEntries(c.Nodes)...)
	out = append(out, sortedEntries(c.Sources)...)
	return out
}

// IsSource reports whether the entry came from the sources section.
func (c *Catalog) IsSource(uniqueID string) bool {
	_, ok := c.Sources[uniqueID]
	return ok
}

func sortedEntries(entries map[string]CatalogEntry) []CatalogEntry {
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]CatalogEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, entries[id])
	}
	return out
}

// ColumnNames returns column names in table order.
func (e CatalogEntry) ColumnNames() []string {
	cols := make([]CatalogColumn, 0, len(e.Columns))
	for _, col := range e.Columns {
		cols = append(cols, col)
	}
	sort.Slice(cols, func(i, j int) bool {
		if cols[i].Index != cols[j].Index {
			return cols[i].Index < cols[j].Index
		}
		return cols[i].Name < cols[j].Name
	})
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	return names
}
