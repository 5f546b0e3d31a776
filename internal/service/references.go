package service

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"

	"github.com/leapstack-labs/dbtlineage/internal/lineage"
)

// Reserved keys of the serialized LineageReferences. They are never model
// names.
const (
	KeyExposures  = "exposures"
	KeySources    = "sources"
	KeyDirectRefs = "direct_refs"
)

// LineageReferences is the result of an upstream or downstream query.
//
// Models maps model name to column name to the lineage fact that links the
// column to the queried one. It serializes flat: model names as keys, next
// to the reserved keys exposures, sources and direct_refs.
type LineageReferences struct {
	Models     map[string]map[string]lineage.ColumnLineage
	Exposures  []string
	Sources    []string
	DirectRefs []string

	// withExposures keeps an empty exposures key in the serialized form.
	withExposures bool
}

// NewLineageReferences returns empty references.
func NewLineageReferences() *LineageReferences {
	return &LineageReferences{Models: make(map[string]map[string]lineage.ColumnLineage)}
}

// addModelColumn records a fact. The first fact recorded for a column wins.
func (r *LineageReferences) addModelColumn(model, column string, fact lineage.ColumnLineage) {
	cols, ok := r.Models[model]
	if !ok {
		cols = make(map[string]lineage.ColumnLineage)
		r.Models[model] = cols
	}
	if _, exists := cols[column]; !exists {
		cols[column] = fact
	}
}

func (r *LineageReferences) addSource(s string) {
	r.Sources = insertSorted(r.Sources, s)
}

func (r *LineageReferences) addDirectRef(s string) {
	r.DirectRefs = insertSorted(r.DirectRefs, s)
}

func (r *LineageReferences) addExposure(s string) {
	r.Exposures = insertSorted(r.Exposures, s)
}

func insertSorted(list []string, s string) []string {
	i, found := slices.BinarySearch(list, s)
	if found {
		return list
	}
	return slices.Insert(list, i, s)
}

// ModelNames returns the models with recorded columns, sorted.
func (r *LineageReferences) ModelNames() []string {
	names := make([]string, 0, len(r.Models))
	for name := range r.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ColumnNames returns the recorded columns of a model, sorted.
func (r *LineageReferences) ColumnNames(model string) []string {
	cols := r.Models[model]
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether model.column was recorded.
func (r *LineageReferences) Has(model, column string) bool {
	_, ok := r.Models[model][column]
	return ok
}

// Empty reports whether nothing at all was found.
func (r *LineageReferences) Empty() bool {
	return len(r.Models) == 0 && len(r.Exposures) == 0 && len(r.Sources) == 0 && len(r.DirectRefs) == 0
}

// flat builds the serialized form. encoding/json and yaml.v3 both emit map
// keys sorted.
func (r *LineageReferences) flat() map[string]any {
	out := make(map[string]any, len(r.Models)+3)
	for model, cols := range r.Models {
		out[model] = cols
	}
	if len(r.Exposures) > 0 || r.withExposures {
		out[KeyExposures] = nonNil(r.Exposures)
	}
	if len(r.Sources) > 0 {
		out[KeySources] = r.Sources
	}
	if len(r.DirectRefs) > 0 {
		out[KeyDirectRefs] = r.DirectRefs
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// MarshalJSON renders the flat form.
func (r *LineageReferences) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.flat())
}

// MarshalYAML renders the flat form.
func (r *LineageReferences) MarshalYAML() (any, error) {
	return r.flat(), nil
}

// UnmarshalJSON reads the flat form.
func (r *LineageReferences) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = *NewLineageReferences()
	for key, value := range raw {
		var err error
		switch key {
		case KeyExposures:
			r.withExposures = true
			err = json.Unmarshal(value, &r.Exposures)
		case KeySources:
			err = json.Unmarshal(value, &r.Sources)
		case KeyDirectRefs:
			err = json.Unmarshal(value, &r.DirectRefs)
		default:
			var cols map[string]lineage.ColumnLineage
			err = json.Unmarshal(value, &cols)
			r.Models[key] = cols
		}
		if err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
	}
	sort.Strings(r.Exposures)
	sort.Strings(r.Sources)
	sort.Strings(r.DirectRefs)
	return nil
}
