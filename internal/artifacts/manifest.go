package artifacts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Resource types that carry columns in the lineage graph.
const (
	ResourceModel    = "model"
	ResourceSeed     = "seed"
	ResourceSnapshot = "snapshot"
	ResourceSource   = "source"
	ResourceExposure = "exposure"
)

// Manifest is the subset of manifest.json lineage needs.
type Manifest struct {
	Metadata  ManifestMetadata            `json:"metadata"`
	Nodes     map[string]ManifestNode     `json:"nodes"`
	Sources   map[string]ManifestSource   `json:"sources"`
	Exposures map[string]ManifestExposure `json:"exposures"`

	dir    string            // directory holding manifest.json
	byName map[string]string // node name -> unique id
}

// ManifestMetadata identifies the project and warehouse.
type ManifestMetadata struct {
	AdapterType string `json:"adapter_type"`
	ProjectName string `json:"project_name"`
	DbtVersion  string `json:"dbt_version"`
}

// ManifestNode is a model, seed, snapshot, test or other dbt node.
type ManifestNode struct {
	UniqueID         string                    `json:"unique_id"`
	Name             string                    `json:"name"`
	ResourceType     string                    `json:"resource_type"`
	Schema           string                    `json:"schema"`
	Database         string                    `json:"database"`
	Alias            string                    `json:"alias"`
	CompiledSQL      string                    `json:"compiled_sql"`
	CompiledCode     string                    `json:"compiled_code"`
	RawCode          string                    `json:"raw_code"`
	RawSQL           string                    `json:"raw_sql"`
	CompiledPath     string                    `json:"compiled_path"`
	Path             string                    `json:"path"`
	OriginalFilePath string                    `json:"original_file_path"`
	Language         string                    `json:"language"`
	Description      string                    `json:"description"`
	Tags             []string                  `json:"tags"`
	Columns          map[string]ManifestColumn `json:"columns"`
	DependsOn        DependsOn                 `json:"depends_on"`
}

// ManifestColumn is a column declared in a model's YAML.
type ManifestColumn struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	DataType    string `json:"data_type"`
}

// DependsOn lists the unique ids a node depends on.
type DependsOn struct {
	Nodes  []string `json:"nodes"`
	Macros []string `json:"macros"`
}

// ManifestSource is a declared source table.
type ManifestSource struct {
	UniqueID    string                    `json:"unique_id"`
	Name        string                    `json:"name"`
	SourceName  string                    `json:"source_name"`
	Identifier  string                    `json:"identifier"`
	Schema      string                    `json:"schema"`
	Database    string                    `json:"database"`
	Description string                    `json:"description"`
	Columns     map[string]ManifestColumn `json:"columns"`
}

// TableName is the name lineage uses for the source: its identifier when set.
func (s ManifestSource) TableName() string {
	if s.Identifier != "" {
		return strings.ToLower(s.Identifier)
	}
	return strings.ToLower(s.Name)
}

// ManifestExposure is a downstream consumer such as a dashboard.
type ManifestExposure struct {
	UniqueID    string        `json:"unique_id"`
	Name        string        `json:"name"`
	Label       string        `json:"label"`
	Type        string        `json:"type"`
	URL         string        `json:"url"`
	Description string        `json:"description"`
	Owner       ExposureOwner `json:"owner"`
	DependsOn   DependsOn     `json:"depends_on"`
}

// ExposureOwner is the owner block of an exposure.
type ExposureOwner struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ReadManifest reads and decodes a manifest.json file.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ArtifactError{Path: path, Err: err}
	}
	man, err := ParseManifest(data)
	if err != nil {
		return nil, &ArtifactError{Path: path, Err: err}
	}
	man.dir = filepath.Dir(path)
	return man, nil
}

// ParseManifest decodes manifest.json content. Compiled SQL files referenced
// by compiled_path are resolved against the working directory.
func ParseManifest(data []byte) (*Manifest, error) {
	var man Manifest
	if err := json.Unmarshal(data, &man); err != nil {
		return nil, err
	}
	man.index()
	return &man, nil
}

// resourcePriority decides which node owns a name shared by several nodes.
var resourcePriority = map[string]int{
	ResourceModel:    0,
	ResourceSnapshot: 1,
	ResourceSeed:     2,
}

func isLineageNode(resourceType string) bool {
	_, ok := resourcePriority[resourceType]
	return ok
}

func (m *Manifest) index() {
	m.byName = make(map[string]string)
	for _, id := range sortedKeys(m.Nodes) {
		n := m.Nodes[id]
		if n.UniqueID == "" {
			n.UniqueID = id
			m.Nodes[id] = n
		}
		if !isLineageNode(n.ResourceType) {
			continue
		}
		name := strings.ToLower(n.Name)
		if prev, ok := m.byName[name]; ok && resourcePriority[m.Nodes[prev].ResourceType] <= resourcePriority[n.ResourceType] {
			continue
		}
		m.byName[name] = id
	}
}

// Node returns the model, snapshot or seed with the given name.
func (m *Manifest) Node(name string) (ManifestNode, bool) {
	id, ok := m.byName[strings.ToLower(name)]
	if !ok {
		return ManifestNode{}, false
	}
	return m.Nodes[id], true
}

// Source returns the declared source whose table name matches.
func (m *Manifest) Source(name string) (ManifestSource, bool) {
	name = strings.ToLower(name)
	for _, id := range sortedKeys(m.Sources) {
		if s := m.Sources[id]; s.TableName() == name {
			return s, true
		}
	}
	return ManifestSource{}, false
}

// NameOf maps a unique id to the name lineage uses for it. Source ids map to
// the source table name. ok is false for node kinds outside the lineage
// graph, such as tests and macros.
func (m *Manifest) NameOf(uniqueID string) (name string, ok bool) {
	kind, _, _ := strings.Cut(uniqueID, ".")
	switch kind {
	case ResourceModel, ResourceSeed, ResourceSnapshot:
		if n, found := m.Nodes[uniqueID]; found && n.Name != "" {
			return strings.ToLower(n.Name), true
		}
	case ResourceSource:
		if s, found := m.Sources[uniqueID]; found {
			return s.TableName(), true
		}
	case ResourceExposure:
		if e, found := m.Exposures[uniqueID]; found && e.Name != "" {
			return strings.ToLower(e.Name), true
		}
	default:
		return "", false
	}
	return strings.ToLower(uniqueID[strings.LastIndexByte(uniqueID, '.')+1:]), true
}

// Upstream maps every model, seed and snapshot name to the sorted names of
// the nodes and sources it depends on.
func (m *Manifest) Upstream() map[string][]string {
	out := make(map[string][]string)
	for _, id := range sortedKeys(m.Nodes) {
		n := m.Nodes[id]
		if !isLineageNode(n.ResourceType) {
			continue
		}
		name := strings.ToLower(n.Name)
		deps := make(map[string]struct{})
		for _, dep := range n.DependsOn.Nodes {
			if depName, ok := m.NameOf(dep); ok && depName != name {
				deps[depName] = struct{}{}
			}
		}
		out[name] = mergeSorted(out[name], deps)
	}
	return out
}

// Downstream inverts Upstream and adds an edge from every model an exposure
// depends on to the exposure.
func (m *Manifest) Downstream() map[string][]string {
	sets := make(map[string]map[string]struct{})
	add := func(from, to string) {
		if sets[from] == nil {
			sets[from] = make(map[string]struct{})
		}
		sets[from][to] = struct{}{}
	}
	for name, ups := range m.Upstream() {
		for _, up := range ups {
			add(up, name)
		}
	}
	for exposure, deps := range m.ExposureDependencies() {
		for _, dep := range deps {
			add(dep, exposure)
		}
	}
	out := make(map[string][]string, len(sets))
	for name, set := range sets {
		out[name] = mergeSorted(nil, set)
	}
	return out
}

// ExposureDependencies maps exposure names to the sorted names they depend on.
func (m *Manifest) ExposureDependencies() map[string][]string {
	out := make(map[string][]string, len(m.Exposures))
	for _, id := range sortedKeys(m.Exposures) {
		e := m.Exposures[id]
		deps := make(map[string]struct{})
		for _, dep := range e.DependsOn.Nodes {
			if depName, ok := m.NameOf(dep); ok {
				deps[depName] = struct{}{}
			}
		}
		name := strings.ToLower(e.Name)
		out[name] = mergeSorted(out[name], deps)
	}
	return out
}

// CompiledSQL returns the compiled SQL of a node: compiled_code, then
// compiled_sql, then the file at compiled_path. Python models have none.
func (m *Manifest) CompiledSQL(name string) (string, bool) {
	n, ok := m.Node(name)
	if !ok || strings.EqualFold(n.Language, "python") {
		return "", false
	}
	if n.CompiledCode != "" {
		return n.CompiledCode, true
	}
	if n.CompiledSQL != "" {
		return n.CompiledSQL, true
	}
	if n.CompiledPath == "" {
		return "", false
	}
	for _, path := range m.compiledPathCandidates(n.CompiledPath) {
		if data, err := os.ReadFile(path); err == nil {
			return string(data), true
		}
	}
	return "", false
}

// compiledPathCandidates lists where a relative compiled_path may live: the
// project root (parent of target/) and the manifest directory itself.
func (m *Manifest) compiledPathCandidates(p string) []string {
	if filepath.IsAbs(p) {
		return []string{p}
	}
	if m.dir == "" {
		return []string{p}
	}
	return []string{
		filepath.Join(filepath.Dir(m.dir), p),
		filepath.Join(m.dir, p),
	}
}

func mergeSorted(existing []string, set map[string]struct{}) []string {
	for _, s := range existing {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
