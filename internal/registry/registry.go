// Package registry loads dbt artifacts into an immutable set of models with
// per-column lineage. A Registry is loaded exactly once; afterwards it is
// never mutated and may be read from any number of goroutines.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/dbtlineage/internal/artifacts"
	"github.com/leapstack-labs/dbtlineage/internal/dag"
	"github.com/leapstack-labs/dbtlineage/internal/lineage"
	"github.com/leapstack-labs/dbtlineage/pkg/parser"
)

// DefaultConcurrency bounds how many models are resolved at once.
const DefaultConcurrency = 4

// Options configures a Registry.
type Options struct {
	CatalogPath  string
	ManifestPath string
	// Adapter overrides the manifest's adapter_type when choosing the SQL
	// dialect.
	Adapter     string
	Concurrency int
	Logger      *slog.Logger
}

// LoadStats summarizes a load.
type LoadStats struct {
	Models       int           `json:"models" yaml:"models"`
	Sources      int           `json:"sources" yaml:"sources"`
	Exposures    int           `json:"exposures" yaml:"exposures"`
	Columns      int           `json:"columns" yaml:"columns"`
	Resolved     int           `json:"resolved" yaml:"resolved"`
	Skipped      int           `json:"skipped" yaml:"skipped"`
	Failed       int           `json:"failed" yaml:"failed"`
	FailedModels []string      `json:"failed_models,omitempty" yaml:"failed_models,omitempty"`
	Dialect      string        `json:"dialect" yaml:"dialect"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
}

// Registry holds the models of one dbt project.
type Registry struct {
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex // serializes Load
	loaded atomic.Bool

	catalog  *artifacts.Catalog
	manifest *artifacts.Manifest

	models     map[string]*Model
	exposures  map[string]*Exposure
	graph      *dag.Graph
	names      *relationNames
	stats      LoadStats
	snapshotID string
	loadedAt   time.Time
}

// New creates a registry that reads its artifacts from disk on Load.
func New(opts Options) *Registry {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{opts: opts, logger: logger}
}

// NewFromArtifacts creates a registry over already decoded artifacts. The
// path options are ignored.
func NewFromArtifacts(cat *artifacts.Catalog, man *artifacts.Manifest, opts Options) *Registry {
	r := New(opts)
	r.catalog = cat
	r.manifest = man
	return r
}

// Load reads the artifacts, builds the model graph and resolves the column
// lineage of every SQL model. A model whose SQL cannot be parsed is logged and
// counted in Stats().Failed; it does not fail the load.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded.Load() {
		return ErrAlreadyLoaded
	}

	start := time.Now()
	if err := r.readArtifacts(); err != nil {
		return err
	}

	r.models = make(map[string]*Model)
	r.exposures = make(map[string]*Exposure)
	r.names = newRelationNames()
	r.graph = dag.NewGraph()

	r.buildModels()
	r.buildEdges()
	r.buildExposures()

	if err := r.resolveLineage(ctx); err != nil {
		return err
	}

	r.stats.Duration = time.Since(start)
	r.snapshotID = uuid.NewString()
	r.loadedAt = time.Now()
	r.loaded.Store(true)

	r.logger.Info("registry loaded",
		"models", r.stats.Models,
		"sources", r.stats.Sources,
		"exposures", r.stats.Exposures,
		"resolved", r.stats.Resolved,
		"failed", r.stats.Failed,
		"duration", r.stats.Duration,
	)
	return nil
}

func (r *Registry) readArtifacts() error {
	if r.catalog == nil {
		cat, err := artifacts.ReadCatalog(r.opts.CatalogPath)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		r.catalog = cat
	}
	if r.manifest == nil {
		man, err := artifacts.ReadManifest(r.opts.ManifestPath)
		if err != nil {
			return fmt.Errorf("load manifest: %w", err)
		}
		r.manifest = man
	}
	return nil
}

// buildModels creates one model per catalog relation, enriched from the
// manifest.
func (r *Registry) buildModels() {
	for _, entry := range r.catalog.Entries() {
		name, ok := r.manifest.NameOf(entry.UniqueID)
		if !ok {
			continue
		}
		m := newModel(name)
		m.UniqueID = entry.UniqueID
		m.Relation = entry.Metadata.Name
		m.Schema = entry.Metadata.Schema
		m.Database = entry.Metadata.Database
		m.Description = entry.Metadata.Comment

		var declared map[string]artifacts.ManifestColumn
		if r.catalog.IsSource(entry.UniqueID) {
			m.ResourceType = dag.KindSource
			if src, found := r.manifest.Sources[entry.UniqueID]; found {
				declared = src.Columns
				if src.Description != "" {
					m.Description = src.Description
				}
			}
		} else {
			m.ResourceType = dag.ParseKind(resourceTypeOf(entry.UniqueID))
			if node, found := r.manifest.Nodes[entry.UniqueID]; found {
				m.ResourceType = dag.ParseKind(node.ResourceType)
				m.Language = node.Language
				m.Path = node.OriginalFilePath
				m.Tags = node.Tags
				if node.Description != "" {
					m.Description = node.Description
				}
				declared = node.Columns
			}
		}

		for _, colName := range entry.ColumnNames() {
			col := entry.Columns[colName]
			c := &Column{Name: colName, DataType: col.Type, Description: col.Comment, Index: col.Index}
			if d, found := lookupDeclared(declared, colName); found && d.Description != "" {
				c.Description = d.Description
			}
			m.addColumn(c)
		}
		if len(m.order) == 0 {
			addDeclaredColumns(m, declared)
		}

		if prev, dup := r.models[name]; dup {
			r.logger.Warn("duplicate model name in catalog", "model", name, "kept", prev.UniqueID, "dropped", entry.UniqueID)
			continue
		}
		r.models[name] = m
		r.names.register(name, m.Relation)
		r.graph.AddNode(name, m.ResourceType)

		if m.ResourceType == dag.KindSource {
			r.stats.Sources++
		} else {
			r.stats.Models++
		}
		r.stats.Columns += len(m.order)
	}
}

func resourceTypeOf(uniqueID string) string {
	kind, _, _ := strings.Cut(uniqueID, ".")
	return kind
}

func lookupDeclared(declared map[string]artifacts.ManifestColumn, name string) (artifacts.ManifestColumn, bool) {
	for key, c := range declared {
		if strings.EqualFold(key, name) {
			return c, true
		}
	}
	return artifacts.ManifestColumn{}, false
}

// addDeclaredColumns falls back to the YAML column declarations for
// relations the catalog lists without columns.
func addDeclaredColumns(m *Model, declared map[string]artifacts.ManifestColumn) {
	keys := make([]string, 0, len(declared))
	for key := range declared {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for i, key := range keys {
		d := declared[key]
		name := d.Name
		if name == "" {
			name = key
		}
		m.addColumn(&Column{Name: name, DataType: d.DataType, Description: d.Description, Index: i + 1})
	}
}

// buildEdges records declared dependencies on the models and in the graph.
// Dependencies absent from the catalog still become graph nodes so the
// dependency structure stays complete.
func (r *Registry) buildEdges() {
	upstream := r.manifest.Upstream()
	downstream := r.manifest.Downstream()

	for _, name := range r.sortedModelNames() {
		m := r.models[name]
		m.Upstream = nonNil(upstream[name])
		m.Downstream = nonNil(downstream[name])
	}

	children := make([]string, 0, len(upstream))
	for child := range upstream {
		children = append(children, child)
	}
	sort.Strings(children)
	for _, child := range children {
		r.ensureNode(child)
		for _, parent := range upstream[child] {
			r.ensureNode(parent)
			if err := r.graph.AddEdge(parent, child); err != nil {
				r.logger.Debug("skipping dependency edge", "from", parent, "to", child, "error", err)
			}
		}
	}
}

func (r *Registry) ensureNode(name string) {
	if r.graph.Has(name) {
		return
	}
	kind := dag.KindModel
	if n, ok := r.manifest.Node(name); ok {
		kind = dag.ParseKind(n.ResourceType)
	} else if _, ok := r.manifest.Source(name); ok {
		kind = dag.KindSource
	}
	r.graph.AddNode(name, kind)
}

func (r *Registry) buildExposures() {
	deps := r.manifest.ExposureDependencies()
	for _, id := range sortedKeys(r.manifest.Exposures) {
		e := r.manifest.Exposures[id]
		name := strings.ToLower(e.Name)
		if _, dup := r.exposures[name]; dup {
			continue
		}
		exp := &Exposure{
			Name:        name,
			UniqueID:    id,
			Type:        e.Type,
			URL:         e.URL,
			Description: e.Description,
			Owner:       e.Owner.Name,
			DependsOn:   nonNil(deps[name]),
		}
		r.exposures[name] = exp

		r.graph.AddNode(name, dag.KindExposure)
		for _, dep := range exp.DependsOn {
			r.ensureNode(dep)
			if err := r.graph.AddEdge(dep, name); err != nil {
				r.logger.Debug("skipping exposure edge", "from", dep, "to", name, "error", err)
			}
		}
	}
	r.stats.Exposures = len(r.exposures)
}

func (r *Registry) dialect() *parser.Dialect {
	adapter := r.opts.Adapter
	if adapter == "" {
		adapter = r.manifest.Metadata.AdapterType
	}
	name := artifacts.DialectForAdapter(adapter)
	if name == "" {
		r.stats.Dialect = "ansi"
		return parser.ANSI
	}
	d, ok := parser.DialectByName(name)
	if !ok {
		r.logger.Warn("unsupported adapter, falling back to ansi SQL", "adapter", adapter)
		r.stats.Dialect = "ansi"
		return parser.ANSI
	}
	r.stats.Dialect = name
	return d
}

type resolution struct {
	result *lineage.Result
	err    error
}

// resolveLineage resolves models concurrently and applies the results in
// sorted model order.
func (r *Registry) resolveLineage(ctx context.Context) error {
	dialect := r.dialect()

	var pending []*Model
	for _, name := range r.sortedModelNames() {
		m := r.models[name]
		if m.ResourceType == dag.KindSource {
			continue
		}
		sql, ok := r.manifest.CompiledSQL(name)
		if !ok || strings.TrimSpace(sql) == "" {
			r.stats.Skipped++
			continue
		}
		m.CompiledSQL = sql
		pending = append(pending, m)
	}

	results := make([]resolution, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, m := range pending {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := lineage.Resolve(m.CompiledSQL,
				lineage.WithDialect(dialect),
				lineage.WithLogger(r.logger.With("model", m.Name)),
			)
			results[i] = resolution{result: res, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("resolve lineage: %w", err)
	}

	for i, m := range pending {
		res := results[i]
		if res.err != nil {
			if !errors.Is(res.err, lineage.ErrMalformedQuery) {
				return fmt.Errorf("resolve lineage of %s: %w", m.Name, res.err)
			}
			r.logger.Warn("skipping model with malformed SQL", "model", m.Name, "error", res.err)
			r.stats.Failed++
			r.stats.FailedModels = append(r.stats.FailedModels, m.Name)
			continue
		}
		r.apply(m, res.result)
		r.stats.Resolved++
	}
	return nil
}

// apply stores resolved facts on the model's columns. Output columns the
// catalog does not know are dropped.
func (r *Registry) apply(m *Model, res *lineage.Result) {
	for _, name := range res.ColumnNames() {
		c, ok := m.columns[name]
		if !ok {
			r.logger.Debug("lineage for column not in catalog", "model", m.Name, "column", name)
			continue
		}
		c.Lineage = r.names.rewriteFacts(res.Columns[name])
	}

	m.StarSources = r.names.rewriteTables(res.StarSources)
	if len(m.StarSources) == 0 {
		m.StarSources = nil
		return
	}

	// Columns still unresolved come through a star: attribute each to the
	// first star source that has it.
	for _, name := range m.order {
		c := m.columns[name]
		if c.Resolved() {
			continue
		}
		for _, src := range m.StarSources {
			if sm, ok := r.models[src]; ok && sm.HasColumn(name) {
				c.Lineage = []lineage.ColumnLineage{{
					SourceColumns:      []string{src + "." + name},
					TransformationType: lineage.Direct,
				}}
				break
			}
		}
	}
}

func (r *Registry) sortedModelNames() []string {
	return sortedKeys(r.models)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (r *Registry) checkLoaded() error {
	if !r.loaded.Load() {
		return ErrRegistryNotLoaded
	}
	return nil
}

// Model returns a model by case-insensitive name.
func (r *Registry) Model(name string) (*Model, error) {
	if err := r.checkLoaded(); err != nil {
		return nil, err
	}
	m, ok := r.models[strings.ToLower(name)]
	if !ok {
		return nil, &ModelNotFoundError{Model: name}
	}
	return m, nil
}

// Models returns every model sorted by name.
func (r *Registry) Models() ([]*Model, error) {
	if err := r.checkLoaded(); err != nil {
		return nil, err
	}
	out := make([]*Model, 0, len(r.models))
	for _, name := range r.sortedModelNames() {
		out = append(out, r.models[name])
	}
	return out, nil
}

// Column returns a column of a model.
func (r *Registry) Column(model, column string) (*Column, error) {
	m, err := r.Model(model)
	if err != nil {
		return nil, err
	}
	c, ok := m.Column(column)
	if !ok {
		return nil, &ColumnNotFoundError{Model: m.Name, Column: column}
	}
	return c, nil
}

// Exposure returns an exposure by case-insensitive name.
func (r *Registry) Exposure(name string) (*Exposure, error) {
	if err := r.checkLoaded(); err != nil {
		return nil, err
	}
	e, ok := r.exposures[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("exposure %q: %w", name, ErrModelNotFound)
	}
	return e, nil
}

// Exposures returns every exposure sorted by name.
func (r *Registry) Exposures() ([]*Exposure, error) {
	if err := r.checkLoaded(); err != nil {
		return nil, err
	}
	out := make([]*Exposure, 0, len(r.exposures))
	for _, name := range sortedKeys(r.exposures) {
		out = append(out, r.exposures[name])
	}
	return out, nil
}

// IsExposure reports whether name is an exposure. It is false before load.
func (r *Registry) IsExposure(name string) bool {
	if r.checkLoaded() != nil {
		return false
	}
	_, ok := r.exposures[strings.ToLower(name)]
	return ok
}

// Graph returns the dependency graph. Callers must not modify it.
func (r *Registry) Graph() (*dag.Graph, error) {
	if err := r.checkLoaded(); err != nil {
		return nil, err
	}
	return r.graph, nil
}

// Stats returns the load summary.
func (r *Registry) Stats() (LoadStats, error) {
	if err := r.checkLoaded(); err != nil {
		return LoadStats{}, err
	}
	return r.stats, nil
}

// SnapshotID identifies this load. Every load gets a fresh id.
func (r *Registry) SnapshotID() (string, error) {
	if err := r.checkLoaded(); err != nil {
		return "", err
	}
	return r.snapshotID, nil
}

// LoadedAt returns when the load completed, or the zero time before load.
func (r *Registry) LoadedAt() time.Time {
	if r.checkLoaded() != nil {
		return time.Time{}
	}
	return r.loadedAt
}

// Project returns the dbt project name from the manifest.
func (r *Registry) Project() string {
	if r.checkLoaded() != nil {
		return ""
	}
	return r.manifest.Metadata.ProjectName
}
