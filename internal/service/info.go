package service

import (
	"path"
	"sort"
	"strings"

	"github.com/leapstack-labs/dbtlineage/internal/dag"
	"github.com/leapstack-labs/dbtlineage/internal/lineage"
	"github.com/leapstack-labs/dbtlineage/internal/registry"
)

// ColumnDetails describes one column and, per the selector, its lineage in
// either direction.
type ColumnDetails struct {
	Model       string                  `json:"model" yaml:"model"`
	Name        string                  `json:"name" yaml:"name"`
	DataType    string                  `json:"data_type,omitempty" yaml:"data_type,omitempty"`
	Description string                  `json:"description,omitempty" yaml:"description,omitempty"`
	Lineage     []lineage.ColumnLineage `json:"lineage" yaml:"lineage"`
	Upstream    *LineageReferences      `json:"upstream,omitempty" yaml:"upstream,omitempty"`
	Downstream  *LineageReferences      `json:"downstream,omitempty" yaml:"downstream,omitempty"`
}

// ColumnInfo returns the selected column with the requested directions.
func (s *Service) ColumnInfo(sel Selector) (*ColumnDetails, error) {
	m, c, err := s.column(sel.Model, sel.Column)
	if err != nil {
		return nil, err
	}
	out := &ColumnDetails{
		Model:       m.Name,
		Name:        c.Name,
		DataType:    c.DataType,
		Description: c.Description,
		Lineage:     c.Lineage,
	}
	if out.Lineage == nil {
		out.Lineage = []lineage.ColumnLineage{}
	}
	if sel.Upstream {
		if out.Upstream, err = s.Upstream(m.Name, c.Name); err != nil {
			return nil, err
		}
	}
	if sel.Downstream {
		if out.Downstream, err = s.Downstream(m.Name, c.Name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ModelDetails describes a model and its direct dependencies.
type ModelDetails struct {
	Name         string   `json:"name" yaml:"name"`
	ResourceType string   `json:"resource_type" yaml:"resource_type"`
	Schema       string   `json:"schema,omitempty" yaml:"schema,omitempty"`
	Database     string   `json:"database,omitempty" yaml:"database,omitempty"`
	Description  string   `json:"description,omitempty" yaml:"description,omitempty"`
	Tags         []string `json:"tags" yaml:"tags"`
	Columns      []string `json:"columns" yaml:"columns"`
	Upstream     []string `json:"upstream" yaml:"upstream"`
	Downstream   []string `json:"downstream" yaml:"downstream"`
	StarSources  []string `json:"star_sources,omitempty" yaml:"star_sources,omitempty"`
}

// ModelInfo returns the selected model. Dependencies are listed only for the
// selected directions.
func (s *Service) ModelInfo(sel Selector) (*ModelDetails, error) {
	m, err := s.reg.Model(sel.Model)
	if err != nil {
		return nil, err
	}
	out := &ModelDetails{
		Name:         m.Name,
		ResourceType: m.Type(),
		Schema:       m.Schema,
		Database:     m.Database,
		Description:  m.Description,
		Tags:         nonNil(m.Tags),
		Columns:      m.ColumnNames(),
		Upstream:     []string{},
		Downstream:   []string{},
		StarSources:  m.StarSources,
	}
	if sel.Upstream {
		out.Upstream = m.Upstream
	}
	if sel.Downstream {
		out.Downstream = m.Downstream
	}
	return out, nil
}

// TreeColumn is a column entry of the model tree.
type TreeColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TreeNode is a folder or a model in the model tree.
type TreeNode struct {
	Name         string            `json:"name"`
	Type         string            `json:"type"` // "folder" or "model"
	Children     []*TreeNode       `json:"children,omitempty"`
	ModelName    string            `json:"model_name,omitempty"`
	ResourceType string            `json:"resource_type,omitempty"`
	Columns      []TreeColumn      `json:"columns,omitempty"`
	Exposure     *AffectedExposure `json:"exposure_data,omitempty"`
}

// ModelTree groups models into folders by project path, sources under
// source/<source name> and exposures under exposures. Folders sort before
// models, then by name.
func (s *Service) ModelTree() ([]*TreeNode, error) {
	models, err := s.reg.Models()
	if err != nil {
		return nil, err
	}
	exposures, err := s.reg.Exposures()
	if err != nil {
		return nil, err
	}

	root := &TreeNode{Type: "folder"}
	for _, m := range models {
		leaf := &TreeNode{
			Name:         m.Name,
			Type:         "model",
			ModelName:    m.Name,
			ResourceType: m.Type(),
			Columns:      []TreeColumn{},
		}
		for _, c := range m.Columns() {
			leaf.Columns = append(leaf.Columns, TreeColumn{Name: c.Name, Type: c.DataType})
		}
		root.insert(treePath(m), leaf)
	}
	for _, e := range exposures {
		ae := affectedExposure(e)
		root.insert([]string{"exposures"}, &TreeNode{
			Name:         e.Name,
			Type:         "model",
			ModelName:    e.Name,
			ResourceType: dag.KindExposure.String(),
			Exposure:     &ae,
		})
	}
	root.sort()
	return root.Children, nil
}

func treePath(m *registry.Model) []string {
	if m.ResourceType == dag.KindSource {
		// source.<project>.<source name>.<table>
		parts := strings.Split(m.UniqueID, ".")
		if len(parts) >= 4 {
			return []string{"source", parts[2]}
		}
		return []string{"source"}
	}
	if m.Path == "" {
		return nil
	}
	dir := path.Dir(strings.ReplaceAll(m.Path, "\\", "/"))
	if dir == "." || dir == "/" {
		return nil
	}
	return strings.Split(strings.Trim(dir, "/"), "/")
}

func (n *TreeNode) insert(folders []string, leaf *TreeNode) {
	cur := n
	for _, name := range folders {
		var next *TreeNode
		for _, child := range cur.Children {
			if child.Type == "folder" && child.Name == name {
				next = child
				break
			}
		}
		if next == nil {
			next = &TreeNode{Name: name, Type: "folder"}
			cur.Children = append(cur.Children, next)
		}
		cur = next
	}
	cur.Children = append(cur.Children, leaf)
}

func (n *TreeNode) sort() {
	sort.SliceStable(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if (a.Type == "folder") != (b.Type == "folder") {
			return a.Type == "folder"
		}
		return a.Name < b.Name
	})
	for _, child := range n.Children {
		if child.Type == "folder" {
			child.sort()
		}
	}
}
