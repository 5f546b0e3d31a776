// Package dag holds the model-level dependency graph of a dbt project.
// Nodes are models, seeds, snapshots, sources and exposures; an edge runs
// from a dependency to its dependent. Every accessor returns sorted output.
package dag

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Kind is the resource type of a node.
type Kind int

// Node kinds.
const (
	KindModel Kind = iota
	KindSeed
	KindSnapshot
	KindSource
	KindExposure
)

var kindNames = [...]string{"model", "seed", "snapshot", "source", "exposure"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText renders the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	*k = ParseKind(string(b))
	return nil
}

// ParseKind maps a dbt resource type to a Kind. Unknown types are models.
func ParseKind(s string) Kind {
	for i, name := range kindNames {
		if strings.EqualFold(s, name) {
			return Kind(i)
		}
	}
	return KindModel
}

// Node is a vertex of the graph.
type Node struct {
	// ID is the model, source or exposure name.
	ID   string
	Kind Kind
}

// Graph is a directed dependency graph.
type Graph struct {
	nodes   map[string]*Node
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node, or updates the kind of an existing one.
func (g *Graph) AddNode(id string, kind Kind) {
	if n, exists := g.nodes[id]; exists {
		n.Kind = kind
		return
	}
	g.nodes[id] = &Node{ID: id, Kind: kind}
	g.edges[id] = []string{}
	g.parents[id] = []string{}
}

// AddEdge adds an edge from parent to child (child depends on parent).
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}

	g.edges[parentID] = insertSorted(g.edges[parentID], childID)
	g.parents[childID] = insertSorted(g.parents[childID], parentID)
	return nil
}

func insertSorted(list []string, s string) []string {
	i, found := slices.BinarySearch(list, s)
	if found {
		return list
	}
	return slices.Insert(list, i, s)
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// Has reports whether the graph contains id.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Parents returns the direct dependencies of a node.
func (g *Graph) Parents(id string) []string {
	return slices.Clone(g.parents[id])
}

// Children returns the direct dependents of a node.
func (g *Graph) Children(id string) []string {
	return slices.Clone(g.edges[id])
}

// NodesOfKind returns the sorted IDs of nodes of one kind.
func (g *Graph) NodesOfKind(kind Kind) []string {
	var ids []string
	for _, id := range g.sortedIDs() {
		if g.nodes[id].Kind == kind {
			ids = append(ids, id)
		}
	}
	return ids
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.edges {
		count += len(children)
	}
	return count
}

// CycleError reports a dependency cycle.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "cycle detected: " + strings.Join(e.Path, " -> ")
}

// HasCycle reports whether the graph contains a cycle, along with one cycle
// path. The path found is the same on every call.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make(map[string]string)

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, childID := range g.edges[id] {
			if !visited[childID] {
				path[childID] = id
				if dfs(childID) {
					return true
				}
			} else if recStack[childID] {
				cyclePath = []string{childID}
				for curr := id; curr != childID; curr = path[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{childID}, cyclePath...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for _, id := range g.sortedIDs() {
		if !visited[id] && dfs(id) {
			return true, cyclePath
		}
	}
	return false, nil
}

// ExecutionLevels groups nodes by depth: level 0 holds nodes without
// dependencies, level N nodes whose deepest dependency is at level N-1.
func (g *Graph) ExecutionLevels() ([][]string, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, &CycleError{Path: cyclePath}
	}

	assigned := make(map[string]int)

	var getLevel func(id string) int
	getLevel = func(id string) int {
		if level, ok := assigned[id]; ok {
			return level
		}
		level := 0
		for _, parentID := range g.parents[id] {
			level = max(level, getLevel(parentID)+1)
		}
		assigned[id] = level
		return level
	}

	maxLevel := -1
	for _, id := range g.sortedIDs() {
		maxLevel = max(maxLevel, getLevel(id))
	}

	levels := make([][]string, maxLevel+1)
	for _, id := range g.sortedIDs() {
		levels[assigned[id]] = append(levels[assigned[id]], id)
	}
	return levels, nil
}

// Downstream returns every node reachable from id through child edges,
// excluding id itself.
func (g *Graph) Downstream(id string) []string {
	return g.reach(id, g.edges)
}

// Upstream returns every node id depends on, directly or transitively.
func (g *Graph) Upstream(id string) []string {
	return g.reach(id, g.parents)
}

// Lineage returns id with everything upstream and downstream of it, sorted.
// It is empty when id is not in the graph.
func (g *Graph) Lineage(id string) []string {
	if !g.Has(id) {
		return nil
	}
	out := append(g.Upstream(id), id)
	out = append(out, g.Downstream(id)...)
	sort.Strings(out)
	return out
}

func (g *Graph) reach(id string, next map[string][]string) []string {
	seen := map[string]bool{id: true}
	queue := []string{id}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range next[cur] {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
				queue = append(queue, n)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Roots returns nodes with no dependencies.
func (g *Graph) Roots() []string {
	var roots []string
	for _, id := range g.sortedIDs() {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// Leaves returns nodes with no dependents.
func (g *Graph) Leaves() []string {
	var leaves []string
	for _, id := range g.sortedIDs() {
		if len(g.edges[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	return leaves
}

// Subgraph returns a new graph with only the given nodes and the edges
// between them.
func (g *Graph) Subgraph(nodeIDs []string) *Graph {
	sub := NewGraph()
	for _, id := range nodeIDs {
		if node, exists := g.nodes[id]; exists {
			sub.AddNode(id, node.Kind)
		}
	}
	for _, id := range nodeIDs {
		for _, childID := range g.edges[id] {
			if sub.Has(childID) {
				_ = sub.AddEdge(id, childID)
			}
		}
	}
	return sub
}
