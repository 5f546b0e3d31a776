package dag

import (
	"errors"
	"reflect"
	"testing"
)

// jaffle builds the model graph of a small jaffle-shop project:
//
//	raw_customers -> stg_customers -> customers -> customer_segments -> dashboard
//	raw_orders    -> stg_orders    -> customers
//	                 stg_orders    -> orders -> report
func jaffle(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph()
	g.AddNode("raw_customers", KindSource)
	g.AddNode("raw_orders", KindSource)
	g.AddNode("stg_customers", KindModel)
	g.AddNode("stg_orders", KindModel)
	g.AddNode("customers", KindModel)
	g.AddNode("orders", KindModel)
	g.AddNode("customer_segments", KindModel)
	g.AddNode("dashboard", KindExposure)
	g.AddNode("report", KindExposure)

	edges := [][2]string{
		{"raw_customers", "stg_customers"},
		{"raw_orders", "stg_orders"},
		{"stg_customers", "customers"},
		{"stg_orders", "customers"},
		{"stg_orders", "orders"},
		{"customers", "customer_segments"},
		{"customer_segments", "dashboard"},
		{"orders", "report"},
	}
	for _, e := range edges {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			t.Fatalf("AddEdge(%s, %s): %v", e[0], e[1], err)
		}
	}
	return g
}

func TestGraph_AddNodeAndEdge(t *testing.T) {
	g := NewGraph()

	g.AddNode("a", KindModel)
	g.AddNode("b", KindModel)
	g.AddNode("c", KindSeed)

	if g.NodeCount() != 3 {
		t.Errorf("expected 3 nodes, got %d", g.NodeCount())
	}

	if err := g.AddEdge("a", "b"); err != nil {
		t.Errorf("failed to add edge: %v", err)
	}
	if err := g.AddEdge("b", "c"); err != nil {
		t.Errorf("failed to add edge: %v", err)
	}
	// duplicate edges are ignored
	if err := g.AddEdge("a", "b"); err != nil {
		t.Errorf("failed to add duplicate edge: %v", err)
	}

	if g.EdgeCount() != 2 {
		t.Errorf("expected 2 edges, got %d", g.EdgeCount())
	}
}

func TestGraph_AddNode_UpdatesKind(t *testing.T) {
	g := NewGraph()
	g.AddNode("orders", KindModel)
	g.AddNode("b", KindModel)
	_ = g.AddEdge("orders", "b")
	g.AddNode("orders", KindSnapshot)

	n, ok := g.Node("orders")
	if !ok || n.Kind != KindSnapshot {
		t.Errorf("expected snapshot node, got %+v", n)
	}
	if len(g.Children("orders")) != 1 {
		t.Error("re-adding a node must keep its edges")
	}
}

func TestGraph_AddEdge_InvalidNodes(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", KindModel)

	if err := g.AddEdge("a", "nonexistent"); err == nil {
		t.Error("expected error for nonexistent child node")
	}
	if err := g.AddEdge("nonexistent", "a"); err == nil {
		t.Error("expected error for nonexistent parent node")
	}
}

func TestGraph_AddEdge_SelfLoop(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", KindModel)

	if err := g.AddEdge("a", "a"); err == nil {
		t.Error("expected error for self-loop")
	}
}

func TestGraph_ParentsAndChildren(t *testing.T) {
	g := jaffle(t)

	if got, want := g.Parents("customers"), []string{"stg_customers", "stg_orders"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Parents(customers) = %v, want %v", got, want)
	}
	if got, want := g.Children("stg_orders"), []string{"customers", "orders"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Children(stg_orders) = %v, want %v", got, want)
	}
	if got := g.Parents("missing"); len(got) != 0 {
		t.Errorf("Parents(missing) = %v, want empty", got)
	}

	// returned slices are copies
	p := g.Parents("customers")
	p[0] = "mutated"
	if g.Parents("customers")[0] != "stg_customers" {
		t.Error("Parents must return a copy")
	}
}

func TestGraph_UpstreamDownstream(t *testing.T) {
	g := jaffle(t)

	up := g.Upstream("customer_segments")
	wantUp := []string{"customers", "raw_customers", "raw_orders", "stg_customers", "stg_orders"}
	if !reflect.DeepEqual(up, wantUp) {
		t.Errorf("Upstream = %v, want %v", up, wantUp)
	}

	down := g.Downstream("stg_orders")
	wantDown := []string{"customer_segments", "customers", "dashboard", "orders", "report"}
	if !reflect.DeepEqual(down, wantDown) {
		t.Errorf("Downstream = %v, want %v", down, wantDown)
	}

	if got := g.Downstream("dashboard"); len(got) != 0 {
		t.Errorf("Downstream(leaf) = %v, want empty", got)
	}
}

func TestGraph_HasCycle(t *testing.T) {
	g := jaffle(t)
	if has, _ := g.HasCycle(); has {
		t.Error("expected no cycle")
	}

	_ = g.AddEdge("customers", "stg_customers")
	has, path := g.HasCycle()
	if !has {
		t.Fatal("expected cycle")
	}
	if len(path) < 3 || path[0] != path[len(path)-1] {
		t.Errorf("cycle path should start and end on the same node, got %v", path)
	}

	_, again := g.HasCycle()
	if !reflect.DeepEqual(path, again) {
		t.Errorf("cycle path not deterministic: %v vs %v", path, again)
	}
}

func TestGraph_ExecutionLevels(t *testing.T) {
	g := jaffle(t)

	levels, err := g.ExecutionLevels()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [][]string{
		{"raw_customers", "raw_orders"},
		{"stg_customers", "stg_orders"},
		{"customers", "orders"},
		{"customer_segments", "report"},
		{"dashboard"},
	}
	if !reflect.DeepEqual(levels, want) {
		t.Errorf("ExecutionLevels = %v, want %v", levels, want)
	}
}

func TestGraph_ExecutionLevels_Cycle(t *testing.T) {
	g := NewGraph()
	g.AddNode("a", KindModel)
	g.AddNode("b", KindModel)
	_ = g.AddEdge("a", "b")
	_ = g.AddEdge("b", "a")

	_, err := g.ExecutionLevels()
	var ce *CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if len(ce.Path) != 3 {
		t.Errorf("expected a closed two-node path, got %v", ce.Path)
	}
}

func TestGraph_Lineage(t *testing.T) {
	g := jaffle(t)

	got := g.Lineage("orders")
	want := []string{"customer_segments", "customers", "dashboard", "orders", "raw_customers", "raw_orders", "report", "stg_orders"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Lineage = %v, want %v", got, want)
	}
	if got := g.Lineage("missing"); got != nil {
		t.Errorf("Lineage(missing) = %v, want nil", got)
	}
}

func TestGraph_RootsAndLeaves(t *testing.T) {
	g := jaffle(t)

	if got, want := g.Roots(), []string{"raw_customers", "raw_orders"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Roots = %v, want %v", got, want)
	}
	if got, want := g.Leaves(), []string{"dashboard", "report"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Leaves = %v, want %v", got, want)
	}
}

func TestGraph_NodesOfKind(t *testing.T) {
	g := jaffle(t)

	if got, want := g.NodesOfKind(KindExposure), []string{"dashboard", "report"}; !reflect.DeepEqual(got, want) {
		t.Errorf("NodesOfKind(exposure) = %v, want %v", got, want)
	}
	if got := g.NodesOfKind(KindSeed); len(got) != 0 {
		t.Errorf("NodesOfKind(seed) = %v, want empty", got)
	}
}

func TestGraph_Subgraph(t *testing.T) {
	g := jaffle(t)

	sub := g.Subgraph([]string{"stg_orders", "orders", "report", "missing"})
	if sub.NodeCount() != 3 {
		t.Errorf("expected 3 nodes, got %d", sub.NodeCount())
	}
	if sub.EdgeCount() != 2 {
		t.Errorf("expected 2 edges, got %d", sub.EdgeCount())
	}
	if n, _ := sub.Node("report"); n.Kind != KindExposure {
		t.Errorf("expected kind to be kept, got %v", n.Kind)
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		in   string
		kind Kind
	}{
		{"model", KindModel},
		{"Seed", KindSeed},
		{"snapshot", KindSnapshot},
		{"source", KindSource},
		{"exposure", KindExposure},
		{"analysis", KindModel},
	}
	for _, tt := range tests {
		if got := ParseKind(tt.in); got != tt.kind {
			t.Errorf("ParseKind(%q) = %v, want %v", tt.in, got, tt.kind)
		}
	}
	if KindSource.String() != "source" {
		t.Errorf("unexpected String %q", KindSource.String())
	}
	if Kind(42).String() != "Kind(42)" {
		t.Errorf("unexpected String %q", Kind(42).String())
	}
}
