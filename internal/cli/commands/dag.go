package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/dbtlineage/internal/cli/output"
	"github.com/leapstack-labs/dbtlineage/internal/dag"
	"github.com/leapstack-labs/dbtlineage/internal/registry"
)

// DAGNode is one node of a DAG level.
type DAGNode struct {
	Name      string   `json:"name" yaml:"name"`
	Kind      dag.Kind `json:"kind" yaml:"kind"`
	DependsOn []string `json:"depends_on" yaml:"depends_on"`
	UsedBy    []string `json:"used_by" yaml:"used_by"`
}

// DAGLevel groups nodes whose dependencies all sit in earlier levels.
type DAGLevel struct {
	Level int       `json:"level" yaml:"level"`
	Nodes []DAGNode `json:"nodes" yaml:"nodes"`
}

// DAGOutput is the structured output of the dag command.
// Focus is set when the graph was narrowed to one model's lineage.
type DAGOutput struct {
	Focus      string     `json:"focus,omitempty" yaml:"focus,omitempty"`
	Levels     []DAGLevel `json:"levels" yaml:"levels"`
	Roots      []string   `json:"roots" yaml:"roots"`
	Leaves     []string   `json:"leaves" yaml:"leaves"`
	TotalNodes int        `json:"total_nodes" yaml:"total_nodes"`
	TotalEdges int        `json:"total_edges" yaml:"total_edges"`
}

// NewDAGCommand creates the dag command.
func NewDAGCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dag [model]",
		Short: "Show the dependency graph",
		Long: `Display the model dependency graph of the dbt project.

Sources, models and exposures are grouped by level: every node depends only
on nodes in earlier levels. Given a model, only that model and everything
upstream or downstream of it is shown.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format (agent-friendly)`,
		Example: `  # Show the DAG
  dbtlineage dag

  # Only what feeds or consumes orders
  dbtlineage dag orders

  # Output as JSON
  dbtlineage dag --output json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			focus := ""
			if len(args) == 1 {
				focus = args[0]
			}
			return runDAG(cmd, focus)
		},
	}

	return cmd
}

func runDAG(cmd *cobra.Command, focus string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	graph, err := cmdCtx.Registry.Graph()
	if err != nil {
		return err
	}
	if focus != "" {
		if graph, err = focusGraph(graph, focus); err != nil {
			return err
		}
	}
	levels, err := graph.ExecutionLevels()
	if err != nil {
		return fmt.Errorf("failed to get execution levels: %w", err)
	}

	out := buildDAGOutput(graph, levels)
	if focus != "" {
		out.Focus = strings.ToLower(focus)
	}
	if ok, err := r.Data(out); ok {
		return err
	}
	if r.EffectiveMode() == output.ModeMarkdown {
		dagMarkdown(r, out)
		return nil
	}
	dagText(r, out)
	return nil
}

// focusGraph narrows graph to the lineage of one node.
func focusGraph(graph *dag.Graph, name string) (*dag.Graph, error) {
	id := strings.ToLower(name)
	if !graph.Has(id) {
		return nil, &registry.ModelNotFoundError{Model: name}
	}
	return graph.Subgraph(graph.Lineage(id)), nil
}

func buildDAGOutput(graph *dag.Graph, levels [][]string) DAGOutput {
	out := DAGOutput{
		Levels:     make([]DAGLevel, 0, len(levels)),
		Roots:      nonNilStrings(graph.Roots()),
		Leaves:     nonNilStrings(graph.Leaves()),
		TotalNodes: graph.NodeCount(),
		TotalEdges: graph.EdgeCount(),
	}
	for i, level := range levels {
		dl := DAGLevel{Level: i, Nodes: make([]DAGNode, 0, len(level))}
		for _, id := range level {
			n := DAGNode{
				Name:      id,
				DependsOn: nonNilStrings(graph.Parents(id)),
				UsedBy:    nonNilStrings(graph.Children(id)),
			}
			if node, ok := graph.Node(id); ok {
				n.Kind = node.Kind
			}
			dl.Nodes = append(dl.Nodes, n)
		}
		out.Levels = append(out.Levels, dl)
	}
	return out
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// dagText outputs DAG in styled text format.
func dagText(r *output.Renderer, out DAGOutput) {
	styles := r.Styles()

	r.Header(1, dagTitle(out))

	for _, level := range out.Levels {
		r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", level.Level)))
		for _, n := range level.Nodes {
			r.Printf("  %s %s\n", styles.ModelPath.Render(n.Name), styles.Muted.Render("("+n.Kind.String()+")"))
			if len(n.DependsOn) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("depends on:"), strings.Join(n.DependsOn, ", "))
			}
			if len(n.UsedBy) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("used by:"), strings.Join(n.UsedBy, ", "))
			}
		}
		r.Println("")
	}

	r.Printf("%s %s\n", styles.Muted.Render("roots:"), strings.Join(out.Roots, ", "))
	r.Printf("%s %s\n", styles.Muted.Render("leaves:"), strings.Join(out.Leaves, ", "))
	r.Println(styles.Muted.Render(fmt.Sprintf("Total: %d nodes, %d dependencies", out.TotalNodes, out.TotalEdges)))
}

func dagTitle(out DAGOutput) string {
	if out.Focus != "" {
		return "Dependency Graph: " + out.Focus
	}
	return "Dependency Graph"
}

// dagMarkdown outputs DAG in markdown format.
func dagMarkdown(r *output.Renderer, out DAGOutput) {
	r.Println(output.FormatHeader(1, dagTitle(out)))
	r.Println("")

	for _, level := range out.Levels {
		levelName := fmt.Sprintf("Level %d", level.Level)
		if level.Level == 0 {
			levelName = "Level 0 (Sources)"
		}
		r.Println(output.FormatHeader(2, levelName))

		for _, n := range level.Nodes {
			r.Printf("- %s (%s)\n", n.Name, n.Kind)
			if len(n.DependsOn) > 0 {
				r.Printf("  - depends on: %s\n", strings.Join(n.DependsOn, ", "))
			}
			if len(n.UsedBy) > 0 {
				r.Printf("  - used by: %s\n", strings.Join(n.UsedBy, ", "))
			}
		}
		r.Println("")
	}

	r.Println(output.FormatHeader(2, "Summary"))
	r.Println(output.FormatKeyValue("Total Nodes", fmt.Sprintf("%d", out.TotalNodes)))
	r.Println(output.FormatKeyValue("Total Dependencies", fmt.Sprintf("%d", out.TotalEdges)))
	r.Println(output.FormatKeyValue("Roots", strings.Join(out.Roots, ", ")))
	r.Println(output.FormatKeyValue("Leaves", strings.Join(out.Leaves, ", ")))
}
