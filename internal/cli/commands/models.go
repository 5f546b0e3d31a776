package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/dbtlineage/internal/cli/output"
	"github.com/leapstack-labs/dbtlineage/internal/dag"
	"github.com/leapstack-labs/dbtlineage/internal/registry"
	"github.com/leapstack-labs/dbtlineage/internal/service"
)

// ModelsOptions holds options for the models command.
type ModelsOptions struct {
	ResourceType string
	Tree         bool
}

// ModelSummary is one row of the models listing.
type ModelSummary struct {
	Name         string   `json:"name" yaml:"name"`
	ResourceType string   `json:"resource_type" yaml:"resource_type"`
	Schema       string   `json:"schema,omitempty" yaml:"schema,omitempty"`
	Columns      int      `json:"columns" yaml:"columns"`
	Upstream     []string `json:"upstream" yaml:"upstream"`
	Downstream   []string `json:"downstream" yaml:"downstream"`
}

// ModelsOutput is the structured output of the models command.
type ModelsOutput struct {
	Project string              `json:"project" yaml:"project"`
	Models  []ModelSummary      `json:"models" yaml:"models"`
	Stats   registry.LoadStats  `json:"stats" yaml:"stats"`
	Tree    []*service.TreeNode `json:"tree,omitempty" yaml:"tree,omitempty"`
}

// NewModelsCommand creates the models command.
func NewModelsCommand() *cobra.Command {
	opts := &ModelsOptions{}

	cmd := &cobra.Command{
		Use:     "models",
		Aliases: []string{"ls"},
		Short:   "List models, seeds, snapshots and sources",
		Long: `List every node of the dbt project known to the catalog, with its
column count and direct dependencies.`,
		Example: `  # List everything
  dbtlineage models

  # Only sources
  dbtlineage models --type source

  # Folder tree as JSON
  dbtlineage models --tree -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runModels(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.ResourceType, "type", "", "Only list this resource type (model|seed|snapshot|source)")
	cmd.Flags().BoolVar(&opts.Tree, "tree", false, "Group models into folders by project path")
	_ = cmd.RegisterFlagCompletionFunc("type", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"model", "seed", "snapshot", "source"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// nodesOfType returns the names of every graph node of the given resource type.
func nodesOfType(reg *registry.Registry, typ string) (map[string]bool, error) {
	kind := dag.ParseKind(typ)
	if !strings.EqualFold(kind.String(), typ) {
		return nil, fmt.Errorf("unknown resource type %q", typ)
	}
	graph, err := reg.Graph()
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool)
	for _, id := range graph.NodesOfKind(kind) {
		names[id] = true
	}
	return names, nil
}

func runModels(cmd *cobra.Command, opts *ModelsOptions) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	models, err := cmdCtx.Registry.Models()
	if err != nil {
		return err
	}
	stats, err := cmdCtx.Registry.Stats()
	if err != nil {
		return err
	}

	out := ModelsOutput{
		Project: cmdCtx.Registry.Project(),
		Models:  []ModelSummary{},
		Stats:   stats,
	}
	var only map[string]bool
	if filter := strings.TrimSpace(opts.ResourceType); filter != "" {
		if only, err = nodesOfType(cmdCtx.Registry, filter); err != nil {
			return err
		}
	}
	for _, m := range models {
		if only != nil && !only[m.Name] {
			continue
		}
		out.Models = append(out.Models, ModelSummary{
			Name:         m.Name,
			ResourceType: m.Type(),
			Schema:       m.Schema,
			Columns:      len(m.ColumnNames()),
			Upstream:     m.Upstream,
			Downstream:   m.Downstream,
		})
	}
	if opts.Tree {
		if out.Tree, err = cmdCtx.Service.ModelTree(); err != nil {
			return err
		}
	}

	if ok, err := r.Data(out); ok {
		return err
	}

	if opts.Tree {
		r.Header(1, "Project: "+out.Project)
		renderTree(r, out.Tree, 0)
		return nil
	}

	r.Header(1, fmt.Sprintf("Models (%d)", len(out.Models)))
	rows := make([][]string, 0, len(out.Models))
	for _, m := range out.Models {
		rows = append(rows, []string{
			m.Name,
			m.ResourceType,
			m.Schema,
			strconv.Itoa(m.Columns),
			output.FormatList(m.Upstream),
			output.FormatList(m.Downstream),
		})
	}
	r.Table([]string{"name", "type", "schema", "columns", "upstream", "downstream"}, rows)
	r.Println()
	r.Muted(fmt.Sprintf("%d columns, %d resolved, %d failed, dialect %s",
		stats.Columns, stats.Resolved, stats.Failed, stats.Dialect))
	return nil
}

func renderTree(r *output.Renderer, nodes []*service.TreeNode, depth int) {
	styles := r.Styles()
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		if n.Type == "folder" {
			name := n.Name + "/"
			if r.EffectiveMode() == output.ModeText {
				name = styles.Bold.Render(name)
			}
			r.Printf("%s- %s\n", indent, name)
			renderTree(r, n.Children, depth+1)
			continue
		}
		name := n.Name
		if r.EffectiveMode() == output.ModeText {
			name = styles.ModelPath.Render(name)
		}
		r.Printf("%s- %s (%s, %d columns)\n", indent, name, n.ResourceType, len(n.Columns))
	}
}
