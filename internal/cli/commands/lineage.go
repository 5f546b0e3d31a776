package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/dbtlineage/internal/cli/output"
	"github.com/leapstack-labs/dbtlineage/internal/service"
)

// NewLineageCommand creates the lineage command.
func NewLineageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lineage <selector>",
		Short: "Show column lineage",
		Long: `Display where a column comes from and what depends on it.

The selector uses dbt graph operators: a leading + selects upstream
lineage, a trailing + downstream lineage, and no operator both. A selector
without a column shows the model with its direct dependencies.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format (agent-friendly)`,
		Example: `  # Where does customers.customer_lifetime_value come from?
  dbtlineage lineage +customers.customer_lifetime_value

  # What is computed from stg_payments.amount?
  dbtlineage lineage stg_payments.amount+

  # Both directions, as JSON
  dbtlineage lineage orders.amount -o json

  # Model overview
  dbtlineage lineage orders`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLineage(cmd, args[0])
		},
	}
	return cmd
}

func runLineage(cmd *cobra.Command, arg string) error {
	sel, err := service.ParseSelector(arg)
	if err != nil {
		return err
	}

	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	if !sel.HasColumn() {
		info, err := cmdCtx.Service.ModelInfo(sel)
		if err != nil {
			return err
		}
		if ok, err := r.Data(info); ok {
			return err
		}
		renderModelDetails(r, info, sel)
		return nil
	}

	info, err := cmdCtx.Service.ColumnInfo(sel)
	if err != nil {
		return err
	}
	if ok, err := r.Data(info); ok {
		return err
	}
	renderColumnDetails(r, info)
	return nil
}

func renderModelDetails(r *output.Renderer, info *service.ModelDetails, sel service.Selector) {
	r.Header(1, "Model: "+info.Name)
	r.KeyValue("Type", info.ResourceType)
	if info.Database != "" || info.Schema != "" {
		r.KeyValue("Relation", strings.Trim(info.Database+"."+info.Schema, "."))
	}
	if info.Description != "" {
		r.KeyValue("Description", info.Description)
	}
	if len(info.Tags) > 0 {
		r.KeyValue("Tags", output.FormatList(info.Tags))
	}
	r.KeyValue("Columns", output.FormatList(info.Columns))
	if sel.Upstream {
		r.KeyValue("Upstream", output.FormatList(info.Upstream))
	}
	if sel.Downstream {
		r.KeyValue("Downstream", output.FormatList(info.Downstream))
	}
	if len(info.StarSources) > 0 {
		r.KeyValue("Unexpanded *", output.FormatList(info.StarSources))
	}
}

func renderColumnDetails(r *output.Renderer, info *service.ColumnDetails) {
	r.Header(1, "Lineage: "+info.Model+"."+info.Name)
	if info.DataType != "" {
		r.KeyValue("Data type", info.DataType)
	}
	if info.Description != "" {
		r.KeyValue("Description", info.Description)
	}
	for _, fact := range info.Lineage {
		r.KeyValue("Transformation", string(fact.TransformationType))
		r.KeyValue("Reads", output.FormatList(fact.SourceColumns))
		if fact.SQLExpression != "" {
			r.KeyValue("Expression", fact.SQLExpression)
		}
	}
	if len(info.Lineage) == 0 {
		r.Muted("no lineage recorded for this column")
	}
	r.Println()

	if info.Upstream != nil {
		renderReferences(r, "Upstream", info.Upstream)
	}
	if info.Downstream != nil {
		renderReferences(r, "Downstream", info.Downstream)
	}
}

// renderReferences prints one table row per referenced column, then the
// sources, direct references and exposures.
func renderReferences(r *output.Renderer, title string, refs *service.LineageReferences) {
	r.Header(2, title)
	if refs.Empty() {
		r.Muted("none")
		r.Println()
		return
	}

	var rows [][]string
	for _, model := range refs.ModelNames() {
		for _, col := range refs.ColumnNames(model) {
			fact := refs.Models[model][col]
			rows = append(rows, []string{model, col, string(fact.TransformationType), oneLine(fact.SQLExpression)})
		}
	}
	if len(rows) > 0 {
		r.Table([]string{"model", "column", "transformation", "expression"}, rows)
		r.Println()
	}
	if len(refs.Sources) > 0 {
		r.KeyValue("Sources", output.FormatList(refs.Sources))
	}
	if len(refs.DirectRefs) > 0 {
		r.KeyValue("Direct refs", output.FormatList(refs.DirectRefs))
	}
	if len(refs.Exposures) > 0 {
		r.KeyValue("Exposures", output.FormatList(refs.Exposures))
	}
	if len(refs.Sources)+len(refs.DirectRefs)+len(refs.Exposures) > 0 {
		r.Println()
	}
}

// oneLine collapses whitespace so expressions fit in a table cell.
func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	const maxLen = 80
	if len(s) > maxLen {
		return s[:maxLen-3] + "..."
	}
	return s
}

func columnLabel(model, column string) string {
	return fmt.Sprintf("%s.%s", model, column)
}
