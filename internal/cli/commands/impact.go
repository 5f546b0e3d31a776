package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/dbtlineage/internal/cli/output"
	"github.com/leapstack-labs/dbtlineage/internal/service"
)

// ErrCriticalImpact is returned by impact --fail-on-critical when a change
// would reach a derived column.
var ErrCriticalImpact = errors.New("critical downstream impact")

// NewImpactCommand creates the impact command.
func NewImpactCommand() *cobra.Command {
	var failOnCritical bool

	cmd := &cobra.Command{
		Use:   "impact <model.column>",
		Short: "Analyze the impact of changing a column",
		Long: `List every downstream column and exposure affected by a change to a
column. Columns computed from the value are critical; columns that pass it
through unchanged or renamed are low impact.`,
		Example: `  # What breaks if stg_payments.amount changes?
  dbtlineage impact stg_payments.amount

  # Fail a CI step when derived columns depend on it
  dbtlineage impact stg_payments.amount --fail-on-critical`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImpact(cmd, args[0], failOnCritical)
		},
	}

	cmd.Flags().BoolVar(&failOnCritical, "fail-on-critical", false, "Exit with an error when any affected column is critical")

	return cmd
}

func runImpact(cmd *cobra.Command, arg string, failOnCritical bool) error {
	sel, err := parseColumnArg(arg)
	if err != nil {
		return err
	}

	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cmdCtx.Renderer

	impact, err := cmdCtx.Service.Impact(sel.Model, sel.Column)
	if err != nil {
		return err
	}

	if ok, err := r.Data(impact); ok {
		if err != nil {
			return err
		}
	} else {
		renderImpact(r, impact)
	}

	if failOnCritical && impact.Summary.CriticalCount > 0 {
		return fmt.Errorf("%w: %d critical column(s) depend on %s",
			ErrCriticalImpact, impact.Summary.CriticalCount, columnLabel(impact.Model, impact.Column))
	}
	return nil
}

func renderImpact(r *output.Renderer, impact *service.ImpactSummary) {
	styles := r.Styles()

	r.Header(1, "Impact: "+columnLabel(impact.Model, impact.Column))

	if len(impact.AffectedColumns) == 0 {
		r.Muted("no downstream columns")
		r.Println()
	} else {
		rows := make([][]string, 0, len(impact.AffectedColumns))
		for _, c := range impact.AffectedColumns {
			severity := string(c.Severity)
			if r.EffectiveMode() == output.ModeText {
				if c.Severity == service.SeverityCritical {
					severity = styles.Error.Render(severity)
				} else {
					severity = styles.Muted.Render(severity)
				}
			}
			rows = append(rows, []string{c.Model, c.Column, string(c.TransformationType), severity})
		}
		r.Table([]string{"model", "column", "transformation", "severity"}, rows)
		r.Println()
	}

	if len(impact.AffectedExposures) > 0 {
		r.Header(2, "Exposures")
		for _, e := range impact.AffectedExposures {
			label := e.Name
			if e.Type != "" {
				label += " (" + e.Type + ")"
			}
			if e.Owner != "" {
				label += ", owner " + e.Owner
			}
			r.Println("- " + label)
		}
		r.Println()
	}

	r.Header(2, "Summary")
	r.KeyValue("Models", fmt.Sprintf("%d", impact.Summary.TotalAffectedModels))
	r.KeyValue("Columns", fmt.Sprintf("%d", impact.Summary.TotalAffectedColumns))
	r.KeyValue("Exposures", fmt.Sprintf("%d", impact.Summary.TotalAffectedExposures))
	r.KeyValue("Critical", fmt.Sprintf("%d", impact.Summary.CriticalCount))
	r.KeyValue("Low impact", fmt.Sprintf("%d", impact.Summary.LowImpactCount))
}
