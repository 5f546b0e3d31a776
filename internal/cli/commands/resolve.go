package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/dbtlineage/internal/artifacts"
	"github.com/leapstack-labs/dbtlineage/internal/cli/output"
	"github.com/leapstack-labs/dbtlineage/internal/lineage"
	"github.com/leapstack-labs/dbtlineage/pkg/parser"
)

// NewResolveCommand creates the resolve command.
func NewResolveCommand() *cobra.Command {
	var dialect string

	cmd := &cobra.Command{
		Use:   "resolve [file|-]",
		Short: "Resolve the column lineage of a SQL query",
		Long: `Resolve the column lineage of one compiled SELECT statement read from a
file, or from stdin when the file is "-" or omitted. No dbt artifacts are
needed.`,
		Example: `  # Resolve a compiled model
  dbtlineage resolve target/compiled/jaffle_shop/models/orders.sql

  # Resolve from stdin with the Snowflake dialect
  echo 'select id as customer_id from raw.customers' | dbtlineage resolve --dialect snowflake`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return runResolve(cmd, path, dialect)
		},
	}

	cmd.Flags().StringVar(&dialect, "dialect", "", "SQL dialect or dbt adapter name (default: --adapter, then ansi)")
	_ = cmd.RegisterFlagCompletionFunc("dialect", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return parser.DialectNames(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runResolve(cmd *cobra.Command, path, dialect string) error {
	cmdCtx := NewCommandContextWithoutRegistry(cmd)
	r := cmdCtx.Renderer

	sql, err := readSQL(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}

	if dialect == "" {
		dialect = cmdCtx.Cfg.Adapter
	}
	opts := []lineage.Option{lineage.WithLogger(cmdCtx.Logger)}
	if dialect != "" {
		d, ok := parser.DialectByName(artifacts.DialectForAdapter(dialect))
		if !ok {
			return fmt.Errorf("unknown dialect %q (known: %s)", dialect, strings.Join(parser.DialectNames(), ", "))
		}
		opts = append(opts, lineage.WithDialect(d))
	}

	res, err := lineage.Resolve(sql, opts...)
	if err != nil {
		return err
	}

	if ok, err := r.Data(res); ok {
		return err
	}
	renderResult(r, res)
	return nil
}

func readSQL(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path) //nolint:gosec // user-supplied query file
	}
	if err != nil {
		return "", fmt.Errorf("failed to read SQL: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("no SQL to resolve")
	}
	return string(data), nil
}

func renderResult(r *output.Renderer, res *lineage.Result) {
	r.Header(1, "Column Lineage")

	var rows [][]string
	for _, name := range res.ColumnNames() {
		for _, fact := range res.Columns[name] {
			rows = append(rows, []string{
				name,
				string(fact.TransformationType),
				output.FormatList(fact.SourceColumns),
				oneLine(fact.SQLExpression),
			})
		}
	}
	if len(rows) == 0 {
		r.Muted("no output columns")
	} else {
		r.Table([]string{"column", "transformation", "sources", "expression"}, rows)
	}

	if len(res.StarSources) > 0 {
		r.Println()
		r.KeyValue("Unexpanded *", output.FormatList(res.StarSources))
	}
}
