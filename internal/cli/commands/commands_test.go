// Package commands_test provides tests for CLI command creation.
package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/dbtlineage/internal/cli/output"
	"github.com/leapstack-labs/dbtlineage/internal/cli/testutil"
	"github.com/leapstack-labs/dbtlineage/internal/lineage"
	"github.com/leapstack-labs/dbtlineage/internal/registry"
	"github.com/leapstack-labs/dbtlineage/internal/service"
	projtest "github.com/leapstack-labs/dbtlineage/internal/testutil"
)

func sampleService(t *testing.T) *service.Service {
	t.Helper()
	catPath, manPath := projtest.WriteArtifacts(t, projtest.SampleProject(), "")
	reg := registry.New(registry.Options{CatalogPath: catPath, ManifestPath: manPath, Logger: projtest.NewTestLogger(t)})
	require.NoError(t, reg.Load(context.Background()))
	return service.New(reg)
}

func TestNewLineageCommand(t *testing.T) {
	cmd := NewLineageCommand()

	assert.Equal(t, "lineage <selector>", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")
}

func TestNewImpactCommand(t *testing.T) {
	cmd := NewImpactCommand()

	assert.Equal(t, "impact <model.column>", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("fail-on-critical"))
}

func TestNewResolveCommand(t *testing.T) {
	cmd := NewResolveCommand()

	assert.Equal(t, "resolve [file|-]", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("dialect"))
}

func TestNewModelsCommand(t *testing.T) {
	cmd := NewModelsCommand()

	assert.Equal(t, "models", cmd.Use)
	assert.Equal(t, []string{"ls"}, cmd.Aliases)
	for _, flag := range []string{"type", "tree"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestNewServeCommand(t *testing.T) {
	cmd := NewServeCommand()

	assert.Equal(t, "serve", cmd.Use)
	// Flag names double as config keys; see the loader's flagKeys.
	for _, flag := range []string{"host", "port", "watch", "cors-origin"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestNewMCPCommand(t *testing.T) {
	cmd := NewMCPCommand("test")

	assert.Equal(t, "mcp", cmd.Use)
	assert.NotEmpty(t, cmd.Long)
}

func TestParseColumnArg(t *testing.T) {
	sel, err := parseColumnArg("Orders.Amount")
	require.NoError(t, err)
	assert.Equal(t, "orders", sel.Model)
	assert.Equal(t, "amount", sel.Column)

	_, err = parseColumnArg("orders")
	assert.ErrorIs(t, err, service.ErrInvalidSelector)

	_, err = parseColumnArg("")
	assert.ErrorIs(t, err, service.ErrInvalidSelector)
}

func TestRenderColumnDetails_Markdown(t *testing.T) {
	svc := sampleService(t)
	info, err := svc.ColumnInfo(service.Selector{Model: "customers", Column: "customer_lifetime_value", Upstream: true, Downstream: true})
	require.NoError(t, err)

	tr := testutil.NewTestRenderer(output.ModeMarkdown)
	renderColumnDetails(tr.Renderer, info)

	got := tr.Output()
	testutil.AssertNoANSI(t, got)
	testutil.AssertValidMarkdown(t, got)
	assert.Contains(t, got, "# Lineage: customers.customer_lifetime_value")
	assert.Contains(t, got, "- **Transformation:** derived")
	assert.Contains(t, got, "## Upstream")
	assert.Contains(t, got, "| stg_payments | amount |")
	assert.Contains(t, got, "## Downstream")
	assert.Contains(t, got, "customer_segments")
	assert.Contains(t, got, "- **Exposures:** customer_dashboard")
}

func TestRenderModelDetails(t *testing.T) {
	svc := sampleService(t)
	sel := service.Selector{Model: "orders", Upstream: true}
	info, err := svc.ModelInfo(sel)
	require.NoError(t, err)

	tr := testutil.NewTestRenderer(output.ModeMarkdown)
	renderModelDetails(tr.Renderer, info, sel)

	got := tr.Output()
	assert.Contains(t, got, "# Model: orders")
	assert.Contains(t, got, "- **Relation:** jaffle.main")
	assert.Contains(t, got, "- **Upstream:** stg_orders, stg_payments")
	assert.NotContains(t, got, "Downstream")
}

func TestRenderReferences_Empty(t *testing.T) {
	tr := testutil.NewTestRenderer(output.ModeMarkdown)
	renderReferences(tr.Renderer, "Upstream", service.NewLineageReferences())

	assert.Contains(t, tr.Output(), "## Upstream")
	assert.Contains(t, tr.Output(), "_none_")
}

func TestRenderImpact(t *testing.T) {
	svc := sampleService(t)
	impact, err := svc.Impact("stg_payments", "amount")
	require.NoError(t, err)

	tr := testutil.NewTestRenderer(output.ModeText)
	renderImpact(tr.Renderer, impact)

	got := tr.Output()
	testutil.AssertNoANSI(t, got)
	assert.Contains(t, got, "Impact: stg_payments.amount")
	assert.Contains(t, got, "critical")
	assert.Contains(t, got, "low_impact")
	assert.Contains(t, got, "customer_dashboard (dashboard), owner analytics")
	assert.Contains(t, got, "revenue_report (analysis), owner finance")
}

func TestRenderResult(t *testing.T) {
	res, err := lineage.Resolve("select o.id, o.amount * 2 as doubled, c.* from orders o join customers c on o.cid = c.id")
	require.NoError(t, err)

	tr := testutil.NewTestRenderer(output.ModeMarkdown)
	renderResult(tr.Renderer, res)

	got := tr.Output()
	assert.Contains(t, got, "| id | direct | orders.id |")
	assert.Contains(t, got, "| doubled | derived | orders.amount |")
	assert.Contains(t, got, "- **Unexpanded *:** customers")
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "case when a then 1 else 0 end", oneLine("case\n    when a then 1\n    else 0\nend"))
	long := oneLine(string(make([]byte, 200)) + "x")
	assert.LessOrEqual(t, len(long), 80)
}
