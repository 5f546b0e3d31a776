package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/dbtlineage/internal/registry"
	"github.com/leapstack-labs/dbtlineage/internal/service"
	"github.com/leapstack-labs/dbtlineage/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	catPath, manPath := testutil.WriteArtifacts(t, testutil.SampleProject(), "")
	reg := registry.New(registry.Options{CatalogPath: catPath, ManifestPath: manPath, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, reg.Load(context.Background()))
	return New(service.New(reg), "test")
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"get_upstream_lineage":   srv.getUpstream,
		"get_downstream_lineage": srv.getDownstream,
		"get_column_impact":      srv.getImpact,
		"get_model_info":         srv.getModelInfo,
		"resolve_sql":            srv.resolveSQL,
		"list_models":            srv.listModels,
	}
	h, ok := handlers[name]
	require.True(t, ok, "unknown tool %s", name)

	result, err := h(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func resultJSON[T any](t *testing.T, r *mcp.CallToolResult) T {
	t.Helper()
	require.False(t, r.IsError, resultText(r))
	var v T
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &v))
	return v
}

func TestUpstreamLineage(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "get_upstream_lineage", map[string]any{"model": "orders", "column": "customer_id"})
	got := resultJSON[map[string]map[string]any](t, r)
	assert.Contains(t, got, "stg_orders")
	assert.Contains(t, got["raw_orders"], "user_id")
}

func TestDownstreamLineage(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "get_downstream_lineage", map[string]any{"model": "stg_payments", "column": "amount"})
	got := resultJSON[map[string]any](t, r)
	assert.Contains(t, got, "customers")
	assert.Contains(t, got, "orders")
	assert.ElementsMatch(t, []any{"customer_dashboard", "revenue_report"}, got["exposures"])
}

func TestColumnImpact(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "get_column_impact", map[string]any{"model": "stg_payments", "column": "amount"})
	got := resultJSON[service.ImpactSummary](t, r)
	assert.Equal(t, []string{"customer_segments", "customers", "orders"}, got.AffectedModels)
	assert.Equal(t, 2, got.Summary.TotalAffectedExposures)
}

func TestModelInfo(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "get_model_info", map[string]any{"model": "orders"})
	got := resultJSON[service.ModelDetails](t, r)
	assert.Equal(t, "orders", got.Name)
	assert.Equal(t, []string{"stg_orders", "stg_payments"}, got.Upstream)
}

func TestResolveSQL(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "resolve_sql", map[string]any{
		"sql":     "select id as customer_id, upper(name) as name from customers",
		"dialect": "duckdb",
	})
	got := resultJSON[map[string]any](t, r)
	cols := got["column_lineage"].(map[string]any)
	assert.Contains(t, cols, "customer_id")
	assert.Contains(t, cols, "name")
}

func TestListModels(t *testing.T) {
	srv := testServer(t)

	all := resultJSON[[]modelSummary](t, callTool(t, srv, "list_models", nil))
	assert.Len(t, all, 9)
	assert.Equal(t, "customer_segments", all[0].Name)

	sources := resultJSON[[]modelSummary](t, callTool(t, srv, "list_models", map[string]any{"resource_type": "source"}))
	require.Len(t, sources, 3)
	assert.Equal(t, "raw_customers", sources[0].Name)
	assert.Equal(t, 3, sources[0].Columns)
}

func TestToolErrors(t *testing.T) {
	srv := testServer(t)

	tests := []struct {
		name string
		tool string
		args map[string]any
		want string
	}{
		{name: "missing column arg", tool: "get_upstream_lineage", args: map[string]any{"model": "orders"}, want: "column"},
		{name: "unknown model", tool: "get_downstream_lineage", args: map[string]any{"model": "nope", "column": "x"}, want: "not found"},
		{name: "unknown column", tool: "get_column_impact", args: map[string]any{"model": "orders", "column": "nope"}, want: "not found"},
		{name: "unknown dialect", tool: "resolve_sql", args: map[string]any{"sql": "select 1", "dialect": "cobol"}, want: "unknown dialect"},
		{name: "malformed sql", tool: "resolve_sql", args: map[string]any{"sql": "select (a from t"}, want: "malformed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := callTool(t, srv, tt.tool, tt.args)
			assert.True(t, r.IsError)
			assert.Contains(t, resultText(r), tt.want)
		})
	}
}

func TestToolsRegistered(t *testing.T) {
	srv := testServer(t)
	tools := srv.MCPServer().ListTools()
	for _, name := range []string{"get_upstream_lineage", "get_downstream_lineage", "get_column_impact",
		"get_model_info", "resolve_sql", "list_models"} {
		assert.Contains(t, tools, name)
	}
}
