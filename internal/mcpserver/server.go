// Package mcpserver exposes column lineage queries as MCP (Model Context
// Protocol) tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/leapstack-labs/dbtlineage/internal/artifacts"
	"github.com/leapstack-labs/dbtlineage/internal/lineage"
	"github.com/leapstack-labs/dbtlineage/internal/service"
	"github.com/leapstack-labs/dbtlineage/pkg/parser"
)

// Server wraps the MCP server with the lineage tools.
type Server struct {
	mcp *server.MCPServer
	svc *service.Service
}

// New creates an MCP server answering from svc.
func New(svc *service.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"dbtlineage",
		version,
		server.WithToolCapabilities(false),
	)

	s.mcp.AddTool(mcp.NewTool("get_upstream_lineage",
		mcp.WithDescription("List every column, in any model or source, that a column is computed from. "+
			"Keys are model names mapping column names to lineage facts."),
		mcp.WithString("model", mcp.Required(), mcp.Description("Model name (case-insensitive)")),
		mcp.WithString("column", mcp.Required(), mcp.Description("Column name (case-insensitive)")),
	), s.getUpstream)

	s.mcp.AddTool(mcp.NewTool("get_downstream_lineage",
		mcp.WithDescription("List every column computed from a column, and the exposures that depend on them."),
		mcp.WithString("model", mcp.Required(), mcp.Description("Model name (case-insensitive)")),
		mcp.WithString("column", mcp.Required(), mcp.Description("Column name (case-insensitive)")),
	), s.getDownstream)

	s.mcp.AddTool(mcp.NewTool("get_column_impact",
		mcp.WithDescription("Grade the impact of changing a column. Derived dependents are critical, "+
			"direct and renamed ones are low impact."),
		mcp.WithString("model", mcp.Required(), mcp.Description("Model name (case-insensitive)")),
		mcp.WithString("column", mcp.Required(), mcp.Description("Column name (case-insensitive)")),
	), s.getImpact)

	s.mcp.AddTool(mcp.NewTool("get_model_info",
		mcp.WithDescription("Describe a model: type, columns and direct upstream and downstream models."),
		mcp.WithString("model", mcp.Required(), mcp.Description("Model name (case-insensitive)")),
	), s.getModelInfo)

	s.mcp.AddTool(mcp.NewTool("resolve_sql",
		mcp.WithDescription("Resolve the column lineage of a single SELECT statement."),
		mcp.WithString("sql", mcp.Required(), mcp.Description("Compiled SQL query")),
		mcp.WithString("dialect", mcp.Description("SQL dialect or dbt adapter name (default ansi)")),
	), s.resolveSQL)

	s.mcp.AddTool(mcp.NewTool("list_models",
		mcp.WithDescription("List models, seeds, snapshots and sources with their resource type and column count."),
		mcp.WithString("resource_type", mcp.Description("Optional filter: model, seed, snapshot or source")),
	), s.listModels)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func modelColumn(req mcp.CallToolRequest) (string, string, error) {
	model, err := req.RequireString("model")
	if err != nil {
		return "", "", err
	}
	column, err := req.RequireString("column")
	if err != nil {
		return "", "", err
	}
	return model, column, nil
}

func (s *Server) getUpstream(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	model, column, err := modelColumn(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	refs, err := s.svc.Upstream(model, column)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(refs)
}

func (s *Server) getDownstream(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	model, column, err := modelColumn(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	refs, err := s.svc.Downstream(model, column)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(refs)
}

func (s *Server) getImpact(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	model, column, err := modelColumn(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	impact, err := s.svc.Impact(model, column)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(impact)
}

func (s *Server) getModelInfo(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	model, err := req.RequireString("model")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	info, err := s.svc.ModelInfo(service.Selector{Model: model, Upstream: true, Downstream: true})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(info)
}

func (s *Server) resolveSQL(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sql, err := req.RequireString("sql")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var opts []lineage.Option
	if name := req.GetString("dialect", ""); name != "" {
		d, ok := parser.DialectByName(artifacts.DialectForAdapter(name))
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown dialect %q (known: %s)",
				name, strings.Join(parser.DialectNames(), ", "))), nil
		}
		opts = append(opts, lineage.WithDialect(d))
	}
	res, err := lineage.Resolve(sql, opts...)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

type modelSummary struct {
	Name         string `json:"name"`
	ResourceType string `json:"resource_type"`
	Columns      int    `json:"columns"`
	Description  string `json:"description,omitempty"`
}

func (s *Server) listModels(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := strings.ToLower(strings.TrimSpace(req.GetString("resource_type", "")))
	models, err := s.svc.Registry().Models()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := make([]modelSummary, 0, len(models))
	for _, m := range models {
		if filter != "" && m.Type() != filter {
			continue
		}
		out = append(out, modelSummary{
			Name:         m.Name,
			ResourceType: m.Type(),
			Columns:      len(m.ColumnNames()),
			Description:  m.Description,
		})
	}
	return jsonResult(out)
}
