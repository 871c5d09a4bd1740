// Package mcpserver exposes the assistant's local FinOps tools over the
// Model Context Protocol, so other MCP hosts can reuse cost queries,
// forecasts, and metrics without going through the chat API.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/optimnow-labs/finops-assistant/internal/tools"
)

// RegisterTools registers the given tool set on the MCP server. Tools keep
// their registry names and schemas.
func RegisterTools(server *mcp.Server, toolSet []tools.Tool) error {
	for _, t := range toolSet {
		schema, err := toSchema(t.InputSchema)
		if err != nil {
			return fmt.Errorf("mcpserver: schema for %s: %w", t.Name, err)
		}
		mcp.AddTool(server,
			&mcp.Tool{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: schema,
			},
			handler(t),
		)
	}
	return nil
}

func handler(t tools.Tool) mcp.ToolHandlerFor[map[string]any, any] {
	invoke := t.Invoke
	name := t.Name
	return func(ctx context.Context, _ *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
		res, err := invoke(ctx, args)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", name, err)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: res.Text}},
			IsError: res.IsError,
		}, nil, nil
	}
}

// toSchema converts a tool's schema representation to the SDK's type.
func toSchema(v any) (*jsonschema.Schema, error) {
	switch s := v.(type) {
	case nil:
		return &jsonschema.Schema{Type: "object"}, nil
	case *jsonschema.Schema:
		return s, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
