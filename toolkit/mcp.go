package toolkit

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/agentrt/core/model"
)

// MCPClient delegates a tool call to a named MCP server, matching the
// SERVER execution kind's timeout and error-mapping semantics.
type MCPClient interface {
	CallTool(ctx context.Context, server, tool string, input map[string]any, timeout time.Duration) ([]model.Part, error)
}

// mcpRegistry is the default MCPClient, backed by one mark3labs/mcp-go
// stdio/SSE client per configured server name.
type mcpRegistry struct {
	servers map[string]*client.Client
}

// NewMCPRegistry constructs an MCPClient over a fixed set of pre-connected
// mcp-go clients, keyed by the server name tools reference in
// ToolSpec.MCPServer.
func NewMCPRegistry(servers map[string]*client.Client) MCPClient {
	return &mcpRegistry{servers: servers}
}

func (r *mcpRegistry) CallTool(ctx context.Context, server, tool string, input map[string]any, timeout time.Duration) ([]model.Part, error) {
	c, ok := r.servers[server]
	if !ok {
		return nil, NewToolError(KindApplicationError, fmt.Sprintf("mcp server %q is not configured", server))
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = input

	result, err := c.CallTool(callCtx, req)
	if err != nil {
		return nil, classifyError(ctx, err)
	}
	if result.IsError {
		return nil, NewToolError(KindApplicationError, mcpContentToText(result.Content))
	}
	return mcpContentToParts(result.Content), nil
}

func mcpContentToParts(content []mcp.Content) []model.Part {
	var parts []model.Part
	for i, c := range content {
		if tc, ok := mcp.AsTextContent(c); ok {
			parts = append(parts, model.TextPart{Index: i, Text: tc.Text})
			continue
		}
		parts = append(parts, model.RawPart{Index: i, Payload: map[string]any{"mcp_content": c}})
	}
	return parts
}

func mcpContentToText(content []mcp.Content) string {
	var out string
	for _, c := range content {
		if tc, ok := mcp.AsTextContent(c); ok {
			out += tc.Text
		}
	}
	return out
}
