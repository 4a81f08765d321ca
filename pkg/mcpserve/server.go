// Package mcpserve exposes a tools.Provider as an MCP server over stdio or streamable HTTP.
package mcpserve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"boxonomics/pkg/logx"
	"boxonomics/pkg/tools"
	"boxonomics/pkg/version"
)

// ServerName prefixes the advertised implementation name.
const ServerName = "boxing-"

// NewServer builds an MCP server with one tool per provider tool.
func NewServer(p tools.Provider) *mcp.Server {
	logger := logx.NewLogger("mcp-" + p.Name())
	server := mcp.NewServer(&mcp.Implementation{
		Name:    ServerName + p.Name(),
		Version: version.Version,
	}, &mcp.ServerOptions{})

	for _, def := range p.ListTools() {
		server.AddTool(&mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema.ToMap(),
		}, handler(p, def.Name, logger))
	}
	return server
}

// handler adapts one provider tool to an MCP tool handler.
// Provider failures come back as IsError results so the caller sees them as tool output.
func handler(p tools.Provider, name string, logger *logx.Logger) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := map[string]any{}
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return errorResult(fmt.Errorf("invalid arguments for %s: %w", name, err)), nil
			}
		}

		result, err := p.Invoke(ctx, name, args)
		if err != nil {
			logger.Warn("Tool %s failed: %v", name, err)
			return errorResult(err), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: tools.EncodeResult(result)}},
		}, nil
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: tools.EncodeError(err)}},
	}
}

// ServeStdio runs the provider on stdin/stdout until ctx is done or the peer disconnects.
// Logging must already point away from stdout.
func ServeStdio(ctx context.Context, p tools.Provider) error {
	logx.NewLogger("mcp-"+p.Name()).Info("Serving %d tools over stdio", len(p.ListTools()))
	if err := NewServer(p).Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server %s: %w", p.Name(), err)
	}
	return nil
}

// Handler serves the provider over stateless streamable HTTP.
func Handler(p tools.Provider) http.Handler {
	server := NewServer(p)
	return mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		&mcp.StreamableHTTPOptions{Stateless: true},
	)
}
