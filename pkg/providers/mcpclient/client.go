// Package mcpclient implements tools.Provider on top of an MCP server session.
package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"boxonomics/pkg/config"
	"boxonomics/pkg/logx"
	"boxonomics/pkg/tools"
	"boxonomics/pkg/version"
)

// Provider proxies tool calls to a remote MCP server. Tools are listed once, at connect time.
type Provider struct {
	session  *mcp.ClientSession
	logger   *logx.Logger
	name     string
	category tools.Category
	defs     []tools.ToolDefinition
	mu       sync.Mutex
	closed   bool
}

// Connect opens an MCP session over transport and caches the server's tool list.
func Connect(ctx context.Context, name string, category tools.Category, transport mcp.Transport) (*Provider, error) {
	if category == "" {
		category = tools.Category(name)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "boxonomics", Version: version.Version}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s MCP server: %w", name, err)
	}

	p := &Provider{
		session:  session,
		logger:   logx.NewLogger("mcp-client-" + name),
		name:     name,
		category: category,
	}
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return nil, fmt.Errorf("failed to list %s tools: %w", name, err)
		}
		def, err := toDefinition(tool)
		if err != nil {
			_ = session.Close()
			return nil, err
		}
		p.defs = append(p.defs, def)
	}
	p.logger.Info("Connected to %s MCP server with %d tools", name, len(p.defs))
	return p, nil
}

// Spawn starts the configured command and connects to it over stdio.
// The subprocess inherits the environment so it can resolve its own secrets.
func Spawn(ctx context.Context, name string, cfg config.ProviderConfig) (*Provider, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, &tools.ConfigurationError{Message: fmt.Sprintf("provider %s uses mcp mode but has no command", name)}
	}
	// #nosec G204 -- command comes from the operator's config file
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = os.Environ()
	cmd.Stderr = os.Stderr
	return Connect(ctx, name, tools.Category(cfg.Category), &mcp.CommandTransport{Command: cmd})
}

func toDefinition(tool *mcp.Tool) (tools.ToolDefinition, error) {
	def := tools.ToolDefinition{Name: tool.Name, Description: tool.Description}
	if tool.InputSchema != nil {
		raw, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return def, fmt.Errorf("tool %s has an unreadable schema: %w", tool.Name, err)
		}
		if err := json.Unmarshal(raw, &def.InputSchema); err != nil {
			return def, fmt.Errorf("tool %s has an unsupported schema: %w", tool.Name, err)
		}
	}
	if def.InputSchema.Properties == nil {
		def.InputSchema.Properties = map[string]tools.Property{}
	}
	return def, nil
}

// Name implements tools.Provider.
func (p *Provider) Name() string { return p.name }

// Category implements tools.Provider.
func (p *Provider) Category() tools.Category { return p.category }

// ListTools implements tools.Provider.
func (p *Provider) ListTools() []tools.ToolDefinition {
	out := make([]tools.ToolDefinition, len(p.defs))
	copy(out, p.defs)
	return out
}

// Invoke implements tools.Provider. The result is the server's text content.
func (p *Provider) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("mcp session for %s is closed", p.name)
	}

	res, err := p.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("mcp call %s failed: %w", name, err)
	}
	text := contentText(res.Content)
	if res.IsError {
		return nil, errors.New(remoteError(text))
	}
	return text, nil
}

// remoteError unwraps the {"error": ...} envelope servers use for failures.
func remoteError(text string) string {
	var envelope struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(text), &envelope) == nil && envelope.Error != "" {
		return envelope.Error
	}
	if text == "" {
		return "tool reported an error"
	}
	return text
}

func contentText(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Close ends the session and, for spawned servers, the subprocess.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.session.Close(); err != nil {
		return fmt.Errorf("failed to close %s MCP session: %w", p.name, err)
	}
	return nil
}
