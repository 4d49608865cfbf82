// Package mcptools imports the tools of Model Context Protocol servers as
// bridge host tools.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/itsmostafa/replbridge/internal/bridge"
	"github.com/itsmostafa/replbridge/internal/sandbox"
	"github.com/itsmostafa/replbridge/internal/version"
)

// ServerConfig describes one MCP server. Exactly one of Command and URL is
// set.
type ServerConfig struct {
	Name string `yaml:"name" json:"name"`

	// Command starts a server speaking MCP over stdio.
	Command string   `yaml:"command" json:"command,omitempty"`
	Args    []string `yaml:"args" json:"args,omitempty"`

	// URL is a streamable HTTP endpoint.
	URL string `yaml:"url" json:"url,omitempty"`

	// Prefix is prepended to every imported tool name.
	Prefix string `yaml:"prefix" json:"prefix,omitempty"`
}

// Validate checks that the server can be reached one way.
func (c ServerConfig) Validate() error {
	switch {
	case c.Name == "":
		return fmt.Errorf("mcp server needs a name")
	case c.Command == "" && c.URL == "":
		return fmt.Errorf("mcp server %q needs a command or a url", c.Name)
	case c.Command != "" && c.URL != "":
		return fmt.Errorf("mcp server %q has both a command and a url", c.Name)
	}
	return nil
}

// Client is a connection to one MCP server.
type Client struct {
	cfg     ServerConfig
	logger  *slog.Logger
	client  *mcp.Client
	session *mcp.ClientSession

	mu    sync.Mutex
	tools map[string]bridge.ToolFunc
}

// NewClient creates a Client. Call Connect before Tools.
func NewClient(cfg ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{cfg: cfg, logger: logger.With(slog.String("mcp_server", cfg.Name))}
}

// Connect establishes the session using the configured command or URL.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	var transport mcp.Transport
	if c.cfg.Command != "" {
		transport = &mcp.CommandTransport{Command: exec.Command(c.cfg.Command, c.cfg.Args...)}
	} else {
		transport = &mcp.StreamableClientTransport{Endpoint: c.cfg.URL}
	}
	return c.ConnectWithTransport(ctx, transport)
}

// ConnectWithTransport establishes the session over transport.
func (c *Client) ConnectWithTransport(ctx context.Context, transport mcp.Transport) error {
	c.client = mcp.NewClient(
		&mcp.Implementation{Name: "replbridge", Version: version.Version},
		&mcp.ClientOptions{Capabilities: &mcp.ClientCapabilities{}},
	)
	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to MCP server %q: %w", c.cfg.Name, err)
	}
	c.session = session
	c.logger.Debug("mcp server connected")
	return nil
}

// Tools lists the server's tools and wraps each as a bridge tool. Names are
// made into identifiers and prefixed with the configured prefix. The result
// is cached.
func (c *Client) Tools(ctx context.Context) (map[string]bridge.ToolFunc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tools != nil {
		return c.tools, nil
	}
	if c.session == nil {
		return nil, fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	tools := make(map[string]bridge.ToolFunc)
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("listing tools from %q: %w", c.cfg.Name, err)
		}
		name := c.cfg.Prefix + identifier(tool.Name)
		if _, dup := tools[name]; dup {
			c.logger.Warn("duplicate mcp tool name", slog.String("tool", name))
		}
		tools[name] = c.wrap(tool.Name, requiredParams(tool.InputSchema))
	}
	c.tools = tools
	c.logger.Debug("mcp tools discovered", slog.Int("count", len(tools)))
	return tools, nil
}

// Close closes the session.
func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

// wrap builds a bridge tool calling the server tool remote. Positional
// arguments bind to the schema's required parameters in order.
func (c *Client) wrap(remote string, positional []string) bridge.ToolFunc {
	return func(ctx context.Context, args []any, kwargs sandbox.Kwargs) (any, error) {
		if len(args) > len(positional) {
			return nil, fmt.Errorf("%s takes %d positional arguments but %d were given", remote, len(positional), len(args))
		}
		arguments := make(map[string]any, len(args)+len(kwargs))
		for i, arg := range args {
			arguments[positional[i]] = sandbox.Normalize(arg)
		}
		for _, kv := range kwargs {
			if _, dup := arguments[kv.Name]; dup {
				return nil, fmt.Errorf("%s got multiple values for argument %q", remote, kv.Name)
			}
			arguments[kv.Name] = sandbox.Normalize(kv.Value)
		}

		result, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: remote, Arguments: arguments})
		if err != nil {
			return nil, fmt.Errorf("MCP tool call error: %w", err)
		}
		return convertResult(result)
	}
}

// convertResult returns structured content when present, otherwise the
// text content joined by newlines.
func convertResult(result *mcp.CallToolResult) (any, error) {
	var texts []string
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	text := strings.Join(texts, "\n")

	if result.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return nil, fmt.Errorf("%s", text)
	}
	if result.StructuredContent != nil {
		return normalizeJSON(result.StructuredContent)
	}
	return text, nil
}

// normalizeJSON round-trips v through JSON so numbers follow the value
// model.
func normalizeJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("decoding structured content: %w", err)
	}
	out, err := sandbox.DecodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("decoding structured content: %w", err)
	}
	return out, nil
}

// requiredParams returns the "required" list of a JSON schema object.
func requiredParams(schema any) []string {
	m, ok := schema.(map[string]any)
	if !ok {
		return nil
	}
	list, _ := m["required"].([]any)
	var out []string
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// identifier replaces characters scripts cannot use in a name.
func identifier(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
