package mcptools

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/itsmostafa/replbridge/internal/bridge"
	"github.com/itsmostafa/replbridge/internal/sandbox"
)

// setupTestServer starts an in-memory MCP server with a weather tool and
// returns a connected client.
func setupTestServer(t *testing.T, prefix string) *Client {
	t.Helper()

	server := mcp.NewServer(&mcp.Implementation{Name: "test-server", Version: "1.0.0"}, nil)
	server.AddTool(
		&mcp.Tool{
			Name:        "get-weather",
			Description: "Weather for a city",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"city": map[string]any{"type": "string"}, "units": map[string]any{"type": "string"}},
				"required":   []string{"city"},
			},
		},
		func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args map[string]any
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return nil, err
			}
			if args["city"] == "nowhere" {
				return &mcp.CallToolResult{
					IsError: true,
					Content: []mcp.Content{&mcp.TextContent{Text: "unknown city"}},
				}, nil
			}
			text := "sunny in " + args["city"].(string)
			if units, ok := args["units"].(string); ok {
				text += " (" + units + ")"
			}
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, nil
		},
	)
	server.AddTool(
		&mcp.Tool{Name: "stats", InputSchema: map[string]any{"type": "object"}},
		func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{
				Content:           []mcp.Content{&mcp.TextContent{Text: `{"count":3}`}},
				StructuredContent: map[string]any{"count": 3, "ratio": 0.5},
			}, nil
		},
	)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() {
		_ = server.Run(ctx, serverTransport)
	}()

	client := NewClient(ServerConfig{Name: "test-server", Prefix: prefix}, nil)
	if err := client.ConnectWithTransport(ctx, clientTransport); err != nil {
		t.Fatalf("ConnectWithTransport failed: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestClient_Tools(t *testing.T) {
	client := setupTestServer(t, "w_")

	tools, err := client.Tools(context.Background())
	if err != nil {
		t.Fatalf("Tools failed: %v", err)
	}
	if _, ok := tools["w_get_weather"]; !ok {
		t.Fatalf("expected w_get_weather, got %v", keys(tools))
	}
	if _, ok := tools["w_stats"]; !ok {
		t.Fatalf("expected w_stats, got %v", keys(tools))
	}

	again, err := client.Tools(context.Background())
	if err != nil || len(again) != len(tools) {
		t.Errorf("expected cached tools, got %d, %v", len(again), err)
	}
}

func TestClient_Call(t *testing.T) {
	client := setupTestServer(t, "")
	tools, err := client.Tools(context.Background())
	if err != nil {
		t.Fatalf("Tools failed: %v", err)
	}
	weather := tools["get_weather"]

	got, err := weather(context.Background(), []any{"Paris"}, sandbox.Kwargs{{Name: "units", Value: "metric"}})
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if got != "sunny in Paris (metric)" {
		t.Errorf("unexpected result: %v", got)
	}

	if _, err := weather(context.Background(), []any{"nowhere"}, nil); err == nil || !strings.Contains(err.Error(), "unknown city") {
		t.Errorf("expected tool error, got %v", err)
	}
	if _, err := weather(context.Background(), []any{"a", "b"}, nil); err == nil {
		t.Error("expected error for too many positional arguments")
	}
	if _, err := weather(context.Background(), []any{"a"}, sandbox.Kwargs{{Name: "city", Value: "b"}}); err == nil {
		t.Error("expected error for duplicate argument")
	}

	stats, err := tools["stats"](context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	want := map[string]any{"count": int64(3), "ratio": 0.5}
	if !reflect.DeepEqual(stats, want) {
		t.Errorf("expected %v, got %#v", want, stats)
	}
}

func TestClient_NotConnected(t *testing.T) {
	client := NewClient(ServerConfig{Name: "x", URL: "http://localhost"}, nil)
	if _, err := client.Tools(context.Background()); err == nil {
		t.Error("expected error before Connect")
	}
}

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServerConfig
		wantErr bool
	}{
		{name: "command", cfg: ServerConfig{Name: "a", Command: "srv"}},
		{name: "url", cfg: ServerConfig{Name: "a", URL: "http://x"}},
		{name: "no name", cfg: ServerConfig{Command: "srv"}, wantErr: true},
		{name: "neither", cfg: ServerConfig{Name: "a"}, wantErr: true},
		{name: "both", cfg: ServerConfig{Name: "a", Command: "srv", URL: "http://x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIdentifier(t *testing.T) {
	tests := map[string]string{
		"get-weather": "get_weather",
		"fs.read":     "fs_read",
		"9lives":      "_9lives",
		"ok_name":     "ok_name",
	}
	for in, want := range tests {
		if got := identifier(in); got != want {
			t.Errorf("identifier(%q) = %q, want %q", in, got, want)
		}
	}
}

func keys(m map[string]bridge.ToolFunc) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	return out
}
