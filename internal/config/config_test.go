package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/itsmostafa/replbridge/internal/bridge"
	"github.com/itsmostafa/replbridge/internal/mcptools"
)

// isolate runs the test in an empty directory so no replbridge.yaml or .env
// is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("REPLBRIDGE_CONFIG", "")
	return dir
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Dialect != "python" {
		t.Errorf("default dialect = %q, want \"python\"", cfg.Dialect)
	}
	if cfg.TypeCheck {
		t.Error("default type_check = true, want false")
	}
	if cfg.State.Type != "memory" {
		t.Errorf("default state.type = %q, want \"memory\"", cfg.State.Type)
	}
	if !cfg.Tools.Regex {
		t.Error("default tools.regex = false, want true")
	}
	if cfg.Tools.FS.Enabled {
		t.Error("default tools.fs.enabled = true, want false")
	}
	if cfg.Tools.Query.Concurrency != 4 {
		t.Errorf("default tools.query.concurrency = %d, want 4", cfg.Tools.Query.Concurrency)
	}
	if r := cfg.ReservedNames(); r.Save != "save" || r.Submit != "submit" {
		t.Errorf("default reserved names = %+v", r)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	isolate(t)

	yamlContent := `
dialect: javascript
type_check: false
limits:
  max_duration: 5s
  max_calls: 20
output_fields:
  - name: answer
    type: str
  - name: confidence
    type: float
uppercase_reserved: true
state:
  type: sqlite
  path: /tmp/state.db
  session: abc
tools:
  fs:
    enabled: true
    root: /srv/data
  query:
    command: cat
    max_calls: 10
mcp:
  servers:
    - name: search
      url: http://localhost:3000/mcp
      prefix: search_
`
	path := writeTemp(t, "config-*.yaml", yamlContent)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Dialect != "javascript" {
		t.Errorf("dialect = %q", cfg.Dialect)
	}
	if cfg.Limits.MaxDuration != 5*time.Second || cfg.Limits.MaxCalls != 20 {
		t.Errorf("limits = %+v", cfg.Limits)
	}
	if len(cfg.OutputFields) != 2 || cfg.OutputFields[1].Name != "confidence" {
		t.Errorf("output_fields = %+v", cfg.OutputFields)
	}
	if r := cfg.ReservedNames(); r.Save != "SAVE" || r.Clear != "CLEAR" {
		t.Errorf("reserved names = %+v", r)
	}
	if cfg.State.Type != "sqlite" || cfg.State.Path != "/tmp/state.db" || cfg.State.Session != "abc" {
		t.Errorf("state = %+v", cfg.State)
	}
	if !cfg.Tools.FS.Enabled || cfg.Tools.FS.Root != "/srv/data" {
		t.Errorf("tools.fs = %+v", cfg.Tools.FS)
	}
	if cfg.Tools.FS.MaxFileSize != 1024*1024 {
		t.Errorf("tools.fs.max_file_size should keep its default, got %d", cfg.Tools.FS.MaxFileSize)
	}
	if cfg.Tools.Query.Command != "cat" || cfg.Tools.Query.MaxCalls != 10 {
		t.Errorf("tools.query = %+v", cfg.Tools.Query)
	}
	if len(cfg.MCP.Servers) != 1 || cfg.MCP.Servers[0].Prefix != "search_" {
		t.Errorf("mcp.servers = %+v", cfg.MCP.Servers)
	}
}

func TestEnvOverride(t *testing.T) {
	isolate(t)

	path := writeTemp(t, "config-*.yaml", "dialect: javascript\n")

	t.Setenv("REPLBRIDGE_DIALECT", "tengo")
	t.Setenv("REPLBRIDGE_MAX_STEPS", "1000")
	t.Setenv("REPLBRIDGE_MAX_DURATION", "250ms")
	t.Setenv("REPLBRIDGE_STATE_TYPE", "file")
	t.Setenv("REPLBRIDGE_STATE_DIR", "/tmp/sessions")
	t.Setenv("REPLBRIDGE_FS_ROOT", "/data")
	t.Setenv("REPLBRIDGE_MCP_SERVERS", `[{"name":"local","command":"mcp-server","args":["--stdio"]}]`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Dialect != "tengo" {
		t.Errorf("dialect = %q, want env value", cfg.Dialect)
	}
	if cfg.Limits.MaxSteps != 1000 || cfg.Limits.MaxDuration != 250*time.Millisecond {
		t.Errorf("limits = %+v", cfg.Limits)
	}
	if cfg.State.Type != "file" || cfg.State.Dir != "/tmp/sessions" {
		t.Errorf("state = %+v", cfg.State)
	}
	if !cfg.Tools.FS.Enabled || cfg.Tools.FS.Root != "/data" {
		t.Errorf("tools.fs = %+v", cfg.Tools.FS)
	}
	if len(cfg.MCP.Servers) != 1 || cfg.MCP.Servers[0].Command != "mcp-server" || cfg.MCP.Servers[0].Args[0] != "--stdio" {
		t.Errorf("mcp.servers = %+v", cfg.MCP.Servers)
	}
}

func TestEnvOverride_Invalid(t *testing.T) {
	isolate(t)
	t.Setenv("REPLBRIDGE_TYPE_CHECK", "maybe")
	t.Setenv("REPLBRIDGE_MAX_CALLS", "many")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"REPLBRIDGE_TYPE_CHECK", "REPLBRIDGE_MAX_CALLS"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}
}

func TestEnvFile(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, EnvFile), []byte("REPLBRIDGE_QUERY_COMMAND=llm -m small\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("REPLBRIDGE_QUERY_COMMAND") })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Tools.Query.Command != "llm -m small" {
		t.Errorf("tools.query.command = %q, want value from .env", cfg.Tools.Query.Command)
	}
}

func TestFileDiscovery(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load without any file failed: %v", err)
	}
	if cfg.Dialect != "python" {
		t.Errorf("dialect = %q, want default", cfg.Dialect)
	}

	if err := os.WriteFile(filepath.Join(dir, "replbridge.yaml"), []byte("dialect: js\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Dialect != "js" {
		t.Errorf("dialect = %q, want value from ./replbridge.yaml", cfg.Dialect)
	}

	envFile := writeTemp(t, "envconfig-*.yaml", "dialect: tengo\n")
	t.Setenv("REPLBRIDGE_CONFIG", envFile)
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Dialect != "tengo" {
		t.Errorf("dialect = %q, want value from REPLBRIDGE_CONFIG", cfg.Dialect)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown dialect",
			modify:  func(c *Config) { c.Dialect = "cobol" },
			wantErr: "unknown dialect",
		},
		{
			name:    "negative max calls",
			modify:  func(c *Config) { c.Limits.MaxCalls = -1 },
			wantErr: "limits.max_calls",
		},
		{
			name: "duplicate output field",
			modify: func(c *Config) {
				c.OutputFields = append(c.OutputFields, c.OutputFields...)
			},
			wantErr: "duplicate name",
		},
		{
			name:    "unknown state type",
			modify:  func(c *Config) { c.State.Type = "redis" },
			wantErr: "state.type",
		},
		{
			name:    "sqlite without path",
			modify:  func(c *Config) { c.State.Type = "sqlite"; c.State.Path = "" },
			wantErr: "state.path",
		},
		{
			name:    "fs without root",
			modify:  func(c *Config) { c.Tools.FS.Enabled = true; c.Tools.FS.Root = "" },
			wantErr: "tools.fs.root",
		},
		{
			name:    "mcp server without transport",
			modify:  func(c *Config) { c.MCP.Servers[0].URL = "" },
			wantErr: "needs a command or a url",
		},
		{
			name:    "duplicate mcp server",
			modify:  func(c *Config) { c.MCP.Servers = append(c.MCP.Servers, c.MCP.Servers[0]) },
			wantErr: "mcp.servers[1]: duplicate name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.OutputFields = []bridge.OutputField{{Name: "answer"}}
			cfg.MCP.Servers = []mcptools.ServerConfig{{Name: "search", URL: "http://localhost/mcp"}}
			tt.modify(&cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err, tt.wantErr)
			}
		})
	}
}

func writeTemp(t *testing.T, pattern, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), pattern)
	if err != nil {
		t.Fatalf("creating temp file: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return f.Name()
}
