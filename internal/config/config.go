// Package config provides configuration for the replbridge CLI.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. .env file in the working directory
//  4. Environment variable overrides (REPLBRIDGE_ prefix)
//  5. Validation
package config

import (
	"time"

	"github.com/itsmostafa/replbridge/internal/bridge"
	"github.com/itsmostafa/replbridge/internal/mcptools"
	"github.com/itsmostafa/replbridge/internal/sandbox"
	"github.com/itsmostafa/replbridge/internal/sandbox/dialects"
	"github.com/itsmostafa/replbridge/internal/transcript"
)

// Config holds all configuration for a replbridge session.
type Config struct {
	Dialect           string               `yaml:"dialect"`    // default: "python"
	TypeCheck         bool                 `yaml:"type_check"` // default: false
	StubsFile         string               `yaml:"stubs_file"`
	Limits            sandbox.Limits       `yaml:"limits"`
	OutputFields      []bridge.OutputField `yaml:"output_fields"`
	UppercaseReserved bool                 `yaml:"uppercase_reserved"`
	MaxOutputChars    int                  `yaml:"max_output_chars"` // default: 20000
	State             StateConfig          `yaml:"state"`
	Tools             ToolsConfig          `yaml:"tools"`
	MCP               MCPConfig            `yaml:"mcp"`
}

// StateConfig selects where saved state is persisted between runs.
type StateConfig struct {
	Type    string `yaml:"type"`    // "memory", "file" or "sqlite", default: "memory"
	Dir     string `yaml:"dir"`     // for file, default: ".replbridge/sessions"
	Path    string `yaml:"path"`    // for sqlite, default: ".replbridge/state.db"
	Session string `yaml:"session"` // session to resume, generated when empty
}

// ToolsConfig enables the built-in host tools.
type ToolsConfig struct {
	FS    FSConfig    `yaml:"fs"`
	Regex bool        `yaml:"regex"` // default: true
	Query QueryConfig `yaml:"query"`
}

// FSConfig configures the read-only filesystem tools.
type FSConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Root        string `yaml:"root"`          // default: "."
	MaxFileSize int64  `yaml:"max_file_size"` // default: 1MB
}

// QueryConfig configures llm_query and llm_query_batched. The tools are
// only registered when Command is set.
type QueryConfig struct {
	Command     string        `yaml:"command"`
	Timeout     time.Duration `yaml:"timeout"`     // default: 2m
	MaxCalls    int           `yaml:"max_calls"`   // 0 means unlimited
	Concurrency int           `yaml:"concurrency"` // default: 4
}

// MCPConfig lists MCP servers whose tools are imported.
type MCPConfig struct {
	Servers []mcptools.ServerConfig `yaml:"servers"`
}

// Defaults returns a Config with all default values applied.
func Defaults() Config {
	return Config{
		Dialect:        dialects.Default,
		MaxOutputChars: transcript.DefaultMaxOutputChars,
		State: StateConfig{
			Type: "memory",
			Dir:  ".replbridge/sessions",
			Path: ".replbridge/state.db",
		},
		Tools: ToolsConfig{
			FS: FSConfig{
				Root:        ".",
				MaxFileSize: 1024 * 1024,
			},
			Regex: true,
			Query: QueryConfig{
				Timeout:     2 * time.Minute,
				Concurrency: 4,
			},
		},
	}
}

// ReservedNames returns the reserved tool names the config selects.
func (c *Config) ReservedNames() bridge.ReservedNames {
	if c.UppercaseReserved {
		return bridge.UppercaseReservedNames()
	}
	return bridge.DefaultReservedNames()
}
