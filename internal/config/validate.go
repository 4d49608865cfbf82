package config

import (
	"errors"
	"fmt"

	"github.com/itsmostafa/replbridge/internal/sandbox/dialects"
)

// Validate checks the configuration for errors. It returns all validation
// errors joined together, or nil if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if _, err := dialects.New(c.Dialect); err != nil {
		errs = append(errs, fmt.Errorf("dialect: %w", err))
	}

	if c.Limits.MaxDuration < 0 {
		errs = append(errs, fmt.Errorf("limits.max_duration must be >= 0, got %v", c.Limits.MaxDuration))
	}
	if c.Limits.MaxCalls < 0 {
		errs = append(errs, fmt.Errorf("limits.max_calls must be >= 0, got %d", c.Limits.MaxCalls))
	}
	if c.Limits.MaxAllocs < 0 {
		errs = append(errs, fmt.Errorf("limits.max_allocs must be >= 0, got %d", c.Limits.MaxAllocs))
	}

	seen := make(map[string]bool)
	for i, f := range c.OutputFields {
		switch {
		case f.Name == "":
			errs = append(errs, fmt.Errorf("output_fields[%d].name is required", i))
		case seen[f.Name]:
			errs = append(errs, fmt.Errorf("output_fields[%d]: duplicate name %q", i, f.Name))
		}
		seen[f.Name] = true
	}

	switch c.State.Type {
	case "memory":
	case "file":
		if c.State.Dir == "" {
			errs = append(errs, fmt.Errorf("state.dir is required when state.type is \"file\""))
		}
	case "sqlite":
		if c.State.Path == "" {
			errs = append(errs, fmt.Errorf("state.path is required when state.type is \"sqlite\""))
		}
	default:
		errs = append(errs, fmt.Errorf("state.type must be \"memory\", \"file\" or \"sqlite\", got %q", c.State.Type))
	}

	if c.Tools.FS.Enabled && c.Tools.FS.Root == "" {
		errs = append(errs, fmt.Errorf("tools.fs.root is required when tools.fs.enabled is set"))
	}
	if c.Tools.Query.MaxCalls < 0 {
		errs = append(errs, fmt.Errorf("tools.query.max_calls must be >= 0, got %d", c.Tools.Query.MaxCalls))
	}
	if c.Tools.Query.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("tools.query.concurrency must be >= 0, got %d", c.Tools.Query.Concurrency))
	}

	names := make(map[string]bool)
	for i, s := range c.MCP.Servers {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("mcp.servers[%d]: %w", i, err))
		}
		if names[s.Name] {
			errs = append(errs, fmt.Errorf("mcp.servers[%d]: duplicate name %q", i, s.Name))
		}
		names[s.Name] = true
	}

	return errors.Join(errs...)
}
