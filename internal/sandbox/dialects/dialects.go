// Package dialects maps dialect names to sandbox implementations.
package dialects

import (
	"fmt"
	"strings"

	"github.com/itsmostafa/replbridge/internal/sandbox"
	"github.com/itsmostafa/replbridge/internal/sandbox/javascript"
	"github.com/itsmostafa/replbridge/internal/sandbox/python"
	"github.com/itsmostafa/replbridge/internal/sandbox/tengoscript"
)

// Default is the dialect used when none is configured.
const Default = python.Name

// Names lists the supported dialects.
func Names() []string {
	return []string{python.Name, javascript.Name, tengoscript.Name}
}

// New creates a sandbox for the named dialect. Common aliases such as
// "py", "js" and "starlark" are accepted.
func New(name string) (sandbox.Sandbox, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", python.Name, "py", "starlark":
		return python.New(), nil
	case javascript.Name, "js":
		return javascript.New(), nil
	case tengoscript.Name:
		return tengoscript.New(), nil
	default:
		return nil, fmt.Errorf("unknown dialect: %s (valid options: %s)", name, strings.Join(Names(), ", "))
	}
}

// FromExtension guesses the dialect of a script file from its extension.
func FromExtension(path string) (string, bool) {
	switch {
	case strings.HasSuffix(path, ".py"), strings.HasSuffix(path, ".star"):
		return python.Name, true
	case strings.HasSuffix(path, ".js"):
		return javascript.Name, true
	case strings.HasSuffix(path, ".tengo"):
		return tengoscript.Name, true
	}
	return "", false
}
