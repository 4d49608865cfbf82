package bridge

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/itsmostafa/replbridge/internal/sandbox"
	"github.com/itsmostafa/replbridge/internal/state"
)

// ReservedNames are the names under which the save, clear and submit
// pseudo-tools are exposed to scripts. A reserved name always wins over a
// caller tool registered under the same name; renaming the reserved tools
// is the way to keep such a caller tool reachable.
type ReservedNames struct {
	Save   string `yaml:"save" json:"save"`
	Clear  string `yaml:"clear" json:"clear"`
	Submit string `yaml:"submit" json:"submit"`
}

// DefaultReservedNames returns save, clear and submit.
func DefaultReservedNames() ReservedNames {
	return ReservedNames{Save: "save", Clear: "clear", Submit: "submit"}
}

// UppercaseReservedNames returns SAVE, CLEAR and SUBMIT.
func UppercaseReservedNames() ReservedNames {
	return ReservedNames{Save: "SAVE", Clear: "CLEAR", Submit: "SUBMIT"}
}

func (r ReservedNames) list() []string {
	return []string{r.Save, r.Clear, r.Submit}
}

func (r ReservedNames) isZero() bool {
	return r == ReservedNames{}
}

// OutputField declares one field of the final output. Type is descriptive
// only and is not enforced.
type OutputField struct {
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type" json:"type,omitempty"`
}

// Config holds configuration for an Interpreter.
type Config struct {
	// Sandbox starts the interpreter sessions.
	// Required.
	Sandbox sandbox.Sandbox

	// Tools are the caller-supplied host tools. More can be registered on
	// the Interpreter after construction.
	Tools map[string]ToolFunc

	// TypeCheck enables static validation before each turn runs. The
	// sandbox must implement sandbox.Checker.
	TypeCheck bool

	// TypeCheckStubs are declarations used only during validation.
	TypeCheckStubs string

	// Limits bound each turn's session.
	Limits sandbox.Limits

	// OutputFields is the optional final output schema. Positional submit
	// arguments are assigned to these fields in order.
	OutputFields []OutputField

	// ReservedNames defaults to DefaultReservedNames.
	ReservedNames ReservedNames

	// SessionID identifies the session in logs and persisted snapshots.
	// A random one is generated when empty.
	SessionID string

	// Persister is optional. When set, Restore and Persist load and save
	// the store through it.
	Persister state.Persister

	// Logger receives turn and tool events. Nil discards them.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults. Sandbox must still
// be set.
func DefaultConfig() Config {
	return Config{
		ReservedNames: DefaultReservedNames(),
		Tools:         map[string]ToolFunc{},
	}
}

// Validate checks that required fields are set and that the options are
// consistent. Returns ErrConfiguration describing every problem found.
func (c *Config) Validate() error {
	var problems []string

	if c.Sandbox == nil {
		problems = append(problems, "missing required field: Sandbox")
	} else if c.TypeCheck {
		if _, ok := c.Sandbox.(sandbox.Checker); !ok {
			problems = append(problems, fmt.Sprintf("dialect %s does not support type checking", c.Sandbox.Name()))
		}
	}

	if !c.ReservedNames.isZero() {
		seen := make(map[string]bool)
		for _, name := range c.ReservedNames.list() {
			if name == "" {
				problems = append(problems, "reserved names must not be empty")
				break
			}
			if seen[name] {
				problems = append(problems, fmt.Sprintf("reserved name %q used twice", name))
			}
			seen[name] = true
		}
	}

	for name, fn := range c.Tools {
		if name == "" {
			problems = append(problems, "tool with empty name")
		} else if fn == nil {
			problems = append(problems, fmt.Sprintf("tool %q has no function", name))
		}
	}

	if err := validateOutputFields(c.OutputFields); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.ReservedNames.isZero() {
		c.ReservedNames = DefaultReservedNames()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.SessionID == "" {
		c.SessionID = uuid.New().String()
	}
}

func validateOutputFields(fields []OutputField) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return fmt.Errorf("output field with empty name")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate output field %q", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}
