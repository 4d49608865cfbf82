package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/itsmostafa/replbridge/internal/bridge"
	"github.com/itsmostafa/replbridge/internal/config"
	"github.com/itsmostafa/replbridge/internal/sandbox"
)

// sessionFlags override configuration values for one invocation.
type sessionFlags struct {
	dialect      string
	typeCheck    bool
	stubs        string
	stateDir     string
	stateDB      string
	session      string
	outputFields []string
	uppercase    bool
	fsRoot       string
	queryCommand string
	maxDuration  time.Duration
	maxSteps     uint64
	maxCalls     int
	maxAllocs    int64
	vars         []string
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.dialect, "dialect", "d", "", "Script dialect (python, javascript, tengo)")
	flags.BoolVar(&f.typeCheck, "type-check", false, "Validate code statically before running it")
	flags.StringVar(&f.stubs, "stubs", "", "Declarations file used only during validation")
	flags.StringVar(&f.stateDir, "state-dir", "", "Persist saved state as JSON files in this directory")
	flags.StringVar(&f.stateDB, "state-db", "", "Persist saved state in this SQLite database")
	flags.StringVar(&f.session, "session", "", "Session ID to resume")
	flags.StringArrayVar(&f.outputFields, "output-field", nil, "Final output field as name or name:type (repeatable)")
	flags.BoolVar(&f.uppercase, "uppercase-reserved", false, "Expose SAVE, CLEAR and SUBMIT instead of save, clear and submit")
	flags.StringVar(&f.fsRoot, "fs-root", "", "Enable the fs_* tools confined to this directory")
	flags.StringVar(&f.queryCommand, "query-command", "", "Command answering llm_query prompts on stdin")
	flags.DurationVar(&f.maxDuration, "max-duration", 0, "Wall-clock limit per turn (0 = unlimited)")
	flags.Uint64Var(&f.maxSteps, "max-steps", 0, "Interpreter step limit per turn (0 = unlimited)")
	flags.IntVar(&f.maxCalls, "max-calls", 0, "Host call limit per turn (0 = unlimited)")
	flags.Int64Var(&f.maxAllocs, "max-allocs", 0, "Allocation limit per turn where supported (0 = unlimited)")
	flags.StringArrayVar(&f.vars, "var", nil, "Input variable as name=value, value parsed as JSON when possible (repeatable)")
}

// loadConfig loads the config file and applies the flags that were set.
func (f *sessionFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("dialect") {
		cfg.Dialect = f.dialect
	}
	if flags.Changed("type-check") {
		cfg.TypeCheck = f.typeCheck
	}
	if flags.Changed("stubs") {
		cfg.StubsFile = f.stubs
	}
	if flags.Changed("state-dir") {
		cfg.State.Type = "file"
		cfg.State.Dir = f.stateDir
	}
	if flags.Changed("state-db") {
		cfg.State.Type = "sqlite"
		cfg.State.Path = f.stateDB
	}
	if flags.Changed("session") {
		cfg.State.Session = f.session
	}
	if flags.Changed("output-field") {
		fields, err := parseOutputFields(f.outputFields)
		if err != nil {
			return nil, err
		}
		cfg.OutputFields = fields
	}
	if flags.Changed("uppercase-reserved") {
		cfg.UppercaseReserved = f.uppercase
	}
	if flags.Changed("fs-root") {
		cfg.Tools.FS.Enabled = true
		cfg.Tools.FS.Root = f.fsRoot
	}
	if flags.Changed("query-command") {
		cfg.Tools.Query.Command = f.queryCommand
	}
	if flags.Changed("max-duration") {
		cfg.Limits.MaxDuration = f.maxDuration
	}
	if flags.Changed("max-steps") {
		cfg.Limits.MaxSteps = f.maxSteps
	}
	if flags.Changed("max-calls") {
		cfg.Limits.MaxCalls = f.maxCalls
	}
	if flags.Changed("max-allocs") {
		cfg.Limits.MaxAllocs = f.maxAllocs
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// variables parses the --var flags.
func (f *sessionFlags) variables() (sandbox.Bindings, error) {
	return parseVars(f.vars)
}

func parseVars(specs []string) (sandbox.Bindings, error) {
	vars := sandbox.Bindings{}
	for _, spec := range specs {
		name, raw, ok := strings.Cut(spec, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q: expected name=value", spec)
		}
		var value any = raw
		if json.Valid([]byte(raw)) {
			decoded, err := sandbox.DecodeJSON([]byte(raw))
			if err != nil {
				return nil, fmt.Errorf("invalid --var %q: %w", spec, err)
			}
			value = decoded
		}
		vars = vars.Set(name, value)
	}
	return vars, nil
}

func parseOutputFields(specs []string) ([]bridge.OutputField, error) {
	fields := make([]bridge.OutputField, 0, len(specs))
	for _, spec := range specs {
		name, typ, _ := strings.Cut(spec, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid --output-field %q: expected name or name:type", spec)
		}
		fields = append(fields, bridge.OutputField{Name: name, Type: strings.TrimSpace(typ)})
	}
	return fields, nil
}
