package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/itsmostafa/replbridge/internal/mcptools"
)

// EnvFile is the dotenv file read from the working directory.
const EnvFile = ".env"

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, REPLBRIDGE_CONFIG env, ./replbridge.yaml)
//  3. .env file, for variables not already set
//  4. REPLBRIDGE_* environment variable overrides
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadEnvFile(EnvFile); err != nil {
		return nil, fmt.Errorf("loading %s: %w", EnvFile, err)
	}

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile sets variables from path without overriding the process
// environment. A missing file is not an error.
func loadEnvFile(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. REPLBRIDGE_CONFIG environment variable
// 3. ./replbridge.yaml in the current directory
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("REPLBRIDGE_CONFIG"); envPath != "" {
		return envPath
	}
	if _, err := os.Stat("replbridge.yaml"); err == nil {
		return "replbridge.yaml"
	}
	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps REPLBRIDGE_* variables to config fields.
func applyEnvOverrides(cfg *Config) error {
	var errs []error

	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}
	integer := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}

	str("REPLBRIDGE_DIALECT", &cfg.Dialect)
	boolean("REPLBRIDGE_TYPE_CHECK", &cfg.TypeCheck)
	str("REPLBRIDGE_STUBS_FILE", &cfg.StubsFile)
	boolean("REPLBRIDGE_UPPERCASE_RESERVED", &cfg.UppercaseReserved)

	duration("REPLBRIDGE_MAX_DURATION", &cfg.Limits.MaxDuration)
	integer("REPLBRIDGE_MAX_CALLS", &cfg.Limits.MaxCalls)
	if v := os.Getenv("REPLBRIDGE_MAX_STEPS"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("REPLBRIDGE_MAX_STEPS: %w", err))
		} else {
			cfg.Limits.MaxSteps = n
		}
	}

	str("REPLBRIDGE_STATE_TYPE", &cfg.State.Type)
	str("REPLBRIDGE_STATE_DIR", &cfg.State.Dir)
	str("REPLBRIDGE_STATE_PATH", &cfg.State.Path)
	str("REPLBRIDGE_SESSION", &cfg.State.Session)

	if v := os.Getenv("REPLBRIDGE_FS_ROOT"); v != "" {
		cfg.Tools.FS.Enabled = true
		cfg.Tools.FS.Root = v
	}
	str("REPLBRIDGE_QUERY_COMMAND", &cfg.Tools.Query.Command)
	integer("REPLBRIDGE_QUERY_MAX_CALLS", &cfg.Tools.Query.MaxCalls)

	// REPLBRIDGE_MCP_SERVERS: JSON array of MCP server configs.
	if v := os.Getenv("REPLBRIDGE_MCP_SERVERS"); v != "" {
		servers, err := parseMCPServersJSON(v)
		if err != nil {
			errs = append(errs, err)
		} else {
			cfg.MCP.Servers = servers
		}
	}

	return errors.Join(errs...)
}

// parseMCPServersJSON parses a JSON array of MCP server configurations.
func parseMCPServersJSON(jsonStr string) ([]mcptools.ServerConfig, error) {
	var servers []mcptools.ServerConfig
	if err := json.Unmarshal([]byte(jsonStr), &servers); err != nil {
		return nil, fmt.Errorf("parsing MCP servers JSON: %w", err)
	}
	return servers, nil
}
