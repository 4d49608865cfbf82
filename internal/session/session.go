// Package session assembles an interpreter with its host tools, state
// persistence and history from a loaded configuration.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/itsmostafa/replbridge/internal/bridge"
	"github.com/itsmostafa/replbridge/internal/config"
	"github.com/itsmostafa/replbridge/internal/hosttools"
	"github.com/itsmostafa/replbridge/internal/mcptools"
	"github.com/itsmostafa/replbridge/internal/sandbox"
	"github.com/itsmostafa/replbridge/internal/sandbox/dialects"
	"github.com/itsmostafa/replbridge/internal/state"
	"github.com/itsmostafa/replbridge/internal/transcript"
)

// Session is an open interpreter plus the resources it owns.
type Session struct {
	Interp  *bridge.Interpreter
	History *transcript.History

	cfg     *config.Config
	logger  *slog.Logger
	closers []func() error
}

// Open builds the session described by cfg. Saved state is restored when a
// persistent state store and a session ID are configured. Close must be
// called when done.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Session, err error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Session{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	sb, err := dialects.New(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	var stubs string
	if cfg.StubsFile != "" {
		data, err := os.ReadFile(cfg.StubsFile)
		if err != nil {
			return nil, fmt.Errorf("reading stubs: %w", err)
		}
		stubs = string(data)
	}

	tools, err := s.tools(ctx)
	if err != nil {
		return nil, err
	}

	persister, err := s.persister()
	if err != nil {
		return nil, err
	}

	interp, err := bridge.New(bridge.Config{
		Sandbox:        sb,
		Tools:          tools,
		TypeCheck:      cfg.TypeCheck,
		TypeCheckStubs: stubs,
		Limits:         cfg.Limits,
		OutputFields:   cfg.OutputFields,
		ReservedNames:  cfg.ReservedNames(),
		SessionID:      cfg.State.Session,
		Persister:      persister,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	interp.Start()
	if err := interp.Restore(ctx); err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() error {
		interp.Shutdown()
		return nil
	})

	s.Interp = interp
	s.History = &transcript.History{MaxOutputChars: cfg.MaxOutputChars}
	return s, nil
}

// Run executes one turn, records it in the history and persists the saved
// state. State is persisted even when the turn fails, since saves made
// before the failure stand.
func (s *Session) Run(ctx context.Context, code string, variables sandbox.Bindings) (bridge.TurnResult, error) {
	result, err := s.Interp.Execute(ctx, code, variables)
	s.History.Add(code, result, err)
	if perr := s.Interp.Persist(ctx); perr != nil {
		s.logger.Warn("failed to persist state", slog.Any("error", perr))
		if err == nil {
			err = perr
		}
	}
	return result, err
}

// Languages returns the markdown fence tags for the session's dialect.
func (s *Session) Languages() []string {
	return transcript.Languages(s.Interp.Dialect())
}

// Close shuts the interpreter down and releases stores and MCP
// connections.
func (s *Session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Session) tools(ctx context.Context) (map[string]bridge.ToolFunc, error) {
	var sets []map[string]bridge.ToolFunc

	if s.cfg.Tools.Regex {
		sets = append(sets, hosttools.Regex{}.Tools())
	}
	if fsCfg := s.cfg.Tools.FS; fsCfg.Enabled {
		fs := hosttools.NewFS(fsCfg.Root)
		if fsCfg.MaxFileSize > 0 {
			fs.MaxFileSize = fsCfg.MaxFileSize
		}
		sets = append(sets, fs.Tools())
	}
	if q := s.cfg.Tools.Query; q.Command != "" {
		querier, err := hosttools.NewCommandQuerier(q.Command, q.Timeout)
		if err != nil {
			return nil, err
		}
		queries := hosttools.NewQueries(querier, q.MaxCalls)
		if q.Concurrency > 0 {
			queries.Concurrency = q.Concurrency
		}
		sets = append(sets, queries.Tools())
	}

	for _, server := range s.cfg.MCP.Servers {
		client := mcptools.NewClient(server, s.logger)
		if err := client.Connect(ctx); err != nil {
			return nil, err
		}
		s.closers = append(s.closers, client.Close)
		remote, err := client.Tools(ctx)
		if err != nil {
			return nil, err
		}
		sets = append(sets, remote)
	}

	tools := hosttools.Collect(sets...)
	s.logger.Debug("host tools ready", slog.Int("count", len(tools)))
	return tools, nil
}

func (s *Session) persister() (state.Persister, error) {
	switch s.cfg.State.Type {
	case "file":
		return state.NewFileStore(s.cfg.State.Dir), nil
	case "sqlite":
		store, err := state.OpenSQLite(s.cfg.State.Path, s.logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, store.Close)
		return store, nil
	default:
		return nil, nil
	}
}
