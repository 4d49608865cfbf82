// Package bridge runs scripts in a sandbox session and services the host
// calls they make. Each Execute call is one turn: the script may call
// caller-registered tools, persist values for later turns with save and
// clear, or end the turn with a structured result through submit.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itsmostafa/replbridge/internal/sandbox"
	"github.com/itsmostafa/replbridge/internal/state"
)

// Interpreter is a multi-turn scripting session. Turns run one at a time;
// tools may be registered and unregistered between and during turns, taking
// effect from the next turn.
type Interpreter struct {
	cfg    Config
	logger *slog.Logger
	store  *state.Store

	mu           sync.RWMutex
	tools        map[string]ToolFunc
	outputFields []OutputField

	turnMu sync.Mutex
	turns  atomic.Int64
}

// New creates an Interpreter. Returns ErrConfiguration if cfg is invalid.
func New(cfg Config) (*Interpreter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	tools := make(map[string]ToolFunc, len(cfg.Tools))
	for name, fn := range cfg.Tools {
		tools[name] = fn
	}

	return &Interpreter{
		cfg:          cfg,
		logger:       cfg.Logger.With(slog.String("session_id", cfg.SessionID)),
		store:        state.NewStore(nil),
		tools:        tools,
		outputFields: append([]OutputField(nil), cfg.OutputFields...),
	}, nil
}

// SessionID returns the session identifier.
func (in *Interpreter) SessionID() string { return in.cfg.SessionID }

// Dialect returns the sandbox dialect name.
func (in *Interpreter) Dialect() string { return in.cfg.Sandbox.Name() }

// Start begins a new session by emptying the saved state.
func (in *Interpreter) Start() {
	in.turnMu.Lock()
	defer in.turnMu.Unlock()
	in.store.Clear()
	in.turns.Store(0)
	in.logger.Debug("session started")
}

// Shutdown ends the session. Saved state is kept in memory so it can still
// be inspected or persisted.
func (in *Interpreter) Shutdown() {
	in.logger.Debug("session shut down", slog.Int64("turns", in.turns.Load()))
}

// Register adds or replaces a caller tool.
func (in *Interpreter) Register(name string, fn ToolFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("%w: tool needs a name and a function", ErrConfiguration)
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.tools[name] = fn
	return nil
}

// Unregister removes a caller tool. It reports whether the tool existed.
func (in *Interpreter) Unregister(name string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	_, ok := in.tools[name]
	delete(in.tools, name)
	return ok
}

// Tools returns the caller tool names, sorted.
func (in *Interpreter) Tools() []string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	names := make([]string, 0, len(in.tools))
	for name := range in.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetOutputFields replaces the final output schema.
func (in *Interpreter) SetOutputFields(fields []OutputField) error {
	if err := validateOutputFields(fields); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.outputFields = append([]OutputField(nil), fields...)
	return nil
}

// OutputFields returns the final output schema.
func (in *Interpreter) OutputFields() []OutputField {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return append([]OutputField(nil), in.outputFields...)
}

// State returns a snapshot of the saved values in save order.
func (in *Interpreter) State() sandbox.Bindings {
	return in.store.Bindings()
}

// Restore loads the session's saved values from the configured persister.
// A session that was never persisted starts empty.
func (in *Interpreter) Restore(ctx context.Context) error {
	if in.cfg.Persister == nil {
		return nil
	}
	snap, err := in.cfg.Persister.Load(ctx, in.cfg.SessionID)
	if errors.Is(err, state.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}
	in.store.Reset(snap.Values)
	in.logger.Debug("session restored", slog.Int("values", len(snap.Values)))
	return nil
}

// Persist saves the current values through the configured persister.
func (in *Interpreter) Persist(ctx context.Context) error {
	if in.cfg.Persister == nil {
		return nil
	}
	if err := in.cfg.Persister.Save(ctx, state.Capture(in.cfg.SessionID, in.store)); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// Check validates code statically against the names a turn would see,
// without running it. The sandbox must implement sandbox.Checker.
func (in *Interpreter) Check(code string, variables sandbox.Bindings) error {
	checker, ok := in.cfg.Sandbox.(sandbox.Checker)
	if !ok {
		return fmt.Errorf("%w: dialect %s does not support static checks", ErrConfiguration, in.cfg.Sandbox.Name())
	}
	merged := sandbox.Merge(variables, in.store.Bindings())
	reg := in.registry(in.logger)
	declared := append(merged.Names(), reg.names...)
	if err := checker.Check(code, in.cfg.TypeCheckStubs, declared); err != nil {
		return fromSandbox(err)
	}
	return nil
}

func (in *Interpreter) registry(logger *slog.Logger) *registry {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return newRegistry(in.tools, in.cfg.ReservedNames, in.store, logger)
}

// Execute runs one turn of code. variables are bound as inputs, with saved
// state taking precedence on a name clash.
//
// The turn ends in one of three ways: the script completes and its printed
// text is returned, the script calls submit and the final output is
// returned, or an error aborts the turn. Values saved before a failure stay
// saved. On error the result still lists the tool calls made so far.
func (in *Interpreter) Execute(ctx context.Context, code string, variables sandbox.Bindings) (TurnResult, error) {
	in.turnMu.Lock()
	defer in.turnMu.Unlock()

	start := time.Now()
	turn := in.turns.Add(1)
	logger := in.logger.With(slog.Int64("turn", turn))
	logger.Debug("turn started", slog.String("dialect", in.cfg.Sandbox.Name()))

	t := &turnRun{
		in:     in,
		logger: logger,
		reg:    in.registry(logger),
		fields: in.OutputFields(),
	}
	result, err := t.run(ctx, code, variables)
	result.Duration = time.Since(start)

	if err != nil {
		logger.Debug("turn failed", slog.Any("error", err), slog.Duration("duration", result.Duration))
		return result, err
	}
	logger.Debug("turn finished",
		slog.String("kind", result.Kind().String()),
		slog.Int("tool_calls", len(result.ToolCalls)),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// turnRun holds the state of one Execute call.
type turnRun struct {
	in     *Interpreter
	logger *slog.Logger
	reg    *registry
	fields []OutputField

	mu    sync.Mutex
	parts []string
	calls []ToolCallRecord
}

func (t *turnRun) print(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.parts = append(t.parts, text)
}

func (t *turnRun) run(ctx context.Context, code string, variables sandbox.Bindings) (TurnResult, error) {
	cfg := t.in.cfg
	inputs := sandbox.Merge(variables, t.in.store.Bindings())

	progress, err := cfg.Sandbox.Start(ctx, sandbox.StartRequest{
		Code:           code,
		Inputs:         inputs,
		Callables:      t.reg.names,
		Limits:         cfg.Limits,
		Print:          t.print,
		TypeCheck:      cfg.TypeCheck,
		TypeCheckStubs: cfg.TypeCheckStubs,
	})

	for err == nil {
		susp, ok := progress.(*sandbox.Suspension)
		if !ok {
			break
		}

		var final FinalOutput
		var done bool
		progress, final, done, err = t.service(ctx, susp)
		if done {
			return TurnResult{Final: final, Submitted: true, ToolCalls: t.calls}, nil
		}
	}
	if err != nil {
		if !isBridgeError(err) {
			err = fromSandbox(err)
			var uc *UnknownCallableError
			if errors.As(err, &uc) {
				t.logger.Warn("unknown callable", slog.String("tool", uc.Name))
			}
		}
		return TurnResult{ToolCalls: t.calls}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return TurnResult{
		Output:    strings.Join(t.parts, ""),
		HasOutput: len(t.parts) > 0,
		ToolCalls: t.calls,
	}, nil
}

// service handles one suspension. It either resumes the session and
// returns the next progress, or abandons it and returns the final output
// (done) or an error.
func (t *turnRun) service(ctx context.Context, susp *sandbox.Suspension) (sandbox.Progress, FinalOutput, bool, error) {
	if susp.Kind != sandbox.SuspendCall {
		t.abandon(susp)
		return nil, nil, false, &UnsupportedSuspensionError{Kind: susp.Kind, Name: susp.FunctionName}
	}

	name := susp.FunctionName
	entry, ok := t.reg.lookup(name)
	if !ok {
		t.abandon(susp)
		t.logger.Warn("unknown callable", slog.String("tool", name))
		return nil, nil, false, &UnknownCallableError{Name: name}
	}

	if entry.kind == toolSubmit {
		t.record(ToolCallRecord{Name: name, Args: susp.Args, Kwargs: susp.Kwargs})
		final, err := BuildFinalOutput(t.fields, susp.Args, susp.Kwargs)
		t.abandon(susp)
		if err != nil {
			return nil, nil, false, err
		}
		return nil, final, true, nil
	}

	start := time.Now()
	value, err := callTool(ctx, entry.fn, susp.Args, susp.Kwargs)
	rec := ToolCallRecord{Name: name, Args: susp.Args, Kwargs: susp.Kwargs, Duration: time.Since(start)}
	if err != nil {
		rec.Error = err.Error()
		t.record(rec)
		t.abandon(susp)
		t.logger.Warn("tool failed", slog.String("tool", name), slog.Any("error", err))
		return nil, nil, false, &ToolExecutionError{Tool: name, Err: err}
	}
	rec.Result = value
	t.record(rec)

	progress, err := susp.Resume(ctx, value)
	return progress, nil, false, err
}

func (t *turnRun) record(rec ToolCallRecord) {
	t.calls = append(t.calls, rec)
}

func (t *turnRun) abandon(susp *sandbox.Suspension) {
	if err := susp.Abandon(); err != nil {
		t.logger.Debug("abandon failed", slog.Any("error", err))
	}
}

// callTool invokes fn, turning a panic into an error.
func callTool(ctx context.Context, fn ToolFunc, args []any, kwargs sandbox.Kwargs) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, args, kwargs)
}

func isBridgeError(err error) bool {
	for _, target := range []error{
		ErrSyntax, ErrTypeCheck, ErrRuntime, ErrUnknownCallable,
		ErrToolExecution, ErrUnsupportedSuspension, ErrFinalOutput,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
