package bridge

import (
	"context"
	"log/slog"
	"sort"

	"github.com/itsmostafa/replbridge/internal/sandbox"
	"github.com/itsmostafa/replbridge/internal/state"
)

// ToolFunc is a host tool callable from scripts. args and kwargs use the
// portable value model of sandbox.Normalize. The returned value is handed
// back to the script; a returned error fails the turn.
type ToolFunc func(ctx context.Context, args []any, kwargs sandbox.Kwargs) (any, error)

type toolKind int

const (
	toolCaller toolKind = iota
	toolSave
	toolClear
	toolSubmit
)

type registryEntry struct {
	kind toolKind
	fn   ToolFunc
}

// registry is the immutable set of names callable during one turn: the
// caller tools as they were when the turn started, overlaid with the
// reserved tools.
type registry struct {
	entries map[string]registryEntry
	names   []string
}

func newRegistry(tools map[string]ToolFunc, reserved ReservedNames, store *state.Store, logger *slog.Logger) *registry {
	r := &registry{entries: make(map[string]registryEntry, len(tools)+3)}
	for name, fn := range tools {
		r.entries[name] = registryEntry{kind: toolCaller, fn: fn}
	}

	overlay := []struct {
		name string
		kind toolKind
		fn   ToolFunc
	}{
		{reserved.Save, toolSave, func(_ context.Context, args []any, kwargs sandbox.Kwargs) (any, error) {
			return Save(store, args, kwargs)
		}},
		{reserved.Clear, toolClear, func(_ context.Context, args []any, kwargs sandbox.Kwargs) (any, error) {
			return Clear(store, args, kwargs)
		}},
		{reserved.Submit, toolSubmit, nil},
	}
	for _, o := range overlay {
		if prev, ok := r.entries[o.name]; ok && prev.kind == toolCaller {
			logger.Warn("caller tool shadowed by reserved tool", slog.String("tool", o.name))
		}
		r.entries[o.name] = registryEntry{kind: o.kind, fn: o.fn}
	}

	r.names = make([]string, 0, len(r.entries))
	for name := range r.entries {
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r
}

func (r *registry) lookup(name string) (registryEntry, bool) {
	e, ok := r.entries[name]
	return e, ok
}
