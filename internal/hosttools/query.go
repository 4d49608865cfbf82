package hosttools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/itsmostafa/replbridge/internal/bridge"
	"github.com/itsmostafa/replbridge/internal/sandbox"
)

// Querier answers a free-form prompt, typically by asking a language model.
type Querier interface {
	Query(ctx context.Context, prompt string) (string, error)
}

// QueryFunc adapts a function to the Querier interface.
type QueryFunc func(ctx context.Context, prompt string) (string, error)

func (f QueryFunc) Query(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// CommandQuerier pipes each prompt to an external command on stdin and
// returns its trimmed stdout.
type CommandQuerier struct {
	Name    string
	Args    []string
	Timeout time.Duration
}

// NewCommandQuerier splits command on whitespace into a program and its
// arguments.
func NewCommandQuerier(command string, timeout time.Duration) (*CommandQuerier, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty query command")
	}
	return &CommandQuerier{Name: parts[0], Args: parts[1:], Timeout: timeout}, nil
}

func (c *CommandQuerier) Query(ctx context.Context, prompt string) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", c.Name, err, msg)
		}
		return "", fmt.Errorf("%s: %w", c.Name, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Queries exposes a Querier to scripts with a shared call budget.
type Queries struct {
	Querier Querier

	// MaxCalls bounds the total number of prompts across all turns.
	// Zero means unlimited.
	MaxCalls int

	// Concurrency bounds parallel prompts in a batch (default: 4).
	Concurrency int

	mu   sync.Mutex
	used int
}

// NewQueries creates Queries over q.
func NewQueries(q Querier, maxCalls int) *Queries {
	return &Queries{Querier: q, MaxCalls: maxCalls, Concurrency: 4}
}

// Used returns the number of prompts sent so far.
func (q *Queries) Used() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used
}

// reserve claims n calls from the budget.
func (q *Queries) reserve(n int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.MaxCalls > 0 && q.used+n > q.MaxCalls {
		return fmt.Errorf("query budget exhausted: %d of %d calls used, %d requested", q.used, q.MaxCalls, n)
	}
	q.used += n
	return nil
}

// Query sends one prompt.
func (q *Queries) Query(ctx context.Context, prompt string) (string, error) {
	if err := q.reserve(1); err != nil {
		return "", err
	}
	return q.Querier.Query(ctx, prompt)
}

// Batch sends prompts concurrently and returns the answers in prompt
// order. The first failure cancels the rest.
func (q *Queries) Batch(ctx context.Context, prompts []string) ([]string, error) {
	if err := q.reserve(len(prompts)); err != nil {
		return nil, err
	}

	limit := q.Concurrency
	if limit <= 0 {
		limit = 4
	}
	results := make([]string, len(prompts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, prompt := range prompts {
		g.Go(func() error {
			resp, err := q.Querier.Query(gctx, prompt)
			if err != nil {
				return fmt.Errorf("batch request %d failed: %w", i, err)
			}
			results[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Tools returns llm_query and llm_query_batched.
func (q *Queries) Tools() map[string]bridge.ToolFunc {
	return map[string]bridge.ToolFunc{
		"llm_query": func(ctx context.Context, args []any, kwargs sandbox.Kwargs) (any, error) {
			prompt, err := newParams("llm_query", args, kwargs).requireString(0, "prompt")
			if err != nil {
				return nil, err
			}
			return q.Query(ctx, prompt)
		},
		"llm_query_batched": func(ctx context.Context, args []any, kwargs sandbox.Kwargs) (any, error) {
			prompts, err := newParams("llm_query_batched", args, kwargs).requireStrings(0, "prompts")
			if err != nil {
				return nil, err
			}
			answers, err := q.Batch(ctx, prompts)
			if err != nil {
				return nil, err
			}
			return stringList(answers), nil
		},
	}
}
