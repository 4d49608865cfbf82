package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRun_SuspendResumeComplete(t *testing.T) {
	var printed strings.Builder
	req := StartRequest{Print: func(s string) { printed.WriteString(s) }}

	progress, err := Run(context.Background(), req, func(ctx context.Context, host Host) error {
		v, err := host.Call("add", []any{int64(1), int64(2)}, Kwargs{{Name: "scale", Value: int64(10)}})
		if err != nil {
			return err
		}
		host.Print("got " + v.(string) + "\n")
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	susp, ok := progress.(*Suspension)
	if !ok {
		t.Fatalf("expected suspension, got %T", progress)
	}
	if susp.Kind != SuspendCall || susp.FunctionName != "add" {
		t.Errorf("unexpected suspension: %v %q", susp.Kind, susp.FunctionName)
	}
	if len(susp.Args) != 2 {
		t.Errorf("expected 2 args, got %d", len(susp.Args))
	}
	if v, _ := susp.Kwargs.Get("scale"); v != int64(10) {
		t.Errorf("expected scale=10, got %v", v)
	}
	if susp.State() != StateAwaitingHostCall {
		t.Errorf("expected awaiting state, got %s", susp.State())
	}

	progress, err = susp.Resume(context.Background(), "30")
	if err != nil {
		t.Fatalf("unexpected resume error: %v", err)
	}
	if _, ok := progress.(*Completion); !ok {
		t.Fatalf("expected completion, got %T", progress)
	}
	if printed.String() != "got 30\n" {
		t.Errorf("unexpected output: %q", printed.String())
	}
	if susp.State() != StateCompleted {
		t.Errorf("expected completed state, got %s", susp.State())
	}
}

func TestRun_ResumeTwice(t *testing.T) {
	progress, err := Run(context.Background(), StartRequest{}, func(ctx context.Context, host Host) error {
		_, err := host.Call("f", nil, nil)
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	susp := progress.(*Suspension)
	if _, err := susp.Resume(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := susp.Resume(context.Background(), nil); !errors.Is(err, ErrSuspensionConsumed) {
		t.Errorf("expected ErrSuspensionConsumed, got %v", err)
	}
	if err := susp.Abandon(); !errors.Is(err, ErrSuspensionConsumed) {
		t.Errorf("expected ErrSuspensionConsumed from Abandon, got %v", err)
	}
}

func TestRun_Abandon(t *testing.T) {
	sawErr := make(chan error, 1)
	progress, err := Run(context.Background(), StartRequest{}, func(ctx context.Context, host Host) error {
		_, err := host.Call("f", nil, nil)
		sawErr <- err
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	susp := progress.(*Suspension)
	if err := susp.Abandon(); err != nil {
		t.Fatalf("unexpected abandon error: %v", err)
	}
	if susp.State() != StateAbandoned {
		t.Errorf("expected abandoned state, got %s", susp.State())
	}
	select {
	case err := <-sawErr:
		if !errors.Is(err, errAbandoned) {
			t.Errorf("expected errAbandoned inside script, got %v", err)
		}
	default:
		t.Fatal("script goroutine was not drained by Abandon")
	}
}

func TestRun_Future(t *testing.T) {
	progress, err := Run(context.Background(), StartRequest{}, func(ctx context.Context, host Host) error {
		_, err := host.Await("fetch", nil, nil)
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	susp := progress.(*Suspension)
	if susp.Kind != SuspendFuture {
		t.Errorf("expected future suspension, got %s", susp.Kind)
	}
	_ = susp.Abandon()
}

func TestRun_MaxCalls(t *testing.T) {
	req := StartRequest{Limits: Limits{MaxCalls: 1}}
	progress, err := Run(context.Background(), req, func(ctx context.Context, host Host) error {
		for {
			if _, err := host.Call("f", nil, nil); err != nil {
				return err
			}
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = progress.(*Suspension).Resume(context.Background(), nil)
	if !errors.Is(err, ErrLimit) {
		t.Fatalf("expected limit error, got %v", err)
	}
}

func TestRun_MaxDuration(t *testing.T) {
	req := StartRequest{Limits: Limits{MaxDuration: 20 * time.Millisecond}}
	_, err := Run(context.Background(), req, func(ctx context.Context, host Host) error {
		<-ctx.Done()
		return errors.New("interrupted")
	})
	if !errors.Is(err, ErrLimit) {
		t.Fatalf("expected limit error, got %v", err)
	}
	var se *Error
	if !errors.As(err, &se) || !errors.Is(se, context.DeadlineExceeded) {
		t.Errorf("expected deadline cause, got %v", err)
	}
}

func TestRun_ScriptError(t *testing.T) {
	tests := []struct {
		name   string
		script ScriptFunc
		want   error
	}{
		{
			name: "plain error becomes runtime",
			script: func(ctx context.Context, host Host) error {
				return errors.New("boom")
			},
			want: ErrRuntime,
		},
		{
			name: "typed error kept",
			script: func(ctx context.Context, host Host) error {
				return Errorf(KindLimit, "too many steps")
			},
			want: ErrLimit,
		},
		{
			name: "panic recovered",
			script: func(ctx context.Context, host Host) error {
				panic("bad interpreter")
			},
			want: ErrRuntime,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(context.Background(), StartRequest{}, tt.script)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRun_CallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()
	_, err := Run(ctx, StartRequest{}, func(ctx context.Context, host Host) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
