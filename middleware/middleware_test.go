package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/xraph/herald/job"
	"github.com/xraph/herald/middleware"
)

func tag(name string, trace *[]string) middleware.Middleware {
	return func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		*trace = append(*trace, name+">")
		err := next(ctx)
		*trace = append(*trace, "<"+name)
		return err
	}
}

func TestChain(t *testing.T) {
	tests := []struct {
		name  string
		build func(trace *[]string) middleware.Middleware
		want  string
	}{
		{
			name:  "empty",
			build: func(*[]string) middleware.Middleware { return middleware.Chain() },
			want:  "exec",
		},
		{
			name: "outermost first",
			build: func(tr *[]string) middleware.Middleware {
				return middleware.Chain(tag("a", tr), tag("b", tr), tag("c", tr))
			},
			want: "a> b> c> exec <c <b <a",
		},
		{
			name: "nested chains flatten",
			build: func(tr *[]string) middleware.Middleware {
				return middleware.Chain(tag("a", tr), middleware.Chain(tag("b", tr), tag("c", tr)))
			},
			want: "a> b> c> exec <c <b <a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var trace []string
			m := tt.build(&trace)
			// Run twice: a chain must be reusable across attempts.
			for range 2 {
				trace = trace[:0]
				err := m(context.Background(), &job.Job{ID: 1}, func(context.Context) error {
					trace = append(trace, "exec")
					return nil
				})
				if err != nil {
					t.Fatalf("chain: %v", err)
				}
				if got := strings.Join(trace, " "); got != tt.want {
					t.Errorf("trace = %q, want %q", got, tt.want)
				}
			}
		})
	}
}

func TestChain_ShortCircuit(t *testing.T) {
	reject := errors.New("rejected")
	var trace []string
	m := middleware.Chain(
		tag("outer", &trace),
		func(context.Context, *job.Job, middleware.Handler) error { return reject },
		tag("inner", &trace),
	)

	err := m(context.Background(), &job.Job{ID: 1}, func(context.Context) error {
		t.Fatal("executor reached past a short-circuit")
		return nil
	})
	if !errors.Is(err, reject) {
		t.Fatalf("err = %v, want %v", err, reject)
	}
	if got := strings.Join(trace, " "); got != "outer> <outer" {
		t.Errorf("trace = %q", got)
	}
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	j := &job.Job{ID: 42, Kind: job.KindTrigger}

	err := middleware.Recover(logger)(context.Background(), j, func(context.Context) error {
		panic("nil map write")
	})
	if err == nil || err.Error() != "trigger executor panicked: nil map write" {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(buf.String(), `"job_id":42`) || !strings.Contains(buf.String(), `"stack"`) {
		t.Errorf("panic log missing job id or stack: %s", buf.String())
	}

	plain := errors.New("plain failure")
	err = middleware.Recover(logger)(context.Background(), j, func(context.Context) error { return plain })
	if !errors.Is(err, plain) {
		t.Errorf("ordinary error rewritten: %v", err)
	}
}

func TestLogging(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel string
		wantMsg   string
	}{
		{name: "success", wantLevel: "INFO", wantMsg: "attempt succeeded"},
		{name: "failure", err: errors.New("webhook 500"), wantLevel: "WARN", wantMsg: "attempt failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			j := &job.Job{ID: 3, Kind: job.KindDelivery, RetryCount: 2, MaxRetries: 5}

			err := middleware.Logging(logger)(context.Background(), j, func(context.Context) error { return tt.err })
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			out := buf.String()
			for _, want := range []string{`"level":"` + tt.wantLevel + `"`, tt.wantMsg, `"attempt":3`, `"max_retries":5`} {
				if !strings.Contains(out, want) {
					t.Errorf("log %q missing %s", out, want)
				}
			}
		})
	}
}

func TestTimeout(t *testing.T) {
	t.Run("bounds the attempt", func(t *testing.T) {
		err := middleware.Timeout(10*time.Millisecond)(context.Background(), &job.Job{ID: 9}, func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				t.Error("attempt has no deadline")
			}
			<-ctx.Done()
			return ctx.Err()
		})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("err = %v, want DeadlineExceeded", err)
		}
		if !strings.Contains(err.Error(), "job 9 timed out after 10ms") {
			t.Errorf("err = %q", err)
		}
	})

	t.Run("zero disables", func(t *testing.T) {
		err := middleware.Timeout(0)(context.Background(), &job.Job{ID: 1}, func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); ok {
				t.Error("zero timeout set a deadline")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("fast failure is not a timeout", func(t *testing.T) {
		cause := errors.New("401 unauthorized")
		err := middleware.Timeout(time.Second)(context.Background(), &job.Job{ID: 2}, func(context.Context) error {
			return cause
		})
		if err != cause {
			t.Errorf("err = %v, want the executor error unchanged", err)
		}
	})
}
