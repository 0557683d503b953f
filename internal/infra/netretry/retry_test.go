package netretry

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/vietddude/fetcher/internal/core/config"
	"github.com/vietddude/fetcher/internal/infra/transport"
)

// recordShell captures warnings; setting fail makes Warn report a broken sink.
type recordShell struct {
	warns []string
	fail  error
}

func (s *recordShell) Warn(msg string) error {
	if s.fail != nil {
		return s.fail
	}
	s.warns = append(s.warns, msg)
	return nil
}

func cfgWithRetry(n int) *config.AppConfig {
	return &config.AppConfig{Net: config.NetConfig{Retry: &n}}
}

func outcome(code int) error {
	return &transport.NotSuccessful{StatusCode: code, URL: "https://registry.example/a.crate"}
}

// scriptOp returns the scripted results one by one and counts invocations.
type scriptOp struct {
	results []error
	calls   int
}

func (s *scriptOp) run() (string, error) {
	err := s.results[s.calls]
	s.calls++
	if err != nil {
		return "", err
	}
	return "payload", nil
}

func TestDo_RetriesSpuriousThenSucceeds(t *testing.T) {
	shell := &recordShell{}
	op := &scriptOp{results: []error{outcome(502), outcome(501), nil}}

	got, err := Do(cfgWithRetry(2), shell, op.run)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "payload" {
		t.Errorf("result = %q, want %q", got, "payload")
	}
	if op.calls != 3 {
		t.Errorf("op invoked %d times, want 3", op.calls)
	}
	if len(shell.warns) != 2 {
		t.Fatalf("got %d warnings, want 2", len(shell.warns))
	}

	// Remaining count is shown before decrementing, and each warning names
	// the root cause of that attempt's failure.
	want0 := fmt.Sprintf("spurious network error (2 tries remaining): %v", outcome(502))
	if shell.warns[0] != want0 {
		t.Errorf("first warning = %q, want %q", shell.warns[0], want0)
	}
	want1 := fmt.Sprintf("spurious network error (1 tries remaining): %v", outcome(501))
	if shell.warns[1] != want1 {
		t.Errorf("second warning = %q, want %q", shell.warns[1], want1)
	}
}

func TestDo_ZeroBudgetReturnsImmediately(t *testing.T) {
	shell := &recordShell{}
	op := &scriptOp{results: []error{outcome(502)}}

	_, err := Do(cfgWithRetry(0), shell, op.run)

	var ns *transport.NotSuccessful
	if !errors.As(err, &ns) || ns.StatusCode != 502 {
		t.Fatalf("err = %v, want the original 502 outcome", err)
	}
	if op.calls != 1 {
		t.Errorf("op invoked %d times, want 1", op.calls)
	}
	if len(shell.warns) != 0 {
		t.Errorf("got %d warnings, want 0", len(shell.warns))
	}
}

func TestDo_UnclassifiedErrorNeverRetried(t *testing.T) {
	shell := &recordShell{}
	boom := errors.New("disk quota exceeded")
	op := &scriptOp{results: []error{boom}}

	_, err := Do(cfgWithRetry(3), shell, op.run)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v unmodified", err, boom)
	}
	if op.calls != 1 {
		t.Errorf("op invoked %d times, want 1", op.calls)
	}
	if len(shell.warns) != 0 {
		t.Errorf("got %d warnings, want 0", len(shell.warns))
	}
}

func TestDo_BudgetBoundsInvocations(t *testing.T) {
	shell := &recordShell{}
	op := &scriptOp{results: []error{outcome(503), outcome(503), outcome(503), outcome(503)}}

	_, err := Do(cfgWithRetry(2), shell, op.run)

	var ns *transport.NotSuccessful
	if !errors.As(err, &ns) || ns.StatusCode != 503 {
		t.Fatalf("err = %v, want the last 503 outcome", err)
	}
	if op.calls != 3 {
		t.Errorf("op invoked %d times, want 3 (initial + budget)", op.calls)
	}
	if len(shell.warns) != 2 {
		t.Errorf("got %d warnings, want 2", len(shell.warns))
	}
}

func TestDo_WrappedSpuriousCauseStillRetried(t *testing.T) {
	shell := &recordShell{}
	wrapped := fmt.Errorf("failed to update index: %w",
		fmt.Errorf("downloading config: %w", outcome(502)))
	op := &scriptOp{results: []error{wrapped, nil}}

	got, err := Do(cfgWithRetry(2), shell, op.run)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "payload" {
		t.Errorf("result = %q, want %q", got, "payload")
	}
	if len(shell.warns) != 1 {
		t.Fatalf("got %d warnings, want 1", len(shell.warns))
	}
	// The warning shows the innermost cause, not the wrapping context.
	if !strings.Contains(shell.warns[0], "502") || strings.Contains(shell.warns[0], "failed to update index") {
		t.Errorf("warning should name the root cause only, got %q", shell.warns[0])
	}
}

func TestDo_BrokenShellAbortsSession(t *testing.T) {
	sinkErr := errors.New("broken pipe writing warning")
	shell := &recordShell{fail: sinkErr}
	op := &scriptOp{results: []error{outcome(502), nil}}

	_, err := Do(cfgWithRetry(2), shell, op.run)
	if !errors.Is(err, sinkErr) {
		t.Fatalf("err = %v, want the shell error %v", err, sinkErr)
	}
	if op.calls != 1 {
		t.Errorf("op invoked %d times, want 1", op.calls)
	}
}

func TestDo_InvalidConfigFailsBeforeFirstAttempt(t *testing.T) {
	shell := &recordShell{}
	op := &scriptOp{results: []error{nil}}

	_, err := Do(cfgWithRetry(-1), shell, op.run)
	if err == nil {
		t.Fatal("expected a config error")
	}
	if op.calls != 0 {
		t.Errorf("op invoked %d times, want 0", op.calls)
	}
}

func TestNew_DefaultBudget(t *testing.T) {
	r, err := New(&config.AppConfig{}, &recordShell{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Remaining() != 2 {
		t.Errorf("default remaining = %d, want 2", r.Remaining())
	}
}

func TestRetry_TryDecrementsOncePerWarning(t *testing.T) {
	shell := &recordShell{}
	r, err := New(cfgWithRetry(2), shell)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done, err := r.Try(func() error { return outcome(500) })
	if done || err != nil {
		t.Fatalf("Try = (%v, %v), want retry signal", done, err)
	}
	if r.Remaining() != 1 {
		t.Errorf("remaining = %d, want 1", r.Remaining())
	}

	done, err = r.Try(func() error { return nil })
	if !done || err != nil {
		t.Fatalf("Try = (%v, %v), want success", done, err)
	}
	if r.Remaining() != 1 {
		t.Errorf("remaining = %d after success, want 1", r.Remaining())
	}
}
