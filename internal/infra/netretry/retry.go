// Package netretry re-invokes fallible network operations when the failure
// looks transient. It only counts attempts and classifies outcomes; backoff
// and cancellation belong to the caller or the wrapped operation.
package netretry

import (
	"fmt"
	"log/slog"

	"github.com/vietddude/fetcher/internal/core/config"
)

// defaultRetries is the number of additional attempts after the first when
// net.retry is not configured.
const defaultRetries = 2

// Shell receives one warning line per suppressed retry. Implementations own
// their thread safety; a single retry session never calls Warn concurrently.
type Shell interface {
	Warn(msg string) error
}

// LogShell is a Shell that writes warnings through slog and never fails.
type LogShell struct {
	Log *slog.Logger
}

func (s LogShell) Warn(msg string) error {
	s.Log.Warn(msg)
	return nil
}

// Retry is one retry session. It holds the remaining budget of additional
// attempts and is discarded when the session ends.
type Retry struct {
	shell     Shell
	remaining int
}

// New builds a retry session from the net config section. It fails before any
// attempt if the section is invalid.
func New(cfg *config.AppConfig, shell Shell) (*Retry, error) {
	net, err := cfg.NetCfg()
	if err != nil {
		return nil, err
	}
	remaining := defaultRetries
	if net.Retry != nil {
		remaining = *net.Retry
	}
	return &Retry{shell: shell, remaining: remaining}, nil
}

// Remaining returns the retry budget left in this session.
func (r *Retry) Remaining() int {
	return r.remaining
}

// Try invokes op once. done is false when the failure was spurious, budget
// remained and a warning was emitted; the caller should invoke Try again.
// Otherwise the session is over: err is nil on success, the unmodified
// operation error on failure, or the Warn error if the shell broke.
func (r *Retry) Try(op func() error) (done bool, err error) {
	err = op()
	if err == nil {
		return true, nil
	}
	if !maybeSpurious(err) || r.remaining == 0 {
		return true, err
	}

	msg := fmt.Sprintf("spurious network error (%d tries remaining): %v", r.remaining, RootCause(err))
	if werr := r.shell.Warn(msg); werr != nil {
		// A broken warning sink ends the whole session.
		return true, werr
	}
	r.remaining--

	return false, nil
}

// Do runs op under a retry session built from cfg and returns its result.
// The last error is returned as-is when the budget runs out or the failure is
// not spurious.
func Do[T any](cfg *config.AppConfig, shell Shell, op func() (T, error)) (T, error) {
	var result T

	r, err := New(cfg, shell)
	if err != nil {
		return result, err
	}

	for {
		done, err := r.Try(func() error {
			var opErr error
			result, opErr = op()
			return opErr
		})
		if done {
			return result, err
		}
	}
}
