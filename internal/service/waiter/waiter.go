package waiter

import (
	"context"
	"errors"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/launcher-updater/internal/config"
	"github.com/oshokin/launcher-updater/internal/logger"
)

// Result describes how Await finished.
type Result int

const (
	// ResultNoPredecessor means no process identifier was supplied.
	ResultNoPredecessor Result = iota
	// ResultNotRunning means the process had already exited.
	ResultNotRunning
	// ResultExited means the process exited while we waited.
	ResultExited
	// ResultTimedOut means the wait bound expired first.
	ResultTimedOut
	// ResultFailed means the process could not be queried.
	ResultFailed
)

// String returns a log-friendly name of the result.
func (r Result) String() string {
	switch r {
	case ResultNoPredecessor:
		return "no_predecessor"
	case ResultNotRunning:
		return "not_running"
	case ResultExited:
		return "exited"
	case ResultTimedOut:
		return "timed_out"
	case ResultFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// defaultPollInterval is how often process liveness is re-checked.
const defaultPollInterval = 100 * time.Millisecond

// processFinder looks a process up by identifier; nil means it is not running.
type processFinder func(pid int) (ps.Process, error)

// nativeWaiter waits on an OS process handle. handled is false when the
// platform has no such facility or the handle could not be opened.
type nativeWaiter func(ctx context.Context, pid int) (handled bool, err error)

// Waiter waits for a predecessor process to exit.
type Waiter struct {
	// settleDelay is slept after the process exits.
	settleDelay time.Duration
	// timeout bounds the whole wait. Zero waits indefinitely.
	timeout time.Duration
	// pollInterval is the liveness check period.
	pollInterval time.Duration
	// find resolves a pid to a running process.
	find processFinder
	// native waits on a process handle when the platform allows it.
	native nativeWaiter
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithSettleDelay sets the pause after the process exits.
func WithSettleDelay(delay time.Duration) Option {
	return func(w *Waiter) {
		if delay >= 0 {
			w.settleDelay = delay
		}
	}
}

// WithTimeout bounds the wait.
func WithTimeout(timeout time.Duration) Option {
	return func(w *Waiter) {
		if timeout >= 0 {
			w.timeout = timeout
		}
	}
}

// New creates a Waiter with the default settle delay and timeout.
func New(opts ...Option) *Waiter {
	w := &Waiter{
		settleDelay:  config.DefaultSettleDelay,
		timeout:      config.DefaultProcessWaitTimeout,
		pollInterval: defaultPollInterval,
		find:         ps.FindProcess,
		native:       waitNative,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// FromConfig creates a Waiter using the settle delay and timeout of cfg.
func FromConfig(cfg *config.Config) *Waiter {
	return New(WithSettleDelay(cfg.SettleDelay), WithTimeout(cfg.ProcessWaitTimeout))
}

// Await blocks until the process identified by pid terminates, then sleeps the
// settle delay. A pid <= 0 returns immediately. Every failure is logged and
// reported through the result; none of them is fatal.
func (w *Waiter) Await(ctx context.Context, pid int) Result {
	if pid <= 0 {
		logger.Info(ctx, "No predecessor process to wait for")
		return ResultNoPredecessor
	}

	ctx = logger.WithKV(ctx, "pid", pid)

	process, err := w.find(pid)
	if err != nil {
		logger.WarnKV(ctx, "Unable to query predecessor process, proceeding", "error", err)
		return ResultFailed
	}

	if process == nil {
		logger.Info(ctx, "Predecessor process is not running")
		return ResultNotRunning
	}

	logger.InfoKV(ctx, "Waiting for predecessor process to exit", "executable", process.Executable())

	waitCtx, cancel := w.waitContext(ctx)
	defer cancel()

	if err = w.wait(waitCtx, pid); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.WarnKV(ctx, "Predecessor process is still running, proceeding", "timeout", w.timeout.String())
			return ResultTimedOut
		}

		logger.WarnKV(ctx, "Waiting for predecessor process failed, proceeding", "error", err)

		return ResultFailed
	}

	logger.InfoKV(ctx, "Predecessor process exited, settling", "delay", w.settleDelay.String())

	if err = sleep(ctx, w.settleDelay); err != nil {
		logger.WarnKV(ctx, "Settle delay interrupted", "error", err)
	}

	return ResultExited
}

// wait blocks until the process is gone or ctx ends.
func (w *Waiter) wait(ctx context.Context, pid int) error {
	if w.native != nil {
		handled, err := w.native(ctx, pid)
		if handled {
			return err
		}
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			process, err := w.find(pid)
			if err != nil {
				return err
			}

			if process == nil {
				return nil
			}
		}
	}
}

// waitContext applies the wait bound, if any.
func (w *Waiter) waitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, w.timeout)
}

// sleep pauses for d unless ctx ends first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
