package waiter

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mitchellh/go-ps"
	"github.com/stretchr/testify/require"
)

var errQuery = errors.New("process table unavailable")

// fakeProcess is a minimal ps.Process for tests.
type fakeProcess struct {
	// pid is the process identifier.
	pid int
}

func (p fakeProcess) Pid() int           { return p.pid }
func (p fakeProcess) PPid() int          { return 1 }
func (p fakeProcess) Executable() string { return "launcher" }

// exitingFinder reports the process alive for the first `alive` lookups.
func exitingFinder(alive int32) (processFinder, *atomic.Int32) {
	var calls atomic.Int32

	return func(pid int) (ps.Process, error) {
		if calls.Add(1) <= alive {
			return fakeProcess{pid: pid}, nil
		}

		return nil, nil
	}, &calls
}

// newTestWaiter builds a waiter with fast polling and no native wait.
func newTestWaiter(find processFinder, opts ...Option) *Waiter {
	w := New(opts...)
	w.find = find
	w.native = nil
	w.pollInterval = time.Millisecond

	return w
}

// TestAwait_NoPredecessor returns immediately for absent or invalid identifiers.
func TestAwait_NoPredecessor(t *testing.T) {
	t.Parallel()

	w := newTestWaiter(func(int) (ps.Process, error) {
		t.Fatal("finder must not be called")
		return nil, nil
	})

	require.Equal(t, ResultNoPredecessor, w.Await(context.Background(), 0))
	require.Equal(t, ResultNoPredecessor, w.Await(context.Background(), -5))
}

// TestAwait_NotRunning treats an already exited process as a non-fatal race.
func TestAwait_NotRunning(t *testing.T) {
	t.Parallel()

	find, _ := exitingFinder(0)
	w := newTestWaiter(find, WithSettleDelay(time.Hour))

	started := time.Now()
	require.Equal(t, ResultNotRunning, w.Await(context.Background(), 4242))
	require.Less(t, time.Since(started), time.Second)
}

// TestAwait_WaitsThenSettles blocks until the process disappears and then sleeps the settle delay.
func TestAwait_WaitsThenSettles(t *testing.T) {
	t.Parallel()

	const settle = 30 * time.Millisecond

	find, calls := exitingFinder(5)
	w := newTestWaiter(find, WithSettleDelay(settle))

	started := time.Now()
	require.Equal(t, ResultExited, w.Await(context.Background(), 4242))
	require.GreaterOrEqual(t, time.Since(started), settle)
	require.EqualValues(t, 6, calls.Load())
}

// TestAwait_Timeout proceeds when the process outlives the wait bound.
func TestAwait_Timeout(t *testing.T) {
	t.Parallel()

	find, _ := exitingFinder(1 << 30)
	w := newTestWaiter(find, WithTimeout(20*time.Millisecond), WithSettleDelay(time.Hour))

	require.Equal(t, ResultTimedOut, w.Await(context.Background(), 4242))
}

// TestAwait_QueryFailure proceeds when the process table cannot be read.
func TestAwait_QueryFailure(t *testing.T) {
	t.Parallel()

	w := newTestWaiter(func(int) (ps.Process, error) {
		return nil, errQuery
	})

	require.Equal(t, ResultFailed, w.Await(context.Background(), 4242))

	// Failure while polling.
	var calls atomic.Int32

	w = newTestWaiter(func(pid int) (ps.Process, error) {
		if calls.Add(1) == 1 {
			return fakeProcess{pid: pid}, nil
		}

		return nil, errQuery
	})

	require.Equal(t, ResultFailed, w.Await(context.Background(), 4242))
}

// TestAwait_NativeWait uses the handle wait when the platform provides one.
func TestAwait_NativeWait(t *testing.T) {
	t.Parallel()

	find, calls := exitingFinder(1 << 30)
	w := newTestWaiter(find, WithSettleDelay(0))
	w.native = func(context.Context, int) (bool, error) {
		return true, nil
	}

	require.Equal(t, ResultExited, w.Await(context.Background(), 4242))
	require.EqualValues(t, 1, calls.Load())
}

// TestAwait_CurrentProcess verifies go-ps finds a real running process and the bound applies.
func TestAwait_CurrentProcess(t *testing.T) {
	t.Parallel()

	w := New(WithTimeout(50*time.Millisecond), WithSettleDelay(0))
	w.native = nil

	require.Equal(t, ResultTimedOut, w.Await(context.Background(), os.Getpid()))
}

// TestResultString covers the log names.
func TestResultString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "exited", ResultExited.String())
	require.Equal(t, "timed_out", ResultTimedOut.String())
	require.Equal(t, "unknown", Result(99).String())
}
