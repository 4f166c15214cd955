//go:build windows

package waiter

import (
	"context"
	"fmt"

	"golang.org/x/sys/windows"
)

// nativePollMillis is how long a single WaitForSingleObject call blocks
// before the context is checked again.
const nativePollMillis = 100

// waitNative waits on a SYNCHRONIZE handle of the process. A handle that
// cannot be opened is left to the polling fallback.
func waitNative(ctx context.Context, pid int) (bool, error) {
	handle, err := windows.OpenProcess(windows.SYNCHRONIZE, false, uint32(pid)) //nolint:gosec // pid is positive.
	if err != nil {
		return false, nil
	}

	defer func() {
		_ = windows.CloseHandle(handle)
	}()

	for {
		event, err := windows.WaitForSingleObject(handle, nativePollMillis)
		if err != nil {
			return true, fmt.Errorf("wait for process %d: %w", pid, err)
		}

		if event == windows.WAIT_OBJECT_0 {
			return true, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return true, ctxErr
		}
	}
}
