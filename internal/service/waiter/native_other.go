//go:build !windows

package waiter

import "context"

// waitNative is not available here; liveness is polled through go-ps instead.
func waitNative(context.Context, int) (bool, error) {
	return false, nil
}
