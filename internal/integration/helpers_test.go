package integration

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/launcher-updater/internal/service/server"
)

// reservePort returns a free local address for a test server.
func reservePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	require.NoError(t, l.Close())

	return addr
}

// startServer runs the update server over publishDir and returns its base URL.
// The server is stopped when the test finishes.
func startServer(t *testing.T, publishDir string) string {
	t.Helper()

	addr := reservePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	// Start server in background goroutine.
	go func() {
		done <- server.Run(ctx, &server.Options{
			ConfigPath:    "",
			ListenAddress: addr,
			PublishDir:    publishDir,
		})
	}()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	baseURL := "http://" + addr

	// Wait for the listener.
	require.Eventually(t, func() bool {
		response, err := http.Get(baseURL + "/") //nolint:noctx // Readiness probe in tests.
		if err != nil {
			return false
		}

		_ = response.Body.Close()

		return true
	}, 5*time.Second, 20*time.Millisecond)

	return baseURL
}
