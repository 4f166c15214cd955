//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/launcher-updater/internal/domain/artifact"
	"github.com/oshokin/launcher-updater/internal/version"
)

// TestNewClient_ValidatesAddress verifies that an empty base URL is rejected.
func TestNewClient_ValidatesAddress(t *testing.T) {
	t.Parallel()

	c, err := NewClient("")
	require.ErrorIs(t, err, ErrNotConfigured)
	require.Nil(t, c)

	for _, baseURL := range []string{"http://[::1", "not-a-url", "ftp://updates.example.com", "/relative/path"} {
		_, err = NewClient(baseURL)
		require.ErrorIs(t, err, ErrInvalidBaseURL, baseURL)
	}
}

// TestClient_EndpointURL checks slash normalization between base URL and endpoints.
func TestClient_EndpointURL(t *testing.T) {
	t.Parallel()

	c, err := NewClient("https://updates.example.com/launcher/", WithEndpoints("api/version", ""))
	require.NoError(t, err)
	require.Equal(t, "https://updates.example.com/launcher/api/version", c.EndpointURL(c.versionPath))
	require.Equal(t, "https://updates.example.com/launcher/download", c.EndpointURL(c.downloadPath))

	c, err = NewClient("http://127.0.0.1:8080")
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:8080/version", c.EndpointURL(c.versionPath))
}

// TestClient_FetchVersion covers a valid record, an incomplete one and an error status.
func TestClient_FetchVersion(t *testing.T) {
	t.Parallel()

	var userAgent string

	mux := http.NewServeMux()
	mux.HandleFunc("/ok/version", func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.UserAgent()
		_, _ = w.Write([]byte(`{"version":"2.0.0","fileName":"App.exe"}`))
	})
	mux.HandleFunc("/partial/version", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"version":"2.0.0"}`))
	})
	mux.HandleFunc("/broken/version", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	c, err := NewClient(ts.URL + "/ok")
	require.NoError(t, err)

	remote, err := c.FetchVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, &artifact.RemoteVersion{Version: "2.0.0", FileName: "App.exe"}, remote)
	require.Equal(t, version.UserAgent(), userAgent)

	c, err = NewClient(ts.URL + "/partial")
	require.NoError(t, err)

	_, err = c.FetchVersion(context.Background())
	require.ErrorIs(t, err, artifact.ErrIncompleteVersionInfo)

	c, err = NewClient(ts.URL + "/broken")
	require.NoError(t, err)

	_, err = c.FetchVersion(context.Background())
	require.ErrorIs(t, err, ErrBadHTTPStatus)
}

// TestClient_FetchVersion_Timeout verifies that the call timeout bounds a stalled server.
func TestClient_FetchVersion_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})

	ts := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	c, err := NewClient(ts.URL, WithCallTimeout(50*time.Millisecond))
	require.NoError(t, err)

	started := time.Now()
	_, err = c.FetchVersion(context.Background())
	require.Error(t, err)
	require.Less(t, time.Since(started), 5*time.Second)
}

// TestClient_Download streams the body and rejects error statuses.
func TestClient_Download(t *testing.T) {
	t.Parallel()

	body := bytes.Repeat([]byte("artifact"), 4096)

	mux := http.NewServeMux()
	mux.HandleFunc("/download", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	})
	mux.HandleFunc("/missing/download", http.NotFound)

	ts := httptest.NewServer(mux)
	defer ts.Close()

	c, err := NewClient(ts.URL)
	require.NoError(t, err)

	var buf bytes.Buffer

	written, err := c.Download(context.Background(), &buf)
	require.NoError(t, err)
	require.Equal(t, int64(len(body)), written)
	require.Equal(t, body, buf.Bytes())
	require.NoError(t, c.Close())

	c, err = NewClient(ts.URL + "/missing")
	require.NoError(t, err)

	_, err = c.Download(context.Background(), &buf)
	require.ErrorIs(t, err, ErrBadHTTPStatus)
}

// TestWithTimeout checks timeout vs cancel-only behavior.
func TestWithTimeout(t *testing.T) {
	t.Parallel()

	ctx, cancel := withTimeout(context.Background(), 0)
	_, ok := ctx.Deadline()
	require.False(t, ok)
	cancel()

	ctx, cancel = withTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 30*time.Millisecond)
}
