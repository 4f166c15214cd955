//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/oshokin/launcher-updater/internal/config"
	"github.com/oshokin/launcher-updater/internal/domain/artifact"
	"github.com/oshokin/launcher-updater/internal/version"
)

// maxVersionBodySize caps how much of a version response is read.
const maxVersionBodySize = 1 << 20

// Client talks to the update authority over HTTP.
type Client struct {
	// baseURL is the root of the update authority.
	baseURL *url.URL
	// httpClient is a non-shared client so no global transport state leaks in.
	httpClient *http.Client

	// versionPath is the version endpoint relative to baseURL.
	versionPath string
	// downloadPath is the download endpoint relative to baseURL.
	downloadPath string
	// callTimeout bounds the version query.
	callTimeout time.Duration
	// downloadTimeout bounds the artifact download.
	downloadTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a timeout for the version query.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithDownloadTimeout sets a timeout for the artifact download.
func WithDownloadTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.downloadTimeout = timeout
		}
	}
}

// WithEndpoints overrides the version and download sub-paths.
func WithEndpoints(versionPath, downloadPath string) Option {
	return func(c *Client) {
		if versionPath != "" {
			c.versionPath = versionPath
		}

		if downloadPath != "" {
			c.downloadPath = downloadPath
		}
	}
}

var (
	// ErrNotConfigured is returned when no update authority URL is configured.
	ErrNotConfigured = errors.New("update authority is not configured")
	// ErrBadHTTPStatus is returned for non-success responses.
	ErrBadHTTPStatus = errors.New("unexpected http status")
	// ErrInvalidBaseURL is returned when the base URL is not an absolute http(s) URL.
	ErrInvalidBaseURL = errors.New("invalid update authority URL")
)

// NewClient creates a client for the update authority rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, ErrNotConfigured
	}

	parsed, err := url.ParseRequestURI(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBaseURL, err)
	}

	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	client := &Client{
		baseURL:         parsed,
		httpClient:      cleanhttp.DefaultClient(),
		versionPath:     config.DefaultVersionPath,
		downloadPath:    config.DefaultDownloadPath,
		callTimeout:     config.DefaultRequestTimeout,
		downloadTimeout: config.DefaultDownloadTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// FromConfig creates a client using the endpoints and timeouts of cfg.
func FromConfig(cfg *config.Config) (*Client, error) {
	return NewClient(
		cfg.BaseURL,
		WithEndpoints(cfg.VersionPath, cfg.DownloadPath),
		WithCallTimeout(cfg.RequestTimeout),
		WithDownloadTimeout(cfg.DownloadTimeout),
	)
}

// Close releases idle connections of the underlying transport.
func (c *Client) Close() error {
	if c == nil || c.httpClient == nil {
		return nil
	}

	c.httpClient.CloseIdleConnections()

	return nil
}

// FetchVersion issues a single version query and parses the response.
func (c *Client) FetchVersion(ctx context.Context) (*artifact.RemoteVersion, error) {
	callCtx, cancel := withTimeout(ctx, c.callTimeout)
	defer cancel()

	response, err := c.get(callCtx, c.versionPath)
	if err != nil {
		return nil, fmt.Errorf("query version: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(response.Body, maxVersionBodySize))
	if err != nil {
		return nil, fmt.Errorf("read version response: %w", err)
	}

	return artifact.ParseRemoteVersion(data)
}

// Download streams the artifact into w and returns the number of bytes written.
// The whole body must arrive for the call to succeed.
func (c *Client) Download(ctx context.Context, w io.Writer) (int64, error) {
	callCtx, cancel := withTimeout(ctx, c.downloadTimeout)
	defer cancel()

	response, err := c.get(callCtx, c.downloadPath)
	if err != nil {
		return 0, fmt.Errorf("request artifact: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	written, err := io.Copy(w, response.Body)
	if err != nil {
		return written, fmt.Errorf("stream artifact: %w", err)
	}

	if response.ContentLength >= 0 && written != response.ContentLength {
		return written, fmt.Errorf("stream artifact: got %d of %d bytes: %w", written, response.ContentLength, io.ErrUnexpectedEOF)
	}

	return written, nil
}

// EndpointURL returns the absolute URL of an endpoint relative to the base URL.
func (c *Client) EndpointURL(endpoint string) string {
	endpointURL := *c.baseURL

	// Use path.Join to normalize duplicate slashes when composing the URL path.
	endpointURL.Path = path.Join("/", c.baseURL.Path, endpoint)

	return endpointURL.String()
}

// get performs a GET request and fails on non-2xx statuses.
func (c *Client) get(ctx context.Context, endpoint string) (*http.Response, error) {
	finalURL := c.EndpointURL(endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", version.UserAgent())

	response, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		_ = response.Body.Close()

		return nil, fmt.Errorf("%s, %s: %w", finalURL, response.Status, ErrBadHTTPStatus)
	}

	return response, nil
}

// withTimeout returns a context with the timeout if it is positive,
// otherwise a cancellable child context without a deadline.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}
