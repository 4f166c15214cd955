package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/oshokin/launcher-updater/internal/api/http/authority"
	"github.com/oshokin/launcher-updater/internal/config"
	"github.com/oshokin/launcher-updater/internal/logger"
	"github.com/oshokin/launcher-updater/internal/repository/release"
)

// Options controls the update server process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override.
	ListenAddress string
	// PublishDir overrides the directory holding the published release.
	PublishDir string
}

const (
	// readHeaderTimeout bounds how long a client may take to send headers.
	readHeaderTimeout = 10 * time.Second
	// shutdownTimeout bounds the graceful shutdown.
	shutdownTimeout = 15 * time.Second
)

// Run starts the HTTP server and blocks until context is canceled or server stops.
// Loads configuration first, then applies command line overrides.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "launcher-update-server")

	// A missing settings file means defaults.
	settings, err := config.Load(opts.ConfigPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		settings = config.Default()
	case err != nil:
		return fmt.Errorf("load settings: %w", err)
	}

	publishDir := settings.PublishDir
	if opts.PublishDir != "" {
		publishDir = opts.PublishDir
	}

	listenAddress := settings.ListenAddress
	if opts.ListenAddress != "" {
		listenAddress = opts.ListenAddress
	}

	svc := newService(release.NewFileRepository(publishDir))
	api := authority.NewServer(svc, settings.VersionPath, settings.DownloadPath)

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	httpServer := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	logger.InfoKV(ctx, "Update server listening",
		"listen_address", lis.Addr().String(),
		"publish_dir", publishDir,
		"version_path", settings.VersionPath,
		"download_path", settings.DownloadPath)

	// Done channel is closed after Shutdown finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		defer close(done)

		<-ctx.Done()
		logger.Info(ctx, "Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WarnKV(ctx, "Graceful shutdown failed", "error", err)
		}
	}()

	if err = httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve HTTP: %w", err)
	}

	<-done
	logger.Info(ctx, "HTTP server stopped")

	return nil
}
