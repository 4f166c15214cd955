package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/oshokin/launcher-updater/internal/config"
	"github.com/oshokin/launcher-updater/internal/domain/artifact"
	"github.com/oshokin/launcher-updater/internal/logger"
)

// ErrArtifactNotFound is returned when there is nothing to start.
var ErrArtifactNotFound = errors.New("artifact not found")

// Starter starts cmd without waiting for it.
type Starter func(cmd *exec.Cmd) error

// Option configures a Launcher.
type Option func(*Launcher)

// WithStarter replaces the function that starts the prepared command.
func WithStarter(start Starter) Option {
	return func(l *Launcher) {
		if start != nil {
			l.start = start
		}
	}
}

// Launcher starts artifacts according to their kind.
type Launcher struct {
	// managedExtensions selects artifacts started through runtimeHost.
	managedExtensions []string
	// runtimeHost hosts managed-runtime modules.
	runtimeHost string
	// start runs the prepared command.
	start Starter
}

// New creates a Launcher.
func New(managedExtensions []string, runtimeHost string, opts ...Option) *Launcher {
	if runtimeHost == "" {
		runtimeHost = config.DefaultRuntimeHost
	}

	l := &Launcher{
		managedExtensions: managedExtensions,
		runtimeHost:       runtimeHost,
		start:             startDetached,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// FromConfig creates a Launcher using the runtime settings of cfg.
func FromConfig(cfg *config.Config, opts ...Option) *Launcher {
	return New(cfg.ManagedExtensions, cfg.RuntimeHost, opts...)
}

// Start launches the artifact at path and returns once it has been started.
// The started process is not tied to ctx and outlives the caller.
func (l *Launcher) Start(ctx context.Context, path string) error {
	absolutePath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	info, err := os.Stat(absolutePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", absolutePath, ErrArtifactNotFound)
		}

		return fmt.Errorf("stat %s: %w", absolutePath, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory: %w", absolutePath, ErrArtifactNotFound)
	}

	cmd := l.command(absolutePath)

	logger.InfoKV(ctx, "Starting launcher", "command", cmd.Path, "args", cmd.Args[1:], "dir", cmd.Dir)

	if err = l.start(cmd); err != nil {
		return fmt.Errorf("start %s: %w", absolutePath, err)
	}

	return nil
}

// command prepares the process for path without starting it.
//
//nolint:gosec // The artifact path is the launcher installed by the user.
func (l *Launcher) command(path string) *exec.Cmd {
	var cmd *exec.Cmd

	if artifact.KindOf(path, l.managedExtensions) == artifact.KindManaged {
		cmd = exec.Command(l.runtimeHost, path)
	} else {
		cmd = exec.Command(path)
	}

	cmd.Dir = filepath.Dir(path)

	return cmd
}

// startDetached starts cmd and releases it so it is never waited for.
func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}

	return cmd.Process.Release()
}
