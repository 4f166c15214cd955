package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/oshokin/launcher-updater/internal/config"
	"github.com/oshokin/launcher-updater/internal/domain/artifact"
	"github.com/oshokin/launcher-updater/internal/logger"
	"github.com/oshokin/launcher-updater/internal/service/common"
	"github.com/oshokin/launcher-updater/internal/service/launcher"
	"github.com/oshokin/launcher-updater/internal/service/resolver"
	"github.com/oshokin/launcher-updater/internal/service/updater"
	"github.com/oshokin/launcher-updater/internal/service/waiter"
	"github.com/oshokin/launcher-updater/internal/version"
)

// Options are inputs accepted by the bootstrap entry point.
type Options struct {
	// LauncherPath is the original path of the launcher artifact.
	LauncherPath string
	// Predecessor is the process id to wait for as given on the command line.
	// Empty, zero, negative or malformed values mean there is nothing to wait for.
	Predecessor string
	// ConfigPath is the settings file. A missing file means defaults.
	ConfigPath string
}

var (
	// ErrNoLauncherPath is returned when Options carry no launcher path.
	ErrNoLauncherPath = errors.New("launcher path is required")
	// errPanic wraps a panic recovered from the update cycle.
	errPanic = errors.New("bootstrap panicked")
)

// processWaiter blocks until the predecessor is gone.
type processWaiter interface {
	Await(ctx context.Context, pid int) waiter.Result
}

// artifactReplacer installs the published artifact.
type artifactReplacer interface {
	Replace(ctx context.Context, currentPath string, remote *artifact.RemoteVersion) (string, error)
}

// artifactStarter starts the launcher artifact.
type artifactStarter interface {
	Start(ctx context.Context, path string) error
}

// runner holds the collaborators of one update cycle.
type runner struct {
	// waiter waits for the predecessor process.
	waiter processWaiter
	// resolver reads local and remote versions.
	resolver *resolver.Resolver
	// replacer installs the published artifact.
	replacer artifactReplacer
	// starter starts the effective artifact.
	starter artifactStarter
}

// Run executes one update cycle and is the public entry point for the CLI.
// Logs are flushed before it returns, including when the cycle panics.
func Run(ctx context.Context, opts *Options) error {
	return execute(ctx, opts, nil)
}

// execute runs the cycle with starter in place of the configured launcher
// when it is not nil.
func execute(ctx context.Context, opts *Options, starter artifactStarter) error {
	if opts == nil || strings.TrimSpace(opts.LauncherPath) == "" {
		return ErrNoLauncherPath
	}

	settings, err := loadSettings(opts.ConfigPath)
	if err != nil {
		return err
	}

	closeLog, logFailures := setupLogging(settings.LogLevel, resolveLogFile(opts.ConfigPath, settings.LogFile))
	defer closeLog()

	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, version.Name)

	for _, failure := range logFailures {
		logger.WarnKV(ctx, "Logging setup degraded", "error", failure)
	}

	logger.InfoKV(ctx, "Bootstrap started",
		"version", version.Short(),
		"launcher_path", opts.LauncherPath,
		"predecessor", opts.Predecessor,
		"base_url", settings.BaseURL)

	r, closeRunner := newRunner(ctx, settings)
	defer closeRunner()

	if starter != nil {
		r.starter = starter
	}

	return r.run(ctx, opts)
}

// setupLogging installs the configured logger. An unknown level falls back to
// the default one and a log file that cannot be opened leaves console output
// only. The returned errors describe what was given up.
func setupLogging(level, logFile string) (func(), []error) {
	closeLog, err := logger.Setup(logger.Options{Level: level, FilePath: logFile})
	if err == nil {
		return closeLog, nil
	}

	failures := []error{err}

	if _, ok := logger.ParseLogLevel(level); !ok && level != "" {
		closeLog, err = logger.Setup(logger.Options{FilePath: logFile})
		if err == nil {
			return closeLog, failures
		}

		failures = append(failures, err)
	}

	logger.SetLogger(logger.New(nil))

	return logger.Sync, failures
}

// loadSettings reads the settings file, falling back to defaults when it does not exist.
func loadSettings(path string) (*config.Config, error) {
	settings, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		settings = config.Default()
		config.ApplyEnv(settings)

		if err = config.Validate(settings); err != nil {
			return nil, fmt.Errorf("validate settings: %w", err)
		}

		return settings, nil
	}

	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	return settings, nil
}

// resolveLogFile anchors a relative log file next to the settings file.
func resolveLogFile(configPath, logFile string) string {
	if logFile == "" || filepath.IsAbs(logFile) {
		return logFile
	}

	return filepath.Join(filepath.Dir(configPath), logFile)
}

// newRunner wires the production collaborators for settings. Without an
// update authority the cycle only waits and relaunches.
func newRunner(ctx context.Context, settings *config.Config) (*runner, func()) {
	r := &runner{
		waiter:  waiter.FromConfig(settings),
		starter: launcher.FromConfig(settings),
	}

	client, err := common.FromConfig(settings)
	if err != nil {
		logger.WarnKV(ctx, "Update authority unavailable", "error", err)

		r.resolver = resolver.New(settings.ManagedExtensions, nil)

		return r, func() {}
	}

	r.resolver = resolver.New(settings.ManagedExtensions, client)
	r.replacer = updater.New(client)

	return r, func() {
		_ = client.Close()
	}
}

// run performs the cycle: wait, resolve, update when needed, relaunch.
func (r *runner) run(ctx context.Context, opts *Options) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.ErrorKV(ctx, "Bootstrap panicked", "panic", recovered, "stack", string(debug.Stack()))

			err = fmt.Errorf("%w: %v", errPanic, recovered)
		}
	}()

	originalPath, err := filepath.Abs(opts.LauncherPath)
	if err != nil {
		return fmt.Errorf("resolve launcher path: %w", err)
	}

	pid, err := ParsePID(opts.Predecessor)
	if err != nil {
		logger.WarnKV(ctx, "Ignoring malformed predecessor pid", "error", err)
	}

	r.waiter.Await(ctx, pid)

	effectivePath := r.update(ctx, originalPath)

	if err = r.starter.Start(ctx, effectivePath); err != nil {
		logger.ErrorKV(ctx, "Unable to start launcher", "path", effectivePath, "error", err)

		return err
	}

	logger.InfoKV(ctx, "Launcher started", "path", effectivePath)

	return nil
}

// update reconciles the artifact at originalPath with the update authority
// and returns the path to launch.
func (r *runner) update(ctx context.Context, originalPath string) string {
	localVersion := r.resolver.ResolveLocal(ctx, originalPath)

	remote, err := r.resolver.ResolveRemote(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Remote version unavailable, keeping local artifact", "error", err)

		remote = nil
	}

	decision := r.resolver.Decide(ctx, localVersion, remote, originalPath)
	if !decision.NeedsUpdate || r.replacer == nil {
		return originalPath
	}

	effectivePath, err := r.replacer.Replace(ctx, originalPath, remote)
	if err == nil {
		return effectivePath
	}

	logger.ErrorKV(ctx, "Update failed", "error", err)

	return fallbackPath(originalPath, remote.FileName)
}

// fallbackPath picks the artifact to launch after a failed update. The
// original file wins whenever it is still in place, since a failed update
// either never touched it or restored it from the backup. The new file is
// only used when the original is gone.
func fallbackPath(originalPath, fileName string) string {
	if _, err := os.Stat(originalPath); err == nil {
		return originalPath
	}

	if artifact.ValidateFileName(fileName) != nil {
		return originalPath
	}

	newPath := filepath.Join(filepath.Dir(originalPath), fileName)
	if _, err := os.Stat(newPath); err == nil {
		return newPath
	}

	return originalPath
}

// ParsePID converts the optional predecessor argument. Anything that is not a
// positive integer means there is no predecessor to wait for.
func ParsePID(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}

	pid, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse predecessor pid %q: %w", value, err)
	}

	if pid < 0 {
		return 0, nil
	}

	return pid, nil
}
