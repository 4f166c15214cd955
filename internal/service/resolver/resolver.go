package resolver

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/mod/semver"

	"github.com/oshokin/launcher-updater/internal/domain/artifact"
	"github.com/oshokin/launcher-updater/internal/logger"
)

// RemoteSource provides the current update target.
type RemoteSource interface {
	FetchVersion(ctx context.Context) (*artifact.RemoteVersion, error)
}

// ErrRemoteNotConfigured is returned by ResolveRemote when no update authority is set.
var ErrRemoteNotConfigured = errors.New("remote version source is not configured")

// Resolver reads local and remote versions.
type Resolver struct {
	// managedExtensions selects artifacts that are managed-runtime modules.
	managedExtensions []string
	// moduleReader reads the precise module version of managed modules.
	moduleReader VersionReader
	// fileReader reads the generic file version of any artifact.
	fileReader VersionReader
	// remote is the update authority; nil disables remote checks.
	remote RemoteSource
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithReaders replaces the module-version and file-version readers.
func WithReaders(moduleReader, fileReader VersionReader) Option {
	return func(r *Resolver) {
		if moduleReader != nil {
			r.moduleReader = moduleReader
		}

		if fileReader != nil {
			r.fileReader = fileReader
		}
	}
}

// New creates a Resolver. remote may be nil when no update authority is configured.
func New(managedExtensions []string, remote RemoteSource, opts ...Option) *Resolver {
	r := &Resolver{
		managedExtensions: managedExtensions,
		moduleReader:      VersionReaderFunc(ModuleVersion),
		fileReader:        VersionReaderFunc(FileVersion),
		remote:            remote,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// ResolveLocal returns the version of the artifact at path, or "" when the
// file is missing or carries no readable version. Managed-runtime modules try
// the module version first and fall back to the file version.
func (r *Resolver) ResolveLocal(ctx context.Context, path string) string {
	ctx = logger.WithKV(ctx, "path", path)

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info(ctx, "Local artifact does not exist")
		} else {
			logger.WarnKV(ctx, "Unable to stat local artifact", "error", err)
		}

		return ""
	}

	if artifact.KindOf(path, r.managedExtensions) == artifact.KindManaged {
		version, err := r.moduleReader.ReadVersion(path)
		if err == nil && version != "" {
			logger.InfoKV(ctx, "Local module version detected", "version", version)
			return version
		}

		logger.DebugKV(ctx, "Module version unavailable, reading file version", "error", err)
	}

	version, err := r.fileReader.ReadVersion(path)
	if err != nil || version == "" {
		logger.WarnKV(ctx, "Local version unavailable", "error", err)
		return ""
	}

	logger.InfoKV(ctx, "Local file version detected", "version", version)

	return version
}

// ResolveRemote queries the update authority once. Any error means the
// remote target is unavailable for this run.
func (r *Resolver) ResolveRemote(ctx context.Context) (*artifact.RemoteVersion, error) {
	if r.remote == nil {
		return nil, ErrRemoteNotConfigured
	}

	remote, err := r.remote.FetchVersion(ctx)
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Remote version received", "version", remote.Version, "file_name", remote.FileName)

	return remote, nil
}

// Decide compares the artifact at path against remote and logs the outcome.
func (r *Resolver) Decide(
	ctx context.Context,
	localVersion string,
	remote *artifact.RemoteVersion,
	path string,
) artifact.Decision {
	decision := artifact.Decide(localVersion, remote, filepath.Base(path))

	kvs := []any{"needs_update", decision.NeedsUpdate, "reason", decision.Reason, "local", localVersion}
	if remote != nil {
		kvs = append(kvs, "remote", remote.Version, "file_name", remote.FileName)

		if direction := Direction(localVersion, remote.Version); direction != "" {
			kvs = append(kvs, "direction", direction)
		}
	}

	logger.InfoKV(ctx, "Update decision", kvs...)

	return decision
}

// Direction reports "upgrade" or "downgrade" when both versions are valid
// semantic versions that differ, and "" otherwise.
func Direction(localVersion, remoteVersion string) string {
	local, remote := canonical(localVersion), canonical(remoteVersion)
	if local == "" || remote == "" {
		return ""
	}

	switch semver.Compare(local, remote) {
	case -1:
		return "upgrade"
	case 1:
		return "downgrade"
	default:
		return ""
	}
}

// canonical converts a version to the "v"-prefixed form semver expects.
func canonical(version string) string {
	if version == "" {
		return ""
	}

	if version[0] != 'v' {
		version = "v" + version
	}

	return semver.Canonical(version)
}
