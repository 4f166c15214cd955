package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/launcher-updater/internal/config"
	"github.com/oshokin/launcher-updater/internal/domain/artifact"
	"github.com/oshokin/launcher-updater/internal/logger"
	"github.com/oshokin/launcher-updater/internal/repository/release"
	"github.com/oshokin/launcher-updater/internal/service/resolver"
	"github.com/oshokin/launcher-updater/internal/service/updater"
)

// Options contains inputs for the publisher entry point.
type Options struct {
	// ConfigPath is an optional settings file providing the publish directory.
	ConfigPath string
	// ArtifactPath is the artifact to publish.
	ArtifactPath string
	// Version overrides the version read from the artifact.
	Version string
	// OutDir overrides the publish directory of the settings.
	OutDir string
}

var (
	// ErrNoArtifact is returned when the artifact to publish does not exist.
	ErrNoArtifact = errors.New("artifact to publish not found")
	// ErrNoVersion is returned when no version was given and none could be read.
	ErrNoVersion = errors.New("artifact version is unknown, pass it explicitly")
)

// publisher holds what one publishing run needs.
type publisher struct {
	// resolver reads the artifact version.
	resolver *resolver.Resolver
	// repo stores the release record.
	repo *release.FileRepository
}

// Run publishes the artifact and returns the record describing it.
func Run(ctx context.Context, opts *Options) (*artifact.RemoteVersion, error) {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "launcher-publisher")

	settings, err := config.Load(opts.ConfigPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		settings = config.Default()
	case err != nil:
		return nil, fmt.Errorf("load settings: %w", err)
	}

	outDir := settings.PublishDir
	if opts.OutDir != "" {
		outDir = opts.OutDir
	}

	p := &publisher{
		resolver: resolver.New(settings.ManagedExtensions, nil),
		repo:     release.NewFileRepository(outDir),
	}

	remote, err := p.publish(ctx, opts.ArtifactPath, strings.TrimSpace(opts.Version))
	if err != nil {
		return nil, fmt.Errorf("publisher failed: %w", err)
	}

	p.printNextSteps(ctx, remote)

	return remote, nil
}

// publish copies the artifact into the publish directory and saves its record.
func (p *publisher) publish(ctx context.Context, artifactPath, version string) (*artifact.RemoteVersion, error) {
	info, err := os.Stat(artifactPath)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%s: %w", artifactPath, ErrNoArtifact)
	}

	detected := p.resolver.ResolveLocal(ctx, artifactPath)

	switch {
	case version == "" && detected == "":
		return nil, ErrNoVersion
	case version == "":
		version = detected
	case detected != "" && detected != version:
		// Clients compare against what they read from the file.
		logger.WarnKV(ctx, "Published version differs from the artifact version, clients will update on every run",
			"version", version,
			"artifact_version", detected)
	}

	checksum, err := updater.Checksum(artifactPath)
	if err != nil {
		return nil, err
	}

	remote := &artifact.RemoteVersion{
		Version:  version,
		FileName: filepath.Base(artifactPath),
		Checksum: checksum,
	}

	target, err := p.repo.ArtifactPath(remote)
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Copying artifact", "source", artifactPath, "target", target)

	if err = copyFile(artifactPath, target); err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Saving version record", "version", remote.Version, "file_name", remote.FileName)

	if err = p.repo.Save(ctx, remote); err != nil {
		return nil, err
	}

	return remote, nil
}

// copyFile writes source to target through a temporary file.
func copyFile(source, target string) error {
	if same, err := samePath(source, target); err != nil || same {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create publish directory: %w", err)
	}

	input, err := os.Open(filepath.Clean(source))
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}

	defer func() {
		_ = input.Close()
	}()

	tempPath := artifact.TempPath(target)

	output, err := os.OpenFile(filepath.Clean(tempPath), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, updater.DefaultFileMode)
	if err != nil {
		return fmt.Errorf("create artifact copy: %w", err)
	}

	_, err = io.Copy(output, input)
	if closeErr := output.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tempPath)

		return fmt.Errorf("copy artifact: %w", err)
	}

	if err = os.Rename(tempPath, target); err != nil {
		_ = os.Remove(tempPath)

		return fmt.Errorf("replace published artifact: %w", err)
	}

	return nil
}

// samePath reports whether source and target are the same file.
func samePath(source, target string) (bool, error) {
	sourceInfo, err := os.Stat(source)
	if err != nil {
		return false, err
	}

	targetInfo, err := os.Stat(target)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return os.SameFile(sourceInfo, targetInfo), nil
}

// printNextSteps logs human-readable guidance for next actions with the created files.
func (p *publisher) printNextSteps(ctx context.Context, remote *artifact.RemoteVersion) {
	var builder strings.Builder

	builder.WriteString("Release ")
	builder.WriteString(remote.Version)
	builder.WriteString(" is ready in ")
	builder.WriteString(p.repo.Dir())
	builder.WriteString(":\n")
	builder.WriteString(remote.FileName)
	builder.WriteString(",\n")
	builder.WriteString(release.RecordFilename)
	builder.WriteString("\n\nServe this folder with launcher-update-server, or upload both files so that ")
	builder.WriteString("the version and download endpoints return them.")

	logger.Info(ctx, builder.String())
}
