package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/oshokin/launcher-updater/internal/domain/artifact"
)

// RecordFilename is the version record inside a publish directory.
const RecordFilename = "version.json"

// recordPermissions lets the update server read what the publisher wrote.
const recordPermissions = 0o644

// Repository defines persistence operations for the published release.
type Repository interface {
	Load(ctx context.Context) (*artifact.RemoteVersion, error)
	Save(ctx context.Context, remote *artifact.RemoteVersion) error
}

// FileRepository persists the release record to a JSON file on disk.
type FileRepository struct {
	// dir is the publish directory holding the record and the artifact.
	dir string
	// mu protects concurrent access to the record file.
	mu sync.Mutex
}

// ErrNotFound is returned when nothing has been published yet.
var ErrNotFound = errors.New("release not found")

// NewFileRepository creates a repository for the publish directory dir.
func NewFileRepository(dir string) *FileRepository {
	return &FileRepository{
		dir: filepath.Clean(dir),
	}
}

// Dir returns the publish directory.
func (r *FileRepository) Dir() string {
	return r.dir
}

// ArtifactPath returns where the artifact described by remote is stored.
func (r *FileRepository) ArtifactPath(remote *artifact.RemoteVersion) (string, error) {
	if err := artifact.ValidateFileName(remote.FileName); err != nil {
		return "", fmt.Errorf("%q: %w", remote.FileName, err)
	}

	return filepath.Join(r.dir, remote.FileName), nil
}

// Load reads and validates the record.
func (r *FileRepository) Load(_ context.Context) (*artifact.RemoteVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.recordPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read release record: %w", err)
	}

	return artifact.ParseRemoteVersion(contents)
}

// Save replaces the record. The new record is written to a temporary file
// first so the update server never serves a half-written one.
func (r *FileRepository) Save(_ context.Context, remote *artifact.RemoteVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(remote, "", "  ")
	if err != nil {
		return fmt.Errorf("encode release record: %w", err)
	}

	if err = os.MkdirAll(r.dir, 0o750); err != nil {
		return fmt.Errorf("create publish directory: %w", err)
	}

	tempPath := artifact.TempPath(r.recordPath())
	if err = os.WriteFile(tempPath, data, recordPermissions); err != nil {
		return fmt.Errorf("write release record: %w", err)
	}

	if err = os.Rename(tempPath, r.recordPath()); err != nil {
		_ = os.Remove(tempPath)

		return fmt.Errorf("replace release record: %w", err)
	}

	return nil
}

// recordPath returns the location of the record file.
func (r *FileRepository) recordPath() string {
	return filepath.Join(r.dir, RecordFilename)
}
