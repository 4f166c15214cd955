package server

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/launcher-updater/internal/api/http/authority"
	"github.com/oshokin/launcher-updater/internal/domain/artifact"
	repo "github.com/oshokin/launcher-updater/internal/repository/release"
)

var errTestLoad = errors.New("test load error")

// memoryRepository is a minimal in-memory repository implementation for tests.
type memoryRepository struct {
	// remote is the record to return from Load operations.
	remote *artifact.RemoteVersion
	// loadErr is the error to return from Load operations.
	loadErr error
}

// Load returns the configured record.
func (m *memoryRepository) Load(context.Context) (*artifact.RemoteVersion, error) {
	return m.remote, m.loadErr
}

// Save stores the provided record in memory.
func (m *memoryRepository) Save(_ context.Context, remote *artifact.RemoteVersion) error {
	m.remote = remote

	return nil
}

// ArtifactPath places artifacts under a fixed directory.
func (m *memoryRepository) ArtifactPath(remote *artifact.RemoteVersion) (string, error) {
	return filepath.Join("publish", remote.FileName), nil
}

// TestService_Release asserts Release behavior on published, missing, and broken releases.
func TestService_Release(t *testing.T) {
	t.Parallel()

	published := &artifact.RemoteVersion{Version: "2.0.0", FileName: "App.dll"}

	remote, path, err := newService(&memoryRepository{remote: published}).Release(context.Background())
	require.NoError(t, err)
	require.Equal(t, published, remote)
	require.Equal(t, filepath.Join("publish", "App.dll"), path)

	// Not published yet.
	_, _, err = newService(&memoryRepository{loadErr: repo.ErrNotFound}).Release(context.Background())
	require.ErrorIs(t, err, authority.ErrNoRelease)

	// Other error.
	_, _, err = newService(&memoryRepository{loadErr: errTestLoad}).Release(context.Background())
	require.ErrorIs(t, err, errTestLoad)
}

// TestService_PicksUpNewRelease serves the latest saved record.
func TestService_PicksUpNewRelease(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := repo.NewFileRepository(dir)
	svc := newService(files)

	require.NoError(t, files.Save(context.Background(), &artifact.RemoteVersion{Version: "1.0.0", FileName: "App.exe"}))

	remote, _, err := svc.Release(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1.0.0", remote.Version)

	require.NoError(t, files.Save(context.Background(), &artifact.RemoteVersion{Version: "2.0.0", FileName: "App.dll"}))

	remote, path, err := svc.Release(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2.0.0", remote.Version)
	require.Equal(t, filepath.Join(dir, "App.dll"), path)
}
